package ifaces

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const (
	// linkLayerFamily rows describing the device itself rather than an address
	linkLayerFamily = unix.AF_PACKET
	// defaultExcludeLinkLayer packet-socket rows are not protocol addresses
	defaultExcludeLinkLayer = true
)

// staticTable a table already copied out of the kernel.
type staticTable []Entry

func (t staticTable) Entries() []Entry { return t }
func (t staticTable) Close() error     { return nil }

// NativeSource the host's interface-address table. The kernel is asked
// over netlink for the links and then the addresses of each link, in the
// same row order getifaddrs(3) uses: one AF_PACKET row per link first, then
// one row per address.
func NativeSource() Source {
	return SourceFunc(fetchTable)
}

func fetchTable() (Table, error) {
	links, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("error listing links: %w", err)
	}
	var (
		table staticTable
		addrs = make([][]net.Addr, len(links))
	)
	for i, link := range links {
		table = append(table, Entry{
			Name:   link.Name,
			Index:  link.Index,
			Flags:  link.Flags,
			Family: unix.AF_PACKET,
			Addr:   link.HardwareAddr,
		})
		if addrs[i], err = link.Addrs(); err != nil {
			return nil, fmt.Errorf("error listing addresses of %s: %w", link.Name, err)
		}
	}
	for i, link := range links {
		for _, a := range addrs[i] {
			table = append(table, addrEntry(link, a))
		}
	}
	return table, nil
}

func addrEntry(link net.Interface, a net.Addr) Entry {
	e := Entry{
		Name:   link.Name,
		Index:  link.Index,
		Flags:  link.Flags,
		Family: unix.AF_UNSPEC,
	}
	ipnet, ok := a.(*net.IPNet)
	if !ok {
		return e
	}
	if ip4 := ipnet.IP.To4(); ip4 != nil {
		e.Family = unix.AF_INET
		e.Addr = ip4
		if len(ipnet.Mask) == net.IPv6len {
			e.Netmask = ipnet.Mask[12:]
		} else {
			e.Netmask = ipnet.Mask
		}
		if link.Flags&net.FlagBroadcast != 0 && len(e.Netmask) == net.IPv4len {
			bcast := make([]byte, net.IPv4len)
			for j := range bcast {
				bcast[j] = ip4[j] | ^e.Netmask[j]
			}
			e.Broadcast = bcast
		}
		return e
	}
	e.Family = unix.AF_INET6
	e.Addr = ipnet.IP.To16()
	e.Netmask = ipnet.Mask
	return e
}
