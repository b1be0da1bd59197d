//go:build darwin || freebsd

package ifaces

import (
	"fmt"
	"net"

	"golang.org/x/net/route"
	"golang.org/x/sys/unix"
)

const (
	// linkLayerFamily rows describing the device itself rather than an address
	linkLayerFamily = unix.AF_LINK
	// defaultExcludeLinkLayer AF_LINK rows carry the hardware address and are kept
	defaultExcludeLinkLayer = false
)

// ribTable rows parsed out of a routing-socket RIB dump.
type ribTable struct {
	entries []Entry
}

func (t *ribTable) Entries() []Entry { return t.entries }

func (t *ribTable) Close() error {
	t.entries = nil
	return nil
}

// NativeSource the host's interface-address table, read from the routing
// socket the way getifaddrs(3) does: an RTM_IFINFO message per interface
// followed by an RTM_NEWADDR message per address.
func NativeSource() Source {
	return SourceFunc(fetchTable)
}

func fetchTable() (Table, error) {
	rib, err := route.FetchRIB(unix.AF_UNSPEC, route.RIBTypeInterface, 0)
	if err != nil {
		return nil, fmt.Errorf("error fetching interface RIB: %w", err)
	}
	msgs, err := route.ParseRIB(route.RIBTypeInterface, rib)
	if err != nil {
		return nil, fmt.Errorf("error parsing interface RIB: %w", err)
	}

	type link struct {
		name  string
		flags net.Flags
	}
	var (
		t     = &ribTable{}
		links = map[int]link{}
	)
	for _, m := range msgs {
		switch m := m.(type) {
		case *route.InterfaceMessage:
			l := link{name: m.Name, flags: linkFlags(m.Flags)}
			links[m.Index] = l
			e := Entry{Name: l.name, Index: m.Index, Flags: l.flags, Family: unix.AF_LINK}
			if len(m.Addrs) > unix.RTAX_IFP {
				if la, ok := m.Addrs[unix.RTAX_IFP].(*route.LinkAddr); ok {
					e.Addr = la.Addr
				}
			}
			t.entries = append(t.entries, e)
		case *route.InterfaceAddrMessage:
			l := links[m.Index]
			e := Entry{Name: l.name, Index: m.Index, Flags: l.flags, Family: unix.AF_UNSPEC}
			if len(m.Addrs) > unix.RTAX_IFA {
				e.Family, e.Addr = ribAddr(m.Addrs[unix.RTAX_IFA])
			}
			if len(m.Addrs) > unix.RTAX_NETMASK {
				_, e.Netmask = ribAddr(m.Addrs[unix.RTAX_NETMASK])
			}
			if len(m.Addrs) > unix.RTAX_BRD {
				_, e.Broadcast = ribAddr(m.Addrs[unix.RTAX_BRD])
			}
			t.entries = append(t.entries, e)
		}
	}
	return t, nil
}

func ribAddr(a route.Addr) (family int, b []byte) {
	switch a := a.(type) {
	case *route.Inet4Addr:
		return unix.AF_INET, append([]byte(nil), a.IP[:]...)
	case *route.Inet6Addr:
		return unix.AF_INET6, append([]byte(nil), a.IP[:]...)
	case *route.LinkAddr:
		return unix.AF_LINK, a.Addr
	}
	return unix.AF_UNSPEC, nil
}

func linkFlags(raw int) net.Flags {
	var f net.Flags
	if raw&unix.IFF_UP != 0 {
		f |= net.FlagUp
	}
	if raw&unix.IFF_BROADCAST != 0 {
		f |= net.FlagBroadcast
	}
	if raw&unix.IFF_LOOPBACK != 0 {
		f |= net.FlagLoopback
	}
	if raw&unix.IFF_POINTOPOINT != 0 {
		f |= net.FlagPointToPoint
	}
	if raw&unix.IFF_MULTICAST != 0 {
		f |= net.FlagMulticast
	}
	if raw&unix.IFF_RUNNING != 0 {
		f |= net.FlagRunning
	}
	return f
}
