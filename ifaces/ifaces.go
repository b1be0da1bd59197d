//go:build linux || darwin || freebsd

// Package ifaces lists the addresses configured on the host's network
// interfaces, one record per row of the OS interface-address table.
package ifaces

import (
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var (
	// ErrNoName the row does not name its interface
	ErrNoName = errors.New("entry has no interface name")
	// ErrNoAddress the row carries no address for its family
	ErrNoAddress = errors.New("entry has no address")
	// ErrUnsupportedFamily the row's address family is not IPv4, IPv6 or link layer
	ErrUnsupportedFamily = errors.New("unsupported address family")
	// ErrInvalidAddress the address or netmask has the wrong length for its family
	ErrInvalidAddress = errors.New("invalid address")
)

// Entry a single row of the native interface-address table. Addr, Netmask and
// Broadcast hold raw address bytes as the kernel reports them for Family.
type Entry struct {
	Name      string
	Index     int
	Flags     net.Flags
	Family    int
	Addr      []byte
	Netmask   []byte
	Broadcast []byte
}

// Table a fetched interface-address table. It must be closed once read.
type Table interface {
	Entries() []Entry
	Close() error
}

// Source fetch the interface-address table in one call.
type Source interface {
	Fetch() (Table, error)
}

// SourceFunc adapt a function to a Source.
type SourceFunc func() (Table, error)

func (f SourceFunc) Fetch() (Table, error) {
	return f()
}

// InterfaceInfo one address of one interface. Link-layer rows carry a
// HardwareAddr and no Address.
type InterfaceInfo struct {
	Name         string
	Index        int
	Flags        net.Flags
	Family       int
	HardwareAddr net.HardwareAddr
	Address      net.IP
	Netmask      net.IPMask
	Broadcast    net.IP
}

// IsLinkLayer whether the record describes the link layer rather than a protocol address.
func (i InterfaceInfo) IsLinkLayer() bool {
	return i.Family == linkLayerFamily
}

// ConversionError an Entry that could not be turned into an InterfaceInfo.
type ConversionError struct {
	Name   string
	Family int
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("interface %q family %d: %v", e.Name, e.Family, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// NewInterfaceInfo convert a table row into a record.
func NewInterfaceInfo(e Entry) (InterfaceInfo, error) {
	fail := func(err error) (InterfaceInfo, error) {
		return InterfaceInfo{}, &ConversionError{Name: e.Name, Family: e.Family, Err: err}
	}
	if e.Name == "" {
		return fail(ErrNoName)
	}
	info := InterfaceInfo{
		Name:   e.Name,
		Index:  e.Index,
		Flags:  e.Flags,
		Family: e.Family,
	}
	switch e.Family {
	case linkLayerFamily:
		// loopback and tunnel devices have an empty hardware address
		if len(e.Addr) > 0 {
			info.HardwareAddr = net.HardwareAddr(append([]byte(nil), e.Addr...))
		}
		return info, nil
	case unix.AF_INET:
		return convertIP(info, e, net.IPv4len, fail)
	case unix.AF_INET6:
		return convertIP(info, e, net.IPv6len, fail)
	case unix.AF_UNSPEC:
		return fail(ErrNoAddress)
	default:
		return fail(ErrUnsupportedFamily)
	}
}

func convertIP(info InterfaceInfo, e Entry, size int, fail func(error) (InterfaceInfo, error)) (InterfaceInfo, error) {
	if len(e.Addr) == 0 {
		return fail(ErrNoAddress)
	}
	if len(e.Addr) != size {
		return fail(fmt.Errorf("%w: %d byte address", ErrInvalidAddress, len(e.Addr)))
	}
	info.Address = net.IP(append([]byte(nil), e.Addr...))
	if len(e.Netmask) > 0 {
		if len(e.Netmask) != size {
			return fail(fmt.Errorf("%w: %d byte netmask", ErrInvalidAddress, len(e.Netmask)))
		}
		info.Netmask = net.IPMask(append([]byte(nil), e.Netmask...))
	}
	if len(e.Broadcast) == size {
		info.Broadcast = net.IP(append([]byte(nil), e.Broadcast...))
	}
	return info, nil
}

// Options control how the table is filtered.
type Options struct {
	// ExcludeLinkLayer drop link-layer rows, and rows without an address,
	// before conversion.
	ExcludeLinkLayer bool
	Logger           log.FieldLogger
}

// DefaultOptions the options appropriate to the platform. On Linux the table
// has one packet-socket row per interface, which is excluded; the BSD family
// reports AF_LINK rows that are kept.
func DefaultOptions() Options {
	return Options{
		ExcludeLinkLayer: defaultExcludeLinkLayer,
		Logger:           log.StandardLogger(),
	}
}

// Enumerator list interfaces from a Source.
type Enumerator struct {
	source Source
	opts   Options
}

// NewEnumerator enumerator over src. A nil Logger in opts uses the logrus standard logger.
func NewEnumerator(src Source, opts Options) *Enumerator {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Enumerator{source: src, opts: opts}
}

// List fetch the table and convert every row. Rows that fail conversion are
// logged and left out; only a failure to fetch the table is returned.
func (en *Enumerator) List() ([]InterfaceInfo, error) {
	table, err := en.source.Fetch()
	if err != nil {
		return nil, fmt.Errorf("unable to read interface table: %w", err)
	}
	defer func() {
		if err := table.Close(); err != nil {
			en.opts.Logger.WithError(err).Warn("unable to release interface table")
		}
	}()

	entries := table.Entries()
	res := make([]InterfaceInfo, 0, len(entries))
	for _, e := range entries {
		if en.opts.ExcludeLinkLayer && (e.Family == linkLayerFamily || len(e.Addr) == 0) {
			continue
		}
		info, err := NewInterfaceInfo(e)
		if err != nil {
			en.opts.Logger.WithFields(log.Fields{
				"iface":  e.Name,
				"index":  e.Index,
				"family": e.Family,
			}).WithError(err).Warn("skipping interface entry")
			continue
		}
		res = append(res, info)
	}
	return res, nil
}

// ListInterfaces list the host's interfaces with the platform defaults.
func ListInterfaces() ([]InterfaceInfo, error) {
	return NewEnumerator(NativeSource(), DefaultOptions()).List()
}
