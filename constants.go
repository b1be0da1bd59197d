package pcap

// constants, see compliant with pcap-linktype(7) and http://www.tcpdump.org/linktypes.html.
const (
	LinkTypeNull     uint32 = 0x0
	LinkTypeEthernet uint32 = 0x01
)

const (
	// HeaderSize size in bytes of the global header at the start of every capture file
	HeaderSize = 24
	// MagicNumber the magic number identifying the format, written little-endian
	MagicNumber uint32 = 0xa1b2c3d4

	VersionMajor uint16 = 2
	VersionMinor uint16 = 4

	// DefaultSnaplen the snapshot length tcpdump uses when none is given
	DefaultSnaplen uint32 = 262144
)

var (
	magicCanonical = [4]byte{0xd4, 0xc3, 0xb2, 0xa1}
	magicSwapped   = [4]byte{0xa1, 0xb2, 0xc3, 0xd4}
)
