package pcap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gopacket/gopacket/layers"
)

var (
	// ErrInvalidMagic the first four bytes are not a pcap magic number in either byte order
	ErrInvalidMagic = errors.New("invalid magic number")
	// ErrHeaderTruncated fewer than HeaderSize bytes were available
	ErrHeaderTruncated = errors.New("header truncated")
)

// GlobalHeader the global header found at the start of a capture file.
type GlobalHeader struct {
	// ByteSwapped is set by Decode when the file was written in big-endian order.
	// It is never written back; Encode always produces little-endian output.
	ByteSwapped bool

	VersionMajor     uint16
	VersionMinor     uint16
	TimezoneOffset   int32 // seconds east of UTC, in practice always 0
	AccuracyFigures  uint32
	MaxCaptureLength uint32 // snaplen
	LinkType         uint32
}

// NewGlobalHeader header for a version 2.4 file with the given snaplen and link type.
func NewGlobalHeader(maxCaptureLength, linkType uint32) GlobalHeader {
	return GlobalHeader{
		VersionMajor:     VersionMajor,
		VersionMinor:     VersionMinor,
		MaxCaptureLength: maxCaptureLength,
		LinkType:         linkType,
	}
}

// Version return the major and minor format version.
func (h GlobalHeader) Version() (major, minor uint16) {
	return h.VersionMajor, h.VersionMinor
}

// ByteOrder the byte order the header was decoded from.
func (h GlobalHeader) ByteOrder() binary.ByteOrder {
	if h.ByteSwapped {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// LinkLayer return the link type as understood by gopacket, so it can be used
// with gopacket.NewPacketSource or printed by name.
func (h GlobalHeader) LinkLayer() layers.LinkType {
	return layers.LinkType(h.LinkType)
}

func (h GlobalHeader) String() string {
	return fmt.Sprintf("pcap v%d.%d, link type %s (%d), snaplen %d, thiszone %d, sigfigs %d, swapped %t",
		h.VersionMajor, h.VersionMinor, h.LinkLayer(), h.LinkType, h.MaxCaptureLength,
		h.TimezoneOffset, h.AccuracyFigures, h.ByteSwapped)
}

// Decode read and validate a global header from r. Exactly HeaderSize bytes are
// consumed on success.
func Decode(r io.Reader) (GlobalHeader, error) {
	var (
		hdr GlobalHeader
		buf [HeaderSize]byte
	)
	n, err := io.ReadFull(r, buf[:])
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// short input, judged below once we know whether the magic is valid
	default:
		return hdr, fmt.Errorf("error reading header: %w", err)
	}
	if n < len(magicCanonical) {
		return hdr, fmt.Errorf("%w: got %d of %d bytes", ErrHeaderTruncated, n, HeaderSize)
	}

	var order binary.ByteOrder
	switch [4]byte(buf[:4]) {
	case magicCanonical:
		order = binary.LittleEndian
	case magicSwapped:
		order = binary.BigEndian
		hdr.ByteSwapped = true
	default:
		return GlobalHeader{}, fmt.Errorf("%w: % x", ErrInvalidMagic, buf[:4])
	}
	if n < HeaderSize {
		return GlobalHeader{}, fmt.Errorf("%w: got %d of %d bytes", ErrHeaderTruncated, n, HeaderSize)
	}

	hdr.VersionMajor = order.Uint16(buf[4:6])
	hdr.VersionMinor = order.Uint16(buf[6:8])
	hdr.TimezoneOffset = int32(order.Uint32(buf[8:12]))
	hdr.AccuracyFigures = order.Uint32(buf[12:16])
	hdr.MaxCaptureLength = order.Uint32(buf[16:20])
	hdr.LinkType = order.Uint32(buf[20:24])
	return hdr, nil
}

// appendCanonical append the canonical little-endian encoding of h to b.
func (h GlobalHeader) appendCanonical(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, MagicNumber)
	b = binary.LittleEndian.AppendUint16(b, h.VersionMajor)
	b = binary.LittleEndian.AppendUint16(b, h.VersionMinor)
	b = binary.LittleEndian.AppendUint32(b, uint32(h.TimezoneOffset))
	b = binary.LittleEndian.AppendUint32(b, h.AccuracyFigures)
	b = binary.LittleEndian.AppendUint32(b, h.MaxCaptureLength)
	b = binary.LittleEndian.AppendUint32(b, h.LinkType)
	return b
}

// Encode write the header to w in canonical byte order. ByteSwapped is ignored,
// so re-encoding a header read from a big-endian file normalizes it.
func (h GlobalHeader) Encode(w io.Writer) error {
	b := h.appendCanonical(make([]byte, 0, HeaderSize))
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h GlobalHeader) MarshalBinary() ([]byte, error) {
	return h.appendCanonical(make([]byte, 0, HeaderSize)), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Trailing bytes beyond
// the header are ignored.
func (h *GlobalHeader) UnmarshalBinary(data []byte) error {
	hdr, err := Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*h = hdr
	return nil
}
