// Package ether provides a non-owning view over the fixed-offset fields of
// an Ethernet II header, without requiring a full gopacket decode for the
// common case where only destination, source, and EtherType are needed.
package ether

import (
	"encoding/binary"
	"errors"

	"github.com/malbeclabs/l2switch/internal/mac"
)

// HeaderLen is the length in bytes of an Ethernet II header (no 802.1Q tag).
const HeaderLen = 14

// EtherTypeIPv4 is the EtherType value for an IPv4 payload.
const EtherTypeIPv4 = 0x0800

// ErrShortFrame is returned when a frame is too short to contain a full
// Ethernet header.
var ErrShortFrame = errors.New("ether: frame shorter than header")

// Header is a view over the first 14 bytes of frame. It does not copy or
// retain frame beyond the lifetime of the call that parsed it.
type Header struct {
	Dst       mac.Addr
	Src       mac.Addr
	EtherType uint16
}

// Parse reads the destination MAC (offset 0), source MAC (offset 6), and
// EtherType (offset 12, network byte order) from frame.
func Parse(frame []byte) (Header, error) {
	if len(frame) < HeaderLen {
		return Header{}, ErrShortFrame
	}
	return Header{
		Dst:       mac.Parse(frame[0:6]),
		Src:       mac.Parse(frame[6:12]),
		EtherType: binary.BigEndian.Uint16(frame[12:14]),
	}, nil
}

// IsIPv4 reports whether the header's EtherType is IPv4.
func (h Header) IsIPv4() bool {
	return h.EtherType == EtherTypeIPv4
}
