// Package mac implements the 6-byte Ethernet hardware address used to key
// the switch's learning table and to classify frames as unicast, multicast,
// or broadcast.
package mac

import "fmt"

// Size is the length in bytes of an Ethernet MAC address.
const Size = 6

// ipv4MulticastOUI is the organizationally unique identifier IANA reserves
// for mapping IPv4 multicast group addresses onto Ethernet multicast MACs.
var ipv4MulticastOUI = [3]byte{0x01, 0x00, 0x5e}

// Addr is a 6-byte MAC address. The zero value is the all-zero address.
type Addr [Size]byte

// BroadcastAddr is the reserved all-ones Ethernet broadcast address.
var BroadcastAddr = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Parse builds an Addr from a 6-byte slice. It panics if b is shorter than
// Size, since every call site derives the slice from an already-validated
// frame offset.
func Parse(b []byte) Addr {
	var a Addr
	copy(a[:], b[:Size])
	return a
}

// IsBroadcast reports whether a is the all-ones Ethernet broadcast address.
func (a Addr) IsBroadcast() bool {
	return a == BroadcastAddr
}

// IsMulticast reports whether a falls in the IANA-assigned IPv4 multicast
// OUI range (01:00:5e:00:00:00 - 01:00:5e:7f:ff:ff in practice, but the
// switch only inspects the 3-byte OUI, matching the original design).
func (a Addr) IsMulticast() bool {
	return a[0] == ipv4MulticastOUI[0] && a[1] == ipv4MulticastOUI[1] && a[2] == ipv4MulticastOUI[2]
}

// Compare orders two addresses byte-wise as unsigned integers, returning
// -1, 0, or 1. It satisfies the ordering used anywhere entries need a
// deterministic sort, e.g. the REPL's `cam` listing.
func (a Addr) Compare(b Addr) int {
	for i := 0; i < Size; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// String renders the canonical dotted-hex form, e.g. "0011.2233.4455".
func (a Addr) String() string {
	return fmt.Sprintf("%02x%02x.%02x%02x.%02x%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}
