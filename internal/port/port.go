// Package port defines the uniform frame-sink abstraction shared by every
// concrete forwarding target in the switch: a physical interface, the
// all-interfaces broadcast sink, and a per-group multicast fan-out.
package port

import "sync/atomic"

// ID is a process-unique, monotonically assigned identifier. The zero value
// never denotes a live port; NextID starts counting at 1.
type ID uint64

var nextID atomic.Uint64

// NextID allocates the next port identifier. Safe for concurrent use.
func NextID() ID {
	return ID(nextID.Add(1))
}

// Port is any frame sink known to the switch. Implementations are an
// *iface.Interface, a *broadcast.Broadcast, or a *mcast.Multicast.
type Port interface {
	// Send hands frame to the port, unless ingress names this same port, in
	// which case the call is a silent no-op. This is the sole mechanism
	// that keeps a frame from being reflected back onto the interface it
	// arrived on.
	Send(frame []byte, ingress Port)
	// SendAll hands frame to the port unconditionally.
	SendAll(frame []byte)
	// Name returns a short human-readable label, used by the REPL and logs.
	Name() string
	// ID returns this port's identifier.
	ID() ID
}

// Same reports whether a and b name the same live port. A nil interface
// value is never the same as any port; otherwise two ports are the same iff
// their IDs match and neither is the zero ID (the concrete types are not
// compared).
func Same(a, b Port) bool {
	if a == nil || b == nil {
		return false
	}
	aid, bid := a.ID(), b.ID()
	return aid != 0 && aid == bid
}
