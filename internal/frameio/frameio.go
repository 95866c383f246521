// Package frameio is the collaborator boundary between the switch core and
// the underlying packet-capture mechanism. The core never imports a capture
// library directly; it depends only on this interface, so the data-plane and
// snooping logic can be exercised against frameio/fake without root
// privileges or a real NIC.
package frameio

import (
	"errors"

	"github.com/malbeclabs/l2switch/internal/mac"
)

// ErrTransient is returned by Handle.Recv when the capture layer produced no
// frame this call (e.g. a read timeout used to poll for cancellation). The
// caller is expected to retry.
var ErrTransient = errors.New("frameio: transient receive, retry")

// Handle is a single open capture/transmit binding to one NIC.
type Handle interface {
	// Recv blocks until a frame is available, the handle is closed, or a
	// transient condition occurs (ErrTransient). The returned slice is
	// owned by the caller.
	Recv() ([]byte, error)
	// Send transmits b on the bound NIC.
	Send(b []byte) error
	// Close releases the capture handle. Recv unblocks with ErrTransient or
	// an error wrapping net.ErrClosed-like semantics after Close.
	Close() error
}

// Opener opens a named NIC for capture and transmit. The production
// implementation is pcap.Opener; tests use fake.Opener.
type Opener interface {
	Open(name string) (Handle, error)
}

// Device describes one NIC as reported by the platform's device enumerator.
type Device struct {
	Name     string
	Loopback bool
	HWAddr   mac.Addr
}

// Enumerator lists candidate NICs. The production implementation is backed
// by gopacket/pcap.FindAllDevs; tests use fake.Enumerator.
type Enumerator interface {
	ListDevices() ([]Device, error)
}

// Valid reports whether d is eligible for switching: it must not be a
// loopback device and must carry a non-zero hardware address.
func Valid(d Device) bool {
	if d.Loopback {
		return false
	}
	return d.HWAddr != mac.Addr{}
}
