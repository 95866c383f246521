// Package fake provides an in-memory frameio.Opener/Enumerator so the
// data-plane and snooping core can be exercised in tests without a real NIC
// or elevated privileges, mirroring the channel-backed mockPacketConn used
// in the teacher's multicast listener tests.
package fake

import (
	"sync"

	"github.com/malbeclabs/l2switch/internal/frameio"
	"github.com/malbeclabs/l2switch/internal/mac"
)

// Handle is an in-memory frameio.Handle backed by channels. Injecting a
// frame into Inbound makes it available to Recv; frames handed to Send are
// recorded and can be drained from Outbound, except that a frame sent after
// Close or while Outbound is full is discarded.
type Handle struct {
	Inbound  chan []byte
	Outbound chan []byte

	mu     sync.Mutex
	closed bool
}

// NewHandle creates a ready-to-use fake handle with buffered channels.
func NewHandle(buffer int) *Handle {
	return &Handle{
		Inbound:  make(chan []byte, buffer),
		Outbound: make(chan []byte, buffer),
	}
}

// Recv implements frameio.Handle.
func (h *Handle) Recv() ([]byte, error) {
	b, ok := <-h.Inbound
	if !ok {
		return nil, frameio.ErrTransient
	}
	return b, nil
}

// Send implements frameio.Handle.
func (h *Handle) Send(b []byte) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case h.Outbound <- cp:
	default:
	}
	return nil
}

// Close implements frameio.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.Inbound)
	return nil
}

// Deliver injects a frame as if it had been captured off the wire. It is
// safe to call concurrently with Recv.
func (h *Handle) Deliver(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.Inbound <- frame
}

// Opener hands out pre-registered Handles by name.
type Opener struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewOpener creates an Opener with no registered handles.
func NewOpener() *Opener {
	return &Opener{handles: make(map[string]*Handle)}
}

// Register associates name with a handle that Open will return.
func (o *Opener) Register(name string, h *Handle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handles[name] = h
}

// Open implements frameio.Opener.
func (o *Opener) Open(name string) (frameio.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.handles[name]
	if !ok {
		h = NewHandle(16)
		o.handles[name] = h
	}
	return h, nil
}

// Enumerator reports a fixed, caller-supplied device list.
type Enumerator struct {
	Devices []frameio.Device
}

// ListDevices implements frameio.Enumerator.
func (e Enumerator) ListDevices() ([]frameio.Device, error) {
	return e.Devices, nil
}

// Device is a convenience constructor for a valid (non-loopback,
// non-zero-hwaddr) fake device.
func Device(name string, hw [mac.Size]byte) frameio.Device {
	return frameio.Device{Name: name, Loopback: false, HWAddr: mac.Addr(hw)}
}
