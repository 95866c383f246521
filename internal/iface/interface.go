// Package iface implements the Interface port: a switch port backed by one
// physical NIC, and the process-wide ordered registry of such interfaces.
package iface

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/malbeclabs/l2switch/internal/frameio"
	"github.com/malbeclabs/l2switch/internal/port"
)

// Interface is a port.Port backed by one frameio.Handle. It owns the
// handle's lifetime and tracks sent/received byte and frame counts.
type Interface struct {
	id     port.ID
	name   string
	handle frameio.Handle

	sendMu sync.Mutex

	sentBytes  atomic.Uint64
	sentFrames atomic.Uint64
	recvBytes  atomic.Uint64
	recvFrames atomic.Uint64
}

// New wraps an already-open handle as a switch Interface.
func New(name string, handle frameio.Handle) *Interface {
	return &Interface{
		id:     port.NextID(),
		name:   name,
		handle: handle,
	}
}

// ID implements port.Port.
func (i *Interface) ID() port.ID { return i.id }

// Name implements port.Port.
func (i *Interface) Name() string { return i.name }

// Send implements port.Port: it no-ops when ingress is this same interface,
// otherwise transmits frame and updates the sent counters atomically with
// the transmit call.
func (i *Interface) Send(frame []byte, ingress port.Port) {
	if port.Same(i, ingress) {
		return
	}
	i.SendAll(frame)
}

// SendAll implements port.Port: it always transmits, regardless of ingress.
func (i *Interface) SendAll(frame []byte) {
	i.sendMu.Lock()
	defer i.sendMu.Unlock()

	if err := i.handle.Send(frame); err != nil {
		// A send failure is not one of the fatal programming invariants in
		// §7; the error is discarded without logging and the counters are
		// left untouched.
		return
	}
	i.sentBytes.Add(uint64(len(frame)))
	i.sentFrames.Add(1)
}

// Recv blocks until a frame is captured. Transient conditions are returned
// as frameio.ErrTransient for the caller to retry; any other error is
// returned unwrapped for the trafficloop to treat as fatal to this
// interface's worker.
func (i *Interface) Recv() ([]byte, error) {
	b, err := i.handle.Recv()
	if err != nil {
		return nil, err
	}
	i.recvBytes.Add(uint64(len(b)))
	i.recvFrames.Add(1)
	return b, nil
}

// Close releases the underlying capture handle.
func (i *Interface) Close() error {
	return i.handle.Close()
}

// Counters is a point-in-time snapshot of an interface's traffic counters.
type Counters struct {
	SentBytes, SentFrames, RecvBytes, RecvFrames uint64
}

// Counters returns a snapshot of i's current counters.
func (i *Interface) Counters() Counters {
	return Counters{
		SentBytes:  i.sentBytes.Load(),
		SentFrames: i.sentFrames.Load(),
		RecvBytes:  i.recvBytes.Load(),
		RecvFrames: i.recvFrames.Load(),
	}
}

// String renders a short debug form, e.g. for log fields.
func (i *Interface) String() string {
	return fmt.Sprintf("iface(%s)", i.name)
}
