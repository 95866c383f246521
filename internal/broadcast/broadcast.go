// Package broadcast implements the all-interfaces fan-out port, used both
// as the CAM's miss-default and for frames addressed to the Ethernet
// broadcast address.
package broadcast

import (
	"github.com/malbeclabs/l2switch/internal/iface"
	"github.com/malbeclabs/l2switch/internal/port"
)

// Broadcast is a port.Port that fans a frame out to every interface in its
// stack except an optional ingress.
type Broadcast struct {
	id    port.ID
	stack *iface.Stack
}

// New creates a Broadcast fanning out over stack.
func New(stack *iface.Stack) *Broadcast {
	return &Broadcast{id: port.NextID(), stack: stack}
}

// ID implements port.Port.
func (b *Broadcast) ID() port.ID { return b.id }

// Name implements port.Port.
func (b *Broadcast) Name() string { return "Broadcast" }

// Send implements port.Port: it iterates the interface stack in
// registration order and invokes Interface.Send on each, so the ingress
// filter on each interface naturally suppresses reflection back onto the
// frame's arrival port.
func (b *Broadcast) Send(frame []byte, ingress port.Port) {
	for _, i := range b.stack.All() {
		i.Send(frame, ingress)
	}
}

// SendAll implements port.Port.
func (b *Broadcast) SendAll(frame []byte) {
	b.Send(frame, nil)
}
