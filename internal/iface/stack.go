package iface

import (
	"fmt"
	"sync"

	"github.com/malbeclabs/l2switch/internal/frameio"
)

// Stack is the process-wide ordered registry of switch interfaces. It is
// constructed once at startup and never mutated concurrently with reads
// from the traffic loops, matching the "process-wide singletons" design
// note: interfaces are enumerated and opened before any worker starts.
type Stack struct {
	mu    sync.RWMutex
	order []*Interface
}

// NewStack returns an empty interface registry.
func NewStack() *Stack {
	return &Stack{}
}

// Add registers i, preserving the order interfaces were added in. Broadcast
// fan-out iterates in this order.
func (s *Stack) Add(i *Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, i)
}

// All returns a snapshot of the registered interfaces in registration
// order.
func (s *Stack) All() []*Interface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Interface, len(s.order))
	copy(out, s.order)
	return out
}

// Len reports the number of registered interfaces.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// CloseAll closes every registered interface's capture handle, collecting
// the first error encountered (if any) while still attempting to close the
// rest.
func (s *Stack) CloseAll() error {
	s.mu.RLock()
	ifaces := make([]*Interface, len(s.order))
	copy(ifaces, s.order)
	s.mu.RUnlock()

	var first error
	for _, i := range ifaces {
		if err := i.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenValid enumerates devices via enum, opens every valid one via opener,
// registers it with the stack, and returns the opened interfaces. It
// returns an error (wrapping the underlying cause) on enumeration failure
// or any individual open failure, matching the startup-error taxonomy in
// §6/§7: the caller is expected to treat this as fatal and exit 1 with an
// "ERROR: " prefixed message.
func OpenValid(enum frameio.Enumerator, opener frameio.Opener, s *Stack) ([]*Interface, error) {
	devices, err := enum.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	var opened []*Interface
	for _, d := range devices {
		if !frameio.Valid(d) {
			continue
		}
		h, err := opener.Open(d.Name)
		if err != nil {
			return nil, fmt.Errorf("open interface %s: %w", d.Name, err)
		}
		i := New(d.Name, h)
		s.Add(i)
		opened = append(opened, i)
	}
	return opened, nil
}
