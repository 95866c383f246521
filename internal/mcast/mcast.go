// Package mcast implements IPv4 multicast group membership and forwarding:
// one Multicast port per group, fanning frames to the elected IGMP querier
// and the group's member interfaces, plus a Stack registry tying groups to
// the current querier.
package mcast

import (
	"sync"

	"github.com/malbeclabs/l2switch/internal/iface"
	"github.com/malbeclabs/l2switch/internal/port"
)

// GroupKey is an IPv4 multicast group address, stored as its 32-bit
// network-order value.
type GroupKey uint32

// Multicast is a port.Port fanning a frame to the elected querier plus the
// group's current member interfaces. It may only be constructed by a Stack,
// which guarantees a querier is already recorded.
type Multicast struct {
	id      port.ID
	group   GroupKey
	stack   *Stack
	mu      sync.RWMutex
	members map[port.ID]*iface.Interface
}

func newMulticast(stack *Stack, group GroupKey) *Multicast {
	return &Multicast{
		id:      port.NextID(),
		group:   group,
		stack:   stack,
		members: make(map[port.ID]*iface.Interface),
	}
}

// ID implements port.Port.
func (m *Multicast) ID() port.ID { return m.id }

// Name implements port.Port.
func (m *Multicast) Name() string { return "Multicast" }

// Group returns the IPv4 group this port serves.
func (m *Multicast) Group() GroupKey { return m.group }

// Add registers i as a member of the group.
func (m *Multicast) Add(i *iface.Interface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[i.ID()] = i
}

// Remove drops i from the group's member set. If the group becomes empty,
// the owning Stack is asked to garbage-collect it.
func (m *Multicast) Remove(i *iface.Interface) {
	m.mu.Lock()
	empty := false
	if _, ok := m.members[i.ID()]; ok {
		delete(m.members, i.ID())
		empty = len(m.members) == 0
	}
	m.mu.Unlock()

	if empty {
		m.stack.cleanupGroup(m.group)
	}
}

// Members returns a snapshot of the current member interfaces.
func (m *Multicast) Members() []*iface.Interface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*iface.Interface, 0, len(m.members))
	for _, i := range m.members {
		out = append(out, i)
	}
	return out
}

// Send delivers frame to the stack's current querier and to every member,
// each call applying the ingress filter independently. If the querier is
// also a member and is not the ingress, it receives the frame twice — this
// preserves the documented non-deduplicated forwarding behavior rather than
// collapsing the two sends.
//
// TODO: a dedup option (skip the member send when the member equals the
// querier) was considered and intentionally not implemented; see DESIGN.md.
func (m *Multicast) Send(frame []byte, ingress port.Port) {
	querier := m.stack.Querier()
	if querier == nil {
		return
	}

	querier.Send(frame, ingress)

	m.mu.RLock()
	members := make([]*iface.Interface, 0, len(m.members))
	for _, i := range m.members {
		members = append(members, i)
	}
	m.mu.RUnlock()

	for _, i := range members {
		i.Send(frame, ingress)
	}
}

// SendAll implements port.Port.
func (m *Multicast) SendAll(frame []byte) {
	m.Send(frame, nil)
}

// Stack is the process-wide registry of multicast groups plus the elected
// IGMP querier.
type Stack struct {
	mu        sync.RWMutex
	groups    map[GroupKey]*Multicast
	querier   *iface.Interface
	broadcast port.Port
}

// New constructs an empty Stack. broadcast is used to fan query frames to
// every interface via SendQuery.
func New(broadcast port.Port) *Stack {
	return &Stack{
		groups:    make(map[GroupKey]*Multicast),
		broadcast: broadcast,
	}
}

// Querier returns the currently elected querier interface, or nil if none
// has been observed yet.
func (s *Stack) Querier() *iface.Interface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querier
}

// SendQuery records querier as the elected IGMP querier, overwriting any
// prior election, and fans frame to every interface with querier as
// ingress.
func (s *Stack) SendQuery(querier *iface.Interface, frame []byte) {
	s.mu.Lock()
	s.querier = querier
	s.mu.Unlock()

	s.broadcast.Send(frame, querier)
}

// SendResponse forwards frame to the recorded querier, applying the
// ingress filter. If no querier has been recorded, the frame is dropped.
func (s *Stack) SendResponse(frame []byte, ingress port.Port) {
	s.mu.RLock()
	querier := s.querier
	s.mu.RUnlock()

	if querier == nil {
		return
	}
	querier.Send(frame, ingress)
}

// GetOrCreate returns the Multicast port for g, creating it if absent. It
// returns nil if no querier has been recorded, since a group may only be
// created once a querier exists.
func (s *Stack) GetOrCreate(g GroupKey) *Multicast {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.querier == nil {
		return nil
	}
	if m, ok := s.groups[g]; ok {
		return m
	}
	m := newMulticast(s, g)
	s.groups[g] = m
	return m
}

// Find returns the Multicast port for g without creating it.
func (s *Stack) Find(g GroupKey) (*Multicast, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.groups[g]
	return m, ok
}

// Len returns the number of groups currently tracked.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups)
}

// cleanupGroup removes g from the registry if it is still empty. Used by
// Multicast.Remove to GC a group the instant its last member leaves.
func (s *Stack) cleanupGroup(g GroupKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.groups[g]
	if !ok {
		return
	}
	if len(m.Members()) == 0 {
		delete(s.groups, g)
	}
}

// Cleanup removes and destroys every group whose member set is empty.
// Candidate keys are collected in a first pass and deleted in a second,
// avoiding any reliance on Go's unspecified map-mutation-during-range
// ordering.
func (s *Stack) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var empty []GroupKey
	for g, m := range s.groups {
		if len(m.Members()) == 0 {
			empty = append(empty, g)
		}
	}
	for _, g := range empty {
		delete(s.groups, g)
	}
}

// Groups returns a snapshot of every tracked group key, for the REPL's
// `igmp` command and for tests.
func (s *Stack) Groups() []GroupKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]GroupKey, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	return out
}
