// Package cam implements the switch's content-addressable MAC learning
// table: a fixed-capacity map from source MAC to the port it was last seen
// on, with TTL-based aging and a reserved slot 0 holding the miss-default
// port.
package cam

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/l2switch/internal/mac"
	"github.com/malbeclabs/l2switch/internal/port"
)

// DefaultCapacity is the table's default slot count C, excluding the
// reserved default-port slot.
const DefaultCapacity = 512

// DefaultMinTTL is the default minimum age, in seconds, before an entry is
// eligible for cleanup.
const DefaultMinTTL = 300 * time.Second

// entry is one occupied slot: the port a MAC was last observed on, and the
// clock time (at the clock's full resolution) it was last touched (by
// insert or by a successful Find).
type entry struct {
	mac mac.Addr
	p   port.Port
	ts  time.Time
}

// Entry is a point-in-time, read-only view of one occupied CAM slot,
// returned by Snapshot for the REPL's `cam` command.
type Entry struct {
	MAC      mac.Addr
	PortName string
	Age      time.Duration
}

// Table is the fixed-capacity MAC→Port learning table described in
// SPEC_FULL.md §4.1. The zero value is not usable; construct with New.
type Table struct {
	mu sync.RWMutex

	capacity int
	minTTL   time.Duration
	clock    clockwork.Clock

	defaultPort port.Port
	byMAC       map[mac.Addr]int // mac -> slot index in {1..capacity}
	slots       map[int]entry    // occupied slot index -> entry
	free        []int            // free slot indices, order arbitrary
}

// New constructs a Table with the given capacity. clock may be nil, in
// which case a real wall clock is used; tests typically pass a
// clockwork.NewFakeClock() to control TTL expiry deterministically.
func New(capacity int, clock clockwork.Clock) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	free := make([]int, capacity)
	for i := range free {
		free[i] = i + 1 // slot 0 is reserved for the default port
	}
	return &Table{
		capacity: capacity,
		minTTL:   DefaultMinTTL,
		clock:    clock,
		byMAC:    make(map[mac.Addr]int),
		slots:    make(map[int]entry),
		free:     free,
	}
}

// SetDefaultPort installs the port returned on a lookup miss. Intended to
// be called once during startup, before any reader goroutine is started.
func (t *Table) SetDefaultPort(p port.Port) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultPort = p
}

// SetMinTTL updates the aging threshold; it takes effect at the next
// Cleanup call.
func (t *Table) SetMinTTL(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minTTL = d
}

// Capacity returns C, the table's fixed slot count (excluding slot 0).
func (t *Table) Capacity() int {
	return t.capacity
}

// Insert learns or refreshes the binding for m. A broadcast MAC is silently
// ignored. If m is already known, its port is overwritten with p (most
// recent observation wins, preventing port-flap oscillation) and its
// timestamp is refreshed. Otherwise, if a free slot exists, it is claimed;
// if the table is full, the observation is silently dropped.
func (t *Table) Insert(m mac.Addr, p port.Port) {
	if m.IsBroadcast() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if slot, ok := t.byMAC[m]; ok {
		t.slots[slot] = entry{mac: m, p: p, ts: now}
		return
	}

	if len(t.free) == 0 {
		return // full table, unknown MAC: drop, no eviction
	}

	slot := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.byMAC[m] = slot
	t.slots[slot] = entry{mac: m, p: p, ts: now}
}

// Find returns the broadcast-equivalent default routing for a broadcast
// MAC without touching the table, the learned port for m on a hit
// (refreshing its timestamp), or the default port on a miss.
//
// Find takes the table's write lock even on a hit, per the Open Question
// decision recorded in DESIGN.md/SPEC_FULL.md §9: the timestamp touch is
// folded into the same critical section as the lookup so the table's slot
// invariants stay trivially provable.
func (t *Table) Find(m mac.Addr, broadcastPort port.Port) port.Port {
	if m.IsBroadcast() {
		return broadcastPort
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.byMAC[m]
	if !ok {
		return t.defaultPort
	}
	e := t.slots[slot]
	e.ts = t.clock.Now()
	t.slots[slot] = e
	return e.p
}

// Cleanup drops every entry whose age is at least the configured minimum
// TTL, returning its slot to the free pool. Candidate keys are collected in
// a first pass and deleted in a second, avoiding any reliance on Go's
// unspecified map-mutation-during-range ordering.
func (t *Table) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	var expired []int
	for slot, e := range t.slots {
		if now.Sub(e.ts) >= t.minTTL {
			expired = append(expired, slot)
		}
	}
	for _, slot := range expired {
		e := t.slots[slot]
		delete(t.byMAC, e.mac)
		delete(t.slots, slot)
		t.free = append(t.free, slot)
	}
}

// Len reports the number of occupied slots.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots)
}

// Snapshot returns a point-in-time, MAC-sorted copy of every occupied
// entry, for the REPL's `cam` command and for tests.
func (t *Table) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock.Now()
	out := make([]Entry, 0, len(t.slots))
	for _, e := range t.slots {
		out = append(out, Entry{MAC: e.mac, PortName: e.p.Name(), Age: now.Sub(e.ts)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC.Compare(out[j].MAC) < 0 })
	return out
}

// String renders the CAM table the way the REPL's `cam` command does:
// a header, one line per entry, and a "-- Total n / C --" footer.
func (t *Table) String() string {
	entries := t.Snapshot()
	var b strings.Builder
	fmt.Fprintln(&b, "MAC address  Port  Age")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s  %ds\n", e.MAC, e.PortName, int(e.Age.Seconds()))
	}
	fmt.Fprintf(&b, "-- Total %d / %d --\n", len(entries), t.capacity)
	return b.String()
}
