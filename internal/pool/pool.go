// Package pool implements the capacity-bounded set of live pane
// connections. It is a pure state machine: it decides when a pane may be
// attached and tracks the outcome, but never performs the attach I/O
// itself and never emits events or log lines. Callers react to the
// returned errors and drive notification at the boundary.
package pool

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/muxboard/muxboard/internal/pane"
)

// DefaultCapacity is the default maximum number of panes that may be
// Connecting or Connected at once.
const DefaultCapacity = 6

// Rejection outcomes. All of them are local, recoverable conditions: a
// misordered or duplicate call degrades to a rejected no-op and never
// corrupts the entry map.
var (
	// ErrCapacityExceeded is returned by Connect when every slot is
	// already reserved by a Connecting or Connected entry.
	ErrCapacityExceeded = errors.New("pool capacity exceeded")

	// ErrAlreadyPresent is returned by Connect when the identity already
	// holds a slot.
	ErrAlreadyPresent = errors.New("pane already connecting or connected")

	// ErrNotConnecting is returned by Confirm and Fail when the identity
	// has no Connecting entry, e.g. a disconnect raced the attach and
	// cancelled it. The late call is a safe no-op; it never resurrects
	// an entry.
	ErrNotConnecting = errors.New("pane is not connecting")

	// ErrNotPresent is returned by Disconnect for an identity with no
	// entry. Disconnect is idempotent, so callers can ignore it.
	ErrNotPresent = errors.New("pane is not in the pool")
)

// State is the lifecycle state of a pool entry. There is no Disconnected
// state: absence from the pool is disconnected. Disconnecting likewise
// has no entry here; it exists only as the transient caller-side phase
// wrapping snapshot capture and Disconnect, because teardown of the
// underlying stream is the caller's responsibility and the pool's own
// removal is synchronous.
type State int

const (
	// StateConnecting means a capacity slot is reserved and the real
	// attach I/O is in flight.
	StateConnecting State = iota
	// StateConnected means the attach was confirmed.
	StateConnected
)

// String returns the lowercase name used in events and the frontend.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Entry describes one pane's membership. Labels are display metadata
// recorded at confirmation time and are empty while Connecting.
type Entry struct {
	Identity     pane.Identity
	State        State
	SessionLabel string
	PaneLabel    string
	Since        time.Time
}

// Pool is the bounded connection pool. All operations take a single
// mutex around the entry map: two Connect calls racing the capacity
// check is exactly the bug this type exists to prevent, so the check and
// the insert are one critical section. The pool exists once per app
// process; operations are cheap and never block on I/O.
type Pool struct {
	mu       sync.RWMutex
	entries  map[pane.Identity]*Entry
	capacity int

	now func() time.Time // test seam
}

// New creates a pool with the given capacity. Values below 1 fall back
// to DefaultCapacity.
func New(capacity int) *Pool {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Pool{
		entries:  make(map[pane.Identity]*Entry),
		capacity: capacity,
		now:      time.Now,
	}
}

// Capacity returns the configured slot count.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Len returns the number of entries currently holding a slot,
// Connecting and Connected combined.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Connect reserves a capacity slot for the identity and inserts a
// Connecting entry. This is the only operation that can grow the pool,
// and the only place capacity is checked: admission happens before the
// slow, fallible attach I/O begins, so concurrent requests cannot
// overshoot the cap while attaches are in flight (two-phase admission).
//
// Returns nil on admission, ErrAlreadyPresent if the identity already
// holds a slot, or ErrCapacityExceeded when the pool is full. The caller
// owns the real attach after admission and must report its outcome via
// Confirm or Fail.
func (p *Pool) Connect(id pane.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[id]; exists {
		return ErrAlreadyPresent
	}
	if len(p.entries) >= p.capacity {
		return ErrCapacityExceeded
	}

	p.entries[id] = &Entry{
		Identity: id,
		State:    StateConnecting,
		Since:    p.now(),
	}
	return nil
}

// Confirm transitions a Connecting entry to Connected and records its
// display labels. Returns ErrNotConnecting when the entry is absent
// (a disconnect cancelled the pending connect) or already Connected; in
// both cases the map is left untouched.
func (p *Pool) Confirm(id pane.Identity, sessionLabel, paneLabel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, exists := p.entries[id]
	if !exists || e.State != StateConnecting {
		return ErrNotConnecting
	}

	e.State = StateConnected
	e.SessionLabel = sessionLabel
	e.PaneLabel = paneLabel
	e.Since = p.now()
	return nil
}

// Fail removes a Connecting entry whose attach I/O failed out-of-band,
// freeing its slot. Returns ErrNotConnecting when there is no Connecting
// entry, which covers the late-failure-after-cancel race.
func (p *Pool) Fail(id pane.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, exists := p.entries[id]
	if !exists || e.State != StateConnecting {
		return ErrNotConnecting
	}

	delete(p.entries, id)
	return nil
}

// Disconnect removes the entry for the identity whether it was
// Connecting (cancelling the pending connect) or Connected, freeing its
// slot. Snapshot capture, if wanted, must happen before this call while
// the data source is still reachable. Returns ErrNotPresent for an
// absent identity; callers treat that as a no-op, never as a fault.
func (p *Pool) Disconnect(id pane.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[id]; !exists {
		return ErrNotPresent
	}

	delete(p.entries, id)
	return nil
}

// IsConnected reports whether the identity has a Connected entry.
func (p *Pool) IsConnected(id pane.Identity) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.entries[id]
	return exists && e.State == StateConnected
}

// IsConnecting reports whether the identity has a Connecting entry.
func (p *Pool) IsConnecting(id pane.Identity) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.entries[id]
	return exists && e.State == StateConnecting
}

// Entry returns a copy of the entry for the identity, if present.
func (p *Pool) Entry(id pane.Identity) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.entries[id]
	if !exists {
		return Entry{}, false
	}
	return *e, true
}

// Membership returns the authoritative sets of Connected and Connecting
// identities, each sorted by target string so consumers get a stable
// order. The slices are fresh copies; mutating them has no effect on the
// pool.
func (p *Pool) Membership() (connected, connecting []pane.Identity) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for id, e := range p.entries {
		switch e.State {
		case StateConnected:
			connected = append(connected, id)
		case StateConnecting:
			connecting = append(connecting, id)
		}
	}

	sortIdentities(connected)
	sortIdentities(connecting)
	return connected, connecting
}

// Entries returns copies of all entries, sorted by target string.
func (p *Pool) Entries() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.Target() < out[j].Identity.Target()
	})
	return out
}

func sortIdentities(ids []pane.Identity) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Target() < ids[j].Target()
	})
}
