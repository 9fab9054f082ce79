// Package snapshot retains the last captured state of panes that are no
// longer connected, so the UI can keep showing something useful after a
// pane is evicted from the pool.
package snapshot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/muxboard/muxboard/internal/pane"
)

// DefaultMaxEntries bounds how many snapshots are retained. Snapshots
// are process-lifetime only; the bound keeps memory flat when a user
// churns through many panes.
const DefaultMaxEntries = 64

// ErrCaptureFailed wraps failures of the underlying capture I/O. The
// store guarantees that a failed capture never disturbs a previously
// stored snapshot for the same identity.
var ErrCaptureFailed = errors.New("pane capture failed")

// Capturer reads a pane's current output. *tmux.LocalExecutor satisfies
// this; tests plug in fakes.
type Capturer interface {
	CapturePane(target string, lines int) (string, error)
}

// Snapshot is the last observed state of a pane at disconnection time.
// Newer captures for the same identity supersede older ones.
type Snapshot struct {
	ID           string        `json:"id"`
	Identity     pane.Identity `json:"identity"`
	SessionLabel string        `json:"sessionLabel"`
	PaneLabel    string        `json:"paneLabel"`
	Content      string        `json:"content"`
	CapturedAt   time.Time     `json:"capturedAt"`
}

// Store captures and retains at most one snapshot per pane identity.
// The snapshot map is owned exclusively by the store; everything goes
// through Capture and Get.
type Store struct {
	mu         sync.RWMutex
	capturer   Capturer
	snapshots  map[pane.Identity]Snapshot
	maxEntries int

	captureLines int // history depth handed to the capturer

	now func() time.Time // test seam
}

// NewStore creates a store that captures through c and retains at most
// maxEntries snapshots. maxEntries < 1 falls back to DefaultMaxEntries.
func NewStore(c Capturer, maxEntries int) *Store {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{
		capturer:     c,
		snapshots:    make(map[pane.Identity]Snapshot),
		maxEntries:   maxEntries,
		captureLines: 2000,
		now:          time.Now,
	}
}

// Capture reads the pane's current output and stores it keyed by
// identity, overwriting any previous snapshot. Call it before the pane
// is disconnected: once the backend stream is gone the data source may
// be too.
//
// On capture failure the error wraps ErrCaptureFailed and the prior
// snapshot, if any, is left untouched. Disconnection must still proceed
// after a failed capture; this is best-effort by contract.
func (s *Store) Capture(id pane.Identity, sessionLabel, paneLabel string) (Snapshot, error) {
	content, err := s.capturer.CapturePane(id.Target(), s.captureLines)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrCaptureFailed, id.Target(), err)
	}

	snap := Snapshot{
		ID:           uuid.NewString(),
		Identity:     id,
		SessionLabel: sessionLabel,
		PaneLabel:    paneLabel,
		Content:      content,
		CapturedAt:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = snap
	s.evictLocked()
	return snap, nil
}

// Get returns the retained snapshot for the identity, if any.
func (s *Store) Get(id pane.Identity) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	return snap, ok
}

// Remove drops the snapshot for the identity, if any. Used when a pane
// disappears from the catalog entirely.
func (s *Store) Remove(id pane.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
}

// Len returns the number of retained snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// evictLocked drops the oldest snapshots until the retention bound
// holds. Caller holds s.mu.
func (s *Store) evictLocked() {
	for len(s.snapshots) > s.maxEntries {
		var oldest pane.Identity
		var oldestAt time.Time
		first := true
		for id, snap := range s.snapshots {
			if first || snap.CapturedAt.Before(oldestAt) {
				oldest = id
				oldestAt = snap.CapturedAt
				first = false
			}
		}
		delete(s.snapshots, oldest)
	}
}
