package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/muxboard/muxboard/internal/pane"
	"github.com/muxboard/muxboard/internal/tmux"
)

// StreamManager owns the live PaneStream instances, one per attached
// pane. It is the attach backend the pool orchestration drives: Attach
// and Detach do the real tmux I/O whose outcome is reported back into
// the pool.
type StreamManager struct {
	mu      sync.RWMutex
	streams map[pane.Identity]*PaneStream
	ctx     context.Context
	exec    tmux.Executor
}

// NewStreamManager creates a manager running against the given executor.
func NewStreamManager(exec tmux.Executor) *StreamManager {
	return &StreamManager{
		streams: make(map[pane.Identity]*PaneStream),
		exec:    exec,
	}
}

// SetContext sets the Wails runtime context used for event emission.
func (sm *StreamManager) SetContext(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.ctx = ctx
}

// Attach brings a pane live: emits its history for scrollback preload,
// enables pipe-pane mirroring and starts the tailer. Returns an error
// if the pane cannot be attached; the caller reports that to the pool.
//
// The slot is reserved with a nil placeholder before the subprocess I/O
// runs, so concurrent Attach calls for the same pane are no-ops but a
// slow tmux call never holds the lock against Detach or Count.
func (sm *StreamManager) Attach(id pane.Identity) error {
	sm.mu.Lock()
	if _, exists := sm.streams[id]; exists {
		sm.mu.Unlock()
		return nil // already attached or attach in flight
	}
	sm.streams[id] = nil
	ctx := sm.ctx
	sm.mu.Unlock()

	target := id.Target()

	// History preload is best-effort; a pane with no scrollback is fine.
	history, err := sm.exec.CapturePane(target, 0)
	if err != nil {
		debugLog("[ATTACH] capture-pane %s: %v", target, err)
	} else if len(history) > 0 && ctx != nil {
		content := normalizeCRLF(sanitizeHistory(history))
		runtime.EventsEmit(ctx, "pane:history",
			PaneEvent{Target: target, Data: content})
	}

	logPath := paneStreamLogPath(id)
	if err := sm.exec.EnablePipePane(target, logPath); err != nil {
		sm.release(id)
		return fmt.Errorf("attach %s: %w", target, err)
	}

	stream := NewPaneStream(ctx, id, logPath)
	if err := stream.Start(); err != nil {
		_ = sm.exec.DisablePipePane(target)
		sm.release(id)
		return fmt.Errorf("attach %s: %w", target, err)
	}

	sm.mu.Lock()
	if _, reserved := sm.streams[id]; !reserved {
		// Detached while the attach was in flight; undo what we built.
		sm.mu.Unlock()
		_ = sm.exec.DisablePipePane(target)
		stream.Cleanup()
		return fmt.Errorf("attach %s: pane detached mid-attach", target)
	}
	sm.streams[id] = stream
	sm.mu.Unlock()
	return nil
}

// release drops a nil reservation left behind by a failed attach.
func (sm *StreamManager) release(id pane.Identity) {
	sm.mu.Lock()
	if stream, ok := sm.streams[id]; ok && stream == nil {
		delete(sm.streams, id)
	}
	sm.mu.Unlock()
}

// Detach tears down a pane's stream. Fire-and-forget from the pool's
// point of view: errors are logged, not propagated into pool state.
func (sm *StreamManager) Detach(id pane.Identity) {
	sm.mu.Lock()
	stream, exists := sm.streams[id]
	delete(sm.streams, id)
	sm.mu.Unlock()

	if !exists {
		return
	}

	if err := sm.exec.DisablePipePane(id.Target()); err != nil {
		debugLog("[DETACH] pipe-pane off %s: %v", id.Target(), err)
	}
	if stream != nil { // nil means the attach was still in flight
		stream.Cleanup()
	}
}

// DetachAll tears down every stream. Used at shutdown.
func (sm *StreamManager) DetachAll() error {
	sm.mu.Lock()
	streams := sm.streams
	sm.streams = make(map[pane.Identity]*PaneStream)
	sm.mu.Unlock()

	var errs []error
	for id, stream := range streams {
		if err := sm.exec.DisablePipePane(id.Target()); err != nil {
			errs = append(errs, fmt.Errorf("pipe-pane off %s: %w", id.Target(), err))
		}
		if stream != nil {
			stream.Cleanup()
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of live streams.
func (sm *StreamManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.streams)
}
