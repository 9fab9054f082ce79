package main

import (
	"context"
	"errors"
	"sync"
	"time"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/muxboard/muxboard/internal/pane"
	"github.com/muxboard/muxboard/internal/pool"
	"github.com/muxboard/muxboard/internal/snapshot"
	"github.com/muxboard/muxboard/internal/tmux"
)

// Version is set at build time via ldflags.
var Version = "0.1.0-dev"

// Admission outcomes surfaced to the frontend. The pool returns typed
// errors; the app folds them into stable strings the UI switches on.
const (
	OutcomeAdmitted       = "admitted"
	OutcomePoolFull       = "pool-full"
	OutcomeAlreadyPresent = "already-present"
	OutcomeUnresolved     = "unresolved"
	OutcomeDisconnected   = "disconnected"
	OutcomeNotPresent     = "not-present"
)

// MembershipEvent is the payload of pool:membership events and the
// PoolMembership read. Targets, not raw identities, so the frontend can
// use them directly as refs.
type MembershipEvent struct {
	Connected  []string `json:"connected"`
	Connecting []string `json:"connecting"`
}

// App holds the application state: the catalog enumerating panes, the
// bounded connection pool deciding which panes are live, the snapshot
// store preserving evicted panes, and the streaming backend doing the
// actual attach I/O.
type App struct {
	ctx       context.Context
	settings  *SettingsManager
	exec      tmux.Executor
	catalog   *tmux.Catalog
	pool      *pool.Pool
	snapshots *snapshot.Store
	streams   *StreamManager
	focus     *FocusTerminal

	// Attach backend seams. Default to the stream manager; tests plug in
	// fakes so the admission protocol can be exercised without tmux.
	attach func(id pane.Identity) error
	detach func(id pane.Identity)
	emit   func(event string, payload ...interface{})

	// attemptMu guards attempts and serializes attach resolution against
	// connect and disconnect. Every admission is tagged with a token;
	// after Connect(A) → Disconnect(A) → Connect(A), the first attach's
	// late outcome carries a stale token and must not touch the second
	// admission's entry or stream.
	attemptMu  sync.Mutex
	attemptSeq uint64
	attempts   map[pane.Identity]uint64

	sweepStop chan struct{}
}

// NewApp creates the application struct with settings applied.
func NewApp() *App {
	settings := NewSettingsManager()
	exec := tmux.DefaultExecutor()

	capacity, err := settings.GetPoolCapacity()
	if err != nil {
		debugLog("[SETTINGS] pool capacity: %v", err)
	}
	maxSnapshots, err := settings.GetSnapshotMaxEntries()
	if err != nil {
		debugLog("[SETTINGS] snapshot retention: %v", err)
	}

	a := &App{
		settings:  settings,
		exec:      exec,
		catalog:   tmux.NewCatalog(exec),
		pool:      pool.New(capacity),
		snapshots: snapshot.NewStore(exec, maxSnapshots),
		streams:   NewStreamManager(exec),
		focus:     NewFocusTerminal(),
		attempts:  make(map[pane.Identity]uint64),
		sweepStop: make(chan struct{}),
	}
	a.attach = a.streams.Attach
	a.detach = a.streams.Detach
	a.emit = a.emitEvent
	return a
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.streams.SetContext(ctx)
	a.focus.SetContext(ctx)
	go a.sweepLoop()
}

// shutdown is called when the app is closing.
func (a *App) shutdown(ctx context.Context) {
	close(a.sweepStop)
	a.focus.Close()
	if err := a.streams.DetachAll(); err != nil {
		debugLog("[SHUTDOWN] %v", err)
	}
}

// emitEvent forwards to the Wails event bus when a frontend is present.
func (a *App) emitEvent(event string, payload ...interface{}) {
	if a.ctx == nil {
		return
	}
	wailsRuntime.EventsEmit(a.ctx, event, payload...)
}

// emitMembership publishes the authoritative pool membership. Called
// after every mutation; the pool itself never emits, notification lives
// here at the boundary.
func (a *App) emitMembership() {
	a.emit("pool:membership", a.PoolMembership())
}

// GetVersion returns the application version.
func (a *App) GetVersion() string {
	return Version
}

// ==================== Catalog ====================

// ListSessions enumerates tmux sessions for the session cards.
func (a *App) ListSessions() ([]tmux.Session, error) {
	return a.catalog.Sessions()
}

// ListPanes enumerates all panes for the grid.
func (a *App) ListPanes() ([]tmux.Pane, error) {
	return a.catalog.Panes()
}

// ==================== Pool lifecycle ====================

// ConnectPane requests that a pane become live. ref is either a full
// session:window.pane target or a bare session name placeholder.
//
// Resolution failure is a no-op that reserves nothing. On admission the
// capacity slot is held immediately and the real attach runs in the
// background; its outcome arrives later as a pool:connected or
// pool:connectfailed event followed by pool:membership.
func (a *App) ConnectPane(ref string) string {
	p, err := a.catalog.Resolve(ref)
	if err != nil {
		debugLog("[POOL] resolve %q: %v", ref, err)
		a.emit("pool:unresolved", ref)
		return OutcomeUnresolved
	}

	a.attemptMu.Lock()
	err = a.pool.Connect(p.Identity)
	var token uint64
	if err == nil {
		a.attemptSeq++
		token = a.attemptSeq
		a.attempts[p.Identity] = token
	}
	a.attemptMu.Unlock()

	if err != nil {
		switch {
		case errors.Is(err, pool.ErrCapacityExceeded):
			return OutcomePoolFull
		case errors.Is(err, pool.ErrAlreadyPresent):
			return OutcomeAlreadyPresent
		default:
			debugLog("[POOL] connect %s: %v", p.Target, err)
			return OutcomeUnresolved
		}
	}

	a.emitMembership()
	go a.completeAttach(p, token)
	return OutcomeAdmitted
}

// completeAttach performs the attach I/O for an admitted pane and
// resolves its reserved slot. token identifies the admission: if the
// pane was disconnected and re-admitted while the attach ran, the token
// no longer matches and this outcome belongs to a dead attempt, which
// must not fail, confirm or detach the newer admission.
func (a *App) completeAttach(p tmux.Pane, token uint64) {
	id := p.Identity
	attachErr := a.attach(id)

	a.attemptMu.Lock()
	if a.attempts[id] != token {
		// Superseded or cancelled while the attach ran. Any live stream
		// now belongs to a newer admission; only clean up when nothing
		// holds the slot anymore.
		orphaned := attachErr == nil && !a.pool.IsConnecting(id) && !a.pool.IsConnected(id)
		a.attemptMu.Unlock()
		debugLog("[POOL] stale attach outcome for %s dropped", p.Target)
		if orphaned {
			a.detach(id)
		}
		return
	}
	delete(a.attempts, id)

	if attachErr != nil {
		debugLog("[POOL] attach %s failed: %v", p.Target, attachErr)
		_ = a.pool.Fail(id)
		a.attemptMu.Unlock()
		a.emit("pool:connectfailed", p.Target)
		a.emitMembership()
		return
	}

	label := p.Title
	if label == "" {
		label = p.Command
	}
	confirmErr := a.pool.Confirm(id, id.Session, label)
	a.attemptMu.Unlock()
	if confirmErr != nil {
		// A disconnect raced the attach and won. The stream we just
		// brought up has no slot; tear it back down.
		debugLog("[POOL] late confirm %s: %v", p.Target, confirmErr)
		a.detach(id)
		return
	}

	a.emit("pool:connected", p.Target)
	a.emitMembership()
}

// DisconnectPane removes a pane from the pool, capturing a snapshot
// first while the data source is still reachable. Works on Connected
// panes and cancels Connecting ones. Disconnecting an absent pane is a
// reported no-op, never a fault.
func (a *App) DisconnectPane(target string) string {
	id, err := pane.ParseTarget(target)
	if err != nil {
		debugLog("[POOL] disconnect %q: %v", target, err)
		return OutcomeNotPresent
	}

	if entry, ok := a.pool.Entry(id); ok && entry.State == pool.StateConnected {
		// Best-effort: a failed capture must never block disconnection.
		if _, err := a.snapshots.Capture(id, entry.SessionLabel, entry.PaneLabel); err != nil {
			debugLog("[SNAPSHOT] %s: %v", target, err)
		}
	}

	a.attemptMu.Lock()
	delete(a.attempts, id) // cancels any in-flight attach's claim
	err = a.pool.Disconnect(id)
	a.attemptMu.Unlock()
	if err != nil {
		return OutcomeNotPresent
	}

	a.detach(id)
	a.emitMembership()
	return OutcomeDisconnected
}

// handlePaneLoss handles a pane whose backend died while it was in the
// pool: attempt a capture (tolerating failure, the source may already
// be gone), free the slot, tear down the stream.
func (a *App) handlePaneLoss(id pane.Identity) {
	entry, ok := a.pool.Entry(id)
	if !ok {
		return
	}

	if entry.State == pool.StateConnected {
		if _, err := a.snapshots.Capture(id, entry.SessionLabel, entry.PaneLabel); err != nil {
			debugLog("[SNAPSHOT] loss capture %s: %v", id.Target(), err)
		}
	}

	a.attemptMu.Lock()
	delete(a.attempts, id)
	err := a.pool.Disconnect(id)
	a.attemptMu.Unlock()
	if err != nil {
		return // already gone, nothing to announce
	}

	a.detach(id)
	a.emit("pool:lost", id.Target())
	a.emitMembership()
}

// sweepLoop periodically reconciles pool membership against the catalog
// so panes that died without the UI asking for a disconnect are
// reported as lost.
func (a *App) sweepLoop() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.sweepStop:
			return
		case <-ticker.C:
			a.sweepLostPanes()
		}
	}
}

// sweepLostPanes disconnects Connected panes that are no longer alive
// in the catalog.
func (a *App) sweepLostPanes() {
	connected, _ := a.pool.Membership()
	if len(connected) == 0 {
		return
	}

	panes, err := a.catalog.Panes()
	if err != nil {
		debugLog("[SWEEP] list panes: %v", err)
		return
	}

	alive := make(map[pane.Identity]bool, len(panes))
	for _, p := range panes {
		if !p.Dead {
			alive[p.Identity] = true
		}
	}

	for _, id := range connected {
		if !alive[id] {
			debugLog("[SWEEP] pane %s lost", id.Target())
			a.handlePaneLoss(id)
		}
	}
}

// ==================== Pool reads ====================

// PoolMembership returns the authoritative sets of connected and
// connecting pane targets.
func (a *App) PoolMembership() MembershipEvent {
	connected, connecting := a.pool.Membership()
	ev := MembershipEvent{
		Connected:  make([]string, 0, len(connected)),
		Connecting: make([]string, 0, len(connecting)),
	}
	for _, id := range connected {
		ev.Connected = append(ev.Connected, id.Target())
	}
	for _, id := range connecting {
		ev.Connecting = append(ev.Connecting, id.Target())
	}
	return ev
}

// PoolCapacity returns the pool's slot count.
func (a *App) PoolCapacity() int {
	return a.pool.Capacity()
}

// IsPaneConnected reports whether a pane target is Connected.
func (a *App) IsPaneConnected(target string) bool {
	id, err := pane.ParseTarget(target)
	if err != nil {
		return false
	}
	return a.pool.IsConnected(id)
}

// ==================== Snapshots ====================

// GetPaneSnapshot returns the retained snapshot for a disconnected
// pane, or nil when none exists.
func (a *App) GetPaneSnapshot(target string) *snapshot.Snapshot {
	id, err := pane.ParseTarget(target)
	if err != nil {
		return nil
	}
	snap, ok := a.snapshots.Get(id)
	if !ok {
		return nil
	}
	return &snap
}

// ==================== Pane I/O ====================

// SendPaneInput sends literal keystrokes to a connected pane. Streams
// are read-only mirrors, so input goes through tmux directly.
func (a *App) SendPaneInput(target, keys string) error {
	return a.exec.SendKeys(target, keys, true)
}

// ==================== Focus overlay ====================

// FocusPane attaches the interactive focus client to the pane's
// session, selecting the pane. Independent of pool membership.
func (a *App) FocusPane(target string, cols, rows int) error {
	id, err := pane.ParseTarget(target)
	if err != nil {
		return err
	}
	return a.focus.Attach(id.Session, target, cols, rows)
}

// WriteFocus sends input to the focus client.
func (a *App) WriteFocus(data string) error {
	return a.focus.Write(data)
}

// ResizeFocus resizes the focus client.
func (a *App) ResizeFocus(cols, rows int) error {
	return a.focus.Resize(cols, rows)
}

// BlurFocus tears down the focus client.
func (a *App) BlurFocus() error {
	return a.focus.Close()
}

// ==================== Settings ====================

// GetDesktopTheme returns the theme preference.
func (a *App) GetDesktopTheme() string {
	theme, err := a.settings.GetTheme()
	if err != nil {
		return "dark"
	}
	return theme
}

// SetDesktopTheme sets the theme preference.
func (a *App) SetDesktopTheme(theme string) error {
	return a.settings.SetTheme(theme)
}

// GetPoolCapacitySetting returns the configured capacity (which may
// differ from the live pool's until restart).
func (a *App) GetPoolCapacitySetting() int {
	capacity, err := a.settings.GetPoolCapacity()
	if err != nil {
		return pool.DefaultCapacity
	}
	return capacity
}

// SetPoolCapacitySetting stores a new capacity, applied at next start.
func (a *App) SetPoolCapacitySetting(capacity int) error {
	return a.settings.SetPoolCapacity(capacity)
}
