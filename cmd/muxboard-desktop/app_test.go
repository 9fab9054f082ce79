package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muxboard/muxboard/internal/pane"
	"github.com/muxboard/muxboard/internal/pool"
	"github.com/muxboard/muxboard/internal/snapshot"
	"github.com/muxboard/muxboard/internal/tmux"
)

// stubExecutor serves canned catalog output and records keystrokes so
// orchestration can be exercised without a tmux server.
type stubExecutor struct {
	mu         sync.Mutex
	panes      string
	sessions   string
	captureErr bool
	sent       []string
}

func (s *stubExecutor) ListSessions() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions, nil
}

func (s *stubExecutor) ListPanes() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panes, nil
}

func (s *stubExecutor) HasSession(name string) (bool, error) {
	return true, nil
}

func (s *stubExecutor) CapturePane(target string, lines int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captureErr {
		return "", errors.New("no such pane")
	}
	return "scrollback of " + target, nil
}

func (s *stubExecutor) SendKeys(target, keys string, literal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, target+"="+keys)
	return nil
}

func (s *stubExecutor) EnablePipePane(target, outputFile string) error { return nil }
func (s *stubExecutor) DisablePipePane(target string) error            { return nil }

func (s *stubExecutor) setPanes(panes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panes = panes
}

// eventRecorder captures emitted events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(event string, payload ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func stubPaneLine(session string, window, paneIdx int) string {
	return fmt.Sprintf("%s\t%d\t%d\t1\t1\t0\tshell\tzsh", session, window, paneIdx)
}

func newTestApp(capacity int, exec *stubExecutor, events *eventRecorder) *App {
	a := &App{
		exec:      exec,
		catalog:   tmux.NewCatalog(exec),
		pool:      pool.New(capacity),
		snapshots: snapshot.NewStore(exec, snapshot.DefaultMaxEntries),
		attempts:  make(map[pane.Identity]uint64),
		sweepStop: make(chan struct{}),
	}
	a.attach = func(id pane.Identity) error { return nil }
	a.detach = func(id pane.Identity) {}
	a.emit = events.record
	return a
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestConnectPaneReportsAdmission verifies the admission outcomes the
// frontend switches on: admitted, duplicate, full, unresolved.
func TestConnectPaneReportsAdmission(t *testing.T) {
	lines := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		lines = append(lines, stubPaneLine("work", 0, i))
	}
	exec := &stubExecutor{panes: strings.Join(lines, "\n") + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	if got := app.ConnectPane("work:0.0"); got != OutcomeAdmitted {
		t.Fatalf("first connect = %q, want %q", got, OutcomeAdmitted)
	}
	if got := app.ConnectPane("work:0.0"); got != OutcomeAlreadyPresent {
		t.Fatalf("duplicate connect = %q, want %q", got, OutcomeAlreadyPresent)
	}
	if got := app.ConnectPane("work:0.1"); got != OutcomeAdmitted {
		t.Fatalf("second connect = %q, want %q", got, OutcomeAdmitted)
	}
	if got := app.ConnectPane("work:0.2"); got != OutcomePoolFull {
		t.Fatalf("overflow connect = %q, want %q", got, OutcomePoolFull)
	}
	if got := app.ConnectPane("ghost:9.9"); got != OutcomeUnresolved {
		t.Fatalf("ghost connect = %q, want %q", got, OutcomeUnresolved)
	}
	if app.pool.Len() != 2 {
		t.Fatalf("pool length = %d, want 2", app.pool.Len())
	}
}

// TestConnectPaneConfirmsInBackground verifies the slot transitions to
// Connected once the attach completes, with labels from the catalog.
func TestConnectPaneConfirmsInBackground(t *testing.T) {
	exec := &stubExecutor{panes: stubPaneLine("work", 1, 2) + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	if got := app.ConnectPane("work:1.2"); got != OutcomeAdmitted {
		t.Fatalf("connect = %q, want %q", got, OutcomeAdmitted)
	}

	id := pane.Identity{Session: "work", Window: 1, Pane: 2}
	waitFor(t, func() bool { return app.pool.IsConnected(id) }, "pane never confirmed")

	entry, _ := app.pool.Entry(id)
	if entry.SessionLabel != "work" || entry.PaneLabel != "shell" {
		t.Fatalf("labels = %q/%q, want work/shell", entry.SessionLabel, entry.PaneLabel)
	}
	if !events.has("pool:connected") {
		t.Fatal("pool:connected was not emitted")
	}
}

// TestConnectPlaceholderResolvesActivePane verifies a bare session name
// connects the session's active pane.
func TestConnectPlaceholderResolvesActivePane(t *testing.T) {
	exec := &stubExecutor{panes: strings.Join([]string{
		"work\t0\t0\t1\t0\t0\tidle\tzsh",
		"work\t0\t1\t1\t1\t0\tbusy\tvim",
	}, "\n") + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	if got := app.ConnectPane("work"); got != OutcomeAdmitted {
		t.Fatalf("connect = %q, want %q", got, OutcomeAdmitted)
	}
	id := pane.Identity{Session: "work", Window: 0, Pane: 1}
	waitFor(t, func() bool { return app.pool.IsConnected(id) }, "active pane never confirmed")
}

// TestAttachFailureFreesSlot verifies a failed attach resolves the
// pending slot and announces the failure.
func TestAttachFailureFreesSlot(t *testing.T) {
	exec := &stubExecutor{panes: stubPaneLine("work", 0, 0) + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)
	app.attach = func(id pane.Identity) error { return errors.New("pipe-pane refused") }

	if got := app.ConnectPane("work:0.0"); got != OutcomeAdmitted {
		t.Fatalf("connect = %q, want %q", got, OutcomeAdmitted)
	}
	waitFor(t, func() bool { return app.pool.Len() == 0 }, "failed attach never freed its slot")
	if !events.has("pool:connectfailed") {
		t.Fatal("pool:connectfailed was not emitted")
	}
}

// TestDisconnectDuringAttach verifies a disconnect issued while the
// attach is still in flight cancels the slot, and the late confirm
// tears the orphaned stream back down instead of resurrecting the pane.
func TestDisconnectDuringAttach(t *testing.T) {
	exec := &stubExecutor{panes: stubPaneLine("work", 0, 0) + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	release := make(chan struct{})
	var mu sync.Mutex
	detaches := 0
	app.attach = func(id pane.Identity) error {
		<-release
		return nil
	}
	app.detach = func(id pane.Identity) {
		mu.Lock()
		detaches++
		mu.Unlock()
	}

	if got := app.ConnectPane("work:0.0"); got != OutcomeAdmitted {
		t.Fatalf("connect = %q, want %q", got, OutcomeAdmitted)
	}
	if got := app.DisconnectPane("work:0.0"); got != OutcomeDisconnected {
		t.Fatalf("disconnect = %q, want %q", got, OutcomeDisconnected)
	}
	close(release)

	// The late confirm must find its slot gone and detach the stream it
	// just brought up.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return detaches >= 2
	}, "late confirm never tore the orphan stream down")
	if app.pool.Len() != 0 {
		t.Fatalf("pool length = %d after cancelled attach, want 0", app.pool.Len())
	}
}

// TestReconnectSurvivesStaleAttachFailure verifies that after a pane is
// disconnected and re-admitted, the first attempt's late attach failure
// does not free the second attempt's slot.
func TestReconnectSurvivesStaleAttachFailure(t *testing.T) {
	exec := &stubExecutor{panes: stubPaneLine("work", 0, 0) + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	var calls int32
	staleRelease := make(chan struct{})
	staleDone := make(chan struct{})
	app.attach = func(id pane.Identity) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			defer close(staleDone)
			<-staleRelease
			return errors.New("pipe-pane refused")
		}
		return nil
	}

	id := pane.Identity{Session: "work", Window: 0, Pane: 0}
	if got := app.ConnectPane("work:0.0"); got != OutcomeAdmitted {
		t.Fatalf("first connect = %q, want %q", got, OutcomeAdmitted)
	}
	if got := app.DisconnectPane("work:0.0"); got != OutcomeDisconnected {
		t.Fatalf("disconnect = %q, want %q", got, OutcomeDisconnected)
	}
	if got := app.ConnectPane("work:0.0"); got != OutcomeAdmitted {
		t.Fatalf("second connect = %q, want %q", got, OutcomeAdmitted)
	}
	waitFor(t, func() bool { return app.pool.IsConnected(id) }, "second attempt never confirmed")

	close(staleRelease)
	<-staleDone
	time.Sleep(10 * time.Millisecond) // let the stale goroutine resolve

	if !app.pool.IsConnected(id) {
		t.Fatal("stale attach failure destroyed the re-admitted connection")
	}
	if app.pool.Len() != 1 {
		t.Fatalf("pool length = %d, want 1", app.pool.Len())
	}
}

// TestReconnectIgnoresStaleAttachSuccess verifies the symmetric case: a
// stale attach that succeeds late must neither confirm nor detach — the
// stream now belongs to the newer admission.
func TestReconnectIgnoresStaleAttachSuccess(t *testing.T) {
	exec := &stubExecutor{panes: stubPaneLine("work", 0, 0) + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	var calls int32
	staleRelease := make(chan struct{})
	staleDone := make(chan struct{})
	app.attach = func(id pane.Identity) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			defer close(staleDone)
			<-staleRelease
		}
		return nil
	}
	var mu sync.Mutex
	detaches := 0
	app.detach = func(id pane.Identity) {
		mu.Lock()
		detaches++
		mu.Unlock()
	}

	id := pane.Identity{Session: "work", Window: 0, Pane: 0}
	app.ConnectPane("work:0.0")
	app.DisconnectPane("work:0.0")
	app.ConnectPane("work:0.0")
	waitFor(t, func() bool { return app.pool.IsConnected(id) }, "second attempt never confirmed")

	close(staleRelease)
	<-staleDone
	time.Sleep(10 * time.Millisecond)

	if !app.pool.IsConnected(id) {
		t.Fatal("stale attach success disturbed the re-admitted connection")
	}
	mu.Lock()
	defer mu.Unlock()
	if detaches != 1 {
		t.Fatalf("detach count = %d, want 1 (from the explicit disconnect only)", detaches)
	}
}

// TestDisconnectCapturesSnapshot verifies disconnecting a connected
// pane leaves a snapshot behind, labelled from the pool entry.
func TestDisconnectCapturesSnapshot(t *testing.T) {
	exec := &stubExecutor{panes: stubPaneLine("work", 0, 0) + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	app.ConnectPane("work:0.0")
	id := pane.Identity{Session: "work", Window: 0, Pane: 0}
	waitFor(t, func() bool { return app.pool.IsConnected(id) }, "pane never confirmed")

	if got := app.DisconnectPane("work:0.0"); got != OutcomeDisconnected {
		t.Fatalf("disconnect = %q, want %q", got, OutcomeDisconnected)
	}

	snap := app.GetPaneSnapshot("work:0.0")
	if snap == nil {
		t.Fatal("no snapshot retained after disconnect")
	}
	if snap.SessionLabel != "work" || snap.PaneLabel != "shell" {
		t.Fatalf("snapshot labels = %q/%q, want work/shell", snap.SessionLabel, snap.PaneLabel)
	}
	if !strings.Contains(snap.Content, "work:0.0") {
		t.Fatalf("snapshot content %q does not reference the pane", snap.Content)
	}
}

// TestCaptureFailureStillDisconnects verifies a failed capture never
// blocks the disconnect itself.
func TestCaptureFailureStillDisconnects(t *testing.T) {
	exec := &stubExecutor{panes: stubPaneLine("work", 0, 0) + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	app.ConnectPane("work:0.0")
	id := pane.Identity{Session: "work", Window: 0, Pane: 0}
	waitFor(t, func() bool { return app.pool.IsConnected(id) }, "pane never confirmed")

	exec.mu.Lock()
	exec.captureErr = true
	exec.mu.Unlock()

	if got := app.DisconnectPane("work:0.0"); got != OutcomeDisconnected {
		t.Fatalf("disconnect = %q, want %q", got, OutcomeDisconnected)
	}
	if app.pool.Len() != 0 {
		t.Fatalf("pool length = %d, want 0", app.pool.Len())
	}
	if app.GetPaneSnapshot("work:0.0") != nil {
		t.Fatal("failed capture produced a snapshot")
	}
}

// TestDisconnectAbsentPaneIsNoOp verifies disconnecting an unknown or
// malformed target reports not-present without faulting.
func TestDisconnectAbsentPaneIsNoOp(t *testing.T) {
	exec := &stubExecutor{panes: stubPaneLine("work", 0, 0) + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	if got := app.DisconnectPane("work:0.0"); got != OutcomeNotPresent {
		t.Fatalf("disconnect absent = %q, want %q", got, OutcomeNotPresent)
	}
	if got := app.DisconnectPane("not a target"); got != OutcomeNotPresent {
		t.Fatalf("disconnect malformed = %q, want %q", got, OutcomeNotPresent)
	}
}

// TestSweepDisconnectsLostPanes verifies the reconciliation sweep
// evicts a connected pane whose backend vanished, snapshotting what it
// can and announcing the loss.
func TestSweepDisconnectsLostPanes(t *testing.T) {
	exec := &stubExecutor{panes: strings.Join([]string{
		stubPaneLine("work", 0, 0),
		stubPaneLine("work", 0, 1),
	}, "\n") + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	app.ConnectPane("work:0.0")
	app.ConnectPane("work:0.1")
	survivor := pane.Identity{Session: "work", Window: 0, Pane: 1}
	lost := pane.Identity{Session: "work", Window: 0, Pane: 0}
	waitFor(t, func() bool {
		return app.pool.IsConnected(lost) && app.pool.IsConnected(survivor)
	}, "panes never confirmed")

	exec.setPanes(stubPaneLine("work", 0, 1) + "\n")
	app.sweepLostPanes()

	if app.pool.IsConnected(lost) {
		t.Fatal("lost pane still connected after sweep")
	}
	if !app.pool.IsConnected(survivor) {
		t.Fatal("sweep evicted a live pane")
	}
	if !events.has("pool:lost") {
		t.Fatal("pool:lost was not emitted")
	}
	if app.GetPaneSnapshot("work:0.0") == nil {
		t.Fatal("no snapshot retained for the lost pane")
	}
}

// TestSendPaneInputUsesLiteralKeys verifies input goes through
// send-keys rather than the read-only stream.
func TestSendPaneInputUsesLiteralKeys(t *testing.T) {
	exec := &stubExecutor{}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	if err := app.SendPaneInput("work:0.0", "ls -la\n"); err != nil {
		t.Fatalf("SendPaneInput: %v", err)
	}
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.sent) != 1 || exec.sent[0] != "work:0.0=ls -la\n" {
		t.Fatalf("sent = %v", exec.sent)
	}
}

// TestPoolMembershipReportsTargets verifies the membership read exposes
// string targets split by state.
func TestPoolMembershipReportsTargets(t *testing.T) {
	exec := &stubExecutor{panes: strings.Join([]string{
		stubPaneLine("work", 0, 0),
		stubPaneLine("work", 0, 1),
	}, "\n") + "\n"}
	events := &eventRecorder{}
	app := newTestApp(2, exec, events)

	block := make(chan struct{})
	app.attach = func(id pane.Identity) error {
		if id.Pane == 1 {
			<-block
		}
		return nil
	}
	defer close(block)

	app.ConnectPane("work:0.0")
	app.ConnectPane("work:0.1")
	waitFor(t, func() bool {
		return app.pool.IsConnected(pane.Identity{Session: "work", Window: 0, Pane: 0})
	}, "first pane never confirmed")

	ev := app.PoolMembership()
	if len(ev.Connected) != 1 || ev.Connected[0] != "work:0.0" {
		t.Fatalf("connected = %v", ev.Connected)
	}
	if len(ev.Connecting) != 1 || ev.Connecting[0] != "work:0.1" {
		t.Fatalf("connecting = %v", ev.Connecting)
	}
}
