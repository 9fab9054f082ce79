package main

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// FocusTerminal runs the single interactive tmux client behind the
// focus overlay. Unlike pane streams, which are read-only mirrors, the
// focus terminal is a real attached client with input and resize. At
// most one exists at a time and it is independent of pool membership.
type FocusTerminal struct {
	mu     sync.Mutex
	ctx    context.Context
	pty    *PTY
	closed bool

	session string
}

// NewFocusTerminal creates an idle focus terminal.
func NewFocusTerminal() *FocusTerminal {
	return &FocusTerminal{}
}

// SetContext sets the Wails runtime context.
func (ft *FocusTerminal) SetContext(ctx context.Context) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.ctx = ctx
}

// Attach starts an interactive tmux client on the session that owns the
// focused pane, selecting that pane. Any previous focus client is torn
// down first.
func (ft *FocusTerminal) Attach(session, target string, cols, rows int) error {
	ft.Close()

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("focus attach needs dimensions, got %dx%d", cols, rows)
	}

	// attach-session takes a session; point the session at the focused
	// pane first so the client lands on it.
	if err := exec.Command("tmux", "select-window", "-t", target).Run(); err != nil {
		debugLog("[FOCUS] select-window %s: %v", target, err)
	}
	if err := exec.Command("tmux", "select-pane", "-t", target).Run(); err != nil {
		debugLog("[FOCUS] select-pane %s: %v", target, err)
	}

	p, err := SpawnPTYWithSize(cols, rows, "tmux", "attach-session", "-t", session)
	if err != nil {
		return fmt.Errorf("failed to attach focus client: %w", err)
	}

	ft.pty = p
	ft.session = session
	ft.closed = false

	go ft.readLoop()

	debugLog("[FOCUS] attached to %s (%dx%d)", target, cols, rows)
	return nil
}

// Write sends input to the focused client.
func (ft *FocusTerminal) Write(data string) error {
	ft.mu.Lock()
	p := ft.pty
	ft.mu.Unlock()

	if p == nil {
		return nil
	}
	_, err := p.Write([]byte(data))
	return err
}

// Resize changes the focus client's dimensions.
func (ft *FocusTerminal) Resize(cols, rows int) error {
	ft.mu.Lock()
	p := ft.pty
	ft.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Resize(uint16(cols), uint16(rows))
}

// Close tears down the focus client, if any.
func (ft *FocusTerminal) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.closed = true
	ft.session = ""

	if ft.pty != nil {
		err := ft.pty.Close()
		ft.pty = nil
		return err
	}
	return nil
}

// readLoop streams the focus client's output to the frontend.
func (ft *FocusTerminal) readLoop() {
	buf := make([]byte, 32*1024)

	for {
		ft.mu.Lock()
		p := ft.pty
		closed := ft.closed
		ctx := ft.ctx
		ft.mu.Unlock()

		if p == nil || closed {
			return
		}

		n, err := p.Read(buf)
		if err != nil {
			if ctx != nil && !closed {
				runtime.EventsEmit(ctx, "focus:exit", err.Error())
			}
			return
		}

		if n > 0 && ctx != nil {
			runtime.EventsEmit(ctx, "focus:data", string(buf[:n]))
		}
	}
}
