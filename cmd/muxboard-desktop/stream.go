package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/muxboard/muxboard/internal/pane"
)

// PaneEvent is the payload of pane:data and pane:history events.
type PaneEvent struct {
	Target string `json:"target"`
	Data   string `json:"data"`
}

// PaneStream streams one pane's live output to the frontend. tmux
// mirrors the pane into a log file via pipe-pane and the stream tails
// that file, emitting raw bytes as pane:data events. This keeps several
// panes live at once without attaching multiple tmux clients to the
// same session.
type PaneStream struct {
	mu sync.Mutex

	ctx      context.Context
	identity pane.Identity
	logPath  string

	file     *os.File
	running  bool
	stopChan chan struct{}
	position int64
}

// NewPaneStream creates a stream for the given pane. logPath is where
// pipe-pane writes output.
func NewPaneStream(ctx context.Context, id pane.Identity, logPath string) *PaneStream {
	return &PaneStream{
		ctx:      ctx,
		identity: id,
		logPath:  logPath,
	}
}

// Start begins tailing the log file. Call after pipe-pane is enabled.
func (ps *PaneStream) Start() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.running {
		return nil
	}

	// Wait briefly for pipe-pane to create the file.
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(ps.logPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	f, err := os.OpenFile(ps.logPath, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open pane stream log: %w", err)
	}

	ps.file = f
	ps.position = 0
	ps.running = true
	ps.stopChan = make(chan struct{})

	go ps.tailLoop()

	return nil
}

// Stop stops tailing without removing the log file.
func (ps *PaneStream) Stop() {
	ps.mu.Lock()
	running := ps.running
	stopChan := ps.stopChan
	ps.mu.Unlock()

	if !running {
		return
	}

	close(stopChan)
	time.Sleep(50 * time.Millisecond)

	ps.mu.Lock()
	if ps.file != nil {
		ps.file.Close()
		ps.file = nil
	}
	ps.running = false
	ps.mu.Unlock()
}

// Cleanup stops the stream and removes the log file.
func (ps *PaneStream) Cleanup() {
	ps.Stop()
	if ps.logPath != "" {
		os.Remove(ps.logPath)
	}
}

// tailLoop polls the log file for new bytes and emits them.
func (ps *PaneStream) tailLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	buf := make([]byte, 64*1024)

	for {
		select {
		case <-ps.stopChan:
			return
		case <-ticker.C:
			ps.readAndEmit(buf)
		}
	}
}

// readAndEmit reads any new bytes from the log file and emits them to
// the frontend.
func (ps *PaneStream) readAndEmit(buf []byte) {
	ps.mu.Lock()
	f := ps.file
	ctx := ps.ctx
	target := ps.identity.Target()
	position := ps.position
	ps.mu.Unlock()

	if f == nil || ctx == nil {
		return
	}

	stat, err := f.Stat()
	if err != nil {
		return
	}
	if stat.Size() < position {
		// File was truncated, restart from the beginning.
		ps.mu.Lock()
		ps.position = 0
		position = 0
		ps.mu.Unlock()
	}

	if _, err := f.Seek(position, io.SeekStart); err != nil {
		return
	}

	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return
	}
	if n == 0 {
		return
	}

	ps.mu.Lock()
	ps.position = position + int64(n)
	ps.mu.Unlock()

	runtime.EventsEmit(ctx, "pane:data",
		PaneEvent{Target: target, Data: string(buf[:n])})
}

// paneStreamLogPath returns the pipe-pane log path for a pane identity.
func paneStreamLogPath(id pane.Identity) string {
	// Targets contain ':' and '.'; flatten to a safe file name.
	safe := strings.NewReplacer(":", "_", ".", "_", "/", "_").Replace(id.Target())
	return filepath.Join(os.TempDir(), fmt.Sprintf("muxboard-pane-%s.log", safe))
}
