package main

import (
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// PTY wraps a pseudo-terminal around a child process. Used by the focus
// overlay to run a real interactive tmux client.
type PTY struct {
	cmd  *exec.Cmd
	file *os.File
	mu   sync.Mutex
}

// SpawnPTYWithSize starts name with args under a PTY of the given size.
// tmux queries the terminal size at startup and renders nothing into a
// 0x0 client, so the size must be set before the process starts.
func SpawnPTYWithSize(cols, rows int, name string, args ...string) (*PTY, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)

	winSize := &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	}

	ptmx, err := pty.StartWithSize(cmd, winSize)
	if err != nil {
		return nil, err
	}

	return &PTY{
		cmd:  cmd,
		file: ptmx,
	}, nil
}

// Read reads from the PTY.
func (p *PTY) Read(buf []byte) (int, error) {
	return p.file.Read(buf)
}

// Write writes to the PTY.
func (p *PTY) Write(data []byte) (int, error) {
	return p.file.Write(data)
}

// Resize changes the PTY window size.
func (p *PTY) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pty.Setsize(p.file, &pty.Winsize{
		Cols: cols,
		Rows: rows,
	})
}

// Close terminates the child process and the PTY.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.file.Close()
}
