package tmux

import (
	"fmt"
	"os/exec"
)

// Format strings handed to tmux -F. Fields are tab-separated so the
// catalog can split without worrying about spaces in names or titles.
const (
	sessionFormat = "#{session_name}\t#{session_windows}\t#{session_attached}\t#{session_created}"
	paneFormat    = "#{session_name}\t#{window_index}\t#{pane_index}\t#{window_active}\t#{pane_active}\t#{pane_dead}\t#{pane_title}\t#{pane_current_command}"
)

// LocalExecutor runs tmux commands against the local tmux server.
type LocalExecutor struct{}

// NewLocalExecutor creates a local executor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// defaultExecutor is the singleton local executor.
var defaultExecutor = &LocalExecutor{}

// DefaultExecutor returns the default local executor.
func DefaultExecutor() Executor {
	return defaultExecutor
}

// ListSessions returns formatted session lines, or an empty string when
// the tmux server is not running (no sessions is not an error for us).
func (e *LocalExecutor) ListSessions() (string, error) {
	cmd := exec.Command("tmux", "list-sessions", "-F", sessionFormat)
	output, err := cmd.Output()
	if err != nil {
		if isNoServerError(err) {
			return "", nil
		}
		return "", fmt.Errorf("tmux list-sessions: %w", err)
	}
	return string(output), nil
}

// ListPanes returns formatted pane lines across all sessions.
func (e *LocalExecutor) ListPanes() (string, error) {
	cmd := exec.Command("tmux", "list-panes", "-a", "-F", paneFormat)
	output, err := cmd.Output()
	if err != nil {
		if isNoServerError(err) {
			return "", nil
		}
		return "", fmt.Errorf("tmux list-panes: %w", err)
	}
	return string(output), nil
}

// HasSession checks for a session by exact name.
func (e *LocalExecutor) HasSession(name string) (bool, error) {
	cmd := exec.Command("tmux", "has-session", "-t", "="+name)
	err := cmd.Run()
	if err != nil {
		// Exit code 1 means the session does not exist.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CapturePane captures pane content.
// -p prints to stdout, -e keeps escape sequences so colors survive,
// -S selects the scrollback start (- means the very beginning).
func (e *LocalExecutor) CapturePane(target string, lines int) (string, error) {
	start := "-"
	if lines > 0 {
		start = fmt.Sprintf("-%d", lines)
	}
	cmd := exec.Command("tmux", "capture-pane", "-t", target, "-p", "-e", "-S", start, "-E", "-")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane %s: %w", target, err)
	}
	return string(output), nil
}

// SendKeys sends input to a pane.
func (e *LocalExecutor) SendKeys(target, keys string, literal bool) error {
	args := []string{"send-keys"}
	if literal {
		args = append(args, "-l")
	}
	args = append(args, "-t", target, keys)
	return exec.Command("tmux", args...).Run()
}

// EnablePipePane mirrors pane output into outputFile via cat. tmux runs
// the shell command itself, so the file path is single-quoted.
func (e *LocalExecutor) EnablePipePane(target, outputFile string) error {
	pipeCmd := fmt.Sprintf("cat >> '%s'", outputFile)
	cmd := exec.Command("tmux", "pipe-pane", "-t", target, pipeCmd)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux pipe-pane %s: %w", target, err)
	}
	return nil
}

// DisablePipePane stops mirroring. Calling pipe-pane with no command
// disables any active pipe.
func (e *LocalExecutor) DisablePipePane(target string) error {
	return exec.Command("tmux", "pipe-pane", "-t", target).Run()
}

// isNoServerError reports whether the command failed because no tmux
// server is running, which list operations treat as an empty result.
func isNoServerError(err error) bool {
	exitErr, ok := err.(*exec.ExitError)
	return ok && exitErr.ExitCode() == 1
}
