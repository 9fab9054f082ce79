// Package tmux wraps the tmux binary behind a small executor interface
// and provides the pane catalog built on top of it.
package tmux

// Executor abstracts the tmux operations the app needs. The catalog and
// the desktop streaming layer both run against this interface, which
// keeps them testable without a tmux server.
type Executor interface {
	// ListSessions returns one line per session in the catalog's
	// session format (see sessionFormat).
	ListSessions() (string, error)

	// ListPanes returns one line per pane across all sessions in the
	// catalog's pane format (see paneFormat).
	ListPanes() (string, error)

	// HasSession reports whether a session with the given name exists.
	HasSession(name string) (bool, error)

	// CapturePane captures pane content with escape sequences preserved.
	// lines <= 0 captures the full scrollback, otherwise the last
	// `lines` rows of history plus the visible screen.
	CapturePane(target string, lines int) (string, error)

	// SendKeys sends input to a pane. literal passes -l so keys are not
	// interpreted as key names.
	SendKeys(target, keys string, literal bool) error

	// EnablePipePane starts mirroring a pane's output into outputFile.
	EnablePipePane(target, outputFile string) error

	// DisablePipePane stops mirroring a pane's output.
	DisablePipePane(target string) error
}
