package tmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muxboard/muxboard/internal/pane"
)

// ErrUnresolvedRef is returned by Resolve when a pane reference cannot
// be mapped to a live pane. Callers treat this as a no-op: an unresolved
// connect request must not reserve a pool slot.
var ErrUnresolvedRef = errors.New("pane reference cannot be resolved")

// Session describes one tmux session as enumerated by the catalog.
type Session struct {
	Name     string    `json:"name"`
	Windows  int       `json:"windows"`
	Attached bool      `json:"attached"`
	Created  time.Time `json:"created"`
}

// Pane describes one tmux pane. Dead panes are enumerated but never
// resolved as connect targets.
type Pane struct {
	Identity     pane.Identity `json:"identity"`
	Target       string        `json:"target"`
	WindowActive bool          `json:"windowActive"`
	Active       bool          `json:"active"`
	Dead         bool          `json:"dead"`
	Title        string        `json:"title"`
	Command      string        `json:"command"`
}

// Catalog enumerates sessions and panes and resolves pane references.
// It is read-only: all mutation of tmux state happens elsewhere.
type Catalog struct {
	exec Executor
}

// NewCatalog creates a catalog backed by the given executor.
func NewCatalog(exec Executor) *Catalog {
	return &Catalog{exec: exec}
}

// Sessions enumerates all sessions.
func (c *Catalog) Sessions() ([]Session, error) {
	output, err := c.exec.ListSessions()
	if err != nil {
		return nil, err
	}
	return parseSessionList(output)
}

// Panes enumerates all panes across all sessions.
func (c *Catalog) Panes() ([]Pane, error) {
	output, err := c.exec.ListPanes()
	if err != nil {
		return nil, err
	}
	return parsePaneList(output)
}

// Resolve maps a pane reference to a concrete live pane. Two forms are
// accepted: a full "session:window.pane" target, or a bare session name
// as a placeholder, which resolves to that session's active pane once
// pane data is available. Dead or unknown panes return ErrUnresolvedRef.
func (c *Catalog) Resolve(ref string) (Pane, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Pane{}, fmt.Errorf("%w: empty reference", ErrUnresolvedRef)
	}

	panes, err := c.Panes()
	if err != nil {
		return Pane{}, fmt.Errorf("%w: %v", ErrUnresolvedRef, err)
	}

	if id, parseErr := pane.ParseTarget(ref); parseErr == nil {
		for _, p := range panes {
			if p.Identity == id {
				if p.Dead {
					return Pane{}, fmt.Errorf("%w: pane %s is dead", ErrUnresolvedRef, ref)
				}
				return p, nil
			}
		}
		return Pane{}, fmt.Errorf("%w: no such pane %s", ErrUnresolvedRef, ref)
	}

	// Placeholder form: bare session name. Prefer the active pane of the
	// active window; fall back to the first live pane of the session.
	var fallback *Pane
	for i, p := range panes {
		if p.Identity.Session != ref || p.Dead {
			continue
		}
		if p.WindowActive && p.Active {
			return p, nil
		}
		if fallback == nil {
			fallback = &panes[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Pane{}, fmt.Errorf("%w: no live pane in session %q", ErrUnresolvedRef, ref)
}

// parseSessionList parses tab-separated session lines produced with
// sessionFormat.
func parseSessionList(output string) ([]Session, error) {
	var sessions []Session
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed session line %q", line)
		}

		windows, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("malformed window count in %q", line)
		}
		created, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed creation time in %q", line)
		}

		sessions = append(sessions, Session{
			Name:     fields[0],
			Windows:  windows,
			Attached: fields[2] != "0",
			Created:  time.Unix(created, 0),
		})
	}
	return sessions, nil
}

// parsePaneList parses tab-separated pane lines produced with paneFormat.
// Titles may contain tabs on pathological setups, so the line is split
// with the command field anchored at the end.
func parsePaneList(output string) ([]Pane, error) {
	var panes []Pane
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 8 {
			return nil, fmt.Errorf("malformed pane line %q", line)
		}

		window, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("malformed window index in %q", line)
		}
		paneIdx, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("malformed pane index in %q", line)
		}

		id := pane.Identity{Session: fields[0], Window: window, Pane: paneIdx}
		command := fields[len(fields)-1]
		title := strings.Join(fields[6:len(fields)-1], "\t")

		panes = append(panes, Pane{
			Identity:     id,
			Target:       id.Target(),
			WindowActive: fields[3] == "1",
			Active:       fields[4] == "1",
			Dead:         fields[5] == "1",
			Title:        title,
			Command:      command,
		})
	}
	return panes, nil
}
