// Package pane defines the identity type shared by the connection pool,
// the snapshot store and the tmux catalog.
package pane

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is the stable key for a tmux pane: session name plus window
// and pane indexes. It is a comparable value type and is used directly
// as a map key. A pane that moves to another window or index is a
// different identity.
type Identity struct {
	Session string
	Window  int
	Pane    int
}

// Target renders the identity in tmux target syntax ("session:window.pane"),
// suitable for the -t flag of tmux commands.
func (id Identity) Target() string {
	return fmt.Sprintf("%s:%d.%d", id.Session, id.Window, id.Pane)
}

// String returns the same form as Target. Identities show up in logs and
// events, so keep the two representations identical.
func (id Identity) String() string {
	return id.Target()
}

// IsZero reports whether the identity is the empty value.
func (id Identity) IsZero() bool {
	return id.Session == "" && id.Window == 0 && id.Pane == 0
}

// ParseTarget parses "session:window.pane" back into an Identity.
// Session names containing ':' are not supported (tmux itself rejects
// them in session names), so the last ':' is not special-cased.
func ParseTarget(s string) (Identity, error) {
	colon := strings.LastIndex(s, ":")
	if colon <= 0 || colon == len(s)-1 {
		return Identity{}, fmt.Errorf("invalid pane target %q: expected session:window.pane", s)
	}

	session := s[:colon]
	rest := s[colon+1:]

	dot := strings.Index(rest, ".")
	if dot <= 0 || dot == len(rest)-1 {
		return Identity{}, fmt.Errorf("invalid pane target %q: expected session:window.pane", s)
	}

	window, err := strconv.Atoi(rest[:dot])
	if err != nil || window < 0 {
		return Identity{}, fmt.Errorf("invalid window index in pane target %q", s)
	}
	paneIdx, err := strconv.Atoi(rest[dot+1:])
	if err != nil || paneIdx < 0 {
		return Identity{}, fmt.Errorf("invalid pane index in pane target %q", s)
	}

	return Identity{Session: session, Window: window, Pane: paneIdx}, nil
}
