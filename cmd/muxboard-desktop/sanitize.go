package main

import (
	"regexp"
	"strings"
)

// Captured pane history is replayed into xterm.js scrollback. Cursor
// positioning, screen clears and alternate-screen switches would fight
// the replay, so they are stripped while SGR color codes are kept.

var (
	cursorHomeRe    = regexp.MustCompile(`\x1b\[H`)
	cursorPosRe     = regexp.MustCompile(`\x1b\[\d+;\d+[Hf]`)
	clearScreenRe   = regexp.MustCompile(`\x1b\[2J`)
	fullResetRe     = regexp.MustCompile(`\x1bc`)
	altScreenRe     = regexp.MustCompile(`\x1b\[\?(?:1049|47)[hl]`)
	cursorSaveRe    = regexp.MustCompile(`\x1b\[[su]`)
	cursorSaveDECRe = regexp.MustCompile(`\x1b[78]`)
)

// sanitizeHistory removes escape sequences that interfere with
// scrollback accumulation while preserving colors.
func sanitizeHistory(content string) string {
	content = cursorHomeRe.ReplaceAllString(content, "")
	content = cursorPosRe.ReplaceAllString(content, "")
	content = clearScreenRe.ReplaceAllString(content, "")
	content = fullResetRe.ReplaceAllString(content, "")
	content = altScreenRe.ReplaceAllString(content, "")
	content = cursorSaveRe.ReplaceAllString(content, "")
	content = cursorSaveDECRe.ReplaceAllString(content, "")
	return content
}

// normalizeCRLF converts line endings to CRLF. tmux emits bare LF, but
// xterm.js interprets LF as "move down" without a carriage return.
func normalizeCRLF(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.ReplaceAll(content, "\n", "\r\n")
}
