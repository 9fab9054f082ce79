package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Debug log file, readable outside the app when chasing streaming or
// pool issues.
var debugLogFile *os.File

func init() {
	logPath := filepath.Join(os.TempDir(), "muxboard-debug.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err == nil {
		debugLogFile = f
		fmt.Fprintf(debugLogFile, "=== Muxboard Debug Log ===\n")
		fmt.Fprintf(debugLogFile, "Started: %s\n\n", time.Now().Format(time.RFC3339))
		debugLogFile.Sync()
	}
}

// debugLog writes a timestamped line to the debug log file.
func debugLog(format string, args ...interface{}) {
	if debugLogFile == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	debugLogFile.WriteString(fmt.Sprintf("[%s] %s\n", timestamp, msg))
	debugLogFile.Sync()
}
