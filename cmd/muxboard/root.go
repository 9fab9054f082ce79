package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/muxboard/muxboard/internal/tmux"
)

var rootCmd = &cobra.Command{
	Use:   "muxboard",
	Short: "Inspect the tmux panes muxboard can browse",
	Long: `muxboard is the command-line companion to the muxboard desktop app.

It speaks to the same local tmux server the desktop app browses, so it is
useful for scripting and for checking what the desktop app would see:
which sessions exist, which panes resolve, and what a pane's scrollback
looks like.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// catalog returns a pane catalog backed by the local tmux binary.
func catalog() *tmux.Catalog {
	return tmux.NewCatalog(tmux.DefaultExecutor())
}
