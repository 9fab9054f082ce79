package main

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/muxboard/muxboard/internal/tmux"
)

var (
	flagCaptureLines int
	flagStripANSI    bool
)

// ansiRe matches CSI and OSC escape sequences for --strip-ansi output.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*(\x07|\x1b\\)`)

var captureCmd = &cobra.Command{
	Use:   "capture <target>",
	Short: "Print a pane's scrollback",
	Long: `Capture a pane's content, escape sequences included.

The target is either a full session:window.pane target (see the panes
command) or a bare session name, which captures that session's active
pane.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := catalog().Resolve(args[0])
		if err != nil {
			return err
		}

		content, err := tmux.DefaultExecutor().CapturePane(p.Target, flagCaptureLines)
		if err != nil {
			return fmt.Errorf("failed to capture %s: %w", p.Target, err)
		}

		if flagStripANSI {
			content = ansiRe.ReplaceAllString(content, "")
		}
		fmt.Print(content)
		return nil
	},
}

func init() {
	captureCmd.Flags().IntVar(&flagCaptureLines, "lines", 0, "history lines to capture (0 = full scrollback)")
	captureCmd.Flags().BoolVar(&flagStripANSI, "strip-ansi", false, "strip escape sequences from the output")
	rootCmd.AddCommand(captureCmd)
}
