package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List tmux sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := catalog().Sessions()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tWINDOWS\tATTACHED\tCREATED")
		for _, s := range sessions {
			attached := ""
			if s.Attached {
				attached = "yes"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
				s.Name, s.Windows, attached, s.Created.Format(time.DateTime))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
