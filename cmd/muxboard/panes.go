package main

import (
	"fmt"
	"os"
	"regexp"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var flagSessionFilter string

var panesCmd = &cobra.Command{
	Use:   "panes",
	Short: "List all pane targets",
	Long: `List all tmux panes as targets.

Each row is a pane the desktop app could connect. The TARGET column can
be passed to the capture command. Optionally filter by session name
using a regex pattern.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		panes, err := catalog().Panes()
		if err != nil {
			return fmt.Errorf("failed to list panes: %w", err)
		}

		var filter *regexp.Regexp
		if flagSessionFilter != "" {
			filter, err = regexp.Compile(flagSessionFilter)
			if err != nil {
				return fmt.Errorf("invalid filter: %w", err)
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TARGET\tACTIVE\tDEAD\tCOMMAND\tTITLE")
		for _, p := range panes {
			if filter != nil && !filter.MatchString(p.Identity.Session) {
				continue
			}
			active := ""
			if p.WindowActive && p.Active {
				active = "yes"
			}
			dead := ""
			if p.Dead {
				dead = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.Target, active, dead, p.Command, p.Title)
		}
		return w.Flush()
	},
}

func init() {
	panesCmd.Flags().StringVar(&flagSessionFilter, "filter", "", "regex pattern to filter by session name")
	rootCmd.AddCommand(panesCmd)
}
