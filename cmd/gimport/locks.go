package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gimport/internal/config"
	"github.com/steveyegge/gimport/internal/lockfile"
	"github.com/steveyegge/gimport/internal/ui"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List import lock artifacts",
	Long: `List the lock artifact of every project that was ever imported.

A held lock means an import of that project is running right now. Released
artifacts keep the source and user of the last attempt, which is what
'gimport resume' reuses.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		locks, err := lockfile.List(config.LockDir())
		if err != nil {
			return err
		}
		if jsonOutput {
			if locks == nil {
				locks = []lockfile.Status{}
			}
			outputJSON(locks)
			return nil
		}
		if len(locks) == 0 {
			fmt.Println(ui.RenderMuted("No imports recorded"))
			return nil
		}
		for _, l := range locks {
			state := ui.Status("skipped", fmt.Sprintf("%s (released)", l.Project))
			if l.Held {
				state = ui.Status("warn", fmt.Sprintf("%s (importing)", ui.RenderAccent(l.Project)))
			}
			fmt.Println(state)
			if l.Params != nil {
				fmt.Println(ui.Detail("from %s as %s", l.Params.From, l.Params.User))
				if l.Params.Parent != "" {
					fmt.Println(ui.Detail("parent: %s", l.Params.Parent))
				}
			}
			fmt.Println(ui.Detail("last touched %s", l.Modified.Format("2006-01-02 15:04:05")))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(locksCmd)
}
