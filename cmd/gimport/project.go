package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/importer"
	"github.com/steveyegge/gimport/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:   "project NAME",
	Short: "Import a project with its history and review metadata",
	Long: `Import a project from the source instance.

The import takes a per-project lock, mirrors every ref of the source
repository, configures the local project under its parent and replays all
changes. The parent defaults to the parent the source project reports and must
already exist locally. Re-running an import (or 'gimport resume') skips changes
that were already replayed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		from, _ := cmd.Flags().GetString("from")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")
		parent, _ := cmd.Flags().GetString("parent")

		if err := importer.ValidateSource(from, user); err != nil {
			return err
		}
		pass, err := resolvePassword(pass, user, from)
		if err != nil {
			return err
		}
		in := importer.Input{From: from, User: user, Pass: pass, Parent: parent}

		e, err := openEnv(rootCtx)
		if err != nil {
			return err
		}
		res, err := importer.NewProjectImporter(e.deps).Import(rootCtx, name, in, resolveActor(rootCtx, e.store))
		if err != nil {
			return err
		}
		printProjectResult(name, res)
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume NAME",
	Short: "Re-run an import with its recorded parameters",
	Long: `Re-run the import of a project using the source, user and parent recorded
by the last attempt. Only the password has to be supplied again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		pass, _ := cmd.Flags().GetString("pass")
		pass, err := resolvePassword(pass, "the recorded user", name)
		if err != nil {
			return err
		}

		e, err := openEnv(rootCtx)
		if err != nil {
			return err
		}
		res, err := importer.NewProjectImporter(e.deps).Resume(rootCtx, name, pass, resolveActor(rootCtx, e.store))
		if err != nil {
			return err
		}
		printProjectResult(name, res)
		return nil
	},
}

func printProjectResult(name string, res *importer.Result) {
	if jsonOutput {
		outputJSON(map[string]interface{}{
			"project": name,
			"parent":  res.Parent,
			"stats":   res.Stats,
		})
		return
	}
	debug.PrintNormal("%s\n", ui.Status("ok", fmt.Sprintf("Imported project %s", ui.RenderAccent(name))))
	if res.Parent != "" {
		debug.PrintNormal("%s\n", ui.Detail("parent: %s", res.Parent))
	}
	s := res.Stats
	debug.PrintNormal("%s\n", ui.Detail("%d changes replayed, %d skipped (%d patch sets, %d comments, %d messages, %d votes)",
		s.Replayed, s.Skipped, s.PatchSets, s.Comments, s.Messages, s.Approvals))
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "URL of the source instance (required)")
	cmd.Flags().String("user", "", "User on the source instance (required)")
	cmd.Flags().String("pass", "", "Password of the user (prompted when omitted on a terminal)")
}

func init() {
	addSourceFlags(projectCmd)
	projectCmd.Flags().String("parent", "", "Local parent project (default: the source project's parent)")
	resumeCmd.Flags().String("pass", "", "Password of the recorded user (prompted when omitted on a terminal)")

	rootCmd.AddCommand(projectCmd, resumeCmd)
}
