package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gimport/internal/config"
	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/importer"
	"github.com/steveyegge/gimport/internal/ui"
)

var groupCmd = &cobra.Command{
	Use:   "group NAME",
	Short: "Import a group with its members",
	Long: `Import a group from the source instance by name or UUID.

Members are mapped to local accounts by username or email and created when
missing. A group owned by another group, or including other groups, can only
be imported when those exist locally, unless --import-owner-group or
--import-included-groups import them first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		from, _ := cmd.Flags().GetString("from")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")
		owner, _ := cmd.Flags().GetBool("import-owner-group")
		included, _ := cmd.Flags().GetBool("import-included-groups")

		if err := importer.ValidateSource(from, user); err != nil {
			return err
		}
		pass, err := resolvePassword(pass, user, from)
		if err != nil {
			return err
		}
		in := importer.GroupInput{From: from, User: user, Pass: pass, ImportOwnerGroup: owner, ImportIncludedGroups: included}

		policies, err := groupPolicies()
		if err != nil {
			return err
		}
		e, err := openEnv(rootCtx)
		if err != nil {
			return err
		}
		g := importer.NewGroupImporter(e.deps, policies...)
		g.VisibleToAll = config.GetBool(config.KeyVisible)

		res, err := g.Import(rootCtx, name, in, resolveActor(rootCtx, e.store))
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(res.Created)
			return nil
		}
		for _, created := range res.Created {
			debug.PrintNormal("%s\n", ui.Status("ok", fmt.Sprintf("Created group %s", ui.RenderAccent(created.Name))))
			debug.PrintNormal("%s\n", ui.Detail("uuid: %s", created.UUID))
		}
		return nil
	},
}

func init() {
	addSourceFlags(groupCmd)
	groupCmd.Flags().Bool("import-owner-group", false, "Import the owner group first when it is missing locally")
	groupCmd.Flags().Bool("import-included-groups", false, "Import missing included groups first")

	rootCmd.AddCommand(groupCmd)
}
