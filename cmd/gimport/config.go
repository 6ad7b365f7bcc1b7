package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gimport/internal/config"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
	Long: `Manage gimport configuration.

Settings are read from .gimport/config.yaml (searched upwards from the working
directory, then in the user config directory) and from GIMPORT_* environment
variables, which win over the file. 'config set' writes to the nearest
config.yaml, creating .gimport/config.yaml here when there is none.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		path, err := config.SetYamlConfig(key, value)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value, "file": path})
			return nil
		}
		fmt.Println(ui.Status("ok", fmt.Sprintf("Set %s = %s", key, value)))
		fmt.Println(ui.Detail("in %s", path))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !config.KnownKeys[key] {
			return errdefs.BadRequest("unknown config key %q", key)
		}
		value := config.GetString(key)
		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value})
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		keys := config.SortedKeys()
		if jsonOutput {
			out := make(map[string]string, len(keys))
			for _, k := range keys {
				out[k] = config.GetString(k)
			}
			outputJSON(out)
			return
		}
		if f := config.ConfigFileUsed(); f != "" {
			fmt.Println(ui.RenderMuted("# " + f))
		}
		for _, k := range keys {
			fmt.Printf("%s = %s\n", ui.RenderCategory(k), config.GetString(k))
		}
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
