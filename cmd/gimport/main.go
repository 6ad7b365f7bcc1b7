// Command gimport imports projects and groups from a remote review instance
// into the local one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gimport/internal/config"
	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/telemetry"
	"github.com/steveyegge/gimport/internal/ui"
)

var (
	actor       string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
	noColor     bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// flagKeys maps persistent flags to the configuration keys they override.
var flagKeys = map[string]string{
	"store":    config.KeyStore,
	"data-dir": config.KeyDataDir,
	"actor":    config.KeyActor,
	"json":     config.KeyJSON,
}

var rootCmd = &cobra.Command{
	Use:   "gimport",
	Short: "Import projects and groups from a remote review instance",
	Long: `gimport copies a project from a remote review instance into the local one:
its git history, every ref, and its review metadata (changes, patch sets,
comments, messages, votes and hashtags). Groups are imported separately,
optionally together with their owner and included groups.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		applyVerbosityFlags()
		applyViperOverrides(cmd)
		if noColor {
			ui.DisableColor()
		}
		if err := telemetry.Init(rootCtx, "gimport", Version); err != nil {
			WarnError("failed to initialize telemetry: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeEnv()
		shutdownTelemetry()
	},
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().String("store", "", "Storage backend: dolt, dolt-server or memory (default from config: dolt)")
	rootCmd.PersistentFlags().String("data-dir", "", "State directory for repositories, locks and logs (default .gimport)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Local user the import is recorded for (default: $GIMPORT_ACTOR, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyVerbosityFlags propagates --verbose and --quiet to the debug package.
func applyVerbosityFlags() {
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
}

// applyViperOverrides pushes explicitly set persistent flags into the
// configuration so flags win over config.yaml and the environment.
func applyViperOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		config.Set(key, f.Value.String())
	}
	jsonOutput = config.GetBool(config.KeyJSON)
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telemetry.Shutdown(ctx)
}

func main() {
	defer func() {
		if rootCancel != nil {
			rootCancel()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		closeEnv()
		shutdownTelemetry()
		exitWithError(err)
	}
}
