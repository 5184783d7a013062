package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thelastpoet/Sentinel/cmd/sentinel/commands"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Sentinel moderation decision engine CLI",
		Long: `sentinel runs the deterministic content-safety decision pipeline.

Common workflows:
  sentinel moderate "some text"     # Run one decision and print it as JSON
  sentinel config validate          # Validate the policy config and exit
  sentinel lexicon show             # Print the active lexicon release`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	}

	rootCmd.PersistentFlags().StringP("config", "c", "config/policy.yaml", "Path to the policy config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(commands.NewModerateCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())
	rootCmd.AddCommand(commands.NewLexiconCmd())

	defer func() { _ = logging.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
