package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rulesync",
		Short: "Reconcile filter subscriptions against a rule budget",
		Long: `rulesync compiles ad-blocking filter lists into declarative rules and
reconciles subscriptions against an in-process rule substrate, keeping the
ownership ledger in the configured store.`,
		SilenceUsage: true,
	}

	var configPath string
	var logLevel string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to rulesync.yaml (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		cmd.SetContext(withOptions(cmd.Context(), options{
			ConfigPath: configPath,
			LogLevel:   logLevel,
		}))
	}

	rootCmd.AddCommand(newCompileCommand())
	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newSnapshotCommand())
	return rootCmd
}
