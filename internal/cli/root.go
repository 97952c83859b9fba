// Package cli implements the warden command-line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Governance core for AI agent autonomy",
	Long: "Gates agent actions behind an earned-trust maturity ladder: command and\n" +
		"directory rules, a supervised execution queue, and an escalation workflow\n" +
		"for everything an agent is not yet trusted to do alone.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.warden/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
