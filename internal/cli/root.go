// Package cli defines the wisma command tree.
package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "wisma",
	Short: "Wisma - multi-user conversational agent server",
	Long: `Wisma hosts one conversational agent per authenticated user, composes
each agent's toolset from external tool providers by role, and evicts
sessions that go idle.`,
	Version: version,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wisma/wisma.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
