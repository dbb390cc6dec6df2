package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.toml"

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jobspool",
	Short: "jobspool - file-backed job spool and process scheduler",
	Long: `jobspool records jobs (a command plus arguments) durably in a spool,
picks them up with a polling scheduler and runs them as external processes.
A job can enqueue follow-up jobs by writing "!add <json>" lines to stderr.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Override logging.level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
}
