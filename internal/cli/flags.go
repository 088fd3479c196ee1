package cli

import (
	"github.com/spf13/cobra"
)

// GlobalFlags holds global flag values
type GlobalFlags struct {
	ConfigFile string
	DryRun     bool
	LogLevel   string
	LogFormat  string
	LogFile    string
	NoProgress bool
}

// addGlobalFlags adds global flags to the root command
func addGlobalFlags(cmd *cobra.Command, flags *GlobalFlags) {
	cmd.PersistentFlags().StringVar(
		&flags.ConfigFile,
		"config",
		"",
		"config file (default is config.yaml in ., $XDG_CONFIG_HOME/ferry or ~/.ferry)",
	)
	cmd.PersistentFlags().BoolVarP(
		&flags.DryRun,
		"dry-run",
		"n",
		false,
		"report what would change without modifying anything",
	)
	cmd.PersistentFlags().StringVar(
		&flags.LogLevel,
		"log-level",
		"",
		"log level: debug, info, warn or error (overrides log.level)",
	)
	cmd.PersistentFlags().StringVar(
		&flags.LogFormat,
		"log-format",
		"",
		"log format: text or json (overrides log.format)",
	)
	cmd.PersistentFlags().StringVar(
		&flags.LogFile,
		"log-file",
		"",
		"also write logs to this rotated file (overrides log.file)",
	)
	cmd.PersistentFlags().BoolVar(
		&flags.NoProgress,
		"no-progress",
		false,
		"disable the progress bar",
	)
}
