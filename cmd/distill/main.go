// Command distill is the hook-path binary and operator CLI for the
// session-scoped context distiller: it implements the SessionStart,
// UserPromptSubmit, PostToolUse, and Stop hook handlers on stdin/stdout,
// plus a handful of operator subcommands for inspecting session state.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anthropics/distill/internal/config"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: false,
	Prefix:          "distill",
})

func main() {
	rootCmd := &cobra.Command{
		Use:           "distill",
		Short:         "Session-scoped context distiller for an interactive coding assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to config.json (default: ~/.distill/config.json)")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(
		hookCmd(),
		sessionsCmd(),
		statusCmd(),
		inspectCmd(),
		searchCmd(),
		annotateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		logger.Warn("loading config, falling back to defaults", "err", err)
		return config.Default()
	}
	return cfg
}
