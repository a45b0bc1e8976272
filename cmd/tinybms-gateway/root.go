package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// globalFlags holds the persistent flags shared by every subcommand, the
// same composition keskad-loco uses for its own root command: a single
// root cobra.Command with subcommands attached via AddCommand, rather than
// a flag package per subcommand.
type globalFlags struct {
	ConfigName string
	Debug      bool
}

// NewRootCommand builds the "tinybms-gateway" root command with its run and
// selftest subcommands attached.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	command := &cobra.Command{
		Use:   "tinybms-gateway",
		Short: "TinyBMS to Victron CAN gateway",
		RunE: func(command *cobra.Command, args []string) error {
			return errors.New("please select a command")
		},
	}
	command.PersistentFlags().StringVar(&flags.ConfigName, "config", "tinybms-gateway", "configuration file name (without extension), searched in . and $HOME/.tinybms-gateway")
	command.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug-level logging")

	command.AddCommand(NewRunCommand(flags))
	command.AddCommand(NewSelftestCommand(flags))
	return command
}

func newLogger(flags *globalFlags) *slog.Logger {
	level := slog.LevelInfo
	if flags.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
