package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var myBuild string

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigFile string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "knobd",
		Short:         "Rotary encoder daemon",
		Long:          "knobd decodes a rotary encoder with push-button and publishes its events.",
		Version:       myBuild,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel == "" {
				return nil
			}
			return setupLogging(cmd.ErrOrStderr(), opts.LogLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "cfg", "knob.yaml", "config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides the config (debug|info|warn|error)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newReplayCommand(opts))
	cmd.AddCommand(newCaptureCommand(opts))
	cmd.AddCommand(newPortsCommand(opts))

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "knobd: %v\n", err)
		os.Exit(1)
	}
}
