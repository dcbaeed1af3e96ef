// Package commands implements the arrhythmix command line.
package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/banshee-data/arrhythmix/internal/version"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var red = color.New(color.FgRed, color.Bold)

// NewRootCommand returns the arrhythmix command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "arrhythmix",
		Short: "Live ECG streaming with periodic rhythm classification",
		Long: `arrhythmix reads a single-lead ECG feed from a USB serial device (or a
simulated, replayed or empty feed), keeps a live display window and
periodically classifies a longer inference window.

The latest window, connection status and prediction are served over HTTP.`,
		Version: version.String(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}
	root.AddCommand(newServeCommand(), newPortsCommand(), newClassifierCommand(), newVersionCommand())
	return root
}

// Execute runs the command line and prints any error in red.
func Execute() error {
	root := NewRootCommand()
	root.SilenceErrors = true
	root.SilenceUsage = true
	if err := root.Execute(); err != nil {
		red.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "arrhythmix", version.String())
		},
	}
}
