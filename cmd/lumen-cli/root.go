package main

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "lumen-cli",
	Short:   "Describe your surroundings and ask about them from a terminal",
	Version: version,
	Long: `A headless front-end for camera devices without a display. It captures a
scene, speaks its description, and answers spoken or typed questions about it.`,
	Example: `  # Interactive session driven from the keyboard
  $ lumen-cli run

  # Capture and describe a single scene
  $ lumen-cli capture

  # Print the interaction history kept by the service
  $ lumen-cli history`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(historyCmd)
}
