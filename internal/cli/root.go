// Package cli implements the bridge command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "bridge: transcribe long audio through a segmented pipeline",
	Long: `bridge splits long audio recordings into segments, transcribes them
through a speech-to-text provider, and reassembles the full transcript.

Run 'bridge serve' to start the API server and background workers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
