package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/cleanup"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/daemon"
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupRetries, "max-retries", 0, "Release attempts per resource (default from service)")
	cleanupCmd.Flags().IntVar(&cleanupBatch, "batch-size", 0, "Maximum tasks per run (default from service)")
	rootCmd.AddCommand(cleanupCmd)
}

var (
	cleanupRetries int
	cleanupBatch   int
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [task-id]",
	Short: "Release stored audio for finished tasks",
	Long: `Release source files and audio chunks held by finished tasks.
Without an argument, sweeps every eligible task past its retention
window. With a task id, cleans that one task regardless of retention.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	opts := cleanup.Options{MaxRetries: cleanupRetries, BatchSize: cleanupBatch}

	if len(args) == 1 {
		cleaned, err := d.Cleanup.CleanupTask(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		if cleaned {
			fmt.Printf("Cleaned task %s\n", args[0])
		} else {
			fmt.Printf("Task %s had nothing to release\n", args[0])
		}
		return nil
	}

	report, err := d.Cleanup.PerformCleanup(cmd.Context(), opts)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d tasks: %d cleaned, %d already clean, %d resources released\n",
		report.Scanned, report.Cleaned, report.AlreadyOK, report.Released)
	for _, id := range report.Failed {
		fmt.Printf("  failed: %s (will retry next run)\n", id)
	}
	return nil
}
