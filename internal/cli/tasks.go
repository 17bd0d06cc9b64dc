package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/tasks"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/daemon"
)

func init() {
	submitCmd.Flags().StringVar(&submitCallback, "callback", "", "Webhook URL to notify on completion")
	submitCmd.Flags().Float64Var(&submitDuration, "duration", 0, "Source duration in seconds (estimated from size when omitted)")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(submitCmd)
}

var (
	submitCallback string
	submitDuration float64
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List transcription tasks",
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	list, err := d.Tasks.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No tasks. Run 'bridge submit <file>' to get started.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tFILE\tPROGRESS\tCREATED")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			t.ID,
			t.Status,
			t.OriginalFilename,
			t.CompletedSegments, t.TotalSegments,
			t.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task's status and per-segment progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	view, err := d.Tasks.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Task:     %s\n", view.TaskID)
	fmt.Printf("File:     %s\n", view.OriginalFilename)
	fmt.Printf("Status:   %s\n", view.Status)
	fmt.Printf("Progress: %d/%d (%.0f%%)\n", view.CompletedSegments, view.TotalSegments, view.Percentage)
	if view.Error != "" {
		fmt.Printf("Error:    %s\n", view.Error)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nWINDOW\tSTATUS\tTEXT")
	for _, seg := range view.Segments {
		text := seg.Text
		if len(text) > 48 {
			text = text[:45] + "..."
		}
		if seg.Error != "" {
			text = "error: " + seg.Error
		}
		fmt.Fprintf(w, "%.0f-%.0fs\t%s\t%s\n", seg.StartTime, seg.EndTime, seg.Status, text)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if view.Transcription != "" {
		fmt.Printf("\nTranscript:\n%s\n", view.Transcription)
	}
	return nil
}

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit a local audio file for transcription",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	task, err := d.Tasks.Submit(cmd.Context(), tasks.SubmitRequest{
		SourcePath:       args[0],
		OriginalFilename: filepath.Base(args[0]),
		CallbackURL:      submitCallback,
		Duration:         submitDuration,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created task %s (%d segments)\n", task.ID, task.TotalSegments)
	fmt.Println("The serve daemon picks pending segments up on its next queue pass.")
	return nil
}
