package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/daemon"
)

func init() {
	breakersCmd.AddCommand(breakersResetCmd)
	rootCmd.AddCommand(breakersCmd)
}

var breakersCmd = &cobra.Command{
	Use:   "breakers",
	Short: "Show circuit breaker state for external dependencies",
	RunE:  runBreakers,
}

func runBreakers(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tFAILURES\tREJECTED\tTRIPS")
	for _, s := range d.Breakers.Stats() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", s.Name, s.State, s.Failures, s.Rejected, s.TotalTrips)
	}
	return w.Flush()
}

var breakersResetCmd = &cobra.Command{
	Use:   "reset <name>",
	Short: "Force a breaker back to CLOSED",
	Args:  cobra.ExactArgs(1),
	RunE:  runBreakersReset,
}

func runBreakersReset(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if !d.Breakers.ForceReset(args[0]) {
		return fmt.Errorf("unknown breaker %q", args[0])
	}
	fmt.Printf("Breaker %s reset to CLOSED\n", args[0])
	return nil
}
