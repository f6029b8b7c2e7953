package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scriptguard/internal/audit"
)

var (
	replayLog    string
	replayFrom   string
	replayTo     string
	replayFormat string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayLog, "log", "l", "", "audit log to read (required)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "skip entries before this RFC3339 time")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "skip entries after this RFC3339 time")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "text or json")
	replayCmd.MarkFlagRequired("log")
}

var replayCmd = &cobra.Command{
	Use:   "replay <run-id>",
	Short: "Show what a single script run did",
	Long: `Prints every bridged command one run issued, in order, followed by
the run's final status. Entries from other runs are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	from, err := parseTimeFlag("from", replayFrom)
	if err != nil {
		return err
	}
	to, err := parseTimeFlag("to", replayTo)
	if err != nil {
		return err
	}

	result, err := audit.Replay(replayLog, audit.ReplayFilter{RunID: args[0], From: from, To: to})
	if err != nil {
		return err
	}

	if replayFormat != "json" {
		fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(result))
		return nil
	}
	out, err := audit.FormatJSON(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// parseTimeFlag returns the zero time for an empty value.
func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %q is not RFC3339: %w", name, value, err)
	}
	return t, nil
}
