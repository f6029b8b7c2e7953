package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Run: %s | No entries found.\n", result.RunID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s | %s-%s UTC\n", result.RunID,
		reformat(result.Summary.FirstTimestamp, "2006-01-02 15:04:05"),
		reformat(result.Summary.LastTimestamp, "15:04:05"))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s %s\n", reformat(e.Timestamp, "15:04:05"), entryLine(e))
	}

	b.WriteString(separator + "\n")
	s := result.Summary
	outcome := s.Outcome
	if outcome == "" {
		outcome = "unfinished"
	}
	fmt.Fprintf(&b, "Summary: %d commands, %d failed | Outcome: %s\n", s.Commands, s.CommandErrors, outcome)
	return b.String()
}

// FormatEntries renders entries from several runs, one per line.
func FormatEntries(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		runID := e.RunID
		if runID == "" {
			runID = "-"
		}
		fmt.Fprintf(&b, "%-19s %-14s %s\n", reformat(e.Timestamp, "2006-01-02 15:04:05"), runID, entryLine(e))
	}
	return b.String()
}

func entryLine(e Entry) string {
	label := e.Command
	if e.Type == TypeExecution {
		label = "(execution)"
	}
	return fmt.Sprintf("%-8s %-24s %6dms  %s",
		strings.ToUpper(e.Status),
		truncate(label, 24),
		e.DurationMs,
		truncate(e.Error, 40))
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func reformat(ts, layout string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format(layout)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
