package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/pingmatrix"
)

// historyCmd prints stored rounds.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print stored rounds, newest first",
	Long: `Print the stored history, newest first, with relative times and a
per-target summary.

Entries outside the retention window are removed from the store on load.

Example:
  pingmatrix history -c config.yaml
  pingmatrix history -c config.yaml --limit 5 --verbose`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	addConfigFlag(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "maximum entries to print (0 for all)")
	historyCmd.Flags().BoolP("verbose", "v", false, "print every result of each entry")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return fmt.Errorf("limit cannot be negative, got %d", limit)
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	return withMonitor(cmd, func(_ context.Context, m *pingmatrix.Monitor) error {
		entries := m.Log()
		out := cmd.OutOrStdout()

		if len(entries) == 0 {
			fmt.Fprintln(out, "No history stored.")
			return nil
		}

		fmt.Fprintf(out, "%s stored, oldest %s\n\n",
			pluralEntries(len(entries)), humanize.Time(entries[len(entries)-1].Time()))

		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %-14s  %s\n", e.Time().Format(time.DateTime), humanize.Time(e.Time()), summarize(e))
			if verbose {
				printResults(out, e.Results)
				fmt.Fprintln(out)
			}
		}
		return nil
	})
}

func pluralEntries(n int) string {
	if n == 1 {
		return "1 entry"
	}
	return humanize.Comma(int64(n)) + " entries"
}

// summarize renders counts per status and the slowest success.
func summarize(e pingmatrix.LogEntry) string {
	counts := map[pingmatrix.Status]int{}
	var slowest pingmatrix.TargetLogEntry
	for _, r := range e.Results {
		counts[r.Status]++
		if r.Status == pingmatrix.StatusSuccess && r.Duration > slowest.Duration {
			slowest = r
		}
	}

	parts := []string{fmt.Sprintf("%d ok", counts[pingmatrix.StatusSuccess])}
	if n := counts[pingmatrix.StatusTimeout]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d timeout", n))
	}
	if n := counts[pingmatrix.StatusError]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d error", n))
	}
	if slowest.TargetName != "" {
		parts = append(parts, fmt.Sprintf("slowest %s %dms", slowest.TargetName, slowest.Duration))
	}
	return strings.Join(parts, ", ")
}
