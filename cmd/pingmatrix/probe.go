package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/pingmatrix"
	"github.com/jpalmerr/pingmatrix/config"
)

// probeCmd runs one round and prints it.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run a single round and print the results",
	Long: `Probe every configured target once and print the results.

Nothing is persisted: the storage backend and settings file are not touched.
Exits non-zero when any target fails and --strict is set.

Example:
  pingmatrix probe -c config.yaml
  pingmatrix probe -c config.yaml --strict`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	addConfigFlag(probeCmd)
	probeCmd.Flags().Bool("strict", false, "exit non-zero if any target times out or errors")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	// in-memory only
	ephemeral := *cfg
	ephemeral.SettingsFile = ""

	opts, err := config.BuildOptions(&ephemeral, logger)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}
	m, err := pingmatrix.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer m.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	entry := m.ProbeOnce(ctx)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Round %s at %s (timeout %s)\n\n", entry.ID, entry.Time().Format(time.RFC3339), m.Timers().Timeout)
	failed := printResults(out, entry.Results)

	strict, _ := cmd.Flags().GetBool("strict")
	if strict && failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(entry.Results))
	}
	return nil
}

// printResults writes one aligned row per result and returns the number of
// results that did not succeed.
func printResults(w io.Writer, results []pingmatrix.TargetLogEntry) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATUS\tLATENCY\tURL\tERROR")

	failed := 0
	for _, r := range results {
		if r.Status != pingmatrix.StatusSuccess {
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s ms\t%s\t%s\n",
			r.TargetName, r.Status, humanize.Comma(r.Duration), r.URL, r.Error)
	}
	tw.Flush()
	return failed
}
