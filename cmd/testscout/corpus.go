package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kiranshivaraju/testscout/internal/app"
	"github.com/kiranshivaraju/testscout/internal/area"
	"github.com/kiranshivaraju/testscout/internal/config"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/tfs"
	"github.com/spf13/cobra"
)

var errTrackerNotConfigured = errors.New("bug-tracking service not configured: set TFS_BASE_URL and TFS_PROJECT")

func newCorpusCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect or export the test-case corpus",
	}
	cmd.AddCommand(newCorpusStatsCmd(root))
	cmd.AddCommand(newCorpusFetchCmd())
	return cmd
}

func newCorpusStatsCmd(root *rootFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Load the corpus and report counts per area and state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			e, err := loadEnv(root, true)
			if err != nil {
				return err
			}

			ctx, cancel := interruptible(cmd)
			defer cancel()

			snap, err := e.comps.Corpus.Reload(ctx, e.source)
			if err != nil {
				return err
			}
			stats := snap.Stats(areaNamer(e.comps.Catalog))

			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					corpus.Stats
					Diagnostics corpus.Diagnostics `json:"diagnostics"`
				}{stats, snap.Diagnostics()})
			}
			printStats(cmd.OutOrStdout(), stats, snap.Diagnostics())
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format (text, json)")
	return cmd
}

// areaNamer reports records under their catalog area name, falling back to
// the raw path.
func areaNamer(c *area.Catalog) func(string) string {
	return func(path string) string {
		if a, ok := c.ForPath(path); ok {
			return a.Name
		}
		return path
	}
}

type fetchFlags struct {
	area   string
	states []string
	limit  int
	out    string
}

func newCorpusFetchCmd() *cobra.Command {
	flags := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Export test cases from the bug-tracking service to a corpus CSV",
		Long: `Fetch queries the bug-tracking service for test cases under an area
path and writes them in corpus format. --area accepts a catalog area name
or a raw area path.

Examples:
  testscout corpus fetch --area Billing --out test_cases_billing.csv
  testscout corpus fetch --area 'ExpertSuite\Billing' --state Ready --state Design`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.area, "area", "a", "", "Area name or area path to export")
	f.StringSliceVar(&flags.states, "state", nil, "Only export test cases in these states (repeatable)")
	f.IntVar(&flags.limit, "limit", 0, "Maximum number of test cases; 0 exports all")
	f.StringVarP(&flags.out, "out", "o", "", "Output CSV file (default: stdout)")
	_ = cmd.MarkFlagRequired("area")
	return cmd
}

func runFetch(cmd *cobra.Command, flags *fetchFlags) error {
	cfg, err := config.LoadLocal()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tracker := app.BugTracker(cfg.TFS)
	if tracker == nil {
		return errTrackerNotConfigured
	}
	catalog, err := app.Catalog(cfg.Corpus.AreaCatalogPath)
	if err != nil {
		return err
	}
	return fetchCorpus(cmd, tracker, catalog, flags)
}

func fetchCorpus(cmd *cobra.Command, tracker tfs.Client, catalog *area.Catalog, flags *fetchFlags) error {
	areaPath := flags.area
	if a, ok := catalog.Lookup(flags.area); ok && a.PathPattern != "" {
		areaPath = a.PathPattern
	}

	ctx, cancel := interruptible(cmd)
	defer cancel()

	fmt.Fprintf(cmd.ErrOrStderr(), "Querying test cases under %s...\n", areaPath)
	records, err := tracker.QueryTestCases(ctx, tfs.QueryRequest{
		AreaPath: areaPath,
		States:   flags.states,
		Limit:    flags.limit,
	})
	if err != nil {
		return fmt.Errorf("query test cases: %w", err)
	}

	if flags.out == "" || flags.out == "-" {
		return corpus.WriteCSV(cmd.OutOrStdout(), records)
	}

	f, err := os.Create(flags.out)
	if err != nil {
		return fmt.Errorf("create %s: %w", flags.out, err)
	}
	if err := corpus.WriteCSV(f, records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", flags.out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d test cases to %s\n", len(records), flags.out)
	return nil
}
