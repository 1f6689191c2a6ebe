package main

import (
	"fmt"

	"github.com/kiranshivaraju/testscout/internal/dedupe"
	"github.com/spf13/cobra"
)

type duplicatesFlags struct {
	threshold float64
	limit     int
	noAI      bool
	format    string
}

func newDuplicatesCmd(root *rootFlags) *cobra.Command {
	flags := &duplicatesFlags{}
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find near-duplicate tests in the corpus",
		Long: `Duplicates compares every pair of corpus tests and reports the pairs
whose embeddings are at least --threshold similar. Exact copies are flagged
directly; the remaining pairs are classified by the LLM unless --no-ai is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(flags.format); err != nil {
				return err
			}
			if flags.limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			e, err := loadEnv(root, flags.noAI)
			if err != nil {
				return err
			}

			ctx, cancel := interruptible(cmd)
			defer cancel()

			rep, err := e.comps.Orchestrator.DetectDuplicates(ctx, e.source, flags.threshold, flags.limit)
			if err != nil {
				return fmt.Errorf("duplicate scan failed: %w", err)
			}

			if flags.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printDuplicates(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64VarP(&flags.threshold, "threshold", "t", dedupe.DefaultThreshold, "Minimum similarity for a duplicate candidate")
	f.IntVar(&flags.limit, "limit", dedupe.DefaultLimit, "Maximum number of pairs; 0 reports all")
	f.BoolVar(&flags.noAI, "no-ai", false, "Skip LLM classification")
	f.StringVarP(&flags.format, "format", "f", formatText, "Output format (text, json)")
	return cmd
}
