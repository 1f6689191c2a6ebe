package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/kiranshivaraju/testscout/internal/app"
	"github.com/kiranshivaraju/testscout/internal/intake"
	"github.com/kiranshivaraju/testscout/internal/pipeline"
	"github.com/kiranshivaraju/testscout/internal/report"
	"github.com/kiranshivaraju/testscout/pkg/models"
	"github.com/spf13/cobra"
)

type analyzeFlags struct {
	description string
	repro       string
	changes     string
	bug         int
	pr          int
	strictness  string
	noAreaBoost bool
	topK        int
	noAI        bool
	format      string
	export      string
}

func newAnalyzeCmd(root *rootFlags) *cobra.Command {
	flags := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Rank the corpus against a bug and analyze the closest tests",
		Long: `Analyze embeds the bug text, ranks every corpus test by similarity,
filters the ranking with the strictness profile and sends the confident
matches to the configured LLM provider.

Bug text can be given directly or fetched from the bug-tracking service
(--bug, needs TFS_BASE_URL). Code changes can come from a pull request
(--pr, needs GITHUB_OWNER and GITHUB_REPO). Explicit text wins.

Examples:
  testscout analyze --corpus tests.csv --description "Split disbursement fails to post"
  testscout analyze --bug 48211 --pr 912 --strictness strict
  testscout analyze --bug 48211 --no-ai --format json
  testscout analyze --bug 48211 --export reports/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, root, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.description, "description", "d", "", "Bug description")
	f.StringVarP(&flags.repro, "repro", "r", "", "Reproduction steps")
	f.StringVar(&flags.changes, "changes", "", "Summary of the code changes")
	f.IntVar(&flags.bug, "bug", 0, "Bug work item ID to fetch")
	f.IntVar(&flags.pr, "pr", 0, "Pull request number to summarize")
	f.StringVarP(&flags.strictness, "strictness", "s", "", "Strictness profile: strict, moderate or lenient (default: $TESTSCOUT_STRICTNESS)")
	f.BoolVar(&flags.noAreaBoost, "no-area-boost", false, "Disable the functional area boost and penalty")
	f.IntVar(&flags.topK, "top-k", 0, "Keep at most this many ranked tests; 0 keeps all (default: $TESTSCOUT_TOP_K)")
	f.BoolVar(&flags.noAI, "no-ai", false, "Skip the LLM and report similarity only")
	f.StringVarP(&flags.format, "format", "f", formatText, "Output format (text, json)")
	f.StringVar(&flags.export, "export", "", "Directory to save the CSV export of the result")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootFlags, flags *analyzeFlags) error {
	if err := checkFormat(flags.format); err != nil {
		return err
	}

	e, err := loadEnv(root, flags.noAI)
	if err != nil {
		return err
	}

	cfg, err := analyzeConfig(cmd, e, flags)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible(cmd)
	defer cancel()

	bug, err := app.Intake(e.cfg, nil).Resolve(ctx, intake.Request{
		BugID:       flags.bug,
		PRNumber:    flags.pr,
		Description: flags.description,
		ReproSteps:  flags.repro,
		CodeChanges: flags.changes,
	})
	if err != nil {
		return fmt.Errorf("resolve bug: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Analyzing against %s (%s)...\n", e.source.Key(), cfg.Strictness)
	start := time.Now()

	result, err := e.comps.Orchestrator.AnalyzeBug(ctx, bug, e.source, cfg)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	fmt.Fprintf(stderr, "Analysis complete (%.1fs)\n\n", time.Since(start).Seconds())

	var exportErr error
	if flags.export != "" {
		exportErr = exportResult(stderr, flags.export, result)
	}

	if flags.format == formatJSON {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		printAnalysis(cmd.OutOrStdout(), result)
	}
	if exportErr != nil {
		return fmt.Errorf("export failed: %w", exportErr)
	}
	return nil
}

func exportResult(stderr io.Writer, root string, result *models.AnalysisResult) error {
	dir, err := report.NewDir(root)
	if err != nil {
		return err
	}
	name, err := dir.Save(result)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "Exported %d tests to %s\n\n", result.Summary.ForExport, filepath.Join(dir.Root(), name))
	return nil
}

// analyzeConfig applies the command-line overrides on top of the environment.
func analyzeConfig(cmd *cobra.Command, e *env, flags *analyzeFlags) (pipeline.Config, error) {
	a := e.cfg.Analysis
	strictness := a.Strictness
	if cmd.Flags().Changed("strictness") {
		strictness = flags.strictness
	}
	topK := a.TopK
	if cmd.Flags().Changed("top-k") {
		topK = flags.topK
	}
	return pipeline.NewConfig(strictness, app.Overrides(a), a.AreaBoost && !flags.noAreaBoost, topK)
}
