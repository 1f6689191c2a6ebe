package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	verbose bool
	corpus  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "testscout",
		Short: "Find the regression tests a bug touches",
		Long: `testscout ranks an existing test-case corpus against a bug report,
asks an LLM which tests to keep, update or retire, and proposes new ones.

Configuration is read from the same environment variables as the server.
The database and Redis are not used.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if flags.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	pf.StringVar(&flags.corpus, "corpus", "", "Corpus CSV file or directory (default: $CORPUS_PATH)")

	root.AddCommand(newAnalyzeCmd(flags))
	root.AddCommand(newAreasCmd(flags))
	root.AddCommand(newDuplicatesCmd(flags))
	root.AddCommand(newCorpusCmd(flags))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
