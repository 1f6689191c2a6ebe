package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/kiranshivaraju/testscout/internal/app"
	"github.com/kiranshivaraju/testscout/internal/config"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/spf13/cobra"
)

// env is what a command needs to run the pipeline locally.
type env struct {
	cfg    *config.Config
	comps  *app.Components
	source corpus.Source
}

func loadEnv(flags *rootFlags, withoutAnalyst bool) (*env, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	path := flags.corpus
	if path == "" {
		path = cfg.Corpus.Path
	}

	comps, err := app.Build(cfg, app.Options{WithoutAnalyst: withoutAnalyst})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, comps: comps, source: app.CorpusSource(path)}, nil
}

// interruptible returns the command context cancelled on Ctrl+C.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", format, formatText, formatJSON)
	}
}
