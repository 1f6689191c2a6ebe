// Package app builds the pipeline components shared by the server and the CLI
// from configuration.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/testscout/internal/ai"
	"github.com/kiranshivaraju/testscout/internal/area"
	"github.com/kiranshivaraju/testscout/internal/cache"
	"github.com/kiranshivaraju/testscout/internal/config"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/embed"
	"github.com/kiranshivaraju/testscout/internal/filter"
	"github.com/kiranshivaraju/testscout/internal/github"
	"github.com/kiranshivaraju/testscout/internal/intake"
	"github.com/kiranshivaraju/testscout/internal/pipeline"
	"github.com/kiranshivaraju/testscout/internal/similarity"
	"github.com/kiranshivaraju/testscout/internal/tfs"
)

const codeReviewTimeout = 30 * time.Second

// Components are the wired pipeline pieces.
type Components struct {
	Embedder     *embed.Service
	Catalog      *area.Catalog
	Corpus       *corpus.Cache
	Analyst      *ai.Analyst
	Orchestrator *pipeline.Orchestrator
}

// Options adjust Build.
type Options struct {
	// WithoutAnalyst builds a similarity-only pipeline.
	WithoutAnalyst bool
}

// Build wires the embedder, area catalog, corpus cache, analyst and
// orchestrator. The embedding model is loaded lazily on first use.
func Build(cfg *config.Config, opts Options) (*Components, error) {
	catalog, err := Catalog(cfg.Corpus.AreaCatalogPath)
	if err != nil {
		return nil, err
	}

	svc := Embedder(cfg.Embedding)
	c := &Components{
		Embedder: svc,
		Catalog:  catalog,
		Corpus:   corpus.NewCache(svc, cfg.Embedding.Concurrency),
	}

	var analyst pipeline.Analyst
	if !opts.WithoutAnalyst {
		provider, err := ai.NewProvider(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("create AI provider: %w", err)
		}
		c.Analyst = ai.NewAnalyst(provider, ai.AnalystConfig{
			Timeout:           cfg.AI.InferenceTimeout,
			RequestsPerSecond: cfg.AI.RequestsPerSecond,
			MaxTestChars:      cfg.Analysis.MaxTestChars,
		})
		analyst = c.Analyst
		slog.Info("AI provider initialized", "provider", provider.Name(), "model", provider.Model())
	}

	c.Orchestrator = pipeline.NewOrchestrator(c.Corpus, svc, analyst, catalog, Policy(cfg.Analysis))
	return c, nil
}

// Embedder returns the configured embedding service.
func Embedder(cfg config.EmbeddingConfig) *embed.Service {
	switch cfg.Provider {
	case "ollama":
		return embed.NewService(embed.OllamaLoader(cfg.ServiceURL, cfg.Model, cfg.Dimensions, cfg.Timeout), cfg.Dimensions)
	default:
		return embed.NewService(embed.HashLoader(cfg.Dimensions), cfg.Dimensions)
	}
}

// Catalog loads the area catalog at path, or the built-in one when path is empty.
func Catalog(path string) (*area.Catalog, error) {
	if path == "" {
		return area.DefaultCatalog(), nil
	}
	c, err := area.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	slog.Info("area catalog loaded", "path", path, "areas", len(c.Areas))
	return c, nil
}

// Policy returns the area adjustment policy. Enabled is decided per request.
func Policy(cfg config.AnalysisConfig) similarity.Policy {
	return similarity.Policy{Enabled: cfg.AreaBoost, Boost: cfg.BoostValue, Penalty: cfg.PenaltyValue}
}

// Overrides returns the configured per-threshold overrides.
func Overrides(cfg config.AnalysisConfig) filter.Overrides {
	return filter.Overrides{
		Minimum:      cfg.MinSimilarity,
		AnalysisGate: cfg.AnalysisGate,
		ExportGate:   cfg.ExportGate,
	}
}

// PipelineConfig resolves the configured analysis defaults.
func PipelineConfig(cfg config.AnalysisConfig) (pipeline.Config, error) {
	return pipeline.NewConfig(cfg.Strictness, Overrides(cfg), cfg.AreaBoost, cfg.TopK)
}

// CorpusSource returns the source for the configured corpus path. A path
// that cannot be inspected yet is treated as a single file so a later
// reload reports the failure.
func CorpusSource(path string) corpus.Source {
	src, err := corpus.OpenPath(path)
	if err != nil {
		return corpus.FileSource{Path: path}
	}
	return src
}

// BugTracker returns the bug-tracking client, or nil when TFS_BASE_URL is unset.
func BugTracker(cfg config.TFSConfig) tfs.Client {
	if cfg.BaseURL == "" {
		return nil
	}
	return tfs.NewHTTPClient(cfg.BaseURL, cfg.Collection, cfg.Project, cfg.PAT, cfg.Timeout)
}

// CodeReview returns the code-review client, or nil when no repository is configured.
func CodeReview(cfg config.GitHubConfig) github.Client {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil
	}
	return github.NewHTTPClient(cfg.BaseURL, cfg.Token, codeReviewTimeout)
}

// Intake returns a resolver over the configured upstream services. c may be nil.
func Intake(cfg *config.Config, c cache.Cache) *intake.Resolver {
	return intake.NewResolver(BugTracker(cfg.TFS), CodeReview(cfg.GitHub), c, cfg.Intake.CacheTTL, cfg.GitHub.Owner, cfg.GitHub.Repo)
}
