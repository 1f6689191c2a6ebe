// Package pipeline runs one analysis request end to end: corpus, query
// embedding, scoring, filtering and the LLM pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/testscout/internal/ai"
	"github.com/kiranshivaraju/testscout/internal/area"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/dedupe"
	"github.com/kiranshivaraju/testscout/internal/embed"
	"github.com/kiranshivaraju/testscout/internal/filter"
	"github.com/kiranshivaraju/testscout/internal/similarity"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Stage names, logged as the "stage" attribute.
const (
	StageIdle          = "idle"
	StageCorpusLoaded  = "corpus_loaded"
	StageQueryEmbedded = "query_embedded"
	StageScored        = "scored"
	StageFiltered      = "filtered"
	StageAnalyzed      = "analyzed"
	StageAssembled     = "assembled"
)

// Analyst is the LLM pass. *ai.Analyst implements it.
type Analyst interface {
	Analyze(ctx context.Context, bug models.BugContext, shortlist []models.SimilarityResult) ai.Outcome
	ClassifyDuplicates(ctx context.Context, pairs []models.DuplicatePair) ([]models.DuplicatePair, error)
	Provider() string
	Model() string
}

// Embedder embeds the query text. *embed.Service implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Orchestrator wires the pipeline stages together. It is safe for
// concurrent use.
type Orchestrator struct {
	corpus   *corpus.Cache
	embedder Embedder
	analyst  Analyst
	catalog  *area.Catalog
	policy   similarity.Policy
}

// NewOrchestrator creates an Orchestrator. A nil analyst yields
// similarity-only results; policy supplies boost and penalty values and is
// switched on or off per request by Config.AreaBoostEnabled.
func NewOrchestrator(cache *corpus.Cache, embedder Embedder, analyst Analyst, catalog *area.Catalog, policy similarity.Policy) *Orchestrator {
	return &Orchestrator{
		corpus:   cache,
		embedder: embedder,
		analyst:  analyst,
		catalog:  catalog,
		policy:   policy,
	}
}

// Catalog returns the area catalog used for scoring.
func (o *Orchestrator) Catalog() *area.Catalog { return o.catalog }

// Corpus returns the shared corpus cache.
func (o *Orchestrator) Corpus() *corpus.Cache { return o.corpus }

// snapshot returns the corpus for src, or the published snapshot when src is nil.
func (o *Orchestrator) snapshot(ctx context.Context, src corpus.Source) (*corpus.Snapshot, error) {
	if src == nil {
		if snap := o.corpus.Current(); snap != nil {
			return snap, nil
		}
		return nil, fmt.Errorf("%w: no corpus loaded", corpus.ErrCorpusUnavailable)
	}
	return o.corpus.For(ctx, src)
}

// AnalyzeBug runs the full pipeline for one bug. Only an invalid config, an
// unavailable corpus and an unavailable embedding model are returned as
// errors; an analyst failure yields a similarity-only result with
// AnalysisError set.
func (o *Orchestrator) AnalyzeBug(ctx context.Context, bug models.BugContext, src corpus.Source, cfg Config) (*models.AnalysisResult, error) {
	start := time.Now()
	log := slog.With("request_id", uuid.New().String())

	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}
	log.Debug("pipeline stage", "stage", StageIdle, "strictness", profile.Name)

	snap, err := o.snapshot(ctx, src)
	if err != nil {
		log.Error("corpus load failed", "stage", StageIdle, "error", err)
		return nil, err
	}
	log.Info("pipeline stage", "stage", StageCorpusLoaded, "records", snap.Len())

	queryText := bug.QueryText()
	query, err := o.embedder.Embed(ctx, queryText)
	if err != nil {
		log.Error("query embedding failed", "stage", StageCorpusLoaded, "error", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	log.Debug("pipeline stage", "stage", StageQueryEmbedded)

	policy := o.policy
	policy.Enabled = cfg.AreaBoostEnabled
	ranked := similarity.NewScorer(policy, o.catalog).Rank(queryText, query, snap.Candidates())
	if cfg.TopK > 0 && len(ranked) > cfg.TopK {
		ranked = ranked[:cfg.TopK]
	}
	log.Debug("pipeline stage", "stage", StageScored, "ranked", len(ranked))

	views := filter.Apply(ranked, profile)
	log.Info("pipeline stage", "stage", StageFiltered,
		"survivors", len(views.Survivors),
		"for_analysis", len(views.ForAnalysis),
		"for_export", len(views.ForExport),
	)

	result := &models.AnalysisResult{
		ID:                 uuid.New(),
		Bug:                bug,
		SimilarTests:       views.Survivors,
		Judgment:           models.EmptyJudgment(),
		Thresholds:         cfg.thresholds(),
		NoConfidentMatches: len(views.ForAnalysis) == 0,
	}

	if len(views.ForAnalysis) > 0 && o.analyst != nil {
		outcome := o.analyst.Analyze(ctx, bug, views.ForAnalysis)
		result.Judgment = outcome.Judgment()
		result.Provider = o.analyst.Provider()
		result.Model = o.analyst.Model()
		if !outcome.OK() {
			result.AnalysisError = outcome.Err().Error()
			log.Warn("analysis degraded to similarity only", "stage", StageFiltered, "error", outcome.Err())
		}
		log.Debug("pipeline stage", "stage", StageAnalyzed, "ok", outcome.OK())
	}

	diag := snap.Diagnostics()
	result.Summary = models.AnalysisSummary{
		CorpusSize:        snap.Len(),
		MalformedSkipped:  diag.Malformed,
		UnembeddedSkipped: snap.Unembedded(),
		Survivors:         len(views.Survivors),
		ForAnalysis:       len(views.ForAnalysis),
		ForExport:         len(views.ForExport),
		DuplicatesFound:   len(result.Judgment.DuplicateGroups),
	}
	result.CreatedAt = time.Now().UTC()

	log.Info("pipeline stage", "stage", StageAssembled,
		"result_id", result.ID,
		"degraded", result.Degraded(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// DetectDuplicates scans the corpus for duplicate candidates and asks the
// analyst to classify the pairs that are not exact copies. A classification
// failure is recorded in the report; the candidate pairs are kept.
func (o *Orchestrator) DetectDuplicates(ctx context.Context, src corpus.Source, threshold float64, limit int) (*models.DuplicateReport, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: duplicate threshold must be in [0, 1], got %v", filter.ErrInvalidConfiguration, threshold)
	}

	snap, err := o.snapshot(ctx, src)
	if err != nil {
		return nil, err
	}

	cands := snap.Candidates()
	pairs, err := dedupe.FindPairs(ctx, cands, threshold, limit)
	if err != nil {
		return nil, err
	}

	report := &models.DuplicateReport{
		Threshold:     threshold,
		TestsCompared: len(cands),
	}

	if o.analyst != nil {
		var pending []int
		var toClassify []models.DuplicatePair
		for i, p := range pairs {
			if !p.Exact {
				pending = append(pending, i)
				toClassify = append(toClassify, p)
			}
		}
		if len(toClassify) > 0 {
			report.Provider = o.analyst.Provider()
			report.Model = o.analyst.Model()
			classified, err := o.analyst.ClassifyDuplicates(ctx, toClassify)
			if err != nil {
				report.ClassifyError = err.Error()
				slog.Warn("duplicate classification failed", "pairs", len(toClassify), "error", err)
			} else {
				for k, i := range pending {
					pairs[i] = classified[k]
				}
			}
		}
	}

	report.Pairs = pairs
	report.Groups = dedupe.Groups(pairs)
	report.CreatedAt = time.Now().UTC()

	slog.Info("duplicate scan completed",
		"tests", len(cands),
		"pairs", len(pairs),
		"groups", len(report.Groups),
	)
	return report, nil
}

// IsFatal reports whether err aborts an analysis rather than degrading it.
func IsFatal(err error) bool {
	return errors.Is(err, corpus.ErrCorpusUnavailable) || errors.Is(err, embed.ErrModelUnavailable)
}
