package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

// DefaultMaxTestChars is the per-test prompt budget.
const DefaultMaxTestChars = 2000

// Outcome is the result of an analysis: either a judgment or the error that
// prevented one. Callers must check OK before using the judgment.
type Outcome struct {
	judgment models.Judgment
	err      error
}

// Ok wraps a judgment.
func Ok(j models.Judgment) Outcome { return Outcome{judgment: j} }

// Failed wraps an error, which should match ErrAnalysisParse or ErrAnalysisUnavailable.
func Failed(err error) Outcome { return Outcome{err: err} }

// OK reports whether the outcome carries a judgment.
func (o Outcome) OK() bool { return o.err == nil }

// Judgment returns the judgment, or an empty one on failure.
func (o Outcome) Judgment() models.Judgment {
	if o.err != nil {
		return models.EmptyJudgment()
	}
	return o.judgment
}

// Err returns the failure, or nil.
func (o Outcome) Err() error { return o.err }

// AnalystConfig tunes an Analyst.
type AnalystConfig struct {
	// Timeout bounds each provider call.
	Timeout time.Duration
	// RequestsPerSecond paces outbound calls; zero disables pacing.
	RequestsPerSecond float64
	MaxTestChars      int
}

// Analyst asks an LLM for relevance and duplicate judgments.
type Analyst struct {
	provider     models.AIProvider
	limiter      *rate.Limiter
	timeout      time.Duration
	maxTestChars int
}

// NewAnalyst creates an Analyst.
func NewAnalyst(provider models.AIProvider, cfg AnalystConfig) *Analyst {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.MaxTestChars <= 0 {
		cfg.MaxTestChars = DefaultMaxTestChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Analyst{
		provider:     provider,
		limiter:      rate.NewLimiter(limit, 1),
		timeout:      cfg.Timeout,
		maxTestChars: cfg.MaxTestChars,
	}
}

func (a *Analyst) Provider() string { return a.provider.Name() }
func (a *Analyst) Model() string    { return a.provider.Model() }

// Analyze judges the shortlist against the bug. The shortlist is expected to
// be already gated; it is sent as given.
func (a *Analyst) Analyze(ctx context.Context, bug models.BugContext, shortlist []models.SimilarityResult) Outcome {
	if len(shortlist) == 0 {
		return Ok(models.EmptyJudgment())
	}

	allowed := make(map[string]bool, len(shortlist))
	for _, r := range shortlist {
		allowed[r.TestCase.ID] = true
	}

	start := time.Now()
	c, err := a.complete(ctx, buildAnalysisMessages(bug, shortlist, a.maxTestChars))
	if err != nil {
		slog.Warn("analysis unavailable", "provider", a.provider.Name(), "error", err)
		return Failed(err)
	}

	j, err := parseJudgment(c.Content, allowed)
	if err != nil {
		slog.Warn("analysis response rejected", "provider", a.provider.Name(), "error", err)
		return Failed(err)
	}

	slog.Info("analysis completed",
		"provider", a.provider.Name(),
		"model", a.provider.Model(),
		"shortlist", len(shortlist),
		"related_tests", len(j.RelatedTests),
		"input_tokens", c.InputTokens,
		"output_tokens", c.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Ok(j)
}

// ClassifyDuplicates labels each pair TRUE DUPLICATE, OVERLAPPING or
// DISTINCT. The returned slice is a copy of pairs; pairs the model did not
// mention are left unclassified.
func (a *Analyst) ClassifyDuplicates(ctx context.Context, pairs []models.DuplicatePair) ([]models.DuplicatePair, error) {
	out := make([]models.DuplicatePair, len(pairs))
	copy(out, pairs)
	if len(pairs) == 0 {
		return out, nil
	}

	c, err := a.complete(ctx, buildDuplicateMessages(pairs))
	if err != nil {
		return out, err
	}
	verdicts, err := parsePairVerdicts(c.Content, len(pairs))
	if err != nil {
		return out, err
	}
	for _, v := range verdicts {
		p := &out[v.PairID-1]
		p.Classification = v.Classification
		p.Rationale = v.Reasoning
		p.Recommendation = v.Recommendation
	}
	return out, nil
}

// complete calls the provider with pacing and a per-attempt timeout. A
// transient failure is retried once; errors wrap ErrAnalysisUnavailable.
func (a *Analyst) complete(ctx context.Context, messages []models.Message) (*models.Completion, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}

	c, err := a.attempt(ctx, messages)
	if err != nil && retryable(ctx, err) {
		slog.Warn("retrying transient provider failure", "provider", a.provider.Name(), "error", err)
		c, err = a.attempt(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, ErrInvalidResponse)
	}
	return c, nil
}

func (a *Analyst) attempt(ctx context.Context, messages []models.Message) (*models.Completion, error) {
	actx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	c, err := a.provider.Complete(actx, messages)
	if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &models.ProviderError{Provider: a.provider.Name(), Timeout: true, Err: fmt.Errorf("%w: %w", ErrInferenceTimeout, err)}
	}
	return c, err
}

// retryable reports whether err is a transient provider failure and the
// caller is still waiting.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var pe *models.ProviderError
	return errors.As(err, &pe) && pe.Transient()
}
