// Package intake builds the bug context of an analysis from explicit text,
// a tracked bug and a pull request.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/testscout/internal/cache"
	"github.com/kiranshivaraju/testscout/internal/github"
	"github.com/kiranshivaraju/testscout/internal/tfs"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// DefaultCacheTTL is used when no TTL is configured.
const DefaultCacheTTL = 15 * time.Minute

var (
	// ErrNotConfigured means a bug or PR was requested but the matching
	// service has no client.
	ErrNotConfigured = errors.New("intake source not configured")
	// ErrEmptyBug means neither explicit text nor a fetched bug supplied a
	// description or repro steps.
	ErrEmptyBug = errors.New("bug description or repro steps required")
)

// Request names the inputs of one analysis. Explicit text fields win over
// fetched ones.
type Request struct {
	BugID       int    `json:"bug_id,omitempty"`
	PRNumber    int    `json:"pr_number,omitempty"`
	Description string `json:"bug_description,omitempty"`
	ReproSteps  string `json:"repro_steps,omitempty"`
	CodeChanges string `json:"code_changes,omitempty"`
}

// Resolver turns a Request into a BugContext. Fetched bugs and pull
// requests are cached; cache failures are logged and otherwise ignored.
type Resolver struct {
	bugs  tfs.Client
	pulls github.Client
	cache cache.Cache
	ttl   time.Duration
	owner string
	repo  string
}

// NewResolver creates a Resolver. Any of bugs, pulls and c may be nil.
func NewResolver(bugs tfs.Client, pulls github.Client, c cache.Cache, ttl time.Duration, owner, repo string) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{bugs: bugs, pulls: pulls, cache: c, ttl: ttl, owner: owner, repo: repo}
}

// Bug fetches a bug from the tracking service.
func (r *Resolver) Bug(ctx context.Context, id int) (*models.BugReport, error) {
	if r.bugs == nil {
		return nil, fmt.Errorf("%w: bug tracking service", ErrNotConfigured)
	}
	return fetchCached(ctx, r, cache.BugKey(id), func() (*models.BugReport, error) {
		return r.bugs.GetBug(ctx, id)
	})
}

// PullRequest fetches a pull request of the configured repository.
func (r *Resolver) PullRequest(ctx context.Context, number int) (*models.PullRequest, error) {
	if r.pulls == nil || r.owner == "" || r.repo == "" {
		return nil, fmt.Errorf("%w: code review service", ErrNotConfigured)
	}
	return fetchCached(ctx, r, cache.PullRequestKey(r.owner, r.repo, number), func() (*models.PullRequest, error) {
		return r.pulls.GetPullRequest(ctx, r.owner, r.repo, number)
	})
}

// Resolve builds the BugContext for req.
func (r *Resolver) Resolve(ctx context.Context, req Request) (models.BugContext, error) {
	bc := models.BugContext{
		Description: strings.TrimSpace(req.Description),
		ReproSteps:  strings.TrimSpace(req.ReproSteps),
		CodeChanges: strings.TrimSpace(req.CodeChanges),
	}

	if req.BugID > 0 && (bc.Description == "" || bc.ReproSteps == "") {
		bug, err := r.Bug(ctx, req.BugID)
		if err != nil {
			return models.BugContext{}, fmt.Errorf("fetching bug %d: %w", req.BugID, err)
		}
		if bc.Description == "" {
			bc.Description = strings.TrimSpace(bug.Title + "\n" + bug.Description)
		}
		if bc.ReproSteps == "" {
			bc.ReproSteps = bug.ReproSteps
		}
	}

	if req.PRNumber > 0 && bc.CodeChanges == "" {
		pr, err := r.PullRequest(ctx, req.PRNumber)
		if err != nil {
			return models.BugContext{}, fmt.Errorf("fetching pull request %d: %w", req.PRNumber, err)
		}
		bc.CodeChanges = pr.CodeChangeSummary()
	}

	if bc.Description == "" && bc.ReproSteps == "" {
		return models.BugContext{}, ErrEmptyBug
	}
	return bc, nil
}

func fetchCached[T any](ctx context.Context, r *Resolver, key string, fetch func() (*T, error)) (*T, error) {
	if r.cache != nil {
		v, found, err := cache.GetJSON[T](ctx, r.cache, key)
		if err != nil {
			slog.Warn("intake cache read failed", "key", key, "error", err)
		} else if found {
			return &v, nil
		}
	}

	v, err := fetch()
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := cache.SetJSON(ctx, r.cache, key, v, r.ttl); err != nil {
			slog.Warn("intake cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}
