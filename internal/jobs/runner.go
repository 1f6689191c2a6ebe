// Package jobs runs bug analyses asynchronously and persists their reports.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/testscout/internal/cache"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/pipeline"
	"github.com/kiranshivaraju/testscout/internal/report"
	"github.com/kiranshivaraju/testscout/internal/store"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// JobTypeAnalysis is the type of every job this runner creates.
const JobTypeAnalysis = "analysis"

const (
	statusTTL      = 30 * time.Minute
	resultTTL      = 24 * time.Hour
	defaultTimeout = 10 * time.Minute
)

// Analyzer runs one bug analysis. *pipeline.Orchestrator satisfies it.
type Analyzer interface {
	AnalyzeBug(ctx context.Context, bug models.BugContext, src corpus.Source, cfg pipeline.Config) (*models.AnalysisResult, error)
}

// Request is one analysis to run.
type Request struct {
	// BugID labels the stored report; empty for free-text bugs.
	BugID  string
	Bug    models.BugContext
	Source corpus.Source // nil means the published corpus
	Config pipeline.Config
}

// Runner creates jobs, runs them in the background and stores their reports.
type Runner struct {
	analyzer Analyzer
	store    store.Store
	cache    cache.Cache
	reports  *report.Dir
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewRunner creates a Runner. A nil cache disables status mirroring and a
// nil report dir disables CSV export. A non-positive timeout uses ten minutes.
func NewRunner(analyzer Analyzer, st store.Store, c cache.Cache, reports *report.Dir, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{
		analyzer: analyzer,
		store:    st,
		cache:    c,
		reports:  reports,
		timeout:  timeout,
	}
}

// Trigger creates a pending job and dispatches the analysis in a background
// goroutine. Returns the job immediately without waiting for it to finish.
func (r *Runner) Trigger(ctx context.Context, req Request) (*models.Job, error) {
	if _, err := req.Config.Profile(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Type:      JobTypeAnalysis,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	r.mirror(ctx, job.ID, models.JobStatusPending)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(context.WithoutCancel(ctx), job.ID, req)
	}()

	return job, nil
}

// Wait blocks until every triggered job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run performs the analysis. It recovers from panics and always leaves the
// job completed or failed.
func (r *Runner) run(ctx context.Context, jobID uuid.UUID, req Request) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("panic in analysis job", "error", p, "job_id", jobID)
			r.fail(ctx, jobID, fmt.Sprintf("panic: %v", p))
		}
	}()

	if err := r.store.UpdateJobStatus(ctx, jobID, models.JobStatusRunning); err != nil {
		slog.Error("marking job running", "job_id", jobID, "error", err)
		return
	}
	r.mirror(ctx, jobID, models.JobStatusRunning)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.analyzer.AnalyzeBug(runCtx, req.Bug, req.Source, req.Config)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("analysis exceeded %s: %w", r.timeout, err)
		}
		r.fail(ctx, jobID, err.Error())
		return
	}

	rep, err := r.Save(ctx, &jobID, req, result)
	if err != nil {
		r.completeUnsaved(ctx, jobID, result, err)
		return
	}

	opts := []store.JobUpdateOption{store.WithReportID(rep.ID)}
	if rep.ExportError != "" {
		opts = append(opts, store.WithErrorMessage("exporting report: "+rep.ExportError))
	}
	if err := r.store.UpdateJobStatus(ctx, jobID, models.JobStatusCompleted, opts...); err != nil {
		slog.Error("marking job completed", "job_id", jobID, "error", err)
		return
	}
	r.mirror(ctx, jobID, models.JobStatusCompleted)
	slog.Info("analysis job completed", "job_id", jobID, "report_id", rep.ID, "degraded", rep.Degraded)
}

// completeUnsaved finishes a job whose analysis succeeded but whose report
// could not be stored. The result is kept in the cache for Status.
func (r *Runner) completeUnsaved(ctx context.Context, jobID uuid.UUID, result *models.AnalysisResult, saveErr error) {
	slog.Warn("storing analysis report", "job_id", jobID, "error", saveErr)
	if r.cache != nil {
		if err := cache.SetJSON(ctx, r.cache, cache.JobResultKey(jobID), result, resultTTL); err != nil {
			slog.Error("caching unsaved job result", "job_id", jobID, "error", err)
		}
	}
	msg := fmt.Sprintf("storing report: %v", saveErr)
	if err := r.store.UpdateJobStatus(ctx, jobID, models.JobStatusCompleted, store.WithErrorMessage(msg)); err != nil {
		slog.Error("marking job completed", "job_id", jobID, "error", err)
		return
	}
	r.mirror(ctx, jobID, models.JobStatusCompleted)
}

// Save exports the result's CSV and stores it as a report. jobID is nil for
// synchronous analyses. A failed export is recorded in ExportError and does
// not stop the report from being stored.
func (r *Runner) Save(ctx context.Context, jobID *uuid.UUID, req Request, result *models.AnalysisResult) (*models.Report, error) {
	rep := &models.Report{
		ID:         result.ID,
		JobID:      jobID,
		BugID:      req.BugID,
		Strictness: result.Thresholds.Strictness,
		Provider:   result.Provider,
		Model:      result.Model,
		Degraded:   result.Degraded(),
		Result:     *result,
		CreatedAt:  result.CreatedAt,
	}
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}

	if r.reports != nil {
		name, err := r.reports.Save(result)
		if err != nil {
			slog.Warn("exporting report", "report_id", rep.ID, "error", err)
			rep.ExportError = err.Error()
		} else {
			rep.ExportFile = name
		}
	}

	if err := r.store.CreateReport(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// Status returns the stored job. A completed job without a report carries
// its cached result.
func (r *Runner) Status(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted || job.ReportID != nil || r.cache == nil {
		return job, nil
	}
	result, found, err := cache.GetJSON[models.AnalysisResult](ctx, r.cache, cache.JobResultKey(jobID))
	if err != nil {
		slog.Warn("loading unsaved job result", "job_id", jobID, "error", err)
	}
	if found {
		job.Result = &result
	}
	return job, nil
}

func (r *Runner) fail(ctx context.Context, jobID uuid.UUID, msg string) {
	slog.Warn("analysis job failed", "job_id", jobID, "error", msg)
	if err := r.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
		slog.Error("marking job failed", "job_id", jobID, "error", err)
	}
	r.mirror(ctx, jobID, models.JobStatusFailed)
}

func (r *Runner) mirror(ctx context.Context, jobID uuid.UUID, status string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetJobStatus(ctx, jobID, status, statusTTL); err != nil {
		slog.Warn("caching job status", "job_id", jobID, "status", status, "error", err)
	}
}
