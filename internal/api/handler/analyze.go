package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/filter"
	"github.com/kiranshivaraju/testscout/internal/intake"
	"github.com/kiranshivaraju/testscout/internal/jobs"
	"github.com/kiranshivaraju/testscout/internal/pipeline"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Upload limits for multipart analyze requests.
const (
	maxUploadBytes = 32 << 20
	maxMemoryBytes = 8 << 20
)

// Analyzer runs one analysis synchronously.
type Analyzer interface {
	AnalyzeBug(ctx context.Context, bug models.BugContext, src corpus.Source, cfg pipeline.Config) (*models.AnalysisResult, error)
}

// BugResolver builds the bug context of a request.
type BugResolver interface {
	Resolve(ctx context.Context, req intake.Request) (models.BugContext, error)
}

// ReportSaver persists a finished analysis.
type ReportSaver interface {
	Save(ctx context.Context, jobID *uuid.UUID, req jobs.Request, result *models.AnalysisResult) (*models.Report, error)
}

// JobRunner starts and reports on asynchronous analyses.
type JobRunner interface {
	Trigger(ctx context.Context, req jobs.Request) (*models.Job, error)
	Status(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
}

// AnalysisDefaults are the server-side settings a request may override.
type AnalysisDefaults struct {
	Strictness string
	Overrides  filter.Overrides
	AreaBoost  bool
	TopK       int
}

type analyzeRequest struct {
	intake.Request
	Strictness    string   `json:"strictness"`
	MinSimilarity *float64 `json:"min_similarity"`
	AnalysisGate  *float64 `json:"analysis_gate"`
	ExportGate    *float64 `json:"export_gate"`
	AreaBoost     *bool    `json:"area_boost"`
	TopK          *int     `json:"top_k"`
}

// config layers the request over the defaults.
func (d AnalysisDefaults) config(req analyzeRequest) (pipeline.Config, error) {
	strictness := d.Strictness
	if req.Strictness != "" {
		strictness = req.Strictness
	}
	o := d.Overrides
	if req.MinSimilarity != nil {
		o.Minimum = req.MinSimilarity
	}
	if req.AnalysisGate != nil {
		o.AnalysisGate = req.AnalysisGate
	}
	if req.ExportGate != nil {
		o.ExportGate = req.ExportGate
	}
	boost := d.AreaBoost
	if req.AreaBoost != nil {
		boost = *req.AreaBoost
	}
	topK := d.TopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	return pipeline.NewConfig(strictness, o, boost, topK)
}

// decodeAnalyzeRequest reads a JSON body, or a multipart form with the JSON
// in a "request" field and an optional "corpus" CSV file. src is nil when
// no corpus was uploaded.
func decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (req analyzeRequest, src corpus.Source, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, nil, errors.New("invalid JSON body")
		}
		return req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		return req, nil, fmt.Errorf("invalid multipart body: %v", err)
	}
	if raw := r.FormValue("request"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return req, nil, errors.New("invalid JSON in request field")
		}
	}

	file, header, err := r.FormFile("corpus")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, fmt.Errorf("invalid corpus upload: %v", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return req, nil, fmt.Errorf("invalid corpus upload: %v", err)
	}
	return req, corpus.BytesSource{Name: header.Filename, Data: data}, nil
}

// prepare decodes and validates a request shared by /analyze and /jobs.
func prepare(w http.ResponseWriter, r *http.Request, resolver BugResolver, defaults AnalysisDefaults) (jobs.Request, bool) {
	req, src, err := decodeAnalyzeRequest(w, r)
	if err != nil {
		invalidRequest(w, err.Error())
		return jobs.Request{}, false
	}

	cfg, err := defaults.config(req)
	if err != nil {
		writeError(w, r, err)
		return jobs.Request{}, false
	}

	bug, err := resolver.Resolve(r.Context(), req.Request)
	if err != nil {
		writeError(w, r, err)
		return jobs.Request{}, false
	}

	jr := jobs.Request{Bug: bug, Source: src, Config: cfg}
	if req.BugID > 0 {
		jr.BugID = fmt.Sprint(req.BugID)
	}
	return jr, true
}

// analyzeResponse is a finished analysis. Persistence failures are reported
// next to the result instead of replacing it.
type analyzeResponse struct {
	*models.AnalysisResult
	ReportID    *uuid.UUID `json:"report_id,omitempty"`
	ExportFile  string     `json:"export_file,omitempty"`
	ExportError string     `json:"export_error,omitempty"`
	SaveError   string     `json:"save_error,omitempty"`
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/analyze.
// saver may be nil, in which case results are not persisted.
func NewAnalyzeHandler(analyzer Analyzer, resolver BugResolver, saver ReportSaver, defaults AnalysisDefaults) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := prepare(w, r, resolver, defaults)
		if !ok {
			return
		}

		result, err := analyzer.AnalyzeBug(r.Context(), req.Bug, req.Source, req.Config)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := analyzeResponse{AnalysisResult: result}
		if saver != nil {
			rep, err := saver.Save(r.Context(), nil, req, result)
			if err != nil {
				slog.Warn("saving analysis report", "analysis_id", result.ID, "path", r.URL.Path, "error", err)
				out.SaveError = err.Error()
			} else {
				out.ReportID = &rep.ID
				out.ExportFile = rep.ExportFile
				out.ExportError = rep.ExportError
			}
		}
		response.JSON(w, out)
	}
}

// NewTriggerJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewTriggerJobHandler(runner JobRunner, resolver BugResolver, defaults AnalysisDefaults) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := prepare(w, r, resolver, defaults)
		if !ok {
			return
		}

		job, err := runner.Trigger(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/api/v1/jobs/"+job.ID.String())
		response.Accepted(w, job)
	}
}

// NewPollJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewPollJobHandler(runner JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "jobID")
		if !ok {
			return
		}
		job, err := runner.Status(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}
