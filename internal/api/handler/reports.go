package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/internal/report"
	"github.com/kiranshivaraju/testscout/internal/store"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// ReportStore reads persisted analysis runs.
type ReportStore interface {
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListReports(ctx context.Context, filter store.ReportFilter) ([]*models.Report, int, error)
}

// ReportFiles opens exported CSV files.
type ReportFiles interface {
	Open(name string) (*os.File, error)
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// NewListReportsHandler returns an http.HandlerFunc for GET /api/v1/reports.
func NewListReportsHandler(st ReportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := queryInt(w, r, "page", 1)
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit", defaultPageLimit)
		if !ok {
			return
		}
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = defaultPageLimit
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		q := r.URL.Query()
		reports, total, err := st.ListReports(r.Context(), store.ReportFilter{
			BugID:      q.Get("bug_id"),
			Strictness: q.Get("strictness"),
			Page:       page,
			Limit:      limit,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Collection(w, reports, response.NewPaginationMeta(page, limit, total))
	}
}

// NewGetReportHandler returns an http.HandlerFunc for GET /api/v1/reports/{reportID}.
func NewGetReportHandler(st ReportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "reportID")
		if !ok {
			return
		}
		rep, err := st.GetReport(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, rep)
	}
}

// NewReportCSVHandler returns an http.HandlerFunc for
// GET /api/v1/reports/{reportID}/csv. The exported file is served when it
// still exists; otherwise the CSV is regenerated from the stored result.
func NewReportCSVHandler(st ReportStore, files ReportFiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "reportID")
		if !ok {
			return
		}
		rep, err := st.GetReport(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		name := report.FileName(rep.ID)
		if files != nil && rep.ExportFile != "" {
			f, err := files.Open(rep.ExportFile)
			switch {
			case err == nil:
				defer f.Close()
				response.Attachment(w, name)
				if _, err := io.Copy(w, f); err != nil {
					slog.Warn("streaming report failed", "report_id", id, "error", err)
				}
				return
			case !errors.Is(err, report.ErrNotFound):
				writeError(w, r, err)
				return
			}
		}

		response.Attachment(w, name)
		if err := report.Write(w, &rep.Result); err != nil {
			slog.Warn("writing report failed", "report_id", id, "error", err)
		}
	}
}
