package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job tracks an asynchronous analysis. The API returns a job on POST /api/v1/jobs;
// the client polls GET /api/v1/jobs/{job_id} until status is completed or failed.
type Job struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	Type         string     `db:"type"          json:"type"`
	Status       string     `db:"status"        json:"status"`
	ReportID     *uuid.UUID `db:"report_id"     json:"report_id,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`

	// Result is set on a completed job whose report could not be stored.
	Result *AnalysisResult `db:"-" json:"result,omitempty"`
}

// Report is a persisted analysis run.
type Report struct {
	ID         uuid.UUID      `db:"id"          json:"id"`
	JobID      *uuid.UUID     `db:"job_id"      json:"job_id,omitempty"`
	BugID      string         `db:"bug_id"      json:"bug_id,omitempty"`
	Strictness string         `db:"strictness"  json:"strictness"`
	Provider   string         `db:"provider"    json:"provider"`
	Model      string         `db:"model"       json:"model"`
	Degraded   bool           `db:"degraded"    json:"degraded"`
	ExportFile string         `db:"export_file" json:"export_file,omitempty"`
	Result     AnalysisResult `db:"result"      json:"result"`
	CreatedAt  time.Time      `db:"created_at"  json:"created_at"`

	// ExportError is why the CSV export failed; the report is stored without it.
	ExportError string `db:"-" json:"export_error,omitempty"`
}
