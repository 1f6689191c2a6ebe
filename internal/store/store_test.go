package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/testscout/internal/store"
	"github.com/kiranshivaraju/testscout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testscout_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr))
	// Second run is a no-op.
	require.NoError(t, store.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newKey(prefix string, now time.Time) *models.APIKey {
	return &models.APIKey{
		ID:        uuid.New(),
		Name:      "key-" + prefix,
		KeyHash:   "hash-" + uuid.NewString(),
		KeyPrefix: prefix,
		Scopes:    []string{models.ScopeAnalyze},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newJob(now time.Time) *models.Job {
	return &models.Job{
		ID: uuid.New(), Type: "analysis",
		Status: models.JobStatusPending, CreatedAt: now, UpdatedAt: now,
	}
}

func newReport(bugID, strictness string, createdAt time.Time) *models.Report {
	id := uuid.New()
	return &models.Report{
		ID:         id,
		BugID:      bugID,
		Strictness: strictness,
		Provider:   "ollama",
		Model:      "llama3",
		ExportFile: "test_analysis_" + id.String() + ".csv",
		Result: models.AnalysisResult{
			ID:  id,
			Bug: models.BugContext{Description: "disbursement posting fails"},
			SimilarTests: []models.SimilarityResult{{
				TestCase: &models.TestCase{ID: "101", Title: "Post disbursement", Area: `ExpertSuite\Financials\Expert Disbursements`},
				Raw:      0.7,
				Adjusted: 0.85,
			}},
			Judgment:   models.EmptyJudgment(),
			Thresholds: models.Thresholds{Strictness: strictness, Minimum: 0.4, AnalysisGate: 0.6, ExportGate: 0.6, TopK: 15},
			CreatedAt:  createdAt,
		},
		CreatedAt: createdAt,
	}
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := newKey("ts_abcd1234", now)
	key.Scopes = []string{models.ScopeAnalyze, models.ScopeAdmin}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "ts_abcd1234")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, key.KeyHash, keys[0].KeyHash)
	assert.Equal(t, []string{"analyze", "admin"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)
}

func TestAPIKey_List(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateAPIKey(ctx, newKey("ts_"+uuid.NewString()[:8], now.Add(time.Duration(i)*time.Second))))
	}

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.True(t, keys[0].CreatedAt.After(keys[2].CreatedAt))
}

func TestAPIKey_Revoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := newKey("ts_revoke1", now)
	require.NoError(t, s.CreateAPIKey(ctx, key))

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.GetAPIKeyByPrefix(ctx, "ts_revoke1")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Revoking twice reports not found.
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)
}

func TestAPIKey_RevokeNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.RevokeAPIKey(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAPIKey_UpdateLastUsed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := newKey("ts_used0001", now)
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "ts_used0001")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

func TestAPIKey_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := newKey("ts_dup00001", now)
	require.NoError(t, s.CreateAPIKey(ctx, key))

	key2 := newKey("ts_dup00002", now)
	key2.ID = key.ID
	assert.ErrorIs(t, s.CreateAPIKey(ctx, key2), store.ErrDuplicateKey)
}

// --- Report Tests ---

func TestReport_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := newJob(now)
	require.NoError(t, s.CreateJob(ctx, job))

	r := newReport("4711", "moderate", now)
	r.JobID = &job.ID
	r.Degraded = true
	r.Result.AnalysisError = "analysis unavailable: status 503"
	require.NoError(t, s.CreateReport(ctx, r))

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "4711", got.BugID)
	require.NotNil(t, got.JobID)
	assert.Equal(t, job.ID, *got.JobID)
	assert.True(t, got.Degraded)
	assert.Equal(t, r.ExportFile, got.ExportFile)

	require.Len(t, got.Result.SimilarTests, 1)
	assert.Equal(t, "101", got.Result.SimilarTests[0].TestCase.ID)
	assert.InDelta(t, 0.85, got.Result.SimilarTests[0].Adjusted, 1e-9)
	assert.Equal(t, "analysis unavailable: status 503", got.Result.AnalysisError)
	assert.Equal(t, 15, got.Result.Thresholds.TopK)
}

func TestReport_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetReport(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReport_ListWithFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.CreateReport(ctx, newReport("1", "moderate", now.Add(-2*time.Minute))))
	require.NoError(t, s.CreateReport(ctx, newReport("1", "strict", now.Add(-time.Minute))))
	require.NoError(t, s.CreateReport(ctx, newReport("2", "moderate", now)))

	all, total, err := s.ListReports(ctx, store.ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "2", all[0].BugID, "newest first")

	byBug, total, err := s.ListReports(ctx, store.ReportFilter{BugID: "1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, byBug, 2)

	both, total, err := s.ListReports(ctx, store.ReportFilter{BugID: "1", Strictness: "strict"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, both, 1)
	assert.Equal(t, "strict", both[0].Strictness)

	page, total, err := s.ListReports(ctx, store.ReportFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}

// --- Job Tests ---

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := newJob(now)
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.ReportID)
}

func TestJob_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := newJob(now)
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	r := newReport("9", "lenient", now)
	r.JobID = &job.ID
	require.NoError(t, s.CreateReport(ctx, r))

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, store.WithReportID(r.ID)))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ReportID)
	assert.Equal(t, r.ID, *got.ReportID)
}

func TestJob_UpdateStatusRunningToFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := newJob(now)
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))

	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage("corpus unavailable"))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "corpus unavailable", *got.ErrorMessage)
}

func TestJob_UpdateStatusInvalidTransition(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := newJob(now)
	require.NoError(t, s.CreateJob(ctx, job))

	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted) // pending -> completed is invalid
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job status transition")
}

func TestJob_UpdateStatusNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.UpdateJobStatus(context.Background(), uuid.New(), models.JobStatusRunning)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.JobStatusPending, models.JobStatusRunning, true},
		{models.JobStatusRunning, models.JobStatusCompleted, true},
		{models.JobStatusRunning, models.JobStatusFailed, true},
		{models.JobStatusPending, models.JobStatusCompleted, false},
		{models.JobStatusCompleted, models.JobStatusRunning, false},
		{models.JobStatusFailed, models.JobStatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, store.ValidTransition(tt.from, tt.to))
		})
	}
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}
