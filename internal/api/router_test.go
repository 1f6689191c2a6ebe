package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/testscout/internal/api"
	mw "github.com/kiranshivaraju/testscout/internal/api/middleware"
	"github.com/kiranshivaraju/testscout/internal/cache"
	"github.com/kiranshivaraju/testscout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub key store: one analyze-only key, one admin key ---

const (
	analyzeKey = "ts_analyze_0123456789"
	adminKey   = "ts_admin0_0123456789"
)

type stubKeyStore struct {
	keys []*models.APIKey
}

func newStubKeyStore(t *testing.T) *stubKeyStore {
	t.Helper()
	mk := func(raw string, scopes ...string) *models.APIKey {
		h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
		require.NoError(t, err)
		return &models.APIKey{ID: uuid.New(), KeyHash: string(h), KeyPrefix: raw[:mw.KeyPrefixLen], Scopes: scopes}
	}
	return &stubKeyStore{keys: []*models.APIKey{
		mk(analyzeKey, models.ScopeAnalyze),
		mk(adminKey, models.ScopeAdmin),
	}}
}

func (s *stubKeyStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *stubKeyStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func newTestRouter(t *testing.T) http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(newStubKeyStore(t)),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		ListAreas: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", w.Body.String())
	return errObj["code"].(string)
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)
	id := uuid.NewString()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/analyze"},
		{"POST", "/api/v1/jobs"},
		{"GET", "/api/v1/jobs/" + id},
		{"GET", "/api/v1/reports"},
		{"GET", "/api/v1/reports/" + id},
		{"GET", "/api/v1/reports/" + id + "/csv"},
		{"GET", "/api/v1/areas"},
		{"POST", "/api/v1/areas/detect"},
		{"GET", "/api/v1/corpus/stats"},
		{"POST", "/api/v1/corpus/reload"},
		{"GET", "/api/v1/corpus/tests/TC-1"},
		{"GET", "/api/v1/corpus/search"},
		{"POST", "/api/v1/duplicates"},
		{"GET", "/api/v1/intake/bugs/42"},
		{"GET", "/api/v1/intake/pulls/7"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
		{"DELETE", "/api/v1/admin/keys/" + id},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errorCode(t, w))
		})
	}
}

func TestRouter_Scopes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		key    string
		method string
		path   string
		want   int
	}{
		{"analyze key reads areas", analyzeKey, "GET", "/api/v1/areas", http.StatusOK},
		{"analyze key may analyze", analyzeKey, "POST", "/api/v1/analyze", http.StatusNotImplemented},
		{"analyze key denied admin", analyzeKey, "GET", "/api/v1/admin/keys", http.StatusForbidden},
		{"analyze key denied reload", analyzeKey, "POST", "/api/v1/corpus/reload", http.StatusForbidden},
		{"admin key implies analyze", adminKey, "POST", "/api/v1/duplicates", http.StatusNotImplemented},
		{"admin key manages keys", adminKey, "GET", "/api/v1/admin/keys", http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+tt.key)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", errorCode(t, w))
			}
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ mw.KeyStore = (*stubKeyStore)(nil)
var _ cache.Cache = (*stubCache)(nil)
