package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/testscout/internal/api/middleware"
	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	AnalyzeHandler    http.HandlerFunc
	TriggerJobHandler http.HandlerFunc
	PollJobHandler    http.HandlerFunc
	DuplicatesHandler http.HandlerFunc

	ListReports http.HandlerFunc
	GetReport   http.HandlerFunc
	ReportCSV   http.HandlerFunc

	ListAreas   http.HandlerFunc
	DetectAreas http.HandlerFunc

	CorpusStats  http.HandlerFunc
	CorpusReload http.HandlerFunc
	GetTestCase  http.HandlerFunc
	SearchCorpus http.HandlerFunc

	GetBug  http.HandlerFunc
	GetPull http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.PollJobHandler))

		r.Get("/api/v1/reports", orNotImplemented(deps.ListReports))
		r.Get("/api/v1/reports/{reportID}", orNotImplemented(deps.GetReport))
		r.Get("/api/v1/reports/{reportID}/csv", orNotImplemented(deps.ReportCSV))

		r.Get("/api/v1/areas", orNotImplemented(deps.ListAreas))
		r.Post("/api/v1/areas/detect", orNotImplemented(deps.DetectAreas))

		r.Get("/api/v1/corpus/stats", orNotImplemented(deps.CorpusStats))
		r.Get("/api/v1/corpus/tests/{testID}", orNotImplemented(deps.GetTestCase))
		r.Get("/api/v1/corpus/search", orNotImplemented(deps.SearchCorpus))

		r.Get("/api/v1/intake/bugs/{bugID}", orNotImplemented(deps.GetBug))
		r.Get("/api/v1/intake/pulls/{number}", orNotImplemented(deps.GetPull))

		// Routes that call the embedder and analyst
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAnalyze))

			r.Post("/api/v1/analyze", orNotImplemented(deps.AnalyzeHandler))
			r.Post("/api/v1/jobs", orNotImplemented(deps.TriggerJobHandler))
			r.Post("/api/v1/duplicates", orNotImplemented(deps.DuplicatesHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/corpus/reload", orNotImplemented(deps.CorpusReload))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
