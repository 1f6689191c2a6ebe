package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// IntakeFetcher fetches bugs and pull requests from upstream services.
type IntakeFetcher interface {
	Bug(ctx context.Context, id int) (*models.BugReport, error)
	PullRequest(ctx context.Context, number int) (*models.PullRequest, error)
}

// NewGetBugHandler returns an http.HandlerFunc for GET /api/v1/intake/bugs/{bugID}.
func NewGetBugHandler(f IntakeFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := intParam(w, r, "bugID")
		if !ok {
			return
		}
		bug, err := f.Bug(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, bug)
	}
}

type pullResponse struct {
	*models.PullRequest
	CodeChanges string `json:"code_changes"`
}

// NewGetPullHandler returns an http.HandlerFunc for GET /api/v1/intake/pulls/{number}.
func NewGetPullHandler(f IntakeFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := intParam(w, r, "number")
		if !ok {
			return
		}
		pr, err := f.PullRequest(r.Context(), n)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, pullResponse{PullRequest: pr, CodeChanges: pr.CodeChangeSummary()})
	}
}
