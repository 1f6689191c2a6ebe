// Package handler implements the HTTP endpoints of the API.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/embed"
	"github.com/kiranshivaraju/testscout/internal/filter"
	"github.com/kiranshivaraju/testscout/internal/github"
	"github.com/kiranshivaraju/testscout/internal/intake"
	"github.com/kiranshivaraju/testscout/internal/report"
	"github.com/kiranshivaraju/testscout/internal/store"
	"github.com/kiranshivaraju/testscout/internal/tfs"
)

// writeError maps err onto the error envelope. Unknown errors are logged
// and reported as INTERNAL_ERROR without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, corpus.ErrCorpusUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "CORPUS_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, embed.ErrModelUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, filter.ErrInvalidConfiguration):
		response.Error(w, http.StatusBadRequest, "INVALID_CONFIGURATION", err.Error(), nil)
	case errors.Is(err, intake.ErrEmptyBug), errors.Is(err, intake.ErrNotConfigured),
		errors.Is(err, report.ErrInvalidName):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE_KEY", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, tfs.ErrNotFound),
		errors.Is(err, github.ErrNotFound), errors.Is(err, report.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, tfs.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", err.Error(), nil)
	case errors.Is(err, tfs.ErrUnreachable), errors.Is(err, tfs.ErrQuery),
		errors.Is(err, github.ErrUnreachable), errors.Is(err, github.ErrAPI),
		errors.Is(err, github.ErrUnauthorized):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", err.Error(), nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func invalidRequest(w http.ResponseWriter, message string) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message, nil)
}
