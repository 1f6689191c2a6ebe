package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/dedupe"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// DuplicateDetector scans a corpus for duplicate tests.
type DuplicateDetector interface {
	DetectDuplicates(ctx context.Context, src corpus.Source, threshold float64, limit int) (*models.DuplicateReport, error)
}

// NewDuplicatesHandler returns an http.HandlerFunc for POST /api/v1/duplicates.
// An empty body uses the default threshold and limit.
func NewDuplicatesHandler(detector DuplicateDetector, src corpus.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Threshold *float64 `json:"threshold"`
			Limit     *int     `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			invalidRequest(w, "invalid JSON body")
			return
		}

		threshold := dedupe.DefaultThreshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}
		limit := dedupe.DefaultLimit
		if req.Limit != nil {
			if *req.Limit < 0 {
				invalidRequest(w, "limit must be non-negative")
				return
			}
			limit = *req.Limit
		}

		rep, err := detector.DetectDuplicates(r.Context(), src, threshold, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, rep)
	}
}
