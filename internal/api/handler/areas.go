package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/internal/area"
)

// NewListAreasHandler returns an http.HandlerFunc for GET /api/v1/areas.
func NewListAreasHandler(catalog *area.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, catalog.Areas)
	}
}

type detectResponse struct {
	Detections  []area.Detection `json:"detections"`
	Recommended []string         `json:"recommended_areas"`
}

// NewDetectAreasHandler returns an http.HandlerFunc for POST /api/v1/areas/detect.
func NewDetectAreasHandler(catalog *area.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Description string `json:"bug_description"`
			ReproSteps  string `json:"repro_steps"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			invalidRequest(w, "invalid JSON body")
			return
		}
		text := strings.TrimSpace(req.Description + " " + req.ReproSteps)
		if text == "" {
			invalidRequest(w, "bug_description or repro_steps is required")
			return
		}

		dets := catalog.Detect(text)
		response.JSON(w, detectResponse{Detections: dets, Recommended: area.Recommend(dets)})
	}
}
