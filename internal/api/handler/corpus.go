package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/internal/area"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/store"
)

// CorpusCache is the slice of corpus.Cache the corpus endpoints use.
type CorpusCache interface {
	Current() *corpus.Snapshot
	Reload(ctx context.Context, src corpus.Source) (*corpus.Snapshot, error)
}

const defaultSearchLimit = 20

func currentSnapshot(w http.ResponseWriter, r *http.Request, cache CorpusCache) (*corpus.Snapshot, bool) {
	snap := cache.Current()
	if snap == nil {
		writeError(w, r, fmt.Errorf("%w: corpus not loaded", corpus.ErrCorpusUnavailable))
		return nil, false
	}
	return snap, true
}

type statsResponse struct {
	corpus.Stats
	Diagnostics corpus.Diagnostics `json:"diagnostics"`
}

func snapshotStats(snap *corpus.Snapshot, catalog *area.Catalog) statsResponse {
	return statsResponse{
		Stats: snap.Stats(func(path string) string {
			if a, ok := catalog.ForPath(path); ok {
				return a.Name
			}
			return path
		}),
		Diagnostics: snap.Diagnostics(),
	}
}

// NewCorpusStatsHandler returns an http.HandlerFunc for GET /api/v1/corpus/stats.
func NewCorpusStatsHandler(cache CorpusCache, catalog *area.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := currentSnapshot(w, r, cache)
		if !ok {
			return
		}
		response.JSON(w, snapshotStats(snap, catalog))
	}
}

// NewCorpusReloadHandler returns an http.HandlerFunc for POST /api/v1/corpus/reload.
func NewCorpusReloadHandler(cache CorpusCache, src corpus.Source, catalog *area.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := cache.Reload(r.Context(), src)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, snapshotStats(snap, catalog))
	}
}

// NewGetTestCaseHandler returns an http.HandlerFunc for GET /api/v1/corpus/tests/{testID}.
func NewGetTestCaseHandler(cache CorpusCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := currentSnapshot(w, r, cache)
		if !ok {
			return
		}
		id := chi.URLParam(r, "testID")
		tc, found := snap.Get(id)
		if !found {
			writeError(w, r, fmt.Errorf("%w: test case %s", store.ErrNotFound, id))
			return
		}
		response.JSON(w, tc)
	}
}

// NewSearchCorpusHandler returns an http.HandlerFunc for GET /api/v1/corpus/search.
// q holds comma- or space-separated keywords; area narrows by area path
// prefix (or catalog area name) and state by test state.
func NewSearchCorpusHandler(cache CorpusCache, catalog *area.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(w, r, "limit", defaultSearchLimit)
		if !ok {
			return
		}
		q := r.URL.Query()
		keywords := strings.FieldsFunc(q.Get("q"), func(r rune) bool { return r == ',' || r == ' ' })
		areaPath, state := q.Get("area"), q.Get("state")
		if len(keywords) == 0 && areaPath == "" {
			invalidRequest(w, "q or area is required")
			return
		}

		snap, ok := currentSnapshot(w, r, cache)
		if !ok {
			return
		}

		if a, found := catalog.Lookup(areaPath); found && a.PathPattern != "" {
			areaPath = a.PathPattern
		}

		if len(keywords) == 0 {
			response.JSON(w, snap.ByArea(areaPath, state, limit))
			return
		}

		hits := snap.SearchKeywords(keywords, 0)
		out := make([]corpus.KeywordHit, 0, len(hits))
		for _, h := range hits {
			if areaPath != "" && !strings.HasPrefix(strings.ToLower(h.TestCase.Area), strings.ToLower(areaPath)) {
				continue
			}
			if state != "" && !strings.EqualFold(h.TestCase.State, state) {
				continue
			}
			out = append(out, h)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		response.JSON(w, out)
	}
}
