package similarity

import (
	"sort"
	"strings"

	"github.com/kiranshivaraju/testscout/internal/area"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Candidate is one embedded corpus record.
type Candidate struct {
	Record *models.TestCase
	Vector []float32
	// Order is the record's position in corpus load order.
	Order int
}

// Scorer ranks candidates against a query.
type Scorer struct {
	policy  Policy
	catalog *area.Catalog
}

// NewScorer creates a Scorer. A nil catalog means only candidate area paths
// are used to decide whether the query carries area vocabulary.
func NewScorer(policy Policy, catalog *area.Catalog) *Scorer {
	return &Scorer{policy: policy, catalog: catalog}
}

// Policy returns the scorer's adjustment policy.
func (s *Scorer) Policy() Policy { return s.policy }

// Rank scores every candidate and returns results sorted by adjusted
// similarity, highest first. Equal scores keep corpus load order.
//
// The raw cosine is clamped into [0, 1]. A candidate is adjusted only when it
// has an area path and the query text carries area vocabulary, either a
// catalog keyword or a token of some candidate's area path.
func (s *Scorer) Rank(queryText string, query []float32, candidates []Candidate) []models.SimilarityResult {
	q := area.NewText(queryText)

	tokens := make([]area.Tokens, len(candidates))
	queryHasArea := s.catalog != nil && s.catalog.HasSignal(queryText)
	for i, c := range candidates {
		if strings.TrimSpace(c.Record.Area) == "" {
			continue
		}
		tokens[i] = area.ExtractTokens(c.Record.Area)
		if !queryHasArea && q.MatchesAny(tokens[i]) {
			queryHasArea = true
		}
	}

	results := make([]models.SimilarityResult, 0, len(candidates))
	for i, c := range candidates {
		raw := clamp(Cosine(query, c.Vector))

		present := queryHasArea && len(tokens[i]) > 0
		matched := present && q.MatchesAny(tokens[i])

		results = append(results, models.SimilarityResult{
			TestCase:    c.Record,
			Raw:         raw,
			Adjusted:    s.policy.Adjust(raw, matched, present),
			AreaMatched: matched,
			Order:       c.Order,
		})
	}

	Sort(results)
	return results
}

// Sort orders results by adjusted similarity descending, then by load order.
func Sort(results []models.SimilarityResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Adjusted != results[j].Adjusted {
			return results[i].Adjusted > results[j].Adjusted
		}
		return results[i].Order < results[j].Order
	})
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
