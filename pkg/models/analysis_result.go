package models

import (
	"time"

	"github.com/google/uuid"
)

// SimilarityResult pairs a corpus record with its scores.
type SimilarityResult struct {
	TestCase    *TestCase `json:"test_case"`
	Raw         float64   `json:"raw_similarity"`
	Adjusted    float64   `json:"similarity"`
	AreaMatched bool      `json:"area_matched"`
	// Order is the record's position in corpus load order; used as tie-break.
	Order int `json:"-"`
}

// Suggested actions for a related test.
const (
	ActionKeep   = "keep"
	ActionUpdate = "update"
	ActionRetire = "retire"
)

// Priorities for a proposed test.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Duplicate classifications.
const (
	DuplicateTrue        = "TRUE DUPLICATE"
	DuplicateOverlapping = "OVERLAPPING"
	DuplicateDistinct    = "DISTINCT"
)

// RelatedTest is the analyst's verdict on one shortlisted test.
type RelatedTest struct {
	TestID          string `json:"test_id"`
	Rationale       string `json:"rationale"`
	SuggestedAction string `json:"suggested_action"`
	SuggestedUpdate string `json:"suggested_update,omitempty"`
}

// TestSuggestion is a proposed new test case.
type TestSuggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// DuplicateGroup is a set of tests judged to cover the same behavior.
type DuplicateGroup struct {
	TestIDs        []string `json:"test_ids"`
	Classification string   `json:"classification"`
	Rationale      string   `json:"rationale"`
}

// Judgment is the structured LLM analysis of a shortlist.
type Judgment struct {
	RelatedTests       []RelatedTest    `json:"related_tests"`
	NewTestSuggestions []TestSuggestion `json:"new_test_suggestions"`
	DuplicateGroups    []DuplicateGroup `json:"duplicate_groups"`
	Summary            string           `json:"summary"`
}

// EmptyJudgment returns a judgment with non-nil, empty sections.
func EmptyJudgment() Judgment {
	return Judgment{
		RelatedTests:       []RelatedTest{},
		NewTestSuggestions: []TestSuggestion{},
		DuplicateGroups:    []DuplicateGroup{},
	}
}

// Thresholds records the resolved configuration a result was produced with.
type Thresholds struct {
	Strictness       string  `json:"strictness"`
	Minimum          float64 `json:"min_similarity"`
	AnalysisGate     float64 `json:"analysis_gate"`
	ExportGate       float64 `json:"export_gate"`
	AreaBoostEnabled bool    `json:"area_boost_enabled"`
	TopK             int     `json:"top_k"`
}

// AnalysisSummary holds the counters collected at each pipeline stage.
type AnalysisSummary struct {
	CorpusSize        int `json:"total_test_cases_analyzed"`
	MalformedSkipped  int `json:"malformed_records_skipped"`
	UnembeddedSkipped int `json:"unembedded_records_skipped"`
	Survivors         int `json:"similar_tests_found"`
	ForAnalysis       int `json:"high_confidence_tests_analyzed"`
	ForExport         int `json:"tests_exported"`
	DuplicatesFound   int `json:"potential_duplicates_found"`
}

// AnalysisResult is the final output of one analysis request. It is not
// mutated after construction.
type AnalysisResult struct {
	ID           uuid.UUID          `json:"id"`
	Bug          BugContext         `json:"bug"`
	SimilarTests []SimilarityResult `json:"similar_tests"`
	Judgment     Judgment           `json:"analysis"`
	Summary      AnalysisSummary    `json:"summary"`
	Thresholds   Thresholds         `json:"thresholds_used"`
	// NoConfidentMatches is set when nothing cleared the analysis gate.
	NoConfidentMatches bool `json:"no_confident_matches"`
	// AnalysisError is set when the analyst failed and the result is similarity-only.
	AnalysisError string    `json:"analysis_error,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Model         string    `json:"model,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Degraded reports whether the analyst failed for this result.
func (r *AnalysisResult) Degraded() bool {
	return r.AnalysisError != ""
}

// ExportTests returns the similar tests at or above the export gate.
func (r *AnalysisResult) ExportTests() []SimilarityResult {
	out := make([]SimilarityResult, 0, len(r.SimilarTests))
	for _, s := range r.SimilarTests {
		if s.Adjusted >= r.Thresholds.ExportGate {
			out = append(out, s)
		}
	}
	return out
}

// DuplicatePair is two corpus tests whose embeddings are close enough to be
// duplicate candidates.
type DuplicatePair struct {
	First           *TestCase `json:"test_1"`
	Second          *TestCase `json:"test_2"`
	Similarity      float64   `json:"similarity_score"`
	TitleSimilarity float64   `json:"title_similarity"`
	// Exact is set when both tests have the same normalised text.
	Exact          bool   `json:"exact_match"`
	Classification string `json:"classification,omitempty"`
	Rationale      string `json:"reasoning,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// DuplicateReport is the result of a corpus-wide duplicate scan.
type DuplicateReport struct {
	Threshold     float64          `json:"threshold"`
	TestsCompared int              `json:"tests_compared"`
	Pairs         []DuplicatePair  `json:"pairs"`
	Groups        []DuplicateGroup `json:"duplicate_groups"`
	ClassifyError string           `json:"classification_error,omitempty"`
	Provider      string           `json:"provider,omitempty"`
	Model         string           `json:"model,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
