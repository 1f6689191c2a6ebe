package ai

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

var shortlistIDs = map[string]bool{"101": true, "102": true, "103": true}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"prose around", `Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`, true},
		{"no object", "I cannot help with that", "", false},
		{"reversed braces", "} nothing {", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJudgment_Valid(t *testing.T) {
	content := `{
	  "related_tests": [
	    {"test_id": "101", "rationale": "posts a disbursement", "suggested_action": "Update", "suggested_update": "add currency override step"},
	    {"test_id": "999", "rationale": "hallucinated", "suggested_action": "keep"}
	  ],
	  "new_test_suggestions": [{"title": "Override currency", "description": "post with override", "priority": "HIGH"}],
	  "duplicate_groups": [
	    {"test_ids": ["101", "102", "999"], "rationale": "same flow"},
	    {"test_ids": ["103", "998"], "classification": "overlapping", "rationale": "only one known"}
	  ],
	  "summary": " Posting is covered. "
	}`

	j, err := parseJudgment(content, shortlistIDs)
	require.NoError(t, err)

	require.Len(t, j.RelatedTests, 1)
	assert.Equal(t, "101", j.RelatedTests[0].TestID)
	assert.Equal(t, models.ActionUpdate, j.RelatedTests[0].SuggestedAction)
	assert.Equal(t, "add currency override step", j.RelatedTests[0].SuggestedUpdate)

	require.Len(t, j.NewTestSuggestions, 1)
	assert.Equal(t, models.PriorityHigh, j.NewTestSuggestions[0].Priority)

	require.Len(t, j.DuplicateGroups, 1)
	assert.Equal(t, []string{"101", "102"}, j.DuplicateGroups[0].TestIDs)
	assert.Equal(t, models.DuplicateTrue, j.DuplicateGroups[0].Classification)

	assert.Equal(t, "Posting is covered.", j.Summary)
}

func TestParseJudgment_MissingSectionsAreEmpty(t *testing.T) {
	j, err := parseJudgment(`{"summary":"nothing related"}`, shortlistIDs)
	require.NoError(t, err)
	assert.NotNil(t, j.RelatedTests)
	assert.Empty(t, j.RelatedTests)
	assert.Empty(t, j.NewTestSuggestions)
	assert.Empty(t, j.DuplicateGroups)
}

func TestParseJudgment_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"not json", "the tests look fine", "no JSON object"},
		{"broken json", `{"related_tests": [}`, ""},
		{"wrong type", `{"related_tests": "none"}`, ""},
		{"bad action", `{"related_tests":[{"test_id":"101","suggested_action":"delete"}]}`, "suggested_action"},
		{"bad priority", `{"new_test_suggestions":[{"title":"x","priority":"urgent"}]}`, "priority"},
		{"bad classification", `{"duplicate_groups":[{"test_ids":["101","102"],"classification":"SIMILAR"}]}`, "classification"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJudgment(tt.content, shortlistIDs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAnalysisParse))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParsePairVerdicts(t *testing.T) {
	content := `{"duplicate_groups":[
	  {"pair_id":1,"classification":"true_duplicate","reasoning":"same","recommendation":"merge"},
	  {"pair_id":7,"classification":"DISTINCT","reasoning":"unknown pair"}
	]}`
	vs, err := parsePairVerdicts(content, 2)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, models.DuplicateTrue, vs[0].Classification)
	assert.Equal(t, "merge", vs[0].Recommendation)

	_, err = parsePairVerdicts(`{"duplicate_groups":[{"pair_id":1,"classification":"maybe"}]}`, 1)
	assert.True(t, errors.Is(err, ErrAnalysisParse))
}

func TestBuildAnalysisMessages_TruncatesPerTest(t *testing.T) {
	long := strings.Repeat("a", 5000)
	shortlist := []models.SimilarityResult{
		{TestCase: &models.TestCase{ID: "101", Title: "t", Description: long, Steps: long}, Adjusted: 0.91234},
	}
	msgs := buildAnalysisMessages(models.BugContext{Description: "bug"}, shortlist, 2000)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)

	user := msgs[1].Content
	assert.Contains(t, user, "Description: bug")
	assert.Contains(t, user, "Reproduction Steps: (none provided)")
	assert.Contains(t, user, `"similarity_score": 0.912`)

	_, testsJSON, found := strings.Cut(user, "POTENTIALLY RELATED TEST CASES:\n")
	require.True(t, found)
	var tests []promptTest
	require.NoError(t, json.Unmarshal([]byte(testsJSON), &tests))
	require.Len(t, tests, 1)
	assert.Len(t, tests[0].Description, 2000)
	assert.Empty(t, tests[0].Steps)
}

func TestBuildAnalysisMessages_BudgetCountsCharacters(t *testing.T) {
	shortlist := []models.SimilarityResult{
		{TestCase: &models.TestCase{ID: "101", Title: "t", Description: strings.Repeat("é", 1500), Steps: strings.Repeat("ü", 1500)}},
	}
	msgs := buildAnalysisMessages(models.BugContext{Description: "bug"}, shortlist, 2000)

	_, testsJSON, found := strings.Cut(msgs[1].Content, "POTENTIALLY RELATED TEST CASES:\n")
	require.True(t, found)
	var tests []promptTest
	require.NoError(t, json.Unmarshal([]byte(testsJSON), &tests))
	require.Len(t, tests, 1)
	assert.Equal(t, 1500, utf8.RuneCountInString(tests[0].Description))
	assert.Equal(t, 500, utf8.RuneCountInString(tests[0].Steps))
}
