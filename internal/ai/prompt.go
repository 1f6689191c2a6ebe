package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/testscout/internal/textproc"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

const analysisSystemPrompt = `You are an expert QA analyst. You receive a bug report and test cases that a similarity search found related to it.

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "related_tests": [{"test_id": "...", "rationale": "why this test relates to the bug", "suggested_action": "keep|update|retire", "suggested_update": "concrete change to steps or expected results, empty if none"}],
  "new_test_suggestions": [{"title": "...", "description": "...", "priority": "low|medium|high"}],
  "duplicate_groups": [{"test_ids": ["...", "..."], "classification": "TRUE DUPLICATE|OVERLAPPING", "rationale": "..."}],
  "summary": "two or three sentences"
}

Only reference test ids from the list you are given. Use empty arrays when a section has nothing to report.`

const duplicateSystemPrompt = `You are a QA expert. You receive pairs of test cases that appear similar based on semantic analysis.

For each pair decide whether the tests are:
- TRUE DUPLICATE: they test exactly the same functionality
- OVERLAPPING: they test similar but slightly different scenarios
- DISTINCT: they are different despite the high similarity score

Respond with a single JSON object and nothing else:
{"duplicate_groups": [{"pair_id": 1, "classification": "TRUE DUPLICATE|OVERLAPPING|DISTINCT", "reasoning": "...", "recommendation": "consolidate or keep separate, and how"}]}`

// pairStepChars bounds the steps shown per test in a duplicate pair.
const pairStepChars = 200

type promptTest struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Area        string  `json:"area,omitempty"`
	Description string  `json:"description"`
	Steps       string  `json:"steps"`
	Similarity  float64 `json:"similarity_score"`
}

// buildAnalysisMessages renders the bug and the shortlist. Each test's
// description and steps share a budget of maxChars characters.
func buildAnalysisMessages(bug models.BugContext, shortlist []models.SimilarityResult, maxChars int) []models.Message {
	tests := make([]promptTest, 0, len(shortlist))
	for _, r := range shortlist {
		tc := r.TestCase
		desc := textproc.Truncate(tc.Description, maxChars)
		steps := textproc.Truncate(tc.Steps, max(0, maxChars-utf8.RuneCountInString(desc)))
		tests = append(tests, promptTest{
			ID:          tc.ID,
			Title:       tc.Title,
			Area:        tc.Area,
			Description: desc,
			Steps:       steps,
			Similarity:  roundScore(r.Adjusted),
		})
	}
	testsJSON, _ := json.MarshalIndent(tests, "", "  ")

	var sb strings.Builder
	sb.WriteString("BUG REPORT:\n")
	fmt.Fprintf(&sb, "Description: %s\n\n", orNone(bug.Description))
	fmt.Fprintf(&sb, "Reproduction Steps: %s\n\n", orNone(bug.ReproSteps))
	fmt.Fprintf(&sb, "Code Changes Made: %s\n\n", orNone(bug.CodeChanges))
	sb.WriteString("POTENTIALLY RELATED TEST CASES:\n")
	sb.Write(testsJSON)

	return []models.Message{
		{Role: models.RoleSystem, Content: analysisSystemPrompt},
		{Role: models.RoleUser, Content: sb.String()},
	}
}

type promptPair struct {
	PairID     int     `json:"pair_id"`
	Test1ID    string  `json:"test_1_id"`
	Test1Title string  `json:"test_1_title"`
	Test1Steps string  `json:"test_1_steps"`
	Test2ID    string  `json:"test_2_id"`
	Test2Title string  `json:"test_2_title"`
	Test2Steps string  `json:"test_2_steps"`
	Similarity float64 `json:"similarity_score"`
}

// buildDuplicateMessages renders pairs numbered from 1.
func buildDuplicateMessages(pairs []models.DuplicatePair) []models.Message {
	out := make([]promptPair, len(pairs))
	for i, p := range pairs {
		out[i] = promptPair{
			PairID:     i + 1,
			Test1ID:    p.First.ID,
			Test1Title: p.First.Title,
			Test1Steps: textproc.Truncate(p.First.Steps, pairStepChars),
			Test2ID:    p.Second.ID,
			Test2Title: p.Second.Title,
			Test2Steps: textproc.Truncate(p.Second.Steps, pairStepChars),
			Similarity: roundScore(p.Similarity),
		}
	}
	body, _ := json.MarshalIndent(out, "", "  ")

	return []models.Message{
		{Role: models.RoleSystem, Content: duplicateSystemPrompt},
		{Role: models.RoleUser, Content: "POTENTIAL DUPLICATE PAIRS:\n" + string(body)},
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none provided)"
	}
	return s
}

func roundScore(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
