package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

// extractJSON returns the text between the first '{' and the last '}'.
// Models often wrap JSON in prose or code fences.
func extractJSON(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

var validActions = map[string]bool{
	models.ActionKeep:   true,
	models.ActionUpdate: true,
	models.ActionRetire: true,
}

var validPriorities = map[string]bool{
	models.PriorityLow:    true,
	models.PriorityMedium: true,
	models.PriorityHigh:   true,
}

var validClassifications = map[string]bool{
	models.DuplicateTrue:        true,
	models.DuplicateOverlapping: true,
	models.DuplicateDistinct:    true,
}

func normalizeClassification(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
}

// parseJudgment decodes and validates a judgment. Enum values outside the
// schema are a parse error. References to tests outside allowed are dropped.
func parseJudgment(content string, allowed map[string]bool) (models.Judgment, error) {
	raw, ok := extractJSON(content)
	if !ok {
		return models.Judgment{}, fmt.Errorf("%w: no JSON object in response", ErrAnalysisParse)
	}

	var j models.Judgment
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return models.Judgment{}, fmt.Errorf("%w: %v", ErrAnalysisParse, err)
	}

	out := models.EmptyJudgment()
	out.Summary = strings.TrimSpace(j.Summary)

	for _, rt := range j.RelatedTests {
		rt.TestID = strings.TrimSpace(rt.TestID)
		rt.SuggestedAction = strings.ToLower(strings.TrimSpace(rt.SuggestedAction))
		if !validActions[rt.SuggestedAction] {
			return models.Judgment{}, fmt.Errorf("%w: related test %s: invalid suggested_action %q",
				ErrAnalysisParse, rt.TestID, rt.SuggestedAction)
		}
		if !allowed[rt.TestID] {
			continue
		}
		out.RelatedTests = append(out.RelatedTests, rt)
	}

	for _, s := range j.NewTestSuggestions {
		s.Priority = strings.ToLower(strings.TrimSpace(s.Priority))
		if !validPriorities[s.Priority] {
			return models.Judgment{}, fmt.Errorf("%w: new test %q: invalid priority %q",
				ErrAnalysisParse, s.Title, s.Priority)
		}
		out.NewTestSuggestions = append(out.NewTestSuggestions, s)
	}

	for _, g := range j.DuplicateGroups {
		if g.Classification == "" {
			g.Classification = models.DuplicateTrue
		}
		g.Classification = normalizeClassification(g.Classification)
		if !validClassifications[g.Classification] {
			return models.Judgment{}, fmt.Errorf("%w: invalid duplicate classification %q",
				ErrAnalysisParse, g.Classification)
		}

		ids := make([]string, 0, len(g.TestIDs))
		seen := map[string]bool{}
		for _, id := range g.TestIDs {
			id = strings.TrimSpace(id)
			if allowed[id] && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if len(ids) < 2 {
			continue
		}
		g.TestIDs = ids
		out.DuplicateGroups = append(out.DuplicateGroups, g)
	}

	return out, nil
}

type pairVerdict struct {
	PairID         int    `json:"pair_id"`
	Classification string `json:"classification"`
	Reasoning      string `json:"reasoning"`
	Recommendation string `json:"recommendation"`
}

// parsePairVerdicts decodes duplicate classifications for n pairs.
// Verdicts for unknown pair ids are dropped.
func parsePairVerdicts(content string, n int) ([]pairVerdict, error) {
	raw, ok := extractJSON(content)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrAnalysisParse)
	}

	var resp struct {
		DuplicateGroups []pairVerdict `json:"duplicate_groups"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisParse, err)
	}

	out := make([]pairVerdict, 0, len(resp.DuplicateGroups))
	for _, v := range resp.DuplicateGroups {
		v.Classification = normalizeClassification(v.Classification)
		if !validClassifications[v.Classification] {
			return nil, fmt.Errorf("%w: pair %d: invalid classification %q", ErrAnalysisParse, v.PairID, v.Classification)
		}
		if v.PairID < 1 || v.PairID > n {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
