package models

import "strings"

// StepDelimiter separates "Step N: action | Expected: result" segments in a
// test case's steps field.
const StepDelimiter = " || "

// TestCase is one row of the test-case corpus. Records are immutable once loaded.
type TestCase struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	State       string `json:"state"`
	Area        string `json:"area"`
	CreatedDate string `json:"created_date"`
	Description string `json:"description"`
	Steps       string `json:"steps"`
}

// EmbeddingText is the exact text embedded for this record.
func (t *TestCase) EmbeddingText() string {
	return t.Title + " " + t.Description + " " + t.Steps
}

// StepList splits the steps field on StepDelimiter.
func (t *TestCase) StepList() []string {
	if strings.TrimSpace(t.Steps) == "" {
		return nil
	}
	return strings.Split(t.Steps, StepDelimiter)
}
