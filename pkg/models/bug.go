package models

import (
	"fmt"
	"strings"
)

// BugContext is the query for one analysis request. It is built fresh per
// request and never persisted.
type BugContext struct {
	Description string `json:"bug_description"`
	ReproSteps  string `json:"repro_steps"`
	CodeChanges string `json:"code_changes"`
}

// QueryText is the text embedded as the similarity query.
func (b BugContext) QueryText() string {
	return b.Description + " " + b.ReproSteps
}

// BugReport is a bug work item fetched from the bug-tracking service.
type BugReport struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	State       string `json:"state"`
	AreaPath    string `json:"area_path"`
	Description string `json:"description"`
	ReproSteps  string `json:"repro_steps"`
}

// ChangedFile is one file touched by a pull request.
type ChangedFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// PullRequest is a pull request fetched from the code-review service.
type PullRequest struct {
	Number  int           `json:"number"`
	Title   string        `json:"title"`
	State   string        `json:"state"`
	URL     string        `json:"url"`
	Files   []ChangedFile `json:"files"`
	Summary string        `json:"summary,omitempty"`
}

// maxSummaryFiles bounds the file list used for the fallback summary.
const maxSummaryFiles = 20

// CodeChangeSummary returns the PR summary text, or a summary built from the
// changed-file list when the PR carries none.
func (p *PullRequest) CodeChangeSummary() string {
	if s := strings.TrimSpace(p.Summary); s != "" {
		return s
	}
	if len(p.Files) == 0 {
		return p.Title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PR #%d: %s\n", p.Number, p.Title)
	fmt.Fprintf(&b, "Changed %d files:\n", len(p.Files))
	for i, f := range p.Files {
		if i == maxSummaryFiles {
			fmt.Fprintf(&b, "... and %d more\n", len(p.Files)-maxSummaryFiles)
			break
		}
		fmt.Fprintf(&b, "- %s (%s, +%d/-%d)\n", f.Filename, f.Status, f.Additions, f.Deletions)
	}
	return strings.TrimRight(b.String(), "\n")
}
