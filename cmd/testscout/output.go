package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/kiranshivaraju/testscout/internal/area"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

const (
	formatText = "text"
	formatJSON = "json"
)

const ruleWidth = 60

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// scoreColor grades a similarity against the thresholds it was filtered with.
func scoreColor(score float64, th models.Thresholds) *color.Color {
	switch {
	case score >= th.ExportGate:
		return color.New(color.FgGreen)
	case score >= th.AnalysisGate:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

func printAnalysis(w io.Writer, r *models.AnalysisResult) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintf(w, "SIMILAR TESTS (%d)\n", len(r.SimilarTests))
	if len(r.SimilarTests) == 0 {
		fmt.Fprintln(w, "No test cleared the minimum similarity.")
	}
	for _, s := range r.SimilarTests {
		_, _ = scoreColor(s.Adjusted, r.Thresholds).Fprintf(w, "  %.3f ", s.Adjusted)
		fmt.Fprintf(w, "%s  %s", s.TestCase.ID, s.TestCase.Title)
		if s.AreaMatched {
			_, _ = dim.Fprint(w, "  [area]")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	if r.NoConfidentMatches {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(w, "No test reached the analysis gate (%.2f); nothing was sent for analysis.\n\n", r.Thresholds.AnalysisGate)
	}
	if r.Degraded() {
		red := color.New(color.FgRed)
		_, _ = red.Fprintf(w, "Analysis failed, showing similarity only: %s\n\n", r.AnalysisError)
	}

	j := r.Judgment
	if j.Summary != "" {
		_, _ = bold.Fprintln(w, "SUMMARY")
		fmt.Fprintln(w, j.Summary)
		fmt.Fprintln(w)
	}

	if len(j.RelatedTests) > 0 {
		_, _ = bold.Fprintln(w, "RELATED TESTS")
		for _, t := range j.RelatedTests {
			fmt.Fprintf(w, "  %s ", t.TestID)
			_, _ = actionColor(t.SuggestedAction).Fprintf(w, "[%s]", strings.ToUpper(t.SuggestedAction))
			fmt.Fprintf(w, " %s\n", t.Rationale)
			if t.SuggestedUpdate != "" {
				_, _ = dim.Fprintf(w, "      update: %s\n", t.SuggestedUpdate)
			}
		}
		fmt.Fprintln(w)
	}

	if len(j.NewTestSuggestions) > 0 {
		_, _ = bold.Fprintln(w, "NEW TESTS")
		for _, s := range j.NewTestSuggestions {
			fmt.Fprintf(w, "  [%s] %s\n", strings.ToUpper(s.Priority), s.Title)
			if s.Description != "" {
				_, _ = dim.Fprintf(w, "      %s\n", s.Description)
			}
		}
		fmt.Fprintln(w)
	}

	if len(j.DuplicateGroups) > 0 {
		_, _ = bold.Fprintln(w, "DUPLICATES")
		for _, g := range j.DuplicateGroups {
			fmt.Fprintf(w, "  %s: %s\n", g.Classification, strings.Join(g.TestIDs, ", "))
			if g.Rationale != "" {
				_, _ = dim.Fprintf(w, "      %s\n", g.Rationale)
			}
		}
		fmt.Fprintln(w)
	}

	sum := r.Summary
	_, _ = dim.Fprintln(w, strings.Repeat("-", ruleWidth))
	_, _ = dim.Fprintf(w, "Corpus: %d tests (%d malformed, %d unembedded) | Similar: %d | Analyzed: %d | Exportable: %d\n",
		sum.CorpusSize, sum.MalformedSkipped, sum.UnembeddedSkipped, sum.Survivors, sum.ForAnalysis, sum.ForExport)
	th := r.Thresholds
	_, _ = dim.Fprintf(w, "Strictness: %s (min %.2f, analysis %.2f, export %.2f) | Area boost: %t",
		th.Strictness, th.Minimum, th.AnalysisGate, th.ExportGate, th.AreaBoostEnabled)
	if r.Model != "" {
		_, _ = dim.Fprintf(w, " | Model: %s", r.Model)
	}
	fmt.Fprintln(w)
}

func actionColor(action string) *color.Color {
	switch action {
	case models.ActionKeep:
		return color.New(color.FgGreen)
	case models.ActionUpdate:
		return color.New(color.FgYellow)
	case models.ActionRetire:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

func printAreas(w io.Writer, areas []area.Area) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	for _, a := range areas {
		_, _ = bold.Fprintln(w, a.Name)
		if a.PathPattern != "" {
			fmt.Fprintf(w, "  path:     %s\n", a.PathPattern)
		}
		fmt.Fprintf(w, "  keywords: %s\n", strings.Join(a.Keywords, ", "))
		if a.Description != "" {
			_, _ = dim.Fprintf(w, "  %s\n", a.Description)
		}
	}
}

func printDetections(w io.Writer, dets []area.Detection, recommended []string) {
	if len(dets) == 0 {
		fmt.Fprintln(w, "No area detected.")
		return
	}
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	for _, d := range dets {
		fmt.Fprintf(w, "  %.2f  %s ", d.Confidence, d.Area)
		_, _ = dim.Fprintf(w, "(%s)\n", strings.Join(d.MatchedKeywords, ", "))
	}
	fmt.Fprintln(w)
	_, _ = bold.Fprint(w, "Recommended: ")
	if len(recommended) == 0 {
		fmt.Fprintln(w, "none")
		return
	}
	fmt.Fprintln(w, strings.Join(recommended, ", "))
}

func printDuplicates(w io.Writer, rep *models.DuplicateReport) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintf(w, "DUPLICATE CANDIDATES (%d)\n", len(rep.Pairs))
	if len(rep.Pairs) == 0 {
		fmt.Fprintf(w, "No pair of tests is at least %.2f similar.\n", rep.Threshold)
	}
	for _, p := range rep.Pairs {
		label := p.Classification
		if p.Exact {
			label = "EXACT"
		}
		fmt.Fprintf(w, "  %.3f  %s <> %s", p.Similarity, p.First.ID, p.Second.ID)
		if label != "" {
			_, _ = duplicateColor(label).Fprintf(w, "  [%s]", label)
		}
		fmt.Fprintln(w)
		_, _ = dim.Fprintf(w, "      %s | %s\n", p.First.Title, p.Second.Title)
		if p.Recommendation != "" {
			_, _ = dim.Fprintf(w, "      %s\n", p.Recommendation)
		}
	}
	fmt.Fprintln(w)

	if rep.ClassifyError != "" {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(w, "Classification failed: %s\n\n", rep.ClassifyError)
	}

	_, _ = dim.Fprintln(w, strings.Repeat("-", ruleWidth))
	_, _ = dim.Fprintf(w, "Compared %d tests at threshold %.2f | Groups: %d\n", rep.TestsCompared, rep.Threshold, len(rep.Groups))
}

func duplicateColor(label string) *color.Color {
	switch label {
	case "EXACT", models.DuplicateTrue:
		return color.New(color.FgRed)
	case models.DuplicateOverlapping:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

func printStats(w io.Writer, st corpus.Stats, diag corpus.Diagnostics) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintf(w, "%d test cases", st.TotalTestCases)
	_, _ = dim.Fprintf(w, "  (%s)\n", st.Source)
	if st.Malformed > 0 || st.Unembedded > 0 {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(w, "%d malformed rows skipped, %d records not embedded\n", st.Malformed, st.Unembedded)
	}
	fmt.Fprintln(w)

	names := make([]string, 0, len(st.Areas))
	for name := range st.Areas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a := st.Areas[name]
		fmt.Fprintf(w, "  %-32s %5d", name, a.Total)
		_, _ = dim.Fprintf(w, "  %s\n", formatStates(a.States))
	}

	if len(diag.Errors) > 0 {
		fmt.Fprintln(w)
		_, _ = bold.Fprintln(w, "SKIPPED ROWS")
		for _, e := range diag.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
}

func formatStates(states map[string]int) string {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		name := k
		if name == "" {
			name = "(none)"
		}
		parts[i] = fmt.Sprintf("%s=%d", name, states[k])
	}
	return strings.Join(parts, " ")
}
