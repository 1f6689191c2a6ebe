// Package dedupe finds corpus tests that look like duplicates of each other.
package dedupe

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/hbollon/go-edlib"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/testscout/internal/similarity"
	"github.com/kiranshivaraju/testscout/internal/textproc"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Defaults for FindPairs.
const (
	DefaultThreshold = 0.75
	DefaultLimit     = 20
)

// Normalization regexes compiled once at package init.
var (
	reStepMarker = regexp.MustCompile(`(?i)\bstep\s+\d+\s*:`)
	reExpected   = regexp.MustCompile(`(?i)\bexpected\s*:`)
	reBracketNum = regexp.MustCompile(`\[\d+\]`)
	reParenNum   = regexp.MustCompile(`\(\d+\)`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// NormalizeText reduces a test's text to what matters for exact-duplicate
// detection: step numbering, markers, punctuation and case are dropped.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, models.StepDelimiter, " ")
	s = reStepMarker.ReplaceAllString(s, " ")
	s = reExpected.ReplaceAllString(s, " ")
	s = reBracketNum.ReplaceAllString(s, " ")
	s = reParenNum.ReplaceAllString(s, " ")
	s = strings.Join(textproc.Words(s), " ")
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint computes a stable SHA-256 fingerprint of a test's normalised
// description and steps. Titles are left out.
func Fingerprint(tc *models.TestCase) string {
	hash := sha256.Sum256([]byte(NormalizeText(tc.Description + " " + tc.Steps)))
	return fmt.Sprintf("%x", hash)
}

// TitleSimilarity is the Jaro-Winkler similarity of two titles, case-insensitive.
func TitleSimilarity(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0.0
	}
	return float64(score)
}

type scored struct {
	i, j int
	sim  float64
}

// FindPairs compares every pair of candidates and returns those with cosine
// similarity at or above threshold, most similar first, at most limit pairs
// (limit <= 0 means all). Pairs whose normalised text is identical are
// classified TRUE DUPLICATE up front.
func FindPairs(ctx context.Context, candidates []similarity.Candidate, threshold float64, limit int) ([]models.DuplicatePair, error) {
	n := len(candidates)
	if n < 2 {
		return []models.DuplicatePair{}, nil
	}

	norms := make([]float64, n)
	for i, c := range candidates {
		var sum float64
		for _, x := range c.Vector {
			sum += float64(x) * float64(x)
		}
		norms[i] = math.Sqrt(sum)
	}

	var (
		mu    sync.Mutex
		found []scored
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n-1; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var local []scored
			a := candidates[i].Vector
			for j := i + 1; j < n; j++ {
				b := candidates[j].Vector
				if norms[i] == 0 || norms[j] == 0 || len(a) != len(b) {
					continue
				}
				var dot float64
				for k := range a {
					dot += float64(a[k]) * float64(b[k])
				}
				if sim := dot / (norms[i] * norms[j]); sim >= threshold {
					local = append(local, scored{i: i, j: j, sim: sim})
				}
			}
			if len(local) > 0 {
				mu.Lock()
				found = append(found, local...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(found, func(x, y int) bool {
		if found[x].sim != found[y].sim {
			return found[x].sim > found[y].sim
		}
		if found[x].i != found[y].i {
			return found[x].i < found[y].i
		}
		return found[x].j < found[y].j
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	pairs := make([]models.DuplicatePair, 0, len(found))
	for _, f := range found {
		a, b := candidates[f.i].Record, candidates[f.j].Record
		p := models.DuplicatePair{
			First:           a,
			Second:          b,
			Similarity:      math.Min(1.0, f.sim),
			TitleSimilarity: TitleSimilarity(a.Title, b.Title),
			Exact:           Fingerprint(a) == Fingerprint(b),
		}
		if p.Exact {
			p.Classification = models.DuplicateTrue
			p.Rationale = "identical steps and description after normalisation"
			p.Recommendation = "consolidate into one test"
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// Groups merges pairs classified TRUE DUPLICATE or OVERLAPPING into
// connected groups. A group is TRUE DUPLICATE only when every pair in it is.
// Ids keep the order they were first seen in pairs.
func Groups(pairs []models.DuplicatePair) []models.DuplicateGroup {
	parent := map[string]string{}
	var order []string
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	add := func(id string) {
		if _, ok := parent[id]; !ok {
			parent[id] = id
			order = append(order, id)
		}
	}

	overlapping := map[string]bool{}
	var rationale = map[string][]string{}
	var linked []models.DuplicatePair
	for _, p := range pairs {
		if p.Classification != models.DuplicateTrue && p.Classification != models.DuplicateOverlapping {
			continue
		}
		add(p.First.ID)
		add(p.Second.ID)
		ra, rb := find(p.First.ID), find(p.Second.ID)
		if ra != rb {
			parent[rb] = ra
		}
		linked = append(linked, p)
	}

	for _, p := range linked {
		root := find(p.First.ID)
		if p.Classification == models.DuplicateOverlapping {
			overlapping[root] = true
		}
		if p.Rationale != "" {
			rationale[root] = append(rationale[root], p.Rationale)
		}
	}

	members := map[string][]string{}
	var roots []string
	for _, id := range order {
		root := find(id)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], id)
	}

	groups := make([]models.DuplicateGroup, 0, len(roots))
	for _, root := range roots {
		g := models.DuplicateGroup{
			TestIDs:        members[root],
			Classification: models.DuplicateTrue,
			Rationale:      strings.Join(dedupeStrings(rationale[root]), "; "),
		}
		if overlapping[root] {
			g.Classification = models.DuplicateOverlapping
		}
		groups = append(groups, g)
	}
	return groups
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
