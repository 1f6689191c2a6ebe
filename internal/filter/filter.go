// Package filter gates scored results through strictness thresholds.
package filter

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

// ErrInvalidConfiguration is returned for unknown strictness names and
// thresholds outside [0, 1].
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Strictness names.
const (
	Lenient  = "lenient"
	Moderate = "moderate"
	Strict   = "strict"
)

// DefaultStrictness is used when no name is given.
const DefaultStrictness = Moderate

// Profile bundles the three thresholds of a strictness level.
type Profile struct {
	Name         string  `json:"name"`
	Minimum      float64 `json:"min_similarity"`
	AnalysisGate float64 `json:"analysis_gate"`
	ExportGate   float64 `json:"export_gate"`
}

var profiles = map[string]Profile{
	Lenient:  {Name: Lenient, Minimum: 0.55, AnalysisGate: 0.65, ExportGate: 0.60},
	Moderate: {Name: Moderate, Minimum: 0.70, AnalysisGate: 0.75, ExportGate: 0.70},
	Strict:   {Name: Strict, Minimum: 0.80, AnalysisGate: 0.85, ExportGate: 0.80},
}

// Profiles returns the named profiles, most permissive first.
func Profiles() []Profile {
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minimum < out[j].Minimum })
	return out
}

// Lookup returns the named profile. Names are case-insensitive; the empty
// name is DefaultStrictness.
func Lookup(name string) (Profile, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = DefaultStrictness
	}
	p, ok := profiles[n]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown strictness %q (want lenient, moderate or strict)",
			ErrInvalidConfiguration, name)
	}
	return p, nil
}

// Overrides replaces individual thresholds of a profile. Nil fields keep the
// profile's value.
type Overrides struct {
	Minimum      *float64
	AnalysisGate *float64
	ExportGate   *float64
}

// Resolve looks up name and applies overrides.
func Resolve(name string, o Overrides) (Profile, error) {
	p, err := Lookup(name)
	if err != nil {
		return Profile{}, err
	}
	if o.Minimum != nil {
		p.Minimum = *o.Minimum
	}
	if o.AnalysisGate != nil {
		p.AnalysisGate = *o.AnalysisGate
	}
	if o.ExportGate != nil {
		p.ExportGate = *o.ExportGate
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks that every threshold lies in [0, 1].
func (p Profile) Validate() error {
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"min_similarity", p.Minimum},
		{"analysis_gate", p.AnalysisGate},
		{"export_gate", p.ExportGate},
	} {
		if math.IsNaN(th.v) || th.v < 0 || th.v > 1 {
			return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidConfiguration, th.name, th.v)
		}
	}
	return nil
}

// Views are the three filtered views of a ranked result list.
type Views struct {
	Survivors   []models.SimilarityResult
	ForAnalysis []models.SimilarityResult
	ForExport   []models.SimilarityResult
}

// Apply partitions ranked results. Each view is a fresh slice in input order;
// results is not modified.
func Apply(results []models.SimilarityResult, p Profile) Views {
	v := Views{
		Survivors:   []models.SimilarityResult{},
		ForAnalysis: []models.SimilarityResult{},
		ForExport:   []models.SimilarityResult{},
	}
	for _, r := range results {
		if r.Adjusted < p.Minimum {
			continue
		}
		v.Survivors = append(v.Survivors, r)
		if r.Adjusted >= p.AnalysisGate {
			v.ForAnalysis = append(v.ForAnalysis, r)
		}
		if r.Adjusted >= p.ExportGate {
			v.ForExport = append(v.ForExport, r)
		}
	}
	return v
}
