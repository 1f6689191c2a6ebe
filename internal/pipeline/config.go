package pipeline

import (
	"fmt"

	"github.com/kiranshivaraju/testscout/internal/filter"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// DefaultTopK caps the ranked list handed to the filter.
const DefaultTopK = 15

// Config is the per-request tuning of one analysis.
type Config struct {
	Strictness       string
	Minimum          float64
	AnalysisGate     float64
	ExportGate       float64
	AreaBoostEnabled bool
	// TopK caps the ranked candidates before filtering; zero means no cap.
	TopK int
}

// NewConfig resolves a strictness profile with optional per-threshold
// overrides.
func NewConfig(strictness string, overrides filter.Overrides, areaBoost bool, topK int) (Config, error) {
	p, err := filter.Resolve(strictness, overrides)
	if err != nil {
		return Config{}, err
	}
	if topK < 0 {
		return Config{}, fmt.Errorf("%w: top_k must not be negative, got %d", filter.ErrInvalidConfiguration, topK)
	}
	return Config{
		Strictness:       p.Name,
		Minimum:          p.Minimum,
		AnalysisGate:     p.AnalysisGate,
		ExportGate:       p.ExportGate,
		AreaBoostEnabled: areaBoost,
		TopK:             topK,
	}, nil
}

// DefaultConfig is the moderate profile with area adjustment on.
func DefaultConfig() Config {
	c, _ := NewConfig(filter.DefaultStrictness, filter.Overrides{}, true, DefaultTopK)
	return c
}

// Profile validates the config and returns its thresholds.
func (c Config) Profile() (filter.Profile, error) {
	if c.TopK < 0 {
		return filter.Profile{}, fmt.Errorf("%w: top_k must not be negative, got %d", filter.ErrInvalidConfiguration, c.TopK)
	}
	p := filter.Profile{
		Name:         c.Strictness,
		Minimum:      c.Minimum,
		AnalysisGate: c.AnalysisGate,
		ExportGate:   c.ExportGate,
	}
	if err := p.Validate(); err != nil {
		return filter.Profile{}, err
	}
	return p, nil
}

func (c Config) thresholds() models.Thresholds {
	return models.Thresholds{
		Strictness:       c.Strictness,
		Minimum:          c.Minimum,
		AnalysisGate:     c.AnalysisGate,
		ExportGate:       c.ExportGate,
		AreaBoostEnabled: c.AreaBoostEnabled,
		TopK:             c.TopK,
	}
}
