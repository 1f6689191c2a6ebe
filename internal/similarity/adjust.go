package similarity

import "math"

// Default adjustment constants.
const (
	DefaultBoost   = 0.15
	DefaultPenalty = 0.05
)

// Policy is the area boost/penalty adjustment.
type Policy struct {
	Enabled bool
	Boost   float64
	Penalty float64
}

// DefaultPolicy returns an enabled policy with the default constants.
func DefaultPolicy() Policy {
	return Policy{Enabled: true, Boost: DefaultBoost, Penalty: DefaultPenalty}
}

// Adjust applies the policy to raw. Without area data, or with the policy
// disabled, raw is returned unchanged. The result is clipped to [0, 1].
func (p Policy) Adjust(raw float64, areaMatched, areaDataPresent bool) float64 {
	if !p.Enabled || !areaDataPresent {
		return raw
	}
	if areaMatched {
		return math.Min(1.0, raw+p.Boost)
	}
	return math.Max(0.0, raw-p.Penalty)
}
