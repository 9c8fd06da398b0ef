// Package profiles defines named routing weight vectors and the hard
// constraints a candidate model must satisfy to avoid soft demotion.
package profiles

import (
	"github.com/modelgate/gateway/internal/metricstore"
	"github.com/modelgate/gateway/internal/normalize"
)

// Constraints mixes one normalized bound (MinQuality, a [0,1] normalized
// quality sub-score, matching the scorer's own QualitySubscore) with three
// raw-metric bounds; a zero value for any bound means "unset".
type Constraints struct {
	MinQuality        float64
	MaxLatencyMs       float64
	MaxCostPerMillion  float64
	MinContextLength   float64
}

// NormalizedQuality computes the same [0,1] quality sub-score the scorer
// uses to weight its composite, so a MinQuality constraint is checked
// against the normalized value rather than a raw Elo/benchmark number with
// a different scale.
func NormalizedQuality(view metricstore.ModelMetricsView) float64 {
	if !view.HasQualitySignal() {
		return 0.5
	}
	if view.EloRating != nil {
		return normalize.Quality(view.QualitySignal(), normalize.DefaultEloFloor, normalize.DefaultEloCeiling)
	}
	return normalize.Quality(view.QualitySignal(), normalize.DefaultBenchFloor, normalize.DefaultBenchCeiling)
}

// Profile is a named tuple of four non-negative weights plus optional hard
// constraints. Weights are normalized to sum to 1 at construction.
type Profile struct {
	Name        string
	Description string
	WeightQuality float64
	WeightLatency float64
	WeightCost    float64
	WeightContext float64
	Constraints Constraints
}

// New builds a Profile and normalizes its weights. An all-zero weight
// vector is rejected in favor of an equal four-way split, since the spec
// requires every profile to have normalized, non-degenerate weights.
func New(name, description string, wq, wl, wc, wx float64, cons Constraints) Profile {
	sum := wq + wl + wc + wx
	if sum == 0 {
		wq, wl, wc, wx = 0.25, 0.25, 0.25, 0.25
		sum = 1
	}
	return Profile{
		Name:          name,
		Description:   description,
		WeightQuality: wq / sum,
		WeightLatency: wl / sum,
		WeightCost:    wc / sum,
		WeightContext: wx / sum,
		Constraints:   cons,
	}
}

// Meets reports whether view satisfies p's hard constraints: MinQuality
// against the normalized quality sub-score, the other three bounds against
// raw metric values. An unset (zero) bound is always satisfied.
func (p Profile) Meets(view metricstore.ModelMetricsView) bool {
	c := p.Constraints
	if c.MinQuality > 0 {
		q := NormalizedQuality(view)
		if q < c.MinQuality {
			return false
		}
	}
	if c.MaxLatencyMs > 0 {
		l := view.LatencySignal()
		if l > 0 && l > c.MaxLatencyMs {
			return false
		}
	}
	if c.MaxCostPerMillion > 0 {
		cost := view.CostSignal()
		if cost > c.MaxCostPerMillion {
			return false
		}
	}
	if c.MinContextLength > 0 {
		if view.ContextLength > 0 && view.ContextLength < c.MinContextLength {
			return false
		}
	}
	return true
}

// Builtin returns the five built-in profiles named in the routing contract.
func Builtin() map[string]Profile {
	ps := []Profile{
		New("quality", "Maximize response quality", 0.70, 0.15, 0.15, 0, Constraints{MinQuality: 0.6}),
		New("balanced", "Balance quality, latency, and cost", 0.40, 0.30, 0.30, 0, Constraints{}),
		New("speed", "Minimize latency", 0.20, 0.60, 0.20, 0, Constraints{MaxLatencyMs: 1000}),
		New("budget", "Minimize cost", 0.25, 0.15, 0.60, 0, Constraints{MaxCostPerMillion: 1.0}),
		New("long_context", "Favor large context windows", 0.30, 0.20, 0.20, 0.30, Constraints{MinContextLength: 100000}),
	}
	out := make(map[string]Profile, len(ps))
	for _, p := range ps {
		out[p.Name] = p
	}
	return out
}
