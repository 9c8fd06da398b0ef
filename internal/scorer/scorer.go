// Package scorer combines normalized per-axis sub-scores into a single
// composite score under a routing profile, and ranks candidate models.
package scorer

import (
	"sort"

	"github.com/modelgate/gateway/internal/metricstore"
	"github.com/modelgate/gateway/internal/normalize"
	"github.com/modelgate/gateway/internal/profiles"
)

// demotionFactor is applied to the composite score when a candidate fails
// the profile's hard constraints; demoted rather than excluded so that
// constraint-violators remain available as last-resort fallbacks.
const demotionFactor = 0.1

// Score is the scorer's ephemeral, per-request output for one model.
type Score struct {
	CanonicalID      int64
	CanonicalName    string
	Composite        float64
	QualitySubscore  float64
	LatencySubscore  float64
	CostSubscore     float64
	ContextSubscore  float64
	MeetsConstraints bool
}

// Compute computes the composite score for one model under profile p.
func Compute(view metricstore.ModelMetricsView, p profiles.Profile) Score {
	q := profiles.NormalizedQuality(view)

	l := 0.5
	if view.HasLatencySignal() {
		l = normalize.Latency(view.LatencySignal(), normalize.DefaultLatencyExcellentMs, normalize.DefaultLatencyPoorMs)
	}

	c := 0.5
	if view.HasCostSignal() {
		c = normalize.Cost(view.CostSignal(), normalize.DefaultCostCheapPerMillion, normalize.DefaultCostExpensivePerMillion)
	}

	x := 1.0
	if view.ContextLength > 0 {
		x = normalize.Context(view.ContextLength, normalize.DefaultContextMin, normalize.DefaultContextMax)
	}

	composite := p.WeightQuality*q + p.WeightLatency*l + p.WeightCost*c + p.WeightContext*x
	meets := p.Meets(view)
	if !meets {
		composite *= demotionFactor
	}

	return Score{
		CanonicalID:      view.CanonicalID,
		CanonicalName:    view.CanonicalName,
		Composite:        composite,
		QualitySubscore:  q,
		LatencySubscore:  l,
		CostSubscore:     c,
		ContextSubscore:  x,
		MeetsConstraints: meets,
	}
}

// Rank scores every view under profile p and returns them sorted by
// composite descending, ties broken by canonical id ascending. When limit
// is > 0 the result is capped; when onlyMeetingConstraints is true,
// constraint-violators are dropped entirely instead of merely demoted.
func Rank(views []metricstore.ModelMetricsView, p profiles.Profile, limit int, onlyMeetingConstraints bool) []Score {
	scores := make([]Score, 0, len(views))
	for _, v := range views {
		s := Compute(v, p)
		if onlyMeetingConstraints && !s.MeetsConstraints {
			continue
		}
		scores = append(scores, s)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Composite != scores[j].Composite {
			return scores[i].Composite > scores[j].Composite
		}
		return scores[i].CanonicalID < scores[j].CanonicalID
	})

	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}
