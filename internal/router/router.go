// Package router implements the admission -> selection -> fallback pipeline:
// filter candidates by circuit availability, rank them with the scorer under
// a profile, and return a primary selection plus ordered fallbacks.
package router

import (
	"time"

	"github.com/modelgate/gateway/internal/breaker"
	"github.com/modelgate/gateway/internal/metricstore"
	"github.com/modelgate/gateway/internal/profiles"
	"github.com/modelgate/gateway/internal/scorer"
)

// Candidate is one model eligible for selection, keyed by the same string
// used to look up its circuit breaker (its canonical name).
type Candidate struct {
	Key  string
	View metricstore.ModelMetricsView
}

// Decision is the router's output for one request.
type Decision struct {
	Selected    scorer.Score
	Fallbacks   []scorer.Score
	ProfileName string
	ElapsedMs   float64
	WasFallback bool
	Degraded    bool
}

// Router owns the circuit-breaker registry and routes candidates under a
// profile. It holds no per-request state; every call is independent.
type Router struct {
	breakers      *breaker.Registry
	fallbackCount int
}

// New constructs a router with the given breaker registry. fallbackCount is
// the number of fallback candidates returned in addition to the primary
// (default 2).
func New(breakers *breaker.Registry, fallbackCount int) *Router {
	if fallbackCount <= 0 {
		fallbackCount = 2
	}
	return &Router{breakers: breakers, fallbackCount: fallbackCount}
}

// Route filters candidates by circuit availability (degrading to the full
// list if every circuit is open), ranks the survivors under profile, and
// returns the top 1+fallbackCount as a Decision. An empty candidate set
// yields (Decision{}, false).
func (r *Router) Route(candidates []Candidate, profile profiles.Profile) (Decision, bool) {
	return r.routeExcluding(candidates, profile, nil)
}

// RouteWithFallback excludes candidates whose key is in failedIDs before
// ranking, and marks WasFallback true whenever any exclusion applied.
func (r *Router) RouteWithFallback(candidates []Candidate, profile profiles.Profile, failedIDs []string) (Decision, bool) {
	dec, ok := r.routeExcluding(candidates, profile, failedIDs)
	if len(failedIDs) > 0 {
		dec.WasFallback = true
	}
	return dec, ok
}

func (r *Router) routeExcluding(candidates []Candidate, profile profiles.Profile, excluded []string) (Decision, bool) {
	start := time.Now()
	if len(candidates) == 0 {
		return Decision{}, false
	}

	excludeSet := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		excludeSet[id] = true
	}

	var filtered []Candidate
	for _, c := range candidates {
		if !excludeSet[c.Key] {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return Decision{}, false
	}

	keys := make([]string, len(filtered))
	byKey := make(map[string]Candidate, len(filtered))
	for i, c := range filtered {
		keys[i] = c.Key
		byKey[c.Key] = c
	}

	available := r.breakers.FilterAvailable(keys)
	degraded := false
	pool := filtered
	if len(available) == 0 {
		degraded = true // every circuit open: ignore circuits for this decision
	} else if len(available) < len(filtered) {
		pool = make([]Candidate, 0, len(available))
		for _, k := range available {
			pool = append(pool, byKey[k])
		}
	}

	views := make([]metricstore.ModelMetricsView, len(pool))
	for i, c := range pool {
		views[i] = c.View
	}

	ranked := scorer.Rank(views, profile, 1+r.fallbackCount, false)
	if len(ranked) == 0 {
		return Decision{}, false
	}

	return Decision{
		Selected:    ranked[0],
		Fallbacks:   ranked[1:],
		ProfileName: profile.Name,
		ElapsedMs:   float64(time.Since(start)) / float64(time.Millisecond),
		Degraded:    degraded,
	}, true
}

// RecordSuccess reports a successful upstream attempt against key's circuit.
func (r *Router) RecordSuccess(key string) {
	r.breakers.Get(key).RecordSuccess()
}

// RecordFailure reports a failed upstream attempt against key's circuit.
func (r *Router) RecordFailure(key string) {
	r.breakers.Get(key).RecordFailure()
}
