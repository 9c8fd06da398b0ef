package router

import (
	"testing"
	"time"

	"github.com/modelgate/gateway/internal/breaker"
	"github.com/modelgate/gateway/internal/metricstore"
	"github.com/modelgate/gateway/internal/profiles"
)

func f(v float64) *float64 { return &v }

func candidates() []Candidate {
	return []Candidate{
		{Key: "a", View: metricstore.ModelMetricsView{CanonicalID: 1, CanonicalName: "a", EloRating: f(1300), LatencyP90: f(200), CostBlendedPerM: f(2)}},
		{Key: "b", View: metricstore.ModelMetricsView{CanonicalID: 2, CanonicalName: "b", EloRating: f(1100), LatencyP90: f(100), CostBlendedPerM: f(1)}},
		{Key: "c", View: metricstore.ModelMetricsView{CanonicalID: 3, CanonicalName: "c", EloRating: f(1000), LatencyP90: f(50), CostBlendedPerM: f(0.5)}},
	}
}

func TestEmptyCandidatesReturnsNone(t *testing.T) {
	r := New(breaker.NewRegistry(breaker.DefaultConfig()), 2)
	_, ok := r.Route(nil, profiles.Builtin()["balanced"])
	if ok {
		t.Fatal("expected no selection for empty candidate set")
	}
}

func TestRouteSelectsPrimaryAndFallbacks(t *testing.T) {
	r := New(breaker.NewRegistry(breaker.DefaultConfig()), 2)
	dec, ok := r.Route(candidates(), profiles.Builtin()["quality"])
	if !ok {
		t.Fatal("expected a selection")
	}
	if dec.Selected.CanonicalName != "a" {
		t.Fatalf("expected a to win on quality, got %s", dec.Selected.CanonicalName)
	}
	if len(dec.Fallbacks) != 2 {
		t.Fatalf("expected 2 fallbacks, got %d", len(dec.Fallbacks))
	}
}

func TestAllCircuitsOpenDegradesAndStillSelects(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenMaxRequests: 1})
	for _, c := range candidates() {
		reg.Get(c.Key).RecordFailure()
	}
	r := New(reg, 2)
	dec, ok := r.Route(candidates(), profiles.Builtin()["balanced"])
	if !ok {
		t.Fatal("expected degraded path to still return a selection")
	}
	if !dec.Degraded {
		t.Fatal("expected Degraded flag set when every circuit is open")
	}
}

func TestRouteWithFallbackExcludesFailedIDs(t *testing.T) {
	r := New(breaker.NewRegistry(breaker.DefaultConfig()), 2)
	dec, ok := r.RouteWithFallback(candidates(), profiles.Builtin()["quality"], []string{"a"})
	if !ok {
		t.Fatal("expected a selection")
	}
	if dec.Selected.CanonicalName == "a" {
		t.Fatal("expected excluded candidate a to not be selected")
	}
	if !dec.WasFallback {
		t.Fatal("expected WasFallback to be set when exclusions applied")
	}
}

func TestRecordSuccessAndFailureDelegateToBreaker(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenMaxRequests: 1})
	r := New(reg, 2)
	r.RecordFailure("x")
	if reg.Get("x").State() != breaker.StateOpen {
		t.Fatal("expected RecordFailure to open the breaker")
	}
}
