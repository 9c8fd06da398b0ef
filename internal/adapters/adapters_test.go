package adapters

import (
	"testing"

	"github.com/modelgate/gateway/internal/metricstore"
)

func metricsByKind(metrics []metricstore.RawMetric, kind metricstore.MetricKind) *metricstore.RawMetric {
	for i := range metrics {
		if metrics[i].Kind == kind {
			return &metrics[i]
		}
	}
	return nil
}

func TestPricingAdapterBlendsCost(t *testing.T) {
	a := NewPricingAdapter("http://example.invalid")
	raw := []byte(`[{"model":"gpt-x","input_cost_per_million":10,"output_cost_per_million":30,"latency_p90_ms":250}]`)
	metrics, err := a.Parse(raw)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	blended := metricsByKind(metrics, metricstore.MetricCostBlendedPerM)
	if blended == nil {
		t.Fatal("expected a blended cost metric")
	}
	want := 0.7*10 + 0.3*30
	if blended.Value != want {
		t.Fatalf("expected blended cost %v, got %v", want, blended.Value)
	}
	if metricsByKind(metrics, metricstore.MetricLatencyP90) == nil {
		t.Fatal("expected latency_p90 to pass through")
	}
}

func TestPricingAdapterSkipsEmptyModel(t *testing.T) {
	a := NewPricingAdapter("http://example.invalid")
	metrics, err := a.Parse([]byte(`[{"model":"","input_cost_per_million":1,"output_cost_per_million":1}]`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(metrics) != 0 {
		t.Fatalf("expected no metrics for empty model name, got %d", len(metrics))
	}
}

func TestArenaAdapterComputesUncertainty(t *testing.T) {
	a := NewArenaAdapter("http://example.invalid")
	metrics, err := a.Parse([]byte(`[{"model":"claude-y","elo":1200,"ci_width":24}]`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	u := metricsByKind(metrics, metricstore.MetricEloUncertainty)
	if u == nil {
		t.Fatal("expected an elo_uncertainty metric")
	}
	if u.Value != 24.0/1200.0 {
		t.Fatalf("expected uncertainty %v, got %v", 24.0/1200.0, u.Value)
	}
}

func TestArenaAdapterOmitsUncertaintyWithoutCI(t *testing.T) {
	a := NewArenaAdapter("http://example.invalid")
	metrics, err := a.Parse([]byte(`[{"model":"claude-y","elo":1200}]`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if metricsByKind(metrics, metricstore.MetricEloUncertainty) != nil {
		t.Fatal("expected no uncertainty metric without a CI width")
	}
}

func TestLeaderboardAdapterEmitsAverageAtThreeBenchmarks(t *testing.T) {
	a := NewLeaderboardAdapter("http://example.invalid")
	metrics, err := a.Parse([]byte(`[{"model":"m1","benchmarks":{"mmlu":80,"gpqa":60,"humaneval":70}}]`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	avg := metricsByKind(metrics, metricstore.MetricBenchmarkAverage)
	if avg == nil {
		t.Fatal("expected benchmark_average with 3 benchmarks present")
	}
	want := (80.0 + 60.0 + 70.0) / 3
	if avg.Value != want {
		t.Fatalf("expected average %v, got %v", want, avg.Value)
	}
}

func TestLeaderboardAdapterSkipsAverageBelowThreeBenchmarks(t *testing.T) {
	a := NewLeaderboardAdapter("http://example.invalid")
	metrics, err := a.Parse([]byte(`[{"model":"m1","benchmarks":{"mmlu":80,"gpqa":60}}]`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if metricsByKind(metrics, metricstore.MetricBenchmarkAverage) != nil {
		t.Fatal("expected no benchmark_average with only 2 benchmarks present")
	}
}

func TestLeaderboardAdapterNormalizesNonPercentScale(t *testing.T) {
	a := NewLeaderboardAdapter("http://example.invalid")
	metrics, err := a.Parse([]byte(`[{"model":"m1","benchmarks":{"acc":0.85},"scale":{"acc":1}}]`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	m := metricsByKind(metrics, metricstore.MetricKind("benchmark_acc"))
	if m == nil {
		t.Fatal("expected a benchmark_acc metric")
	}
	if m.Value != 85 {
		t.Fatalf("expected normalized value 85, got %v", m.Value)
	}
}

func TestLocalAdapterZeroCostAndMetadata(t *testing.T) {
	a := NewLocalAdapter("http://localhost:11434/api/tags")
	metrics, err := a.Parse([]byte(`{"models":[{"name":"llama3-70b"}]}`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	cost := metricsByKind(metrics, metricstore.MetricCostBlendedPerM)
	if cost == nil || cost.Value != 0 {
		t.Fatal("expected zero blended cost for a local model")
	}
	if cost.Metadata["is_local"] != true {
		t.Fatal("expected is_local=true metadata")
	}
	elo := metricsByKind(metrics, metricstore.MetricEloRating)
	if elo == nil {
		t.Fatal("expected a heuristic elo_rating metric")
	}
	if elo.Value <= 900 {
		t.Fatalf("expected a 70B model to score above the 7B baseline, got %v", elo.Value)
	}
}

func TestLocalAdapterDefaultsSmallWithoutSizeHint(t *testing.T) {
	a := NewLocalAdapter("http://localhost:11434/api/tags")
	metrics, err := a.Parse([]byte(`{"models":[{"name":"mystery-model"}]}`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	elo := metricsByKind(metrics, metricstore.MetricEloRating)
	if elo == nil {
		t.Fatal("expected an elo_rating metric even without a size hint")
	}
	if elo.Value < 800 || elo.Value > 1400 {
		t.Fatalf("expected elo within normalizer range, got %v", elo.Value)
	}
}
