// Package metricstore persists the canonical model catalog, aliases, raw
// benchmark metrics, and source-ingest bookkeeping, and regenerates per-model
// read projections for the scorer from raw metrics on read. It keeps no
// precomputed routing-index rows.
package metricstore

import "time"

// MetricKind is the closed set of metric kinds the core understands.
type MetricKind string

const (
	MetricEloRating           MetricKind = "elo_rating"
	MetricEloUncertainty      MetricKind = "elo_uncertainty"
	MetricBenchmarkAverage    MetricKind = "benchmark_average"
	MetricLatencyP50          MetricKind = "latency_p50"
	MetricLatencyP90          MetricKind = "latency_p90"
	MetricTTFTP90             MetricKind = "ttft_p90"
	MetricCostPromptPerM      MetricKind = "cost_prompt_per_million"
	MetricCostCompletionPerM  MetricKind = "cost_completion_per_million"
	MetricCostBlendedPerM     MetricKind = "cost_blended_per_million"
	MetricContextLength       MetricKind = "context_length"
)

// IsBenchmarkKind reports whether kind is one of the open-ended
// "benchmark_*" per-benchmark score kinds (distinct from benchmark_average).
func IsBenchmarkKind(kind string) bool {
	return len(kind) > len("benchmark_") && kind[:len("benchmark_")] == "benchmark_" && kind != string(MetricBenchmarkAverage)
}

// CanonicalModel is a unique catalog entry. Name is unique and immutable
// once created.
type CanonicalModel struct {
	ID            int64
	Name          string
	Provider      string
	ContextLength int64
	Active        bool
	CreatedAt     time.Time
}

// ModelAlias maps a source-specific name to a canonical model.
type ModelAlias struct {
	ID          int64
	CanonicalID int64
	SourceTag   string
	AliasName   string
	Confidence  float64
	Reviewed    bool
	CreatedAt   time.Time
}

// RawMetric is a single immutable measurement as emitted by one source.
type RawMetric struct {
	ID          int64
	SourceTag   string
	ModelName   string
	Kind        MetricKind
	Value       float64
	CollectedAt time.Time
	Metadata    map[string]any
}

// IngestStatus records the last attempt/success for one source adapter.
type IngestStatus struct {
	SourceTag   string
	LastAttempt time.Time
	LastSuccess time.Time
	Status      string
	Error       string
}

// ModelMetricsView is the per-model read-projection the scorer consumes:
// one representative (most recent non-null) value per metric kind.
type ModelMetricsView struct {
	CanonicalID   int64
	CanonicalName string
	ContextLength float64

	EloRating          *float64
	BenchmarkAverage   *float64
	LatencyP90         *float64
	TTFTP90            *float64
	CostPromptPerM     *float64
	CostCompletionPerM *float64
	CostBlendedPerM    *float64
}

// QualitySignal returns the elo_rating when present, else benchmark_average,
// else 0.5 as the scorer's neutral default.
func (v ModelMetricsView) QualitySignal() float64 {
	if v.EloRating != nil {
		return *v.EloRating
	}
	if v.BenchmarkAverage != nil {
		return *v.BenchmarkAverage
	}
	return 0.5
}

// HasQualitySignal reports whether a real (non-default) quality value exists.
func (v ModelMetricsView) HasQualitySignal() bool {
	return v.EloRating != nil || v.BenchmarkAverage != nil
}

// LatencySignal returns latency_p90 when present, else ttft_p90, else 0.
func (v ModelMetricsView) LatencySignal() float64 {
	if v.LatencyP90 != nil {
		return *v.LatencyP90
	}
	if v.TTFTP90 != nil {
		return *v.TTFTP90
	}
	return 0
}

func (v ModelMetricsView) HasLatencySignal() bool {
	return v.LatencyP90 != nil || v.TTFTP90 != nil
}

// CostSignal returns cost_blended_per_million when present, else a 70/30
// blend of prompt/completion when both are present, else 0.
func (v ModelMetricsView) CostSignal() float64 {
	if v.CostBlendedPerM != nil {
		return *v.CostBlendedPerM
	}
	if v.CostPromptPerM != nil && v.CostCompletionPerM != nil {
		return 0.7**v.CostPromptPerM + 0.3**v.CostCompletionPerM
	}
	return 0
}

func (v ModelMetricsView) HasCostSignal() bool {
	return v.CostBlendedPerM != nil || (v.CostPromptPerM != nil && v.CostCompletionPerM != nil)
}
