package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/modelgate/gateway/internal/metricstore"
)

// pricingEntry mirrors one row of a pricing/latency feed: per-model dollar
// cost per million tokens plus latency percentiles when the source has them.
type pricingEntry struct {
	Model              string  `json:"model"`
	InputCostPer1M     float64 `json:"input_cost_per_million"`
	OutputCostPer1M    float64 `json:"output_cost_per_million"`
	LatencyP50Ms       float64 `json:"latency_p50_ms,omitempty"`
	LatencyP90Ms       float64 `json:"latency_p90_ms,omitempty"`
}

// PricingAdapter yields cost_prompt_per_million, cost_completion_per_million,
// a 70/30 blend as cost_blended_per_million, and latency percentiles when
// present in the feed.
type PricingAdapter struct {
	url    string
	client *http.Client
	retry  RetryConfig
}

func NewPricingAdapter(url string) *PricingAdapter {
	return &PricingAdapter{url: url, client: NewHTTPClient(10 * time.Second), retry: DefaultRetryConfig()}
}

func (a *PricingAdapter) SourceTag() string          { return "pricing_latency" }
func (a *PricingAdapter) SyncInterval() time.Duration { return 60 * time.Minute }

func (a *PricingAdapter) Fetch(ctx context.Context) ([]byte, error) {
	return FetchJSON(ctx, a.client, a.url, a.SourceTag(), a.retry)
}

func (a *PricingAdapter) Validate(raw []byte) bool {
	return json.Valid(raw)
}

func (a *PricingAdapter) Parse(raw []byte) ([]metricstore.RawMetric, error) {
	var entries []pricingEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	now := time.Now()
	var out []metricstore.RawMetric
	for _, e := range entries {
		if e.Model == "" {
			continue
		}
		blended := 0.7*e.InputCostPer1M + 0.3*e.OutputCostPer1M
		out = append(out,
			metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: e.Model, Kind: metricstore.MetricCostPromptPerM, Value: e.InputCostPer1M, CollectedAt: now},
			metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: e.Model, Kind: metricstore.MetricCostCompletionPerM, Value: e.OutputCostPer1M, CollectedAt: now},
			metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: e.Model, Kind: metricstore.MetricCostBlendedPerM, Value: blended, CollectedAt: now},
		)
		if e.LatencyP50Ms > 0 {
			out = append(out, metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: e.Model, Kind: metricstore.MetricLatencyP50, Value: e.LatencyP50Ms, CollectedAt: now})
		}
		if e.LatencyP90Ms > 0 {
			out = append(out, metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: e.Model, Kind: metricstore.MetricLatencyP90, Value: e.LatencyP90Ms, CollectedAt: now})
		}
	}
	return out, nil
}
