package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/modelgate/gateway/internal/metricstore"
)

// leaderboardEntry mirrors one row of a multi-benchmark leaderboard: a model
// name plus a set of named benchmark scores, each on its own native scale.
type leaderboardEntry struct {
	Model      string             `json:"model"`
	Benchmarks map[string]float64 `json:"benchmarks"`
	// Scale reports the max score for a given benchmark when it isn't already
	// 0-100 (e.g. some leaderboards report 0-1 accuracy).
	Scale map[string]float64 `json:"scale,omitempty"`
}

// LeaderboardAdapter yields per-benchmark scores normalized to [0,100]; when
// three or more are present for a model it also emits benchmark_average.
type LeaderboardAdapter struct {
	url    string
	client *http.Client
	retry  RetryConfig
}

func NewLeaderboardAdapter(url string) *LeaderboardAdapter {
	return &LeaderboardAdapter{url: url, client: NewHTTPClient(15 * time.Second), retry: DefaultRetryConfig()}
}

func (a *LeaderboardAdapter) SourceTag() string           { return "leaderboard" }
func (a *LeaderboardAdapter) SyncInterval() time.Duration { return 24 * time.Hour }

func (a *LeaderboardAdapter) Fetch(ctx context.Context) ([]byte, error) {
	return FetchJSON(ctx, a.client, a.url, a.SourceTag(), a.retry)
}

func (a *LeaderboardAdapter) Validate(raw []byte) bool {
	return json.Valid(raw)
}

func (a *LeaderboardAdapter) Parse(raw []byte) ([]metricstore.RawMetric, error) {
	var entries []leaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	now := time.Now()
	var out []metricstore.RawMetric
	for _, e := range entries {
		if e.Model == "" || len(e.Benchmarks) == 0 {
			continue
		}

		var sum float64
		var count int
		for name, raw := range e.Benchmarks {
			scale := e.Scale[name]
			if scale <= 0 {
				scale = 100
			}
			normalized := clampPercent(raw / scale * 100)
			out = append(out, metricstore.RawMetric{
				SourceTag: a.SourceTag(), ModelName: e.Model,
				Kind: metricstore.MetricKind("benchmark_" + name), Value: normalized, CollectedAt: now,
			})
			sum += normalized
			count++
		}

		if count >= 3 {
			out = append(out, metricstore.RawMetric{
				SourceTag: a.SourceTag(), ModelName: e.Model,
				Kind: metricstore.MetricBenchmarkAverage, Value: sum / float64(count), CollectedAt: now,
			})
		}
	}
	return out, nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
