package adapters

import (
	"context"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/modelgate/gateway/internal/metricstore"
)

// localModel mirrors one entry from a local inference runtime's model
// listing endpoint (Ollama-shaped); only the name is read.
type localModel struct {
	Name string `json:"name"`
}

var localParamSize = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*b\b`)

// LocalAdapter queries a local inference runtime's model listing endpoint.
// When unreachable, Fetch returns a DataUnavailable error and the caller
// falls back to cache like any other source; a local runtime is optional
// infrastructure, not a hard dependency.
//
// It yields zero-cost metrics plus a heuristic quality estimate derived
// from the parameter-size suffix in the model name; the model family is not
// considered. Every emitted metric carries metadata is_local=true.
type LocalAdapter struct {
	url    string
	client *http.Client
	retry  RetryConfig
}

func NewLocalAdapter(url string) *LocalAdapter {
	return &LocalAdapter{url: url, client: NewHTTPClient(3 * time.Second), retry: RetryConfig{MaxAttempts: 1, BaseDelay: 0, MaxDelay: 0}}
}

func (a *LocalAdapter) SourceTag() string           { return "local_inference" }
func (a *LocalAdapter) SyncInterval() time.Duration { return 10 * time.Minute }

func (a *LocalAdapter) Fetch(ctx context.Context) ([]byte, error) {
	return FetchJSON(ctx, a.client, a.url, a.SourceTag(), a.retry)
}

func (a *LocalAdapter) Validate(raw []byte) bool {
	return json.Valid(raw)
}

func (a *LocalAdapter) Parse(raw []byte) ([]metricstore.RawMetric, error) {
	var payload struct {
		Models []localModel `json:"models"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	now := time.Now()
	meta := map[string]any{"is_local": true}
	var out []metricstore.RawMetric
	for _, m := range payload.Models {
		if m.Name == "" {
			continue
		}
		out = append(out,
			metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: m.Name, Kind: metricstore.MetricCostPromptPerM, Value: 0, CollectedAt: now, Metadata: meta},
			metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: m.Name, Kind: metricstore.MetricCostCompletionPerM, Value: 0, CollectedAt: now, Metadata: meta},
			metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: m.Name, Kind: metricstore.MetricCostBlendedPerM, Value: 0, CollectedAt: now, Metadata: meta},
			metricstore.RawMetric{SourceTag: a.SourceTag(), ModelName: m.Name, Kind: metricstore.MetricEloRating, Value: heuristicElo(m.Name), CollectedAt: now, Metadata: meta},
		)
	}
	return out, nil
}

// heuristicElo estimates a quality rating from a model's parameter-size
// suffix (e.g. "llama3-70b" -> 70). Larger models score higher on a curve
// that flattens past ~70B, clamped to the normalizer's expected Elo range.
func heuristicElo(name string) float64 {
	params := 7.0 // assume a small model absent any size hint
	if match := localParamSize.FindStringSubmatch(strings.ToLower(name)); match != nil {
		if v, err := strconv.ParseFloat(match[1], 64); err == nil && v > 0 {
			params = v
		}
	}
	elo := 900 + 40*math.Log2(params)
	if elo < 800 {
		elo = 800
	}
	if elo > 1400 {
		elo = 1400
	}
	return elo
}
