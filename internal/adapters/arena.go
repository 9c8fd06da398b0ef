package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/modelgate/gateway/internal/metricstore"
)

// arenaEntry mirrors one row of an arena-style pairwise-comparison leaderboard:
// an Elo rating plus an optional confidence interval half-width.
type arenaEntry struct {
	Model   string  `json:"model"`
	Elo     float64 `json:"elo"`
	CIWidth float64 `json:"ci_width,omitempty"`
}

// ArenaAdapter yields elo_rating and, when a confidence interval is present,
// elo_uncertainty = ci_width / elo.
type ArenaAdapter struct {
	url    string
	client *http.Client
	retry  RetryConfig
}

func NewArenaAdapter(url string) *ArenaAdapter {
	return &ArenaAdapter{url: url, client: NewHTTPClient(15 * time.Second), retry: DefaultRetryConfig()}
}

func (a *ArenaAdapter) SourceTag() string           { return "arena_quality" }
func (a *ArenaAdapter) SyncInterval() time.Duration { return 6 * time.Hour }

func (a *ArenaAdapter) Fetch(ctx context.Context) ([]byte, error) {
	return FetchJSON(ctx, a.client, a.url, a.SourceTag(), a.retry)
}

func (a *ArenaAdapter) Validate(raw []byte) bool {
	return json.Valid(raw)
}

func (a *ArenaAdapter) Parse(raw []byte) ([]metricstore.RawMetric, error) {
	var entries []arenaEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	now := time.Now()
	var out []metricstore.RawMetric
	for _, e := range entries {
		if e.Model == "" || e.Elo <= 0 {
			continue
		}
		out = append(out, metricstore.RawMetric{
			SourceTag: a.SourceTag(), ModelName: e.Model,
			Kind: metricstore.MetricEloRating, Value: e.Elo, CollectedAt: now,
		})
		if e.CIWidth > 0 {
			out = append(out, metricstore.RawMetric{
				SourceTag: a.SourceTag(), ModelName: e.Model,
				Kind: metricstore.MetricEloUncertainty, Value: e.CIWidth / e.Elo, CollectedAt: now,
			})
		}
	}
	return out, nil
}
