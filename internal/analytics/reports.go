package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OverallSummary aggregates spend, request count, and fallback rate across
// a trailing window.
type OverallSummary struct {
	TotalRequests int64
	TotalCost     float64
	AvgLatencyMs  float64
	FallbackRate  float64
	DegradedRate  float64
}

// Summary computes OverallSummary across all requests in the trailing
// duration. It flushes the in-memory buffer first so a request that just
// completed is reflected immediately rather than waiting for the next
// scheduled flush.
func (c *Collector) Summary(ctx context.Context, since time.Time) (OverallSummary, error) {
	if _, err := c.Flush(ctx); err != nil {
		return OverallSummary{}, fmt.Errorf("flush before summary: %w", err)
	}

	var s OverallSummary
	var cost, avgLatency sql.NullFloat64
	var fallbackCount, degradedCount sql.NullInt64

	err := c.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(cost), 0),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(SUM(CASE WHEN was_fallback THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN degraded THEN 1 ELSE 0 END), 0)
		 FROM analytics_events WHERE occurred_at >= $1`,
		since,
	).Scan(&s.TotalRequests, &cost, &avgLatency, &fallbackCount, &degradedCount)
	if err != nil {
		return s, fmt.Errorf("summary query: %w", err)
	}

	s.TotalCost = cost.Float64
	s.AvgLatencyMs = avgLatency.Float64
	if s.TotalRequests > 0 {
		s.FallbackRate = float64(fallbackCount.Int64) / float64(s.TotalRequests)
		s.DegradedRate = float64(degradedCount.Int64) / float64(s.TotalRequests)
	}
	return s, nil
}

// UsagePoint is one bucket of a usage timeseries.
type UsagePoint struct {
	BucketStart time.Time
	Requests    int64
	Cost        float64
}

// UsageTimeseries buckets request count and cost into fixed-width windows
// between since and now. It flushes the buffer first, per Summary.
func (c *Collector) UsageTimeseries(ctx context.Context, since time.Time, bucket time.Duration) ([]UsagePoint, error) {
	if _, err := c.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush before usage timeseries: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT
			to_timestamp(floor(extract(epoch from occurred_at) / $2) * $2) AS bucket_start,
			COUNT(*),
			COALESCE(SUM(cost), 0)
		 FROM analytics_events
		 WHERE occurred_at >= $1
		 GROUP BY bucket_start
		 ORDER BY bucket_start`,
		since, bucket.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("usage timeseries query: %w", err)
	}
	defer rows.Close()

	var out []UsagePoint
	for rows.Next() {
		var p UsagePoint
		if err := rows.Scan(&p.BucketStart, &p.Requests, &p.Cost); err != nil {
			return nil, fmt.Errorf("scan usage point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ModelBreakdownRow is one canonical model's share of traffic over a window.
type ModelBreakdownRow struct {
	CanonicalID int64
	Requests    int64
	Cost        float64
	AvgLatency  float64
}

// ModelBreakdown reports per-model request/cost/latency totals over a
// trailing window, descending by request count. It flushes the buffer
// first, per Summary.
func (c *Collector) ModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdownRow, error) {
	if _, err := c.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush before model breakdown: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT canonical_id, COUNT(*), COALESCE(SUM(cost), 0), COALESCE(AVG(latency_ms), 0)
		 FROM analytics_events
		 WHERE occurred_at >= $1 AND canonical_id IS NOT NULL
		 GROUP BY canonical_id
		 ORDER BY COUNT(*) DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("model breakdown query: %w", err)
	}
	defer rows.Close()

	var out []ModelBreakdownRow
	for rows.Next() {
		var r ModelBreakdownRow
		if err := rows.Scan(&r.CanonicalID, &r.Requests, &r.Cost, &r.AvgLatency); err != nil {
			return nil, fmt.Errorf("scan breakdown row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
