package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// RoutingEvent is one completed routing decision: the model selected, its
// cost and latency, and whether admission had to degrade or fall back.
type RoutingEvent struct {
	CanonicalID int64
	RequestKey  string
	ProfileName string
	Cost        float64
	LatencyMs   float64
	WasFallback bool
	Degraded    bool
	OccurredAt  time.Time
}

// Collector buffers routing events in memory and flushes them to Postgres
// in one transaction at a time, capped so a stalled database never grows
// memory unbounded; once full, new events are dropped and counted.
type Collector struct {
	db       *sql.DB
	mu       sync.Mutex
	buf      []RoutingEvent
	capacity int
}

func NewCollector(db *sql.DB, capacity int) *Collector {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &Collector{db: db, capacity: capacity}
}

// Record buffers event and increments the Prometheus counters immediately;
// the SQL side is eventually consistent via Flush.
func (c *Collector) Record(event RoutingEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	degraded := "false"
	if event.Degraded {
		degraded = "true"
	}
	model := strconv.FormatInt(event.CanonicalID, 10)
	RoutingDecisions.WithLabelValues(event.ProfileName, model, degraded).Inc()
	RoutingCost.WithLabelValues(event.ProfileName, model).Add(event.Cost)
	RoutingLatency.WithLabelValues(event.ProfileName).Observe(event.LatencyMs / 1000)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.capacity {
		BufferDroppedEvents.Inc()
		return
	}
	c.buf = append(c.buf, event)
}

// Flush takes every buffered event out of the buffer and writes them to
// analytics_events in one transaction; on any failure the batch is requeued
// at the front of the buffer.
func (c *Collector) Flush(ctx context.Context) (int, error) {
	c.mu.Lock()
	pending := c.buf
	c.buf = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		c.requeue(pending)
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO analytics_events
		 (canonical_id, request_key, profile_name, cost, latency_ms, was_fallback, degraded, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		c.requeue(pending)
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range pending {
		var canonicalID any
		if e.CanonicalID != 0 {
			canonicalID = e.CanonicalID
		}
		if _, err := stmt.ExecContext(ctx, canonicalID, e.RequestKey, e.ProfileName, e.Cost, e.LatencyMs, e.WasFallback, e.Degraded, e.OccurredAt); err != nil {
			c.requeue(pending)
			return 0, fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		c.requeue(pending)
		return 0, fmt.Errorf("commit: %w", err)
	}

	return len(pending), nil
}

// requeue puts events back at the front of the buffer after a failed
// flush, up to capacity; anything past capacity is dropped and counted.
func (c *Collector) requeue(events []RoutingEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := append(events, c.buf...)
	if len(merged) > c.capacity {
		BufferDroppedEvents.Add(float64(len(merged) - c.capacity))
		merged = merged[:c.capacity]
	}
	c.buf = merged
}

// RunPeriodicFlush flushes on every tick until ctx is cancelled, logging
// nothing itself — callers wire in their own structured logger around the
// returned error, matching the scheduler's job-runner style.
func (c *Collector) RunPeriodicFlush(ctx context.Context, interval time.Duration, onFlush func(n int, err error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Flush(context.Background())
			return
		case <-ticker.C:
			n, err := c.Flush(ctx)
			if onFlush != nil {
				onFlush(n, err)
			}
		}
	}
}

// SpendSince implements budget.SpendSource: total cost recorded against key
// since the given time. Only flushed events are counted, so spend figures
// trail Record by up to one flush interval.
func (c *Collector) SpendSince(ctx context.Context, key string, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := c.db.QueryRowContext(ctx,
		`SELECT SUM(cost) FROM analytics_events WHERE request_key = $1 AND occurred_at >= $2`,
		key, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum spend: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}
