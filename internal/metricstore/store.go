package metricstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/modelgate/gateway/internal/resolver"
)

// Store is the persistence layer over canonical models, aliases, raw
// metrics, ingest bookkeeping, and the analytics event log.
type Store struct {
	db         *sql.DB
	resolveCfg resolver.Config
	invalidate func(canonicalID int64)
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, resolveCfg: resolver.Config{AutoLinkThreshold: 0.95, ReviewThreshold: 0.80}}
}

// OnInvalidate registers a callback fired once per canonical model touched
// by an ingest, so a read-projection cache can be cleared. Wired to
// internal/offlinecache in production; nil is a valid no-op default.
func (s *Store) OnInvalidate(fn func(canonicalID int64)) {
	s.invalidate = fn
}

func (s *Store) catalogSnapshot(ctx context.Context, tx *sql.Tx) ([]resolver.Candidate, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM canonical_models WHERE active = true`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var out []resolver.Candidate
	for rows.Next() {
		var c resolver.Candidate
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// resolveModel finds or creates the canonical model a source-specific name
// belongs to, following resolve -> upsert-if-low -> alias-insert.
// "Upsert-if-low" means a re-resolution of an existing alias only ever
// lowers its recorded confidence, never silently raises it on a lucky
// rematch.
func (s *Store) resolveModel(ctx context.Context, tx *sql.Tx, sourceTag, modelName string, catalog []resolver.Candidate) (int64, error) {
	decision := resolver.Resolve(modelName, catalog, s.resolveCfg)

	canonicalID := decision.CanonicalID
	confidence := decision.Score
	reviewed := decision.AutoLinked
	if decision.IsNewCanonical {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO canonical_models (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			modelName,
		).Scan(&canonicalID)
		if err != nil {
			return 0, fmt.Errorf("insert canonical model: %w", err)
		}
		confidence = 1.0
		reviewed = true
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO model_aliases (canonical_id, source_tag, alias_name, confidence, reviewed)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source_tag, alias_name) DO UPDATE
		 SET confidence = LEAST(model_aliases.confidence, EXCLUDED.confidence)`,
		canonicalID, sourceTag, modelName, confidence, reviewed,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert alias: %w", err)
	}

	return canonicalID, nil
}

// IngestBatch resolves every distinct model name in metrics against the
// live catalog, appends all metrics in one transaction, and records ingest
// status for sourceTag. Each touched canonical model fires the invalidate
// hook after commit.
func (s *Store) IngestBatch(ctx context.Context, sourceTag string, metrics []RawMetric) (IngestStatus, error) {
	now := time.Now()
	status := IngestStatus{SourceTag: sourceTag, LastAttempt: now}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return status, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	catalog, err := s.catalogSnapshot(ctx, tx)
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status, err
	}

	resolved := make(map[string]int64, len(metrics))
	touched := make(map[int64]bool)

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_metrics (source_tag, model_name, kind, value, collected_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return status, fmt.Errorf("prepare insert: %w", err)
	}
	defer insertStmt.Close()

	for _, m := range metrics {
		canonicalID, ok := resolved[m.ModelName]
		if !ok {
			canonicalID, err = s.resolveModel(ctx, tx, sourceTag, m.ModelName, catalog)
			if err != nil {
				status.Status = "error"
				status.Error = err.Error()
				return status, err
			}
			resolved[m.ModelName] = canonicalID
			catalog = append(catalog, resolver.Candidate{ID: canonicalID, Name: m.ModelName})
		}
		touched[canonicalID] = true

		var metaJSON []byte
		if len(m.Metadata) > 0 {
			metaJSON, err = json.Marshal(m.Metadata)
			if err != nil {
				return status, fmt.Errorf("marshal metadata: %w", err)
			}
		}

		collectedAt := m.CollectedAt
		if collectedAt.IsZero() {
			collectedAt = now
		}
		if _, err := insertStmt.ExecContext(ctx, sourceTag, m.ModelName, string(m.Kind), m.Value, collectedAt, metaJSON); err != nil {
			status.Status = "error"
			status.Error = err.Error()
			return status, fmt.Errorf("insert metric: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ingest_status (source_tag, last_attempt, last_success, status, error)
		 VALUES ($1, $2, $2, 'ok', '')
		 ON CONFLICT (source_tag) DO UPDATE
		 SET last_attempt = EXCLUDED.last_attempt, last_success = EXCLUDED.last_success, status = 'ok', error = ''`,
		sourceTag, now,
	); err != nil {
		return status, fmt.Errorf("update ingest status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return status, fmt.Errorf("commit: %w", err)
	}

	status.LastSuccess = now
	status.Status = "ok"

	if s.invalidate != nil {
		for id := range touched {
			s.invalidate(id)
		}
	}

	return status, nil
}

// RecordIngestFailure persists a failed fetch/parse attempt for sourceTag so
// ingest-status reporting reflects it without touching raw_metrics.
func (s *Store) RecordIngestFailure(ctx context.Context, sourceTag string, cause error) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_status (source_tag, last_attempt, status, error)
		 VALUES ($1, $2, 'error', $3)
		 ON CONFLICT (source_tag) DO UPDATE
		 SET last_attempt = EXCLUDED.last_attempt, status = 'error', error = EXCLUDED.error`,
		sourceTag, now, cause.Error(),
	)
	if err != nil {
		return fmt.Errorf("record ingest failure: %w", err)
	}
	return nil
}

var metricColumns = []struct {
	kind MetricKind
	set  func(*ModelMetricsView, float64)
}{
	{MetricEloRating, func(v *ModelMetricsView, x float64) { v.EloRating = &x }},
	{MetricBenchmarkAverage, func(v *ModelMetricsView, x float64) { v.BenchmarkAverage = &x }},
	{MetricLatencyP90, func(v *ModelMetricsView, x float64) { v.LatencyP90 = &x }},
	{MetricTTFTP90, func(v *ModelMetricsView, x float64) { v.TTFTP90 = &x }},
	{MetricCostPromptPerM, func(v *ModelMetricsView, x float64) { v.CostPromptPerM = &x }},
	{MetricCostCompletionPerM, func(v *ModelMetricsView, x float64) { v.CostCompletionPerM = &x }},
	{MetricCostBlendedPerM, func(v *ModelMetricsView, x float64) { v.CostBlendedPerM = &x }},
}

// BuildView regenerates the read projection for one canonical model: the
// most recent value per metric kind across every alias name ever seen for
// it, across every source.
func (s *Store) BuildView(ctx context.Context, canonicalID int64) (ModelMetricsView, error) {
	view := ModelMetricsView{CanonicalID: canonicalID}

	err := s.db.QueryRowContext(ctx,
		`SELECT name, context_length FROM canonical_models WHERE id = $1`, canonicalID,
	).Scan(&view.CanonicalName, &view.ContextLength)
	if err != nil {
		return view, fmt.Errorf("load canonical model %d: %w", canonicalID, err)
	}

	for _, col := range metricColumns {
		var value float64
		var ok bool
		switch col.kind {
		case MetricLatencyP90, MetricTTFTP90:
			value, ok, err = s.smoothedLatency(ctx, canonicalID, col.kind)
		default:
			value, ok, err = s.latestValue(ctx, canonicalID, col.kind)
		}
		if err != nil {
			return view, fmt.Errorf("load %s for model %d: %w", col.kind, canonicalID, err)
		}
		if !ok {
			continue
		}
		col.set(&view, value)
	}

	return view, nil
}

// latestValue returns the single most recent raw-metric value of kind
// across every alias the canonical model has ever been ingested under.
func (s *Store) latestValue(ctx context.Context, canonicalID int64, kind MetricKind) (float64, bool, error) {
	var value float64
	err := s.db.QueryRowContext(ctx,
		`SELECT rm.value
		 FROM raw_metrics rm
		 JOIN model_aliases ma ON ma.alias_name = rm.model_name AND ma.source_tag = rm.source_tag
		 WHERE ma.canonical_id = $1 AND rm.kind = $2
		 ORDER BY rm.collected_at DESC
		 LIMIT 1`,
		canonicalID, string(kind),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// smoothedLatency feeds the trailing latencyHistoryLimit samples of kind,
// oldest first, through an EWMA and returns the smoothed result. This
// absorbs single-run spikes in a latency percentile that a bare
// most-recent-value read would otherwise hand straight to the scorer.
func (s *Store) smoothedLatency(ctx context.Context, canonicalID int64, kind MetricKind) (float64, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rm.value FROM (
			SELECT rm.value, rm.collected_at
			FROM raw_metrics rm
			JOIN model_aliases ma ON ma.alias_name = rm.model_name AND ma.source_tag = rm.source_tag
			WHERE ma.canonical_id = $1 AND rm.kind = $2
			ORDER BY rm.collected_at DESC
			LIMIT $3
		) rm ORDER BY rm.collected_at ASC`,
		canonicalID, string(kind), latencyHistoryLimit,
	)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	avg := newEWMA(latencyEWMAAlpha)
	seen := false
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return 0, false, err
		}
		avg.add(v)
		seen = true
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if !seen {
		return 0, false, nil
	}
	return avg.value, true, nil
}

// AllViews rebuilds the read projection for every active canonical model.
func (s *Store) AllViews(ctx context.Context) ([]ModelMetricsView, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM canonical_models WHERE active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active models: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan model id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	views := make([]ModelMetricsView, 0, len(ids))
	for _, id := range ids {
		v, err := s.BuildView(ctx, id)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Prune deletes raw metrics older than retention, always keeping the most
// recent row per (source_tag, model_name, kind) regardless of age so a
// view can still be built from cold data. Idempotent: running it twice in
// a row deletes nothing the second time.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM raw_metrics
		 WHERE collected_at < $1
		 AND id NOT IN (
			 SELECT DISTINCT ON (source_tag, model_name, kind) id
			 FROM raw_metrics
			 ORDER BY source_tag, model_name, kind, collected_at DESC
		 )`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune raw metrics: %w", err)
	}
	return res.RowsAffected()
}

// IngestStatusFor reports the last recorded attempt/success for sourceTag.
func (s *Store) IngestStatusFor(ctx context.Context, sourceTag string) (IngestStatus, error) {
	var st IngestStatus
	var lastAttempt, lastSuccess sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT source_tag, last_attempt, last_success, status, error FROM ingest_status WHERE source_tag = $1`,
		sourceTag,
	).Scan(&st.SourceTag, &lastAttempt, &lastSuccess, &st.Status, &st.Error)
	if err == sql.ErrNoRows {
		return IngestStatus{SourceTag: sourceTag, Status: "unknown"}, nil
	}
	if err != nil {
		return st, fmt.Errorf("load ingest status: %w", err)
	}
	if lastAttempt.Valid {
		st.LastAttempt = lastAttempt.Time
	}
	if lastSuccess.Valid {
		st.LastSuccess = lastSuccess.Time
	}
	return st, nil
}
