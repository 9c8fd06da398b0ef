// Package scheduler runs named, recurring jobs on their own interval over a
// bounded worker pool, with persistent run bookkeeping and missed-run
// coalescing. It generalizes the teacher's single-purpose job runners
// (health prober, budget reset/key rotation) into a registry any component
// can add a job to.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelgate/gateway/internal/resilience"
)

// Job is one named, recurring unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	// GracePeriod bounds how long after a missed tick a job still runs
	// once; ticks missed beyond it are coalesced into a single run instead
	// of a burst of catch-up runs.
	GracePeriod time.Duration
	Run         func(ctx context.Context) error
}

// Config bounds the scheduler's worker pool and default job timeout.
type Config struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{MaxConcurrentJobs: 4, JobTimeout: 5 * time.Minute}
}

// Scheduler owns the job registry and drives each job's ticker loop in its
// own goroutine, gated by a shared semaphore so at most MaxConcurrentJobs
// run at once regardless of how many jobs are registered.
type Scheduler struct {
	db     *sql.DB
	logger *slog.Logger
	cfg    Config
	sem    *resilience.Semaphore

	mu      sync.Mutex
	jobs    map[string]Job
	cancels map[string]context.CancelFunc
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		db:      db,
		logger:  logger,
		cfg:     cfg,
		sem:     resilience.NewSemaphore(cfg.MaxConcurrentJobs),
		jobs:    make(map[string]Job),
		cancels: make(map[string]context.CancelFunc),
	}
}

// EnsureSchema creates the job-run bookkeeping table if it doesn't exist.
// A single small table doesn't warrant the versioned-migration machinery
// internal/metricstore uses for its evolving schema.
func (s *Scheduler) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scheduler_job_runs (
			job_name     TEXT PRIMARY KEY,
			last_run_at  TIMESTAMPTZ,
			last_status  TEXT NOT NULL DEFAULT 'never_run',
			last_error   TEXT NOT NULL DEFAULT '',
			run_count    BIGINT NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("ensure scheduler schema: %w", err)
	}
	return nil
}

// AddJob registers job and starts its ticker loop immediately. Adding a job
// with a name already registered replaces it, stopping the old loop first.
func (s *Scheduler) AddJob(parent context.Context, job Job) {
	s.RemoveJob(job.Name)

	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.jobs[job.Name] = job
	s.cancels[job.Name] = cancel
	s.mu.Unlock()

	go s.runLoop(ctx, job)
}

// RemoveJob stops job's ticker loop and deregisters it. A no-op if unknown.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	cancel, ok := s.cancels[name]
	delete(s.cancels, name)
	delete(s.jobs, name)
	s.mu.Unlock()

	if ok {
		cancel()
	}
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// A single tick fired late (GC pause, slow prior run) still
			// means one run; ticks missed beyond GracePeriod are not
			// replayed, they just resume on the next natural tick.
			if job.GracePeriod > 0 && now.Sub(lastTick) > job.Interval+job.GracePeriod {
				s.logger.Warn("scheduler coalescing missed runs", "job", job.Name)
			}
			lastTick = now
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(parent context.Context, job Job) {
	if err := s.sem.Acquire(parent); err != nil {
		return // context cancelled while waiting for a worker slot
	}
	defer s.sem.Release()

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	err := job.Run(ctx)
	s.recordRun(context.Background(), job.Name, err)
	if err != nil {
		s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
	}
}

func (s *Scheduler) recordRun(ctx context.Context, name string, runErr error) {
	status := "ok"
	errMsg := ""
	if runErr != nil {
		status = "error"
		errMsg = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduler_job_runs (job_name, last_run_at, last_status, last_error, run_count)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (job_name) DO UPDATE
		 SET last_run_at = EXCLUDED.last_run_at, last_status = EXCLUDED.last_status,
		     last_error = EXCLUDED.last_error, run_count = scheduler_job_runs.run_count + 1`,
		name, time.Now(), status, errMsg,
	)
	if err != nil {
		s.logger.Error("failed to record job run", "job", name, "error", err)
	}
}

// JobRunStatus reports the last recorded run for a job.
type JobRunStatus struct {
	JobName    string
	LastRunAt  sql.NullTime
	LastStatus string
	LastError  string
	RunCount   int64
}

func (s *Scheduler) Status(ctx context.Context, name string) (JobRunStatus, error) {
	var st JobRunStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT job_name, last_run_at, last_status, last_error, run_count FROM scheduler_job_runs WHERE job_name = $1`,
		name,
	).Scan(&st.JobName, &st.LastRunAt, &st.LastStatus, &st.LastError, &st.RunCount)
	if err == sql.ErrNoRows {
		return JobRunStatus{JobName: name, LastStatus: "never_run"}, nil
	}
	if err != nil {
		return st, fmt.Errorf("load job status: %w", err)
	}
	return st, nil
}

// Stop cancels every registered job's loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, cancel := range s.cancels {
		cancel()
		delete(s.cancels, name)
		delete(s.jobs, name)
	}
}
