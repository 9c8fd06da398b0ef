package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/modelgate/gateway/internal/metricstore"
	"github.com/modelgate/gateway/internal/scheduler"
)

func setupSchedulerIfAvailable(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Logf("docker setup failed (panic recovered): %v", r)
		}
	}()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env:          map[string]string{"POSTGRES_PASSWORD": "test", "POSTGRES_DB": "modelgate"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Logf("failed to start postgres container: %v", err)
		return nil
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		return nil
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil
	}

	cfg := metricstore.DefaultConfig()
	cfg.Host = host
	cfg.Port = port.Int()
	cfg.User = "postgres"
	cfg.Password = "test"

	db, err := metricstore.Open(cfg)
	if err != nil {
		t.Logf("failed to open/migrate store: %v", err)
		return nil
	}
	t.Cleanup(func() { _ = db.Close() })

	s := scheduler.New(db, scheduler.Config{MaxConcurrentJobs: 2, JobTimeout: time.Second}, nil)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestAddJobRunsAndRecordsStatus(t *testing.T) {
	s := setupSchedulerIfAvailable(t)
	if s == nil {
		t.Skip("no container runtime available")
	}
	defer s.Stop()

	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.AddJob(ctx, scheduler.Job{
		Name:     "test-job",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	status, err := s.Status(context.Background(), "test-job")
	require.NoError(t, err)
	require.Equal(t, "ok", status.LastStatus)
	require.GreaterOrEqual(t, status.RunCount, int64(2))
}

func TestRemoveJobStopsFurtherRuns(t *testing.T) {
	s := setupSchedulerIfAvailable(t)
	if s == nil {
		t.Skip("no container runtime available")
	}
	defer s.Stop()

	var runs int32
	ctx := context.Background()
	s.AddJob(ctx, scheduler.Job{
		Name:     "removable",
		Interval: 15 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, 10*time.Millisecond)
	s.RemoveJob("removable")
	observed := atomic.LoadInt32(&runs)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, observed, atomic.LoadInt32(&runs), "expected no further runs after RemoveJob")
}

func TestStatusForUnknownJobReportsNeverRun(t *testing.T) {
	s := setupSchedulerIfAvailable(t)
	if s == nil {
		t.Skip("no container runtime available")
	}
	st, err := s.Status(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.Equal(t, "never_run", st.LastStatus)
}
