package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/taxfolio/paysync/internal/config"
	"github.com/taxfolio/paysync/internal/models"
)

type mockJobSource struct {
	mu      sync.Mutex
	pending []models.SyncJob
	stuck   []models.SyncJob
}

func (m *mockJobSource) GetPendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := m.pending
	m.pending = nil
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *mockJobSource) GetStuckProcessingJobs(ctx context.Context, olderThan time.Duration, limit int) ([]models.SyncJob, error) {
	return m.stuck, nil
}

func (m *mockJobSource) add(jobs ...models.SyncJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, jobs...)
}

type mockEngine struct {
	mu    sync.Mutex
	ran   []string
	done  chan string
	block chan struct{}
}

func newMockEngine() *mockEngine {
	return &mockEngine{done: make(chan string, 16)}
}

func (m *mockEngine) RunJob(ctx context.Context, job models.SyncJob) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.ran = append(m.ran, job.ID)
	m.mu.Unlock()
	m.done <- job.ID
}

func (m *mockEngine) ranCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ran)
}

func testConfig() *config.Config {
	return &config.Config{
		PollInterval:      60,
		MaxConcurrentJobs: 2,
	}
}

func waitForJobs(t *testing.T, engine *mockEngine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-engine.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, n)
		}
	}
}

func TestStart_DispatchesLeftoverPendingJobs(t *testing.T) {
	source := &mockJobSource{}
	source.add(models.SyncJob{ID: "job-1"}, models.SyncJob{ID: "job-2"})
	engine := newMockEngine()

	r := New(testConfig(), source, engine)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()

	waitForJobs(t, engine, 2)

	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if engine.ranCount() != 2 {
		t.Errorf("expected 2 jobs run, got %d", engine.ranCount())
	}
}

func TestWake_TriggersDispatchBeforePollTick(t *testing.T) {
	source := &mockJobSource{}
	engine := newMockEngine()

	r := New(testConfig(), source, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Start(ctx) }()

	// Long poll interval: only the wake signal can get this job dispatched
	source.add(models.SyncJob{ID: "job-1"})
	r.Wake()

	waitForJobs(t, engine, 1)
}

func TestWake_NonBlocking(t *testing.T) {
	r := New(testConfig(), &mockJobSource{}, newMockEngine())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Wake()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wake blocked with no listener")
	}
}

func TestStart_WaitsForInFlightJobsOnShutdown(t *testing.T) {
	source := &mockJobSource{}
	source.add(models.SyncJob{ID: "job-1"})
	engine := newMockEngine()
	engine.block = make(chan struct{})

	r := New(testConfig(), source, engine)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()

	// Give the dispatcher time to hand the job to a worker
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-errCh:
		t.Fatal("runner returned while a job was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(engine.block)
	waitForJobs(t, engine, 1)

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not return after in-flight job finished")
	}
}

func TestDispatch_BoundedByConcurrencyLimit(t *testing.T) {
	source := &mockJobSource{}
	source.add(
		models.SyncJob{ID: "job-1"},
		models.SyncJob{ID: "job-2"},
		models.SyncJob{ID: "job-3"},
	)
	engine := newMockEngine()

	r := New(testConfig(), source, engine)

	ctx := context.Background()
	r.dispatchPendingJobs(ctx)

	// MaxConcurrentJobs caps each dispatch batch
	waitForJobs(t, engine, 2)
	r.wg.Wait()
	if engine.ranCount() != 2 {
		t.Errorf("expected batch capped at 2 jobs, got %d", engine.ranCount())
	}
}
