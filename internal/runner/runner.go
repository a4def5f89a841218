package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/taxfolio/paysync/internal/config"
	"github.com/taxfolio/paysync/internal/models"
)

// StuckJobAge is how long a processing job must be untouched before it is
// reported as stuck. Stuck jobs are never resumed; a new job supersedes them.
const StuckJobAge = 30 * time.Minute

// JobSource reads dispatchable job rows. Implemented by
// repository.SyncJobRepository.
type JobSource interface {
	GetPendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error)
	GetStuckProcessingJobs(ctx context.Context, olderThan time.Duration, limit int) ([]models.SyncJob, error)
}

// Engine executes one job to completion or failure.
type Engine interface {
	RunJob(ctx context.Context, job models.SyncJob)
}

// Runner dispatches pending sync jobs onto a bounded worker pool. It picks up
// jobs left pending by previous runs at startup, then on every poll tick or
// wake signal.
type Runner struct {
	cfg     *config.Config
	jobRepo JobSource
	engine  Engine
	wake    chan struct{}
	slots   chan struct{}
	wg      sync.WaitGroup
}

func New(cfg *config.Config, jobRepo JobSource, engine Engine) *Runner {
	return &Runner{
		cfg:     cfg,
		jobRepo: jobRepo,
		engine:  engine,
		wake:    make(chan struct{}, 1),
		slots:   make(chan struct{}, cfg.MaxConcurrentJobs),
	}
}

// Wake nudges the runner to look for pending jobs now instead of waiting for
// the next poll tick. Non-blocking.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start runs the dispatch loop until the context is cancelled, then waits for
// in-flight jobs to finish.
func (r *Runner) Start(ctx context.Context) error {
	log.Println("Starting sync job runner...")

	r.reportStuckJobs(ctx)

	// Dispatch jobs left over from previous runs
	r.dispatchPendingJobs(ctx)

	ticker := time.NewTicker(time.Duration(r.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Runner shutting down, waiting for in-flight jobs...")
			r.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			r.dispatchPendingJobs(ctx)
		case <-r.wake:
			r.dispatchPendingJobs(ctx)
		}
	}
}

// dispatchPendingJobs hands each pending job to a worker slot. The engine's
// pending-to-processing guard makes a duplicate dispatch a harmless no-op.
func (r *Runner) dispatchPendingJobs(ctx context.Context) {
	jobs, err := r.jobRepo.GetPendingJobs(ctx, r.cfg.MaxConcurrentJobs)
	if err != nil {
		log.Printf("Error querying pending jobs: %v", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	log.Printf("Found %d pending sync job(s)", len(jobs))

	for _, job := range jobs {
		select {
		case r.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		job := job
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer func() { <-r.slots }()
			r.engine.RunJob(ctx, job)
		}()
	}
}

// reportStuckJobs logs jobs abandoned in processing state by a crash. They
// stay as-is until superseded by a new job.
func (r *Runner) reportStuckJobs(ctx context.Context) {
	stuck, err := r.jobRepo.GetStuckProcessingJobs(ctx, StuckJobAge, 20)
	if err != nil {
		log.Printf("Warning: failed to query stuck jobs: %v", err)
		return
	}
	for _, job := range stuck {
		log.Printf("Warning: job %s (connection %s) is stuck in processing since %s; start a new sync to supersede it",
			job.ID, job.ConnectionID, job.UpdatedAt.Format(time.RFC3339))
	}
}
