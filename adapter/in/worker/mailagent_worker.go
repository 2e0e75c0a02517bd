// Package worker drives the background categorization loop: dequeue, load
// the job row, run the engine, persist the terminal status.
package worker

import (
	"context"
	"sync"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/core/service/categorize"
	"mailagent_server/pkg/metrics"

	"github.com/rs/zerolog"
)

// CategorizationWorker is one cooperative drain loop over the shared queue.
// An in-flight job always finishes; shutdown is observed at the next
// dequeue.
type CategorizationWorker struct {
	queue  out.JobQueue
	jobs   out.JobStore
	engine *categorize.Engine
	stats  *metrics.WorkerStats
	log    zerolog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

func NewCategorizationWorker(queue out.JobQueue, jobs out.JobStore, engine *categorize.Engine, stats *metrics.WorkerStats, log zerolog.Logger) *CategorizationWorker {
	if stats == nil {
		stats = metrics.NewWorkerStats()
	}
	return &CategorizationWorker{
		queue:  queue,
		jobs:   jobs,
		engine: engine,
		stats:  stats,
		log:    log.With().Str("component", "categorization_worker").Logger(),
		done:   make(chan struct{}),
	}
}

// Start launches the drain loop.
func (w *CategorizationWorker) Start() {
	go w.run()
}

// Stop signals shutdown through the queue. In-flight work keeps running.
func (w *CategorizationWorker) Stop() {
	w.stopOnce.Do(func() {
		w.queue.Stop()
	})
}

// WaitForShutdown blocks until the loop has exited, which happens only
// after the current job's terminal status is persisted.
func (w *CategorizationWorker) WaitForShutdown() {
	<-w.done
}

// Stats exposes the worker counters for the health surface.
func (w *CategorizationWorker) Stats() *metrics.WorkerStats {
	return w.stats
}

func (w *CategorizationWorker) run() {
	defer close(w.done)
	w.log.Info().Msg("worker started")

	for {
		item, ok := w.queue.Dequeue()
		if !ok {
			w.log.Info().Msg("worker stopped")
			return
		}
		w.process(item)
	}
}

// process runs one job to a terminal status. Jobs are never cancelled from
// here; a context deadline would break the no-kill shutdown contract.
func (w *CategorizationWorker) process(item domain.QueueItem) {
	ctx := context.Background()
	start := time.Now()

	job, err := w.jobs.GetJob(ctx, item.JobID, item.UserID)
	if err != nil {
		// Queue items can outlive their rows (cleanupOldJobs, manual delete).
		w.log.Warn().Err(err).Str("job_id", item.JobID).Msg("queued job has no row")
		return
	}
	if job.Status != domain.JobPending {
		w.stats.JobCancelled()
		w.log.Debug().
			Str("job_id", job.JobID).
			Str("status", string(job.Status)).
			Msg("skipping job not in PENDING")
		return
	}

	if err := w.jobs.Transition(ctx, job.JobID, job.UserID, domain.JobInProgress, nil); err != nil {
		// Lost the CAS, most likely to a cancel between load and start.
		w.stats.JobCancelled()
		w.log.Debug().Err(err).Str("job_id", job.JobID).Msg("job no longer startable")
		return
	}

	opts := optionsFromParams(job.RequestParams, job.UserID)
	result, err := w.engine.CategorizeEmails(ctx, opts)
	if err != nil {
		w.finishFailed(ctx, job, err)
		w.stats.JobFailed(time.Since(start))
		return
	}

	w.finishCompleted(ctx, job, result)
	w.stats.JobCompleted(time.Since(start), result.Processed)
}

func (w *CategorizationWorker) finishCompleted(ctx context.Context, job *domain.Job, result *domain.CategorizationResult) {
	results := map[string]any{
		"processed": result.Processed,
		"categories": map[string]any{
			"high":   result.Categories.High,
			"medium": result.Categories.Medium,
			"low":    result.Categories.Low,
		},
	}
	if result.Insights != nil {
		results["insights"] = result.Insights
	}

	progress := 100
	err := w.jobs.Transition(ctx, job.JobID, job.UserID, domain.JobCompleted, &out.JobUpdate{
		CompletedAt: time.Now().UnixMilli(),
		Progress:    &progress,
		Results:     results,
	})
	if err != nil {
		w.log.Error().Err(err).Str("job_id", job.JobID).Msg("completed job not persisted")
		return
	}
	w.log.Info().
		Str("job_id", job.JobID).
		Str("user_id", job.UserID).
		Int("processed", result.Processed).
		Msg("categorization job completed")
}

func (w *CategorizationWorker) finishFailed(ctx context.Context, job *domain.Job, runErr error) {
	err := w.jobs.Transition(ctx, job.JobID, job.UserID, domain.JobFailed, &out.JobUpdate{
		CompletedAt:  time.Now().UnixMilli(),
		ErrorDetails: runErr.Error(),
	})
	if err != nil {
		w.log.Error().Err(err).Str("job_id", job.JobID).Msg("failed job not persisted")
		return
	}
	w.log.Warn().
		Str("job_id", job.JobID).
		Str("user_id", job.UserID).
		Err(runErr).
		Msg("categorization job failed")
}

// optionsFromParams decodes the loosely-typed request params. Numbers arrive
// as float64 after a JSON round-trip and as native ints when enqueued
// in-process.
func optionsFromParams(params map[string]any, userID string) *domain.CategorizationOptions {
	opts := &domain.CategorizationOptions{UserID: userID}
	if params == nil {
		return opts
	}
	if v, ok := params["force_refresh"].(bool); ok {
		opts.ForceRefresh = v
	}
	switch y := params["year"].(type) {
	case float64:
		year := int(y)
		opts.Year = &year
	case int:
		year := y
		opts.Year = &year
	case int64:
		year := int(y)
		opts.Year = &year
	}
	return opts
}
