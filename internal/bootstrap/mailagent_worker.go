package bootstrap

import (
	"context"
	"sync"
	"time"

	"mailagent_server/adapter/in/worker"

	"github.com/rs/zerolog"
)

const (
	// How often the runner scans the shared store for PENDING jobs enqueued
	// by another process (api-mode instances share no queue with us).
	recoveryPollInterval = 30 * time.Second

	// Upper bound per scan; a huge backlog drains across several ticks.
	recoveryBatch = 256
)

// Worker runs the categorization fleet over the shared queue plus a
// recovery loop that requeues PENDING jobs found in the shared store.
type Worker struct {
	workers []*worker.CategorizationWorker
	deps    *Dependencies
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// NewWorker builds the fleet on an existing dependency graph. WorkerCount
// loops share one queue; each loop finishes its in-flight job on shutdown.
func NewWorker(deps *Dependencies, log zerolog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("component", "worker_runner").Logger(),
	}

	count := deps.Config.WorkerCount
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		w.workers = append(w.workers, worker.NewCategorizationWorker(
			deps.Queue, deps.JobStore, deps.Engine, deps.Stats, log,
		))
	}
	return w
}

// Start launches the fleet and the recovery loop, then blocks until Stop.
func (w *Worker) Start() {
	for _, cw := range w.workers {
		cw.Start()
	}
	w.log.Info().Int("workers", len(w.workers)).Msg("worker fleet started")

	w.wg.Add(1)
	go w.recoveryLoop()

	<-w.ctx.Done()
}

// Stop shuts the fleet down. Queued items are drained before the loops
// exit, and the in-flight job always reaches a terminal status.
func (w *Worker) Stop() {
	w.cancel()

	for _, cw := range w.workers {
		cw.Stop()
	}
	for _, cw := range w.workers {
		cw.WaitForShutdown()
	}
	w.wg.Wait()
	w.log.Info().Msg("worker fleet stopped")
}

// QueueLength reports the current backlog.
func (w *Worker) QueueLength() int {
	return w.deps.Queue.Length()
}

func (w *Worker) recoveryLoop() {
	defer w.wg.Done()

	// Startup: everything still PENDING was stranded by the previous
	// process, requeue it all.
	w.requeuePending(0)

	ticker := time.NewTicker(recoveryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			// Steady state: a job PENDING for a full poll interval is not
			// in any live queue.
			w.requeuePending(recoveryPollInterval)
		}
	}
}

func (w *Worker) requeuePending(olderThan time.Duration) {
	ctx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	items, err := w.deps.JobStore.PendingJobs(ctx, olderThan, recoveryBatch)
	if err != nil {
		w.log.Warn().Err(err).Msg("pending job scan failed")
		return
	}
	for _, item := range items {
		w.deps.Queue.AddJob(item)
	}
	if len(items) > 0 {
		w.log.Info().Int("requeued", len(items)).Msg("pending jobs requeued")
	}
}
