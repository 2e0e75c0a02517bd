// Package jobs fronts the durable job store and the in-memory queue: a job
// row is written first, then the queue item, so the worker never dequeues a
// job it cannot load.
package jobs

import (
	"context"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	store out.JobStore
	queue out.JobQueue
	log   zerolog.Logger
}

var _ in.JobService = (*Service)(nil)

func NewService(store out.JobStore, queue out.JobQueue, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		queue: queue,
		log:   log.With().Str("component", "job_service").Logger(),
	}
}

// EnqueueCategorization records a PENDING categorization job and hands it to
// the queue. The row exists before the queue item so a fast worker always
// finds it.
func (s *Service) EnqueueCategorization(ctx context.Context, userID string, params map[string]any) (*domain.Job, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}

	now := time.Now().UnixMilli()
	job := &domain.Job{
		JobID:         uuid.New().String(),
		JobType:       domain.JobTypeCategorization,
		Status:        domain.JobPending,
		RequestParams: params,
		CreatedAt:     now,
		UpdatedAt:     now,
		UserID:        userID,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.queue.AddJob(domain.QueueItem{JobID: job.JobID, UserID: userID})
	s.log.Info().
		Str("job_id", job.JobID).
		Str("user_id", userID).
		Int("queue_length", s.queue.Length()).
		Msg("categorization job enqueued")
	return job, nil
}

func (s *Service) GetJobStatus(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	if jobID == "" {
		return nil, apperr.MissingField("job_id")
	}
	return s.store.GetJob(ctx, jobID, userID)
}

func (s *Service) ListJobs(ctx context.Context, userID string, status *domain.JobStatus, limit int) ([]*domain.Job, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListJobs(ctx, userID, status, limit)
}

// CancelJob moves a PENDING or IN_PROGRESS job to CANCELLED. The worker
// checks the row before running, so a cancelled queue item is a no-op there.
func (s *Service) CancelJob(ctx context.Context, jobID, userID string) error {
	if jobID == "" {
		return apperr.MissingField("job_id")
	}
	return s.store.Transition(ctx, jobID, userID, domain.JobCancelled, nil)
}

func (s *Service) CleanupOldJobs(ctx context.Context, maxAgeDays int, userID string) (int64, error) {
	if maxAgeDays < 0 {
		return 0, apperr.ValidationFailed("max age must not be negative")
	}
	removed, err := s.store.CleanupOldJobs(ctx, maxAgeDays, userID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Str("user_id", userID).Msg("old jobs removed")
	}
	return removed, nil
}
