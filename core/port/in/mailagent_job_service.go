package in

import (
	"context"

	"mailagent_server/core/domain"
)

type JobService interface {
	// EnqueueCategorization records a PENDING job and pushes it onto the
	// queue. Enqueueing never blocks the caller.
	EnqueueCategorization(ctx context.Context, userID string, params map[string]any) (*domain.Job, error)

	GetJobStatus(ctx context.Context, jobID, userID string) (*domain.Job, error)
	ListJobs(ctx context.Context, userID string, status *domain.JobStatus, limit int) ([]*domain.Job, error)
	CancelJob(ctx context.Context, jobID, userID string) error
	CleanupOldJobs(ctx context.Context, maxAgeDays int, userID string) (int64, error)
}
