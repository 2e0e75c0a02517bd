// Package cleanup runs persisted cleanup policies: candidate selection by
// policy criteria, a tracked cleanup job, and the batched mutation phase.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
	"mailagent_server/core/service/bulk"
	"mailagent_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service resolves cleanup candidates and delegates the mutation phase to
// the bulk mutator, recording the run as a cleanup job with a side table.
type Service struct {
	registry out.StoreRegistry
	policies out.PolicyStore
	jobs     out.JobStore
	mutator  *bulk.Mutator
	log      zerolog.Logger
}

var _ in.CleanupService = (*Service)(nil)

func NewService(registry out.StoreRegistry, policies out.PolicyStore, jobs out.JobStore, mutator *bulk.Mutator, log zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		policies: policies,
		jobs:     jobs,
		mutator:  mutator,
		log:      log.With().Str("component", "cleanup_service").Logger(),
	}
}

// =============================================================================
// Policy Runs
// =============================================================================

// RunPolicy selects candidates for the policy, records a cleanup job and
// runs the batched mutation phase. Candidate selection never exceeds the
// policy criteria; safety gates are applied by the mutator.
func (s *Service) RunPolicy(ctx context.Context, client out.RemoteMailClient, policy *domain.CleanupPolicy, opts *domain.CleanupOptions, userID string) (*domain.CleanupResult, error) {
	if policy == nil {
		return nil, apperr.MissingField("policy")
	}
	if userID == "" && policy.UserID != "" {
		userID = policy.UserID
	}
	if opts == nil {
		opts = &domain.CleanupOptions{}
	}

	store, err := s.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	candidates, err := store.GetEmailsForCleanup(ctx, policy, 0, userID)
	if err != nil {
		return nil, err
	}

	job, err := s.startJob(ctx, policy, opts, candidates, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.mutator.BatchDeleteForCleanup(ctx, client, candidates, policy, opts, userID)
	if err != nil {
		s.finishJob(ctx, job, nil, len(candidates), err)
		return nil, err
	}

	s.finishJob(ctx, job, result, len(candidates), nil)
	return result, nil
}

// startJob records the PENDING job row plus the cleanup side table and moves
// it to IN_PROGRESS before the mutation phase begins.
func (s *Service) startJob(ctx context.Context, policy *domain.CleanupPolicy, opts *domain.CleanupOptions, candidates []*domain.EmailIndex, userID string) (*domain.Job, error) {
	now := time.Now().UnixMilli()
	job := &domain.Job{
		JobID:   uuid.New().String(),
		JobType: domain.JobTypeCleanup,
		Status:  domain.JobPending,
		RequestParams: map[string]any{
			"policy_id":   policy.ID,
			"policy_name": policy.Name,
			"dry_run":     opts.DryRun,
		},
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    userID,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	totalBatches := 0
	if len(candidates) > 0 {
		totalBatches = (len(candidates) + batchSize - 1) / batchSize
	}
	details := &domain.CleanupJobDetails{
		JobID:        job.JobID,
		PolicyID:     policy.ID,
		TriggeredBy:  domain.TriggerUserRequest,
		Priority:     domain.JobPriorityNormal,
		BatchSize:    batchSize,
		TargetEmails: len(candidates),
		TotalBatches: totalBatches,
	}
	if err := s.jobs.CreateCleanupDetails(ctx, details); err != nil {
		return nil, err
	}

	if err := s.jobs.Transition(ctx, job.JobID, userID, domain.JobInProgress, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// finishJob persists counters and the terminal status. Bookkeeping failures
// are logged, not surfaced: the mutation result is already decided.
func (s *Service) finishJob(ctx context.Context, job *domain.Job, result *domain.CleanupResult, analyzed int, runErr error) {
	now := time.Now().UnixMilli()

	if runErr != nil {
		err := s.jobs.Transition(ctx, job.JobID, job.UserID, domain.JobFailed, &out.JobUpdate{
			CompletedAt:  now,
			ErrorDetails: runErr.Error(),
		})
		if err != nil {
			s.log.Warn().Err(err).Str("job_id", job.JobID).Msg("cleanup job not marked failed")
		}
		return
	}

	details, err := s.jobs.GetCleanupDetails(ctx, job.JobID)
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", job.JobID).Msg("cleanup details not loaded")
	} else {
		details.EmailsAnalyzed = analyzed
		details.EmailsCleaned = result.Deleted + result.Archived
		details.StorageFreed = result.StorageFreed
		details.ErrorsEncountered = len(result.Errors)
		details.CurrentBatch = details.TotalBatches
		if err := s.jobs.UpdateCleanupDetails(ctx, details); err != nil {
			s.log.Warn().Err(err).Str("job_id", job.JobID).Msg("cleanup details not updated")
		}
	}

	progress := 100
	err = s.jobs.Transition(ctx, job.JobID, job.UserID, domain.JobCompleted, &out.JobUpdate{
		CompletedAt: now,
		Progress:    &progress,
		Results: map[string]any{
			"deleted":       result.Deleted,
			"archived":      result.Archived,
			"failed":        result.Failed,
			"storage_freed": result.StorageFreed,
			"errors":        result.Errors,
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", job.JobID).Msg("cleanup job not marked completed")
	}
}

// =============================================================================
// Policy CRUD
// =============================================================================

// CreatePolicy validates and persists a policy.
func (s *Service) CreatePolicy(ctx context.Context, policy *domain.CleanupPolicy) (*domain.CleanupPolicy, error) {
	if policy == nil {
		return nil, apperr.MissingField("policy")
	}
	if policy.UserID == "" {
		return nil, apperr.UserIDMissing()
	}
	if policy.Name == "" {
		return nil, apperr.MissingField("name")
	}
	switch policy.Action.Type {
	case "":
		policy.Action.Type = domain.CleanupActionDelete
	case domain.CleanupActionDelete, domain.CleanupActionArchive:
	default:
		return nil, apperr.ValidationFailed(fmt.Sprintf("unknown cleanup action %q", policy.Action.Type))
	}

	created := *policy
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	now := time.Now().UnixMilli()
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := s.policies.CreatePolicy(ctx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetPolicy returns one of the user's policies.
func (s *Service) GetPolicy(ctx context.Context, id, userID string) (*domain.CleanupPolicy, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}
	return s.policies.GetPolicy(ctx, id, userID)
}

// ListPolicies returns the user's policies.
func (s *Service) ListPolicies(ctx context.Context, userID string) ([]*domain.CleanupPolicy, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}
	return s.policies.ListPolicies(ctx, userID)
}

// DeletePolicy removes one of the user's policies.
func (s *Service) DeletePolicy(ctx context.Context, id, userID string) error {
	if userID == "" {
		return apperr.UserIDMissing()
	}
	return s.policies.DeletePolicy(ctx, id, userID)
}

func (s *Service) storeFor(ctx context.Context, userID string) (out.EmailStore, error) {
	if userID == "" {
		return s.registry.Shared(ctx)
	}
	return s.registry.Get(ctx, userID)
}
