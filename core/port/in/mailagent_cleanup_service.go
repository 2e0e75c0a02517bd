package in

import (
	"context"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
)

type CleanupService interface {
	// RunPolicy selects cleanup candidates for the policy and deletes or
	// archives them in batches. opts controls dry-run and failure budget.
	RunPolicy(ctx context.Context, client out.RemoteMailClient, policy *domain.CleanupPolicy, opts *domain.CleanupOptions, userID string) (*domain.CleanupResult, error)

	// Policy management
	CreatePolicy(ctx context.Context, policy *domain.CleanupPolicy) (*domain.CleanupPolicy, error)
	GetPolicy(ctx context.Context, id, userID string) (*domain.CleanupPolicy, error)
	ListPolicies(ctx context.Context, userID string) ([]*domain.CleanupPolicy, error)
	DeletePolicy(ctx context.Context, id, userID string) error
}
