package in

import (
	"context"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
)

// BulkService mutates many emails at once, remote first and local second.
// The remote client is session scoped, so callers resolve it through
// AuthService and pass it per call.
type BulkService interface {
	DeleteEmails(ctx context.Context, client out.RemoteMailClient, opts *domain.DeleteOptions, userID string) (*domain.DeleteResult, error)
	RestoreEmails(ctx context.Context, client out.RemoteMailClient, opts *domain.RestoreOptions, userID string) (*domain.RestoreResult, error)
	ArchiveEmails(ctx context.Context, client out.RemoteMailClient, opts *domain.ArchiveOptions, userID string) (*domain.ArchiveResult, error)

	// Archive rules
	CreateArchiveRule(ctx context.Context, rule *domain.ArchiveRule) (*domain.ArchiveRule, error)
	ListArchiveRules(ctx context.Context, userID string) ([]*domain.ArchiveRule, error)
}
