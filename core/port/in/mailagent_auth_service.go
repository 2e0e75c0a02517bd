package in

import (
	"context"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
)

type AuthService interface {
	// Session lifecycle
	Authenticate(ctx context.Context, userID string) (*domain.UserSession, error)
	PollUserContext(ctx context.Context, sessionID string) (*domain.UserContext, error)
	Logout(ctx context.Context, sessionID string) error

	// Request validation. Validate returns a typed error naming the first
	// failed check; a nil error means the context is safe to act on.
	Validate(ctx context.Context, userCtx *domain.UserContext) error

	// GetRemoteClient returns the provider client bound to the session.
	GetRemoteClient(ctx context.Context, sessionID string) (out.RemoteMailClient, error)
}
