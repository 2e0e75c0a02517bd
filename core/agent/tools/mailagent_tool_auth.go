package tools

import (
	"context"
	"fmt"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
)

// base carries the collaborators every tool shares. Tools that touch user
// data call requireUser before anything else.
type base struct {
	auth in.AuthService
}

// requireUser validates the caller's context and returns the user id it is
// scoped to.
func (b *base) requireUser(ctx context.Context, uc *domain.UserContext) (string, error) {
	if err := b.auth.Validate(ctx, uc); err != nil {
		return "", err
	}
	return uc.UserID, nil
}

// remoteClient resolves the mail client bound to the caller's session.
func (b *base) remoteClient(ctx context.Context, uc *domain.UserContext) (out.RemoteMailClient, error) {
	if uc == nil {
		return nil, nil
	}
	return b.auth.GetRemoteClient(ctx, uc.SessionID)
}

// =============================================================================
// authenticate
// =============================================================================

// AuthenticateTool opens a session for a user. It is the only tool that does
// not validate a user context, because it is what creates one.
type AuthenticateTool struct {
	auth in.AuthService
}

func NewAuthenticateTool(auth in.AuthService) *AuthenticateTool {
	return &AuthenticateTool{auth: auth}
}

func (t *AuthenticateTool) Name() string           { return "authenticate" }
func (t *AuthenticateTool) Category() ToolCategory { return CategoryAuth }

func (t *AuthenticateTool) Description() string {
	return "Start a session for a user. Returns the session id and token used by every other tool."
}

func (t *AuthenticateTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "user_id", Type: "string", Description: "User to open the session for", Required: true},
	}
}

func (t *AuthenticateTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID := getStringArg(args, "user_id", "")

	session, err := t.auth.Authenticate(ctx, userID)
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data: map[string]any{
			"session_id": session.SessionID,
			"token":      session.Token,
			"state":      session.State,
			"expires_at": session.ExpiresAt,
		},
		Message: fmt.Sprintf("session created for %s", userID),
	}, nil
}

// =============================================================================
// poll_user_context
// =============================================================================

// PollUserContextTool reports the user context bound to a session,
// activating pending sessions on first poll.
type PollUserContextTool struct {
	auth in.AuthService
}

func NewPollUserContextTool(auth in.AuthService) *PollUserContextTool {
	return &PollUserContextTool{auth: auth}
}

func (t *PollUserContextTool) Name() string           { return "poll_user_context" }
func (t *PollUserContextTool) Category() ToolCategory { return CategoryAuth }

func (t *PollUserContextTool) Description() string {
	return "Check a session and return its user context. Activates a pending session."
}

func (t *PollUserContextTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "session_id", Type: "string", Description: "Session to poll", Required: true},
	}
}

func (t *PollUserContextTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	sessionID := getStringArg(args, "session_id", "")

	polled, err := t.auth.PollUserContext(ctx, sessionID)
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data: map[string]any{
			"user_id":    polled.UserID,
			"session_id": polled.SessionID,
		},
		Message: "session active",
	}, nil
}
