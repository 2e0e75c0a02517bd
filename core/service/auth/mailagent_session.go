// Package auth implements session issuance and user context validation.
package auth

import (
	"context"
	"sync"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ClientFactory binds a stored OAuth token to a remote mail client.
type ClientFactory func(token *oauth2.Token) out.RemoteMailClient

// SessionConfig holds token signing parameters.
type SessionConfig struct {
	JWTSecret      string
	SessionTimeout time.Duration
}

// session pairs the public session record with the remote credential.
type session struct {
	domain.UserSession
	remoteToken *oauth2.Token
}

// SessionService issues sessions, validates user contexts and resolves
// remote mail clients. Sessions live in memory; a restart invalidates them.
type SessionService struct {
	cfg     SessionConfig
	factory ClientFactory
	acl     out.FileACL
	log     zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

var (
	_ in.AuthService       = (*SessionService)(nil)
	_ out.SessionValidator = (*SessionService)(nil)
)

// NewSessionService creates a session service. factory may be nil when no
// mail provider is configured; GetRemoteClient then fails for every session.
func NewSessionService(cfg SessionConfig, factory ClientFactory, acl out.FileACL, log zerolog.Logger) *SessionService {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 24 * time.Hour
	}
	return &SessionService{
		cfg:      cfg,
		factory:  factory,
		acl:      acl,
		log:      log.With().Str("component", "session_service").Logger(),
		sessions: make(map[string]*session),
	}
}

// =============================================================================
// Session Lifecycle
// =============================================================================

// Authenticate creates a pending session for the user and issues its token.
// The session becomes active on the first PollUserContext call.
func (s *SessionService) Authenticate(ctx context.Context, userID string) (*domain.UserSession, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}

	now := time.Now()
	sessionID := uuid.New().String()
	expiresAt := now.Add(s.cfg.SessionTimeout)

	claims := jwt.MapClaims{
		"sub": userID,
		"jti": sessionID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	sess := &session{
		UserSession: domain.UserSession{
			SessionID:  sessionID,
			UserID:     userID,
			Token:      signed,
			State:      domain.SessionStatePending,
			CreatedAt:  now.UnixMilli(),
			ExpiresAt:  expiresAt.UnixMilli(),
			LastSeenAt: now.UnixMilli(),
		},
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	s.audit(ctx, userID, sessionID, domain.AuditLogin)
	s.log.Info().Str("user_id", userID).Str("session_id", sessionID).Msg("session created")

	public := sess.UserSession
	return &public, nil
}

// PollUserContext reports the session's user context, activating a pending
// session on its first poll.
func (s *SessionService) PollUserContext(ctx context.Context, sessionID string) (*domain.UserContext, error) {
	if sessionID == "" {
		return nil, apperr.SessionIDMissing()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(sessionID)
	if err != nil {
		return nil, err
	}

	if sess.State == domain.SessionStatePending {
		sess.State = domain.SessionStateActive
	}
	sess.LastSeenAt = time.Now().UnixMilli()

	return &domain.UserContext{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
	}, nil
}

// Logout revokes the session.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperr.SessionIDMissing()
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return apperr.SessionInvalid("unknown session")
	}
	sess.State = domain.SessionStateRevoked
	userID := sess.UserID
	s.mu.Unlock()

	s.audit(ctx, userID, sessionID, domain.AuditLogout)
	s.log.Info().Str("user_id", userID).Str("session_id", sessionID).Msg("session revoked")
	return nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks a user context against the session table. Error kinds are
// reported in a fixed order: missing user id, missing session id, invalid
// session, then user mismatch.
func (s *SessionService) Validate(ctx context.Context, uc *domain.UserContext) error {
	if uc == nil || uc.UserID == "" {
		return apperr.UserIDMissing()
	}
	if uc.SessionID == "" {
		return apperr.SessionIDMissing()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(uc.SessionID)
	if err != nil {
		return err
	}
	if sess.State != domain.SessionStateActive {
		return apperr.SessionInvalid("session not activated")
	}
	if sess.UserID != uc.UserID {
		return apperr.UserMismatch(sess.UserID, uc.UserID)
	}

	sess.LastSeenAt = time.Now().UnixMilli()
	return nil
}

// GetRemoteClient resolves the mail client bound to the session's credential.
func (s *SessionService) GetRemoteClient(ctx context.Context, sessionID string) (out.RemoteMailClient, error) {
	if sessionID == "" {
		return nil, apperr.SessionIDMissing()
	}

	s.mu.RLock()
	sess, err := s.lookupLocked(sessionID)
	var token *oauth2.Token
	if err == nil {
		token = sess.remoteToken
	}
	s.mu.RUnlock()

	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, apperr.RemotePermanent("No mail credential attached to session", nil)
	}
	if s.factory == nil {
		return nil, apperr.ConfigError("mail provider not configured")
	}
	return s.factory(token), nil
}

// AttachRemoteToken stores the OAuth credential for the session and activates
// it, completing the provider handshake.
func (s *SessionService) AttachRemoteToken(sessionID string, token *oauth2.Token) error {
	if sessionID == "" {
		return apperr.SessionIDMissing()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(sessionID)
	if err != nil {
		return err
	}
	sess.remoteToken = token
	if sess.State == domain.SessionStatePending {
		sess.State = domain.SessionStateActive
	}
	return nil
}

// ActiveSessions counts sessions that are neither revoked nor expired.
func (s *SessionService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UnixMilli()
	count := 0
	for _, sess := range s.sessions {
		if sess.State != domain.SessionStateRevoked && !sess.Expired(now) {
			count++
		}
	}
	return count
}

// PruneExpired drops expired and revoked sessions from the table.
func (s *SessionService) PruneExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	pruned := 0
	for id, sess := range s.sessions {
		if sess.State == domain.SessionStateRevoked || sess.Expired(now) {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned
}

// =============================================================================
// Internal
// =============================================================================

// lookupLocked resolves a session id to a live session. Caller holds s.mu.
func (s *SessionService) lookupLocked(sessionID string) (*session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperr.SessionInvalid("unknown session")
	}
	if sess.State == domain.SessionStateRevoked {
		return nil, apperr.SessionInvalid("session revoked")
	}
	if sess.Expired(time.Now().UnixMilli()) {
		return nil, apperr.SessionInvalid("session expired")
	}
	return sess, nil
}

func (s *SessionService) audit(ctx context.Context, userID, sessionID string, action domain.AuditAction) {
	if s.acl == nil {
		return
	}
	s.acl.AuditLog(ctx, &domain.AuditLogEntry{
		ID:           uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: domain.ResourceUserSession,
		ResourceID:   sessionID,
		Success:      true,
		SessionID:    sessionID,
		Timestamp:    time.Now().UnixMilli(),
	})
}
