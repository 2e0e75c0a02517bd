package auth

import (
	"context"
	"testing"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// fakeACL records audit entries and stubs the rest of the interface.
type fakeACL struct {
	entries []*domain.AuditLogEntry
}

func (f *fakeACL) CreateFileMetadata(ctx context.Context, req *domain.CreateFileRequest) (*domain.FileMetadata, error) {
	return nil, nil
}

func (f *fakeACL) CheckFileAccess(ctx context.Context, req *domain.FileAccessRequest) (*domain.FileAccessResult, error) {
	return nil, nil
}

func (f *fakeACL) GrantPermission(ctx context.Context, fileID, granteeID, grantedBy string, permission domain.PermissionType, expiresAt int64) error {
	return nil
}

func (f *fakeACL) RevokePermission(ctx context.Context, fileID, granteeID string, permission domain.PermissionType) error {
	return nil
}

func (f *fakeACL) CleanupExpiredFiles(ctx context.Context) (int, error) {
	return 0, nil
}

func (f *fakeACL) AuditLog(ctx context.Context, entry *domain.AuditLogEntry) {
	f.entries = append(f.entries, entry)
}

type fakeRemoteClient struct{}

func (fakeRemoteClient) ListPage(ctx context.Context, query, pageToken string, maxResults int64) (*out.RemoteListPage, error) {
	return &out.RemoteListPage{}, nil
}

func (fakeRemoteClient) GetBatch(ctx context.Context, ids []string) ([]*domain.EmailIndex, error) {
	return nil, nil
}

func (fakeRemoteClient) BatchModify(ctx context.Context, ids, addLabels, removeLabels []string) error {
	return nil
}

func newTestService(t *testing.T, acl *fakeACL) *SessionService {
	t.Helper()
	factory := func(token *oauth2.Token) out.RemoteMailClient { return fakeRemoteClient{} }
	return NewSessionService(SessionConfig{
		JWTSecret:      "test-secret",
		SessionTimeout: time.Hour,
	}, factory, acl, zerolog.Nop())
}

// activeSession authenticates and polls so the session reaches active state.
func activeSession(t *testing.T, svc *SessionService, userID string) *domain.UserSession {
	t.Helper()
	sess, err := svc.Authenticate(context.Background(), userID)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.PollUserContext(context.Background(), sess.SessionID); err != nil {
		t.Fatalf("PollUserContext: %v", err)
	}
	return sess
}

func TestAuthenticateIssuesSignedToken(t *testing.T) {
	svc := newTestService(t, &fakeACL{})

	sess, err := svc.Authenticate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sess.State != domain.SessionStatePending {
		t.Fatalf("State = %s, want pending before first poll", sess.State)
	}
	if sess.ExpiresAt <= sess.CreatedAt {
		t.Fatal("ExpiresAt not after CreatedAt")
	}

	parsed, err := jwt.Parse(sess.Token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "user-1" {
		t.Fatalf("sub = %v, want user-1", claims["sub"])
	}
	if claims["jti"] != sess.SessionID {
		t.Fatalf("jti = %v, want session id", claims["jti"])
	}
}

func TestAuthenticateRequiresUserID(t *testing.T) {
	svc := newTestService(t, &fakeACL{})
	_, err := svc.Authenticate(context.Background(), "")
	if apperr.Code(err) != apperr.CodeUserIDMissing {
		t.Fatalf("error code = %s, want %s", apperr.Code(err), apperr.CodeUserIDMissing)
	}
}

func TestPollActivatesPendingSession(t *testing.T) {
	svc := newTestService(t, &fakeACL{})
	sess, _ := svc.Authenticate(context.Background(), "user-1")

	uc, err := svc.PollUserContext(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("PollUserContext: %v", err)
	}
	if uc.UserID != "user-1" || uc.SessionID != sess.SessionID {
		t.Fatalf("context = %+v", uc)
	}

	// Poll again; state should stay active.
	if _, err := svc.PollUserContext(context.Background(), sess.SessionID); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if svc.sessions[sess.SessionID].State != domain.SessionStateActive {
		t.Fatal("session not active after poll")
	}
}

func TestValidateErrorOrder(t *testing.T) {
	svc := newTestService(t, &fakeACL{})
	sess := activeSession(t, svc, "user-1")

	tests := []struct {
		name string
		uc   *domain.UserContext
		code string
	}{
		{"nil context", nil, apperr.CodeUserIDMissing},
		{"missing user id", &domain.UserContext{SessionID: sess.SessionID}, apperr.CodeUserIDMissing},
		{"missing session id", &domain.UserContext{UserID: "user-1"}, apperr.CodeSessionIDMissing},
		{"unknown session", &domain.UserContext{UserID: "user-1", SessionID: "nope"}, apperr.CodeSessionInvalid},
		{"user mismatch", &domain.UserContext{UserID: "user-2", SessionID: sess.SessionID}, apperr.CodeUserMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Validate(context.Background(), tt.uc)
			if apperr.Code(err) != tt.code {
				t.Fatalf("code = %s, want %s", apperr.Code(err), tt.code)
			}
		})
	}

	ok := &domain.UserContext{UserID: "user-1", SessionID: sess.SessionID}
	if err := svc.Validate(context.Background(), ok); err != nil {
		t.Fatalf("valid context rejected: %v", err)
	}
}

func TestValidateRejectsPendingSession(t *testing.T) {
	svc := newTestService(t, &fakeACL{})
	sess, _ := svc.Authenticate(context.Background(), "user-1")

	err := svc.Validate(context.Background(), &domain.UserContext{UserID: "user-1", SessionID: sess.SessionID})
	if apperr.Code(err) != apperr.CodeSessionInvalid {
		t.Fatalf("pending session code = %s, want %s", apperr.Code(err), apperr.CodeSessionInvalid)
	}
}

func TestValidateRejectsExpiredSession(t *testing.T) {
	svc := newTestService(t, &fakeACL{})
	sess := activeSession(t, svc, "user-1")
	svc.sessions[sess.SessionID].ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()

	err := svc.Validate(context.Background(), &domain.UserContext{UserID: "user-1", SessionID: sess.SessionID})
	if apperr.Code(err) != apperr.CodeSessionInvalid {
		t.Fatalf("expired session code = %s, want %s", apperr.Code(err), apperr.CodeSessionInvalid)
	}
}

func TestLogoutRevokesAndAudits(t *testing.T) {
	acl := &fakeACL{}
	svc := newTestService(t, acl)
	sess := activeSession(t, svc, "user-1")

	if err := svc.Logout(context.Background(), sess.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	err := svc.Validate(context.Background(), &domain.UserContext{UserID: "user-1", SessionID: sess.SessionID})
	if apperr.Code(err) != apperr.CodeSessionInvalid {
		t.Fatalf("revoked session code = %s", apperr.Code(err))
	}

	if len(acl.entries) != 2 {
		t.Fatalf("audit entries = %d, want login+logout", len(acl.entries))
	}
	if acl.entries[0].Action != domain.AuditLogin || acl.entries[1].Action != domain.AuditLogout {
		t.Fatalf("audit actions = %s, %s", acl.entries[0].Action, acl.entries[1].Action)
	}
	if acl.entries[1].ResourceType != domain.ResourceUserSession {
		t.Fatalf("audit resource type = %s", acl.entries[1].ResourceType)
	}
}

func TestGetRemoteClientRequiresCredential(t *testing.T) {
	svc := newTestService(t, &fakeACL{})
	sess := activeSession(t, svc, "user-1")

	_, err := svc.GetRemoteClient(context.Background(), sess.SessionID)
	if apperr.Code(err) != apperr.CodeRemotePermanent {
		t.Fatalf("no-credential code = %s, want %s", apperr.Code(err), apperr.CodeRemotePermanent)
	}

	if err := svc.AttachRemoteToken(sess.SessionID, &oauth2.Token{AccessToken: "x"}); err != nil {
		t.Fatalf("AttachRemoteToken: %v", err)
	}
	client, err := svc.GetRemoteClient(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("GetRemoteClient: %v", err)
	}
	if client == nil {
		t.Fatal("client is nil")
	}
}

func TestAttachRemoteTokenActivates(t *testing.T) {
	svc := newTestService(t, &fakeACL{})
	sess, _ := svc.Authenticate(context.Background(), "user-1")

	if err := svc.AttachRemoteToken(sess.SessionID, &oauth2.Token{AccessToken: "x"}); err != nil {
		t.Fatalf("AttachRemoteToken: %v", err)
	}
	err := svc.Validate(context.Background(), &domain.UserContext{UserID: "user-1", SessionID: sess.SessionID})
	if err != nil {
		t.Fatalf("session not active after token attach: %v", err)
	}
}

func TestPruneExpired(t *testing.T) {
	svc := newTestService(t, &fakeACL{})
	sess := activeSession(t, svc, "user-1")
	keep := activeSession(t, svc, "user-2")

	svc.sessions[sess.SessionID].ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()

	if pruned := svc.PruneExpired(); pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}
	if svc.ActiveSessions() != 1 {
		t.Fatalf("ActiveSessions = %d, want 1", svc.ActiveSessions())
	}
	if _, ok := svc.sessions[keep.SessionID]; !ok {
		t.Fatal("live session was pruned")
	}
}
