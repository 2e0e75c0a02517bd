package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mailagent_server/core/domain"

	"github.com/rs/zerolog"
)

func newTestACL(t *testing.T, cfg domain.FileACLConfig) (*FileACLAdapter, *Store) {
	t.Helper()
	store := newTestStore(t, "owner")
	return NewFileACL(store, cfg, zerolog.Nop()), store
}

func testFileRequest(mutate ...func(*domain.CreateFileRequest)) *domain.CreateFileRequest {
	req := &domain.CreateFileRequest{
		FilePath:         "/tmp/export.json",
		OriginalFilename: "export.json",
		FileType:         domain.FileTypeEmailExport,
		SizeBytes:        1024,
		MimeType:         "application/json",
		UserID:           "owner",
	}
	for _, m := range mutate {
		m(req)
	}
	return req
}

func TestCreateFileMetadata(t *testing.T) {
	acl, store := newTestACL(t, domain.DefaultFileACLConfig())
	ctx := context.Background()

	meta, err := acl.CreateFileMetadata(ctx, testFileRequest())
	if err != nil {
		t.Fatalf("CreateFileMetadata: %v", err)
	}
	if meta.ID == "" {
		t.Fatal("no id assigned")
	}
	if meta.ExpiresAt == 0 {
		t.Error("default expiry not applied")
	}

	// Owner gets all four permissions in one pass.
	var grants int
	if err := store.Get(ctx, &grants, `
		SELECT COUNT(*) FROM file_access_permissions WHERE file_id = ? AND user_id = 'owner' AND is_active = 1`,
		meta.ID); err != nil {
		t.Fatalf("count grants: %v", err)
	}
	if grants != len(domain.AllPermissions) {
		t.Errorf("owner grants = %d, want %d", grants, len(domain.AllPermissions))
	}

	var audits int
	if err := store.Get(ctx, &audits, `
		SELECT COUNT(*) FROM audit_log WHERE action = 'file_create' AND resource_id = ?`, meta.ID); err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if audits != 1 {
		t.Errorf("file_create audit rows = %d, want 1", audits)
	}
}

func TestCreateFileMetadataValidation(t *testing.T) {
	cfg := domain.DefaultFileACLConfig()
	cfg.MaxFileSizeBytes = 100
	cfg.AllowedFileTypes = []domain.FileType{domain.FileTypeEmailExport}
	cfg.RequireEncryption = true

	acl, _ := newTestACL(t, cfg)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *domain.CreateFileRequest
	}{
		{"oversized", testFileRequest(func(r *domain.CreateFileRequest) {
			r.SizeBytes = 101
			r.EncryptionStatus = domain.EncryptionAES256
		})},
		{"type not allowed", testFileRequest(func(r *domain.CreateFileRequest) {
			r.SizeBytes = 50
			r.FileType = domain.FileTypeLogFile
			r.EncryptionStatus = domain.EncryptionAES256
		})},
		{"encryption required", testFileRequest(func(r *domain.CreateFileRequest) {
			r.SizeBytes = 50
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := acl.CreateFileMetadata(ctx, tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCheckFileAccess(t *testing.T) {
	acl, _ := newTestACL(t, domain.DefaultFileACLConfig())
	ctx := context.Background()

	meta, err := acl.CreateFileMetadata(ctx, testFileRequest())
	if err != nil {
		t.Fatalf("CreateFileMetadata: %v", err)
	}

	t.Run("not found", func(t *testing.T) {
		res, err := acl.CheckFileAccess(ctx, &domain.FileAccessRequest{
			FileID: "ghost", UserID: "owner", PermissionType: domain.PermissionRead})
		if err != nil {
			t.Fatalf("CheckFileAccess: %v", err)
		}
		if res.Allowed {
			t.Error("missing file allowed")
		}
	})

	t.Run("owner has everything", func(t *testing.T) {
		res, err := acl.CheckFileAccess(ctx, &domain.FileAccessRequest{
			FileID: meta.ID, UserID: "owner", PermissionType: domain.PermissionDelete})
		if err != nil {
			t.Fatalf("CheckFileAccess: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("owner denied: %s", res.Reason)
		}
		if len(res.EffectivePermissions) != len(domain.AllPermissions) {
			t.Errorf("effective = %v, want all four", res.EffectivePermissions)
		}
	})

	t.Run("stranger denied", func(t *testing.T) {
		res, err := acl.CheckFileAccess(ctx, &domain.FileAccessRequest{
			FileID: meta.ID, UserID: "stranger", PermissionType: domain.PermissionRead})
		if err != nil {
			t.Fatalf("CheckFileAccess: %v", err)
		}
		if res.Allowed {
			t.Error("stranger allowed without grant")
		}
	})

	t.Run("grant then allowed", func(t *testing.T) {
		if err := acl.GrantPermission(ctx, meta.ID, "guest", "owner", domain.PermissionRead, 0); err != nil {
			t.Fatalf("GrantPermission: %v", err)
		}
		res, err := acl.CheckFileAccess(ctx, &domain.FileAccessRequest{
			FileID: meta.ID, UserID: "guest", PermissionType: domain.PermissionRead})
		if err != nil {
			t.Fatalf("CheckFileAccess: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("grantee denied: %s", res.Reason)
		}
		// Read but not write.
		res, _ = acl.CheckFileAccess(ctx, &domain.FileAccessRequest{
			FileID: meta.ID, UserID: "guest", PermissionType: domain.PermissionWrite})
		if res.Allowed {
			t.Error("grantee allowed beyond granted type")
		}
	})

	t.Run("revoked grant denied", func(t *testing.T) {
		if err := acl.RevokePermission(ctx, meta.ID, "guest", domain.PermissionRead); err != nil {
			t.Fatalf("RevokePermission: %v", err)
		}
		res, _ := acl.CheckFileAccess(ctx, &domain.FileAccessRequest{
			FileID: meta.ID, UserID: "guest", PermissionType: domain.PermissionRead})
		if res.Allowed {
			t.Error("revoked grant still allows access")
		}
	})
}

func TestCheckFileAccessExpired(t *testing.T) {
	acl, _ := newTestACL(t, domain.DefaultFileACLConfig())
	ctx := context.Background()

	meta, err := acl.CreateFileMetadata(ctx, testFileRequest(func(r *domain.CreateFileRequest) {
		r.ExpiresAt = time.Now().UnixMilli() - 1000
	}))
	if err != nil {
		t.Fatalf("CreateFileMetadata: %v", err)
	}

	res, err := acl.CheckFileAccess(ctx, &domain.FileAccessRequest{
		FileID: meta.ID, UserID: "owner", PermissionType: domain.PermissionRead})
	if err != nil {
		t.Fatalf("CheckFileAccess: %v", err)
	}
	if res.Allowed {
		t.Error("expired file allowed")
	}
	if res.Reason != "File has expired" {
		t.Errorf("reason = %q, want %q", res.Reason, "File has expired")
	}
}

func TestCleanupExpiredFiles(t *testing.T) {
	acl, store := newTestACL(t, domain.DefaultFileACLConfig())
	ctx := context.Background()

	dir := t.TempDir()
	livePath := filepath.Join(dir, "live.json")
	deadPath := filepath.Join(dir, "dead.json")
	if err := os.WriteFile(deadPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := acl.CreateFileMetadata(ctx, testFileRequest(func(r *domain.CreateFileRequest) {
		r.FilePath = livePath
	})); err != nil {
		t.Fatalf("create live: %v", err)
	}
	dead, err := acl.CreateFileMetadata(ctx, testFileRequest(func(r *domain.CreateFileRequest) {
		r.FilePath = deadPath
		r.ExpiresAt = time.Now().UnixMilli() - 1000
	}))
	if err != nil {
		t.Fatalf("create dead: %v", err)
	}
	// Second expired entry whose physical file never existed.
	if _, err := acl.CreateFileMetadata(ctx, testFileRequest(func(r *domain.CreateFileRequest) {
		r.FilePath = filepath.Join(dir, "ghost.json")
		r.ExpiresAt = time.Now().UnixMilli() - 1000
	})); err != nil {
		t.Fatalf("create ghost: %v", err)
	}

	cleaned, err := acl.CleanupExpiredFiles(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredFiles: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("cleaned = %d, want 2", cleaned)
	}
	if _, err := os.Stat(deadPath); !os.IsNotExist(err) {
		t.Error("expired physical file not removed")
	}
	if _, err := os.Stat(livePath); err == nil {
		// livePath was never written; just ensure its metadata survived.
	}

	var remaining int
	if err := store.Get(ctx, &remaining, `SELECT COUNT(*) FROM file_metadata`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 1 {
		t.Errorf("metadata rows = %d, want 1", remaining)
	}
	var cascaded int
	if err := store.Get(ctx, &cascaded, `
		SELECT COUNT(*) FROM file_access_permissions WHERE file_id = ?`, dead.ID); err != nil {
		t.Fatalf("count perms: %v", err)
	}
	if cascaded != 0 {
		t.Errorf("permissions for expired file = %d, want 0", cascaded)
	}
}

func TestAuditLogDisabled(t *testing.T) {
	cfg := domain.DefaultFileACLConfig()
	cfg.EnableAuditLogging = false
	acl, store := newTestACL(t, cfg)
	ctx := context.Background()

	acl.AuditLog(ctx, &domain.AuditLogEntry{
		UserID: "owner", Action: domain.AuditLogin, ResourceType: domain.ResourceUserSession, Success: true})

	var rows int
	if err := store.Get(ctx, &rows, `SELECT COUNT(*) FROM audit_log`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 0 {
		t.Errorf("audit rows = %d, want 0 when disabled", rows)
	}
}
