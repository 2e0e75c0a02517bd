package persistence

import (
	"context"
	"database/sql"
	"os"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// File Access Control
// =============================================================================

const reasonFileExpired = "File has expired"

type fileMetadataRow struct {
	ID                string         `db:"id"`
	FilePath          string         `db:"file_path"`
	OriginalFilename  sql.NullString `db:"original_filename"`
	FileType          string         `db:"file_type"`
	SizeBytes         int64          `db:"size_bytes"`
	MimeType          sql.NullString `db:"mime_type"`
	ChecksumSHA256    sql.NullString `db:"checksum_sha256"`
	EncryptionStatus  string         `db:"encryption_status"`
	CompressionStatus string         `db:"compression_status"`
	UserID            string         `db:"user_id"`
	CreatedAt         int64          `db:"created_at"`
	UpdatedAt         int64          `db:"updated_at"`
	LastAccessedAt    sql.NullInt64  `db:"last_accessed_at"`
	ExpiresAt         sql.NullInt64  `db:"expires_at"`
}

func (r *fileMetadataRow) toEntity() *domain.FileMetadata {
	return &domain.FileMetadata{
		ID:                r.ID,
		FilePath:          r.FilePath,
		OriginalFilename:  r.OriginalFilename.String,
		FileType:          domain.FileType(r.FileType),
		SizeBytes:         r.SizeBytes,
		MimeType:          r.MimeType.String,
		ChecksumSHA256:    r.ChecksumSHA256.String,
		EncryptionStatus:  domain.EncryptionStatus(r.EncryptionStatus),
		CompressionStatus: domain.CompressionStatus(r.CompressionStatus),
		UserID:            r.UserID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		LastAccessedAt:    r.LastAccessedAt.Int64,
		ExpiresAt:         r.ExpiresAt.Int64,
	}
}

// FileACLAdapter implements out.FileACL over one user's store.
type FileACLAdapter struct {
	store out.EmailStore
	cfg   domain.FileACLConfig
	log   zerolog.Logger
}

// NewFileACL wires the ACL onto an already-bootstrapped store.
func NewFileACL(store out.EmailStore, cfg domain.FileACLConfig, log zerolog.Logger) *FileACLAdapter {
	return &FileACLAdapter{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "file_acl").Logger(),
	}
}

// CreateFileMetadata validates the request, inserts metadata and grants the
// owner all four permissions in one transaction.
func (a *FileACLAdapter) CreateFileMetadata(ctx context.Context, req *domain.CreateFileRequest) (*domain.FileMetadata, error) {
	if req == nil {
		return nil, apperr.MissingField("request")
	}
	if req.UserID == "" {
		return nil, apperr.UserIDMissing()
	}
	if req.SizeBytes > a.cfg.MaxFileSizeBytes {
		return nil, apperr.ValidationFailed("file exceeds maximum size")
	}
	if !a.typeAllowed(req.FileType) {
		return nil, apperr.ValidationFailed("file type not allowed")
	}
	encryption := req.EncryptionStatus
	if encryption == "" {
		encryption = domain.EncryptionNone
	}
	if a.cfg.RequireEncryption && encryption == domain.EncryptionNone {
		return nil, apperr.ValidationFailed("encryption required")
	}
	compression := req.CompressionStatus
	if compression == "" {
		compression = domain.CompressionNone
	}

	now := time.Now().UnixMilli()
	expiresAt := req.ExpiresAt
	if expiresAt == 0 && a.cfg.DefaultFileExpirationDays > 0 {
		expiresAt = now + int64(a.cfg.DefaultFileExpirationDays)*millisPerDay
	}

	meta := &domain.FileMetadata{
		ID:                uuid.New().String(),
		FilePath:          req.FilePath,
		OriginalFilename:  req.OriginalFilename,
		FileType:          req.FileType,
		SizeBytes:         req.SizeBytes,
		MimeType:          req.MimeType,
		ChecksumSHA256:    req.ChecksumSHA256,
		EncryptionStatus:  encryption,
		CompressionStatus: compression,
		UserID:            req.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         expiresAt,
	}

	_, err := a.store.Execute(ctx, `
		INSERT INTO file_metadata (id, file_path, original_filename, file_type, size_bytes,
			mime_type, checksum_sha256, encryption_status, compression_status, user_id,
			created_at, updated_at, last_accessed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.FilePath, meta.OriginalFilename, string(meta.FileType), meta.SizeBytes,
		meta.MimeType, meta.ChecksumSHA256, string(meta.EncryptionStatus), string(meta.CompressionStatus),
		meta.UserID, meta.CreatedAt, meta.UpdatedAt, nil, nullableInt64(meta.ExpiresAt))
	if err != nil {
		return nil, err
	}

	grantSets := make([][]any, 0, len(domain.AllPermissions))
	for _, perm := range domain.AllPermissions {
		grantSets = append(grantSets, []any{meta.ID, meta.UserID, string(perm), meta.UserID, now, nil, 1})
	}
	if _, err := a.store.ExecuteBatch(ctx, `
		INSERT INTO file_access_permissions (file_id, user_id, permission_type, granted_by, granted_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, grantSets); err != nil {
		return nil, err
	}

	a.AuditLog(ctx, &domain.AuditLogEntry{
		UserID:       meta.UserID,
		Action:       domain.AuditFileCreate,
		ResourceType: domain.ResourceFile,
		ResourceID:   meta.ID,
		Details:      map[string]any{"file_path": meta.FilePath, "file_type": string(meta.FileType)},
		Success:      true,
	})
	return meta, nil
}

// CheckFileAccess applies the access rules: missing file denies, expiry
// denies with a fixed reason, the owner holds every permission, anyone else
// needs an active unexpired grant of the requested type.
func (a *FileACLAdapter) CheckFileAccess(ctx context.Context, req *domain.FileAccessRequest) (*domain.FileAccessResult, error) {
	if req == nil || req.FileID == "" {
		return nil, apperr.MissingField("file_id")
	}

	var row fileMetadataRow
	err := a.store.Get(ctx, &row, `SELECT * FROM file_metadata WHERE id = ?`, req.FileID)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return &domain.FileAccessResult{Allowed: false, Reason: "File not found"}, nil
		}
		return nil, err
	}
	meta := row.toEntity()
	now := time.Now().UnixMilli()

	if meta.ExpiresAt != 0 && meta.ExpiresAt <= now {
		return &domain.FileAccessResult{Allowed: false, Reason: reasonFileExpired, FileMetadata: meta}, nil
	}

	if meta.UserID == req.UserID {
		a.touchAccess(ctx, meta.ID, now)
		return &domain.FileAccessResult{
			Allowed:              true,
			FileMetadata:         meta,
			EffectivePermissions: domain.AllPermissions,
		}, nil
	}

	var perms []struct {
		PermissionType string        `db:"permission_type"`
		ExpiresAt      sql.NullInt64 `db:"expires_at"`
	}
	err = a.store.Select(ctx, &perms, `
		SELECT permission_type, expires_at FROM file_access_permissions
		WHERE file_id = ? AND user_id = ? AND is_active = 1`, req.FileID, req.UserID)
	if err != nil {
		return nil, err
	}

	effective := make([]domain.PermissionType, 0, len(perms))
	granted := false
	for _, p := range perms {
		if p.ExpiresAt.Valid && p.ExpiresAt.Int64 <= now {
			continue
		}
		pt := domain.PermissionType(p.PermissionType)
		effective = append(effective, pt)
		if pt == req.PermissionType {
			granted = true
		}
	}

	if !granted {
		return &domain.FileAccessResult{Allowed: false, Reason: "Permission denied", FileMetadata: meta}, nil
	}
	if req.PermissionType == domain.PermissionRead {
		a.touchAccess(ctx, meta.ID, now)
	}
	return &domain.FileAccessResult{
		Allowed:              true,
		FileMetadata:         meta,
		EffectivePermissions: effective,
	}, nil
}

func (a *FileACLAdapter) touchAccess(ctx context.Context, fileID string, now int64) {
	if _, err := a.store.Execute(ctx, `UPDATE file_metadata SET last_accessed_at = ? WHERE id = ?`, now, fileID); err != nil {
		a.log.Warn().Err(err).Str("file_id", fileID).Msg("access touch failed")
	}
}

// GrantPermission upserts one (file, grantee, type) grant.
func (a *FileACLAdapter) GrantPermission(ctx context.Context, fileID, granteeID, grantedBy string, permission domain.PermissionType, expiresAt int64) error {
	now := time.Now().UnixMilli()
	_, err := a.store.Execute(ctx, `
		INSERT OR REPLACE INTO file_access_permissions (file_id, user_id, permission_type, granted_by, granted_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)`,
		fileID, granteeID, string(permission), grantedBy, now, nullableInt64(expiresAt))
	if err != nil {
		return err
	}

	a.AuditLog(ctx, &domain.AuditLogEntry{
		UserID:       grantedBy,
		Action:       domain.AuditPermissionGrant,
		ResourceType: domain.ResourceFile,
		ResourceID:   fileID,
		Details:      map[string]any{"grantee": granteeID, "permission": string(permission)},
		Success:      true,
	})
	return nil
}

// RevokePermission deactivates a grant without deleting the row.
func (a *FileACLAdapter) RevokePermission(ctx context.Context, fileID, granteeID string, permission domain.PermissionType) error {
	res, err := a.store.Execute(ctx, `
		UPDATE file_access_permissions SET is_active = 0
		WHERE file_id = ? AND user_id = ? AND permission_type = ?`,
		fileID, granteeID, string(permission))
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		return apperr.NotFound("permission")
	}

	a.AuditLog(ctx, &domain.AuditLogEntry{
		Action:       domain.AuditPermissionRevoke,
		ResourceType: domain.ResourceFile,
		ResourceID:   fileID,
		Details:      map[string]any{"grantee": granteeID, "permission": string(permission)},
		Success:      true,
	})
	return nil
}

// CleanupExpiredFiles removes expired files from disk and their rows,
// cascading permissions. Missing physical files are tolerated.
func (a *FileACLAdapter) CleanupExpiredFiles(ctx context.Context) (int, error) {
	now := time.Now().UnixMilli()

	var rows []fileMetadataRow
	if err := a.store.Select(ctx, &rows, `
		SELECT * FROM file_metadata WHERE expires_at IS NOT NULL AND expires_at <= ?`, now); err != nil {
		return 0, err
	}

	cleaned := 0
	for i := range rows {
		meta := rows[i].toEntity()
		if err := os.Remove(meta.FilePath); err != nil && !os.IsNotExist(err) {
			a.log.Warn().Err(err).Str("path", meta.FilePath).Msg("expired file removal failed")
		}
		if _, err := a.store.Execute(ctx, `DELETE FROM file_access_permissions WHERE file_id = ?`, meta.ID); err != nil {
			return cleaned, err
		}
		if _, err := a.store.Execute(ctx, `DELETE FROM file_metadata WHERE id = ?`, meta.ID); err != nil {
			return cleaned, err
		}
		cleaned++

		a.AuditLog(ctx, &domain.AuditLogEntry{
			UserID:       "system",
			Action:       domain.AuditFileDelete,
			ResourceType: domain.ResourceFile,
			ResourceID:   meta.ID,
			Details:      map[string]any{"reason": "expired", "file_path": meta.FilePath},
			Success:      true,
		})
	}
	return cleaned, nil
}

// AuditLog appends one audit row. It never fails the caller: errors are
// logged and dropped, and it is a no-op when auditing is disabled.
func (a *FileACLAdapter) AuditLog(ctx context.Context, entry *domain.AuditLogEntry) {
	if !a.cfg.EnableAuditLogging || entry == nil {
		return
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	var details any
	if entry.Details != nil {
		if b, err := json.Marshal(entry.Details); err == nil {
			details = string(b)
		}
	}

	_, err := a.store.Execute(ctx, `
		INSERT INTO audit_log (user_id, action, resource_type, resource_id, details, success,
			error_message, ip_address, user_agent, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, string(entry.Action), string(entry.ResourceType), entry.ResourceID,
		details, boolToInt(entry.Success), nullableString(entry.ErrorMessage),
		nullableString(entry.IPAddress), nullableString(entry.UserAgent),
		nullableString(entry.SessionID), entry.Timestamp)
	if err != nil {
		a.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("audit write failed")
	}
}

func (a *FileACLAdapter) typeAllowed(t domain.FileType) bool {
	for _, allowed := range a.cfg.AllowedFileTypes {
		if allowed == t {
			return true
		}
	}
	return false
}
