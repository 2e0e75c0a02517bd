package out

import (
	"context"

	"mailagent_server/core/domain"
)

// FileACL guards exported archive files. Every decision is auditable; audit
// failures never block the caller.
type FileACL interface {
	CreateFileMetadata(ctx context.Context, req *domain.CreateFileRequest) (*domain.FileMetadata, error)
	CheckFileAccess(ctx context.Context, req *domain.FileAccessRequest) (*domain.FileAccessResult, error)
	GrantPermission(ctx context.Context, fileID, granteeID, grantedBy string, permission domain.PermissionType, expiresAt int64) error
	RevokePermission(ctx context.Context, fileID, granteeID string, permission domain.PermissionType) error
	CleanupExpiredFiles(ctx context.Context) (int, error)
	AuditLog(ctx context.Context, entry *domain.AuditLogEntry)
}
