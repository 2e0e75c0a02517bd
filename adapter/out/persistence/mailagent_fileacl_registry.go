package persistence

import (
	"context"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"

	"github.com/rs/zerolog"
)

// FileACLRegistry is the process-wide out.FileACL. File metadata and grants
// ride the shared store, like job rows, so access checks and grants resolve
// across users. Audit entries carrying a user land in that user's own store;
// entries without one fall back to the shared store.
type FileACLRegistry struct {
	registry out.StoreRegistry
	cfg      domain.FileACLConfig
	log      zerolog.Logger
}

var _ out.FileACL = (*FileACLRegistry)(nil)

func NewFileACLRegistry(registry out.StoreRegistry, cfg domain.FileACLConfig, log zerolog.Logger) *FileACLRegistry {
	return &FileACLRegistry{
		registry: registry,
		cfg:      cfg,
		log:      log.With().Str("component", "file_acl").Logger(),
	}
}

func (r *FileACLRegistry) shared(ctx context.Context) (*FileACLAdapter, error) {
	store, err := r.registry.Shared(ctx)
	if err != nil {
		return nil, err
	}
	return NewFileACL(store, r.cfg, r.log), nil
}

func (r *FileACLRegistry) CreateFileMetadata(ctx context.Context, req *domain.CreateFileRequest) (*domain.FileMetadata, error) {
	acl, err := r.shared(ctx)
	if err != nil {
		return nil, err
	}
	return acl.CreateFileMetadata(ctx, req)
}

func (r *FileACLRegistry) CheckFileAccess(ctx context.Context, req *domain.FileAccessRequest) (*domain.FileAccessResult, error) {
	acl, err := r.shared(ctx)
	if err != nil {
		return nil, err
	}
	return acl.CheckFileAccess(ctx, req)
}

func (r *FileACLRegistry) GrantPermission(ctx context.Context, fileID, granteeID, grantedBy string, permission domain.PermissionType, expiresAt int64) error {
	acl, err := r.shared(ctx)
	if err != nil {
		return err
	}
	return acl.GrantPermission(ctx, fileID, granteeID, grantedBy, permission, expiresAt)
}

func (r *FileACLRegistry) RevokePermission(ctx context.Context, fileID, granteeID string, permission domain.PermissionType) error {
	acl, err := r.shared(ctx)
	if err != nil {
		return err
	}
	return acl.RevokePermission(ctx, fileID, granteeID, permission)
}

func (r *FileACLRegistry) CleanupExpiredFiles(ctx context.Context) (int, error) {
	acl, err := r.shared(ctx)
	if err != nil {
		return 0, err
	}
	return acl.CleanupExpiredFiles(ctx)
}

// AuditLog routes the entry to the acting user's store. Failures are logged
// and dropped; auditing never blocks the caller.
func (r *FileACLRegistry) AuditLog(ctx context.Context, entry *domain.AuditLogEntry) {
	if entry == nil {
		return
	}

	var (
		store out.EmailStore
		err   error
	)
	if entry.UserID != "" {
		store, err = r.registry.Get(ctx, entry.UserID)
	} else {
		store, err = r.registry.Shared(ctx)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", entry.UserID).Msg("audit store unavailable")
		return
	}

	NewFileACL(store, r.cfg, r.log).AuditLog(ctx, entry)
}
