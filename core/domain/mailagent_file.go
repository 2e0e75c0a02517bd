package domain

// FileType classifies managed files.
type FileType string

const (
	FileTypeEmailExport   FileType = "email_export"
	FileTypeArchiveBackup FileType = "archive_backup"
	FileTypeSearchResult  FileType = "search_result"
	FileTypeAttachment    FileType = "attachment"
	FileTypeLogFile       FileType = "log_file"
)

// EncryptionStatus of a managed file's payload.
type EncryptionStatus string

const (
	EncryptionNone   EncryptionStatus = "none"
	EncryptionAES256 EncryptionStatus = "aes256"
	EncryptionGPG    EncryptionStatus = "gpg"
)

// CompressionStatus of a managed file's payload.
type CompressionStatus string

const (
	CompressionNone CompressionStatus = "none"
	CompressionGzip CompressionStatus = "gzip"
	CompressionZip  CompressionStatus = "zip"
)

// FileMetadata is one managed-file row. Timestamps are epoch ms.
type FileMetadata struct {
	ID                string            `json:"id"`
	FilePath          string            `json:"file_path"`
	OriginalFilename  string            `json:"original_filename"`
	FileType          FileType          `json:"file_type"`
	SizeBytes         int64             `json:"size_bytes"`
	MimeType          string            `json:"mime_type"`
	ChecksumSHA256    string            `json:"checksum_sha256"`
	EncryptionStatus  EncryptionStatus  `json:"encryption_status"`
	CompressionStatus CompressionStatus `json:"compression_status"`
	UserID            string            `json:"user_id"`
	CreatedAt         int64             `json:"created_at"`
	UpdatedAt         int64             `json:"updated_at"`
	LastAccessedAt    int64             `json:"last_accessed_at,omitempty"`
	ExpiresAt         int64             `json:"expires_at,omitempty"`
}

// PermissionType is one grantable file capability.
type PermissionType string

const (
	PermissionRead   PermissionType = "read"
	PermissionWrite  PermissionType = "write"
	PermissionDelete PermissionType = "delete"
	PermissionShare  PermissionType = "share"
)

// AllPermissions is the owner's effective set.
var AllPermissions = []PermissionType{PermissionRead, PermissionWrite, PermissionDelete, PermissionShare}

// FileAccessPermission is one (file, user, type) grant.
type FileAccessPermission struct {
	ID             string         `json:"id"`
	FileID         string         `json:"file_id"`
	UserID         string         `json:"user_id"`
	PermissionType PermissionType `json:"permission_type"`
	GrantedBy      string         `json:"granted_by"`
	GrantedAt      int64          `json:"granted_at"` // epoch ms
	ExpiresAt      int64          `json:"expires_at,omitempty"`
	IsActive       bool           `json:"is_active"`
}

// CreateFileRequest is the FileACL metadata-creation input.
type CreateFileRequest struct {
	FilePath          string            `json:"file_path"`
	OriginalFilename  string            `json:"original_filename"`
	FileType          FileType          `json:"file_type"`
	SizeBytes         int64             `json:"size_bytes"`
	MimeType          string            `json:"mime_type"`
	ChecksumSHA256    string            `json:"checksum_sha256"`
	EncryptionStatus  EncryptionStatus  `json:"encryption_status"`
	CompressionStatus CompressionStatus `json:"compression_status"`
	UserID            string            `json:"user_id"`
	ExpiresAt         int64             `json:"expires_at,omitempty"`
}

// FileAccessRequest asks whether a user may act on a file.
type FileAccessRequest struct {
	FileID         string         `json:"file_id"`
	UserID         string         `json:"user_id"`
	PermissionType PermissionType `json:"permission_type"`
}

// FileAccessResult is the access decision.
type FileAccessResult struct {
	Allowed              bool             `json:"allowed"`
	Reason               string           `json:"reason,omitempty"`
	FileMetadata         *FileMetadata    `json:"file_metadata,omitempty"`
	EffectivePermissions []PermissionType `json:"effective_permissions,omitempty"`
}

// AuditAction enumerates auditable operations.
type AuditAction string

const (
	AuditFileCreate       AuditAction = "file_create"
	AuditFileRead         AuditAction = "file_read"
	AuditFileWrite        AuditAction = "file_write"
	AuditFileDelete       AuditAction = "file_delete"
	AuditFileShare        AuditAction = "file_share"
	AuditPermissionGrant  AuditAction = "permission_grant"
	AuditPermissionRevoke AuditAction = "permission_revoke"
	AuditLogin            AuditAction = "login"
	AuditLogout           AuditAction = "logout"
)

// ResourceType names what an audit entry refers to.
type ResourceType string

const (
	ResourceFile        ResourceType = "file"
	ResourceEmail       ResourceType = "email"
	ResourceArchive     ResourceType = "archive"
	ResourceSearch      ResourceType = "search"
	ResourceUserSession ResourceType = "user_session"
)

// AuditLogEntry is one append-only audit row.
type AuditLogEntry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Action       AuditAction    `json:"action"`
	ResourceType ResourceType   `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	Timestamp    int64          `json:"timestamp"` // epoch ms
}

// FileACLConfig bounds the FileACL component.
type FileACLConfig struct {
	MaxFileSizeBytes          int64      `json:"max_file_size_bytes"`
	AllowedFileTypes          []FileType `json:"allowed_file_types"`
	DefaultFileExpirationDays int        `json:"default_file_expiration_days"`
	RequireEncryption         bool       `json:"require_encryption"`
	EnableAuditLogging        bool       `json:"enable_audit_logging"`
}

// DefaultFileACLConfig mirrors production defaults.
func DefaultFileACLConfig() FileACLConfig {
	return FileACLConfig{
		MaxFileSizeBytes:          100 * 1024 * 1024,
		AllowedFileTypes:          []FileType{FileTypeEmailExport, FileTypeArchiveBackup, FileTypeSearchResult, FileTypeAttachment, FileTypeLogFile},
		DefaultFileExpirationDays: 90,
		RequireEncryption:         false,
		EnableAuditLogging:        true,
	}
}
