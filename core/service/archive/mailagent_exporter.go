package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"
	"mailagent_server/pkg/crypto"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExporterConfig bounds the export writer.
type ExporterConfig struct {
	BaseDir       string
	DefaultFormat string // used when the caller passes none; "json" if empty
	Encrypt       bool   // AES-256-GCM payloads when set
	EncryptionKey []byte // 32 bytes, required when Encrypt is set
}

// ExportArtifact describes one written export file.
type ExportArtifact struct {
	Path       string `json:"path"`
	FileID     string `json:"file_id"`
	RecordID   string `json:"record_id"`
	SizeBytes  int64  `json:"size_bytes"`
	Format     string `json:"format"`
	EmailCount int    `json:"email_count"`
	Encrypted  bool   `json:"encrypted"`
}

// Exporter writes archive export files under <BaseDir>/user_<id>/, registers
// them with the file ACL and appends an archive record. The formatter is an
// external collaborator; only FormatEmails and GetFileExtension are consumed.
type Exporter struct {
	cfg        ExporterConfig
	formatters *FormatterRegistry
	acl        out.FileACL
	archives   out.ArchiveStore
	encryptor  *crypto.Encryptor
	log        zerolog.Logger

	now func() time.Time
}

// NewExporter creates an export writer. formatters may be nil to use the
// built-in set. Fails when encryption is requested with an unusable key.
func NewExporter(cfg ExporterConfig, formatters *FormatterRegistry, acl out.FileACL, archives out.ArchiveStore, log zerolog.Logger) (*Exporter, error) {
	if cfg.BaseDir == "" {
		return nil, apperr.ConfigError("exporter requires a base directory")
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = "json"
	}
	if formatters == nil {
		formatters = DefaultFormatters()
	}

	e := &Exporter{
		cfg:        cfg,
		formatters: formatters,
		acl:        acl,
		archives:   archives,
		log:        log.With().Str("component", "export_writer").Logger(),
		now:        time.Now,
	}

	if cfg.Encrypt {
		enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, apperr.ConfigError("export encryption key: " + err.Error())
		}
		e.encryptor = enc
	}
	return e, nil
}

// Export formats emails, writes the file and records metadata. label becomes
// part of the filename and defaults to one naming the user; format defaults
// to the configured one.
func (e *Exporter) Export(ctx context.Context, emails []*domain.EmailIndex, userID, label, format string) (*ExportArtifact, error) {
	if format == "" {
		format = e.cfg.DefaultFormat
	}
	formatter, ok := e.formatters.Get(format)
	if !ok {
		return nil, apperr.ValidationFailed(fmt.Sprintf("unknown export format %q", format))
	}

	payload, err := formatter.FormatEmails(emails)
	if err != nil {
		return nil, fmt.Errorf("format %s export: %w", format, err)
	}

	encStatus := domain.EncryptionNone
	if e.encryptor != nil {
		payload, err = e.encryptor.Encrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("encrypt export: %w", err)
		}
		encStatus = domain.EncryptionAES256
	}

	dir := filepath.Join(e.cfg.BaseDir, userDirName(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	if label == "" {
		label = exportLabel(userID)
	}
	now := e.now()
	name := fmt.Sprintf("%d-%s.%s", now.UnixMilli(), label, formatter.GetFileExtension())
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return nil, fmt.Errorf("write export file: %w", err)
	}

	sum := sha256.Sum256(payload)
	meta, err := e.acl.CreateFileMetadata(ctx, &domain.CreateFileRequest{
		FilePath:          path,
		OriginalFilename:  name,
		FileType:          domain.FileTypeEmailExport,
		SizeBytes:         int64(len(payload)),
		MimeType:          mimeFor(formatter.GetFileExtension()),
		ChecksumSHA256:    hex.EncodeToString(sum[:]),
		EncryptionStatus:  encStatus,
		CompressionStatus: domain.CompressionNone,
		UserID:            userID,
	})
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	record := &domain.ArchiveRecord{
		ID:         uuid.New().String(),
		UserID:     userID,
		Method:     domain.ArchiveMethodExport,
		Location:   path,
		EmailCount: len(emails),
		SizeBytes:  int64(len(payload)),
		Format:     format,
		CreatedAt:  now.UnixMilli(),
	}
	if err := e.archives.CreateRecord(ctx, record); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("user_id", userID).
		Str("path", path).
		Int("emails", len(emails)).
		Int64("bytes", int64(len(payload))).
		Bool("encrypted", encStatus != domain.EncryptionNone).
		Msg("export written")

	return &ExportArtifact{
		Path:       path,
		FileID:     meta.ID,
		RecordID:   record.ID,
		SizeBytes:  int64(len(payload)),
		Format:     format,
		EmailCount: len(emails),
		Encrypted:  encStatus != domain.EncryptionNone,
	}, nil
}

func userDirName(userID string) string {
	if userID == "" {
		return "shared"
	}
	return "user_" + userID
}

// exportLabel keeps the owning user visible in the filename itself.
func exportLabel(userID string) string {
	if userID == "" {
		return "archive"
	}
	return "archive_user_" + userID
}

func mimeFor(ext string) string {
	switch ext {
	case "json":
		return "application/json"
	case "mbox":
		return "application/mbox"
	case "csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
