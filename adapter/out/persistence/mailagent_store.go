// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/infra/database"
	"mailagent_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// =============================================================================
// Store (per-user SQLite)
// =============================================================================

const (
	// SharedStoreFile is the legacy single-user database filename.
	SharedStoreFile = "shared.db"
	// UserStorePrefix prefixes per-user database filenames.
	UserStorePrefix = "user_"
)

var errStoreClosed = errors.New("store is closed")

// StoreFileName returns the database filename for a user. The empty user maps
// to the legacy shared file.
func StoreFileName(userID string) string {
	if userID == "" {
		return SharedStoreFile
	}
	return UserStorePrefix + userID + ".db"
}

// Store implements out.EmailStore over one SQLite file. Reads run
// concurrently; writes pass through an in-flight counter so WaitForIdle and
// Close can drain them.
type Store struct {
	db     *sqlx.DB
	path   string
	userID string
	log    zerolog.Logger

	mu       sync.Mutex
	idle     *sync.Cond
	inFlight int
	closed   bool
}

// NewStore opens (creating if needed) the database at path, bootstraps the
// schema and runs pending migrations. userID is empty for the shared store.
func NewStore(path, userID string, log zerolog.Logger) (*Store, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return nil, apperr.StoreError("open", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		userID: userID,
		log:    log.With().Str("component", "store").Str("db", StoreFileName(userID)).Logger(),
	}
	s.idle = sync.NewCond(&s.mu)

	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// =============================================================================
// Schema & Migration
// =============================================================================

// Dates in every table are epoch milliseconds.
const baseSchema = `
CREATE TABLE IF NOT EXISTS email_index (
	id TEXT PRIMARY KEY,
	thread_id TEXT,
	subject TEXT,
	sender TEXT,
	recipients TEXT,
	date INTEGER,
	year INTEGER,
	size_estimate INTEGER,
	has_attachments INTEGER DEFAULT 0,
	labels TEXT,
	snippet TEXT,
	archived INTEGER DEFAULT 0 CHECK (archived IN (0, 1)),
	archive_date INTEGER,
	archive_location TEXT,
	category TEXT CHECK (category IN ('high', 'medium', 'low') OR category IS NULL),
	user_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_email_index_date ON email_index(date);
CREATE INDEX IF NOT EXISTS idx_email_index_year ON email_index(year);
CREATE INDEX IF NOT EXISTS idx_email_index_category ON email_index(category);
CREATE INDEX IF NOT EXISTS idx_email_index_user_date ON email_index(user_id, date);
CREATE INDEX IF NOT EXISTS idx_email_index_user_archived ON email_index(user_id, archived);

CREATE TABLE IF NOT EXISTS email_access_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	email_id TEXT NOT NULL,
	access_type TEXT NOT NULL CHECK (access_type IN ('view', 'search_result', 'open')),
	accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_log_user_email ON email_access_log(user_id, email_id);

CREATE TABLE IF NOT EXISTS search_activity (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	query TEXT,
	email_ids TEXT,
	interacted_ids TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_activity_user ON search_activity(user_id, created_at);

CREATE TABLE IF NOT EXISTS email_access_summary (
	email_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	access_count INTEGER DEFAULT 0,
	search_appearances INTEGER DEFAULT 0,
	last_accessed_at INTEGER,
	access_score REAL DEFAULT 0 CHECK (access_score >= 0 AND access_score <= 1),
	PRIMARY KEY (email_id, user_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT,
	details TEXT,
	success INTEGER DEFAULT 1,
	error_message TEXT,
	ip_address TEXT,
	user_agent TEXT,
	session_id TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id, created_at);

CREATE TABLE IF NOT EXISTS file_metadata (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	original_filename TEXT,
	file_type TEXT NOT NULL CHECK (file_type IN ('email_export', 'archive_backup', 'search_result', 'attachment', 'log_file')),
	size_bytes INTEGER DEFAULT 0,
	mime_type TEXT,
	checksum_sha256 TEXT,
	encryption_status TEXT DEFAULT 'none' CHECK (encryption_status IN ('none', 'aes256', 'gpg')),
	compression_status TEXT DEFAULT 'none' CHECK (compression_status IN ('none', 'gzip', 'zip')),
	user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	last_accessed_at INTEGER,
	expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_file_metadata_user ON file_metadata(user_id);
CREATE INDEX IF NOT EXISTS idx_file_metadata_expires ON file_metadata(expires_at);

CREATE TABLE IF NOT EXISTS file_access_permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	permission_type TEXT NOT NULL CHECK (permission_type IN ('read', 'write', 'delete', 'share')),
	granted_by TEXT,
	granted_at INTEGER NOT NULL,
	expires_at INTEGER,
	is_active INTEGER DEFAULT 1,
	UNIQUE (file_id, user_id, permission_type)
);

CREATE TABLE IF NOT EXISTS saved_searches (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	criteria TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_saved_searches_user ON saved_searches(user_id);

CREATE TABLE IF NOT EXISTS archive_rules (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	criteria TEXT NOT NULL,
	action TEXT NOT NULL,
	enabled INTEGER DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_rules_user ON archive_rules(user_id);

CREATE TABLE IF NOT EXISTS archive_records (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	method TEXT NOT NULL CHECK (method IN ('gmail', 'export')),
	location TEXT,
	email_count INTEGER DEFAULT 0,
	size_bytes INTEGER DEFAULT 0,
	format TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_records_user ON archive_records(user_id);

CREATE TABLE IF NOT EXISTS cleanup_policies (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	enabled INTEGER DEFAULT 1,
	criteria TEXT NOT NULL,
	action TEXT NOT NULL,
	safety TEXT NOT NULL,
	schedule TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cleanup_policies_user ON cleanup_policies(user_id);
`

// firstAnalyzerColumn marks whether the analyzer migration has run.
const firstAnalyzerColumn = "importance_score"

// analyzerMigrations add the analysis result columns to pre-analyzer
// databases. Each statement is idempotent via the duplicate-column check.
var analyzerMigrations = []string{
	`ALTER TABLE email_index ADD COLUMN importance_score REAL`,
	`ALTER TABLE email_index ADD COLUMN importance_level TEXT CHECK (importance_level IN ('high', 'medium', 'low') OR importance_level IS NULL)`,
	`ALTER TABLE email_index ADD COLUMN importance_matched_rules TEXT`,
	`ALTER TABLE email_index ADD COLUMN importance_confidence REAL`,
	`ALTER TABLE email_index ADD COLUMN age_category TEXT CHECK (age_category IN ('recent', 'moderate', 'old') OR age_category IS NULL)`,
	`ALTER TABLE email_index ADD COLUMN size_category TEXT CHECK (size_category IN ('small', 'medium', 'large') OR size_category IS NULL)`,
	`ALTER TABLE email_index ADD COLUMN recency_score REAL`,
	`ALTER TABLE email_index ADD COLUMN size_penalty REAL`,
	`ALTER TABLE email_index ADD COLUMN gmail_category TEXT CHECK (gmail_category IN ('important', 'spam', 'promotions', 'social', 'primary', 'updates', 'forums') OR gmail_category IS NULL)`,
	`ALTER TABLE email_index ADD COLUMN spam_score REAL`,
	`ALTER TABLE email_index ADD COLUMN promotional_score REAL`,
	`ALTER TABLE email_index ADD COLUMN social_score REAL`,
	`ALTER TABLE email_index ADD COLUMN spam_indicators TEXT`,
	`ALTER TABLE email_index ADD COLUMN promotional_indicators TEXT`,
	`ALTER TABLE email_index ADD COLUMN social_indicators TEXT`,
	`ALTER TABLE email_index ADD COLUMN analysis_timestamp INTEGER`,
	`ALTER TABLE email_index ADD COLUMN analysis_version TEXT`,
}

var analyzerIndices = []string{
	`CREATE INDEX IF NOT EXISTS idx_email_index_importance ON email_index(user_id, importance_score)`,
	`CREATE INDEX IF NOT EXISTS idx_email_index_spam ON email_index(spam_score)`,
	`CREATE INDEX IF NOT EXISTS idx_email_index_analysis ON email_index(analysis_timestamp)`,
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(baseSchema); err != nil {
		return apperr.StoreError("schema", err)
	}

	migrated, err := s.hasColumn("email_index", firstAnalyzerColumn)
	if err != nil {
		return err
	}
	if !migrated {
		s.log.Info().Msg("migrating email_index to analyzer schema")
		for _, stmt := range analyzerMigrations {
			if _, err := s.db.Exec(stmt); err != nil {
				if strings.Contains(err.Error(), "duplicate column name") {
					continue
				}
				return apperr.StoreError("migrate", err)
			}
		}
	}
	for _, stmt := range analyzerIndices {
		if _, err := s.db.Exec(stmt); err != nil {
			return apperr.StoreError("migrate", err)
		}
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Queryx(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, apperr.StoreError("schema", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, apperr.StoreError("schema", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// =============================================================================
// Idle Barrier
// =============================================================================

func (s *Store) beginWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.StoreError("begin", errStoreClosed)
	}
	s.inFlight++
	return nil
}

func (s *Store) endWrite() {
	s.mu.Lock()
	s.inFlight--
	if s.inFlight <= 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

// WaitForIdle blocks until no write is in flight.
func (s *Store) WaitForIdle() {
	s.mu.Lock()
	for s.inFlight > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close drains in-flight writes, then closes the connection. Closing twice
// is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for s.inFlight > 0 {
		s.idle.Wait()
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// UserID returns the owning user, empty for the legacy shared store.
func (s *Store) UserID() string { return s.userID }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// =============================================================================
// Raw Surface
// =============================================================================

// Execute runs one DML/DDL statement.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (out.ExecResult, error) {
	if err := s.beginWrite(); err != nil {
		return out.ExecResult{}, err
	}
	defer s.endWrite()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return out.ExecResult{}, apperr.StoreError("execute", err)
	}
	changes, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return out.ExecResult{Changes: changes, LastID: lastID}, nil
}

// ExecuteBatch runs the statement once per argument vector inside one
// transaction, rolling back on the first error.
func (s *Store) ExecuteBatch(ctx context.Context, query string, argSets [][]any) (out.ExecResult, error) {
	if err := s.beginWrite(); err != nil {
		return out.ExecResult{}, err
	}
	defer s.endWrite()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return out.ExecResult{}, apperr.StoreError("begin tx", err)
	}

	var total out.ExecResult
	for _, args := range argSets {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			tx.Rollback()
			return out.ExecResult{}, apperr.StoreError("execute batch", err)
		}
		changes, _ := res.RowsAffected()
		lastID, _ := res.LastInsertId()
		total.Changes += changes
		total.LastID = lastID
	}
	if err := tx.Commit(); err != nil {
		return out.ExecResult{}, apperr.StoreError("commit", err)
	}
	return total, nil
}

// Get scans a single row into dest.
func (s *Store) Get(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.db.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("row").WithError(err)
		}
		return apperr.StoreError("query", err)
	}
	return nil
}

// Select scans all rows into dest.
func (s *Store) Select(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return apperr.StoreError("query", err)
	}
	return nil
}

// =============================================================================
// Row Mapping
// =============================================================================

// emailIndexColumns lists all 33 columns in persisted order.
const emailIndexColumns = `id, thread_id, subject, sender, recipients, date, year, size_estimate,
	has_attachments, labels, snippet, archived, archive_date, archive_location, category,
	importance_score, importance_level, importance_matched_rules, importance_confidence,
	age_category, size_category, recency_score, size_penalty,
	gmail_category, spam_score, promotional_score, social_score,
	spam_indicators, promotional_indicators, social_indicators,
	analysis_timestamp, analysis_version, user_id`

type emailIndexRow struct {
	ID             string         `db:"id"`
	ThreadID       sql.NullString `db:"thread_id"`
	Subject        sql.NullString `db:"subject"`
	Sender         sql.NullString `db:"sender"`
	Recipients     sql.NullString `db:"recipients"`
	Date           sql.NullInt64  `db:"date"`
	Year           sql.NullInt64  `db:"year"`
	SizeEstimate   sql.NullInt64  `db:"size_estimate"`
	HasAttachments sql.NullInt64  `db:"has_attachments"`
	Labels         sql.NullString `db:"labels"`
	Snippet        sql.NullString `db:"snippet"`

	Archived        sql.NullInt64  `db:"archived"`
	ArchiveDate     sql.NullInt64  `db:"archive_date"`
	ArchiveLocation sql.NullString `db:"archive_location"`
	Category        sql.NullString `db:"category"`

	ImportanceScore        sql.NullFloat64 `db:"importance_score"`
	ImportanceLevel        sql.NullString  `db:"importance_level"`
	ImportanceMatchedRules sql.NullString  `db:"importance_matched_rules"`
	ImportanceConfidence   sql.NullFloat64 `db:"importance_confidence"`

	AgeCategory  sql.NullString  `db:"age_category"`
	SizeCategory sql.NullString  `db:"size_category"`
	RecencyScore sql.NullFloat64 `db:"recency_score"`
	SizePenalty  sql.NullFloat64 `db:"size_penalty"`

	GmailCategory         sql.NullString  `db:"gmail_category"`
	SpamScore             sql.NullFloat64 `db:"spam_score"`
	PromotionalScore      sql.NullFloat64 `db:"promotional_score"`
	SocialScore           sql.NullFloat64 `db:"social_score"`
	SpamIndicators        sql.NullString  `db:"spam_indicators"`
	PromotionalIndicators sql.NullString  `db:"promotional_indicators"`
	SocialIndicators      sql.NullString  `db:"social_indicators"`

	AnalysisTimestamp sql.NullInt64  `db:"analysis_timestamp"`
	AnalysisVersion   sql.NullString `db:"analysis_version"`
	UserID            sql.NullString `db:"user_id"`
}

// emailIndexRowWithCount adds the COUNT(*) OVER() window result.
type emailIndexRowWithCount struct {
	emailIndexRow
	TotalCount int `db:"total_count"`
}

func (r *emailIndexRow) toEntity() *domain.EmailIndex {
	e := &domain.EmailIndex{
		ID:             r.ID,
		ThreadID:       r.ThreadID.String,
		Subject:        r.Subject.String,
		Sender:         r.Sender.String,
		Recipients:     decodeStringList(r.Recipients),
		Date:           r.Date.Int64,
		Year:           int(r.Year.Int64),
		SizeEstimate:   r.SizeEstimate.Int64,
		HasAttachments: r.HasAttachments.Int64 != 0,
		Labels:         decodeStringList(r.Labels),
		Snippet:        r.Snippet.String,
		Archived:       r.Archived.Int64 != 0,
		UserID:         r.UserID.String,
	}

	if r.ArchiveDate.Valid {
		e.ArchiveDate = &r.ArchiveDate.Int64
	}
	if r.ArchiveLocation.Valid {
		e.ArchiveLocation = &r.ArchiveLocation.String
	}
	if r.Category.Valid {
		c := domain.Category(r.Category.String)
		e.Category = &c
	}
	if r.ImportanceScore.Valid {
		e.ImportanceScore = &r.ImportanceScore.Float64
	}
	if r.ImportanceLevel.Valid {
		l := domain.ImportanceLevel(r.ImportanceLevel.String)
		e.ImportanceLevel = &l
	}
	if r.ImportanceMatchedRules.Valid {
		e.ImportanceMatchedRules = decodeStringList(r.ImportanceMatchedRules)
	}
	if r.ImportanceConfidence.Valid {
		e.ImportanceConfidence = &r.ImportanceConfidence.Float64
	}
	if r.AgeCategory.Valid {
		a := domain.AgeCategory(r.AgeCategory.String)
		e.AgeCategory = &a
	}
	if r.SizeCategory.Valid {
		sc := domain.SizeCategory(r.SizeCategory.String)
		e.SizeCategory = &sc
	}
	if r.RecencyScore.Valid {
		e.RecencyScore = &r.RecencyScore.Float64
	}
	if r.SizePenalty.Valid {
		e.SizePenalty = &r.SizePenalty.Float64
	}
	if r.GmailCategory.Valid {
		e.GmailCategory = &r.GmailCategory.String
	}
	if r.SpamScore.Valid {
		e.SpamScore = &r.SpamScore.Float64
	}
	if r.PromotionalScore.Valid {
		e.PromotionalScore = &r.PromotionalScore.Float64
	}
	if r.SocialScore.Valid {
		e.SocialScore = &r.SocialScore.Float64
	}
	if r.SpamIndicators.Valid {
		e.SpamIndicators = decodeStringList(r.SpamIndicators)
	}
	if r.PromotionalIndicators.Valid {
		e.PromotionalIndicators = decodeStringList(r.PromotionalIndicators)
	}
	if r.SocialIndicators.Valid {
		e.SocialIndicators = decodeStringList(r.SocialIndicators)
	}
	if r.AnalysisTimestamp.Valid {
		e.AnalysisTimestamp = &r.AnalysisTimestamp.Int64
	}
	if r.AnalysisVersion.Valid {
		e.AnalysisVersion = &r.AnalysisVersion.String
	}
	return e
}

func decodeStringList(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(ns.String), &list); err != nil {
		return nil
	}
	return list
}

func encodeStringList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// =============================================================================
// Email Index Operations
// =============================================================================

var upsertEmailQuery = fmt.Sprintf(`INSERT OR REPLACE INTO email_index (%s) VALUES (%s)`,
	emailIndexColumns, placeholders(33))

// resolveUserID applies the ownership fallback chain: caller value, then the
// row's own user, then the store's user.
func (s *Store) resolveUserID(email *domain.EmailIndex, userID string) string {
	if userID != "" {
		return userID
	}
	if email.UserID != "" {
		return email.UserID
	}
	return s.userID
}

func upsertArgs(email *domain.EmailIndex, userID string) []any {
	return []any{
		email.ID,
		email.ThreadID,
		email.Subject,
		email.Sender,
		encodeStringList(email.Recipients),
		email.Date,
		email.Year,
		email.SizeEstimate,
		boolToInt(email.HasAttachments),
		encodeStringList(email.Labels),
		email.Snippet,
		boolToInt(email.Archived),
		email.ArchiveDate,
		email.ArchiveLocation,
		email.Category,
		email.ImportanceScore,
		email.ImportanceLevel,
		nullableStringList(email.ImportanceMatchedRules),
		email.ImportanceConfidence,
		email.AgeCategory,
		email.SizeCategory,
		email.RecencyScore,
		email.SizePenalty,
		email.GmailCategory,
		email.SpamScore,
		email.PromotionalScore,
		email.SocialScore,
		nullableStringList(email.SpamIndicators),
		nullableStringList(email.PromotionalIndicators),
		nullableStringList(email.SocialIndicators),
		email.AnalysisTimestamp,
		email.AnalysisVersion,
		userID,
	}
}

// UpsertEmailIndex writes all columns of one email row.
func (s *Store) UpsertEmailIndex(ctx context.Context, email *domain.EmailIndex, userID string) error {
	if email == nil || email.ID == "" {
		return apperr.MissingField("id")
	}
	_, err := s.Execute(ctx, upsertEmailQuery, upsertArgs(email, s.resolveUserID(email, userID))...)
	return err
}

// BulkUpsertEmailIndex writes all rows in one transaction.
func (s *Store) BulkUpsertEmailIndex(ctx context.Context, emails []*domain.EmailIndex, userID string) error {
	if len(emails) == 0 {
		return nil
	}
	argSets := make([][]any, 0, len(emails))
	for _, email := range emails {
		if email == nil || email.ID == "" {
			return apperr.MissingField("id")
		}
		argSets = append(argSets, upsertArgs(email, s.resolveUserID(email, userID)))
	}
	_, err := s.ExecuteBatch(ctx, upsertEmailQuery, argSets)
	return err
}

// SearchEmails runs the criteria as a conjunctive WHERE clause. A window
// count rides along so one query yields both the page and the total.
func (s *Store) SearchEmails(ctx context.Context, criteria *domain.SearchCriteria) (*domain.SearchResult, error) {
	if criteria == nil {
		criteria = &domain.SearchCriteria{}
	}

	conditions := []string{"1=1"}
	args := []any{}

	if criteria.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, string(*criteria.Category))
	}
	if len(criteria.Categories) > 0 {
		conditions = append(conditions, fmt.Sprintf("category IN (%s)", placeholders(len(criteria.Categories))))
		for _, c := range criteria.Categories {
			args = append(args, string(c))
		}
	}
	if len(criteria.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id IN (%s)", placeholders(len(criteria.IDs))))
		for _, id := range criteria.IDs {
			args = append(args, id)
		}
	}
	if criteria.Year != nil {
		conditions = append(conditions, "year = ?")
		args = append(args, *criteria.Year)
	}
	if criteria.YearStart != nil {
		conditions = append(conditions, "year >= ?")
		args = append(args, *criteria.YearStart)
	}
	if criteria.YearEnd != nil {
		conditions = append(conditions, "year <= ?")
		args = append(args, *criteria.YearEnd)
	}
	if criteria.SizeMin != nil {
		conditions = append(conditions, "size_estimate >= ?")
		args = append(args, *criteria.SizeMin)
	}
	if criteria.SizeMax != nil {
		conditions = append(conditions, "size_estimate <= ?")
		args = append(args, *criteria.SizeMax)
	}
	if criteria.Archived != nil {
		conditions = append(conditions, "archived = ?")
		args = append(args, boolToInt(*criteria.Archived))
	}
	if criteria.Sender != "" {
		conditions = append(conditions, "sender LIKE ?")
		args = append(args, "%"+criteria.Sender+"%")
	}
	for _, label := range criteria.Labels {
		// Labels persist as a JSON array; membership is a quoted-token
		// substring match against the extracted text.
		conditions = append(conditions, `JSON_EXTRACT(labels, '$') LIKE ?`)
		escaped := strings.ReplaceAll(label, `"`, `\"`)
		args = append(args, `%"`+escaped+`"%`)
	}
	if criteria.HasAttachments != nil {
		conditions = append(conditions, "has_attachments = ?")
		args = append(args, boolToInt(*criteria.HasAttachments))
	}
	if criteria.UncategorizedOnly {
		conditions = append(conditions, "category IS NULL")
	}
	if criteria.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, criteria.UserID)
	}

	query := fmt.Sprintf(`SELECT *, COUNT(*) OVER() AS total_count FROM email_index WHERE %s ORDER BY date DESC`,
		strings.Join(conditions, " AND "))

	if criteria.Limit > 0 || criteria.Offset > 0 {
		limit := criteria.Limit
		if limit <= 0 {
			limit = -1 // no cap, offset still applies
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, criteria.Offset)
	}

	var rows []emailIndexRowWithCount
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.StoreError("search", err)
	}

	result := &domain.SearchResult{Emails: make([]*domain.EmailIndex, 0, len(rows))}
	for i := range rows {
		result.Emails = append(result.Emails, rows[i].toEntity())
		result.Total = rows[i].TotalCount
	}
	return result, nil
}

// importanceCeiling expands a level ceiling to the inclusive prefix set.
func importanceCeiling(max domain.ImportanceLevel) []string {
	levels := []string{"low", "medium", "high"}
	rank := domain.ImportanceRank(max)
	if rank < 0 {
		return nil
	}
	return levels[:rank+1]
}

// GetEmailsForCleanup selects unarchived cleanup candidates for the policy,
// least important and oldest first.
func (s *Store) GetEmailsForCleanup(ctx context.Context, policy *domain.CleanupPolicy, limit int, userID string) ([]*domain.EmailIndex, error) {
	if policy == nil {
		return nil, apperr.MissingField("policy")
	}

	nowMS := time.Now().UnixMilli()
	conditions := []string{"archived = 0"}
	args := []any{}

	crit := policy.Criteria
	if crit.AgeDaysMin != nil {
		cutoff := nowMS - int64(*crit.AgeDaysMin)*millisPerDay
		conditions = append(conditions, "date <= ?")
		args = append(args, cutoff)
	}
	if crit.ImportanceLevelMax != nil {
		set := importanceCeiling(*crit.ImportanceLevelMax)
		if len(set) > 0 {
			conditions = append(conditions, fmt.Sprintf("importance_level IN (%s)", placeholders(len(set))))
			for _, lvl := range set {
				args = append(args, lvl)
			}
		}
	}
	if crit.SizeMinBytes != nil {
		conditions = append(conditions, "size_estimate >= ?")
		args = append(args, *crit.SizeMinBytes)
	}
	if crit.SpamScoreMin != nil {
		conditions = append(conditions, "spam_score >= ?")
		args = append(args, *crit.SpamScoreMin)
	}
	if crit.PromotionalScoreMin != nil {
		conditions = append(conditions, "promotional_score >= ?")
		args = append(args, *crit.PromotionalScoreMin)
	}
	// Access predicates use NOT EXISTS so emails with no summary row stay
	// eligible.
	if crit.AccessScoreMax != nil {
		conditions = append(conditions, `NOT EXISTS (
			SELECT 1 FROM email_access_summary s
			WHERE s.email_id = email_index.id AND s.access_score > ?)`)
		args = append(args, *crit.AccessScoreMax)
	}
	if crit.NoAccessDays != nil {
		cutoff := nowMS - int64(*crit.NoAccessDays)*millisPerDay
		conditions = append(conditions, `NOT EXISTS (
			SELECT 1 FROM email_access_summary s
			WHERE s.email_id = email_index.id AND s.last_accessed_at > ?)`)
		args = append(args, cutoff)
	}
	if userID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, userID)
	}

	query := fmt.Sprintf(`SELECT * FROM email_index WHERE %s
		ORDER BY COALESCE(importance_score, 0) ASC, date ASC`,
		strings.Join(conditions, " AND "))
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []emailIndexRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.StoreError("cleanup query", err)
	}

	emails := make([]*domain.EmailIndex, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toEntity())
	}
	return emails, nil
}

// MarkEmailsAsDeleted soft-deletes: archived flag plus the trash location.
// Returns the number of rows actually changed.
func (s *Store) MarkEmailsAsDeleted(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`UPDATE email_index SET archived = 1, archive_location = ?, archive_date = ? WHERE id IN (%s)`,
		placeholders(len(ids)))
	args := []any{domain.ArchiveLocationTrash, time.Now().UnixMilli()}
	for _, id := range ids {
		args = append(args, id)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	res, err := s.Execute(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.Changes, nil
}

// DeleteEmailIDs physically removes rows. Returns the number actually
// removed.
func (s *Store) DeleteEmailIDs(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM email_index WHERE id IN (%s)`, placeholders(len(ids)))
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	res, err := s.Execute(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.Changes, nil
}

// =============================================================================
// Helpers
// =============================================================================

const millisPerDay = int64(24 * time.Hour / time.Millisecond)

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableStringList(list []string) any {
	if list == nil {
		return nil
	}
	return encodeStringList(list)
}
