// Package out defines outbound ports (driven ports) for the application.
// These interfaces represent dependencies that the application needs.
package out

import (
	"context"

	"mailagent_server/core/domain"
)

// ExecResult reports one DML/DDL execution.
type ExecResult struct {
	Changes int64 `json:"changes"`
	LastID  int64 `json:"last_id"`
}

// EmailStore is the per-user embedded store contract. One writer at a time;
// readers are concurrent. All SQL is parameterized by the implementation.
type EmailStore interface {
	// Raw surface. Execute runs one statement; ExecuteBatch runs the same
	// statement once per parameter vector inside a single transaction,
	// rolling back on the first error.
	Execute(ctx context.Context, query string, args ...any) (ExecResult, error)
	ExecuteBatch(ctx context.Context, query string, argSets [][]any) (ExecResult, error)
	Get(ctx context.Context, dest any, query string, args ...any) error
	Select(ctx context.Context, dest any, query string, args ...any) error

	// Email index operations.
	UpsertEmailIndex(ctx context.Context, email *domain.EmailIndex, userID string) error
	BulkUpsertEmailIndex(ctx context.Context, emails []*domain.EmailIndex, userID string) error
	SearchEmails(ctx context.Context, criteria *domain.SearchCriteria) (*domain.SearchResult, error)
	GetEmailsForCleanup(ctx context.Context, policy *domain.CleanupPolicy, limit int, userID string) ([]*domain.EmailIndex, error)
	MarkEmailsAsDeleted(ctx context.Context, ids []string, userID string) (int64, error)
	DeleteEmailIDs(ctx context.Context, ids []string, userID string) (int64, error)

	// Identity and lifecycle.
	UserID() string // empty for the legacy shared store
	Path() string
	WaitForIdle()
	Close() error
}

// StoreRegistry lazily maps user_id -> EmailStore under a base path. It never
// hands the same store to two users and never falls back across users.
type StoreRegistry interface {
	Get(ctx context.Context, userID string) (EmailStore, error)
	Shared(ctx context.Context) (EmailStore, error)
	Exists(userID string) bool
	Create(ctx context.Context, userID string) (EmailStore, error)
	Delete(userID string) error
	List() ([]string, error)
	Cleanup() error
}

// JobUpdate carries the mutable fields of one CAS status transition.
// Zero-valued fields are left untouched.
type JobUpdate struct {
	StartedAt    int64          `json:"started_at,omitempty"`
	CompletedAt  int64          `json:"completed_at,omitempty"`
	Progress     *int           `json:"progress,omitempty"`
	Results      map[string]any `json:"results,omitempty"`
	ErrorDetails string         `json:"error_details,omitempty"`
}

// JobStore is the process-wide durable job record store. Every read takes a
// user_id so jobs never leak across tenants.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID, userID string) (*domain.Job, error)
	ListJobs(ctx context.Context, userID string, status *domain.JobStatus, limit int) ([]*domain.Job, error)
	// Transition compare-and-sets the status; it fails with
	// JOB_INVALID_TRANSITION when the stored status does not allow it.
	Transition(ctx context.Context, jobID, userID string, to domain.JobStatus, update *JobUpdate) error
	UpdateProgress(ctx context.Context, jobID, userID string, progress int) error
	CleanupOldJobs(ctx context.Context, maxAgeDays int, userID string) (int64, error)

	// Cleanup side table.
	CreateCleanupDetails(ctx context.Context, details *domain.CleanupJobDetails) error
	UpdateCleanupDetails(ctx context.Context, details *domain.CleanupJobDetails) error
	GetCleanupDetails(ctx context.Context, jobID string) (*domain.CleanupJobDetails, error)
}

// JobQueue is the in-memory FIFO of queue items ready to run. AddJob never
// blocks producers; Dequeue blocks until an item arrives or Stop is called,
// in which case ok is false.
type JobQueue interface {
	AddJob(item domain.QueueItem)
	Dequeue() (item domain.QueueItem, ok bool)
	Length() int
	Stop()
}

// SearchStore persists saved searches.
type SearchStore interface {
	SaveSearch(ctx context.Context, search *domain.SavedSearch) error
	ListSavedSearches(ctx context.Context, userID string) ([]*domain.SavedSearch, error)
	GetSavedSearch(ctx context.Context, id, userID string) (*domain.SavedSearch, error)
	DeleteSavedSearch(ctx context.Context, id, userID string) error
}

// ArchiveStore persists archive rules and archive records.
type ArchiveStore interface {
	CreateRule(ctx context.Context, rule *domain.ArchiveRule) error
	ListRules(ctx context.Context, userID string) ([]*domain.ArchiveRule, error)
	CreateRecord(ctx context.Context, record *domain.ArchiveRecord) error
	ListRecords(ctx context.Context, userID string, limit int) ([]*domain.ArchiveRecord, error)
}

// PolicyStore persists cleanup policies.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, policy *domain.CleanupPolicy) error
	GetPolicy(ctx context.Context, id, userID string) (*domain.CleanupPolicy, error)
	ListPolicies(ctx context.Context, userID string) ([]*domain.CleanupPolicy, error)
	DeletePolicy(ctx context.Context, id, userID string) error
}

// AccessTracker records raw access events and maintains the denormalized
// summary read by cleanup predicates. Recording failures are logged and
// swallowed by callers; access capture never blocks the main path.
type AccessTracker interface {
	RecordEmailAccess(ctx context.Context, userID, emailID string, accessType domain.AccessType) error
	RecordSearchActivity(ctx context.Context, activity *domain.SearchActivity) error
	GetSummary(ctx context.Context, userID, emailID string) (*domain.EmailAccessSummary, error)
}
