package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// =============================================================================
// Job Store (process-wide, backed by the shared store)
// =============================================================================

const jobSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'IN_PROGRESS', 'COMPLETED', 'FAILED', 'CANCELLED')),
	request_params TEXT,
	progress INTEGER DEFAULT 0 CHECK (progress >= 0 AND progress <= 100),
	results TEXT,
	error_details TEXT,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER,
	updated_at INTEGER NOT NULL,
	user_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS cleanup_job_details (
	job_id TEXT PRIMARY KEY,
	policy_id TEXT,
	triggered_by TEXT,
	priority TEXT,
	batch_size INTEGER DEFAULT 0,
	target_emails INTEGER DEFAULT 0,
	emails_analyzed INTEGER DEFAULT 0,
	emails_cleaned INTEGER DEFAULT 0,
	storage_freed INTEGER DEFAULT 0,
	errors_encountered INTEGER DEFAULT 0,
	current_batch INTEGER DEFAULT 0,
	total_batches INTEGER DEFAULT 0
);
`

type jobRow struct {
	JobID         string         `db:"job_id"`
	JobType       string         `db:"job_type"`
	Status        string         `db:"status"`
	RequestParams sql.NullString `db:"request_params"`
	Progress      int            `db:"progress"`
	Results       sql.NullString `db:"results"`
	ErrorDetails  sql.NullString `db:"error_details"`
	CreatedAt     int64          `db:"created_at"`
	StartedAt     sql.NullInt64  `db:"started_at"`
	CompletedAt   sql.NullInt64  `db:"completed_at"`
	UpdatedAt     int64          `db:"updated_at"`
	UserID        string         `db:"user_id"`
}

func (r *jobRow) toEntity() *domain.Job {
	job := &domain.Job{
		JobID:        r.JobID,
		JobType:      domain.JobType(r.JobType),
		Status:       domain.JobStatus(r.Status),
		Progress:     r.Progress,
		ErrorDetails: r.ErrorDetails.String,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt.Int64,
		CompletedAt:  r.CompletedAt.Int64,
		UpdatedAt:    r.UpdatedAt,
		UserID:       r.UserID,
	}
	if r.RequestParams.Valid && r.RequestParams.String != "" {
		json.Unmarshal([]byte(r.RequestParams.String), &job.RequestParams)
	}
	if r.Results.Valid && r.Results.String != "" {
		json.Unmarshal([]byte(r.Results.String), &job.Results)
	}
	return job
}

// JobStoreAdapter implements out.JobStore over the shared EmailStore's raw
// surface.
type JobStoreAdapter struct {
	store out.EmailStore
	log   zerolog.Logger
}

// NewJobStore bootstraps the job tables on the given store.
func NewJobStore(ctx context.Context, store out.EmailStore, log zerolog.Logger) (*JobStoreAdapter, error) {
	a := &JobStoreAdapter{
		store: store,
		log:   log.With().Str("component", "job_store").Logger(),
	}
	if _, err := store.Execute(ctx, jobSchema); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateJob inserts a PENDING job row.
func (a *JobStoreAdapter) CreateJob(ctx context.Context, job *domain.Job) error {
	if job == nil || job.JobID == "" {
		return apperr.MissingField("job_id")
	}
	if job.UserID == "" {
		return apperr.UserIDMissing()
	}
	now := time.Now().UnixMilli()
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	params, err := encodeJSONMap(job.RequestParams)
	if err != nil {
		return apperr.BadRequest("request params not serializable").WithError(err)
	}
	results, err := encodeJSONMap(job.Results)
	if err != nil {
		return apperr.BadRequest("results not serializable").WithError(err)
	}

	_, err = a.store.Execute(ctx, `
		INSERT INTO jobs (job_id, job_type, status, request_params, progress, results,
			error_details, created_at, started_at, completed_at, updated_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, string(job.JobType), string(job.Status), params, job.Progress, results,
		nullableString(job.ErrorDetails), job.CreatedAt, nullableInt64(job.StartedAt),
		nullableInt64(job.CompletedAt), job.UpdatedAt, job.UserID)
	return err
}

// GetJob loads one job scoped to its owner.
func (a *JobStoreAdapter) GetJob(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	query := `SELECT * FROM jobs WHERE job_id = ?`
	args := []any{jobID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	var row jobRow
	if err := a.store.Get(ctx, &row, query, args...); err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, apperr.JobNotFound(jobID)
		}
		return nil, err
	}
	return row.toEntity(), nil
}

// ListJobs returns the user's jobs, newest first.
func (a *JobStoreAdapter) ListJobs(ctx context.Context, userID string, status *domain.JobStatus, limit int) ([]*domain.Job, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}

	query := `SELECT * FROM jobs WHERE user_id = ?`
	args := []any{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []jobRow
	if err := a.store.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toEntity())
	}
	return jobs, nil
}

// PendingJobs scans PENDING rows across all users, oldest first. The worker
// runner uses it to requeue jobs stranded by a restart. olderThan keeps the
// periodic poll from re-adding jobs that are already sitting in a live
// in-process queue; the CAS transition to IN_PROGRESS makes an occasional
// duplicate harmless. Deliberately not part of the JobStore port, which is
// always user-scoped.
func (a *JobStoreAdapter) PendingJobs(ctx context.Context, olderThan time.Duration, limit int) ([]domain.QueueItem, error) {
	query := `SELECT * FROM jobs WHERE status = ? AND created_at <= ? ORDER BY created_at ASC`
	args := []any{string(domain.JobPending), time.Now().Add(-olderThan).UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []jobRow
	if err := a.store.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	items := make([]domain.QueueItem, 0, len(rows))
	for i := range rows {
		items = append(items, domain.QueueItem{JobID: rows[i].JobID, UserID: rows[i].UserID})
	}
	return items, nil
}

// transitionSources maps a target status to the statuses allowed to reach it.
func transitionSources(to domain.JobStatus) []domain.JobStatus {
	switch to {
	case domain.JobInProgress:
		return []domain.JobStatus{domain.JobPending}
	case domain.JobCompleted, domain.JobFailed:
		return []domain.JobStatus{domain.JobInProgress}
	case domain.JobCancelled:
		return []domain.JobStatus{domain.JobPending, domain.JobInProgress}
	default:
		return nil
	}
}

// Transition compare-and-sets the job status. started_at is stamped when the
// job leaves PENDING, completed_at when it reaches a terminal status.
func (a *JobStoreAdapter) Transition(ctx context.Context, jobID, userID string, to domain.JobStatus, update *out.JobUpdate) error {
	sources := transitionSources(to)
	if len(sources) == 0 {
		return apperr.JobInvalidTransition("?", string(to))
	}

	now := time.Now().UnixMilli()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), now}

	if to == domain.JobInProgress {
		startedAt := now
		if update != nil && update.StartedAt != 0 {
			startedAt = update.StartedAt
		}
		sets = append(sets, "started_at = ?")
		args = append(args, startedAt)
	}
	if to.Terminal() {
		completedAt := now
		if update != nil && update.CompletedAt != 0 {
			completedAt = update.CompletedAt
		}
		sets = append(sets, "completed_at = ?")
		args = append(args, completedAt)
	}
	if update != nil {
		if update.Progress != nil {
			sets = append(sets, "progress = ?")
			args = append(args, *update.Progress)
		}
		if update.Results != nil {
			encoded, err := encodeJSONMap(update.Results)
			if err != nil {
				return apperr.BadRequest("results not serializable").WithError(err)
			}
			sets = append(sets, "results = ?")
			args = append(args, encoded)
		}
		if update.ErrorDetails != "" {
			sets = append(sets, "error_details = ?")
			args = append(args, update.ErrorDetails)
		}
	}

	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE job_id = ? AND status IN (%s)`,
		strings.Join(sets, ", "), placeholders(len(sources)))
	args = append(args, jobID)
	for _, s := range sources {
		args = append(args, string(s))
	}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	res, err := a.store.Execute(ctx, query, args...)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		current, getErr := a.GetJob(ctx, jobID, userID)
		if getErr != nil {
			return apperr.JobNotFound(jobID)
		}
		return apperr.JobInvalidTransition(string(current.Status), string(to))
	}

	a.log.Debug().Str("job_id", jobID).Str("status", string(to)).Msg("job transitioned")
	return nil
}

// UpdateProgress sets the progress column without touching status.
func (a *JobStoreAdapter) UpdateProgress(ctx context.Context, jobID, userID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	query := `UPDATE jobs SET progress = ?, updated_at = ? WHERE job_id = ?`
	args := []any{progress, time.Now().UnixMilli(), jobID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	res, err := a.store.Execute(ctx, query, args...)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		return apperr.JobNotFound(jobID)
	}
	return nil
}

// CleanupOldJobs deletes jobs created more than maxAgeDays ago. Zero deletes
// everything in scope. Cleanup details cascade.
func (a *JobStoreAdapter) CleanupOldJobs(ctx context.Context, maxAgeDays int, userID string) (int64, error) {
	cutoff := time.Now().UnixMilli() - int64(maxAgeDays)*millisPerDay

	detailsQuery := `DELETE FROM cleanup_job_details WHERE job_id IN (SELECT job_id FROM jobs WHERE created_at < ?`
	query := `DELETE FROM jobs WHERE created_at < ?`
	args := []any{cutoff}
	if userID != "" {
		detailsQuery += ` AND user_id = ?`
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	detailsQuery += `)`

	if _, err := a.store.Execute(ctx, detailsQuery, args...); err != nil {
		return 0, err
	}
	res, err := a.store.Execute(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.Changes, nil
}

// =============================================================================
// Cleanup Details
// =============================================================================

// CreateCleanupDetails inserts the cleanup side row for a job.
func (a *JobStoreAdapter) CreateCleanupDetails(ctx context.Context, details *domain.CleanupJobDetails) error {
	if details == nil || details.JobID == "" {
		return apperr.MissingField("job_id")
	}
	_, err := a.store.Execute(ctx, `
		INSERT INTO cleanup_job_details (job_id, policy_id, triggered_by, priority, batch_size,
			target_emails, emails_analyzed, emails_cleaned, storage_freed, errors_encountered,
			current_batch, total_batches)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		details.JobID, details.PolicyID, string(details.TriggeredBy), string(details.Priority),
		details.BatchSize, details.TargetEmails, details.EmailsAnalyzed, details.EmailsCleaned,
		details.StorageFreed, details.ErrorsEncountered, details.CurrentBatch, details.TotalBatches)
	return err
}

// UpdateCleanupDetails rewrites the mutable progress counters.
func (a *JobStoreAdapter) UpdateCleanupDetails(ctx context.Context, details *domain.CleanupJobDetails) error {
	if details == nil || details.JobID == "" {
		return apperr.MissingField("job_id")
	}
	res, err := a.store.Execute(ctx, `
		UPDATE cleanup_job_details SET emails_analyzed = ?, emails_cleaned = ?, storage_freed = ?,
			errors_encountered = ?, current_batch = ?, total_batches = ?, target_emails = ?
		WHERE job_id = ?`,
		details.EmailsAnalyzed, details.EmailsCleaned, details.StorageFreed,
		details.ErrorsEncountered, details.CurrentBatch, details.TotalBatches,
		details.TargetEmails, details.JobID)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		return apperr.NotFound("cleanup details")
	}
	return nil
}

// GetCleanupDetails loads the cleanup side row.
func (a *JobStoreAdapter) GetCleanupDetails(ctx context.Context, jobID string) (*domain.CleanupJobDetails, error) {
	var row struct {
		JobID             string         `db:"job_id"`
		PolicyID          sql.NullString `db:"policy_id"`
		TriggeredBy       sql.NullString `db:"triggered_by"`
		Priority          sql.NullString `db:"priority"`
		BatchSize         int            `db:"batch_size"`
		TargetEmails      int            `db:"target_emails"`
		EmailsAnalyzed    int            `db:"emails_analyzed"`
		EmailsCleaned     int            `db:"emails_cleaned"`
		StorageFreed      int64          `db:"storage_freed"`
		ErrorsEncountered int            `db:"errors_encountered"`
		CurrentBatch      int            `db:"current_batch"`
		TotalBatches      int            `db:"total_batches"`
	}
	if err := a.store.Get(ctx, &row, `SELECT * FROM cleanup_job_details WHERE job_id = ?`, jobID); err != nil {
		return nil, err
	}
	return &domain.CleanupJobDetails{
		JobID:             row.JobID,
		PolicyID:          row.PolicyID.String,
		TriggeredBy:       domain.TriggeredBy(row.TriggeredBy.String),
		Priority:          domain.JobPriority(row.Priority.String),
		BatchSize:         row.BatchSize,
		TargetEmails:      row.TargetEmails,
		EmailsAnalyzed:    row.EmailsAnalyzed,
		EmailsCleaned:     row.EmailsCleaned,
		StorageFreed:      row.StorageFreed,
		ErrorsEncountered: row.ErrorsEncountered,
		CurrentBatch:      row.CurrentBatch,
		TotalBatches:      row.TotalBatches,
	}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func encodeJSONMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
