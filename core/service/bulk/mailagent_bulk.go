// Package bulk implements the remote-first mutation paths: delete, restore,
// archive and the policy-driven cleanup batches. Every remote call carries at
// most 50 ids and consecutive batches respect the configured delay floor.
package bulk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
	"mailagent_server/core/service/archive"
	"mailagent_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBatchSize is the hard provider-side cap on ids per mutation call.
const maxBatchSize = 50

const millisPerDay = int64(24 * time.Hour / time.Millisecond)

// Config tunes batching. A zero BatchDelay disables the inter-batch pause,
// which tests use to run without wall-clock sleeps.
type Config struct {
	BatchSize  int
	BatchDelay time.Duration
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 || c.BatchSize > maxBatchSize {
		c.BatchSize = maxBatchSize
	}
	return c
}

// Mutator is the bulk mutation component. Mutations hit the remote client
// first and the local index second, so a failed batch never marks rows.
type Mutator struct {
	registry out.StoreRegistry
	archives out.ArchiveStore
	exporter *archive.Exporter
	cfg      Config
	log      zerolog.Logger
}

var _ in.BulkService = (*Mutator)(nil)

// NewMutator creates the bulk mutation service. exporter may be nil when
// export archiving is not configured.
func NewMutator(registry out.StoreRegistry, archives out.ArchiveStore, exporter *archive.Exporter, cfg Config, log zerolog.Logger) *Mutator {
	return &Mutator{
		registry: registry,
		archives: archives,
		exporter: exporter,
		cfg:      cfg.normalized(),
		log:      log.With().Str("component", "bulk_mutator").Logger(),
	}
}

// =============================================================================
// Delete
// =============================================================================

// DeleteEmails resolves candidates from the criteria surface and moves them
// to trash in batches. High-category rows are excluded unless the caller
// filtered on category "high" explicitly; archived rows are skipped unless
// SkipArchived is set to false.
func (m *Mutator) DeleteEmails(ctx context.Context, client out.RemoteMailClient, opts *domain.DeleteOptions, userID string) (*domain.DeleteResult, error) {
	if opts == nil {
		opts = &domain.DeleteOptions{}
	}

	store, err := m.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	criteria := &domain.SearchCriteria{
		Category: opts.Category,
		Year:     opts.Year,
		SizeMin:  opts.SizeThreshold,
		Labels:   opts.Labels,
		Sender:   opts.Sender,
		UserID:   userID,
		Limit:    opts.MaxCount,
	}
	if opts.SkipArchivedOrDefault() {
		notArchived := false
		criteria.Archived = &notArchived
	}

	found, err := store.SearchEmails(ctx, criteria)
	if err != nil {
		return nil, err
	}

	candidates := found.Emails
	if opts.Category == nil || *opts.Category != domain.CategoryHigh {
		kept := make([]*domain.EmailIndex, 0, len(candidates))
		for _, e := range candidates {
			if e.Category != nil && *e.Category == domain.CategoryHigh {
				continue
			}
			kept = append(kept, e)
		}
		candidates = kept
	}

	result := &domain.DeleteResult{Errors: []string{}}

	if opts.DryRun {
		result.Deleted = len(candidates)
		result.Errors = append(result.Errors, fmt.Sprintf("DRY RUN: %d emails would be deleted", len(candidates)))
		return result, nil
	}
	if len(candidates) == 0 {
		return result, nil
	}
	if client == nil {
		return nil, apperr.MissingField("remote client")
	}

	for i, batch := range chunk(emailIDs(candidates), m.cfg.BatchSize) {
		if i > 0 {
			if err := m.pause(ctx); err != nil {
				return result, err
			}
		}

		err := client.BatchModify(ctx, batch,
			[]string{domain.LabelTrash},
			[]string{domain.LabelInbox, domain.LabelUnread})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i+1, err))
			continue
		}

		if _, err := store.MarkEmailsAsDeleted(ctx, batch, userID); err != nil {
			return result, err
		}
		result.Deleted += len(batch)
	}

	m.log.Info().
		Str("user_id", userID).
		Int("deleted", result.Deleted).
		Int("errors", len(result.Errors)).
		Msg("bulk delete finished")
	return result, nil
}

// =============================================================================
// Restore
// =============================================================================

// RestoreEmails brings archived emails back to the inbox. Ids the user does
// not own resolve to nothing; when none remain the result reports zero
// restores and a single error line.
func (m *Mutator) RestoreEmails(ctx context.Context, client out.RemoteMailClient, opts *domain.RestoreOptions, userID string) (*domain.RestoreResult, error) {
	result := &domain.RestoreResult{Errors: []string{}}
	if opts == nil || len(opts.EmailIDs) == 0 {
		result.Errors = append(result.Errors, "no email ids supplied")
		return result, nil
	}

	store, err := m.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	archived := true
	found, err := store.SearchEmails(ctx, &domain.SearchCriteria{
		IDs:      opts.EmailIDs,
		Archived: &archived,
		UserID:   userID,
		Limit:    len(opts.EmailIDs),
	})
	if err != nil {
		return nil, err
	}
	if len(found.Emails) == 0 {
		result.Errors = append(result.Errors, "no archived emails matched the requested ids")
		return result, nil
	}
	if client == nil {
		return nil, apperr.MissingField("remote client")
	}

	addLabels := union([]string{domain.LabelInbox}, opts.RestoreLabels)

	for i, batch := range chunk(emailIDs(found.Emails), m.cfg.BatchSize) {
		if i > 0 {
			if err := m.pause(ctx); err != nil {
				return result, err
			}
		}

		err := client.BatchModify(ctx, batch, addLabels, []string{domain.LabelTrash})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i+1, err))
			continue
		}

		if err := m.clearArchiveState(ctx, store, batch, userID); err != nil {
			return result, err
		}
		result.Restored += len(batch)
	}

	m.log.Info().
		Str("user_id", userID).
		Int("restored", result.Restored).
		Int("errors", len(result.Errors)).
		Msg("bulk restore finished")
	return result, nil
}

// =============================================================================
// Archive
// =============================================================================

// ArchiveEmails archives candidates either on the provider (ARCHIVED label)
// or into an export file registered with the file ACL. Already-archived rows
// are never candidates.
func (m *Mutator) ArchiveEmails(ctx context.Context, client out.RemoteMailClient, opts *domain.ArchiveOptions, userID string) (*domain.ArchiveResult, error) {
	if opts == nil {
		opts = &domain.ArchiveOptions{}
	}
	method := opts.Method
	if method == "" {
		method = domain.ArchiveMethodGmail
	}
	if method != domain.ArchiveMethodGmail && method != domain.ArchiveMethodExport {
		return nil, apperr.ValidationFailed(fmt.Sprintf("unknown archive method %q", method))
	}

	store, err := m.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	notArchived := false
	found, err := store.SearchEmails(ctx, &domain.SearchCriteria{
		Category: opts.Category,
		Year:     opts.Year,
		Labels:   opts.Labels,
		Sender:   opts.Sender,
		Archived: &notArchived,
		UserID:   userID,
	})
	if err != nil {
		return nil, err
	}

	candidates := found.Emails
	if opts.OlderThanDays != nil {
		cutoff := time.Now().UnixMilli() - int64(*opts.OlderThanDays)*millisPerDay
		kept := make([]*domain.EmailIndex, 0, len(candidates))
		for _, e := range candidates {
			if e.Date <= cutoff {
				kept = append(kept, e)
			}
		}
		candidates = kept
	}

	result := &domain.ArchiveResult{Errors: []string{}}

	if opts.DryRun {
		result.Archived = len(candidates)
		result.Errors = append(result.Errors, fmt.Sprintf("DRY RUN: %d emails would be archived", len(candidates)))
		return result, nil
	}
	if len(candidates) == 0 {
		return result, nil
	}

	if method == domain.ArchiveMethodGmail {
		return m.archiveRemote(ctx, client, store, candidates, userID, result)
	}
	return m.archiveExport(ctx, store, candidates, userID, opts.ExportFormat, result)
}

func (m *Mutator) archiveRemote(ctx context.Context, client out.RemoteMailClient, store out.EmailStore, candidates []*domain.EmailIndex, userID string, result *domain.ArchiveResult) (*domain.ArchiveResult, error) {
	if client == nil {
		return nil, apperr.MissingField("remote client")
	}

	for i, batch := range chunk(emailIDs(candidates), m.cfg.BatchSize) {
		if i > 0 {
			if err := m.pause(ctx); err != nil {
				return result, err
			}
		}

		err := client.BatchModify(ctx, batch,
			[]string{domain.LabelArchived},
			[]string{domain.LabelInbox})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i+1, err))
			continue
		}

		if err := m.markArchived(ctx, store, batch, domain.ArchiveLocationGmail, userID); err != nil {
			return result, err
		}
		result.Archived += len(batch)
	}

	result.Location = domain.ArchiveLocationGmail
	m.log.Info().
		Str("user_id", userID).
		Int("archived", result.Archived).
		Int("errors", len(result.Errors)).
		Msg("gmail archive finished")
	return result, nil
}

func (m *Mutator) archiveExport(ctx context.Context, store out.EmailStore, candidates []*domain.EmailIndex, userID, format string, result *domain.ArchiveResult) (*domain.ArchiveResult, error) {
	if m.exporter == nil {
		return nil, apperr.ConfigError("export archiving is not configured")
	}

	artifact, err := m.exporter.Export(ctx, candidates, userID, "", format)
	if err != nil {
		return nil, err
	}

	for _, batch := range chunk(emailIDs(candidates), m.cfg.BatchSize) {
		if err := m.markArchived(ctx, store, batch, artifact.Path, userID); err != nil {
			return result, err
		}
		result.Archived += len(batch)
	}

	result.Location = artifact.Path
	result.RecordID = artifact.RecordID
	m.log.Info().
		Str("user_id", userID).
		Str("path", artifact.Path).
		Int("archived", result.Archived).
		Msg("export archive finished")
	return result, nil
}

// =============================================================================
// Archive Rules
// =============================================================================

// CreateArchiveRule validates and persists a user-owned auto-archive rule.
func (m *Mutator) CreateArchiveRule(ctx context.Context, rule *domain.ArchiveRule) (*domain.ArchiveRule, error) {
	if rule == nil {
		return nil, apperr.MissingField("rule")
	}
	if rule.UserID == "" {
		return nil, apperr.UserIDMissing()
	}
	if rule.Name == "" {
		return nil, apperr.MissingField("name")
	}
	switch rule.Action {
	case "":
		rule.Action = domain.ArchiveMethodGmail
	case domain.ArchiveMethodGmail, domain.ArchiveMethodExport:
	default:
		return nil, apperr.ValidationFailed(fmt.Sprintf("unknown archive action %q", rule.Action))
	}

	created := *rule
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	now := time.Now().UnixMilli()
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := m.archives.CreateRule(ctx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListArchiveRules returns the user's rules.
func (m *Mutator) ListArchiveRules(ctx context.Context, userID string) ([]*domain.ArchiveRule, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}
	return m.archives.ListRules(ctx, userID)
}

// =============================================================================
// Cleanup Batches
// =============================================================================

// BatchDeleteForCleanup runs one policy's mutation phase over prepared
// candidates. Safety gates apply first: preserve_important drops high and
// unanalyzed rows silently, max_emails_per_run truncates with a warning.
// Archive-action policies export locally and never call the remote client.
// A failed batch adds its size to Failed; the run stops once Failed reaches
// MaxFailures.
func (m *Mutator) BatchDeleteForCleanup(ctx context.Context, client out.RemoteMailClient, emails []*domain.EmailIndex, policy *domain.CleanupPolicy, opts *domain.CleanupOptions, userID string) (*domain.CleanupResult, error) {
	if policy == nil {
		return nil, apperr.MissingField("policy")
	}
	if opts == nil {
		opts = &domain.CleanupOptions{}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > maxBatchSize {
		batchSize = m.cfg.BatchSize
	}

	result := &domain.CleanupResult{Errors: []string{}}

	candidates := emails
	if policy.Safety.PreserveImportant {
		kept := make([]*domain.EmailIndex, 0, len(candidates))
		for _, e := range candidates {
			// Unanalyzed rows have unknown importance and are preserved too.
			if e.Category == nil || *e.Category == domain.CategoryHigh {
				continue
			}
			kept = append(kept, e)
		}
		candidates = kept
	}
	if max := policy.Safety.MaxEmailsPerRun; max > 0 && len(candidates) > max {
		m.log.Warn().
			Str("policy_id", policy.ID).
			Int("dropped", len(candidates)-max).
			Int("max_emails_per_run", max).
			Msg("cleanup candidates exceed per-run cap")
		candidates = candidates[:max]
	}

	if opts.DryRun {
		switch policy.Action.Type {
		case domain.CleanupActionArchive:
			result.Archived = len(candidates)
		default:
			result.Deleted = len(candidates)
		}
		result.StorageFreed = totalBytes(candidates)
		result.Errors = append(result.Errors, fmt.Sprintf("DRY RUN: %d emails would be cleaned", len(candidates)))
		return result, nil
	}
	if len(candidates) == 0 {
		return result, nil
	}

	store, err := m.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if policy.Action.Type == domain.CleanupActionArchive {
		return m.cleanupArchive(ctx, store, candidates, policy, batchSize, userID, result)
	}
	return m.cleanupDelete(ctx, client, store, candidates, opts, batchSize, userID, result)
}

func (m *Mutator) cleanupDelete(ctx context.Context, client out.RemoteMailClient, store out.EmailStore, candidates []*domain.EmailIndex, opts *domain.CleanupOptions, batchSize int, userID string, result *domain.CleanupResult) (*domain.CleanupResult, error) {
	if client == nil {
		return nil, apperr.MissingField("remote client")
	}

	for i, batch := range chunk(candidates, batchSize) {
		if i > 0 {
			if err := m.pause(ctx); err != nil {
				return result, err
			}
		}

		ids := emailIDs(batch)
		err := client.BatchModify(ctx, ids,
			[]string{domain.LabelTrash},
			[]string{domain.LabelInbox, domain.LabelUnread})
		if err != nil {
			result.Failed += len(batch)
			result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i+1, err))
			if opts.MaxFailures > 0 && result.Failed >= opts.MaxFailures {
				break
			}
			continue
		}

		if _, err := store.MarkEmailsAsDeleted(ctx, ids, userID); err != nil {
			return result, err
		}
		result.Deleted += len(batch)
		result.StorageFreed += totalBytes(batch)
	}

	m.log.Info().
		Str("user_id", userID).
		Int("deleted", result.Deleted).
		Int("failed", result.Failed).
		Int64("storage_freed", result.StorageFreed).
		Msg("cleanup delete finished")
	return result, nil
}

func (m *Mutator) cleanupArchive(ctx context.Context, store out.EmailStore, candidates []*domain.EmailIndex, policy *domain.CleanupPolicy, batchSize int, userID string, result *domain.CleanupResult) (*domain.CleanupResult, error) {
	if m.exporter == nil {
		return nil, apperr.ConfigError("export archiving is not configured")
	}

	artifact, err := m.exporter.Export(ctx, candidates, userID, "", policy.Action.ExportFormat)
	if err != nil {
		return nil, err
	}

	for i, batch := range chunk(candidates, batchSize) {
		if i > 0 {
			if err := m.pause(ctx); err != nil {
				return result, err
			}
		}
		if err := m.markArchived(ctx, store, emailIDs(batch), artifact.Path, userID); err != nil {
			return result, err
		}
		result.Archived += len(batch)
		result.StorageFreed += totalBytes(batch)
	}

	m.log.Info().
		Str("user_id", userID).
		Str("path", artifact.Path).
		Int("archived", result.Archived).
		Int64("storage_freed", result.StorageFreed).
		Msg("cleanup archive finished")
	return result, nil
}

// =============================================================================
// Internal
// =============================================================================

func (m *Mutator) storeFor(ctx context.Context, userID string) (out.EmailStore, error) {
	if userID == "" {
		return m.registry.Shared(ctx)
	}
	return m.registry.Get(ctx, userID)
}

// pause enforces the inter-batch delay floor, honoring cancellation.
func (m *Mutator) pause(ctx context.Context) error {
	if m.cfg.BatchDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.cfg.BatchDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Mutator) clearArchiveState(ctx context.Context, store out.EmailStore, ids []string, userID string) error {
	query := fmt.Sprintf(`UPDATE email_index SET archived = 0, archive_date = NULL, archive_location = NULL WHERE id IN (%s)`,
		idPlaceholders(len(ids)))
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	_, err := store.Execute(ctx, query, args...)
	return err
}

func (m *Mutator) markArchived(ctx context.Context, store out.EmailStore, ids []string, location, userID string) error {
	query := fmt.Sprintf(`UPDATE email_index SET archived = 1, archive_location = ?, archive_date = ? WHERE id IN (%s)`,
		idPlaceholders(len(ids)))
	args := []any{location, time.Now().UnixMilli()}
	for _, id := range ids {
		args = append(args, id)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	_, err := store.Execute(ctx, query, args...)
	return err
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

func emailIDs(emails []*domain.EmailIndex) []string {
	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		ids = append(ids, e.ID)
	}
	return ids
}

func totalBytes(emails []*domain.EmailIndex) int64 {
	var sum int64
	for _, e := range emails {
		sum += e.SizeEstimate
	}
	return sum
}

func union(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	merged := make([]string, 0, len(base)+len(extra))
	for _, s := range base {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
	}
	for _, s := range extra {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
	}
	return merged
}

func idPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
