package persistence

import (
	"context"
	"database/sql"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// =============================================================================
// Saved Searches
// =============================================================================

// SearchStoreAdapter persists saved searches in each user's database.
type SearchStoreAdapter struct {
	registry out.StoreRegistry
}

func NewSearchStore(registry out.StoreRegistry) *SearchStoreAdapter {
	return &SearchStoreAdapter{registry: registry}
}

func (a *SearchStoreAdapter) SaveSearch(ctx context.Context, search *domain.SavedSearch) error {
	if search == nil || search.UserID == "" {
		return apperr.UserIDMissing()
	}
	if search.Name == "" {
		return apperr.MissingField("name")
	}
	store, err := a.registry.Get(ctx, search.UserID)
	if err != nil {
		return err
	}

	if search.ID == "" {
		search.ID = uuid.New().String()
	}
	if search.CreatedAt == 0 {
		search.CreatedAt = time.Now().UnixMilli()
	}
	criteria, err := json.Marshal(search.Criteria)
	if err != nil {
		return apperr.BadRequest("criteria not serializable").WithError(err)
	}

	_, err = store.Execute(ctx, `
		INSERT OR REPLACE INTO saved_searches (id, user_id, name, criteria, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		search.ID, search.UserID, search.Name, string(criteria), search.CreatedAt)
	return err
}

func (a *SearchStoreAdapter) ListSavedSearches(ctx context.Context, userID string) ([]*domain.SavedSearch, error) {
	store, err := a.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var rows []savedSearchRow
	if err := store.Select(ctx, &rows, `
		SELECT * FROM saved_searches WHERE user_id = ? ORDER BY created_at DESC`, userID); err != nil {
		return nil, err
	}
	searches := make([]*domain.SavedSearch, 0, len(rows))
	for i := range rows {
		searches = append(searches, rows[i].toEntity())
	}
	return searches, nil
}

func (a *SearchStoreAdapter) GetSavedSearch(ctx context.Context, id, userID string) (*domain.SavedSearch, error) {
	store, err := a.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var row savedSearchRow
	if err := store.Get(ctx, &row, `
		SELECT * FROM saved_searches WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (a *SearchStoreAdapter) DeleteSavedSearch(ctx context.Context, id, userID string) error {
	store, err := a.registry.Get(ctx, userID)
	if err != nil {
		return err
	}

	res, err := store.Execute(ctx, `DELETE FROM saved_searches WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		return apperr.NotFound("saved search")
	}
	return nil
}

type savedSearchRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Name      string `db:"name"`
	Criteria  string `db:"criteria"`
	CreatedAt int64  `db:"created_at"`
}

func (r *savedSearchRow) toEntity() *domain.SavedSearch {
	s := &domain.SavedSearch{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
	json.Unmarshal([]byte(r.Criteria), &s.Criteria)
	return s
}

// =============================================================================
// Archive Rules & Records
// =============================================================================

// ArchiveStoreAdapter persists archive rules and records per user.
type ArchiveStoreAdapter struct {
	registry out.StoreRegistry
}

func NewArchiveStore(registry out.StoreRegistry) *ArchiveStoreAdapter {
	return &ArchiveStoreAdapter{registry: registry}
}

func (a *ArchiveStoreAdapter) CreateRule(ctx context.Context, rule *domain.ArchiveRule) error {
	if rule == nil || rule.UserID == "" {
		return apperr.UserIDMissing()
	}
	if rule.Name == "" {
		return apperr.MissingField("name")
	}
	store, err := a.registry.Get(ctx, rule.UserID)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt == 0 {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	criteria, err := json.Marshal(rule.Criteria)
	if err != nil {
		return apperr.BadRequest("criteria not serializable").WithError(err)
	}

	_, err = store.Execute(ctx, `
		INSERT OR REPLACE INTO archive_rules (id, user_id, name, criteria, action, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.UserID, rule.Name, string(criteria), string(rule.Action),
		boolToInt(rule.Enabled), rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (a *ArchiveStoreAdapter) ListRules(ctx context.Context, userID string) ([]*domain.ArchiveRule, error) {
	store, err := a.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var rows []archiveRuleRow
	if err := store.Select(ctx, &rows, `
		SELECT * FROM archive_rules WHERE user_id = ? ORDER BY created_at DESC`, userID); err != nil {
		return nil, err
	}
	rules := make([]*domain.ArchiveRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toEntity())
	}
	return rules, nil
}

func (a *ArchiveStoreAdapter) CreateRecord(ctx context.Context, record *domain.ArchiveRecord) error {
	if record == nil || record.UserID == "" {
		return apperr.UserIDMissing()
	}
	store, err := a.registry.Get(ctx, record.UserID)
	if err != nil {
		return err
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().UnixMilli()
	}

	_, err = store.Execute(ctx, `
		INSERT INTO archive_records (id, user_id, method, location, email_count, size_bytes, format, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.UserID, string(record.Method), record.Location,
		record.EmailCount, record.SizeBytes, nullableString(record.Format), record.CreatedAt)
	return err
}

func (a *ArchiveStoreAdapter) ListRecords(ctx context.Context, userID string, limit int) ([]*domain.ArchiveRecord, error) {
	store, err := a.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	query := `SELECT * FROM archive_records WHERE user_id = ? ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []archiveRecordRow
	if err := store.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	records := make([]*domain.ArchiveRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toEntity())
	}
	return records, nil
}

type archiveRuleRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Name      string `db:"name"`
	Criteria  string `db:"criteria"`
	Action    string `db:"action"`
	Enabled   int    `db:"enabled"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r *archiveRuleRow) toEntity() *domain.ArchiveRule {
	rule := &domain.ArchiveRule{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Action:    domain.ArchiveMethod(r.Action),
		Enabled:   r.Enabled != 0,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	json.Unmarshal([]byte(r.Criteria), &rule.Criteria)
	return rule
}

type archiveRecordRow struct {
	ID         string         `db:"id"`
	UserID     string         `db:"user_id"`
	Method     string         `db:"method"`
	Location   sql.NullString `db:"location"`
	EmailCount int            `db:"email_count"`
	SizeBytes  int64          `db:"size_bytes"`
	Format     sql.NullString `db:"format"`
	CreatedAt  int64          `db:"created_at"`
}

func (r *archiveRecordRow) toEntity() *domain.ArchiveRecord {
	return &domain.ArchiveRecord{
		ID:         r.ID,
		UserID:     r.UserID,
		Method:     domain.ArchiveMethod(r.Method),
		Location:   r.Location.String,
		EmailCount: r.EmailCount,
		SizeBytes:  r.SizeBytes,
		Format:     r.Format.String,
		CreatedAt:  r.CreatedAt,
	}
}

// =============================================================================
// Cleanup Policies
// =============================================================================

// PolicyStoreAdapter persists cleanup policies per user.
type PolicyStoreAdapter struct {
	registry out.StoreRegistry
}

func NewPolicyStore(registry out.StoreRegistry) *PolicyStoreAdapter {
	return &PolicyStoreAdapter{registry: registry}
}

func (a *PolicyStoreAdapter) CreatePolicy(ctx context.Context, policy *domain.CleanupPolicy) error {
	if policy == nil || policy.UserID == "" {
		return apperr.UserIDMissing()
	}
	if policy.Name == "" {
		return apperr.MissingField("name")
	}
	store, err := a.registry.Get(ctx, policy.UserID)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}
	if policy.CreatedAt == 0 {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	criteria, err := json.Marshal(policy.Criteria)
	if err != nil {
		return apperr.BadRequest("criteria not serializable").WithError(err)
	}
	action, err := json.Marshal(policy.Action)
	if err != nil {
		return apperr.BadRequest("action not serializable").WithError(err)
	}
	safety, err := json.Marshal(policy.Safety)
	if err != nil {
		return apperr.BadRequest("safety not serializable").WithError(err)
	}
	var schedule any
	if policy.Schedule != nil {
		b, err := json.Marshal(policy.Schedule)
		if err != nil {
			return apperr.BadRequest("schedule not serializable").WithError(err)
		}
		schedule = string(b)
	}

	_, err = store.Execute(ctx, `
		INSERT OR REPLACE INTO cleanup_policies (id, user_id, name, enabled, criteria, action, safety, schedule, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		policy.ID, policy.UserID, policy.Name, boolToInt(policy.Enabled),
		string(criteria), string(action), string(safety), schedule,
		policy.CreatedAt, policy.UpdatedAt)
	return err
}

func (a *PolicyStoreAdapter) GetPolicy(ctx context.Context, id, userID string) (*domain.CleanupPolicy, error) {
	store, err := a.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var row cleanupPolicyRow
	if err := store.Get(ctx, &row, `
		SELECT * FROM cleanup_policies WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (a *PolicyStoreAdapter) ListPolicies(ctx context.Context, userID string) ([]*domain.CleanupPolicy, error) {
	store, err := a.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var rows []cleanupPolicyRow
	if err := store.Select(ctx, &rows, `
		SELECT * FROM cleanup_policies WHERE user_id = ? ORDER BY created_at DESC`, userID); err != nil {
		return nil, err
	}
	policies := make([]*domain.CleanupPolicy, 0, len(rows))
	for i := range rows {
		policies = append(policies, rows[i].toEntity())
	}
	return policies, nil
}

func (a *PolicyStoreAdapter) DeletePolicy(ctx context.Context, id, userID string) error {
	store, err := a.registry.Get(ctx, userID)
	if err != nil {
		return err
	}

	res, err := store.Execute(ctx, `DELETE FROM cleanup_policies WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		return apperr.NotFound("cleanup policy")
	}
	return nil
}

type cleanupPolicyRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Name      string         `db:"name"`
	Enabled   int            `db:"enabled"`
	Criteria  string         `db:"criteria"`
	Action    string         `db:"action"`
	Safety    string         `db:"safety"`
	Schedule  sql.NullString `db:"schedule"`
	CreatedAt int64          `db:"created_at"`
	UpdatedAt int64          `db:"updated_at"`
}

func (r *cleanupPolicyRow) toEntity() *domain.CleanupPolicy {
	p := &domain.CleanupPolicy{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Enabled:   r.Enabled != 0,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	json.Unmarshal([]byte(r.Criteria), &p.Criteria)
	json.Unmarshal([]byte(r.Action), &p.Action)
	json.Unmarshal([]byte(r.Safety), &p.Safety)
	if r.Schedule.Valid && r.Schedule.String != "" {
		var s domain.CleanupSchedule
		if json.Unmarshal([]byte(r.Schedule.String), &s) == nil {
			p.Schedule = &s
		}
	}
	return p
}
