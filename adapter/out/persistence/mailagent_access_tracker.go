package persistence

import (
	"context"
	"database/sql"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/rs/zerolog"
)

// =============================================================================
// Access Tracker
// =============================================================================

// Per-event score increments. The summary score is additive and capped at 1;
// staleness is judged at read time via last_accessed_at.
const (
	accessScoreStep     = 0.1
	appearanceScoreStep = 0.02
)

// AccessTrackerAdapter implements out.AccessTracker over one user's store.
type AccessTrackerAdapter struct {
	store out.EmailStore
	log   zerolog.Logger
}

func NewAccessTracker(store out.EmailStore, log zerolog.Logger) *AccessTrackerAdapter {
	return &AccessTrackerAdapter{
		store: store,
		log:   log.With().Str("component", "access_tracker").Logger(),
	}
}

// RecordEmailAccess appends the raw event and bumps the summary row.
func (a *AccessTrackerAdapter) RecordEmailAccess(ctx context.Context, userID, emailID string, accessType domain.AccessType) error {
	if userID == "" {
		return apperr.UserIDMissing()
	}
	if emailID == "" {
		return apperr.MissingField("email_id")
	}
	now := time.Now().UnixMilli()

	if _, err := a.store.Execute(ctx, `
		INSERT INTO email_access_log (user_id, email_id, access_type, accessed_at)
		VALUES (?, ?, ?, ?)`, userID, emailID, string(accessType), now); err != nil {
		return err
	}

	_, err := a.store.Execute(ctx, `
		INSERT INTO email_access_summary (email_id, user_id, access_count, search_appearances, last_accessed_at, access_score)
		VALUES (?, ?, 1, 0, ?, ?)
		ON CONFLICT(email_id, user_id) DO UPDATE SET
			access_count = access_count + 1,
			last_accessed_at = excluded.last_accessed_at,
			access_score = MIN(1.0, access_score + ?)`,
		emailID, userID, now, accessScoreStep, accessScoreStep)
	return err
}

// RecordSearchActivity persists the search row, bumps search_appearances for
// every surfaced email and records an open event for interacted ones.
func (a *AccessTrackerAdapter) RecordSearchActivity(ctx context.Context, activity *domain.SearchActivity) error {
	if activity == nil {
		return apperr.MissingField("activity")
	}
	if activity.UserID == "" {
		return apperr.UserIDMissing()
	}
	now := activity.Timestamp
	if now == 0 {
		now = time.Now().UnixMilli()
	}

	res, err := a.store.Execute(ctx, `
		INSERT INTO search_activity (user_id, query, email_ids, interacted_ids, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		activity.UserID, activity.Query,
		encodeStringList(activity.EmailIDs), encodeStringList(activity.InteractedIDs), now)
	if err != nil {
		return err
	}
	activity.ID = res.LastID

	if len(activity.EmailIDs) > 0 {
		argSets := make([][]any, 0, len(activity.EmailIDs))
		for _, id := range activity.EmailIDs {
			argSets = append(argSets, []any{id, activity.UserID, now, appearanceScoreStep, appearanceScoreStep})
		}
		if _, err := a.store.ExecuteBatch(ctx, `
			INSERT INTO email_access_summary (email_id, user_id, access_count, search_appearances, last_accessed_at, access_score)
			VALUES (?, ?, 0, 1, ?, ?)
			ON CONFLICT(email_id, user_id) DO UPDATE SET
				search_appearances = search_appearances + 1,
				last_accessed_at = excluded.last_accessed_at,
				access_score = MIN(1.0, access_score + ?)`, argSets); err != nil {
			return err
		}
	}

	for _, id := range activity.InteractedIDs {
		if err := a.RecordEmailAccess(ctx, activity.UserID, id, domain.AccessOpen); err != nil {
			return err
		}
	}
	return nil
}

// AccessTrackerRegistry is the process-wide out.AccessTracker. Events land
// in the owning user's store, next to the email rows the cleanup predicates
// join against.
type AccessTrackerRegistry struct {
	registry out.StoreRegistry
	log      zerolog.Logger
}

var _ out.AccessTracker = (*AccessTrackerRegistry)(nil)

func NewAccessTrackerRegistry(registry out.StoreRegistry, log zerolog.Logger) *AccessTrackerRegistry {
	return &AccessTrackerRegistry{
		registry: registry,
		log:      log.With().Str("component", "access_tracker").Logger(),
	}
}

func (r *AccessTrackerRegistry) forUser(ctx context.Context, userID string) (*AccessTrackerAdapter, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}
	store, err := r.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewAccessTracker(store, r.log), nil
}

func (r *AccessTrackerRegistry) RecordEmailAccess(ctx context.Context, userID, emailID string, accessType domain.AccessType) error {
	tracker, err := r.forUser(ctx, userID)
	if err != nil {
		return err
	}
	return tracker.RecordEmailAccess(ctx, userID, emailID, accessType)
}

func (r *AccessTrackerRegistry) RecordSearchActivity(ctx context.Context, activity *domain.SearchActivity) error {
	if activity == nil {
		return apperr.MissingField("activity")
	}
	tracker, err := r.forUser(ctx, activity.UserID)
	if err != nil {
		return err
	}
	return tracker.RecordSearchActivity(ctx, activity)
}

func (r *AccessTrackerRegistry) GetSummary(ctx context.Context, userID, emailID string) (*domain.EmailAccessSummary, error) {
	tracker, err := r.forUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tracker.GetSummary(ctx, userID, emailID)
}

// GetSummary returns the summary row, or nil when the email was never
// accessed.
func (a *AccessTrackerAdapter) GetSummary(ctx context.Context, userID, emailID string) (*domain.EmailAccessSummary, error) {
	var row struct {
		EmailID           string        `db:"email_id"`
		UserID            string        `db:"user_id"`
		AccessCount       int           `db:"access_count"`
		SearchAppearances int           `db:"search_appearances"`
		LastAccessedAt    sql.NullInt64 `db:"last_accessed_at"`
		AccessScore       float64       `db:"access_score"`
	}
	err := a.store.Get(ctx, &row, `
		SELECT * FROM email_access_summary WHERE email_id = ? AND user_id = ?`, emailID, userID)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.EmailAccessSummary{
		EmailID:           row.EmailID,
		UserID:            row.UserID,
		AccessCount:       row.AccessCount,
		SearchAppearances: row.SearchAppearances,
		LastAccessedAt:    row.LastAccessedAt.Int64,
		AccessScore:       row.AccessScore,
	}, nil
}
