package persistence

import (
	"context"
	"math"
	"testing"

	"mailagent_server/core/domain"

	"github.com/rs/zerolog"
)

func TestRecordEmailAccess(t *testing.T) {
	store := newTestStore(t, "u1")
	tracker := NewAccessTracker(store, zerolog.Nop())
	ctx := context.Background()

	if err := tracker.RecordEmailAccess(ctx, "u1", "e1", domain.AccessView); err != nil {
		t.Fatalf("RecordEmailAccess: %v", err)
	}
	summary, err := tracker.GetSummary(ctx, "u1", "e1")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", summary.AccessCount)
	}
	if math.Abs(summary.AccessScore-accessScoreStep) > 1e-9 {
		t.Errorf("score = %v, want %v", summary.AccessScore, accessScoreStep)
	}
	if summary.LastAccessedAt == 0 {
		t.Error("last_accessed_at not set")
	}

	for i := 0; i < 20; i++ {
		if err := tracker.RecordEmailAccess(ctx, "u1", "e1", domain.AccessOpen); err != nil {
			t.Fatalf("RecordEmailAccess: %v", err)
		}
	}
	summary, _ = tracker.GetSummary(ctx, "u1", "e1")
	if summary.AccessCount != 21 {
		t.Errorf("access count = %d, want 21", summary.AccessCount)
	}
	if summary.AccessScore > 1.0 {
		t.Errorf("score = %v, must stay capped at 1", summary.AccessScore)
	}
}

func TestGetSummaryMissing(t *testing.T) {
	store := newTestStore(t, "u1")
	tracker := NewAccessTracker(store, zerolog.Nop())

	summary, err := tracker.GetSummary(context.Background(), "u1", "never-seen")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary != nil {
		t.Errorf("summary = %+v, want nil for unseen email", summary)
	}
}

func TestRecordSearchActivity(t *testing.T) {
	store := newTestStore(t, "u1")
	tracker := NewAccessTracker(store, zerolog.Nop())
	ctx := context.Background()

	activity := &domain.SearchActivity{
		UserID:        "u1",
		Query:         "invoices 2024",
		EmailIDs:      []string{"e1", "e2", "e3"},
		InteractedIDs: []string{"e2"},
	}
	if err := tracker.RecordSearchActivity(ctx, activity); err != nil {
		t.Fatalf("RecordSearchActivity: %v", err)
	}
	if activity.ID == 0 {
		t.Error("activity id not assigned")
	}

	surfaced, err := tracker.GetSummary(ctx, "u1", "e1")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if surfaced.SearchAppearances != 1 {
		t.Errorf("appearances = %d, want 1", surfaced.SearchAppearances)
	}
	if surfaced.AccessCount != 0 {
		t.Errorf("access count = %d, want 0 for surfaced-only email", surfaced.AccessCount)
	}

	interacted, err := tracker.GetSummary(ctx, "u1", "e2")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if interacted.SearchAppearances != 1 || interacted.AccessCount != 1 {
		t.Errorf("interacted summary = %+v, want appearance and access", interacted)
	}

	var events int
	if err := store.Get(ctx, &events, `
		SELECT COUNT(*) FROM email_access_log WHERE user_id = 'u1' AND email_id = 'e2' AND access_type = 'open'`); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Errorf("open events = %d, want 1", events)
	}
}
