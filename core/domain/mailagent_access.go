package domain

// AccessType classifies one raw email-access event.
type AccessType string

const (
	AccessView         AccessType = "view"
	AccessSearchResult AccessType = "search_result"
	AccessOpen         AccessType = "open"
)

// EmailAccessEvent is one raw row in email_access_log.
type EmailAccessEvent struct {
	ID         int64      `json:"id,omitempty"`
	EmailID    string     `json:"email_id"`
	UserID     string     `json:"user_id"`
	AccessType AccessType `json:"access_type"`
	Timestamp  int64      `json:"timestamp"` // epoch ms
}

// SearchActivity is one row in search_activity: the query, which emails the
// search surfaced, and which of them the user interacted with.
type SearchActivity struct {
	ID            int64    `json:"id,omitempty"`
	UserID        string   `json:"user_id"`
	Query         string   `json:"query"`
	EmailIDs      []string `json:"email_ids"`
	InteractedIDs []string `json:"interacted_ids,omitempty"`
	Timestamp     int64    `json:"timestamp"` // epoch ms
}

// EmailAccessSummary is the denormalized per-email access view consumed by
// cleanup's no_access_days / access_score_max predicates. Emails with no
// summary row stay eligible for cleanup (correlated NOT EXISTS).
type EmailAccessSummary struct {
	EmailID           string  `json:"email_id"`
	UserID            string  `json:"user_id"`
	AccessCount       int     `json:"access_count"`
	SearchAppearances int     `json:"search_appearances"`
	LastAccessedAt    int64   `json:"last_accessed_at"` // epoch ms
	AccessScore       float64 `json:"access_score"`     // recency-weighted, [0,1]
}
