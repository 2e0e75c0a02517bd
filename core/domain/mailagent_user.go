package domain

// UserContext is the (user_id, session_id, ...) tuple that authorizes and
// scopes every operation. Every mutating entry point validates it first.
type UserContext struct {
	UserID      string   `json:"user_id"`
	SessionID   string   `json:"session_id"`
	IPAddress   string   `json:"ip_address,omitempty"`
	UserAgent   string   `json:"user_agent,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// SessionState tracks a session through the authentication flow.
type SessionState string

const (
	SessionStatePending SessionState = "pending"
	SessionStateActive  SessionState = "active"
	SessionStateRevoked SessionState = "revoked"
)

// UserSession is one issued session. Timestamps are epoch ms.
type UserSession struct {
	SessionID  string       `json:"session_id"`
	UserID     string       `json:"user_id"`
	Token      string       `json:"token,omitempty"`
	State      SessionState `json:"state"`
	CreatedAt  int64        `json:"created_at"`
	ExpiresAt  int64        `json:"expires_at"`
	LastSeenAt int64        `json:"last_seen_at,omitempty"`
}

// Expired reports whether the session passed its deadline at the given ms
// timestamp.
func (s *UserSession) Expired(nowMS int64) bool {
	return s.ExpiresAt > 0 && nowMS >= s.ExpiresAt
}
