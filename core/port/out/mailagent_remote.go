package out

import (
	"context"

	"mailagent_server/core/domain"
)

// RemoteMessageRef identifies one message on the provider side.
type RemoteMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// RemoteListPage is one page of a provider message listing.
type RemoteListPage struct {
	Messages           []RemoteMessageRef `json:"messages"`
	NextPageToken      string             `json:"next_page_token"`
	ResultSizeEstimate int64              `json:"result_size_estimate"`
}

// RemoteMailClient is a session-scoped handle to the mail provider. All bulk
// mutations go through BatchModify so the provider sees bounded batches.
type RemoteMailClient interface {
	ListPage(ctx context.Context, query, pageToken string, maxResults int64) (*RemoteListPage, error)
	GetBatch(ctx context.Context, ids []string) ([]*domain.EmailIndex, error)
	BatchModify(ctx context.Context, ids []string, addLabels, removeLabels []string) error
}

// SessionValidator validates caller identity and hands out provider clients
// bound to the validated session.
type SessionValidator interface {
	Validate(ctx context.Context, userCtx *domain.UserContext) error
	GetRemoteClient(ctx context.Context, sessionID string) (RemoteMailClient, error)
}

// ExportFormatter renders email index rows into an export payload.
type ExportFormatter interface {
	FormatEmails(emails []*domain.EmailIndex) ([]byte, error)
	GetFileExtension() string
}
