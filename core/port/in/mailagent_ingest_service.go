package in

import (
	"context"

	"mailagent_server/core/port/out"
)

type IngestResult struct {
	Pages    int `json:"pages"`
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
}

type IngestService interface {
	// IngestEmails walks the provider listing for query, fetches message
	// details in parallel and bulk-upserts them into the user's index.
	// maxEmails <= 0 means no cap.
	IngestEmails(ctx context.Context, client out.RemoteMailClient, userID, query string, maxEmails int) (*IngestResult, error)
}
