package domain

// ArchiveMethod selects where archived emails go.
type ArchiveMethod string

const (
	ArchiveMethodGmail  ArchiveMethod = "gmail"  // ARCHIVED label on the provider
	ArchiveMethodExport ArchiveMethod = "export" // file under <ARCHIVE_PATH>/user_<id>/
)

// ArchiveRule is a stored, user-owned auto-archive specification.
type ArchiveRule struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	Criteria  SearchCriteria `json:"criteria"`
	Action    ArchiveMethod  `json:"action"`
	Enabled   bool           `json:"enabled"`
	CreatedAt int64          `json:"created_at"` // epoch ms
	UpdatedAt int64          `json:"updated_at"` // epoch ms
}

// ArchiveRecord tracks one archive run that produced an artifact.
type ArchiveRecord struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Method     ArchiveMethod `json:"method"`
	Location   string        `json:"location"` // export path or ARCHIVED
	EmailCount int           `json:"email_count"`
	SizeBytes  int64         `json:"size_bytes"`
	Format     string        `json:"format,omitempty"`
	CreatedAt  int64         `json:"created_at"` // epoch ms
}

// SavedSearch is a stored, user-owned search.
type SavedSearch struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	Criteria  SearchCriteria `json:"criteria"`
	CreatedAt int64          `json:"created_at"` // epoch ms
}

// DeleteOptions selects bulk-delete candidates. SkipArchived defaults to
// true; set the pointer explicitly to include archived rows.
type DeleteOptions struct {
	Category      *Category `json:"category,omitempty"`
	Year          *int      `json:"year,omitempty"`
	SizeThreshold *int64    `json:"size_threshold,omitempty"` // minimum size_estimate
	Labels        []string  `json:"labels,omitempty"`
	Sender        string    `json:"sender,omitempty"`
	SkipArchived  *bool     `json:"skip_archived,omitempty"`
	DryRun        bool      `json:"dry_run,omitempty"`
	MaxCount      int       `json:"max_count,omitempty"`
}

// SkipArchivedOrDefault resolves the nil-means-true default.
func (o *DeleteOptions) SkipArchivedOrDefault() bool {
	if o.SkipArchived == nil {
		return true
	}
	return *o.SkipArchived
}

// DeleteResult is the bulk-delete result shape.
type DeleteResult struct {
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors"`
}

// RestoreOptions restores previously archived emails by id.
type RestoreOptions struct {
	EmailIDs      []string `json:"email_ids"`
	RestoreLabels []string `json:"restore_labels,omitempty"`
}

// RestoreResult is the bulk-restore result shape.
type RestoreResult struct {
	Restored int      `json:"restored"`
	Errors   []string `json:"errors"`
}

// ArchiveOptions selects archive candidates and the method.
type ArchiveOptions struct {
	Method        ArchiveMethod `json:"method"`
	Category      *Category     `json:"category,omitempty"`
	Year          *int          `json:"year,omitempty"`
	OlderThanDays *int          `json:"older_than_days,omitempty"`
	Labels        []string      `json:"labels,omitempty"`
	Sender        string        `json:"sender,omitempty"`
	ExportFormat  string        `json:"export_format,omitempty"` // export method only
	DryRun        bool          `json:"dry_run,omitempty"`
}

// ArchiveResult is the bulk-archive result shape.
type ArchiveResult struct {
	Archived int      `json:"archived"`
	Location string   `json:"location,omitempty"` // export file path or ARCHIVED
	RecordID string   `json:"record_id,omitempty"`
	Errors   []string `json:"errors"`
}
