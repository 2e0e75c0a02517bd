package domain

// CleanupAction says what a cleanup policy does to matched emails.
type CleanupActionType string

const (
	CleanupActionDelete  CleanupActionType = "delete"
	CleanupActionArchive CleanupActionType = "archive"
)

// CleanupCriteria selects cleanup candidates. Nil fields are not applied.
// age_days_min is compared against the ms-denominated date column.
type CleanupCriteria struct {
	AgeDaysMin          *int             `json:"age_days_min,omitempty"`
	ImportanceLevelMax  *ImportanceLevel `json:"importance_level_max,omitempty"`
	SizeMinBytes        *int64           `json:"size_min_bytes,omitempty"`
	SpamScoreMin        *float64         `json:"spam_score_min,omitempty"`
	PromotionalScoreMin *float64         `json:"promotional_score_min,omitempty"`
	AccessScoreMax      *float64         `json:"access_score_max,omitempty"`
	NoAccessDays        *int             `json:"no_access_days,omitempty"`
}

// CleanupAction configures the mutation side of a policy.
type CleanupAction struct {
	Type         CleanupActionType `json:"type"`
	ExportFormat string            `json:"export_format,omitempty"` // archive action only
}

// CleanupSafety bounds a policy run.
type CleanupSafety struct {
	MaxEmailsPerRun     int  `json:"max_emails_per_run"`
	PreserveImportant   bool `json:"preserve_important"`
	DryRunFirst         bool `json:"dry_run_first"`
	RequireConfirmation bool `json:"require_confirmation"`
}

// CleanupSchedule optionally recurs a policy.
type CleanupSchedule struct {
	Frequency string `json:"frequency"` // daily, weekly, monthly
	TimeOfDay string `json:"time_of_day,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// CleanupPolicy is one persisted, user-owned cleanup specification.
type CleanupPolicy struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Name      string           `json:"name"`
	Enabled   bool             `json:"enabled"`
	Criteria  CleanupCriteria  `json:"criteria"`
	Action    CleanupAction    `json:"action"`
	Safety    CleanupSafety    `json:"safety"`
	Schedule  *CleanupSchedule `json:"schedule,omitempty"`
	CreatedAt int64            `json:"created_at"` // epoch ms
	UpdatedAt int64            `json:"updated_at"` // epoch ms
}

// CleanupOptions tunes one batchDeleteForCleanup invocation.
type CleanupOptions struct {
	DryRun      bool `json:"dry_run"`
	BatchSize   int  `json:"batch_size,omitempty"`   // default 50, hard cap 50
	MaxFailures int  `json:"max_failures,omitempty"` // stop threshold, 0 = unlimited
}

// CleanupResult is the bulk-path result shape for policy runs.
type CleanupResult struct {
	Deleted      int      `json:"deleted"`
	Archived     int      `json:"archived"`
	Failed       int      `json:"failed"`
	StorageFreed int64    `json:"storage_freed"`
	Errors       []string `json:"errors"`
}
