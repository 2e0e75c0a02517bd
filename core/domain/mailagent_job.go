package domain

// JobStatus is the durable job state. Transitions are monotonic:
// PENDING -> IN_PROGRESS -> {COMPLETED | FAILED | CANCELLED}.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the monotonic status machine.
func (s JobStatus) CanTransitionTo(to JobStatus) bool {
	switch s {
	case JobPending:
		return to == JobInProgress || to == JobCancelled
	case JobInProgress:
		return to == JobCompleted || to == JobFailed || to == JobCancelled
	default:
		return false
	}
}

// JobType names the work a job row represents.
type JobType string

const (
	JobTypeCategorization JobType = "categorization"
	JobTypeCleanup        JobType = "cleanup"
)

// Job is one durable job record. Timestamps are epoch ms; zero means unset.
type Job struct {
	JobID         string         `json:"job_id"`
	JobType       JobType        `json:"job_type"`
	Status        JobStatus      `json:"status"`
	RequestParams map[string]any `json:"request_params,omitempty"`
	Progress      int            `json:"progress"` // 0..100
	Results       map[string]any `json:"results,omitempty"`
	ErrorDetails  string         `json:"error_details,omitempty"`
	CreatedAt     int64          `json:"created_at"`
	StartedAt     int64          `json:"started_at,omitempty"`
	CompletedAt   int64          `json:"completed_at,omitempty"`
	UpdatedAt     int64          `json:"updated_at"`
	UserID        string         `json:"user_id"`
}

// TriggeredBy identifies what scheduled a cleanup job.
type TriggeredBy string

const (
	TriggerSchedule               TriggeredBy = "schedule"
	TriggerStorageThreshold       TriggeredBy = "storage_threshold"
	TriggerPerformance            TriggeredBy = "performance"
	TriggerUserRequest            TriggeredBy = "user_request"
	TriggerContinuous             TriggeredBy = "continuous"
	TriggerStorageWarning         TriggeredBy = "storage_warning"
	TriggerPerformanceDegradation TriggeredBy = "performance_degradation"
	TriggerStorageCritical        TriggeredBy = "storage_critical"
)

// JobPriority ranks cleanup jobs.
type JobPriority string

const (
	JobPriorityLow       JobPriority = "low"
	JobPriorityNormal    JobPriority = "normal"
	JobPriorityHigh      JobPriority = "high"
	JobPriorityEmergency JobPriority = "emergency"
)

// CleanupJobDetails is the cleanup side table extending a Job row.
type CleanupJobDetails struct {
	JobID             string      `json:"job_id"`
	PolicyID          string      `json:"policy_id"`
	TriggeredBy       TriggeredBy `json:"triggered_by"`
	Priority          JobPriority `json:"priority"`
	BatchSize         int         `json:"batch_size"`
	TargetEmails      int         `json:"target_emails"`
	EmailsAnalyzed    int         `json:"emails_analyzed"`
	EmailsCleaned     int         `json:"emails_cleaned"`
	StorageFreed      int64       `json:"storage_freed"`
	ErrorsEncountered int         `json:"errors_encountered"`
	CurrentBatch      int         `json:"current_batch"`
	TotalBatches      int         `json:"total_batches"`
}

// QueueItem is one FIFO entry handed to the categorization worker.
type QueueItem struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
}
