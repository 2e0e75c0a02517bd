package tools

import (
	"context"
	"fmt"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
)

// =============================================================================
// categorize_emails
// =============================================================================

// CategorizeEmailsTool queues an asynchronous categorization job and returns
// its id. Progress is observed with get_job_status.
type CategorizeEmailsTool struct {
	base
	jobs in.JobService
}

func NewCategorizeEmailsTool(auth in.AuthService, jobs in.JobService) *CategorizeEmailsTool {
	return &CategorizeEmailsTool{base: base{auth: auth}, jobs: jobs}
}

func (t *CategorizeEmailsTool) Name() string           { return "categorize_emails" }
func (t *CategorizeEmailsTool) Category() ToolCategory { return CategoryAnalysis }

func (t *CategorizeEmailsTool) Description() string {
	return "Queue a background job that analyzes and categorizes the user's emails. Returns a job id to poll."
}

func (t *CategorizeEmailsTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "year", Type: "number", Description: "Restrict the run to one year"},
		{Name: "force_refresh", Type: "boolean", Description: "Rescore already-categorized emails", Default: false},
	}
}

func (t *CategorizeEmailsTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	params := map[string]any{
		"force_refresh": getBoolArg(args, "force_refresh", false),
	}
	if year, ok := args["year"]; ok {
		params["year"] = year
	}

	job, err := t.jobs.EnqueueCategorization(ctx, userID, params)
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data: map[string]any{
			"job_id":   job.JobID,
			"job_type": job.JobType,
			"status":   job.Status,
		},
		Message: fmt.Sprintf("categorization job %s queued", job.JobID),
	}, nil
}

// =============================================================================
// get_job_status
// =============================================================================

// GetJobStatusTool reports one job's status, progress and results.
type GetJobStatusTool struct {
	base
	jobs in.JobService
}

func NewGetJobStatusTool(auth in.AuthService, jobs in.JobService) *GetJobStatusTool {
	return &GetJobStatusTool{base: base{auth: auth}, jobs: jobs}
}

func (t *GetJobStatusTool) Name() string           { return "get_job_status" }
func (t *GetJobStatusTool) Category() ToolCategory { return CategoryAnalysis }

func (t *GetJobStatusTool) Description() string {
	return "Get the status, progress and results of a background job."
}

func (t *GetJobStatusTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "job_id", Type: "string", Description: "Job to look up", Required: true},
	}
}

func (t *GetJobStatusTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	job, err := t.jobs.GetJobStatus(ctx, getStringArg(args, "job_id", ""), userID)
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data:    job,
		Message: fmt.Sprintf("job %s is %s", job.JobID, job.Status),
	}, nil
}

// =============================================================================
// list_jobs
// =============================================================================

// ListJobsTool lists the caller's jobs, newest first.
type ListJobsTool struct {
	base
	jobs in.JobService
}

func NewListJobsTool(auth in.AuthService, jobs in.JobService) *ListJobsTool {
	return &ListJobsTool{base: base{auth: auth}, jobs: jobs}
}

func (t *ListJobsTool) Name() string           { return "list_jobs" }
func (t *ListJobsTool) Category() ToolCategory { return CategoryAnalysis }

func (t *ListJobsTool) Description() string {
	return "List the user's background jobs, optionally filtered by status."
}

func (t *ListJobsTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "status", Type: "string", Description: "Status filter",
			Enum: []string{"PENDING", "IN_PROGRESS", "COMPLETED", "FAILED", "CANCELLED"}},
		{Name: "limit", Type: "number", Description: "Maximum jobs to return", Default: 20},
	}
}

func (t *ListJobsTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	var status *domain.JobStatus
	if v := getStringArg(args, "status", ""); v != "" {
		s := domain.JobStatus(v)
		status = &s
	}

	jobs, err := t.jobs.ListJobs(ctx, userID, status, getIntArg(args, "limit", 20))
	if err != nil {
		return errResult(err), nil
	}

	entries := make([]map[string]any, len(jobs))
	for i, j := range jobs {
		entries[i] = map[string]any{
			"job_id":     j.JobID,
			"job_type":   j.JobType,
			"status":     j.Status,
			"progress":   j.Progress,
			"created_at": j.CreatedAt,
		}
	}

	return &ToolResult{
		Success: true,
		Data:    entries,
		Message: fmt.Sprintf("Found %d jobs", len(jobs)),
	}, nil
}
