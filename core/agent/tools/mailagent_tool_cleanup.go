package tools

import (
	"context"
	"fmt"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"

	"github.com/google/uuid"
)

// proposalTTL bounds how long a cleanup confirmation stays valid.
const proposalTTL = 10 * time.Minute

// RunCleanupPolicyTool runs a cleanup policy, stored or inline. Safety
// settings on stored policies are enforced here: require_confirmation turns
// the first call into a proposal, dry_run_first downgrades it to a preview.
// Passing confirm=true runs the policy for real.
type RunCleanupPolicyTool struct {
	base
	cleanup in.CleanupService
}

func NewRunCleanupPolicyTool(auth in.AuthService, cleanup in.CleanupService) *RunCleanupPolicyTool {
	return &RunCleanupPolicyTool{base: base{auth: auth}, cleanup: cleanup}
}

func (t *RunCleanupPolicyTool) Name() string           { return "run_cleanup_policy" }
func (t *RunCleanupPolicyTool) Category() ToolCategory { return CategoryCleanup }

func (t *RunCleanupPolicyTool) Description() string {
	return "Run a cleanup policy by id, or an inline one built from the criteria arguments. Stored safety settings may require a dry run or an explicit confirm=true."
}

func (t *RunCleanupPolicyTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "policy_id", Type: "string", Description: "Stored policy to run; omit to build one inline"},
		{Name: "name", Type: "string", Description: "Name for an inline policy", Default: "ad-hoc cleanup"},
		{Name: "age_days_min", Type: "number", Description: "Only emails at least this old"},
		{Name: "importance_level_max", Type: "string", Description: "Only emails at or below this importance", Enum: []string{"low", "medium", "high"}},
		{Name: "size_min_bytes", Type: "number", Description: "Only emails at least this large"},
		{Name: "spam_score_min", Type: "number", Description: "Only emails with at least this spam score"},
		{Name: "promotional_score_min", Type: "number", Description: "Only emails with at least this promotional score"},
		{Name: "no_access_days", Type: "number", Description: "Only emails not accessed for this many days"},
		{Name: "action", Type: "string", Description: "What to do with matches", Enum: []string{"delete", "archive"}, Default: "delete"},
		{Name: "export_format", Type: "string", Description: "File format for action archive", Enum: []string{"json", "mbox", "csv"}},
		{Name: "preserve_important", Type: "boolean", Description: "Never touch high-category emails", Default: true},
		{Name: "max_emails_per_run", Type: "number", Description: "Cap on emails touched this run"},
		{Name: "batch_size", Type: "number", Description: "Remote batch size, capped at 50"},
		{Name: "max_failures", Type: "number", Description: "Abort after this many failed batches"},
		{Name: "dry_run", Type: "boolean", Description: "Preview without touching anything", Default: false},
		{Name: "confirm", Type: "boolean", Description: "Confirm a proposed run", Default: false},
	}
}

func (t *RunCleanupPolicyTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	policy, err := t.resolvePolicy(ctx, args, userID)
	if err != nil {
		return errResult(err), nil
	}

	opts := &domain.CleanupOptions{
		DryRun:      getBoolArg(args, "dry_run", false),
		BatchSize:   getIntArg(args, "batch_size", 0),
		MaxFailures: getIntArg(args, "max_failures", 0),
	}
	confirm := getBoolArg(args, "confirm", false)

	if !opts.DryRun && !confirm {
		if policy.Safety.RequireConfirmation {
			return t.propose(policy), nil
		}
		if policy.Safety.DryRunFirst {
			// First unconfirmed call previews; confirm=true applies.
			opts.DryRun = true
		}
	}

	// Only a real delete run mutates the provider.
	var client out.RemoteMailClient
	if policy.Action.Type == domain.CleanupActionDelete && !opts.DryRun {
		if client, err = t.remoteClient(ctx, uc); err != nil {
			return errResult(err), nil
		}
	}

	result, err := t.cleanup.RunPolicy(ctx, client, policy, opts, userID)
	if err != nil {
		return errResult(err), nil
	}

	msg := fmt.Sprintf("Cleanup %q: %d deleted, %d archived, %d bytes freed",
		policy.Name, result.Deleted, result.Archived, result.StorageFreed)
	if opts.DryRun {
		msg = fmt.Sprintf("Cleanup %q dry run: %d emails would be affected; pass confirm=true to apply",
			policy.Name, result.Deleted+result.Archived)
	}
	return &ToolResult{Success: true, Data: result, Message: msg}, nil
}

// resolvePolicy loads the stored policy or builds an ephemeral one from the
// criteria arguments. Inline policies are not persisted.
func (t *RunCleanupPolicyTool) resolvePolicy(ctx context.Context, args map[string]any, userID string) (*domain.CleanupPolicy, error) {
	if id := getStringArg(args, "policy_id", ""); id != "" {
		return t.cleanup.GetPolicy(ctx, id, userID)
	}

	policy := &domain.CleanupPolicy{
		UserID:  userID,
		Name:    getStringArg(args, "name", "ad-hoc cleanup"),
		Enabled: true,
		Criteria: domain.CleanupCriteria{
			AgeDaysMin:          intArgPtr(args, "age_days_min"),
			SizeMinBytes:        int64ArgPtr(args, "size_min_bytes"),
			SpamScoreMin:        floatArgPtr(args, "spam_score_min"),
			PromotionalScoreMin: floatArgPtr(args, "promotional_score_min"),
			NoAccessDays:        intArgPtr(args, "no_access_days"),
		},
		Action: domain.CleanupAction{
			Type:         domain.CleanupActionType(getStringArg(args, "action", string(domain.CleanupActionDelete))),
			ExportFormat: getStringArg(args, "export_format", ""),
		},
		Safety: domain.CleanupSafety{
			MaxEmailsPerRun:   getIntArg(args, "max_emails_per_run", 0),
			PreserveImportant: getBoolArg(args, "preserve_important", true),
		},
	}
	if v := getStringArg(args, "importance_level_max", ""); v != "" {
		level := domain.ImportanceLevel(v)
		policy.Criteria.ImportanceLevelMax = &level
	}
	return policy, nil
}

func (t *RunCleanupPolicyTool) propose(policy *domain.CleanupPolicy) *ToolResult {
	return &ToolResult{
		Success: true,
		Message: fmt.Sprintf("cleanup policy %q requires confirmation; call again with confirm=true or dry_run=true", policy.Name),
		Proposal: &ActionProposal{
			ID:          uuid.New().String(),
			Action:      "run_cleanup_policy",
			Description: fmt.Sprintf("Run cleanup policy %q (%s)", policy.Name, policy.Action.Type),
			Data: map[string]any{
				"policy_id":   policy.ID,
				"policy_name": policy.Name,
				"action":      policy.Action.Type,
				"confirm":     true,
			},
			ExpiresAt: time.Now().Add(proposalTTL),
		},
	}
}
