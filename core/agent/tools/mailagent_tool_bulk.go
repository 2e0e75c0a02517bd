package tools

import (
	"context"
	"fmt"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
)

// =============================================================================
// archive_emails
// =============================================================================

// ArchiveEmailsTool archives matching emails, either with the provider's
// ARCHIVED label or as an export file.
type ArchiveEmailsTool struct {
	base
	bulk in.BulkService
}

func NewArchiveEmailsTool(auth in.AuthService, bulk in.BulkService) *ArchiveEmailsTool {
	return &ArchiveEmailsTool{base: base{auth: auth}, bulk: bulk}
}

func (t *ArchiveEmailsTool) Name() string           { return "archive_emails" }
func (t *ArchiveEmailsTool) Category() ToolCategory { return CategoryMail }

func (t *ArchiveEmailsTool) Description() string {
	return "Archive emails matching the filters. Method gmail labels them ARCHIVED on the provider; method export writes them to an archive file."
}

func (t *ArchiveEmailsTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "method", Type: "string", Description: "Archive method", Enum: []string{"gmail", "export"}, Default: "gmail"},
		{Name: "category", Type: "string", Description: "Category filter", Enum: []string{"high", "medium", "low"}},
		{Name: "year", Type: "number", Description: "Year filter"},
		{Name: "older_than_days", Type: "number", Description: "Only emails older than this many days"},
		{Name: "sender", Type: "string", Description: "Sender substring filter"},
		{Name: "labels", Type: "array", Description: "Labels the email must carry"},
		{Name: "export_format", Type: "string", Description: "File format for method export", Enum: []string{"json", "mbox", "csv"}, Default: "json"},
		{Name: "dry_run", Type: "boolean", Description: "Count candidates without touching anything", Default: false},
	}
}

func (t *ArchiveEmailsTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	opts := &domain.ArchiveOptions{
		Method:        domain.ArchiveMethod(getStringArg(args, "method", string(domain.ArchiveMethodGmail))),
		Year:          intArgPtr(args, "year"),
		OlderThanDays: intArgPtr(args, "older_than_days"),
		Sender:        getStringArg(args, "sender", ""),
		Labels:        getStringArrayArg(args, "labels"),
		ExportFormat:  getStringArg(args, "export_format", ""),
		DryRun:        getBoolArg(args, "dry_run", false),
	}
	if v := getStringArg(args, "category", ""); v != "" {
		cat := domain.Category(v)
		opts.Category = &cat
	}

	// The provider client is only needed when the provider is mutated.
	var client out.RemoteMailClient
	if opts.Method == domain.ArchiveMethodGmail && !opts.DryRun {
		if client, err = t.remoteClient(ctx, uc); err != nil {
			return errResult(err), nil
		}
	}

	result, err := t.bulk.ArchiveEmails(ctx, client, opts, userID)
	if err != nil {
		return errResult(err), nil
	}

	msg := fmt.Sprintf("Archived %d emails", result.Archived)
	if result.Location != "" {
		msg = fmt.Sprintf("Archived %d emails to %s", result.Archived, result.Location)
	}
	return &ToolResult{Success: true, Data: result, Message: msg}, nil
}

// =============================================================================
// restore_emails
// =============================================================================

// RestoreEmailsTool restores previously archived emails by id. Emails owned
// by another user are refused per id, not per call.
type RestoreEmailsTool struct {
	base
	bulk in.BulkService
}

func NewRestoreEmailsTool(auth in.AuthService, bulk in.BulkService) *RestoreEmailsTool {
	return &RestoreEmailsTool{base: base{auth: auth}, bulk: bulk}
}

func (t *RestoreEmailsTool) Name() string           { return "restore_emails" }
func (t *RestoreEmailsTool) Category() ToolCategory { return CategoryMail }

func (t *RestoreEmailsTool) Description() string {
	return "Restore archived emails back to the inbox by id."
}

func (t *RestoreEmailsTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "email_ids", Type: "array", Description: "Emails to restore", Required: true},
		{Name: "restore_labels", Type: "array", Description: "Extra labels to add alongside INBOX"},
	}
}

func (t *RestoreEmailsTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	client, err := t.remoteClient(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	result, err := t.bulk.RestoreEmails(ctx, client, &domain.RestoreOptions{
		EmailIDs:      getStringArrayArg(args, "email_ids"),
		RestoreLabels: getStringArrayArg(args, "restore_labels"),
	}, userID)
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data:    result,
		Message: fmt.Sprintf("Restored %d emails", result.Restored),
	}, nil
}

// =============================================================================
// delete_emails
// =============================================================================

// DeleteEmailsTool moves matching emails to the provider's trash in batches.
type DeleteEmailsTool struct {
	base
	bulk in.BulkService
}

func NewDeleteEmailsTool(auth in.AuthService, bulk in.BulkService) *DeleteEmailsTool {
	return &DeleteEmailsTool{base: base{auth: auth}, bulk: bulk}
}

func (t *DeleteEmailsTool) Name() string           { return "delete_emails" }
func (t *DeleteEmailsTool) Category() ToolCategory { return CategoryMail }

func (t *DeleteEmailsTool) Description() string {
	return "Move emails matching the filters to trash. Archived emails are skipped unless skip_archived is false."
}

func (t *DeleteEmailsTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "category", Type: "string", Description: "Category filter", Enum: []string{"high", "medium", "low"}},
		{Name: "year", Type: "number", Description: "Year filter"},
		{Name: "sender", Type: "string", Description: "Sender substring filter"},
		{Name: "labels", Type: "array", Description: "Labels the email must carry"},
		{Name: "size_threshold", Type: "number", Description: "Only emails at least this many bytes"},
		{Name: "skip_archived", Type: "boolean", Description: "Leave archived emails alone", Default: true},
		{Name: "max_count", Type: "number", Description: "Cap on deletions this call"},
		{Name: "dry_run", Type: "boolean", Description: "Count candidates without touching anything", Default: false},
	}
}

func (t *DeleteEmailsTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	opts := &domain.DeleteOptions{
		Year:          intArgPtr(args, "year"),
		Sender:        getStringArg(args, "sender", ""),
		Labels:        getStringArrayArg(args, "labels"),
		SizeThreshold: int64ArgPtr(args, "size_threshold"),
		SkipArchived:  boolArgPtr(args, "skip_archived"),
		MaxCount:      getIntArg(args, "max_count", 0),
		DryRun:        getBoolArg(args, "dry_run", false),
	}
	if v := getStringArg(args, "category", ""); v != "" {
		cat := domain.Category(v)
		opts.Category = &cat
	}

	var client out.RemoteMailClient
	if !opts.DryRun {
		if client, err = t.remoteClient(ctx, uc); err != nil {
			return errResult(err), nil
		}
	}

	result, err := t.bulk.DeleteEmails(ctx, client, opts, userID)
	if err != nil {
		return errResult(err), nil
	}

	msg := fmt.Sprintf("Deleted %d emails", result.Deleted)
	if opts.DryRun {
		msg = fmt.Sprintf("Dry run: %d emails would be deleted", result.Deleted)
	}
	return &ToolResult{Success: true, Data: result, Message: msg}, nil
}

// =============================================================================
// create_archive_rule
// =============================================================================

// CreateArchiveRuleTool stores an auto-archive rule for the user.
type CreateArchiveRuleTool struct {
	base
	bulk in.BulkService
}

func NewCreateArchiveRuleTool(auth in.AuthService, bulk in.BulkService) *CreateArchiveRuleTool {
	return &CreateArchiveRuleTool{base: base{auth: auth}, bulk: bulk}
}

func (t *CreateArchiveRuleTool) Name() string           { return "create_archive_rule" }
func (t *CreateArchiveRuleTool) Category() ToolCategory { return CategoryMail }

func (t *CreateArchiveRuleTool) Description() string {
	return "Create a stored archive rule: criteria plus the archive method to apply."
}

func (t *CreateArchiveRuleTool) Parameters() []ParameterSpec {
	return append([]ParameterSpec{
		{Name: "name", Type: "string", Description: "Rule name", Required: true},
		{Name: "action", Type: "string", Description: "Archive method the rule applies", Enum: []string{"gmail", "export"}, Default: "gmail"},
		{Name: "enabled", Type: "boolean", Description: "Rule is active", Default: true},
		{Name: "query", Type: "string", Description: "Free-text criteria to store"},
	}, sharedCriteriaParams()...)
}

func (t *CreateArchiveRuleTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	rule, err := t.bulk.CreateArchiveRule(ctx, &domain.ArchiveRule{
		UserID:   userID,
		Name:     getStringArg(args, "name", ""),
		Criteria: *criteriaFromArgs(args, userID),
		Action:   domain.ArchiveMethod(getStringArg(args, "action", string(domain.ArchiveMethodGmail))),
		Enabled:  getBoolArg(args, "enabled", true),
	})
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data:    rule,
		Message: fmt.Sprintf("archive rule %q created", rule.Name),
	}, nil
}

// =============================================================================
// list_archive_rules
// =============================================================================

// ListArchiveRulesTool returns the caller's archive rules.
type ListArchiveRulesTool struct {
	base
	bulk in.BulkService
}

func NewListArchiveRulesTool(auth in.AuthService, bulk in.BulkService) *ListArchiveRulesTool {
	return &ListArchiveRulesTool{base: base{auth: auth}, bulk: bulk}
}

func (t *ListArchiveRulesTool) Name() string           { return "list_archive_rules" }
func (t *ListArchiveRulesTool) Category() ToolCategory { return CategoryMail }

func (t *ListArchiveRulesTool) Description() string {
	return "List the user's stored archive rules."
}

func (t *ListArchiveRulesTool) Parameters() []ParameterSpec { return nil }

func (t *ListArchiveRulesTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	rules, err := t.bulk.ListArchiveRules(ctx, userID)
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data:    rules,
		Message: fmt.Sprintf("Found %d archive rules", len(rules)),
	}, nil
}
