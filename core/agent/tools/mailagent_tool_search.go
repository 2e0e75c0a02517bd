package tools

import (
	"context"
	"fmt"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
)

// criteriaFromArgs builds search criteria from the common filter arguments.
// Absent keys leave their predicate off.
func criteriaFromArgs(args map[string]any, userID string) *domain.SearchCriteria {
	c := &domain.SearchCriteria{UserID: userID}

	if v := getStringArg(args, "query", ""); v != "" {
		c.Query = v
	}
	if v := getStringArg(args, "category", ""); v != "" {
		cat := domain.Category(v)
		c.Category = &cat
	}
	if v := getStringArg(args, "sender", ""); v != "" {
		c.Sender = v
	}
	if labels := getStringArrayArg(args, "labels"); len(labels) > 0 {
		c.Labels = labels
	}
	c.Year = intArgPtr(args, "year")
	c.SizeMin = int64ArgPtr(args, "size_min")
	c.SizeMax = int64ArgPtr(args, "size_max")
	c.Archived = boolArgPtr(args, "archived")
	c.HasAttachments = boolArgPtr(args, "has_attachments")
	c.UncategorizedOnly = getBoolArg(args, "uncategorized_only", false)
	c.Limit = getIntArg(args, "limit", 0)
	c.Offset = getIntArg(args, "offset", 0)
	return c
}

// emailSummaries shapes index rows for the agent: identity, envelope, and
// the analysis fields it can act on.
func emailSummaries(emails []*domain.EmailIndex) []map[string]any {
	summaries := make([]map[string]any, len(emails))
	for i, e := range emails {
		s := map[string]any{
			"id":       e.ID,
			"subject":  e.Subject,
			"sender":   e.Sender,
			"date":     time.UnixMilli(e.Date).UTC().Format("2006-01-02 15:04"),
			"size":     e.SizeEstimate,
			"archived": e.Archived,
		}
		if e.Category != nil {
			s["category"] = *e.Category
		}
		if e.ImportanceLevel != nil {
			s["importance"] = *e.ImportanceLevel
		}
		summaries[i] = s
	}
	return summaries
}

// sharedCriteriaParams lists the filter parameters common to the search
// tools.
func sharedCriteriaParams() []ParameterSpec {
	return []ParameterSpec{
		{Name: "category", Type: "string", Description: "Category filter", Enum: []string{"high", "medium", "low"}},
		{Name: "year", Type: "number", Description: "Year filter"},
		{Name: "sender", Type: "string", Description: "Sender substring filter"},
		{Name: "labels", Type: "array", Description: "Labels the email must carry"},
		{Name: "has_attachments", Type: "boolean", Description: "Attachment filter"},
		{Name: "archived", Type: "boolean", Description: "Archived filter"},
		{Name: "uncategorized_only", Type: "boolean", Description: "Only emails with no category", Default: false},
		{Name: "limit", Type: "number", Description: "Maximum results", Default: 50},
	}
}

// =============================================================================
// list_emails
// =============================================================================

// ListEmailsTool pages through the caller's email index. Returned ids are
// recorded as views for access scoring.
type ListEmailsTool struct {
	base
	search  in.SearchService
	tracker out.AccessTracker
}

func NewListEmailsTool(auth in.AuthService, search in.SearchService, tracker out.AccessTracker) *ListEmailsTool {
	return &ListEmailsTool{base: base{auth: auth}, search: search, tracker: tracker}
}

func (t *ListEmailsTool) Name() string           { return "list_emails" }
func (t *ListEmailsTool) Category() ToolCategory { return CategorySearch }

func (t *ListEmailsTool) Description() string {
	return "List emails from the user's index. Filter by category, year, sender, labels, or archived state."
}

func (t *ListEmailsTool) Parameters() []ParameterSpec {
	return append(sharedCriteriaParams(),
		ParameterSpec{Name: "offset", Type: "number", Description: "Page offset", Default: 0},
	)
}

func (t *ListEmailsTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	result, err := t.search.SearchEmails(ctx, criteriaFromArgs(args, userID))
	if err != nil {
		return errResult(err), nil
	}

	// Listing an email counts as reading it. Tracking never breaks a read.
	if t.tracker != nil {
		for _, e := range result.Emails {
			_ = t.tracker.RecordEmailAccess(ctx, userID, e.ID, domain.AccessView)
		}
	}

	return &ToolResult{
		Success: true,
		Data:    emailSummaries(result.Emails),
		Message: fmt.Sprintf("Found %d emails (showing %d)", result.Total, len(result.Emails)),
	}, nil
}

// =============================================================================
// search_emails
// =============================================================================

// SearchEmailsTool runs a free-text search over the caller's index.
type SearchEmailsTool struct {
	base
	search in.SearchService
}

func NewSearchEmailsTool(auth in.AuthService, search in.SearchService) *SearchEmailsTool {
	return &SearchEmailsTool{base: base{auth: auth}, search: search}
}

func (t *SearchEmailsTool) Name() string           { return "search_emails" }
func (t *SearchEmailsTool) Category() ToolCategory { return CategorySearch }

func (t *SearchEmailsTool) Description() string {
	return "Search emails by free-text query over subject and snippet, combined with the standard filters. Quoted spans match as exact phrases."
}

func (t *SearchEmailsTool) Parameters() []ParameterSpec {
	return append([]ParameterSpec{
		{Name: "query", Type: "string", Description: "Search keywords; quote phrases for exact match", Required: true},
	}, sharedCriteriaParams()...)
}

func (t *SearchEmailsTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	criteria := criteriaFromArgs(args, userID)
	result, err := t.search.SearchEmails(ctx, criteria)
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data:    emailSummaries(result.Emails),
		Message: fmt.Sprintf("Found %d emails matching %q", result.Total, criteria.Query),
	}, nil
}

// =============================================================================
// save_search
// =============================================================================

// SaveSearchTool stores the given criteria under a name for later reuse.
type SaveSearchTool struct {
	base
	search in.SearchService
}

func NewSaveSearchTool(auth in.AuthService, search in.SearchService) *SaveSearchTool {
	return &SaveSearchTool{base: base{auth: auth}, search: search}
}

func (t *SaveSearchTool) Name() string           { return "save_search" }
func (t *SaveSearchTool) Category() ToolCategory { return CategorySearch }

func (t *SaveSearchTool) Description() string {
	return "Save a search under a name. The stored criteria can be re-run later exactly as given."
}

func (t *SaveSearchTool) Parameters() []ParameterSpec {
	return append([]ParameterSpec{
		{Name: "name", Type: "string", Description: "Name for the saved search", Required: true},
		{Name: "query", Type: "string", Description: "Free-text query to store"},
	}, sharedCriteriaParams()...)
}

func (t *SaveSearchTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	name := getStringArg(args, "name", "")
	saved, err := t.search.SaveSearch(ctx, userID, name, criteriaFromArgs(args, userID))
	if err != nil {
		return errResult(err), nil
	}

	return &ToolResult{
		Success: true,
		Data: map[string]any{
			"id":       saved.ID,
			"name":     saved.Name,
			"criteria": saved.Criteria,
		},
		Message: fmt.Sprintf("search %q saved", saved.Name),
	}, nil
}

// =============================================================================
// list_saved_searches
// =============================================================================

// ListSavedSearchesTool returns the caller's saved searches.
type ListSavedSearchesTool struct {
	base
	search in.SearchService
}

func NewListSavedSearchesTool(auth in.AuthService, search in.SearchService) *ListSavedSearchesTool {
	return &ListSavedSearchesTool{base: base{auth: auth}, search: search}
}

func (t *ListSavedSearchesTool) Name() string           { return "list_saved_searches" }
func (t *ListSavedSearchesTool) Category() ToolCategory { return CategorySearch }

func (t *ListSavedSearchesTool) Description() string {
	return "List the user's saved searches with their stored criteria."
}

func (t *ListSavedSearchesTool) Parameters() []ParameterSpec { return nil }

func (t *ListSavedSearchesTool) Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error) {
	userID, err := t.requireUser(ctx, uc)
	if err != nil {
		return errResult(err), nil
	}

	searches, err := t.search.ListSavedSearches(ctx, userID)
	if err != nil {
		return errResult(err), nil
	}

	entries := make([]map[string]any, len(searches))
	for i, s := range searches {
		entries[i] = map[string]any{
			"id":         s.ID,
			"name":       s.Name,
			"criteria":   s.Criteria,
			"created_at": s.CreatedAt,
		}
	}

	return &ToolResult{
		Success: true,
		Data:    entries,
		Message: fmt.Sprintf("Found %d saved searches", len(searches)),
	}, nil
}
