package tools

import (
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
)

// Deps carries the services the toolset fronts. Tracker may be nil to
// disable read tracking.
type Deps struct {
	Auth    in.AuthService
	Search  in.SearchService
	Jobs    in.JobService
	Bulk    in.BulkService
	Cleanup in.CleanupService
	Tracker out.AccessTracker
}

// NewToolset builds a registry with the full tool surface wired.
func NewToolset(d Deps) *Registry {
	r := NewRegistry()
	r.RegisterAll(
		NewAuthenticateTool(d.Auth),
		NewPollUserContextTool(d.Auth),

		NewListEmailsTool(d.Auth, d.Search, d.Tracker),
		NewSearchEmailsTool(d.Auth, d.Search),
		NewSaveSearchTool(d.Auth, d.Search),
		NewListSavedSearchesTool(d.Auth, d.Search),

		NewCategorizeEmailsTool(d.Auth, d.Jobs),
		NewGetJobStatusTool(d.Auth, d.Jobs),
		NewListJobsTool(d.Auth, d.Jobs),

		NewArchiveEmailsTool(d.Auth, d.Bulk),
		NewRestoreEmailsTool(d.Auth, d.Bulk),
		NewDeleteEmailsTool(d.Auth, d.Bulk),
		NewCreateArchiveRuleTool(d.Auth, d.Bulk),
		NewListArchiveRulesTool(d.Auth, d.Bulk),

		NewRunCleanupPolicyTool(d.Auth, d.Cleanup),
	)
	return r
}
