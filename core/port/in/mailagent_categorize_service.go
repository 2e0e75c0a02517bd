package in

import (
	"context"

	"mailagent_server/core/domain"
)

type CategorizeService interface {
	// CategorizeEmails analyzes and persists categories for the user's
	// uncategorized emails (or all emails when opts.ForceRefresh is set).
	CategorizeEmails(ctx context.Context, opts *domain.CategorizationOptions) (*domain.CategorizationResult, error)

	// AnalyzeEmail runs the analyzer pipeline for one email without
	// persisting anything.
	AnalyzeEmail(ctx context.Context, email *domain.EmailIndex, userID string) (*domain.CombinedAnalysisResult, error)
}
