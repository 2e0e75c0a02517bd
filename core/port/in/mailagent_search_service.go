package in

import (
	"context"

	"mailagent_server/core/domain"
)

type SearchService interface {
	// Local index search. Free-text criteria.Query is matched against
	// subject and snippet after the indexed predicates run.
	SearchEmails(ctx context.Context, criteria *domain.SearchCriteria) (*domain.SearchResult, error)

	// BuildAdvancedQuery renders criteria into provider query syntax for
	// server-side searches. Empty criteria yield an empty string.
	BuildAdvancedQuery(criteria *domain.SearchCriteria) string

	// Saved searches
	SaveSearch(ctx context.Context, userID, name string, criteria *domain.SearchCriteria) (*domain.SavedSearch, error)
	ListSavedSearches(ctx context.Context, userID string) ([]*domain.SavedSearch, error)
	RunSavedSearch(ctx context.Context, id, userID string) (*domain.SearchResult, error)
}
