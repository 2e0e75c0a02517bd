// Package search implements local index search and saved searches.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultLimit caps result pages when the caller does not set one.
const defaultLimit = 50

// SearchEngine resolves the caller's store and layers free-text matching,
// saved searches and access tracking on top of the SQL criteria search.
type SearchEngine struct {
	registry out.StoreRegistry
	searches out.SearchStore
	tracker  out.AccessTracker
	log      zerolog.Logger
}

var _ in.SearchService = (*SearchEngine)(nil)

// NewSearchEngine creates a search engine. tracker may be nil to disable
// access-pattern capture.
func NewSearchEngine(registry out.StoreRegistry, searches out.SearchStore, tracker out.AccessTracker, log zerolog.Logger) *SearchEngine {
	return &SearchEngine{
		registry: registry,
		searches: searches,
		tracker:  tracker,
		log:      log.With().Str("component", "search_engine").Logger(),
	}
}

// =============================================================================
// Search
// =============================================================================

// SearchEmails runs the criteria against the owning store. The free-text
// query predicate is applied after the database call, scanning subject and
// snippet with exact-phrase semantics for quoted spans.
func (s *SearchEngine) SearchEmails(ctx context.Context, criteria *domain.SearchCriteria) (*domain.SearchResult, error) {
	c := domain.SearchCriteria{}
	if criteria != nil {
		c = *criteria
	}
	if c.Limit <= 0 {
		c.Limit = defaultLimit
	}

	store, err := s.storeFor(ctx, c.UserID)
	if err != nil {
		return nil, err
	}

	result, err := store.SearchEmails(ctx, &c)
	if err != nil {
		return nil, err
	}

	if c.Query != "" {
		terms := parseQueryTerms(c.Query)
		filtered := make([]*domain.EmailIndex, 0, len(result.Emails))
		for _, email := range result.Emails {
			if matchesTerms(email, terms) {
				filtered = append(filtered, email)
			}
		}
		result.Emails = filtered
		result.Total = len(filtered)
	}

	s.recordActivity(ctx, c.UserID, c.Query, result.Emails)
	return result, nil
}

// BuildAdvancedQuery maps criteria onto the provider query grammar. Empty
// criteria yield an empty string.
func (s *SearchEngine) BuildAdvancedQuery(criteria *domain.SearchCriteria) string {
	if criteria == nil {
		return ""
	}

	var parts []string
	if criteria.Query != "" {
		parts = append(parts, `"`+criteria.Query+`"`)
	}
	if criteria.Sender != "" {
		parts = append(parts, "from:"+criteria.Sender)
	}

	// Year bounds translate to a half-open date window; before: is exclusive,
	// so the end year bumps by one.
	startYear, endYear := 0, 0
	switch {
	case criteria.Year != nil:
		startYear, endYear = *criteria.Year, *criteria.Year
	default:
		if criteria.YearStart != nil {
			startYear = *criteria.YearStart
		}
		if criteria.YearEnd != nil {
			endYear = *criteria.YearEnd
		}
	}
	if startYear > 0 {
		parts = append(parts, fmt.Sprintf("after:%d/1/1", startYear))
	}
	if endYear > 0 {
		parts = append(parts, fmt.Sprintf("before:%d/1/1", endYear+1))
	}

	if criteria.HasAttachments != nil && *criteria.HasAttachments {
		parts = append(parts, "has:attachment")
	}
	for _, label := range criteria.Labels {
		parts = append(parts, "label:"+label)
	}
	if criteria.SizeMin != nil {
		parts = append(parts, fmt.Sprintf("larger:%d", *criteria.SizeMin))
	}
	if criteria.SizeMax != nil {
		parts = append(parts, fmt.Sprintf("smaller:%d", *criteria.SizeMax))
	}

	return strings.Join(parts, " ")
}

// =============================================================================
// Saved Searches
// =============================================================================

// SaveSearch stores the criteria under a name for later execution.
func (s *SearchEngine) SaveSearch(ctx context.Context, userID, name string, criteria *domain.SearchCriteria) (*domain.SavedSearch, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}
	if name == "" {
		return nil, apperr.MissingField("name")
	}

	saved := &domain.SavedSearch{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UnixMilli(),
	}
	if criteria != nil {
		saved.Criteria = *criteria
	}

	if err := s.searches.SaveSearch(ctx, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

// ListSavedSearches returns the user's saved searches.
func (s *SearchEngine) ListSavedSearches(ctx context.Context, userID string) ([]*domain.SavedSearch, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}
	return s.searches.ListSavedSearches(ctx, userID)
}

// RunSavedSearch re-applies a saved search's criteria, scoped to its owner.
func (s *SearchEngine) RunSavedSearch(ctx context.Context, id, userID string) (*domain.SearchResult, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}

	saved, err := s.searches.GetSavedSearch(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	criteria := saved.Criteria
	criteria.UserID = userID
	return s.SearchEmails(ctx, &criteria)
}

// =============================================================================
// Internal
// =============================================================================

func (s *SearchEngine) storeFor(ctx context.Context, userID string) (out.EmailStore, error) {
	if userID == "" {
		return s.registry.Shared(ctx)
	}
	return s.registry.Get(ctx, userID)
}

// recordActivity captures the search for access scoring. Failures are logged
// and swallowed; tracking never breaks a search.
func (s *SearchEngine) recordActivity(ctx context.Context, userID, query string, emails []*domain.EmailIndex) {
	if s.tracker == nil || userID == "" {
		return
	}

	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		ids = append(ids, e.ID)
	}

	err := s.tracker.RecordSearchActivity(ctx, &domain.SearchActivity{
		UserID:    userID,
		Query:     query,
		EmailIDs:  ids,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		s.log.Debug().Err(err).Str("user_id", userID).Msg("search activity not recorded")
	}
}

// parseQueryTerms splits a free-text query into lowercase terms. Quoted spans
// become single exact-phrase terms keeping their spaces; everything else
// splits on whitespace.
func parseQueryTerms(query string) []string {
	var terms []string
	lower := strings.ToLower(query)

	for {
		start := strings.IndexByte(lower, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(lower[start+1:], '"')
		if end < 0 {
			break
		}
		if phrase := lower[start+1 : start+1+end]; phrase != "" {
			terms = append(terms, phrase)
		}
		lower = lower[:start] + " " + lower[start+1+end+1:]
	}

	return append(terms, strings.Fields(lower)...)
}

// matchesTerms requires every term to appear in the subject or snippet.
func matchesTerms(email *domain.EmailIndex, terms []string) bool {
	subject := strings.ToLower(email.Subject)
	snippet := strings.ToLower(email.Snippet)

	for _, term := range terms {
		if !strings.Contains(subject, term) && !strings.Contains(snippet, term) {
			return false
		}
	}
	return true
}
