package domain

// Category is the final per-email category produced by the categorization
// engine. A nil category means the email has not been analyzed yet.
type Category string

const (
	CategoryHigh   Category = "high"
	CategoryMedium Category = "medium"
	CategoryLow    Category = "low"
)

// ImportanceLevel is the importance analyzer's discrete output.
type ImportanceLevel string

const (
	ImportanceHigh   ImportanceLevel = "high"
	ImportanceMedium ImportanceLevel = "medium"
	ImportanceLow    ImportanceLevel = "low"
)

// ImportanceRank orders levels low < medium < high for ceiling comparisons.
func ImportanceRank(l ImportanceLevel) int {
	switch l {
	case ImportanceLow:
		return 0
	case ImportanceMedium:
		return 1
	case ImportanceHigh:
		return 2
	default:
		return -1
	}
}

// AgeCategory buckets an email by age.
type AgeCategory string

const (
	AgeRecent   AgeCategory = "recent"
	AgeModerate AgeCategory = "moderate"
	AgeOld      AgeCategory = "old"
)

// SizeCategory buckets an email by size estimate.
type SizeCategory string

const (
	SizeSmall  SizeCategory = "small"
	SizeMedium SizeCategory = "medium"
	SizeLarge  SizeCategory = "large"
)

// Provider category tokens. "other" is an analyzer-only value: the engine
// folds it to "primary" before persisting because the column constraint does
// not accept it.
const (
	GmailCategoryImportant  = "important"
	GmailCategorySpam       = "spam"
	GmailCategoryPromotions = "promotions"
	GmailCategorySocial     = "social"
	GmailCategoryPrimary    = "primary"
	GmailCategoryUpdates    = "updates"
	GmailCategoryForums     = "forums"
	GmailCategoryOther      = "other"
)

// Wire-sensitive provider label vocabulary.
const (
	LabelInbox     = "INBOX"
	LabelTrash     = "TRASH"
	LabelUnread    = "UNREAD"
	LabelArchived  = "ARCHIVED"
	LabelImportant = "IMPORTANT"
)

// archive_location protocol values. Deletes write the lowercase literal,
// gmail-method archives the uppercase one; export archives store the file
// path instead. Tests depend on the exact strings.
const (
	ArchiveLocationTrash = "trash"
	ArchiveLocationGmail = "ARCHIVED"
)

// AnalysisVersion stamps rows written by the current engine.
const AnalysisVersion = "1.0.0"

// EmailIndex is the local mirror row of a remote message. All timestamps are
// epoch milliseconds. Pointer fields are nullable until first analyzed.
type EmailIndex struct {
	// Identity
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`

	// Envelope
	Subject        string   `json:"subject"`
	Sender         string   `json:"sender"`
	Recipients     []string `json:"recipients"`
	Date           int64    `json:"date"` // epoch ms
	Year           int      `json:"year"`
	SizeEstimate   int64    `json:"size_estimate"`
	HasAttachments bool     `json:"has_attachments"`
	Labels         []string `json:"labels"`
	Snippet        string   `json:"snippet"`

	// Lifecycle
	Archived        bool      `json:"archived"`
	ArchiveDate     *int64    `json:"archive_date,omitempty"` // epoch ms
	ArchiveLocation *string   `json:"archive_location,omitempty"`
	Category        *Category `json:"category,omitempty"`

	// Importance analysis
	ImportanceScore        *float64         `json:"importance_score,omitempty"`
	ImportanceLevel        *ImportanceLevel `json:"importance_level,omitempty"`
	ImportanceMatchedRules []string         `json:"importance_matched_rules,omitempty"`
	ImportanceConfidence   *float64         `json:"importance_confidence,omitempty"`

	// Date/size analysis
	AgeCategory  *AgeCategory  `json:"age_category,omitempty"`
	SizeCategory *SizeCategory `json:"size_category,omitempty"`
	RecencyScore *float64      `json:"recency_score,omitempty"`
	SizePenalty  *float64      `json:"size_penalty,omitempty"`

	// Label analysis
	GmailCategory         *string  `json:"gmail_category,omitempty"`
	SpamScore             *float64 `json:"spam_score,omitempty"`
	PromotionalScore      *float64 `json:"promotional_score,omitempty"`
	SocialScore           *float64 `json:"social_score,omitempty"`
	SpamIndicators        []string `json:"spam_indicators,omitempty"`
	PromotionalIndicators []string `json:"promotional_indicators,omitempty"`
	SocialIndicators      []string `json:"social_indicators,omitempty"`

	// Analysis bookkeeping
	AnalysisTimestamp *int64  `json:"analysis_timestamp,omitempty"` // epoch ms
	AnalysisVersion   *string `json:"analysis_version,omitempty"`

	// Ownership. Empty means legacy single-user mode.
	UserID string `json:"user_id,omitempty"`
}

// HasLabel reports case-sensitive membership (provider labels are exact).
func (e *EmailIndex) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// SearchCriteria is the parametric query surface of Store.SearchEmails.
// Every non-zero field appends one conjunctive predicate; Query is applied
// by the SearchEngine after the database call.
type SearchCriteria struct {
	Category          *Category  `json:"category,omitempty"`
	Categories        []Category `json:"categories,omitempty"`
	IDs               []string   `json:"ids,omitempty"`
	Year              *int       `json:"year,omitempty"`
	YearStart         *int       `json:"year_start,omitempty"`
	YearEnd           *int       `json:"year_end,omitempty"`
	SizeMin           *int64     `json:"size_min,omitempty"`
	SizeMax           *int64     `json:"size_max,omitempty"`
	Archived          *bool      `json:"archived,omitempty"`
	Sender            string     `json:"sender,omitempty"`
	Labels            []string   `json:"labels,omitempty"`
	HasAttachments    *bool      `json:"has_attachments,omitempty"`
	UncategorizedOnly bool       `json:"uncategorized_only,omitempty"`

	// Free-text query with quoted-phrase semantics, applied post-hoc.
	Query string `json:"query,omitempty"`

	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SearchResult carries one page plus the window-function total.
type SearchResult struct {
	Emails []*EmailIndex `json:"emails"`
	Total  int           `json:"total"`
}
