package domain

import "strings"

// EmailAnalysisContext is the normalized per-email input shared by all three
// analyzers. Text fields are lowercased once so rule evaluation stays
// case-insensitive without repeated conversions.
type EmailAnalysisContext struct {
	Email          *EmailIndex `json:"email"`
	Subject        string      `json:"subject"`
	Sender         string      `json:"sender"`
	Snippet        string      `json:"snippet"`
	Labels         []string    `json:"labels"`
	Date           int64       `json:"date"` // epoch ms
	SizeEstimate   int64       `json:"size_estimate"`
	HasAttachments bool        `json:"has_attachments"`
	UserID         string      `json:"user_id"`
}

// NewAnalysisContext builds the normalized context for one email.
func NewAnalysisContext(email *EmailIndex, userID string) *EmailAnalysisContext {
	return &EmailAnalysisContext{
		Email:          email,
		Subject:        strings.ToLower(email.Subject),
		Sender:         strings.ToLower(email.Sender),
		Snippet:        strings.ToLower(email.Snippet),
		Labels:         email.Labels,
		Date:           email.Date,
		SizeEstimate:   email.SizeEstimate,
		HasAttachments: email.HasAttachments,
		UserID:         userID,
	}
}

// RuleKind discriminates the importance rule variants.
type RuleKind string

const (
	RuleKeyword         RuleKind = "keyword"
	RuleDomain          RuleKind = "domain"
	RuleLabel           RuleKind = "label"
	RuleNoReply         RuleKind = "noReply"
	RuleLargeAttachment RuleKind = "largeAttachment"
)

// ImportanceRule is one configurable rule. Only the fields matching Kind are
// consulted.
type ImportanceRule struct {
	ID       string   `json:"id"`
	Kind     RuleKind `json:"kind"`
	Priority int      `json:"priority"` // evaluated high to low
	Weight   float64  `json:"weight"`
	Keywords []string `json:"keywords,omitempty"`
	Domains  []string `json:"domains,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	MinSize  int64    `json:"min_size,omitempty"` // largeAttachment floor, bytes
}

// RuleEvaluation is the per-rule outcome. Failures are carried as values so
// one broken rule never unwinds the evaluation loop.
type RuleEvaluation struct {
	RuleID  string  `json:"rule_id"`
	Matched bool    `json:"matched"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
	Err     error   `json:"-"`
}

// ImportanceResult is the importance analyzer output.
type ImportanceResult struct {
	Score        float64         `json:"score"`
	Level        ImportanceLevel `json:"level"`
	MatchedRules []string        `json:"matched_rules"`
	Confidence   float64         `json:"confidence"`
}

// DateSizeResult is the date/size analyzer output.
type DateSizeResult struct {
	AgeCategory  AgeCategory  `json:"age_category"`
	SizeCategory SizeCategory `json:"size_category"`
	AgeDays      float64      `json:"age_days"`
	RecencyScore float64      `json:"recency_score"`
	SizePenalty  float64      `json:"size_penalty"`
}

// LabelResult is the label classifier output. GmailCategory may be "other",
// which the engine folds to "primary" when persisting.
type LabelResult struct {
	GmailCategory         string   `json:"gmail_category"`
	SpamScore             float64  `json:"spam_score"`
	PromotionalScore      float64  `json:"promotional_score"`
	SocialScore           float64  `json:"social_score"`
	SpamIndicators        []string `json:"spam_indicators"`
	PromotionalIndicators []string `json:"promotional_indicators"`
	SocialIndicators      []string `json:"social_indicators"`
}

// IndicatorCount is the total number of matched label indicators, used by the
// engine's overall-confidence formula.
func (r *LabelResult) IndicatorCount() int {
	return len(r.SpamIndicators) + len(r.PromotionalIndicators) + len(r.SocialIndicators)
}

// CombinedAnalysisResult is the engine's per-email outcome. When Fallback is
// set the analyzer pointers are nil and only the category is trustworthy.
type CombinedAnalysisResult struct {
	EmailID    string            `json:"email_id"`
	Category   Category          `json:"category"`
	Confidence float64           `json:"confidence"`
	Importance *ImportanceResult `json:"importance,omitempty"`
	DateSize   *DateSizeResult   `json:"date_size,omitempty"`
	Label      *LabelResult      `json:"label,omitempty"`
	Fallback   bool              `json:"fallback,omitempty"`
	AnalyzedAt int64             `json:"analyzed_at"` // epoch ms
}

// CategorizationOptions selects the candidate set for one engine run.
type CategorizationOptions struct {
	ForceRefresh bool   `json:"force_refresh,omitempty"`
	Year         *int   `json:"year,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// CategoryCounts tallies final categories for one run.
type CategoryCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// RuleFrequency is one entry of the top-matched-rules insight.
type RuleFrequency struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// CategorizationInsights summarizes one engine run.
type CategorizationInsights struct {
	TopRules          []RuleFrequency `json:"top_rules"`
	SpamRate          float64         `json:"spam_rate"`
	AverageConfidence float64         `json:"average_confidence"`
	AgeHistogram      map[string]int  `json:"age_histogram"`
	SizeHistogram     map[string]int  `json:"size_histogram"`
}

// CategorizationResult is the engine's run-level return value.
type CategorizationResult struct {
	Processed  int                       `json:"processed"`
	Categories CategoryCounts            `json:"categories"`
	Emails     []*CombinedAnalysisResult `json:"emails"`
	Insights   *CategorizationInsights   `json:"insights,omitempty"`
}
