package categorize

import (
	"context"
	"strings"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"

	"github.com/rs/zerolog"
)

// =============================================================================
// Label Classifier
// =============================================================================

// Per-indicator score contributions, capped at one. A single provider label
// is enough to cross the engine's spam (0.7) and promotional (0.8) gates.
const (
	spamIndicatorScore        = 0.8
	promotionalIndicatorScore = 0.9
	socialIndicatorScore      = 0.7
)

// LabelConfig holds the token sets matched against provider labels.
type LabelConfig struct {
	SpamLabels        []string
	PromotionalLabels []string
	SocialLabels      []string

	CacheTTL    time.Duration
	KeyStrategy KeyStrategy
}

func DefaultLabelConfig() *LabelConfig {
	return &LabelConfig{
		SpamLabels:        []string{"SPAM", "CATEGORY_SPAM", "JUNK", "PHISHING"},
		PromotionalLabels: []string{"CATEGORY_PROMOTIONS", "PROMOTIONS", "MARKETING"},
		SocialLabels:      []string{"CATEGORY_SOCIAL", "SOCIAL"},
		CacheTTL:          DefaultCacheTTL,
		KeyStrategy:       KeyStrategyPartial,
	}
}

// LabelClassifier derives the provider category and spam/promotional/social
// signals from the label set alone.
type LabelClassifier struct {
	cfg   *LabelConfig
	cache out.Cache
	log   zerolog.Logger
}

func NewLabelClassifier(cfg *LabelConfig, cache out.Cache, log zerolog.Logger) *LabelClassifier {
	if cfg == nil {
		cfg = DefaultLabelConfig()
	}
	return &LabelClassifier{
		cfg:   cfg,
		cache: cache,
		log:   log.With().Str("analyzer", "labels").Logger(),
	}
}

func (a *LabelClassifier) Analyze(ctx context.Context, ectx *domain.EmailAnalysisContext) (*domain.LabelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(a.cfg.KeyStrategy, "labels", ectx)
	var cached domain.LabelResult
	if cacheGet(ctx, a.cache, key, &cached) {
		return &cached, nil
	}

	labels := make(map[string]bool, len(ectx.Labels))
	for _, label := range ectx.Labels {
		labels[strings.ToUpper(label)] = true
	}

	result := &domain.LabelResult{
		GmailCategory:         gmailCategory(labels),
		SpamIndicators:        matchTokens(labels, a.cfg.SpamLabels),
		PromotionalIndicators: matchTokens(labels, a.cfg.PromotionalLabels),
		SocialIndicators:      matchTokens(labels, a.cfg.SocialLabels),
	}
	result.SpamScore = indicatorScore(len(result.SpamIndicators), spamIndicatorScore)
	result.PromotionalScore = indicatorScore(len(result.PromotionalIndicators), promotionalIndicatorScore)
	result.SocialScore = indicatorScore(len(result.SocialIndicators), socialIndicatorScore)

	cachePut(ctx, a.cache, a.log, key, result, a.cfg.CacheTTL)
	return result, nil
}

// gmailCategory maps the label set to one provider category token, most
// specific first. "other" is folded to "primary" by the engine on persist.
func gmailCategory(labels map[string]bool) string {
	switch {
	case labels[domain.LabelImportant] || labels["STARRED"]:
		return domain.GmailCategoryImportant
	case labels["SPAM"] || labels["CATEGORY_SPAM"] || labels["JUNK"]:
		return domain.GmailCategorySpam
	case labels["CATEGORY_PROMOTIONS"] || labels["PROMOTIONS"]:
		return domain.GmailCategoryPromotions
	case labels["CATEGORY_SOCIAL"] || labels["SOCIAL"]:
		return domain.GmailCategorySocial
	case labels["CATEGORY_UPDATES"] || labels["UPDATES"]:
		return domain.GmailCategoryUpdates
	case labels["CATEGORY_FORUMS"] || labels["FORUMS"]:
		return domain.GmailCategoryForums
	case labels[domain.LabelInbox] || labels["CATEGORY_PERSONAL"]:
		return domain.GmailCategoryPrimary
	default:
		return domain.GmailCategoryOther
	}
}

func matchTokens(labels map[string]bool, tokens []string) []string {
	var matched []string
	for _, token := range tokens {
		if labels[strings.ToUpper(token)] {
			matched = append(matched, token)
		}
	}
	return matched
}

func indicatorScore(count int, perMatch float64) float64 {
	score := float64(count) * perMatch
	if score > 1 {
		return 1
	}
	return score
}
