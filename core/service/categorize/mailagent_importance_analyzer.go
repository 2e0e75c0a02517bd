package categorize

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"

	"github.com/rs/zerolog"
)

// =============================================================================
// Importance Analyzer
// =============================================================================

const defaultLargeAttachmentMinSize = 1 << 20 // 1 MiB

// ImportanceConfig holds the rule set and scoring thresholds.
type ImportanceConfig struct {
	Rules         []domain.ImportanceRule
	HighThreshold float64 // score at or above is high
	LowThreshold  float64 // score at or below is low
	CacheTTL      time.Duration
	KeyStrategy   KeyStrategy
}

// DefaultImportanceConfig returns the stock rule set and thresholds.
func DefaultImportanceConfig() *ImportanceConfig {
	return &ImportanceConfig{
		Rules:         DefaultImportanceRules(),
		HighThreshold: 5.0,
		LowThreshold:  0.0,
		CacheTTL:      DefaultCacheTTL,
		KeyStrategy:   KeyStrategyPartial,
	}
}

// DefaultImportanceRules is the stock rule set applied when a user has no
// custom configuration.
func DefaultImportanceRules() []domain.ImportanceRule {
	return []domain.ImportanceRule{
		{
			ID:       "urgent-keywords",
			Kind:     domain.RuleKeyword,
			Priority: 10,
			Weight:   2.0,
			Keywords: []string{"urgent", "asap", "critical", "action required", "deadline", "immediately"},
		},
		{
			ID:       "important-senders",
			Kind:     domain.RuleDomain,
			Priority: 9,
			Weight:   2.5,
			Domains:  []string{"boss@", "ceo@", "hr@", "payroll@"},
		},
		{
			ID:       "important-labels",
			Kind:     domain.RuleLabel,
			Priority: 8,
			Weight:   1.5,
			Labels:   []string{domain.LabelImportant, "STARRED"},
		},
		{
			ID:       "no-reply-sender",
			Kind:     domain.RuleNoReply,
			Priority: 5,
			Weight:   -1.0,
		},
		{
			ID:       "large-attachment",
			Kind:     domain.RuleLargeAttachment,
			Priority: 3,
			Weight:   0.5,
		},
	}
}

// ImportanceAnalyzer scores emails against the configured rule set. Rules
// run in priority order; a failing rule is logged and skipped so the rest
// of the set still contributes.
type ImportanceAnalyzer struct {
	cfg   *ImportanceConfig
	cache out.Cache
	log   zerolog.Logger

	rules    []domain.ImportanceRule     // sorted by priority, descending
	keywords map[string][]*regexp.Regexp // rule id to compiled patterns
}

func NewImportanceAnalyzer(cfg *ImportanceConfig, cache out.Cache, log zerolog.Logger) *ImportanceAnalyzer {
	if cfg == nil {
		cfg = DefaultImportanceConfig()
	}

	rules := make([]domain.ImportanceRule, len(cfg.Rules))
	copy(rules, cfg.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	a := &ImportanceAnalyzer{
		cfg:      cfg,
		cache:    cache,
		log:      log.With().Str("analyzer", "importance").Logger(),
		rules:    rules,
		keywords: make(map[string][]*regexp.Regexp),
	}
	for _, rule := range rules {
		if rule.Kind != domain.RuleKeyword {
			continue
		}
		patterns := make([]*regexp.Regexp, 0, len(rule.Keywords))
		for _, keyword := range rule.Keywords {
			pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(keyword)) + `\b`)
			if err != nil {
				a.log.Warn().Err(err).Str("rule_id", rule.ID).Str("keyword", keyword).Msg("keyword pattern rejected")
				continue
			}
			patterns = append(patterns, pattern)
		}
		a.keywords[rule.ID] = patterns
	}
	return a
}

// Analyze returns the importance result for one email, from cache when the
// same context was scored within the TTL.
func (a *ImportanceAnalyzer) Analyze(ctx context.Context, ectx *domain.EmailAnalysisContext) (*domain.ImportanceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(a.cfg.KeyStrategy, "importance", ectx)
	var cached domain.ImportanceResult
	if cacheGet(ctx, a.cache, key, &cached) {
		return &cached, nil
	}

	result := a.evaluate(ectx)
	cachePut(ctx, a.cache, a.log, key, result, a.cfg.CacheTTL)
	return result, nil
}

func (a *ImportanceAnalyzer) evaluate(ectx *domain.EmailAnalysisContext) *domain.ImportanceResult {
	var score float64
	var matched []string
	prioritySum := 0

	for _, rule := range a.rules {
		eval := a.evaluateRule(rule, ectx)
		if eval.Err != nil {
			a.log.Warn().Err(eval.Err).Str("rule_id", rule.ID).Msg("rule evaluation failed, skipping")
			continue
		}
		if !eval.Matched {
			continue
		}
		score += eval.Score
		matched = append(matched, rule.ID)
		prioritySum += rule.Priority
	}

	level := domain.ImportanceMedium
	switch {
	case score >= a.cfg.HighThreshold:
		level = domain.ImportanceHigh
	case score <= a.cfg.LowThreshold:
		level = domain.ImportanceLow
	}

	var confidence float64
	if len(a.rules) > 0 {
		confidence = math.Min(1, float64(len(matched))/float64(len(a.rules))+float64(prioritySum)/100)
	}

	return &domain.ImportanceResult{
		Score:        score,
		Level:        level,
		MatchedRules: matched,
		Confidence:   confidence,
	}
}

func (a *ImportanceAnalyzer) evaluateRule(rule domain.ImportanceRule, ectx *domain.EmailAnalysisContext) domain.RuleEvaluation {
	eval := domain.RuleEvaluation{RuleID: rule.ID}

	switch rule.Kind {
	case domain.RuleKeyword:
		text := ectx.Subject + " " + ectx.Snippet
		var hits []string
		for i, pattern := range a.keywords[rule.ID] {
			if pattern.MatchString(text) {
				hits = append(hits, rule.Keywords[i])
			}
		}
		if len(hits) > 0 {
			eval.Matched = true
			eval.Score = float64(len(hits)) * rule.Weight
			eval.Reason = "keywords: " + strings.Join(hits, ", ")
		}

	case domain.RuleDomain:
		for _, d := range rule.Domains {
			if strings.Contains(ectx.Sender, strings.ToLower(d)) {
				eval.Matched = true
				eval.Score = rule.Weight
				eval.Reason = "sender matches " + d
				break
			}
		}

	case domain.RuleLabel:
		var hits []string
		for _, want := range rule.Labels {
			for _, label := range ectx.Labels {
				if strings.EqualFold(label, want) {
					hits = append(hits, want)
					break
				}
			}
		}
		if len(hits) > 0 {
			eval.Matched = true
			eval.Score = float64(len(hits)) * rule.Weight
			eval.Reason = "labels: " + strings.Join(hits, ", ")
		}

	case domain.RuleNoReply:
		if strings.Contains(ectx.Sender, "no-reply") || strings.Contains(ectx.Sender, "noreply") {
			eval.Matched = true
			eval.Score = rule.Weight
			eval.Reason = "no-reply sender"
		}

	case domain.RuleLargeAttachment:
		minSize := rule.MinSize
		if minSize <= 0 {
			minSize = defaultLargeAttachmentMinSize
		}
		if ectx.HasAttachments && ectx.SizeEstimate > minSize {
			eval.Matched = true
			eval.Score = rule.Weight
			eval.Reason = "large attachment"
		}

	default:
		eval.Err = fmt.Errorf("unknown rule kind %q", rule.Kind)
	}

	return eval
}
