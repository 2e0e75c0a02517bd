package categorize

import (
	"context"
	"math"
	"sort"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Categorization Engine
// =============================================================================

// EngineConfig tunes analyzer orchestration and the combiner gates.
type EngineConfig struct {
	EnableParallel bool
	Timeout        time.Duration // per-analyzer deadline
	RetryAttempts  int           // extra attempts after a failed analyzer call

	SpamThreshold        float64
	PromotionalThreshold float64

	ProgressLogEvery int
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		EnableParallel:       true,
		Timeout:              5 * time.Second,
		RetryAttempts:        0,
		SpamThreshold:        0.7,
		PromotionalThreshold: 0.8,
		ProgressLogEvery:     100,
	}
}

// EngineDeps holds the collaborators for NewEngine. Nil analyzers are
// replaced with default-configured ones sharing the engine's cache.
type EngineDeps struct {
	Registry   out.StoreRegistry
	Cache      out.Cache
	Importance *ImportanceAnalyzer
	DateSize   *DateSizeAnalyzer
	Labels     *LabelClassifier
}

// Engine orchestrates the fixed analyzer triple and persists combined
// results. The composition is closed, so the three analyzers are held
// directly rather than behind a shared interface.
type Engine struct {
	cfg      *EngineConfig
	registry out.StoreRegistry
	cache    out.Cache
	log      zerolog.Logger

	importance *ImportanceAnalyzer
	dateSize   *DateSizeAnalyzer
	labels     *LabelClassifier
}

var _ in.CategorizeService = (*Engine)(nil)

func NewEngine(deps *EngineDeps, cfg *EngineConfig, log zerolog.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if cfg.ProgressLogEvery <= 0 {
		cfg.ProgressLogEvery = 100
	}
	componentLog := log.With().Str("component", "categorization_engine").Logger()

	e := &Engine{
		cfg:        cfg,
		registry:   deps.Registry,
		cache:      deps.Cache,
		log:        componentLog,
		importance: deps.Importance,
		dateSize:   deps.DateSize,
		labels:     deps.Labels,
	}
	if e.importance == nil {
		e.importance = NewImportanceAnalyzer(nil, deps.Cache, componentLog)
	}
	if e.dateSize == nil {
		e.dateSize = NewDateSizeAnalyzer(nil, deps.Cache, componentLog)
	}
	if e.labels == nil {
		e.labels = NewLabelClassifier(nil, deps.Cache, componentLog)
	}
	return e
}

// CategorizeEmails analyzes the user's candidate emails and persists the
// enriched rows. Without ForceRefresh only rows with no category are
// pulled; with it, every row matching the year filter is rescored.
func (e *Engine) CategorizeEmails(ctx context.Context, opts *domain.CategorizationOptions) (*domain.CategorizationResult, error) {
	if opts == nil {
		opts = &domain.CategorizationOptions{}
	}
	store, err := e.storeFor(ctx, opts.UserID)
	if err != nil {
		return nil, err
	}

	criteria := &domain.SearchCriteria{
		UserID: opts.UserID,
		Year:   opts.Year,
	}
	if !opts.ForceRefresh {
		criteria.UncategorizedOnly = true
	}

	page, err := store.SearchEmails(ctx, criteria)
	if err != nil {
		return nil, err
	}

	result := &domain.CategorizationResult{
		Emails: make([]*domain.CombinedAnalysisResult, 0, len(page.Emails)),
	}
	for _, email := range page.Emails {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		analysis := e.analyze(ctx, email, opts.UserID)
		e.applyAnalysis(email, analysis)
		if err := store.UpsertEmailIndex(ctx, email, opts.UserID); err != nil {
			return nil, err
		}

		result.Emails = append(result.Emails, analysis)
		result.Processed++
		switch analysis.Category {
		case domain.CategoryHigh:
			result.Categories.High++
		case domain.CategoryMedium:
			result.Categories.Medium++
		case domain.CategoryLow:
			result.Categories.Low++
		}

		if result.Processed%e.cfg.ProgressLogEvery == 0 {
			e.log.Info().
				Int("processed", result.Processed).
				Int("total", len(page.Emails)).
				Str("user_id", opts.UserID).
				Msg("categorization progress")
		}
	}

	result.Insights = buildInsights(result)

	if e.cache != nil {
		if err := e.cache.FlushUser(ctx, opts.UserID); err != nil {
			e.log.Warn().Err(err).Str("user_id", opts.UserID).Msg("cache flush failed")
		}
	}
	return result, nil
}

// AnalyzeEmail runs the pipeline for one email without persisting anything.
func (e *Engine) AnalyzeEmail(ctx context.Context, email *domain.EmailIndex, userID string) (*domain.CombinedAnalysisResult, error) {
	if email == nil {
		return nil, apperr.MissingField("email")
	}
	return e.analyze(ctx, email, userID), nil
}

func (e *Engine) storeFor(ctx context.Context, userID string) (out.EmailStore, error) {
	if userID == "" {
		return e.registry.Shared(ctx)
	}
	return e.registry.Get(ctx, userID)
}

// analyze never fails: analyzer errors collapse to the medium fallback with
// confidence 0.5 so one broken email cannot unwind a run.
func (e *Engine) analyze(ctx context.Context, email *domain.EmailIndex, userID string) *domain.CombinedAnalysisResult {
	ectx := domain.NewAnalysisContext(email, userID)

	var (
		imp *domain.ImportanceResult
		ds  *domain.DateSizeResult
		lbl *domain.LabelResult
		err error
	)
	if e.cfg.EnableParallel {
		imp, ds, lbl, err = e.runParallel(ctx, ectx)
	} else {
		imp, ds, lbl, err = e.runSequential(ctx, ectx)
	}

	now := time.Now().UnixMilli()
	if err != nil {
		e.log.Warn().Err(err).Str("email_id", email.ID).Msg("analysis failed, using fallback category")
		return &domain.CombinedAnalysisResult{
			EmailID:    email.ID,
			Category:   domain.CategoryMedium,
			Confidence: 0.5,
			Fallback:   true,
			AnalyzedAt: now,
		}
	}

	return &domain.CombinedAnalysisResult{
		EmailID:    email.ID,
		Category:   e.combine(imp, ds, lbl),
		Confidence: overallConfidence(imp, lbl),
		Importance: imp,
		DateSize:   ds,
		Label:      lbl,
		AnalyzedAt: now,
	}
}

func (e *Engine) runParallel(ctx context.Context, ectx *domain.EmailAnalysisContext) (*domain.ImportanceResult, *domain.DateSizeResult, *domain.LabelResult, error) {
	var (
		imp *domain.ImportanceResult
		ds  *domain.DateSizeResult
		lbl *domain.LabelResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		imp, err = runAnalyzer(gctx, e.cfg, func(c context.Context) (*domain.ImportanceResult, error) {
			return e.importance.Analyze(c, ectx)
		})
		return err
	})
	g.Go(func() (err error) {
		ds, err = runAnalyzer(gctx, e.cfg, func(c context.Context) (*domain.DateSizeResult, error) {
			return e.dateSize.Analyze(c, ectx)
		})
		return err
	})
	g.Go(func() (err error) {
		lbl, err = runAnalyzer(gctx, e.cfg, func(c context.Context) (*domain.LabelResult, error) {
			return e.labels.Analyze(c, ectx)
		})
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return imp, ds, lbl, nil
}

func (e *Engine) runSequential(ctx context.Context, ectx *domain.EmailAnalysisContext) (*domain.ImportanceResult, *domain.DateSizeResult, *domain.LabelResult, error) {
	started := time.Now()
	imp, err := runAnalyzer(ctx, e.cfg, func(c context.Context) (*domain.ImportanceResult, error) {
		return e.importance.Analyze(c, ectx)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	e.log.Debug().Dur("took", time.Since(started)).Str("analyzer", "importance").Msg("analyzer finished")

	started = time.Now()
	ds, err := runAnalyzer(ctx, e.cfg, func(c context.Context) (*domain.DateSizeResult, error) {
		return e.dateSize.Analyze(c, ectx)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	e.log.Debug().Dur("took", time.Since(started)).Str("analyzer", "datesize").Msg("analyzer finished")

	started = time.Now()
	lbl, err := runAnalyzer(ctx, e.cfg, func(c context.Context) (*domain.LabelResult, error) {
		return e.labels.Analyze(c, ectx)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	e.log.Debug().Dur("took", time.Since(started)).Str("analyzer", "labels").Msg("analyzer finished")

	return imp, ds, lbl, nil
}

// runAnalyzer applies the per-analyzer deadline and optional retries.
func runAnalyzer[T any](ctx context.Context, cfg *EngineConfig, fn func(context.Context) (T, error)) (T, error) {
	var result T
	var err error
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		result, err = fn(actx)
		cancel()
		if err == nil {
			return result, nil
		}
	}
	return result, err
}

func (e *Engine) combine(imp *domain.ImportanceResult, ds *domain.DateSizeResult, lbl *domain.LabelResult) domain.Category {
	recentAndImportant := ds.AgeCategory == domain.AgeRecent && lbl.GmailCategory == domain.GmailCategoryImportant

	switch imp.Level {
	case domain.ImportanceHigh:
		return domain.CategoryHigh
	case domain.ImportanceLow:
		if recentAndImportant {
			return domain.CategoryMedium
		}
		return domain.CategoryLow
	case domain.ImportanceMedium:
		if recentAndImportant {
			return domain.CategoryHigh
		}
		if lbl.SpamScore > e.cfg.SpamThreshold || lbl.PromotionalScore > e.cfg.PromotionalThreshold {
			return domain.CategoryLow
		}
		return domain.CategoryMedium
	default:
		return domain.CategoryMedium
	}
}

func overallConfidence(imp *domain.ImportanceResult, lbl *domain.LabelResult) float64 {
	indicators := math.Min(1, float64(lbl.IndicatorCount())*0.2)
	return 0.6*imp.Confidence + 0.2*0.8 + 0.2*indicators
}

// applyAnalysis copies the analyzer fields onto the row. Fallback results
// only stamp the category and version.
func (e *Engine) applyAnalysis(email *domain.EmailIndex, analysis *domain.CombinedAnalysisResult) {
	version := domain.AnalysisVersion
	email.Category = &analysis.Category
	email.AnalysisTimestamp = &analysis.AnalyzedAt
	email.AnalysisVersion = &version
	if analysis.Fallback {
		return
	}

	imp := analysis.Importance
	email.ImportanceScore = &imp.Score
	email.ImportanceLevel = &imp.Level
	email.ImportanceMatchedRules = imp.MatchedRules
	email.ImportanceConfidence = &imp.Confidence

	ds := analysis.DateSize
	email.AgeCategory = &ds.AgeCategory
	email.SizeCategory = &ds.SizeCategory
	email.RecencyScore = &ds.RecencyScore
	email.SizePenalty = &ds.SizePenalty

	lbl := analysis.Label
	gmailCategory := lbl.GmailCategory
	if gmailCategory == domain.GmailCategoryOther {
		gmailCategory = domain.GmailCategoryPrimary
	}
	email.GmailCategory = &gmailCategory
	email.SpamScore = &lbl.SpamScore
	email.PromotionalScore = &lbl.PromotionalScore
	email.SocialScore = &lbl.SocialScore
	email.SpamIndicators = lbl.SpamIndicators
	email.PromotionalIndicators = lbl.PromotionalIndicators
	email.SocialIndicators = lbl.SocialIndicators
}

func buildInsights(result *domain.CategorizationResult) *domain.CategorizationInsights {
	insights := &domain.CategorizationInsights{
		AgeHistogram:  make(map[string]int),
		SizeHistogram: make(map[string]int),
	}
	if result.Processed == 0 {
		return insights
	}

	ruleCounts := make(map[string]int)
	spamCount := 0
	var confidenceSum float64
	confidenceN := 0

	for _, analysis := range result.Emails {
		if analysis.Importance != nil {
			for _, id := range analysis.Importance.MatchedRules {
				ruleCounts[id]++
			}
			confidenceSum += analysis.Importance.Confidence
			confidenceN++
		}
		if analysis.Label != nil && analysis.Label.SpamScore > 0.5 {
			spamCount++
		}
		if analysis.DateSize != nil {
			insights.AgeHistogram[string(analysis.DateSize.AgeCategory)]++
			insights.SizeHistogram[string(analysis.DateSize.SizeCategory)]++
		}
	}

	insights.SpamRate = float64(spamCount) / float64(result.Processed)
	if confidenceN > 0 {
		insights.AverageConfidence = confidenceSum / float64(confidenceN)
	}

	for id, count := range ruleCounts {
		insights.TopRules = append(insights.TopRules, domain.RuleFrequency{RuleID: id, Count: count})
	}
	sort.Slice(insights.TopRules, func(i, j int) bool {
		if insights.TopRules[i].Count != insights.TopRules[j].Count {
			return insights.TopRules[i].Count > insights.TopRules[j].Count
		}
		return insights.TopRules[i].RuleID < insights.TopRules[j].RuleID
	})
	if len(insights.TopRules) > 5 {
		insights.TopRules = insights.TopRules[:5]
	}
	return insights
}
