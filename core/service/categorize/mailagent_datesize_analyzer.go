package categorize

import (
	"context"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"

	"github.com/rs/zerolog"
)

// =============================================================================
// Date/Size Analyzer
// =============================================================================

// DateSizeConfig holds the age and size bucket boundaries. Boundaries are
// inclusive: an email exactly RecentDays old is still recent.
type DateSizeConfig struct {
	RecentDays   int
	ModerateDays int
	OldDays      int // recency score reaches zero here

	SmallBytes      int64
	MediumBytes     int64
	PenaltyCapBytes int64 // size penalty reaches one here

	CacheTTL    time.Duration
	KeyStrategy KeyStrategy
}

func DefaultDateSizeConfig() *DateSizeConfig {
	return &DateSizeConfig{
		RecentDays:      7,
		ModerateDays:    30,
		OldDays:         365,
		SmallBytes:      100 << 10, // 100 KiB
		MediumBytes:     1 << 20,   // 1 MiB
		PenaltyCapBytes: 10 << 20,  // 10 MiB
		CacheTTL:        DefaultCacheTTL,
		KeyStrategy:     KeyStrategyPartial,
	}
}

// DateSizeAnalyzer buckets emails by age and size. Future-dated emails get a
// negative age, land in the recent bucket and may score a recency above one.
type DateSizeAnalyzer struct {
	cfg   *DateSizeConfig
	cache out.Cache
	log   zerolog.Logger
	now   func() time.Time
}

func NewDateSizeAnalyzer(cfg *DateSizeConfig, cache out.Cache, log zerolog.Logger) *DateSizeAnalyzer {
	if cfg == nil {
		cfg = DefaultDateSizeConfig()
	}
	return &DateSizeAnalyzer{
		cfg:   cfg,
		cache: cache,
		log:   log.With().Str("analyzer", "datesize").Logger(),
		now:   time.Now,
	}
}

func (a *DateSizeAnalyzer) Analyze(ctx context.Context, ectx *domain.EmailAnalysisContext) (*domain.DateSizeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(a.cfg.KeyStrategy, "datesize", ectx)
	var cached domain.DateSizeResult
	if cacheGet(ctx, a.cache, key, &cached) {
		return &cached, nil
	}

	ageDays := float64(a.now().UnixMilli()-ectx.Date) / float64(millisPerDay)

	ageCategory := domain.AgeOld
	switch {
	case ageDays <= float64(a.cfg.RecentDays):
		ageCategory = domain.AgeRecent
	case ageDays <= float64(a.cfg.ModerateDays):
		ageCategory = domain.AgeModerate
	}

	sizeCategory := domain.SizeLarge
	switch {
	case ectx.SizeEstimate <= a.cfg.SmallBytes:
		sizeCategory = domain.SizeSmall
	case ectx.SizeEstimate <= a.cfg.MediumBytes:
		sizeCategory = domain.SizeMedium
	}

	recency := 1 - ageDays/float64(a.cfg.OldDays)
	if recency < 0 {
		recency = 0
	}

	var penalty float64
	if ectx.SizeEstimate > a.cfg.SmallBytes {
		penalty = float64(ectx.SizeEstimate-a.cfg.SmallBytes) / float64(a.cfg.PenaltyCapBytes-a.cfg.SmallBytes)
		if penalty > 1 {
			penalty = 1
		}
	}

	result := &domain.DateSizeResult{
		AgeCategory:  ageCategory,
		SizeCategory: sizeCategory,
		AgeDays:      ageDays,
		RecencyScore: recency,
		SizePenalty:  penalty,
	}
	cachePut(ctx, a.cache, a.log, key, result, a.cfg.CacheTTL)
	return result, nil
}
