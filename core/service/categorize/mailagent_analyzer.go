// Package categorize implements the three-analyzer categorization pipeline.
//
// Each email is scored by a fixed triple of analyzers:
//
//	Importance → configurable rule set (keywords, senders, labels, size)
//	DateSize   → age and size buckets plus recency/penalty scores
//	Label      → provider category plus spam/promotional/social signals
//
// The engine combines the three results into a final high/medium/low
// category and persists the enriched row. Every analyzer is cache-backed;
// cache trouble is logged and treated as a miss.
package categorize

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// KeyStrategy selects how analyzer cache keys are derived from the context.
type KeyStrategy string

const (
	// KeyStrategyPartial keys on id, subject and sender only.
	KeyStrategyPartial KeyStrategy = "partial"
	// KeyStrategyFull keys on the base64 of the whole canonical context.
	KeyStrategyFull KeyStrategy = "full"
)

// DefaultCacheTTL bounds how long analyzer results stay valid.
const DefaultCacheTTL = 300 * time.Second

const millisPerDay = int64(24 * time.Hour / time.Millisecond)

func cacheKey(strategy KeyStrategy, prefix string, ectx *domain.EmailAnalysisContext) string {
	if strategy == KeyStrategyFull {
		if canonical, err := json.Marshal(ectx); err == nil {
			return fmt.Sprintf("%s:%s:%s", prefix, ectx.UserID, base64.StdEncoding.EncodeToString(canonical))
		}
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s", prefix, ectx.UserID, ectx.Email.ID, ectx.Subject, ectx.Sender)
}

func cacheGet(ctx context.Context, cache out.Cache, key string, dest any) bool {
	if cache == nil {
		return false
	}
	data, err := cache.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func cachePut(ctx context.Context, cache out.Cache, log zerolog.Logger, key string, value any, ttl time.Duration) {
	if cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := cache.Set(ctx, key, data, ttl); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
}
