package risk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devchilll/scope/internal/iam"
)

// CachedScorer is a read-through Redis decorator over another Scorer.
// Cache keys bind the principal's id and role to the content hash, so a
// verdict computed for one caller is never served to another. Redis
// failures fall through to the inner scorer; the cache is an optimization,
// never an authority.
type CachedScorer struct {
	inner  Scorer
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedScorer wraps inner with a Redis cache. TTL <= 0 defaults to
// five minutes.
func NewCachedScorer(inner Scorer, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedScorer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedScorer{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(text string, principal iam.Principal) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("scope:risk:%s:%s:%s", principal.ID, principal.Role, hex.EncodeToString(sum[:]))
}

// Score serves a cached analysis when one exists for this principal and
// text, and otherwise scores through and stores the result. Inner scorer
// errors are returned uncached.
func (c *CachedScorer) Score(ctx context.Context, text string, principal iam.Principal) (Analysis, error) {
	key := cacheKey(text, principal)

	data, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var a Analysis
		if jsonErr := json.Unmarshal([]byte(data), &a); jsonErr == nil && a.Valid() {
			return a, nil
		}
		// Corrupt entry: drop it and rescore.
		c.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("risk cache read failed", "error", err)
	}

	a, err := c.inner.Score(ctx, text, principal)
	if err != nil {
		return Analysis{}, err
	}

	if encoded, jsonErr := json.Marshal(a); jsonErr == nil {
		if setErr := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.logger.Warn("risk cache write failed", "error", setErr)
		}
	}
	return a, nil
}
