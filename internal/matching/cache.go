package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MatchCache stores the last computed score per (tenant, user, listing)
// pair. Postgres is the durable store; redis fronts it with a short-lived
// per-user snapshot so hot users don't hit the table on every request.
// The cache is an optimization only: losing redis, or the whole table,
// costs recompute time but never correctness.
type MatchCache struct {
	repo   Repository
	redis  *redis.Client // nil when redis is unavailable
	ttl    time.Duration
	logger *zap.Logger
}

// The redis snapshot lives much shorter than the score TTL; it only needs
// to absorb request bursts, staleness is still judged per entry.
const redisSnapshotTTL = 15 * time.Minute

func NewMatchCache(repo Repository, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *MatchCache {
	return &MatchCache{
		repo:   repo,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *MatchCache) snapshotKey(tenantID, userID int64) string {
	return fmt.Sprintf("match:scores:%d:%d", tenantID, userID)
}

// GetScores returns every cached score for the user, freshest-path first:
// redis snapshot, then postgres. A storage failure returns an empty set
// and a wrapped ErrStorageUnavailable; callers recompute instead of
// failing the query.
func (c *MatchCache) GetScores(ctx context.Context, tenantID, userID int64) ([]*MatchScore, error) {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, c.snapshotKey(tenantID, userID)).Bytes()
		if err == nil {
			var scores []*MatchScore
			if jsonErr := json.Unmarshal(raw, &scores); jsonErr == nil {
				RecordCacheHit()
				return scores, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn("redis snapshot read failed, falling back to postgres",
				zap.Int64("tenant_id", tenantID), zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	RecordCacheMiss()

	scores, err := c.repo.GetScores(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	c.storeSnapshot(ctx, tenantID, userID, scores)
	return scores, nil
}

// Put fully replaces the cached record for the score's key. Last write
// wins under concurrent recomputation; the snapshot is dropped so the
// next read sees the durable state.
func (c *MatchCache) Put(ctx context.Context, score *MatchScore) error {
	if err := c.repo.UpsertScore(ctx, score); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	c.dropSnapshot(ctx, score.TenantID, score.UserID)
	return nil
}

// Invalidate removes the cached score for one pair, forcing recomputation
// on the next query.
func (c *MatchCache) Invalidate(ctx context.Context, tenantID, userID, listingID int64) error {
	if err := c.repo.DeleteScore(ctx, tenantID, userID, listingID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	c.dropSnapshot(ctx, tenantID, userID)
	return nil
}

// InvalidateUser clears everything cached for a user, used when their
// listings, interests or location change.
func (c *MatchCache) InvalidateUser(ctx context.Context, tenantID, userID int64) error {
	if err := c.repo.DeleteScoresForUser(ctx, tenantID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	c.dropSnapshot(ctx, tenantID, userID)
	return nil
}

// IsStale reports whether a cached score may not be served as fresh:
// either its age exceeds the TTL, or an invalidating interaction
// (dismissed/contacted) was recorded for the pair after it was computed.
func (c *MatchCache) IsStale(score *MatchScore, lastInvalidating time.Time, now time.Time) bool {
	if now.Sub(score.ComputedAt) > c.ttl {
		return true
	}
	return lastInvalidating.After(score.ComputedAt)
}

// TTL exposes the staleness horizon for callers sizing history windows.
func (c *MatchCache) TTL() time.Duration {
	return c.ttl
}

// PurgeExpired drops durable entries older than the TTL. Run periodically.
func (c *MatchCache) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := c.repo.DeleteExpiredScores(ctx, now.Add(-c.ttl))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return deleted, nil
}

func (c *MatchCache) storeSnapshot(ctx context.Context, tenantID, userID int64, scores []*MatchScore) {
	if c.redis == nil || len(scores) == 0 {
		return
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.snapshotKey(tenantID, userID), raw, redisSnapshotTTL).Err(); err != nil {
		c.logger.Warn("redis snapshot write failed",
			zap.Int64("tenant_id", tenantID), zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (c *MatchCache) dropSnapshot(ctx context.Context, tenantID, userID int64) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.snapshotKey(tenantID, userID)).Err(); err != nil {
		c.logger.Warn("redis snapshot delete failed",
			zap.Int64("tenant_id", tenantID), zap.Int64("user_id", userID), zap.Error(err))
	}
}
