package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder appends entries to the match history ledger. History is never
// updated or deleted; it feeds the behavioral factor of the scorer and
// "previously shown" suppression.
type Recorder struct {
	repo   Repository
	cache  *MatchCache
	logger *zap.Logger
}

func NewRecorder(repo Repository, cache *MatchCache, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, cache: cache, logger: logger}
}

// Record appends one interaction. A dismissed or contacted action also
// invalidates the cached score for the pair so the next query reflects
// the change immediately instead of after the TTL. History and cache are
// independent writes: if the invalidation fails the inconsistency is
// logged and self-heals at the next TTL expiry.
func (r *Recorder) Record(ctx context.Context, tenantID, userID, listingID int64, action Action, scoreAtTime, distanceKm *float64) error {
	interaction := &Interaction{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		ListingID:   listingID,
		Action:      action,
		ScoreAtTime: scoreAtTime,
		DistanceKm:  distanceKm,
		CreatedAt:   time.Now().UTC(),
	}

	if err := r.repo.AppendInteraction(ctx, interaction); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	RecordInteractionMetric(action)

	if action == ActionDismissed || action == ActionContacted {
		if err := r.cache.Invalidate(ctx, tenantID, userID, listingID); err != nil {
			r.logger.Warn("cache invalidation after interaction failed",
				zap.Int64("tenant_id", tenantID),
				zap.Int64("user_id", userID),
				zap.Int64("listing_id", listingID),
				zap.String("action", string(action)),
				zap.Error(err))
		}
	}

	return nil
}
