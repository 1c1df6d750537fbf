package matching

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexus-community/match-engine/internal/common/utils"
	"github.com/nexus-community/match-engine/internal/config"
)

// PreferencesStore reads and writes per-user match preferences. Reads
// never error on absence: a user without a saved row gets the platform
// defaults. Saves merge the provided fields over the current values;
// unspecified fields are left untouched.
type PreferencesStore struct {
	repo   Repository
	cfg    config.MatchingConfig
	logger *zap.Logger
}

func NewPreferencesStore(repo Repository, cfg config.MatchingConfig, logger *zap.Logger) *PreferencesStore {
	return &PreferencesStore{repo: repo, cfg: cfg, logger: logger}
}

// Defaults returns the platform default preferences for a user. Kept as
// an explicit value rather than hidden fallbacks so the default policy is
// visible and testable.
func (s *PreferencesStore) Defaults(tenantID, userID int64) *Preferences {
	return &Preferences{
		TenantID:              tenantID,
		UserID:                userID,
		MaxDistanceKm:         s.cfg.DefaultMaxDistanceKm,
		MinMatchScore:         s.cfg.DefaultMinMatchScore,
		NotificationFrequency: Frequency(s.cfg.DefaultNotifyFreq),
		NotifyHotMatches:      true,
		NotifyMutualMatches:   true,
		Categories:            nil,
	}
}

// Get returns the user's preferences, falling back to defaults when no
// row exists or the store is unreachable. It never errors: preferences
// are a filter, and the defaults are always a safe filter.
func (s *PreferencesStore) Get(ctx context.Context, tenantID, userID int64) *Preferences {
	prefs, err := s.repo.GetPreferences(ctx, tenantID, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("preferences read failed, using defaults",
				zap.Int64("tenant_id", tenantID), zap.Int64("user_id", userID), zap.Error(err))
		}
		return s.Defaults(tenantID, userID)
	}
	return prefs
}

// Save validates and merges a partial update over the current preferences
// and persists the result. Invalid values are rejected with a
// ValidationError, never clamped. Storage failures propagate: a save is a
// user-visible command that must not silently no-op.
func (s *PreferencesStore) Save(ctx context.Context, tenantID, userID int64, update *PreferencesUpdate) (*Preferences, error) {
	if err := utils.ValidateStruct(update); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	prefs := s.Get(ctx, tenantID, userID)

	if update.MaxDistanceKm != nil {
		prefs.MaxDistanceKm = *update.MaxDistanceKm
	}
	if update.MinMatchScore != nil {
		prefs.MinMatchScore = *update.MinMatchScore
	}
	if update.NotificationFrequency != nil {
		freq, err := ParseFrequency(*update.NotificationFrequency)
		if err != nil {
			return nil, err
		}
		prefs.NotificationFrequency = freq
	}
	if update.NotifyHotMatches != nil {
		prefs.NotifyHotMatches = *update.NotifyHotMatches
	}
	if update.NotifyMutualMatches != nil {
		prefs.NotifyMutualMatches = *update.NotifyMutualMatches
	}
	if update.Categories != nil {
		prefs.Categories = *update.Categories
	}

	if err := s.repo.UpsertPreferences(ctx, prefs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return prefs, nil
}
