package matching

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/nexus-community/match-engine/internal/config"
)

// Neutral factor values used when a signal is absent. A pair with no
// usable signal at all lands on a low-but-nonzero baseline so new users
// still see candidate diversity.
const (
	neutralOverlap  = 40.0
	neutralBehavior = 50.0

	// A dismissed listing is near-excluded, not zeroed, so the cached
	// record stays explainable.
	dismissedScoreCap = 5.0

	// Interest overlap scales from 100 (top interest) down to this for
	// the lowest-priority declared interest.
	minInterestScore = 40.0

	// Behavioral nudges per prior interaction.
	behaviorContactedCategory = 12.0
	behaviorSavedCategory     = 6.0
	behaviorPositiveOwner     = 8.0
	behaviorDismissedCategory = 6.0
)

// Breakdown carries the per-factor scores of one computation. Distance is
// nil when neither side has a usable coordinate.
type Breakdown struct {
	Distance *float64 `json:"distance,omitempty"`
	Overlap  float64  `json:"overlap"`
	Behavior float64  `json:"behavior"`
}

// ScoreResult is the output of one (user, listing) computation.
type ScoreResult struct {
	Score      float64   `json:"score"`
	DistanceKm *float64  `json:"distance_km,omitempty"`
	Breakdown  Breakdown `json:"breakdown"`
	Reasons    []string  `json:"reasons"`
	Dismissed  bool      `json:"-"`
}

// ScoreEngine computes compatibility scores. It is deterministic: the same
// coordinates, interests and interaction log always produce the same score.
type ScoreEngine struct {
	cfg    config.MatchingConfig
	logger *zap.Logger
}

func NewScoreEngine(cfg config.MatchingConfig, logger *zap.Logger) *ScoreEngine {
	return &ScoreEngine{cfg: cfg, logger: logger}
}

// ComputeScore combines distance, interest overlap and interaction history
// into a single 0-100 score. history must be the querying user's own
// ledger entries; they are matched against the candidate listing's
// category and owner.
func (e *ScoreEngine) ComputeScore(user *MemberProfile, listing *Listing, history []*Interaction) *ScoreResult {
	result := &ScoreResult{}

	// Distance factor. Unknown distance is excluded and its weight
	// redistributed, never defaulted to zero distance.
	km, known := Distance(user.Coordinates, listing.Coordinates)

	overlap := e.overlapFactor(user.Interests, listing.CategoryID)
	behavior, dismissed := e.behaviorFactor(history, listing)

	wDist := e.cfg.WeightDistance
	wOver := e.cfg.WeightOverlap
	wBehav := e.cfg.WeightBehavior

	var score float64
	if known {
		dist := e.distanceFactor(km)
		result.Breakdown.Distance = &dist
		rounded := math.Round(km*10) / 10
		result.DistanceKm = &rounded
		score = wDist*dist + wOver*overlap + wBehav*behavior

		if km <= e.cfg.WalkingKm {
			result.Reasons = append(result.Reasons, fmt.Sprintf("Very close: %.1f km away", km))
		} else if km <= e.cfg.LocalKm {
			result.Reasons = append(result.Reasons, fmt.Sprintf("Nearby: %.1f km away", km))
		}
	} else {
		remaining := wOver + wBehav
		score = (wOver/remaining)*overlap + (wBehav/remaining)*behavior
	}

	result.Breakdown.Overlap = overlap
	result.Breakdown.Behavior = behavior

	if overlap >= 100 {
		result.Reasons = append(result.Reasons, "Top interest category")
	} else if overlap > neutralOverlap {
		result.Reasons = append(result.Reasons, "Matches your interests")
	}
	if behavior > neutralBehavior {
		result.Reasons = append(result.Reasons, "You've engaged with similar listings")
	}

	score = math.Max(0, math.Min(100, score))

	if dismissed {
		score = math.Min(score, dismissedScoreCap)
		result.Dismissed = true
		result.Reasons = append(result.Reasons, "Previously dismissed")
	}

	result.Score = math.Round(score*10) / 10
	return result
}

// distanceFactor maps kilometers to a 0-100 score using a piecewise-linear
// decay over the configured proximity tiers: 100 within walking distance,
// 90 at the local radius, 70 at the city radius, 50 at the regional radius,
// 10 at the maximum, and a hyperbolic tail with a floor of 5 beyond it.
// Non-increasing in distance by construction.
func (e *ScoreEngine) distanceFactor(km float64) float64 {
	p := e.cfg
	switch {
	case km <= p.WalkingKm:
		return 100
	case km <= p.LocalKm:
		return lerp(km, p.WalkingKm, p.LocalKm, 100, 90)
	case km <= p.CityKm:
		return lerp(km, p.LocalKm, p.CityKm, 90, 70)
	case km <= p.RegionalKm:
		return lerp(km, p.CityKm, p.RegionalKm, 70, 50)
	case km <= p.MaxKm:
		return lerp(km, p.RegionalKm, p.MaxKm, 50, 10)
	default:
		return math.Max(5, 10*p.MaxKm/km)
	}
}

// overlapFactor scores how well the listing's category fits the user's
// declared interests, ordered by priority: 100 for the top interest,
// scaled down for lower priorities, 0 when the user has interests and
// none match, neutral when no interests are declared.
func (e *ScoreEngine) overlapFactor(interests []int64, categoryID int64) float64 {
	if len(interests) == 0 {
		return neutralOverlap
	}
	for i, id := range interests {
		if id != categoryID {
			continue
		}
		if len(interests) == 1 {
			return 100
		}
		return 100 - float64(i)*(100-minInterestScore)/float64(len(interests)-1)
	}
	return 0
}

// behaviorFactor derives a 0-100 score from the user's interaction ledger.
// A dismissed entry for this exact listing is reported separately so the
// final score can be capped, not just penalized.
func (e *ScoreEngine) behaviorFactor(history []*Interaction, listing *Listing) (float64, bool) {
	score := neutralBehavior
	dismissed := false

	for _, h := range history {
		if h.ListingID == listing.ID && h.Action == ActionDismissed {
			dismissed = true
			continue
		}

		sameCategory := h.CategoryID != 0 && h.CategoryID == listing.CategoryID
		sameOwner := h.OwnerID != 0 && h.OwnerID == listing.UserID

		switch h.Action {
		case ActionContacted:
			if sameCategory {
				score += behaviorContactedCategory
			}
			if sameOwner {
				score += behaviorPositiveOwner
			}
		case ActionSaved:
			if sameCategory {
				score += behaviorSavedCategory
			}
			if sameOwner {
				score += behaviorPositiveOwner
			}
		case ActionDismissed:
			if sameCategory {
				score -= behaviorDismissedCategory
			}
		}
	}

	return math.Max(0, math.Min(100, score)), dismissed
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	ratio := (x - x0) / (x1 - x0)
	return y0 + ratio*(y1-y0)
}
