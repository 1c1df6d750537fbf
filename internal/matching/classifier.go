package matching

import (
	"github.com/nexus-community/match-engine/internal/config"
)

// Classifier labels scores with tiers and detects mutual-exchange pairs.
// Thresholds come from configuration; the defaults are hot >= 80,
// good >= 50, low below that.
type Classifier struct {
	cfg config.MatchingConfig
}

func NewClassifier(cfg config.MatchingConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify maps a score to exactly one tier. The thresholds are
// non-overlapping and total over [0, 100].
func (c *Classifier) Classify(score float64) Tier {
	switch {
	case score >= c.cfg.HotThreshold:
		return TierHot
	case score >= c.cfg.GoodThreshold:
		return TierGood
	default:
		return TierLow
	}
}

// MeetsMutualFloor reports whether one direction of a candidate pair
// qualifies for mutual consideration.
func (c *Classifier) MeetsMutualFloor(score float64) bool {
	return score >= c.cfg.MutualFloor
}

// ComplementaryPair reports whether two listing sets can serve each other:
// one side offers in a category the other side needs, and vice versa.
// This is the structural precondition for a mutual match; the score floor
// in each direction is checked separately by the two-pass pipeline.
func (c *Classifier) ComplementaryPair(mine, theirs []*Listing) bool {
	return covers(mine, theirs) && covers(theirs, mine)
}

// covers reports whether offers on side a satisfy at least one need on side b.
func covers(a, b []*Listing) bool {
	offered := make(map[int64]bool)
	for _, l := range a {
		if l.Type == TypeOffer {
			offered[l.CategoryID] = true
		}
	}
	for _, l := range b {
		if l.Type == TypeNeed && offered[l.CategoryID] {
			return true
		}
	}
	return false
}

// ComplementaryOf returns the listings in candidates whose type and
// category complement at least one of mine. Used by the reverse pass of
// mutual detection to pick which of my listings to score from the
// candidate owner's perspective.
func (c *Classifier) ComplementaryOf(mine, candidates []*Listing) []*Listing {
	wanted := make(map[int64]map[ListingType]bool)
	for _, l := range mine {
		if wanted[l.CategoryID] == nil {
			wanted[l.CategoryID] = make(map[ListingType]bool)
		}
		wanted[l.CategoryID][l.Type.Complement()] = true
	}

	var out []*Listing
	for _, l := range candidates {
		if wanted[l.CategoryID] != nil && wanted[l.CategoryID][l.Type] {
			out = append(out, l)
		}
	}
	return out
}
