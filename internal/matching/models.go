package matching

import (
	"fmt"
	"time"
)

// ListingType distinguishes what a member offers from what they need.
type ListingType string

const (
	TypeOffer ListingType = "offer"
	TypeNeed  ListingType = "need"
)

// Complement returns the listing type that can satisfy this one.
func (t ListingType) Complement() ListingType {
	if t == TypeOffer {
		return TypeNeed
	}
	return TypeOffer
}

// Action is a recorded user interaction with a match.
type Action string

const (
	ActionViewed    Action = "viewed"
	ActionSaved     Action = "saved"
	ActionContacted Action = "contacted"
	ActionDismissed Action = "dismissed"
)

// ParseAction rejects unknown actions at the type boundary.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionViewed, ActionSaved, ActionContacted, ActionDismissed:
		return Action(s), nil
	}
	return "", &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", s)}
}

// Tier labels a score bucket.
type Tier string

const (
	TierHot  Tier = "hot"
	TierGood Tier = "good"
	TierLow  Tier = "low"
)

// Frequency controls match digest cadence.
type Frequency string

const (
	FreqInstant Frequency = "instant"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqNever   Frequency = "never"
)

// ParseFrequency rejects unknown frequencies at the type boundary.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FreqInstant, FreqDaily, FreqWeekly, FreqNever:
		return Frequency(s), nil
	}
	return "", &ValidationError{Field: "notification_frequency", Message: fmt.Sprintf("unknown frequency %q", s)}
}

// Coordinates is a WGS84 point. A nil *Coordinates means the location is
// unknown and must be treated as a missing factor, never as distance zero.
type Coordinates struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}

// MemberProfile is the read-only slice of a platform user the engine needs:
// home coordinates and declared interests, ordered by priority.
type MemberProfile struct {
	ID          int64        `json:"id" db:"id"`
	TenantID    int64        `json:"tenant_id" db:"tenant_id"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Interests   []int64      `json:"interests"`
	Status      string       `json:"status" db:"status"`
}

// Listing is a read-only offer or need posted by another member.
// Coordinates are the listing's own location falling back to the owner's.
type Listing struct {
	ID          int64        `json:"id" db:"id"`
	TenantID    int64        `json:"tenant_id" db:"tenant_id"`
	UserID      int64        `json:"user_id" db:"user_id"`
	CategoryID  int64        `json:"category_id" db:"category_id"`
	Type        ListingType  `json:"type" db:"type"`
	Status      string       `json:"status" db:"status"`
	Title       string       `json:"title" db:"title"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// MatchScore is the cached result of one (user, listing) computation.
// Each computation fully replaces the prior record for the key.
type MatchScore struct {
	TenantID   int64     `json:"tenant_id" db:"tenant_id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	ListingID  int64     `json:"listing_id" db:"listing_id"`
	Score      float64   `json:"score" db:"score"`
	DistanceKm *float64  `json:"distance_km,omitempty" db:"distance_km"`
	Tier       Tier      `json:"match_type" db:"match_type"`
	Mutual     bool      `json:"is_mutual" db:"is_mutual"`
	Reasons    []string  `json:"reasons,omitempty"`
	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// Interaction is one row of the append-only match history ledger.
// Category and owner of the listing are denormalized on read so the
// scorer can weigh past behavior without extra lookups.
type Interaction struct {
	ID          string    `json:"id" db:"id"`
	TenantID    int64     `json:"tenant_id" db:"tenant_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	ListingID   int64     `json:"listing_id" db:"listing_id"`
	Action      Action    `json:"action" db:"action"`
	ScoreAtTime *float64  `json:"score_at_time,omitempty" db:"score_at_time"`
	DistanceKm  *float64  `json:"distance_km,omitempty" db:"distance_km"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	// Joined fields
	CategoryID int64 `json:"-" db:"category_id"`
	OwnerID    int64 `json:"-" db:"owner_id"`
}

// Preferences gate which matches are surfaced for a user.
type Preferences struct {
	TenantID              int64     `json:"-" db:"tenant_id"`
	UserID                int64     `json:"user_id" db:"user_id"`
	MaxDistanceKm         float64   `json:"max_distance_km" db:"max_distance_km"`
	MinMatchScore         float64   `json:"min_match_score" db:"min_match_score"`
	NotificationFrequency Frequency `json:"notification_frequency" db:"notification_frequency"`
	NotifyHotMatches      bool      `json:"notify_hot_matches" db:"notify_hot_matches"`
	NotifyMutualMatches   bool      `json:"notify_mutual_matches" db:"notify_mutual_matches"`
	Categories            []int64   `json:"categories"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// UserRef identifies a user inside a tenant, used by batch jobs.
type UserRef struct {
	TenantID int64 `json:"tenant_id" db:"tenant_id"`
	UserID   int64 `json:"user_id" db:"user_id"`
}
