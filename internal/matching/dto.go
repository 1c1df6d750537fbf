// internal/matching/dto.go
package matching

// DTOs for API requests/responses

// PreferencesUpdate is a partial preference save. Nil fields are left
// untouched; provided fields are validated, never silently clamped.
type PreferencesUpdate struct {
	MaxDistanceKm         *float64 `json:"max_distance_km,omitempty" validate:"omitempty,gte=1,lte=500"`
	MinMatchScore         *float64 `json:"min_match_score,omitempty" validate:"omitempty,gte=1,lte=100"`
	NotificationFrequency *string  `json:"notification_frequency,omitempty" validate:"omitempty,oneof=instant daily weekly never"`
	NotifyHotMatches      *bool    `json:"notify_hot_matches,omitempty"`
	NotifyMutualMatches   *bool    `json:"notify_mutual_matches,omitempty"`
	Categories            *[]int64 `json:"categories,omitempty"`
}

// RecordInteractionDTO is the payload for recording a match interaction.
type RecordInteractionDTO struct {
	ListingID   int64    `json:"listing_id" validate:"required"`
	Action      string   `json:"action" validate:"required,oneof=viewed saved contacted dismissed"`
	ScoreAtTime *float64 `json:"score_at_time,omitempty" validate:"omitempty,gte=0,lte=100"`
	DistanceKm  *float64 `json:"distance_km,omitempty" validate:"omitempty,gte=0"`
}

// SuggestionOptions override the stored preferences for one query.
type SuggestionOptions struct {
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`
	MinScore      *float64 `json:"min_score,omitempty"`
}

// Match is one scored candidate listing shaped for JSON serialization.
type Match struct {
	Listing    *Listing `json:"listing"`
	Score      float64  `json:"score"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Tier       Tier     `json:"match_type"`
	Mutual     bool     `json:"is_mutual"`
	Reasons    []string `json:"reasons,omitempty"`
}

// MatchGroups is the grouped result of GetMatchesByType. All is the union;
// Mutual may overlap with Hot and Good. Partial is set when a deadline cut
// recomputation short and the groups cover only the pairs scored so far.
type MatchGroups struct {
	Hot     []*Match `json:"hot"`
	Good    []*Match `json:"good"`
	Mutual  []*Match `json:"mutual"`
	All     []*Match `json:"all"`
	Partial bool     `json:"partial,omitempty"`
}

// MatchStats are aggregate counters over the user's current match set.
type MatchStats struct {
	TotalMatches  int     `json:"total_matches"`
	HotMatches    int     `json:"hot_matches"`
	MutualMatches int     `json:"mutual_matches"`
	AvgScore      float64 `json:"avg_score"`
}
