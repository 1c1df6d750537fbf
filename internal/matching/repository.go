package matching

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository is the persistence boundary of the engine: the three owned
// tables (match_scores, match_history, match_preferences) plus read-only
// access to the user and listing directories. Every method takes the
// tenant explicitly; cross-tenant reads are impossible by construction.
type Repository interface {
	// User/Listing directories (read-only)
	GetMemberProfile(ctx context.Context, tenantID, userID int64) (*MemberProfile, error)
	GetListing(ctx context.Context, tenantID, listingID int64) (*Listing, error)
	GetActiveListingsByUser(ctx context.Context, tenantID, userID int64) ([]*Listing, error)
	GetCandidateListings(ctx context.Context, tenantID, excludeUserID int64, types []ListingType, categories []int64, limit int) ([]*Listing, error)

	// Match scores
	GetScores(ctx context.Context, tenantID, userID int64) ([]*MatchScore, error)
	UpsertScore(ctx context.Context, score *MatchScore) error
	DeleteScore(ctx context.Context, tenantID, userID, listingID int64) error
	DeleteScoresForUser(ctx context.Context, tenantID, userID int64) error
	DeleteExpiredScores(ctx context.Context, before time.Time) (int64, error)

	// Match history (append-only ledger)
	AppendInteraction(ctx context.Context, interaction *Interaction) error
	GetInteractions(ctx context.Context, tenantID, userID int64, since time.Time) ([]*Interaction, error)

	// Preferences
	GetPreferences(ctx context.Context, tenantID, userID int64) (*Preferences, error)
	UpsertPreferences(ctx context.Context, prefs *Preferences) error

	// Batch jobs
	ListActiveListingOwners(ctx context.Context, staleBefore time.Time, limit int) ([]UserRef, error)
	ListDigestUsers(ctx context.Context, freq Frequency, limit int) ([]UserRef, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// Directory methods

func (r *postgresRepository) GetMemberProfile(ctx context.Context, tenantID, userID int64) (*MemberProfile, error) {
	var row struct {
		ID        int64           `db:"id"`
		TenantID  int64           `db:"tenant_id"`
		Latitude  sql.NullFloat64 `db:"latitude"`
		Longitude sql.NullFloat64 `db:"longitude"`
		Status    string          `db:"status"`
	}

	query := `
        SELECT id, tenant_id, latitude, longitude, status
        FROM users
        WHERE id = $1 AND tenant_id = $2
    `
	err := r.db.GetContext(ctx, &row, query, userID, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member profile: %w", err)
	}

	profile := &MemberProfile{
		ID:       row.ID,
		TenantID: row.TenantID,
		Status:   row.Status,
	}
	if row.Latitude.Valid && row.Longitude.Valid {
		profile.Coordinates = &Coordinates{
			Latitude:  row.Latitude.Float64,
			Longitude: row.Longitude.Float64,
		}
	}

	interestsQuery := `
        SELECT category_id FROM user_interests
        WHERE user_id = $1 AND tenant_id = $2
        ORDER BY priority ASC, category_id ASC
    `
	if err := r.db.SelectContext(ctx, &profile.Interests, interestsQuery, userID, tenantID); err != nil {
		return nil, fmt.Errorf("get member interests: %w", err)
	}

	return profile, nil
}

// listingRow handles the nullable coordinate columns
type listingRow struct {
	ID         int64           `db:"id"`
	TenantID   int64           `db:"tenant_id"`
	UserID     int64           `db:"user_id"`
	CategoryID int64           `db:"category_id"`
	Type       ListingType     `db:"type"`
	Status     string          `db:"status"`
	Title      string          `db:"title"`
	Latitude   sql.NullFloat64 `db:"latitude"`
	Longitude  sql.NullFloat64 `db:"longitude"`
	CreatedAt  time.Time       `db:"created_at"`
}

func (row *listingRow) toListing() *Listing {
	l := &Listing{
		ID:         row.ID,
		TenantID:   row.TenantID,
		UserID:     row.UserID,
		CategoryID: row.CategoryID,
		Type:       row.Type,
		Status:     row.Status,
		Title:      row.Title,
		CreatedAt:  row.CreatedAt,
	}
	if row.Latitude.Valid && row.Longitude.Valid {
		l.Coordinates = &Coordinates{
			Latitude:  row.Latitude.Float64,
			Longitude: row.Longitude.Float64,
		}
	}
	return l
}

// Listing coordinates fall back to the owner's home coordinates, matching
// how listings without an explicit location behave platform-wide.
const listingSelect = `
    SELECT l.id, l.tenant_id, l.user_id, l.category_id, l.type, l.status, l.title,
           COALESCE(l.latitude, u.latitude) AS latitude,
           COALESCE(l.longitude, u.longitude) AS longitude,
           l.created_at
    FROM listings l
    JOIN users u ON l.user_id = u.id AND l.tenant_id = u.tenant_id
`

func (r *postgresRepository) GetListing(ctx context.Context, tenantID, listingID int64) (*Listing, error) {
	var row listingRow
	query := listingSelect + ` WHERE l.id = $1 AND l.tenant_id = $2`

	err := r.db.GetContext(ctx, &row, query, listingID, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return row.toListing(), nil
}

func (r *postgresRepository) GetActiveListingsByUser(ctx context.Context, tenantID, userID int64) ([]*Listing, error) {
	var rows []listingRow
	query := listingSelect + `
        WHERE l.user_id = $1 AND l.tenant_id = $2 AND l.status = 'active'
        ORDER BY l.created_at DESC
    `

	if err := r.db.SelectContext(ctx, &rows, query, userID, tenantID); err != nil {
		return nil, fmt.Errorf("get user listings: %w", err)
	}

	listings := make([]*Listing, 0, len(rows))
	for i := range rows {
		listings = append(listings, rows[i].toListing())
	}
	return listings, nil
}

func (r *postgresRepository) GetCandidateListings(ctx context.Context, tenantID, excludeUserID int64, types []ListingType, categories []int64, limit int) ([]*Listing, error) {
	query := listingSelect + `
        WHERE l.tenant_id = ? AND l.status = 'active' AND l.user_id <> ?
    `
	args := []interface{}{tenantID, excludeUserID}

	if len(types) > 0 {
		query += ` AND l.type IN (?)`
		args = append(args, types)
	}
	if len(categories) > 0 {
		query += ` AND l.category_id IN (?)`
		args = append(args, categories)
	}

	query += ` ORDER BY l.created_at DESC LIMIT ?`
	args = append(args, limit)

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []listingRow
	if err := r.db.SelectContext(ctx, &rows, query, inArgs...); err != nil {
		return nil, fmt.Errorf("get candidate listings: %w", err)
	}

	listings := make([]*Listing, 0, len(rows))
	for i := range rows {
		listings = append(listings, rows[i].toListing())
	}
	return listings, nil
}

// Match score methods

type scoreRow struct {
	TenantID   int64           `db:"tenant_id"`
	UserID     int64           `db:"user_id"`
	ListingID  int64           `db:"listing_id"`
	Score      float64         `db:"score"`
	DistanceKm sql.NullFloat64 `db:"distance_km"`
	Tier       Tier            `db:"match_type"`
	Mutual     bool            `db:"is_mutual"`
	Reasons    []byte          `db:"reasons"`
	ComputedAt time.Time       `db:"computed_at"`
}

func (row *scoreRow) toScore() *MatchScore {
	s := &MatchScore{
		TenantID:   row.TenantID,
		UserID:     row.UserID,
		ListingID:  row.ListingID,
		Score:      row.Score,
		Tier:       row.Tier,
		Mutual:     row.Mutual,
		ComputedAt: row.ComputedAt,
	}
	if row.DistanceKm.Valid {
		d := row.DistanceKm.Float64
		s.DistanceKm = &d
	}
	if len(row.Reasons) > 0 {
		json.Unmarshal(row.Reasons, &s.Reasons)
	}
	return s
}

func (r *postgresRepository) GetScores(ctx context.Context, tenantID, userID int64) ([]*MatchScore, error) {
	var rows []scoreRow
	query := `
        SELECT tenant_id, user_id, listing_id, score, distance_km,
               match_type, is_mutual, reasons, computed_at
        FROM match_scores
        WHERE tenant_id = $1 AND user_id = $2
        ORDER BY score DESC
    `

	if err := r.db.SelectContext(ctx, &rows, query, tenantID, userID); err != nil {
		return nil, fmt.Errorf("get scores: %w", err)
	}

	scores := make([]*MatchScore, 0, len(rows))
	for i := range rows {
		scores = append(scores, rows[i].toScore())
	}
	return scores, nil
}

func (r *postgresRepository) UpsertScore(ctx context.Context, score *MatchScore) error {
	reasonsJSON, _ := json.Marshal(score.Reasons)

	query := `
        INSERT INTO match_scores (
            tenant_id, user_id, listing_id, score, distance_km,
            match_type, is_mutual, reasons, computed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (tenant_id, user_id, listing_id)
        DO UPDATE SET
            score = EXCLUDED.score,
            distance_km = EXCLUDED.distance_km,
            match_type = EXCLUDED.match_type,
            is_mutual = EXCLUDED.is_mutual,
            reasons = EXCLUDED.reasons,
            computed_at = EXCLUDED.computed_at
    `

	_, err := r.db.ExecContext(
		ctx, query,
		score.TenantID, score.UserID, score.ListingID, score.Score,
		score.DistanceKm, score.Tier, score.Mutual, reasonsJSON, score.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeleteScore(ctx context.Context, tenantID, userID, listingID int64) error {
	query := `DELETE FROM match_scores WHERE tenant_id = $1 AND user_id = $2 AND listing_id = $3`
	if _, err := r.db.ExecContext(ctx, query, tenantID, userID, listingID); err != nil {
		return fmt.Errorf("delete score: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeleteScoresForUser(ctx context.Context, tenantID, userID int64) error {
	query := `DELETE FROM match_scores WHERE tenant_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, tenantID, userID); err != nil {
		return fmt.Errorf("delete user scores: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeleteExpiredScores(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM match_scores WHERE computed_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired scores: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// History methods

func (r *postgresRepository) AppendInteraction(ctx context.Context, interaction *Interaction) error {
	query := `
        INSERT INTO match_history (
            id, tenant_id, user_id, listing_id, action,
            score_at_time, distance_km, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

	_, err := r.db.ExecContext(
		ctx, query,
		interaction.ID, interaction.TenantID, interaction.UserID,
		interaction.ListingID, interaction.Action,
		interaction.ScoreAtTime, interaction.DistanceKm, interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetInteractions(ctx context.Context, tenantID, userID int64, since time.Time) ([]*Interaction, error) {
	var interactions []*Interaction
	query := `
        SELECT mh.id, mh.tenant_id, mh.user_id, mh.listing_id, mh.action,
               mh.score_at_time, mh.distance_km, mh.created_at,
               COALESCE(l.category_id, 0) AS category_id,
               COALESCE(l.user_id, 0) AS owner_id
        FROM match_history mh
        LEFT JOIN listings l ON mh.listing_id = l.id AND l.tenant_id = mh.tenant_id
        WHERE mh.tenant_id = $1 AND mh.user_id = $2 AND mh.created_at >= $3
        ORDER BY mh.created_at DESC
    `

	if err := r.db.SelectContext(ctx, &interactions, query, tenantID, userID, since); err != nil {
		return nil, fmt.Errorf("get interactions: %w", err)
	}
	return interactions, nil
}

// Preference methods

type preferencesRow struct {
	TenantID              int64     `db:"tenant_id"`
	UserID                int64     `db:"user_id"`
	MaxDistanceKm         float64   `db:"max_distance_km"`
	MinMatchScore         float64   `db:"min_match_score"`
	NotificationFrequency Frequency `db:"notification_frequency"`
	NotifyHotMatches      bool      `db:"notify_hot_matches"`
	NotifyMutualMatches   bool      `db:"notify_mutual_matches"`
	Categories            []byte    `db:"categories"`
	UpdatedAt             time.Time `db:"updated_at"`
}

func (r *postgresRepository) GetPreferences(ctx context.Context, tenantID, userID int64) (*Preferences, error) {
	var row preferencesRow
	query := `
        SELECT tenant_id, user_id, max_distance_km, min_match_score,
               notification_frequency, notify_hot_matches, notify_mutual_matches,
               categories, updated_at
        FROM match_preferences
        WHERE tenant_id = $1 AND user_id = $2
    `

	err := r.db.GetContext(ctx, &row, query, tenantID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	prefs := &Preferences{
		TenantID:              row.TenantID,
		UserID:                row.UserID,
		MaxDistanceKm:         row.MaxDistanceKm,
		MinMatchScore:         row.MinMatchScore,
		NotificationFrequency: row.NotificationFrequency,
		NotifyHotMatches:      row.NotifyHotMatches,
		NotifyMutualMatches:   row.NotifyMutualMatches,
		UpdatedAt:             row.UpdatedAt,
	}
	if len(row.Categories) > 0 {
		json.Unmarshal(row.Categories, &prefs.Categories)
	}
	return prefs, nil
}

func (r *postgresRepository) UpsertPreferences(ctx context.Context, prefs *Preferences) error {
	categoriesJSON, _ := json.Marshal(prefs.Categories)

	query := `
        INSERT INTO match_preferences (
            tenant_id, user_id, max_distance_km, min_match_score,
            notification_frequency, notify_hot_matches, notify_mutual_matches,
            categories, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
        ON CONFLICT (tenant_id, user_id)
        DO UPDATE SET
            max_distance_km = EXCLUDED.max_distance_km,
            min_match_score = EXCLUDED.min_match_score,
            notification_frequency = EXCLUDED.notification_frequency,
            notify_hot_matches = EXCLUDED.notify_hot_matches,
            notify_mutual_matches = EXCLUDED.notify_mutual_matches,
            categories = EXCLUDED.categories,
            updated_at = CURRENT_TIMESTAMP
    `

	_, err := r.db.ExecContext(
		ctx, query,
		prefs.TenantID, prefs.UserID, prefs.MaxDistanceKm, prefs.MinMatchScore,
		prefs.NotificationFrequency, prefs.NotifyHotMatches, prefs.NotifyMutualMatches,
		categoriesJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// Batch job methods

func (r *postgresRepository) ListActiveListingOwners(ctx context.Context, staleBefore time.Time, limit int) ([]UserRef, error) {
	var refs []UserRef
	query := `
        SELECT u.tenant_id, u.id AS user_id
        FROM users u
        JOIN listings l ON l.user_id = u.id AND l.tenant_id = u.tenant_id AND l.status = 'active'
        LEFT JOIN match_scores ms ON ms.user_id = u.id AND ms.tenant_id = u.tenant_id
        WHERE u.status = 'active'
        GROUP BY u.tenant_id, u.id
        HAVING COALESCE(MAX(ms.computed_at), 'epoch'::timestamptz) < $1
        ORDER BY u.id
        LIMIT $2
    `

	if err := r.db.SelectContext(ctx, &refs, query, staleBefore, limit); err != nil {
		return nil, fmt.Errorf("list warmup users: %w", err)
	}
	return refs, nil
}

func (r *postgresRepository) ListDigestUsers(ctx context.Context, freq Frequency, limit int) ([]UserRef, error) {
	var refs []UserRef
	// Users without a preference row inherit the daily default.
	query := `
        SELECT DISTINCT u.tenant_id, u.id AS user_id
        FROM users u
        JOIN listings l ON l.user_id = u.id AND l.tenant_id = u.tenant_id AND l.status = 'active'
        LEFT JOIN match_preferences mp ON mp.user_id = u.id AND mp.tenant_id = u.tenant_id
        WHERE u.status = 'active'
          AND COALESCE(mp.notification_frequency, 'daily') = $1
        ORDER BY u.tenant_id, u.id
        LIMIT $2
    `

	if err := r.db.SelectContext(ctx, &refs, query, freq, limit); err != nil {
		return nil, fmt.Errorf("list digest users: %w", err)
	}
	return refs, nil
}
