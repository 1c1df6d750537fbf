package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(repo *fakeRepo) Service {
	cfg := testMatchingConfig()
	logger := zap.NewNop()
	cache := NewMatchCache(repo, nil, cfg.CacheTTL, logger)
	engine := NewScoreEngine(cfg, logger)
	classifier := NewClassifier(cfg)
	prefs := NewPreferencesStore(repo, cfg, logger)
	recorder := NewRecorder(repo, cache, logger)
	return NewService(repo, cache, engine, classifier, prefs, recorder, cfg, logger)
}

// seedExchangePair sets up two members at the same location whose listings
// complement each other: user 10 offers category 7 and needs category 3,
// user 20 needs category 7 and offers category 3.
func seedExchangePair(repo *fakeRepo) {
	repo.addProfile(&MemberProfile{ID: 10, TenantID: 1, Coordinates: coordsAt(0, 0), Interests: []int64{7, 3}})
	repo.addProfile(&MemberProfile{ID: 20, TenantID: 1, Coordinates: coordsAt(0, 0), Interests: []int64{7}})

	repo.addListing(&Listing{ID: 1000, TenantID: 1, UserID: 10, CategoryID: 7, Type: TypeOffer, Coordinates: coordsAt(0, 0)})
	repo.addListing(&Listing{ID: 1001, TenantID: 1, UserID: 10, CategoryID: 3, Type: TypeNeed, Coordinates: coordsAt(0, 0)})
	repo.addListing(&Listing{ID: 100, TenantID: 1, UserID: 20, CategoryID: 7, Type: TypeNeed, Coordinates: coordsAt(0, 0)})
	repo.addListing(&Listing{ID: 101, TenantID: 1, UserID: 20, CategoryID: 3, Type: TypeOffer, Coordinates: coordsAt(0, 0)})
}

func TestGetMatchesByTypeGroupsAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	groups, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, groups.All, 2)

	// Listing 100 hits the top interest at distance zero (87.5, hot);
	// listing 101 hits the second interest (66.5, good).
	assert.Equal(t, int64(100), groups.All[0].Listing.ID)
	assert.Equal(t, 87.5, groups.All[0].Score)
	assert.Equal(t, int64(101), groups.All[1].Listing.ID)
	assert.Equal(t, 66.5, groups.All[1].Score)

	require.Len(t, groups.Hot, 1)
	assert.Equal(t, TierHot, groups.Hot[0].Tier)
	require.Len(t, groups.Good, 1)
	assert.Equal(t, TierGood, groups.Good[0].Tier)
	assert.False(t, groups.Partial)
}

func TestMutualDetectionIsSymmetric(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	// Both directions of a complementary pair above the floor flag mutual.
	groups, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, groups.Mutual, 2)
	for _, m := range groups.All {
		assert.True(t, m.Mutual, "listing %d should be mutual", m.Listing.ID)
	}

	reverse, err := svc.GetMatchesByType(ctx, 1, 20)
	require.NoError(t, err)
	require.NotEmpty(t, reverse.Mutual)
	for _, m := range reverse.All {
		assert.True(t, m.Mutual, "reverse listing %d should be mutual", m.Listing.ID)
	}
}

func TestMutualRequiresComplementaryListings(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.addProfile(&MemberProfile{ID: 10, TenantID: 1, Coordinates: coordsAt(0, 0), Interests: []int64{7}})
	repo.addProfile(&MemberProfile{ID: 20, TenantID: 1, Coordinates: coordsAt(0, 0), Interests: []int64{7}})
	repo.addListing(&Listing{ID: 1000, TenantID: 1, UserID: 10, CategoryID: 7, Type: TypeOffer, Coordinates: coordsAt(0, 0)})
	// User 20 only needs; they offer nothing back.
	repo.addListing(&Listing{ID: 100, TenantID: 1, UserID: 20, CategoryID: 7, Type: TypeNeed, Coordinates: coordsAt(0, 0)})
	svc := newTestService(repo)

	groups, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, groups.All, 1)
	assert.Equal(t, TierHot, groups.All[0].Tier)
	assert.False(t, groups.All[0].Mutual)
	assert.Empty(t, groups.Mutual)
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	// Same shapes under another tenant.
	repo.addProfile(&MemberProfile{ID: 20, TenantID: 2, Coordinates: coordsAt(0, 0), Interests: []int64{7}})
	repo.addListing(&Listing{ID: 500, TenantID: 2, UserID: 20, CategoryID: 7, Type: TypeNeed, Coordinates: coordsAt(0, 0)})
	svc := newTestService(repo)

	groups, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)
	for _, m := range groups.All {
		assert.Equal(t, int64(1), m.Listing.TenantID)
		assert.NotEqual(t, int64(500), m.Listing.ID)
	}

	// User 10 does not exist under tenant 2: empty, not an error.
	groups, err = svc.GetMatchesByType(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, groups.All)
}

func TestUnknownUserGetsEmptyMatches(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeRepo())

	groups, err := svc.GetMatchesByType(ctx, 1, 999)
	require.NoError(t, err)
	assert.Empty(t, groups.All)
	assert.Empty(t, groups.Hot)
}

func TestSecondQueryServedFromCache(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	first, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)
	writesAfterFirst := repo.upsertScoreCalls

	second, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, writesAfterFirst, repo.upsertScoreCalls, "fresh cached scores must not be recomputed")

	require.Equal(t, len(first.All), len(second.All))
	for i := range first.All {
		assert.Equal(t, first.All[i].Listing.ID, second.All[i].Listing.ID)
		assert.Equal(t, first.All[i].Score, second.All[i].Score)
		assert.Equal(t, first.All[i].Mutual, second.All[i].Mutual)
	}
}

func TestDismissRecomputesAndCapsScore(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	_, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)

	err = svc.RecordInteraction(ctx, 1, 10, &RecordInteractionDTO{ListingID: 100, Action: "dismissed"})
	require.NoError(t, err)

	groups, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)

	var dismissedMatch *Match
	for _, m := range groups.All {
		if m.Listing.ID == 100 {
			dismissedMatch = m
		}
	}
	require.NotNil(t, dismissedMatch)
	assert.LessOrEqual(t, dismissedMatch.Score, 5.0)
	assert.Equal(t, TierLow, dismissedMatch.Tier)
}

func TestSuggestionsApplyFilters(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	// A strong candidate 30 km out: good score but beyond the default
	// 25 km preference radius.
	repo.addProfile(&MemberProfile{ID: 30, TenantID: 1, Coordinates: approxCoordsKmEast(30), Interests: nil})
	repo.addListing(&Listing{ID: 300, TenantID: 1, UserID: 30, CategoryID: 7, Type: TypeNeed, Coordinates: approxCoordsKmEast(30)})
	// A candidate with no location at all: distance unknown.
	repo.addProfile(&MemberProfile{ID: 40, TenantID: 1, Interests: nil})
	repo.addListing(&Listing{ID: 400, TenantID: 1, UserID: 40, CategoryID: 7, Type: TypeNeed})
	svc := newTestService(repo)

	suggestions, err := svc.GetSuggestionsForUser(ctx, 1, 10, 0, nil)
	require.NoError(t, err)

	ids := map[int64]bool{}
	for _, m := range suggestions {
		ids[m.Listing.ID] = true
		assert.GreaterOrEqual(t, m.Score, 50.0)
	}
	assert.True(t, ids[100])
	assert.True(t, ids[101])
	assert.False(t, ids[300], "beyond the distance preference")
	assert.True(t, ids[400], "unknown distance must pass the filter")

	// Widening the radius per query brings listing 300 back.
	maxDistance := 50.0
	suggestions, err = svc.GetSuggestionsForUser(ctx, 1, 10, 0, &SuggestionOptions{MaxDistanceKm: &maxDistance})
	require.NoError(t, err)
	ids = map[int64]bool{}
	for _, m := range suggestions {
		ids[m.Listing.ID] = true
	}
	assert.True(t, ids[300])
}

func TestSuggestionsExcludeDismissed(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	require.NoError(t, svc.RecordInteraction(ctx, 1, 10, &RecordInteractionDTO{ListingID: 100, Action: "dismissed"}))

	suggestions, err := svc.GetSuggestionsForUser(ctx, 1, 10, 0, nil)
	require.NoError(t, err)
	for _, m := range suggestions {
		assert.NotEqual(t, int64(100), m.Listing.ID)
	}
}

func TestSuggestionsHonorLimit(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	suggestions, err := svc.GetSuggestionsForUser(ctx, 1, 10, 1, nil)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	// The single suggestion is the best one.
	assert.Equal(t, int64(100), suggestions[0].Listing.ID)
}

func TestGetHotMatchesAppliesLimit(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	hot, err := svc.GetHotMatches(ctx, 1, 10, 5)
	require.NoError(t, err)
	require.Len(t, hot, 1)
	assert.Equal(t, TierHot, hot[0].Tier)
}

func TestGetStatsMatchesGroupCounts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	stats, err := svc.GetStats(ctx, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalMatches)
	assert.Equal(t, 1, stats.HotMatches)
	assert.Equal(t, 2, stats.MutualMatches)
	// (87.5 + 66.5) / 2 = 77.0
	assert.Equal(t, 77.0, stats.AvgScore)
}

func TestGetStatsEmptyForNewUser(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.addProfile(&MemberProfile{ID: 10, TenantID: 1})
	svc := newTestService(repo)

	stats, err := svc.GetStats(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMatches)
	assert.Equal(t, 0.0, stats.AvgScore)
}

func TestColdStartUserStillGetsCandidates(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	// No listings of their own: everything active is a candidate.
	repo.addProfile(&MemberProfile{ID: 50, TenantID: 1, Coordinates: coordsAt(0, 0), Interests: []int64{7}})
	svc := newTestService(repo)

	groups, err := svc.GetMatchesByType(ctx, 1, 50)
	require.NoError(t, err)
	assert.Len(t, groups.All, 4)
	assert.Empty(t, groups.Mutual, "no listings means no mutual exchange")
}

func TestCancelledContextReturnsPartial(t *testing.T) {
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	groups, err := svc.GetMatchesByType(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, groups.Partial)
}

func TestRecordInteractionRejectsUnknownAction(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeRepo())

	err := svc.RecordInteraction(ctx, 1, 10, &RecordInteractionDTO{ListingID: 100, Action: "poked"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	err = svc.RecordInteraction(ctx, 1, 10, &RecordInteractionDTO{Action: "viewed"})
	require.Error(t, err)
	assert.True(t, IsValidation(err), "missing listing_id must be rejected")
}

func TestGetDigestCandidates(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	weekly := "weekly"
	_, err := svc.SavePreferences(ctx, 1, 10, &PreferencesUpdate{NotificationFrequency: &weekly})
	require.NoError(t, err)
	_, err = svc.SavePreferences(ctx, 1, 20, &PreferencesUpdate{})
	require.NoError(t, err)

	refs, err := svc.GetDigestCandidates(ctx, FreqWeekly, 10)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, int64(10), refs[0].UserID)
}

func TestWarmCachePrecomputesColdUsers(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedExchangePair(repo)
	svc := newTestService(repo)

	processed, err := svc.WarmCache(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Greater(t, repo.scoreCount(), 0)

	// Everyone is warm now; a second run finds nothing to do.
	processed, err = svc.WarmCache(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}
