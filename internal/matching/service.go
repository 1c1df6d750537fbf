// internal/matching/service.go

package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nexus-community/match-engine/internal/common/utils"
	"github.com/nexus-community/match-engine/internal/config"
)

// How far back the interaction ledger feeds the behavioral factor.
const behaviorWindow = 90 * 24 * time.Hour

// Service is the query/aggregation facade callers use. Read operations
// degrade to empty results for unknown users; write operations surface
// validation and storage errors explicitly.
type Service interface {
	GetMatchesByType(ctx context.Context, tenantID, userID int64) (*MatchGroups, error)
	GetHotMatches(ctx context.Context, tenantID, userID int64, limit int) ([]*Match, error)
	GetMutualMatches(ctx context.Context, tenantID, userID int64, limit int) ([]*Match, error)
	GetSuggestionsForUser(ctx context.Context, tenantID, userID int64, limit int, opts *SuggestionOptions) ([]*Match, error)
	GetStats(ctx context.Context, tenantID, userID int64) (*MatchStats, error)

	GetPreferences(ctx context.Context, tenantID, userID int64) *Preferences
	SavePreferences(ctx context.Context, tenantID, userID int64, update *PreferencesUpdate) (*Preferences, error)
	RecordInteraction(ctx context.Context, tenantID, userID int64, dto *RecordInteractionDTO) error

	// Batch entry points for the scheduler and the (out-of-scope)
	// notification dispatcher.
	GetDigestCandidates(ctx context.Context, freq Frequency, limit int) ([]UserRef, error)
	WarmCache(ctx context.Context, batchSize int) (int, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type matchService struct {
	repo       Repository
	cache      *MatchCache
	engine     *ScoreEngine
	classifier *Classifier
	prefs      *PreferencesStore
	recorder   *Recorder
	cfg        config.MatchingConfig
	logger     *zap.Logger

	now func() time.Time
}

func NewService(repo Repository, cache *MatchCache, engine *ScoreEngine, classifier *Classifier, prefs *PreferencesStore, recorder *Recorder, cfg config.MatchingConfig, logger *zap.Logger) Service {
	return &matchService{
		repo:       repo,
		cache:      cache,
		engine:     engine,
		classifier: classifier,
		prefs:      prefs,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// refreshResult is one consistent snapshot of the user's match set: every
// pair passed the same staleness test against the same instant.
type refreshResult struct {
	matches   []*Match
	dismissed map[int64]bool
	partial   bool
}

// Facade operations

func (s *matchService) GetMatchesByType(ctx context.Context, tenantID, userID int64) (*MatchGroups, error) {
	start := s.now()
	defer func() { ObserveQuery("matches_by_type", time.Since(start)) }()

	prefs := s.prefs.Get(ctx, tenantID, userID)
	res, err := s.refreshMatches(ctx, tenantID, userID, prefs)
	if err != nil {
		return nil, err
	}

	groups := &MatchGroups{
		Hot:     []*Match{},
		Good:    []*Match{},
		Mutual:  []*Match{},
		All:     res.matches,
		Partial: res.partial,
	}
	for _, m := range res.matches {
		switch m.Tier {
		case TierHot:
			groups.Hot = append(groups.Hot, m)
		case TierGood:
			groups.Good = append(groups.Good, m)
		}
		if m.Mutual {
			groups.Mutual = append(groups.Mutual, m)
		}
	}
	return groups, nil
}

func (s *matchService) GetHotMatches(ctx context.Context, tenantID, userID int64, limit int) ([]*Match, error) {
	groups, err := s.GetMatchesByType(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return truncate(groups.Hot, limit), nil
}

func (s *matchService) GetMutualMatches(ctx context.Context, tenantID, userID int64, limit int) ([]*Match, error) {
	groups, err := s.GetMatchesByType(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return truncate(groups.Mutual, limit), nil
}

func (s *matchService) GetSuggestionsForUser(ctx context.Context, tenantID, userID int64, limit int, opts *SuggestionOptions) ([]*Match, error) {
	start := s.now()
	defer func() { ObserveQuery("suggestions", time.Since(start)) }()

	prefs := s.prefs.Get(ctx, tenantID, userID)

	maxDistance := prefs.MaxDistanceKm
	minScore := prefs.MinMatchScore
	if opts != nil {
		if opts.MaxDistanceKm != nil {
			maxDistance = *opts.MaxDistanceKm
		}
		if opts.MinScore != nil {
			minScore = *opts.MinScore
		}
	}

	res, err := s.refreshMatches(ctx, tenantID, userID, prefs)
	if err != nil {
		return nil, err
	}

	suggestions := []*Match{}
	for _, m := range res.matches {
		if res.dismissed[m.Listing.ID] {
			continue
		}
		if m.Score < minScore {
			continue
		}
		// Unknown distance passes the filter; only a known distance
		// beyond the bound excludes.
		if m.DistanceKm != nil && *m.DistanceKm > maxDistance {
			continue
		}
		suggestions = append(suggestions, m)
		if limit > 0 && len(suggestions) >= limit {
			break
		}
	}
	return suggestions, nil
}

func (s *matchService) GetStats(ctx context.Context, tenantID, userID int64) (*MatchStats, error) {
	start := s.now()
	defer func() { ObserveQuery("stats", time.Since(start)) }()

	// Stats run over the same refreshed snapshot the grouped query uses,
	// so they are never based on expired entries.
	groups, err := s.GetMatchesByType(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	stats := &MatchStats{
		TotalMatches:  len(groups.All),
		HotMatches:    len(groups.Hot),
		MutualMatches: len(groups.Mutual),
	}
	if len(groups.All) > 0 {
		var sum float64
		for _, m := range groups.All {
			sum += m.Score
		}
		stats.AvgScore = math.Round(sum/float64(len(groups.All))*10) / 10
	}
	return stats, nil
}

func (s *matchService) GetPreferences(ctx context.Context, tenantID, userID int64) *Preferences {
	return s.prefs.Get(ctx, tenantID, userID)
}

func (s *matchService) SavePreferences(ctx context.Context, tenantID, userID int64, update *PreferencesUpdate) (*Preferences, error) {
	return s.prefs.Save(ctx, tenantID, userID, update)
}

func (s *matchService) RecordInteraction(ctx context.Context, tenantID, userID int64, dto *RecordInteractionDTO) error {
	if err := utils.ValidateStruct(dto); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	action, err := ParseAction(dto.Action)
	if err != nil {
		return err
	}
	return s.recorder.Record(ctx, tenantID, userID, dto.ListingID, action, dto.ScoreAtTime, dto.DistanceKm)
}

func (s *matchService) GetDigestCandidates(ctx context.Context, freq Frequency, limit int) ([]UserRef, error) {
	refs, err := s.repo.ListDigestUsers(ctx, freq, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return refs, nil
}

// WarmCache pre-computes match sets for active listing owners whose cache
// has gone cold. Returns how many users were processed.
func (s *matchService) WarmCache(ctx context.Context, batchSize int) (int, error) {
	staleBefore := s.now().UTC().Add(-s.cache.TTL())
	refs, err := s.repo.ListActiveListingOwners(ctx, staleBefore, batchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	processed := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.GetMatchesByType(ctx, ref.TenantID, ref.UserID); err != nil {
			s.logger.Warn("cache warmup failed for user",
				zap.Int64("tenant_id", ref.TenantID), zap.Int64("user_id", ref.UserID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *matchService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.cache.PurgeExpired(ctx, s.now().UTC())
}

// Core pipeline

// refreshMatches fetches the candidate set, serves fresh cached scores and
// recomputes stale or missing ones under a single "now" snapshot, so one
// query never mixes staleness judgements made at different instants.
func (s *matchService) refreshMatches(ctx context.Context, tenantID, userID int64, prefs *Preferences) (*refreshResult, error) {
	now := s.now().UTC()
	empty := &refreshResult{matches: []*Match{}, dismissed: map[int64]bool{}}

	profile, err := s.repo.GetMemberProfile(ctx, tenantID, userID)
	if errors.Is(err, ErrNotFound) {
		// Not-yet-onboarded or deleted users get empty results, not errors.
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	myListings, err := s.repo.GetActiveListingsByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// Match against the complementary side of what the user posts. With
	// no listings at all this is a cold start: consider everything.
	var targetTypes []ListingType
	seenTypes := map[ListingType]bool{}
	for _, l := range myListings {
		c := l.Type.Complement()
		if !seenTypes[c] {
			seenTypes[c] = true
			targetTypes = append(targetTypes, c)
		}
	}

	candidates, err := s.repo.GetCandidateListings(ctx, tenantID, userID, targetTypes, prefs.Categories, s.cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(candidates) == 0 {
		return empty, nil
	}

	history, err := s.repo.GetInteractions(ctx, tenantID, userID, now.Add(-behaviorWindow))
	if err != nil {
		// Behavior degrades to the neutral baseline.
		s.logger.Warn("history read failed, scoring without behavioral factor",
			zap.Int64("tenant_id", tenantID), zap.Int64("user_id", userID), zap.Error(err))
		history = nil
	}

	dismissed := map[int64]bool{}
	lastInvalidating := map[int64]time.Time{}
	for _, h := range history {
		if h.Action == ActionDismissed {
			dismissed[h.ListingID] = true
		}
		if h.Action == ActionDismissed || h.Action == ActionContacted {
			if h.CreatedAt.After(lastInvalidating[h.ListingID]) {
				lastInvalidating[h.ListingID] = h.CreatedAt
			}
		}
	}

	cached := map[int64]*MatchScore{}
	if scores, err := s.cache.GetScores(ctx, tenantID, userID); err != nil {
		// Losing the cache costs recompute time, not correctness.
		s.logger.Warn("match cache unavailable, recomputing all pairs",
			zap.Int64("tenant_id", tenantID), zap.Int64("user_id", userID), zap.Error(err))
	} else {
		for _, sc := range scores {
			cached[sc.ListingID] = sc
		}
	}

	matches := []*Match{}
	var stale []*Listing
	for _, cand := range candidates {
		sc, ok := cached[cand.ID]
		if ok && !s.cache.IsStale(sc, lastInvalidating[cand.ID], now) {
			matches = append(matches, matchFromScore(cand, sc))
			continue
		}
		stale = append(stale, cand)
	}

	recomputed, partial := s.recomputeAll(ctx, tenantID, profile, myListings, stale, history, now)
	matches = append(matches, recomputed...)
	sortMatches(matches)

	return &refreshResult{matches: matches, dismissed: dismissed, partial: partial}, nil
}

// recomputeAll scores the stale pairs concurrently under a bounded worker
// pool. Pairs are independent; on a context deadline the remaining work is
// abandoned and the caller gets whatever was computed, flagged partial.
func (s *matchService) recomputeAll(ctx context.Context, tenantID int64, profile *MemberProfile, myListings []*Listing, stale []*Listing, history []*Interaction, now time.Time) ([]*Match, bool) {
	if len(stale) == 0 {
		return nil, false
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		matches []*Match
		partial bool
	)
	sem := make(chan struct{}, s.cfg.ScoreWorkers)

	for _, cand := range stale {
		if ctx.Err() != nil {
			partial = true
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(cand *Listing) {
			defer wg.Done()
			defer func() { <-sem }()

			m := s.scoreCandidate(ctx, tenantID, profile, myListings, cand, history, now)
			mu.Lock()
			matches = append(matches, m)
			mu.Unlock()
		}(cand)
	}
	wg.Wait()

	if ctx.Err() != nil {
		partial = true
	}
	return matches, partial
}

// scoreCandidate computes one pair, runs mutual detection when the forward
// score qualifies, and persists the result best-effort.
func (s *matchService) scoreCandidate(ctx context.Context, tenantID int64, profile *MemberProfile, myListings []*Listing, cand *Listing, history []*Interaction, now time.Time) *Match {
	result := s.engine.ComputeScore(profile, cand, history)
	tier := s.classifier.Classify(result.Score)
	RecordScore(result.Score)

	mutual := false
	reasons := result.Reasons
	if !result.Dismissed && s.classifier.MeetsMutualFloor(result.Score) {
		mutual = s.detectMutual(ctx, tenantID, myListings, cand, now)
		if mutual {
			reasons = append(reasons, "Mutual exchange possible")
			RecordMutualMatch()
		}
	}

	score := &MatchScore{
		TenantID:   tenantID,
		UserID:     profile.ID,
		ListingID:  cand.ID,
		Score:      result.Score,
		DistanceKm: result.DistanceKm,
		Tier:       tier,
		Mutual:     mutual,
		Reasons:    reasons,
		ComputedAt: now,
	}

	// Best-effort write: a lost cache update is recomputed next query.
	if err := s.cache.Put(ctx, score); err != nil {
		s.logger.Warn("failed to persist match score",
			zap.Int64("tenant_id", tenantID),
			zap.Int64("user_id", profile.ID),
			zap.Int64("listing_id", cand.ID),
			zap.Error(err))
	}

	return matchFromScore(cand, score)
}

// detectMutual is the second pass of the bidirectional pipeline: it loads
// the candidate owner's listings and profile and scores my complementary
// listings from their perspective. Both directions must independently
// reach the mutual floor.
func (s *matchService) detectMutual(ctx context.Context, tenantID int64, myListings []*Listing, cand *Listing, now time.Time) bool {
	theirListings, err := s.repo.GetActiveListingsByUser(ctx, tenantID, cand.UserID)
	if err != nil || !s.classifier.ComplementaryPair(myListings, theirListings) {
		return false
	}

	ownerProfile, err := s.repo.GetMemberProfile(ctx, tenantID, cand.UserID)
	if err != nil {
		return false
	}

	ownerHistory, err := s.repo.GetInteractions(ctx, tenantID, cand.UserID, now.Add(-behaviorWindow))
	if err != nil {
		ownerHistory = nil
	}

	// My listings that satisfy one of their needs (or need one of their
	// offers), scored from the owner's side.
	for _, mine := range s.classifier.ComplementaryOf(theirListings, myListings) {
		reverse := s.engine.ComputeScore(ownerProfile, mine, ownerHistory)
		if !reverse.Dismissed && s.classifier.MeetsMutualFloor(reverse.Score) {
			return true
		}
	}
	return false
}

// Helpers

func matchFromScore(listing *Listing, score *MatchScore) *Match {
	return &Match{
		Listing:    listing,
		Score:      score.Score,
		DistanceKm: score.DistanceKm,
		Tier:       score.Tier,
		Mutual:     score.Mutual,
		Reasons:    score.Reasons,
	}
}

// sortMatches orders by score descending, ties broken by most recent
// listing creation.
func sortMatches(matches []*Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Listing.CreatedAt.After(matches[j].Listing.CreatedAt)
	})
}

func truncate(matches []*Match, limit int) []*Match {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}
