package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeRepo is an in-memory Repository used across the package tests.
// Error injection flags simulate a failing backing store.
type fakeRepo struct {
	mu sync.Mutex

	profiles map[string]*MemberProfile
	listings map[string]*Listing
	scores   map[string]*MatchScore
	history  []*Interaction
	prefs    map[string]*Preferences

	failScores       bool
	failHistory      bool
	failPreferences  bool
	failDirectories  bool
	upsertScoreCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles: map[string]*MemberProfile{},
		listings: map[string]*Listing{},
		scores:   map[string]*MatchScore{},
		prefs:    map[string]*Preferences{},
	}
}

func userKey(tenantID, userID int64) string {
	return fmt.Sprintf("%d:%d", tenantID, userID)
}

func scoreKey(tenantID, userID, listingID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, userID, listingID)
}

func (f *fakeRepo) addProfile(p *MemberProfile) {
	f.profiles[userKey(p.TenantID, p.ID)] = p
}

func (f *fakeRepo) addListing(l *Listing) {
	if l.Status == "" {
		l.Status = "active"
	}
	f.listings[fmt.Sprintf("%d:%d", l.TenantID, l.ID)] = l
}

func (f *fakeRepo) GetMemberProfile(ctx context.Context, tenantID, userID int64) (*MemberProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDirectories {
		return nil, errors.New("directory down")
	}
	p, ok := f.profiles[userKey(tenantID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) GetListing(ctx context.Context, tenantID, listingID int64) (*Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[fmt.Sprintf("%d:%d", tenantID, listingID)]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

func (f *fakeRepo) GetActiveListingsByUser(ctx context.Context, tenantID, userID int64) ([]*Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDirectories {
		return nil, errors.New("directory down")
	}
	var out []*Listing
	for _, l := range f.listings {
		if l.TenantID == tenantID && l.UserID == userID && l.Status == "active" {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetCandidateListings(ctx context.Context, tenantID, excludeUserID int64, types []ListingType, categories []int64, limit int) ([]*Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDirectories {
		return nil, errors.New("directory down")
	}

	typeOK := func(t ListingType) bool {
		if len(types) == 0 {
			return true
		}
		for _, want := range types {
			if t == want {
				return true
			}
		}
		return false
	}
	categoryOK := func(c int64) bool {
		if len(categories) == 0 {
			return true
		}
		for _, want := range categories {
			if c == want {
				return true
			}
		}
		return false
	}

	var out []*Listing
	for _, l := range f.listings {
		if l.TenantID != tenantID || l.UserID == excludeUserID || l.Status != "active" {
			continue
		}
		if !typeOK(l.Type) || !categoryOK(l.CategoryID) {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) GetScores(ctx context.Context, tenantID, userID int64) ([]*MatchScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScores {
		return nil, errors.New("scores table down")
	}
	var out []*MatchScore
	for _, s := range f.scores {
		if s.TenantID == tenantID && s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertScore(ctx context.Context, score *MatchScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScores {
		return errors.New("scores table down")
	}
	f.upsertScoreCalls++
	f.scores[scoreKey(score.TenantID, score.UserID, score.ListingID)] = score
	return nil
}

func (f *fakeRepo) DeleteScore(ctx context.Context, tenantID, userID, listingID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScores {
		return errors.New("scores table down")
	}
	delete(f.scores, scoreKey(tenantID, userID, listingID))
	return nil
}

func (f *fakeRepo) DeleteScoresForUser(ctx context.Context, tenantID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, s := range f.scores {
		if s.TenantID == tenantID && s.UserID == userID {
			delete(f.scores, k)
		}
	}
	return nil
}

func (f *fakeRepo) DeleteExpiredScores(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for k, s := range f.scores {
		if s.ComputedAt.Before(before) {
			delete(f.scores, k)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeRepo) AppendInteraction(ctx context.Context, interaction *Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHistory {
		return errors.New("history table down")
	}
	f.history = append(f.history, interaction)
	return nil
}

func (f *fakeRepo) GetInteractions(ctx context.Context, tenantID, userID int64, since time.Time) ([]*Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHistory {
		return nil, errors.New("history table down")
	}
	var out []*Interaction
	for _, h := range f.history {
		if h.TenantID == tenantID && h.UserID == userID && !h.CreatedAt.Before(since) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetPreferences(ctx context.Context, tenantID, userID int64) (*Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPreferences {
		return nil, errors.New("preferences table down")
	}
	p, ok := f.prefs[userKey(tenantID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) UpsertPreferences(ctx context.Context, prefs *Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPreferences {
		return errors.New("preferences table down")
	}
	f.prefs[userKey(prefs.TenantID, prefs.UserID)] = prefs
	return nil
}

func (f *fakeRepo) ListActiveListingOwners(ctx context.Context, staleBefore time.Time, limit int) ([]UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []UserRef
	for _, l := range f.listings {
		if l.Status != "active" {
			continue
		}
		key := userKey(l.TenantID, l.UserID)
		if seen[key] {
			continue
		}
		newest := time.Time{}
		for _, s := range f.scores {
			if s.TenantID == l.TenantID && s.UserID == l.UserID && s.ComputedAt.After(newest) {
				newest = s.ComputedAt
			}
		}
		if !newest.Before(staleBefore) {
			continue
		}
		seen[key] = true
		out = append(out, UserRef{TenantID: l.TenantID, UserID: l.UserID})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) ListDigestUsers(ctx context.Context, freq Frequency, limit int) ([]UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []UserRef
	for _, p := range f.prefs {
		if p.NotificationFrequency != freq {
			continue
		}
		out = append(out, UserRef{TenantID: p.TenantID, UserID: p.UserID})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) scoreCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scores)
}
