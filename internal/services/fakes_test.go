package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yumenosora/otakudb-backend/internal/data/repos"
	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
)

type fakeRankRepo struct {
	mu    sync.Mutex
	calls []string

	currentRanks map[int64]uint32
	recomputed   int64
	cleared      int64
	stats        repos.RankTableStats
	top          []popularity.ScoredItem

	snapshotErr  error
	recomputeErr error

	// When set, the first SnapshotPreviousRanks call signals entered and
	// blocks until released. Used to hold a pass open across goroutines.
	entered   chan struct{}
	released  chan struct{}
	blockOnce sync.Once
}

func (f *fakeRankRepo) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeRankRepo) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRankRepo) CurrentRanks(ctx context.Context, tx *gorm.DB, class catalog.Class) (map[int64]uint32, error) {
	f.record("CurrentRanks")
	return f.currentRanks, nil
}

func (f *fakeRankRepo) SnapshotPreviousRanks(ctx context.Context, tx *gorm.DB, class catalog.Class) (map[int64]uint32, error) {
	f.record("SnapshotPreviousRanks")
	if f.entered != nil {
		blocked := false
		f.blockOnce.Do(func() {
			close(f.entered)
			blocked = true
		})
		if blocked {
			<-f.released
		}
	}
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.currentRanks, nil
}

func (f *fakeRankRepo) RecomputeAll(ctx context.Context, tx *gorm.DB, class catalog.Class) (int64, error) {
	f.record("RecomputeAll")
	if f.recomputeErr != nil {
		return 0, f.recomputeErr
	}
	return f.recomputed, nil
}

func (f *fakeRankRepo) RecomputeActiveScores(ctx context.Context, tx *gorm.DB, class catalog.Class) (int64, error) {
	f.record("RecomputeActiveScores")
	return f.recomputed, nil
}

func (f *fakeRankRepo) RankFromStoredScores(ctx context.Context, tx *gorm.DB, class catalog.Class) (int64, error) {
	f.record("RankFromStoredScores")
	return f.recomputed, nil
}

func (f *fakeRankRepo) ClearIneligible(ctx context.Context, tx *gorm.DB, class catalog.Class) (int64, error) {
	f.record("ClearIneligible")
	return f.cleared, nil
}

func (f *fakeRankRepo) TopByScore(ctx context.Context, tx *gorm.DB, class catalog.Class, limit int) ([]popularity.ScoredItem, error) {
	f.record("TopByScore")
	return f.top, nil
}

func (f *fakeRankRepo) Stats(ctx context.Context, tx *gorm.DB, class catalog.Class) (repos.RankTableStats, error) {
	f.record("Stats")
	return f.stats, nil
}

type fakeMetricRepo struct {
	snapshots map[int64]popularity.MetricSnapshot
	eligible  []repos.ItemSnapshot
	err       error
}

func (f *fakeMetricRepo) SnapshotFor(ctx context.Context, tx *gorm.DB, ref catalog.Ref) (popularity.MetricSnapshot, error) {
	if f.err != nil {
		return popularity.MetricSnapshot{}, f.err
	}
	snap, ok := f.snapshots[ref.ID]
	if !ok {
		return popularity.MetricSnapshot{}, repos.ErrNotFound
	}
	return snap, nil
}

func (f *fakeMetricRepo) EligibleSnapshots(ctx context.Context, tx *gorm.DB, class catalog.Class) ([]repos.ItemSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.eligible, nil
}

type fakeReviewRepo struct {
	mu       sync.Mutex
	reviews  []*catalog.Review
	notified []int64
	markErr  map[int64]error
}

func (f *fakeReviewRepo) UnnotifiedPopular(ctx context.Context, tx *gorm.DB, minScore float64, afterID int64, limit int) ([]*catalog.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var batch []*catalog.Review
	for _, r := range f.reviews {
		if r.ID <= afterID || r.PopularNotifiedAt != nil {
			continue
		}
		batch = append(batch, r)
		if len(batch) == limit {
			break
		}
	}
	return batch, nil
}

func (f *fakeReviewRepo) MarkNotified(ctx context.Context, tx *gorm.DB, reviewID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.markErr[reviewID]; err != nil {
		return err
	}
	now := time.Now()
	for _, r := range f.reviews {
		if r.ID == reviewID {
			r.PopularNotifiedAt = &now
		}
	}
	f.notified = append(f.notified, reviewID)
	return nil
}

type fakeCounterRepo struct {
	mu         sync.Mutex
	increments []catalog.Ref
	err        error
}

func (f *fakeCounterRepo) IncrementViews(ctx context.Context, tx *gorm.DB, ref catalog.Ref) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments = append(f.increments, ref)
	return nil
}

func (f *fakeCounterRepo) ResetDailyViews(ctx context.Context, tx *gorm.DB) (int64, error) {
	return 0, f.err
}

func (f *fakeCounterRepo) ResetRecentViews(ctx context.Context, tx *gorm.DB) (int64, error) {
	return 0, f.err
}

type fakeDiscoveryRepo struct {
	signals map[string][]popularity.RelatedSignal
	err     error
	calls   int
}

func (f *fakeDiscoveryRepo) Candidates(ctx context.Context, tx *gorm.DB, ref catalog.Ref, limit int) ([]popularity.RelatedSignal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.signals[ref.String()], nil
}

type fakeRelationRepo struct {
	neighbors map[string][]catalog.Ref
	err       error
}

func (f *fakeRelationRepo) Related(ctx context.Context, tx *gorm.DB, ref catalog.Ref) ([]catalog.Ref, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.neighbors[ref.String()], nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []int64
	failOn map[int64]error
}

func (f *fakeNotifier) NotifyPopularReview(ctx context.Context, review *catalog.Review, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[review.ID]; err != nil {
		return err
	}
	f.sent = append(f.sent, review.ID)
	return nil
}

// fakeCache is an in-memory stand-in for the redis client. DelByPattern only
// understands trailing-star patterns, which is all the key scheme uses.
type fakeCache struct {
	mu      sync.Mutex
	store   map[string][]byte
	sets    int
	gets    int
	delErr  map[string]error
	scanErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	v, ok := f.store[key]
	return v, ok
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.store[key] = value
	return nil
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		if err := f.delErr[key]; err != nil {
			return err
		}
		delete(f.store, key)
	}
	return nil
}

func (f *fakeCache) DelByPattern(ctx context.Context, pattern string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return 0, f.scanErr
	}
	prefix := strings.TrimSuffix(pattern, "*")
	deleted := 0
	for key := range f.store {
		if strings.HasPrefix(key, prefix) {
			delete(f.store, key)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeCache) Close() error { return nil }

func (f *fakeCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.store[key]
	return ok
}

type spyInvalidation struct {
	mu       sync.Mutex
	rankings []catalog.Class
	items    []catalog.Ref
}

func (s *spyInvalidation) KeysFor(ref catalog.Ref) ([]string, []string) { return nil, nil }

func (s *spyInvalidation) Invalidate(ctx context.Context, ref catalog.Ref) InvalidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, ref)
	return InvalidationResult{}
}

func (s *spyInvalidation) InvalidateRankings(ctx context.Context, class catalog.Class) InvalidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rankings = append(s.rankings, class)
	return InvalidationResult{}
}
