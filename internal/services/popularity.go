package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yumenosora/otakudb-backend/internal/data/repos"
	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
)

// ErrPassRunning reports that a recompute pass for the same content class is
// still in flight. Callers skip, they do not queue.
var ErrPassRunning = errors.New("recompute pass already running for this class")

type RunMode string

const (
	RunModeFull   RunMode = "full"
	RunModeRecent RunMode = "recent"
)

type RunResult struct {
	Class    catalog.Class `json:"class"`
	Mode     RunMode       `json:"mode"`
	Updated  int64         `json:"updated"`
	Cleared  int64         `json:"cleared"`
	Duration time.Duration `json:"duration"`
}

type NotifyResult struct {
	Examined int           `json:"examined"`
	Notified int           `json:"notified"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

type PreviewItem struct {
	popularity.RankRecord
	Score float64 `json:"score"`
}

// PopularityConfig tunes the batch passes. Zero values fall back to defaults.
type PopularityConfig struct {
	// NotifyThreshold is the stored score at or above which a review counts
	// as popular for author notification.
	NotifyThreshold float64
	// NotifyBatchSize bounds one fallback batch; NotifyPause separates
	// batches to stay inside the notifier's capacity.
	NotifyBatchSize int
	NotifyPause     time.Duration
	// NotifyParallelism bounds concurrent notifier calls inside a batch.
	NotifyParallelism int
}

func (c PopularityConfig) withDefaults() PopularityConfig {
	if c.NotifyThreshold == 0 {
		c.NotifyThreshold = 7.0
	}
	if c.NotifyBatchSize <= 0 {
		c.NotifyBatchSize = 50
	}
	if c.NotifyPause <= 0 {
		c.NotifyPause = 500 * time.Millisecond
	}
	if c.NotifyParallelism <= 0 {
		c.NotifyParallelism = 4
	}
	return c
}

// PopularityService orchestrates recompute passes. A full pass rescores and
// reranks the whole eligible population inside one transaction; a recent pass
// only rescores items with view activity today before reranking from stored
// scores. Both are idempotent and per-class mutually exclusive.
type PopularityService interface {
	RunFull(ctx context.Context, class catalog.Class) (RunResult, error)
	RunRecent(ctx context.Context, class catalog.Class) (RunResult, error)
	// Preview computes what the next full pass would persist, without writing.
	Preview(ctx context.Context, class catalog.Class, limit int) ([]PreviewItem, error)
	// NotifyPopularReviews is the small-batch fallback path: it trades
	// throughput for the per-item notifier side effect.
	NotifyPopularReviews(ctx context.Context) (NotifyResult, error)
	LastRun(class catalog.Class) (time.Time, bool)
}

type popularityService struct {
	db      *gorm.DB
	log     *logger.Logger
	scorer  *popularity.Scorer
	metrics repos.MetricRepo
	ranks   repos.RankRepo
	reviews repos.ReviewRepo
	inval   InvalidationService
	notify  Notifier
	cfg     PopularityConfig

	mu       sync.Mutex
	running  map[catalog.Class]bool
	lastRuns map[catalog.Class]time.Time
}

func NewPopularityService(
	db *gorm.DB,
	baseLog *logger.Logger,
	scorer *popularity.Scorer,
	metrics repos.MetricRepo,
	ranks repos.RankRepo,
	reviews repos.ReviewRepo,
	inval InvalidationService,
	notify Notifier,
	cfg PopularityConfig,
) PopularityService {
	return &popularityService{
		db:       db,
		log:      baseLog.With("service", "PopularityService"),
		scorer:   scorer,
		metrics:  metrics,
		ranks:    ranks,
		reviews:  reviews,
		inval:    inval,
		notify:   notify,
		cfg:      cfg.withDefaults(),
		running:  make(map[catalog.Class]bool),
		lastRuns: make(map[catalog.Class]time.Time),
	}
}

// tryAcquire marks a class busy. Two passes writing the same rank table
// concurrently could commit a non-dense snapshot, so the second caller is
// turned away instead of queued.
func (s *popularityService) tryAcquire(class catalog.Class) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[class] {
		return false
	}
	s.running[class] = true
	return true
}

func (s *popularityService) release(class catalog.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[class] = false
	s.lastRuns[class] = time.Now()
}

func (s *popularityService) LastRun(class catalog.Class) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRuns[class]
	return t, ok
}

func (s *popularityService) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *popularityService) RunFull(ctx context.Context, class catalog.Class) (RunResult, error) {
	return s.run(ctx, class, RunModeFull)
}

func (s *popularityService) RunRecent(ctx context.Context, class catalog.Class) (RunResult, error) {
	return s.run(ctx, class, RunModeRecent)
}

func (s *popularityService) run(ctx context.Context, class catalog.Class, mode RunMode) (RunResult, error) {
	if !s.tryAcquire(class) {
		return RunResult{}, fmt.Errorf("%s pass for %s: %w", mode, class, ErrPassRunning)
	}
	defer s.release(class)

	result := RunResult{Class: class, Mode: mode}
	started := time.Now()

	// Everything inside one transaction: a transient store error aborts the
	// whole pass and the previous rank snapshot survives intact.
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ranks.SnapshotPreviousRanks(ctx, tx, class); err != nil {
			return err
		}

		var updated int64
		var err error
		switch mode {
		case RunModeFull:
			updated, err = s.ranks.RecomputeAll(ctx, tx, class)
		case RunModeRecent:
			if _, err = s.ranks.RecomputeActiveScores(ctx, tx, class); err != nil {
				return err
			}
			updated, err = s.ranks.RankFromStoredScores(ctx, tx, class)
		default:
			err = fmt.Errorf("unknown run mode %q", mode)
		}
		if err != nil {
			return err
		}
		result.Updated = updated

		cleared, err := s.ranks.ClearIneligible(ctx, tx, class)
		if err != nil {
			return err
		}
		result.Cleared = cleared
		return nil
	})
	result.Duration = time.Since(started)

	if err != nil {
		s.log.Error("recompute pass aborted",
			"class", class, "mode", mode, "duration", result.Duration, "error", err)
		return RunResult{}, fmt.Errorf("%s pass for %s: %w", mode, class, err)
	}

	// Rank tables changed; cached ranking pages are stale now.
	if s.inval != nil {
		s.inval.InvalidateRankings(ctx, class)
	}

	s.log.Info("recompute pass finished",
		"class", class, "mode", mode,
		"updated", result.Updated, "cleared", result.Cleared,
		"duration", result.Duration)
	return result, nil
}

func (s *popularityService) Preview(ctx context.Context, class catalog.Class, limit int) ([]PreviewItem, error) {
	snapshots, err := s.metrics.EligibleSnapshots(ctx, nil, class)
	if err != nil {
		return nil, fmt.Errorf("preview for %s: %w", class, err)
	}
	current, err := s.ranks.CurrentRanks(ctx, nil, class)
	if err != nil {
		return nil, fmt.Errorf("preview for %s: %w", class, err)
	}

	scored := make([]popularity.ScoredItem, len(snapshots))
	scores := make(map[int64]float64, len(snapshots))
	for i, snap := range snapshots {
		score := s.scorer.Score(class, snap.Snapshot)
		scored[i] = popularity.ScoredItem{ID: snap.ID, Score: score}
		scores[snap.ID] = score
	}

	records := popularity.Rank(scored, current)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	items := make([]PreviewItem, len(records))
	for i, r := range records {
		items[i] = PreviewItem{RankRecord: r, Score: scores[r.ID]}
	}
	return items, nil
}

func (s *popularityService) NotifyPopularReviews(ctx context.Context) (NotifyResult, error) {
	var result NotifyResult
	started := time.Now()

	var afterID int64
	for {
		batch, err := s.reviews.UnnotifiedPopular(ctx, nil, s.cfg.NotifyThreshold, afterID, s.cfg.NotifyBatchSize)
		if err != nil {
			result.Duration = time.Since(started)
			return result, fmt.Errorf("list popular reviews: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.NotifyParallelism)
		for _, review := range batch {
			g.Go(func() error {
				outcome := s.notifyOne(gctx, review)
				mu.Lock()
				result.Examined++
				switch outcome {
				case notifySent:
					result.Notified++
				case notifySkipped:
					result.Skipped++
				case notifyFailed:
					result.Failed++
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		afterID = batch[len(batch)-1].ID

		if len(batch) < s.cfg.NotifyBatchSize {
			break
		}
		// Breathe between batches so the notifier is not flooded.
		select {
		case <-ctx.Done():
			result.Duration = time.Since(started)
			return result, ctx.Err()
		case <-time.After(s.cfg.NotifyPause):
		}
	}

	result.Duration = time.Since(started)
	s.log.Info("popular review notification pass finished",
		"examined", result.Examined, "notified", result.Notified,
		"skipped", result.Skipped, "failed", result.Failed,
		"duration", result.Duration)
	return result, nil
}

type notifyOutcome int

const (
	notifySent notifyOutcome = iota
	notifySkipped
	notifyFailed
)

// notifyOne handles a single review. Errors are logged with the review id
// and absorbed: one bad item never stops the batch.
func (s *popularityService) notifyOne(ctx context.Context, review *catalog.Review) notifyOutcome {
	snap, err := s.metrics.SnapshotFor(ctx, nil, catalog.Ref{Class: catalog.ClassReview, ID: review.ID})
	if err != nil {
		s.log.Warn("skipping review in notification batch", "review_id", review.ID, "error", err)
		return notifyFailed
	}

	// Rescore from a fresh snapshot; the stored score may predate a counter
	// reset.
	score := s.scorer.Score(catalog.ClassReview, snap)
	if score < s.cfg.NotifyThreshold {
		return notifySkipped
	}

	if err := s.notify.NotifyPopularReview(ctx, review, score); err != nil {
		s.log.Warn("notifier failed for review", "review_id", review.ID, "error", err)
		return notifyFailed
	}
	if err := s.reviews.MarkNotified(ctx, nil, review.ID); err != nil {
		s.log.Warn("could not mark review notified", "review_id", review.ID, "error", err)
		return notifyFailed
	}
	return notifySent
}
