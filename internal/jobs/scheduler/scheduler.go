package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yumenosora/otakudb-backend/internal/data/repos"
	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
	"github.com/yumenosora/otakudb-backend/internal/services"
)

type ResetPeriod string

const (
	ResetDaily  ResetPeriod = "daily"
	ResetWeekly ResetPeriod = "weekly"
)

type Config struct {
	// RecentInterval drives the cheap pass over recently-active items;
	// FullInterval the expensive whole-population pass, meant for off-peak.
	RecentInterval time.Duration
	FullInterval   time.Duration
	NotifyInterval time.Duration
	DailyReset     time.Duration
	WeeklyReset    time.Duration
}

func (c Config) withDefaults() Config {
	if c.RecentInterval <= 0 {
		c.RecentInterval = 15 * time.Minute
	}
	if c.FullInterval <= 0 {
		c.FullInterval = 24 * time.Hour
	}
	if c.NotifyInterval <= 0 {
		c.NotifyInterval = time.Hour
	}
	if c.DailyReset <= 0 {
		c.DailyReset = 24 * time.Hour
	}
	if c.WeeklyReset <= 0 {
		c.WeeklyReset = 7 * 24 * time.Hour
	}
	return c
}

// Scheduler owns the periodic ticks. Classes run independently of each other
// (their rank tables are disjoint); within one class the popularity service's
// own guard turns an overlapping tick into a skip. Every trigger is also
// callable on demand from the admin surface.
type Scheduler struct {
	log      *logger.Logger
	pop      services.PopularityService
	counters repos.CounterRepo
	cfg      Config
}

func New(baseLog *logger.Logger, pop services.PopularityService, counters repos.CounterRepo, cfg Config) *Scheduler {
	return &Scheduler{
		log:      baseLog.With("component", "Scheduler"),
		pop:      pop,
		counters: counters,
		cfg:      cfg.withDefaults(),
	}
}

// Start launches all interval loops. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Starting popularity scheduler",
		"recent_interval", s.cfg.RecentInterval,
		"full_interval", s.cfg.FullInterval,
		"notify_interval", s.cfg.NotifyInterval)

	for _, class := range catalog.Classes() {
		go s.runLoop(ctx, s.cfg.RecentInterval, fmt.Sprintf("recent:%s", class), func(ctx context.Context) error {
			_, err := s.TriggerRun(ctx, class, services.RunModeRecent)
			return err
		})
		go s.runLoop(ctx, s.cfg.FullInterval, fmt.Sprintf("full:%s", class), func(ctx context.Context) error {
			_, err := s.TriggerRun(ctx, class, services.RunModeFull)
			return err
		})
	}

	go s.runLoop(ctx, s.cfg.NotifyInterval, "notify-popular-reviews", func(ctx context.Context) error {
		_, err := s.TriggerNotify(ctx)
		return err
	})
	go s.runLoop(ctx, s.cfg.DailyReset, "reset:daily", func(ctx context.Context) error {
		_, err := s.TriggerCounterReset(ctx, ResetDaily)
		return err
	})
	go s.runLoop(ctx, s.cfg.WeeklyReset, "reset:weekly", func(ctx context.Context) error {
		_, err := s.TriggerCounterReset(ctx, ResetWeekly)
		return err
	})
}

func (s *Scheduler) runLoop(ctx context.Context, interval time.Duration, name string, tick func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler loop stopped", "loop", name)
			return
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				if errors.Is(err, services.ErrPassRunning) {
					// Previous pass still going; this tick is dropped, not queued.
					s.log.Info("Skipping tick, previous pass still running", "loop", name)
					continue
				}
				s.log.Error("Scheduled tick failed, leaving for next interval", "loop", name, "error", err)
			}
		}
	}
}

// TriggerRun runs one recompute pass now. Safe to call out of schedule; a
// pass already in flight for the class makes this a no-op error.
func (s *Scheduler) TriggerRun(ctx context.Context, class catalog.Class, mode services.RunMode) (services.RunResult, error) {
	switch mode {
	case services.RunModeFull:
		return s.pop.RunFull(ctx, class)
	case services.RunModeRecent:
		return s.pop.RunRecent(ctx, class)
	}
	return services.RunResult{}, fmt.Errorf("unknown run mode %q", mode)
}

// TriggerNotify runs the popular-review notification batch now.
func (s *Scheduler) TriggerNotify(ctx context.Context) (services.NotifyResult, error) {
	return s.pop.NotifyPopularReviews(ctx)
}

// TriggerCounterReset zeroes one period counter across all classes. Resets
// are idempotent: a second call right after the first resets nothing.
func (s *Scheduler) TriggerCounterReset(ctx context.Context, period ResetPeriod) (int64, error) {
	switch period {
	case ResetDaily:
		n, err := s.counters.ResetDailyViews(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("daily counter reset: %w", err)
		}
		s.log.Info("Daily view counters reset", "rows", n)
		return n, nil
	case ResetWeekly:
		n, err := s.counters.ResetRecentViews(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("weekly counter reset: %w", err)
		}
		s.log.Info("Weekly view counters reset", "rows", n)
		return n, nil
	}
	return 0, fmt.Errorf("unknown reset period %q", period)
}

func ParseResetPeriod(s string) (ResetPeriod, error) {
	switch ResetPeriod(s) {
	case ResetDaily, ResetWeekly:
		return ResetPeriod(s), nil
	}
	return "", fmt.Errorf("unknown reset period %q", s)
}
