package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yumenosora/otakudb-backend/internal/clients/redis"
	"github.com/yumenosora/otakudb-backend/internal/data/repos"
	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
)

const statsTopN = 10

type ClassStats struct {
	Eligible     int64                   `json:"eligible"`
	Scored       int64                   `json:"scored"`
	AverageScore float64                 `json:"average_score"`
	Top          []popularity.ScoredItem `json:"top"`
	LastRunAt    *time.Time              `json:"last_run_at,omitempty"`
}

type StatsSnapshot struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	Classes     map[catalog.Class]ClassStats `json:"classes"`
}

// StatsService exposes the read-only observability snapshot for the
// recompute jobs. The snapshot is served read-through with a short TTL since
// it aggregates three table scans.
type StatsService interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}

type statsService struct {
	log   *logger.Logger
	cache redis.Cache
	ranks repos.RankRepo
	pop   PopularityService
}

func NewStatsService(baseLog *logger.Logger, cache redis.Cache, ranks repos.RankRepo, pop PopularityService) StatsService {
	return &statsService{
		log:   baseLog.With("service", "StatsService"),
		cache: cache,
		ranks: ranks,
		pop:   pop,
	}
}

func (s *statsService) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	raw, err := redis.GetOrCompute(ctx, s.cache, StatsKey(), redis.TTLSearch, func() ([]byte, error) {
		snap, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	})
	if err != nil {
		return StatsSnapshot{}, err
	}

	var snap StatsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return StatsSnapshot{}, fmt.Errorf("decode stats snapshot: %w", err)
	}
	return snap, nil
}

func (s *statsService) compute(ctx context.Context) (StatsSnapshot, error) {
	snap := StatsSnapshot{
		GeneratedAt: time.Now().UTC(),
		Classes:     make(map[catalog.Class]ClassStats, len(catalog.Classes())),
	}
	for _, class := range catalog.Classes() {
		tableStats, err := s.ranks.Stats(ctx, nil, class)
		if err != nil {
			return StatsSnapshot{}, fmt.Errorf("stats for %s: %w", class, err)
		}
		top, err := s.ranks.TopByScore(ctx, nil, class, statsTopN)
		if err != nil {
			return StatsSnapshot{}, fmt.Errorf("top items for %s: %w", class, err)
		}

		cs := ClassStats{
			Eligible:     tableStats.Eligible,
			Scored:       tableStats.Scored,
			AverageScore: tableStats.AverageScore,
			Top:          top,
		}
		if t, ok := s.pop.LastRun(class); ok {
			cs.LastRunAt = &t
		}
		snap.Classes[class] = cs
	}
	return snap, nil
}
