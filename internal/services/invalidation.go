package services

import (
	"context"
	"fmt"

	"github.com/yumenosora/otakudb-backend/internal/clients/redis"
	"github.com/yumenosora/otakudb-backend/internal/data/repos"
	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
)

const keyPrefix = "otakudb"

// ItemKey is the cache key for one item's detail payload.
func ItemKey(ref catalog.Ref) string {
	return fmt.Sprintf("%s:item:%s:%d", keyPrefix, ref.Class, ref.ID)
}

// RankingKey caches the ranking list page for one content class.
func RankingKey(class catalog.Class) string {
	return fmt.Sprintf("%s:ranking:%s", keyPrefix, class)
}

// SearchPattern matches every cached search/listing result for a class; those
// entries vary by filter so they are invalidated by prefix.
func SearchPattern(class catalog.Class) string {
	return fmt.Sprintf("%s:search:%s:*", keyPrefix, class)
}

// Aggregate keys that can embed any item regardless of class.
func aggregateKeys() []string {
	return []string{
		keyPrefix + ":home:top",
		keyPrefix + ":home:recent",
		keyPrefix + ":tags:popular",
	}
}

// StatsKey caches the job-statistics snapshot.
func StatsKey() string { return keyPrefix + ":jobs:popularity:stats" }

type InvalidationResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// InvalidationService is the one place that knows which cached views depend
// on an item: its own entry, class listing/search pages, ranking lists,
// homepage aggregates, and the entries of items one relation hop away. The
// walk stops at immediate neighbors so invalidation cost tracks an item's
// direct relations, not its connected component.
type InvalidationService interface {
	// KeysFor returns the exact keys and scan patterns to drop for a mutation
	// of ref, not counting relation neighbors.
	KeysFor(ref catalog.Ref) (exact []string, patterns []string)

	// Invalidate runs the full cascade for ref. Every deletion is independent
	// and best-effort; failures are logged and counted, never fatal.
	Invalidate(ctx context.Context, ref catalog.Ref) InvalidationResult

	// InvalidateRankings drops the ranking-list entry for one class, plus the
	// aggregates that embed rankings. Called after every recompute pass.
	InvalidateRankings(ctx context.Context, class catalog.Class) InvalidationResult
}

type invalidationService struct {
	log       *logger.Logger
	cache     redis.Cache
	relations repos.RelationRepo
}

func NewInvalidationService(baseLog *logger.Logger, cache redis.Cache, relations repos.RelationRepo) InvalidationService {
	return &invalidationService{
		log:       baseLog.With("service", "InvalidationService"),
		cache:     cache,
		relations: relations,
	}
}

func (s *invalidationService) KeysFor(ref catalog.Ref) ([]string, []string) {
	exact := []string{
		ItemKey(ref),
		RankingKey(ref.Class),
	}
	exact = append(exact, aggregateKeys()...)
	return exact, []string{SearchPattern(ref.Class)}
}

func (s *invalidationService) Invalidate(ctx context.Context, ref catalog.Ref) InvalidationResult {
	var result InvalidationResult
	if s.cache == nil {
		return result
	}

	exact, patterns := s.KeysFor(ref)

	// One hop through the relation graph, both directions. A failed walk
	// degrades to invalidating the fixed keys only.
	neighbors, err := s.relations.Related(ctx, nil, ref)
	if err != nil {
		s.log.Warn("relation walk failed, invalidating fixed keys only", "item", ref.String(), "error", err)
		result.Failed++
	}
	for _, n := range neighbors {
		exact = append(exact, ItemKey(n))
	}

	for _, key := range exact {
		if err := s.cache.Del(ctx, key); err != nil {
			s.log.Warn("cache delete failed", "key", key, "error", err)
			result.Failed++
			continue
		}
		result.Deleted++
	}
	for _, pattern := range patterns {
		n, err := s.cache.DelByPattern(ctx, pattern)
		result.Deleted += n
		if err != nil {
			s.log.Warn("cache pattern delete failed", "pattern", pattern, "error", err)
			result.Failed++
		}
	}
	return result
}

func (s *invalidationService) InvalidateRankings(ctx context.Context, class catalog.Class) InvalidationResult {
	var result InvalidationResult
	if s.cache == nil {
		return result
	}

	keys := append([]string{RankingKey(class), StatsKey()}, aggregateKeys()...)
	for _, key := range keys {
		if err := s.cache.Del(ctx, key); err != nil {
			s.log.Warn("cache delete failed", "key", key, "error", err)
			result.Failed++
			continue
		}
		result.Deleted++
	}
	return result
}
