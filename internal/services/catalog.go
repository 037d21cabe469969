package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yumenosora/otakudb-backend/internal/clients/redis"
	"github.com/yumenosora/otakudb-backend/internal/data/repos"
	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
)

const (
	relatedCandidateLimit = 50
	// Cached entries always hold the full blend; request limits slice it.
	relatedMaxResults = 25
)

// relatedKey lives under the class's search pattern so the one-hop
// invalidation cascade covers it without any extra bookkeeping.
func relatedKey(ref catalog.Ref) string {
	return fmt.Sprintf("%s:search:%s:related:%d", keyPrefix, ref.Class, ref.ID)
}

// CatalogService is the read-path surface the host system calls per request:
// counting a view, listing related items, and flushing an item's cached views
// after a mutation.
type CatalogService interface {
	RecordView(ctx context.Context, ref catalog.Ref) error

	// Related blends explicit relation edges with discovered candidates
	// (shared creator, tag overlap, title similarity) and serves the result
	// read-through.
	Related(ctx context.Context, ref catalog.Ref, limit int) ([]catalog.Ref, error)

	// InvalidateItem runs the invalidation cascade for one mutated item.
	InvalidateItem(ctx context.Context, ref catalog.Ref) InvalidationResult
}

type catalogService struct {
	log       *logger.Logger
	cache     redis.Cache
	counters  repos.CounterRepo
	relations repos.RelationRepo
	discovery repos.DiscoveryRepo
	inval     InvalidationService
}

func NewCatalogService(
	baseLog *logger.Logger,
	cache redis.Cache,
	counters repos.CounterRepo,
	relations repos.RelationRepo,
	discovery repos.DiscoveryRepo,
	inval InvalidationService,
) CatalogService {
	return &catalogService{
		log:       baseLog.With("service", "CatalogService"),
		cache:     cache,
		counters:  counters,
		relations: relations,
		discovery: discovery,
		inval:     inval,
	}
}

func (s *catalogService) RecordView(ctx context.Context, ref catalog.Ref) error {
	// Counters feed the next scoring pass; cached payloads age out on their
	// own TTL, so a view does not invalidate anything.
	return s.counters.IncrementViews(ctx, nil, ref)
}

func (s *catalogService) Related(ctx context.Context, ref catalog.Ref, limit int) ([]catalog.Ref, error) {
	if limit <= 0 || limit > relatedMaxResults {
		limit = relatedMaxResults
	}

	raw, err := redis.GetOrCompute(ctx, s.cache, relatedKey(ref), redis.TTLSearch, func() ([]byte, error) {
		refs, err := s.computeRelated(ctx, ref, relatedMaxResults)
		if err != nil {
			return nil, err
		}
		return json.Marshal(refs)
	})
	if err != nil {
		return nil, err
	}

	var refs []catalog.Ref
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, fmt.Errorf("decode related items for %s: %w", ref, err)
	}
	if limit < len(refs) {
		refs = refs[:limit]
	}
	return refs, nil
}

func (s *catalogService) computeRelated(ctx context.Context, ref catalog.Ref, limit int) ([]catalog.Ref, error) {
	neighbors, err := s.relations.Related(ctx, nil, ref)
	if err != nil {
		return nil, fmt.Errorf("related items for %s: %w", ref, err)
	}
	signals := make([]popularity.RelatedSignal, 0, len(neighbors))
	for _, n := range neighbors {
		signals = append(signals, popularity.RelatedSignal{Ref: n, Explicit: true})
	}

	discovered, err := s.discovery.Candidates(ctx, nil, ref, relatedCandidateLimit)
	if err != nil {
		// Discovery is an enrichment; explicit edges alone still answer.
		s.log.Warn("candidate discovery failed, serving explicit edges only", "item", ref.String(), "error", err)
	}
	signals = append(signals, discovered...)

	return popularity.BlendRelated(signals, limit), nil
}

func (s *catalogService) InvalidateItem(ctx context.Context, ref catalog.Ref) InvalidationResult {
	return s.inval.Invalidate(ctx, ref)
}
