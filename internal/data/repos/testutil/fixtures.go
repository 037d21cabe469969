package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
)

type AnimeOpts struct {
	TotalViews    uint64
	RecentViews   uint64
	DailyViews    uint64
	AverageRating float64
	RatingCount   uint32
	LikeCount     uint32
	DislikeCount  uint32
	CreatedAt     time.Time
}

func SeedAnime(tb testing.TB, ctx context.Context, tx *gorm.DB, title string, opts AnimeOpts) *catalog.Anime {
	tb.Helper()
	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().Add(-48 * time.Hour)
	}
	a := &catalog.Anime{
		Title:         title,
		Studio:        "studio",
		Episodes:      12,
		TotalViews:    opts.TotalViews,
		RecentViews:   opts.RecentViews,
		DailyViews:    opts.DailyViews,
		AverageRating: opts.AverageRating,
		RatingCount:   opts.RatingCount,
		LikeCount:     opts.LikeCount,
		DislikeCount:  opts.DislikeCount,
		CreatedAt:     createdAt,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed anime: %v", err)
	}
	return a
}

func SeedManga(tb testing.TB, ctx context.Context, tx *gorm.DB, title string, ratingCount uint32) *catalog.Manga {
	tb.Helper()
	m := &catalog.Manga{
		Title:         title,
		Author:        "author",
		Chapters:      40,
		TotalViews:    100,
		RecentViews:   10,
		AverageRating: 7,
		RatingCount:   ratingCount,
		CreatedAt:     time.Now().Add(-72 * time.Hour),
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed manga: %v", err)
	}
	return m
}

func SeedReview(tb testing.TB, ctx context.Context, tx *gorm.DB, target catalog.Ref, content string, totalViews uint64) *catalog.Review {
	tb.Helper()
	r := &catalog.Review{
		AuthorID:    uuid.New(),
		TargetClass: target.Class,
		TargetID:    target.ID,
		Title:       "review",
		Content:     content,
		TotalViews:  totalViews,
		RecentViews: totalViews / 2,
		CreatedAt:   time.Now().Add(-24 * time.Hour),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed review: %v", err)
	}
	return r
}

func SeedRelation(tb testing.TB, ctx context.Context, tx *gorm.DB, source, target catalog.Ref, relationClass string) *catalog.RelationEdge {
	tb.Helper()
	e := &catalog.RelationEdge{
		SourceClass:   source.Class,
		SourceID:      source.ID,
		TargetClass:   target.Class,
		TargetID:      target.ID,
		RelationClass: relationClass,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed relation edge: %v", err)
	}
	return e
}
