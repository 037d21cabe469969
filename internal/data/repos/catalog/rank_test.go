package catalog

import (
	"context"
	"math"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yumenosora/otakudb-backend/internal/data/repos/testutil"
	domain "github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
)

type rankRow struct {
	ID              int64
	PopularityScore *float64
	Rank            uint32
	PreviousRank    uint32
	RankVariation   string
}

func readRankRows(t *testing.T, tx *gorm.DB, table string) map[int64]rankRow {
	t.Helper()
	var rows []rankRow
	q := `SELECT id, popularity_score, "rank", previous_rank, rank_variation FROM ` + table
	if err := tx.Raw(q).Scan(&rows).Error; err != nil {
		t.Fatalf("read rank rows: %v", err)
	}
	out := make(map[int64]rankRow, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out
}

func assertDenseRanks(t *testing.T, rows map[int64]rankRow) {
	t.Helper()
	seen := make(map[uint32]int64)
	max := uint32(0)
	for id, r := range rows {
		if r.Rank == 0 {
			continue
		}
		if other, dup := seen[r.Rank]; dup {
			t.Errorf("rank %d assigned to both %d and %d", r.Rank, other, id)
		}
		seen[r.Rank] = id
		if r.Rank > max {
			max = r.Rank
		}
	}
	for rank := uint32(1); rank <= max; rank++ {
		if _, ok := seen[rank]; !ok {
			t.Errorf("rank sequence has a hole at %d", rank)
		}
	}
}

func newTestRankRepo(t *testing.T, db *gorm.DB) RankRepo {
	t.Helper()
	return NewRankRepo(db, testutil.Logger(t), popularity.DefaultWeights(), DefaultEligibility())
}

func fullPass(t *testing.T, ctx context.Context, repo RankRepo, tx *gorm.DB, class domain.Class) {
	t.Helper()
	if _, err := repo.SnapshotPreviousRanks(ctx, tx, class); err != nil {
		t.Fatalf("SnapshotPreviousRanks: %v", err)
	}
	if _, err := repo.RecomputeAll(ctx, tx, class); err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	if _, err := repo.ClearIneligible(ctx, tx, class); err != nil {
		t.Fatalf("ClearIneligible: %v", err)
	}
}

func TestRecomputeAllRanksAndVariation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := newTestRankRepo(t, db)

	hot := testutil.SeedAnime(t, ctx, tx, "hot", testutil.AnimeOpts{
		TotalViews: 100000, RecentViews: 5000, DailyViews: 1500,
		AverageRating: 9, RatingCount: 100, LikeCount: 900, DislikeCount: 10,
	})
	warm := testutil.SeedAnime(t, ctx, tx, "warm", testutil.AnimeOpts{
		TotalViews: 1000, RecentViews: 100, DailyViews: 10,
		AverageRating: 7, RatingCount: 50, LikeCount: 40, DislikeCount: 5,
	})
	cold := testutil.SeedAnime(t, ctx, tx, "cold", testutil.AnimeOpts{
		TotalViews: 50, RecentViews: 2,
		AverageRating: 5, RatingCount: 10,
	})
	unrated := testutil.SeedAnime(t, ctx, tx, "unrated", testutil.AnimeOpts{
		TotalViews: 100000, RecentViews: 9000, AverageRating: 10, RatingCount: 2,
	})

	fullPass(t, ctx, repo, tx, domain.ClassAnime)

	rows := readRankRows(t, tx, "animes")
	assertDenseRanks(t, rows)

	if r := rows[hot.ID]; r.Rank != 1 || r.RankVariation != "NEW" {
		t.Errorf("hot = %+v, want rank 1 NEW", r)
	}
	if r := rows[warm.ID]; r.Rank != 2 || r.RankVariation != "NEW" {
		t.Errorf("warm = %+v, want rank 2 NEW", r)
	}
	if r := rows[cold.ID]; r.Rank != 3 || r.RankVariation != "NEW" {
		t.Errorf("cold = %+v, want rank 3 NEW", r)
	}
	// Below the rating-count bar: never ranked, never scored.
	if r := rows[unrated.ID]; r.Rank != 0 || r.PopularityScore != nil {
		t.Errorf("unrated = %+v, want unranked", r)
	}

	// Second pass: cold overtakes everything.
	err := tx.Exec(`UPDATE animes SET total_views = 10000000, recent_views = 50000,
		daily_views = 20000, average_rating = 10, rating_count = 1000,
		like_count = 5000, dislike_count = 0 WHERE id = ?`, cold.ID).Error
	if err != nil {
		t.Fatalf("update cold: %v", err)
	}

	fullPass(t, ctx, repo, tx, domain.ClassAnime)

	rows = readRankRows(t, tx, "animes")
	assertDenseRanks(t, rows)

	if r := rows[cold.ID]; r.Rank != 1 || r.RankVariation != "+2" {
		t.Errorf("cold = %+v, want rank 1 +2", r)
	}
	if r := rows[hot.ID]; r.Rank != 2 || r.RankVariation != "-1" {
		t.Errorf("hot = %+v, want rank 2 -1", r)
	}
	if r := rows[warm.ID]; r.Rank != 3 || r.RankVariation != "-1" {
		t.Errorf("warm = %+v, want rank 3 -1", r)
	}

	// Variation law holds for every moved row.
	for id, r := range rows {
		if r.Rank == 0 || r.RankVariation == "NEW" || r.RankVariation == "=" {
			continue
		}
		if want := popularity.Variation(r.PreviousRank, r.Rank); r.RankVariation != want {
			t.Errorf("row %d variation = %q, want %q", id, r.RankVariation, want)
		}
	}
}

func TestRecomputeAllIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := newTestRankRepo(t, db)

	a := testutil.SeedAnime(t, ctx, tx, "a", testutil.AnimeOpts{
		TotalViews: 5000, RecentViews: 300, AverageRating: 8, RatingCount: 20,
	})
	b := testutil.SeedAnime(t, ctx, tx, "b", testutil.AnimeOpts{
		TotalViews: 200, RecentViews: 20, AverageRating: 6, RatingCount: 5,
	})

	fullPass(t, ctx, repo, tx, domain.ClassAnime)
	first := readRankRows(t, tx, "animes")

	fullPass(t, ctx, repo, tx, domain.ClassAnime)
	second := readRankRows(t, tx, "animes")

	for _, id := range []int64{a.ID, b.ID} {
		if first[id].Rank != second[id].Rank {
			t.Errorf("row %d rank moved %d -> %d with unchanged metrics",
				id, first[id].Rank, second[id].Rank)
		}
		if second[id].RankVariation != "=" {
			t.Errorf("row %d variation = %q after no-op pass, want =", id, second[id].RankVariation)
		}
	}
}

func TestSQLScoreMatchesGoScorer(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := newTestRankRepo(t, db)

	createdAt := time.Now().Add(-6 * time.Hour)
	a := testutil.SeedAnime(t, ctx, tx, "reference", testutil.AnimeOpts{
		TotalViews: 999, RecentViews: 50, DailyViews: 10,
		AverageRating: 8, RatingCount: 5, LikeCount: 40, DislikeCount: 5,
		CreatedAt: createdAt,
	})

	if _, err := repo.RecomputeAll(ctx, tx, domain.ClassAnime); err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}

	rows := readRankRows(t, tx, "animes")
	row := rows[a.ID]
	if row.PopularityScore == nil {
		t.Fatal("no score stored")
	}

	scorer, err := popularity.NewScorer(popularity.DefaultWeights())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	want := scorer.Score(domain.ClassAnime, popularity.MetricSnapshot{
		TotalViews: 999, RecentViews: 50, DailyViews: 10,
		AverageRating: 8, RatingCount: 5, LikeCount: 40, DislikeCount: 5,
		CreatedAt: createdAt,
	})
	if math.Abs(*row.PopularityScore-want) > 0.01 {
		t.Errorf("stored score %.4f, scorer says %.4f", *row.PopularityScore, want)
	}
}

func TestRecentPassKeepsRanksDense(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := newTestRankRepo(t, db)

	for _, opts := range []testutil.AnimeOpts{
		{TotalViews: 90000, RecentViews: 4000, AverageRating: 9, RatingCount: 80},
		{TotalViews: 3000, RecentViews: 200, AverageRating: 7, RatingCount: 30},
		{TotalViews: 100, RecentViews: 10, AverageRating: 5, RatingCount: 8},
	} {
		testutil.SeedAnime(t, ctx, tx, "anime", opts)
	}
	fullPass(t, ctx, repo, tx, domain.ClassAnime)

	// Only the coldest item gets activity today.
	if err := tx.Exec(`UPDATE animes SET daily_views = 5000, recent_views = 6000
		WHERE total_views = 100`).Error; err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := repo.SnapshotPreviousRanks(ctx, tx, domain.ClassAnime); err != nil {
		t.Fatalf("SnapshotPreviousRanks: %v", err)
	}
	if _, err := repo.RecomputeActiveScores(ctx, tx, domain.ClassAnime); err != nil {
		t.Fatalf("RecomputeActiveScores: %v", err)
	}
	updated, err := repo.RankFromStoredScores(ctx, tx, domain.ClassAnime)
	if err != nil {
		t.Fatalf("RankFromStoredScores: %v", err)
	}
	if updated != 3 {
		t.Errorf("reranked %d rows, want 3 (whole eligible set)", updated)
	}

	assertDenseRanks(t, readRankRows(t, tx, "animes"))
}

func TestClearIneligibleUnranksDroppedItems(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := newTestRankRepo(t, db)

	a := testutil.SeedAnime(t, ctx, tx, "a", testutil.AnimeOpts{
		TotalViews: 5000, RecentViews: 100, AverageRating: 8, RatingCount: 20,
	})
	fullPass(t, ctx, repo, tx, domain.ClassAnime)

	if err := tx.Exec(`UPDATE animes SET rating_count = 1 WHERE id = ?`, a.ID).Error; err != nil {
		t.Fatalf("update: %v", err)
	}
	cleared, err := repo.ClearIneligible(ctx, tx, domain.ClassAnime)
	if err != nil {
		t.Fatalf("ClearIneligible: %v", err)
	}
	if cleared != 1 {
		t.Errorf("cleared %d rows, want 1", cleared)
	}

	row := readRankRows(t, tx, "animes")[a.ID]
	if row.Rank != 0 || row.PreviousRank != 0 || row.RankVariation != "" || row.PopularityScore != nil {
		t.Errorf("dropped item still carries rank state: %+v", row)
	}
}

func TestReviewEligibilityAndRanking(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := newTestRankRepo(t, db)

	anime := testutil.SeedAnime(t, ctx, tx, "target", testutil.AnimeOpts{
		TotalViews: 100, RatingCount: 5, AverageRating: 7,
	})
	target := domain.Ref{Class: domain.ClassAnime, ID: anime.ID}

	viewed := testutil.SeedReview(t, ctx, tx, target, "a long and thoughtful writeup of the season", 400)
	unviewed := testutil.SeedReview(t, ctx, tx, target, "also written, never opened", 0)

	fullPass(t, ctx, repo, tx, domain.ClassReview)

	rows := readRankRows(t, tx, "reviews")
	if r := rows[viewed.ID]; r.Rank != 1 || r.PopularityScore == nil {
		t.Errorf("viewed review = %+v, want rank 1 with score", r)
	}
	if r := rows[unviewed.ID]; r.Rank != 0 || r.PopularityScore != nil {
		t.Errorf("unviewed review = %+v, want unranked", r)
	}
}

func TestTopByScoreAndStats(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := newTestRankRepo(t, db)

	testutil.SeedAnime(t, ctx, tx, "a", testutil.AnimeOpts{
		TotalViews: 90000, RecentViews: 4000, AverageRating: 9, RatingCount: 80,
	})
	testutil.SeedAnime(t, ctx, tx, "b", testutil.AnimeOpts{
		TotalViews: 100, RecentViews: 5, AverageRating: 5, RatingCount: 10,
	})
	fullPass(t, ctx, repo, tx, domain.ClassAnime)

	top, err := repo.TopByScore(ctx, tx, domain.ClassAnime, 1)
	if err != nil {
		t.Fatalf("TopByScore: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("got %d items, want 1", len(top))
	}

	stats, err := repo.Stats(ctx, tx, domain.ClassAnime)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Eligible != 2 || stats.Scored != 2 {
		t.Errorf("stats = %+v, want Eligible=2 Scored=2", stats)
	}
	if stats.AverageScore <= 0 || stats.AverageScore > 10 {
		t.Errorf("average score %.2f out of range", stats.AverageScore)
	}
}
