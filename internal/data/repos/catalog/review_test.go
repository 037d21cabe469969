package catalog

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/yumenosora/otakudb-backend/internal/data/repos/testutil"
	domain "github.com/yumenosora/otakudb-backend/internal/domain/catalog"
)

func seedScoredReview(t *testing.T, ctx context.Context, tx *gorm.DB, target domain.Ref, score float64) *domain.Review {
	t.Helper()
	r := testutil.SeedReview(t, ctx, tx, target, "content", 100)
	if err := tx.Exec(`UPDATE reviews SET popularity_score = ? WHERE id = ?`, score, r.ID).Error; err != nil {
		t.Fatalf("set review score: %v", err)
	}
	return r
}

func TestUnnotifiedPopularCursor(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewReviewRepo(db, testutil.Logger(t))

	anime := testutil.SeedAnime(t, ctx, tx, "target", testutil.AnimeOpts{RatingCount: 5})
	target := domain.Ref{Class: domain.ClassAnime, ID: anime.ID}

	hot1 := seedScoredReview(t, ctx, tx, target, 8.5)
	cold := seedScoredReview(t, ctx, tx, target, 3.0)
	hot2 := seedScoredReview(t, ctx, tx, target, 9.1)

	batch, err := repo.UnnotifiedPopular(ctx, tx, 7.0, 0, 10)
	if err != nil {
		t.Fatalf("UnnotifiedPopular: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("got %d reviews, want 2", len(batch))
	}
	if batch[0].ID != hot1.ID || batch[1].ID != hot2.ID {
		t.Errorf("ids = [%d %d], want [%d %d] in id order", batch[0].ID, batch[1].ID, hot1.ID, hot2.ID)
	}
	for _, r := range batch {
		if r.ID == cold.ID {
			t.Errorf("review %d below threshold returned", cold.ID)
		}
	}

	// Cursor excludes everything at or before afterID.
	batch, err = repo.UnnotifiedPopular(ctx, tx, 7.0, hot1.ID, 10)
	if err != nil {
		t.Fatalf("UnnotifiedPopular after cursor: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != hot2.ID {
		t.Errorf("batch after cursor = %v, want only %d", batch, hot2.ID)
	}
}

func TestMarkNotified(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewReviewRepo(db, testutil.Logger(t))

	anime := testutil.SeedAnime(t, ctx, tx, "target", testutil.AnimeOpts{RatingCount: 5})
	target := domain.Ref{Class: domain.ClassAnime, ID: anime.ID}
	r := seedScoredReview(t, ctx, tx, target, 8.0)

	if err := repo.MarkNotified(ctx, tx, r.ID); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}

	// The review drops out of the popular-unnotified set.
	batch, err := repo.UnnotifiedPopular(ctx, tx, 7.0, 0, 10)
	if err != nil {
		t.Fatalf("UnnotifiedPopular: %v", err)
	}
	for _, got := range batch {
		if got.ID == r.ID {
			t.Errorf("review %d still listed after MarkNotified", r.ID)
		}
	}

	if err := repo.MarkNotified(ctx, tx, -1); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkNotified(-1) error = %v, want ErrNotFound", err)
	}
}
