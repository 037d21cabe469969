package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	domain "github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
)

// ReviewRepo covers the review-specific reads and writes the notification
// fallback path needs.
type ReviewRepo interface {
	// UnnotifiedPopular lists reviews whose stored score crossed minScore and
	// whose author has not been notified yet, in id order starting after
	// afterID, at most limit. The cursor lets a batch loop make progress even
	// when individual items fail and stay unnotified.
	UnnotifiedPopular(ctx context.Context, tx *gorm.DB, minScore float64, afterID int64, limit int) ([]*domain.Review, error)
	MarkNotified(ctx context.Context, tx *gorm.DB, reviewID int64) error
}

type reviewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewRepo(db *gorm.DB, baseLog *logger.Logger) ReviewRepo {
	return &reviewRepo{db: db, log: baseLog.With("repo", "ReviewRepo")}
}

func (rr *reviewRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return rr.db
}

func (rr *reviewRepo) UnnotifiedPopular(ctx context.Context, tx *gorm.DB, minScore float64, afterID int64, limit int) ([]*domain.Review, error) {
	conn := rr.conn(tx)
	if limit <= 0 {
		limit = 100
	}

	var reviews []*domain.Review
	err := conn.WithContext(ctx).
		Where("popularity_score >= ?", minScore).
		Where("popular_notified_at IS NULL").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("unnotified popular reviews: %w", err)
	}
	return reviews, nil
}

func (rr *reviewRepo) MarkNotified(ctx context.Context, tx *gorm.DB, reviewID int64) error {
	conn := rr.conn(tx)
	res := conn.WithContext(ctx).
		Model(&domain.Review{}).
		Where("id = ?", reviewID).
		Update("popular_notified_at", gorm.Expr("NOW()"))
	if res.Error != nil {
		return fmt.Errorf("mark review %d notified: %w", reviewID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark review %d notified: %w", reviewID, ErrNotFound)
	}
	return nil
}
