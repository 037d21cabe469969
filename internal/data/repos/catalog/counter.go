package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	domain "github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
)

// CounterRepo owns the view counters. The period counters are rolling
// windows approximated by scheduled resets: daily_views zeroed every day,
// recent_views every week.
type CounterRepo interface {
	IncrementViews(ctx context.Context, tx *gorm.DB, ref domain.Ref) error
	ResetDailyViews(ctx context.Context, tx *gorm.DB) (int64, error)
	ResetRecentViews(ctx context.Context, tx *gorm.DB) (int64, error)
}

type counterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCounterRepo(db *gorm.DB, baseLog *logger.Logger) CounterRepo {
	return &counterRepo{db: db, log: baseLog.With("repo", "CounterRepo")}
}

func (cr *counterRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return cr.db
}

func (cr *counterRepo) IncrementViews(ctx context.Context, tx *gorm.DB, ref domain.Ref) error {
	conn := cr.conn(tx)
	table, err := tableFor(ref.Class)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`
		UPDATE %s SET
			total_views = total_views + 1,
			recent_views = recent_views + 1,
			daily_views = daily_views + 1
		WHERE id = ? AND deleted_at IS NULL`, table)
	res := conn.WithContext(ctx).Exec(stmt, ref.ID)
	if res.Error != nil {
		return fmt.Errorf("increment views for %s: %w", ref, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("increment views for %s: %w", ref, ErrNotFound)
	}
	return nil
}

func (cr *counterRepo) ResetDailyViews(ctx context.Context, tx *gorm.DB) (int64, error) {
	return cr.resetColumn(ctx, tx, "daily_views")
}

func (cr *counterRepo) ResetRecentViews(ctx context.Context, tx *gorm.DB) (int64, error) {
	return cr.resetColumn(ctx, tx, "recent_views")
}

func (cr *counterRepo) resetColumn(ctx context.Context, tx *gorm.DB, column string) (int64, error) {
	conn := cr.conn(tx)
	var total int64
	for _, class := range domain.Classes() {
		table, err := tableFor(class)
		if err != nil {
			return total, err
		}
		stmt := fmt.Sprintf(`UPDATE %s SET %s = 0 WHERE %s <> 0`, table, column, column)
		res := conn.WithContext(ctx).Exec(stmt)
		if res.Error != nil {
			return total, fmt.Errorf("reset %s for %s: %w", column, class, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}
