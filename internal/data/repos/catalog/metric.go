package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
)

var ErrNotFound = errors.New("catalog item not found")

// ItemSnapshot pairs an item id with the metric snapshot read for it.
type ItemSnapshot struct {
	ID       int64
	Snapshot popularity.MetricSnapshot
}

// MetricRepo reads raw counters and metadata for scoring. Writes happen
// elsewhere (CounterRepo, the review/reaction surfaces); within one recompute
// pass a snapshot is read once and never refreshed.
type MetricRepo interface {
	SnapshotFor(ctx context.Context, tx *gorm.DB, ref domain.Ref) (popularity.MetricSnapshot, error)
	EligibleSnapshots(ctx context.Context, tx *gorm.DB, class domain.Class) ([]ItemSnapshot, error)
}

type metricRepo struct {
	db  *gorm.DB
	log *logger.Logger
	el  Eligibility
}

func NewMetricRepo(db *gorm.DB, baseLog *logger.Logger, el Eligibility) MetricRepo {
	return &metricRepo{db: db, log: baseLog.With("repo", "MetricRepo"), el: el}
}

func (mr *metricRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return mr.db
}

type snapshotRow struct {
	ID            int64
	TotalViews    uint64
	RecentViews   uint64
	DailyViews    uint64
	AverageRating float64
	RatingCount   uint32
	LikeCount     uint32
	DislikeCount  uint32
	ContentLength uint32
	CreatedAt     time.Time
}

func (r snapshotRow) toSnapshot() popularity.MetricSnapshot {
	return popularity.MetricSnapshot{
		TotalViews:    r.TotalViews,
		RecentViews:   r.RecentViews,
		DailyViews:    r.DailyViews,
		AverageRating: r.AverageRating,
		RatingCount:   r.RatingCount,
		LikeCount:     r.LikeCount,
		DislikeCount:  r.DislikeCount,
		ContentLength: r.ContentLength,
		CreatedAt:     r.CreatedAt,
	}
}

func snapshotColumns(class domain.Class) string {
	cols := `id, total_views, recent_views, daily_views, average_rating,
		rating_count, like_count, dislike_count, created_at`
	if class == domain.ClassReview {
		return cols + `, LENGTH(content) AS content_length`
	}
	return cols + `, 0 AS content_length`
}

func (mr *metricRepo) SnapshotFor(ctx context.Context, tx *gorm.DB, ref domain.Ref) (popularity.MetricSnapshot, error) {
	conn := mr.conn(tx)
	table, err := tableFor(ref.Class)
	if err != nil {
		return popularity.MetricSnapshot{}, err
	}

	var rows []snapshotRow
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ? AND deleted_at IS NULL`, snapshotColumns(ref.Class), table)
	if err := conn.WithContext(ctx).Raw(q, ref.ID).Scan(&rows).Error; err != nil {
		return popularity.MetricSnapshot{}, fmt.Errorf("snapshot for %s: %w", ref, err)
	}
	if len(rows) == 0 {
		return popularity.MetricSnapshot{}, fmt.Errorf("snapshot for %s: %w", ref, ErrNotFound)
	}
	return rows[0].toSnapshot(), nil
}

func (mr *metricRepo) EligibleSnapshots(ctx context.Context, tx *gorm.DB, class domain.Class) ([]ItemSnapshot, error) {
	conn := mr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return nil, err
	}

	var rows []snapshotRow
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY id ASC`,
		snapshotColumns(class), table, eligibleWhere(class, mr.el))
	if err := conn.WithContext(ctx).Raw(q).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("eligible snapshots for %s: %w", class, err)
	}

	out := make([]ItemSnapshot, len(rows))
	for i, r := range rows {
		out[i] = ItemSnapshot{ID: r.ID, Snapshot: r.toSnapshot()}
	}
	return out, nil
}
