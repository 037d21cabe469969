package catalog

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	domain "github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
)

// Eligibility is the minimum-signal bar an item must clear to receive a rank.
// Items below it are excluded before scoring so the rank set stays dense over
// items with real signal.
type Eligibility struct {
	MinRatingCount int // anime and manga
}

func DefaultEligibility() Eligibility {
	return Eligibility{MinRatingCount: 3}
}

type RankTableStats struct {
	Eligible     int64   `json:"eligible"`
	Scored       int64   `json:"scored"`
	AverageScore float64 `json:"average_score"`
}

// RankRepo owns the rank columns of the three catalog tables. The recompute
// methods are set-based: score, window-rank and variation are evaluated by
// Postgres over the whole eligible set in a single statement, which is what
// keeps a full pass over ~10k rows inside the batch window.
type RankRepo interface {
	// CurrentRanks reads the rank of every eligible item without writing
	// anything. Used by the dry-run preview.
	CurrentRanks(ctx context.Context, tx *gorm.DB, class domain.Class) (map[int64]uint32, error)

	// SnapshotPreviousRanks persists the current rank of every eligible item
	// into previous_rank and returns it keyed by item id. Runs before any
	// recompute so variation is always computed against an explicit snapshot.
	SnapshotPreviousRanks(ctx context.Context, tx *gorm.DB, class domain.Class) (map[int64]uint32, error)

	// RecomputeAll rescores and reranks the full eligible population in one
	// statement. Returns the number of rows written.
	RecomputeAll(ctx context.Context, tx *gorm.DB, class domain.Class) (int64, error)

	// RecomputeActiveScores rescores only items with view activity today,
	// leaving other stored scores in place. Cheap enough for a frequent tick.
	RecomputeActiveScores(ctx context.Context, tx *gorm.DB, class domain.Class) (int64, error)

	// RankFromStoredScores reranks the eligible set from stored scores
	// without re-evaluating the score expression.
	RankFromStoredScores(ctx context.Context, tx *gorm.DB, class domain.Class) (int64, error)

	// ClearIneligible unranks items that dropped below the eligibility bar.
	ClearIneligible(ctx context.Context, tx *gorm.DB, class domain.Class) (int64, error)

	TopByScore(ctx context.Context, tx *gorm.DB, class domain.Class, limit int) ([]popularity.ScoredItem, error)
	Stats(ctx context.Context, tx *gorm.DB, class domain.Class) (RankTableStats, error)
}

type rankRepo struct {
	db  *gorm.DB
	log *logger.Logger
	w   popularity.Weights
	el  Eligibility
}

// NewRankRepo builds the rank repo. The weights passed here must be the same
// ones the Go scorer runs with: the SQL score expression is generated from
// them so both paths agree to the digit.
func NewRankRepo(db *gorm.DB, baseLog *logger.Logger, w popularity.Weights, el Eligibility) RankRepo {
	return &rankRepo{
		db:  db,
		log: baseLog.With("repo", "RankRepo"),
		w:   w,
		el:  el,
	}
}

func (rr *rankRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return rr.db
}

func tableFor(class domain.Class) (string, error) {
	switch class {
	case domain.ClassAnime:
		return domain.Anime{}.TableName(), nil
	case domain.ClassManga:
		return domain.Manga{}.TableName(), nil
	case domain.ClassReview:
		return domain.Review{}.TableName(), nil
	}
	return "", fmt.Errorf("unknown content class %q", class)
}

func eligibleWhere(class domain.Class, el Eligibility) string {
	if class == domain.ClassReview {
		return "deleted_at IS NULL AND LENGTH(content) > 0 AND total_views > 0"
	}
	return fmt.Sprintf("deleted_at IS NULL AND rating_count >= %d", el.MinRatingCount)
}

func (rr *rankRepo) eligibleWhere(class domain.Class) string {
	return eligibleWhere(class, rr.el)
}

// scoreExpr renders the popularity formula as one SQL expression over the
// row's own columns. Mirrors popularity.Scorer exactly; every denominator is
// guarded the same way.
func (rr *rankRepo) scoreExpr(class domain.Class) string {
	recency := `(CASE
		WHEN EXTRACT(EPOCH FROM (NOW() - created_at)) / 86400.0 < 1 THEN 1.0
		WHEN EXTRACT(EPOCH FROM (NOW() - created_at)) / 86400.0 < 7 THEN 0.9
		WHEN EXTRACT(EPOCH FROM (NOW() - created_at)) / 86400.0 < 30 THEN 0.7
		WHEN EXTRACT(EPOCH FROM (NOW() - created_at)) / 86400.0 < 90 THEN 0.5
		WHEN EXTRACT(EPOCH FROM (NOW() - created_at)) / 86400.0 < 180 THEN 0.3
		WHEN EXTRACT(EPOCH FROM (NOW() - created_at)) / 86400.0 < 365 THEN 0.2
		ELSE 0.1
	END)`

	terms := []string{
		fmt.Sprintf("%v * LEAST(1.0, LN(total_views + 1) / 10.0)", rr.w.ViewVolume),
		fmt.Sprintf("%v * LEAST(1.0, LN(recent_views + 1) / 8.0)", rr.w.RecentViews),
		fmt.Sprintf("%v * (CASE WHEN recent_views > 0 THEN LEAST(2.0, daily_views * 7.0 / recent_views) ELSE 0 END)", rr.w.Growth),
		fmt.Sprintf("%v * LEAST(1.0, average_rating / 10.0)", rr.w.Rating),
		fmt.Sprintf("%v * %s", rr.w.Recency, recency),
	}

	if class == domain.ClassReview {
		length := `(CASE
			WHEN LENGTH(content) = 0 THEN 0
			WHEN LENGTH(content) < 100 THEN 0.2
			WHEN LENGTH(content) < 300 THEN 0.5
			WHEN LENGTH(content) < 600 THEN 0.7
			WHEN LENGTH(content) < 2000 THEN 1.0
			WHEN LENGTH(content) < 4000 THEN 0.9
			WHEN LENGTH(content) < 8000 THEN 0.5
			ELSE 0.3
		END)`
		terms = append(terms, fmt.Sprintf("%v * %s", rr.w.Length, length))
	} else {
		terms = append(terms,
			fmt.Sprintf("%v * (CASE WHEN like_count + dislike_count > 0 THEN like_count::numeric / (like_count + dislike_count) ELSE 0 END)", rr.w.Engagement),
			fmt.Sprintf("- %v * (CASE WHEN like_count + dislike_count > 0 THEN dislike_count::numeric / (like_count + dislike_count) ELSE 0 END)", rr.w.DislikePenalty),
		)
	}

	return fmt.Sprintf("LEAST(10.0, GREATEST(0.0, (%s) * 10.0))", strings.Join(terms, "\n\t\t+ "))
}

const variationCase = `CASE
		WHEN t.previous_rank = 0 THEN 'NEW'
		WHEN t.previous_rank = ranked.new_rank THEN '='
		WHEN t.previous_rank > ranked.new_rank THEN '+' || (t.previous_rank - ranked.new_rank)::text
		ELSE '-' || (ranked.new_rank - t.previous_rank)::text
	END`

func (rr *rankRepo) CurrentRanks(ctx context.Context, tx *gorm.DB, class domain.Class) (map[int64]uint32, error) {
	conn := rr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID   int64
		Rank uint32
	}
	q := fmt.Sprintf(`SELECT id, "rank" FROM %s WHERE %s`, table, rr.eligibleWhere(class))
	if err := conn.WithContext(ctx).Raw(q).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("read current ranks for %s: %w", class, err)
	}

	ranks := make(map[int64]uint32, len(rows))
	for _, r := range rows {
		ranks[r.ID] = r.Rank
	}
	return ranks, nil
}

func (rr *rankRepo) SnapshotPreviousRanks(ctx context.Context, tx *gorm.DB, class domain.Class) (map[int64]uint32, error) {
	previous, err := rr.CurrentRanks(ctx, tx, class)
	if err != nil {
		return nil, err
	}

	conn := rr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`UPDATE %s SET previous_rank = "rank" WHERE %s`, table, rr.eligibleWhere(class))
	if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
		return nil, fmt.Errorf("snapshot previous ranks for %s: %w", class, err)
	}
	return previous, nil
}

func (rr *rankRepo) RecomputeAll(ctx context.Context, tx *gorm.DB, class domain.Class) (int64, error) {
	conn := rr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf(`
		WITH scored AS (
			SELECT id, %s AS new_score
			FROM %s
			WHERE %s
		), ranked AS (
			SELECT id, new_score,
			       ROW_NUMBER() OVER (ORDER BY new_score DESC, id ASC) AS new_rank
			FROM scored
		)
		UPDATE %s AS t SET
			popularity_score = ranked.new_score,
			"rank" = ranked.new_rank,
			rank_variation = %s
		FROM ranked
		WHERE t.id = ranked.id`,
		rr.scoreExpr(class), table, rr.eligibleWhere(class), table, variationCase)

	res := conn.WithContext(ctx).Exec(stmt)
	if res.Error != nil {
		return 0, fmt.Errorf("bulk recompute for %s: %w", class, res.Error)
	}
	return res.RowsAffected, nil
}

func (rr *rankRepo) RecomputeActiveScores(ctx context.Context, tx *gorm.DB, class domain.Class) (int64, error) {
	conn := rr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf(`UPDATE %s SET popularity_score = %s WHERE %s AND daily_views > 0`,
		table, rr.scoreExpr(class), rr.eligibleWhere(class))

	res := conn.WithContext(ctx).Exec(stmt)
	if res.Error != nil {
		return 0, fmt.Errorf("rescore active %s: %w", class, res.Error)
	}
	return res.RowsAffected, nil
}

func (rr *rankRepo) RankFromStoredScores(ctx context.Context, tx *gorm.DB, class domain.Class) (int64, error) {
	conn := rr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf(`
		WITH ranked AS (
			SELECT id,
			       ROW_NUMBER() OVER (ORDER BY COALESCE(popularity_score, 0) DESC, id ASC) AS new_rank
			FROM %s
			WHERE %s
		)
		UPDATE %s AS t SET
			"rank" = ranked.new_rank,
			rank_variation = %s
		FROM ranked
		WHERE t.id = ranked.id`,
		table, rr.eligibleWhere(class), table, variationCase)

	res := conn.WithContext(ctx).Exec(stmt)
	if res.Error != nil {
		return 0, fmt.Errorf("rerank %s from stored scores: %w", class, res.Error)
	}
	return res.RowsAffected, nil
}

func (rr *rankRepo) ClearIneligible(ctx context.Context, tx *gorm.DB, class domain.Class) (int64, error) {
	conn := rr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf(`
		UPDATE %s SET "rank" = 0, previous_rank = 0, rank_variation = '', popularity_score = NULL
		WHERE NOT (%s) AND ("rank" <> 0 OR popularity_score IS NOT NULL)`,
		table, rr.eligibleWhere(class))

	res := conn.WithContext(ctx).Exec(stmt)
	if res.Error != nil {
		return 0, fmt.Errorf("clear ineligible %s: %w", class, res.Error)
	}
	return res.RowsAffected, nil
}

func (rr *rankRepo) TopByScore(ctx context.Context, tx *gorm.DB, class domain.Class, limit int) ([]popularity.ScoredItem, error) {
	conn := rr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	var items []popularity.ScoredItem
	q := fmt.Sprintf(`
		SELECT id, popularity_score AS score
		FROM %s
		WHERE %s AND popularity_score IS NOT NULL
		ORDER BY popularity_score DESC, id ASC
		LIMIT %d`,
		table, rr.eligibleWhere(class), limit)
	if err := conn.WithContext(ctx).Raw(q).Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("top by score for %s: %w", class, err)
	}
	return items, nil
}

func (rr *rankRepo) Stats(ctx context.Context, tx *gorm.DB, class domain.Class) (RankTableStats, error) {
	conn := rr.conn(tx)
	table, err := tableFor(class)
	if err != nil {
		return RankTableStats{}, err
	}

	var stats RankTableStats
	q := fmt.Sprintf(`
		SELECT COUNT(*) AS eligible,
		       COUNT(popularity_score) AS scored,
		       COALESCE(AVG(popularity_score), 0) AS average_score
		FROM %s
		WHERE %s`,
		table, rr.eligibleWhere(class))
	if err := conn.WithContext(ctx).Raw(q).Scan(&stats).Error; err != nil {
		return RankTableStats{}, fmt.Errorf("rank stats for %s: %w", class, err)
	}
	return stats, nil
}
