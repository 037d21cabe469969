package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	domain "github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
)

// RelationRepo reads the relation graph. The engine never writes edges.
type RelationRepo interface {
	// Related returns every item one hop away from ref, following edges in
	// both directions. Rows with an unparseable class are logged and skipped
	// rather than failing the whole read.
	Related(ctx context.Context, tx *gorm.DB, ref domain.Ref) ([]domain.Ref, error)
}

type relationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationRepo(db *gorm.DB, baseLog *logger.Logger) RelationRepo {
	return &relationRepo{db: db, log: baseLog.With("repo", "RelationRepo")}
}

func (rr *relationRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return rr.db
}

func (rr *relationRepo) Related(ctx context.Context, tx *gorm.DB, ref domain.Ref) ([]domain.Ref, error) {
	conn := rr.conn(tx)

	var rows []struct {
		Class string
		ID    int64
	}
	q := `
		SELECT target_class AS class, target_id AS id
		FROM relation_edges
		WHERE source_class = ? AND source_id = ?
		UNION
		SELECT source_class AS class, source_id AS id
		FROM relation_edges
		WHERE target_class = ? AND target_id = ?`
	if err := conn.WithContext(ctx).Raw(q, ref.Class, ref.ID, ref.Class, ref.ID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("related items for %s: %w", ref, err)
	}

	out := make([]domain.Ref, 0, len(rows))
	for _, row := range rows {
		class, err := domain.ParseClass(row.Class)
		if err != nil {
			rr.log.Warn("skipping malformed relation edge", "item", ref.String(), "neighbor_class", row.Class, "neighbor_id", row.ID)
			continue
		}
		neighbor := domain.Ref{Class: class, ID: row.ID}
		if neighbor == ref {
			continue
		}
		out = append(out, neighbor)
	}
	return out, nil
}
