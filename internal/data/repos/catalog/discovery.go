package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	domain "github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
)

// DiscoveryRepo finds same-class relatedness candidates for one item: shared
// creator (studio for anime, author for manga), overlapping metadata tags,
// and trigram title similarity. Explicit relation edges are RelationRepo's
// job; blending all signals is popularity.BlendRelated's.
type DiscoveryRepo interface {
	Candidates(ctx context.Context, tx *gorm.DB, ref domain.Ref, limit int) ([]popularity.RelatedSignal, error)
}

type discoveryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiscoveryRepo(db *gorm.DB, baseLog *logger.Logger) DiscoveryRepo {
	return &discoveryRepo{db: db, log: baseLog.With("repo", "DiscoveryRepo")}
}

func (dr *discoveryRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return dr.db
}

func creatorColumn(class domain.Class) (string, bool) {
	switch class {
	case domain.ClassAnime:
		return "studio", true
	case domain.ClassManga:
		return "author", true
	}
	return "", false
}

const titleSimilarityFloor = 0.3

func (dr *discoveryRepo) Candidates(ctx context.Context, tx *gorm.DB, ref domain.Ref, limit int) ([]popularity.RelatedSignal, error) {
	creator, ok := creatorColumn(ref.Class)
	if !ok {
		// Reviews relate through explicit edges only.
		return nil, nil
	}
	table, err := tableFor(ref.Class)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	conn := dr.conn(tx)
	var rows []struct {
		ID              int64
		SameCreator     bool
		SharedTags      int
		TitleSimilarity float64
	}
	// jsonb_exists_any is the function form of ?|; the operator would collide
	// with the bind placeholder.
	q := fmt.Sprintf(`
		SELECT c.id,
		       (s.%[1]s <> '' AND c.%[1]s = s.%[1]s) AS same_creator,
		       COALESCE((
		           SELECT COUNT(*)
		           FROM jsonb_array_elements_text(COALESCE(c.metadata->'tags', '[]'::jsonb)) AS ct(tag)
		           WHERE ct.tag IN (
		               SELECT st.tag
		               FROM jsonb_array_elements_text(COALESCE(s.metadata->'tags', '[]'::jsonb)) AS st(tag)
		           )
		       ), 0) AS shared_tags,
		       similarity(c.title, s.title) AS title_similarity
		FROM %[2]s AS c
		JOIN %[2]s AS s ON s.id = ?
		WHERE c.id <> s.id
		  AND c.deleted_at IS NULL
		  AND s.deleted_at IS NULL
		  AND (
		      (s.%[1]s <> '' AND c.%[1]s = s.%[1]s)
		      OR similarity(c.title, s.title) >= %[3]v
		      OR jsonb_exists_any(
		             COALESCE(c.metadata->'tags', '[]'::jsonb),
		             ARRAY(SELECT jsonb_array_elements_text(COALESCE(s.metadata->'tags', '[]'::jsonb))))
		  )
		ORDER BY similarity(c.title, s.title) DESC, c.id ASC
		LIMIT %[4]d`,
		creator, table, titleSimilarityFloor, limit)

	if err := conn.WithContext(ctx).Raw(q, ref.ID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("relatedness candidates for %s: %w", ref, err)
	}

	signals := make([]popularity.RelatedSignal, len(rows))
	for i, row := range rows {
		sim := row.TitleSimilarity
		if sim < titleSimilarityFloor {
			sim = 0
		}
		signals[i] = popularity.RelatedSignal{
			Ref:             domain.Ref{Class: ref.Class, ID: row.ID},
			SharedTags:      row.SharedTags,
			SameStudio:      row.SameCreator,
			TitleSimilarity: sim,
		}
	}
	return signals, nil
}
