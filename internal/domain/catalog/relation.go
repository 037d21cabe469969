package catalog

import "time"

// RelationEdge links two catalog items (adaptation, sequel, the article a
// review was written about, and so on). The popularity engine only reads
// these rows; they are written by the catalog editing surface.
type RelationEdge struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	SourceClass Class `gorm:"column:source_class;not null;index:idx_relation_source" json:"source_class"`
	SourceID    int64 `gorm:"column:source_id;not null;index:idx_relation_source" json:"source_id"`
	TargetClass Class `gorm:"column:target_class;not null;index:idx_relation_target" json:"target_class"`
	TargetID    int64 `gorm:"column:target_id;not null;index:idx_relation_target" json:"target_id"`

	RelationClass string `gorm:"column:relation_class;not null" json:"relation_class"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (RelationEdge) TableName() string { return "relation_edges" }
