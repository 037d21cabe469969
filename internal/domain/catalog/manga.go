package catalog

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Manga struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Title    string `gorm:"column:title;not null;index" json:"title"`
	Synopsis string `gorm:"column:synopsis;type:text" json:"synopsis"`
	Author   string `gorm:"column:author;index" json:"author"`
	Chapters int    `gorm:"column:chapters;not null;default:0" json:"chapters"`

	TotalViews  uint64 `gorm:"column:total_views;not null;default:0" json:"total_views"`
	RecentViews uint64 `gorm:"column:recent_views;not null;default:0" json:"recent_views"`
	DailyViews  uint64 `gorm:"column:daily_views;not null;default:0" json:"daily_views"`

	AverageRating float64 `gorm:"column:average_rating;not null;default:0" json:"average_rating"`
	RatingCount   uint32  `gorm:"column:rating_count;not null;default:0" json:"rating_count"`
	LikeCount     uint32  `gorm:"column:like_count;not null;default:0" json:"like_count"`
	DislikeCount  uint32  `gorm:"column:dislike_count;not null;default:0" json:"dislike_count"`

	PopularityScore *float64 `gorm:"column:popularity_score" json:"popularity_score,omitempty"`
	Rank            uint32   `gorm:"column:rank;not null;default:0;index" json:"rank"`
	PreviousRank    uint32   `gorm:"column:previous_rank;not null;default:0" json:"previous_rank"`
	RankVariation   string   `gorm:"column:rank_variation;default:''" json:"rank_variation"`

	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Manga) TableName() string { return "mangas" }
