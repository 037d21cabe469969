package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Review struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID uuid.UUID `gorm:"type:uuid;not null;index" json:"author_id"`

	// Target of the review: an anime or a manga.
	TargetClass Class `gorm:"column:target_class;not null;index:idx_reviews_target" json:"target_class"`
	TargetID    int64 `gorm:"column:target_id;not null;index:idx_reviews_target" json:"target_id"`

	Title   string `gorm:"column:title" json:"title"`
	Content string `gorm:"column:content;type:text;not null" json:"content"`

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

	// Set once the author has been notified that the review went popular,
	// so the notification job does not fire twice for the same review.
	PopularNotifiedAt *time.Time `gorm:"column:popular_notified_at" json:"popular_notified_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Review) TableName() string { return "reviews" }

type ReviewReaction struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReviewID int64     `gorm:"column:review_id;not null;index" json:"review_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind     string    `gorm:"column:kind;not null" json:"kind"` // "like" or "dislike"

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ReviewReaction) TableName() string { return "review_reactions" }
