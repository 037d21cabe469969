package popularity

import "time"

// MetricSnapshot is the raw signal set for one catalog item at the moment a
// scoring pass reads it. It is never written back; scores are derived from it.
type MetricSnapshot struct {
	TotalViews  uint64 `json:"total_views"`
	RecentViews uint64 `json:"recent_views"` // trailing 7-day window
	DailyViews  uint64 `json:"daily_views"`

	AverageRating float64 `json:"average_rating"` // 0-10
	RatingCount   uint32  `json:"rating_count"`
	LikeCount     uint32  `json:"like_count"`
	DislikeCount  uint32  `json:"dislike_count"`

	ContentLength uint32    `json:"content_length"` // characters, reviews only
	CreatedAt     time.Time `json:"created_at"`
}

// ScoredItem pairs an item id with its computed popularity score.
type ScoredItem struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// RankRecord is one row of a rank table after a recompute pass.
type RankRecord struct {
	ID           int64  `json:"id"`
	Rank         uint32 `json:"rank"`
	PreviousRank uint32 `json:"previous_rank"`
	Variation    string `json:"variation"`
}
