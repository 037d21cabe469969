package popularity

import (
	"fmt"
	"math"
	"time"

	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
)

// Weights control how much each signal contributes to the final score. Each
// sub-score is normalized to its own range before weighting; the weighted sum
// is scaled to 0-10.
type Weights struct {
	ViewVolume     float64 `yaml:"view_volume"`
	RecentViews    float64 `yaml:"recent_views"`
	Growth         float64 `yaml:"growth"`
	Rating         float64 `yaml:"rating"`
	Length         float64 `yaml:"length"`
	Recency        float64 `yaml:"recency"`
	Engagement     float64 `yaml:"engagement"`
	DislikePenalty float64 `yaml:"dislike_penalty"`
}

func DefaultWeights() Weights {
	return Weights{
		ViewVolume:     0.25,
		RecentViews:    0.20,
		Growth:         0.10,
		Rating:         0.15,
		Length:         0.05,
		Recency:        0.08,
		Engagement:     0.10,
		DislikePenalty: 0.05,
	}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"view_volume":     w.ViewVolume,
		"recent_views":    w.RecentViews,
		"growth":          w.Growth,
		"rating":          w.Rating,
		"length":          w.Length,
		"recency":         w.Recency,
		"engagement":      w.Engagement,
		"dislike_penalty": w.DislikePenalty,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s out of range [0,1]: %v", name, v)
		}
	}
	total := w.ViewVolume + w.RecentViews + w.Growth + w.Rating + w.Length + w.Recency + w.Engagement
	if total <= 0 {
		return fmt.Errorf("weights sum to %v, must be positive", total)
	}
	if total > 1.0+1e-9 {
		return fmt.Errorf("weights sum to %v, must not exceed 1.0", total)
	}
	return nil
}

// Breakdown exposes each sub-score before weighting, mostly for the preview
// endpoint and for tests.
type Breakdown struct {
	ViewVolume   float64 `json:"view_volume"`
	RecentViews  float64 `json:"recent_views"`
	Growth       float64 `json:"growth"`
	Rating       float64 `json:"rating"`
	Length       float64 `json:"length"`
	Recency      float64 `json:"recency"`
	Engagement   float64 `json:"engagement"`
	DislikeRatio float64 `json:"dislike_ratio"`
	Final        float64 `json:"final"`
}

// Scorer maps metric snapshots to a 0-10 popularity score. Deterministic for
// a fixed clock, no I/O.
type Scorer struct {
	w   Weights
	now func() time.Time
}

func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{w: w, now: time.Now}, nil
}

// NewScorerAt fixes the clock used for recency, for reproducible scoring.
func NewScorerAt(w Weights, now func() time.Time) (*Scorer, error) {
	s, err := NewScorer(w)
	if err != nil {
		return nil, err
	}
	s.now = now
	return s, nil
}

func (s *Scorer) Weights() Weights { return s.w }

// Score computes the popularity score for one item. The length factor only
// applies to reviews; the engagement factor and dislike penalty only apply to
// catalog items.
func (s *Scorer) Score(class catalog.Class, m MetricSnapshot) float64 {
	return s.ScoreWithBreakdown(class, m).Final
}

func (s *Scorer) ScoreWithBreakdown(class catalog.Class, m MetricSnapshot) Breakdown {
	b := Breakdown{
		ViewVolume:  viewVolumeScore(m.TotalViews),
		RecentViews: recentViewScore(m.RecentViews),
		Growth:      growthScore(m.DailyViews, m.RecentViews),
		Rating:      clamp01(m.AverageRating / 10),
		Recency:     recencyScore(m.CreatedAt, s.now()),
	}
	if class == catalog.ClassReview {
		b.Length = lengthScore(m.ContentLength)
	} else {
		b.Engagement = engagementScore(m.LikeCount, m.DislikeCount)
		b.DislikeRatio = dislikeRatio(m.LikeCount, m.DislikeCount)
	}

	raw := b.ViewVolume*s.w.ViewVolume +
		b.RecentViews*s.w.RecentViews +
		b.Growth*s.w.Growth +
		b.Rating*s.w.Rating +
		b.Length*s.w.Length +
		b.Recency*s.w.Recency +
		b.Engagement*s.w.Engagement -
		b.DislikeRatio*s.w.DislikePenalty

	b.Final = clamp(raw*10, 0, 10)
	return b
}

// viewVolumeScore compresses lifetime views logarithmically so one viral item
// cannot dominate the ranking.
func viewVolumeScore(total uint64) float64 {
	return clamp01(math.Log(float64(total)+1) / 10)
}

func recentViewScore(recent uint64) float64 {
	return clamp01(math.Log(float64(recent)+1) / 8)
}

// growthScore projects the daily view count over the trailing week and caps
// the ratio at 2x so a zero-to-small spike stays bounded.
func growthScore(daily, recent uint64) float64 {
	if recent == 0 {
		return 0
	}
	return math.Min(float64(daily)*7/float64(recent), 2)
}

// lengthScore encodes the sweet-spot belief about review length: very short
// and very long reviews read worse than mid-length ones.
func lengthScore(chars uint32) float64 {
	switch {
	case chars == 0:
		return 0
	case chars < 100:
		return 0.2
	case chars < 300:
		return 0.5
	case chars < 600:
		return 0.7
	case chars < 2000:
		return 1.0
	case chars < 4000:
		return 0.9
	case chars < 8000:
		return 0.5
	default:
		return 0.3
	}
}

func recencyScore(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	days := now.Sub(createdAt).Hours() / 24
	switch {
	case days < 1:
		return 1.0
	case days < 7:
		return 0.9
	case days < 30:
		return 0.7
	case days < 90:
		return 0.5
	case days < 180:
		return 0.3
	case days < 365:
		return 0.2
	default:
		return 0.1
	}
}

func engagementScore(likes, dislikes uint32) float64 {
	total := likes + dislikes
	if total == 0 {
		return 0
	}
	return float64(likes) / float64(total)
}

func dislikeRatio(likes, dislikes uint32) float64 {
	total := likes + dislikes
	if total == 0 {
		return 0
	}
	return float64(dislikes) / float64(total)
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
