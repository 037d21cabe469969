package services

import (
	"context"

	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
)

// Notifier is the outbound boundary for "your review is getting popular"
// messages. Delivery (email, push) lives behind it; the engine only decides
// who qualifies.
type Notifier interface {
	NotifyPopularReview(ctx context.Context, review *catalog.Review, score float64) error
}

type logNotifier struct {
	log *logger.Logger
}

// NewLogNotifier records notifications in the process log. Stands in until a
// delivery channel is wired.
func NewLogNotifier(baseLog *logger.Logger) Notifier {
	return &logNotifier{log: baseLog.With("service", "LogNotifier")}
}

func (n *logNotifier) NotifyPopularReview(_ context.Context, review *catalog.Review, score float64) error {
	n.log.Info("review crossed the popularity threshold",
		"review_id", review.ID,
		"author_id", review.AuthorID,
		"target", catalog.Ref{Class: review.TargetClass, ID: review.TargetID}.String(),
		"score", score,
	)
	return nil
}
