package reaper

import (
	"context"
	"fmt"
	"time"

	"pagekeep/internal/model"
	"pagekeep/internal/queue"
	"pagekeep/internal/store"
	"pagekeep/internal/tracker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultStuckThreshold is how long an article may sit in "extracting"
// before it is presumed orphaned by a dead worker.
const DefaultStuckThreshold = 10 * time.Minute

// Reaper recovers articles whose worker died without recording a terminal
// state. The queue is in-memory, so a crash mid-extraction leaves the
// article in "extracting" forever unless something notices; persisted
// status is the source of truth for recovery, not the queue.
type Reaper struct {
	store     store.Store
	tracker   *tracker.Tracker
	queue     *queue.Queue
	threshold time.Duration
	logger    *zap.Logger
}

func New(st store.Store, tr *tracker.Tracker, q *queue.Queue, threshold time.Duration, logger *zap.Logger) *Reaper {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	return &Reaper{
		store:     st,
		tracker:   tr,
		queue:     q,
		threshold: threshold,
		logger:    logger,
	}
}

// CleanupStuck scans for articles stuck in "extracting" past the
// threshold, marks each failed with a timeout message, and enqueues a
// fresh extraction for it. Returns how many articles were rescheduled.
// Invoked once at startup and on demand from the admin endpoint.
func (r *Reaper) CleanupStuck(ctx context.Context) (int, error) {
	articles, err := r.store.ListByStatus(ctx, model.StatusExtracting)
	if err != nil {
		return 0, fmt.Errorf("list extracting articles: %w", err)
	}

	rescheduled := 0
	for _, a := range articles {
		if time.Since(a.UpdatedAt) <= r.threshold {
			continue
		}
		// A slow but live extraction in this process still owns the
		// article; failing it here would race the worker's own writes.
		if r.queue.IsInFlight(a.ID) {
			r.logger.Info("skipping in-flight extraction",
				zap.String("article_id", a.ID.String()))
			continue
		}

		r.logger.Warn("stuck extraction detected",
			zap.String("article_id", a.ID.String()),
			zap.String("url", a.URL),
			zap.Time("updated_at", a.UpdatedAt))

		msg := fmt.Sprintf("extraction timed out after %s", r.threshold)
		if err := r.tracker.MarkFailed(ctx, a.ID, a.URL, msg); err != nil {
			r.logger.Error("failed to mark stuck article", zap.Error(err))
			continue
		}

		if err := r.enqueue(a.ID, a.URL, a.UserID); err != nil {
			r.logger.Error("failed to reschedule stuck article",
				zap.String("article_id", a.ID.String()),
				zap.Error(err))
			continue
		}
		rescheduled++
	}

	if rescheduled > 0 {
		r.logger.Info("stuck extractions rescheduled", zap.Int("count", rescheduled))
	}
	return rescheduled, nil
}

// RetryExtraction re-reads the article's URL and enqueues a fresh job,
// independent of staleness. An article already in flight is rejected
// rather than double-run.
func (r *Reaper) RetryExtraction(ctx context.Context, id uuid.UUID) error {
	article, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return r.enqueue(article.ID, article.URL, article.UserID)
}

func (r *Reaper) enqueue(id uuid.UUID, url, userID string) error {
	return r.queue.Enqueue(&queue.Job{
		Kind: queue.KindExtractArticle,
		Payload: queue.Payload{
			ArticleID: id,
			URL:       url,
			UserID:    userID,
		},
	})
}
