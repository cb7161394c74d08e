package worker

import (
	"context"

	"pagekeep/internal/extract"
	"pagekeep/internal/queue"
	"pagekeep/internal/tracker"

	"go.uber.org/zap"
)

// Extractor defines the interface for turning a URL into an article.
// This allows us to mock the download-and-extract step in tests.
type Extractor interface {
	ExtractFromURL(ctx context.Context, url string) (*extract.Article, error)
}

// Worker runs one extraction job: mark extracting, extract, mark
// completed or failed. It is the queue's handler for extract-article.
type Worker struct {
	tracker   *tracker.Tracker
	extractor Extractor
	logger    *zap.Logger
}

func New(tr *tracker.Tracker, ex Extractor, logger *zap.Logger) *Worker {
	return &Worker{tracker: tr, extractor: ex, logger: logger}
}

// HandleExtract is the handler for queue.KindExtractArticle. Returning an
// error lets the queue retry; on the final attempt the failure is written
// to the article first, since the queue drops exhausted jobs without
// recording anything itself.
func (w *Worker) HandleExtract(ctx context.Context, job *queue.Job) error {
	articleID := job.Payload.ArticleID
	logger := w.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("article_id", articleID.String()),
		zap.String("url", job.Payload.URL))
	logger.Info("processing extraction", zap.Int("attempt", job.Attempts))

	if err := w.tracker.MarkExtracting(ctx, articleID); err != nil {
		logger.Error("failed to mark extracting", zap.Error(err))
		if job.Attempts >= job.MaxAttempts {
			if ferr := w.tracker.MarkFailed(ctx, articleID, job.Payload.URL, err.Error()); ferr != nil {
				logger.Error("failed to record terminal failure", zap.Error(ferr))
			}
		}
		return err
	}

	result, err := w.extractor.ExtractFromURL(ctx, job.Payload.URL)
	if err != nil {
		logger.Error("extraction failed", zap.Error(err))
		if job.Attempts >= job.MaxAttempts {
			// Last attempt: leave the article in a terminal, inspectable state.
			if ferr := w.tracker.MarkFailed(ctx, articleID, job.Payload.URL, err.Error()); ferr != nil {
				logger.Error("failed to record terminal failure", zap.Error(ferr))
			}
		}
		return err
	}

	if err := w.tracker.MarkCompleted(ctx, articleID, result); err != nil {
		logger.Error("failed to save result", zap.Error(err))
		if job.Attempts >= job.MaxAttempts {
			if ferr := w.tracker.MarkFailed(ctx, articleID, job.Payload.URL, err.Error()); ferr != nil {
				logger.Error("failed to record terminal failure", zap.Error(ferr))
			}
		}
		return err
	}

	logger.Info("extraction complete", zap.String("title", result.Title))
	return nil
}
