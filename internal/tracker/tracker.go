package tracker

import (
	"context"
	"fmt"
	"html"
	"time"

	"pagekeep/internal/extract"
	"pagekeep/internal/model"
	"pagekeep/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker is the only writer of an article's extraction status. The
// worker calls its three methods sequentially around one job execution:
// MarkExtracting before the extractor runs, then exactly one of
// MarkCompleted or MarkFailed.
type Tracker struct {
	store  store.Store
	logger *zap.Logger
}

func New(st store.Store, logger *zap.Logger) *Tracker {
	return &Tracker{store: st, logger: logger}
}

// MarkExtracting flips the article to "extracting", clears any prior
// error and bumps UpdatedAt so the reaper's staleness clock restarts.
func (t *Tracker) MarkExtracting(ctx context.Context, id uuid.UUID) error {
	article, err := t.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load article %s: %w", id, err)
	}

	article.ExtractionStatus = model.StatusExtracting
	article.ExtractionError = ""
	article.UpdatedAt = time.Now()

	if err := t.store.Save(ctx, article); err != nil {
		return fmt.Errorf("save article %s: %w", id, err)
	}
	t.logger.Info("extraction started", zap.String("article_id", id.String()))
	return nil
}

// MarkCompleted flattens the extraction result onto the article and sets
// status "completed" in a single save.
func (t *Tracker) MarkCompleted(ctx context.Context, id uuid.UUID, result *extract.Article) error {
	article, err := t.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load article %s: %w", id, err)
	}

	article.Title = result.Title
	article.Author = result.Author
	article.Content = result.Content
	article.Excerpt = result.Excerpt
	article.WordCount = result.WordCount
	article.ReadingTime = result.ReadingTime
	article.PublishedAt = result.PublishedAt
	article.Favicon = result.Favicon
	article.Image = result.Image
	article.OriginalHTML = result.OriginalHTML
	article.ExtractionStatus = model.StatusCompleted
	article.ExtractionError = ""
	article.UpdatedAt = time.Now()

	if err := t.store.Save(ctx, article); err != nil {
		return fmt.Errorf("save article %s: %w", id, err)
	}
	t.logger.Info("extraction completed",
		zap.String("article_id", id.String()),
		zap.String("title", article.Title),
		zap.Int("word_count", article.WordCount))
	return nil
}

// MarkFailed records the terminal failure and replaces title and content
// with a visible placeholder embedding the URL and error, so the failure
// shows up in the reader without digging through logs.
func (t *Tracker) MarkFailed(ctx context.Context, id uuid.UUID, url, errMsg string) error {
	article, err := t.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load article %s: %w", id, err)
	}

	article.ExtractionStatus = model.StatusFailed
	article.ExtractionError = errMsg
	article.Title = "Failed to extract article"
	article.Content = fmt.Sprintf(
		`<div class="extraction-failed"><p>Failed to extract content from <a href="%s">%s</a>.</p><p>Error: %s</p></div>`,
		html.EscapeString(url), html.EscapeString(url), html.EscapeString(errMsg))
	article.UpdatedAt = time.Now()

	if err := t.store.Save(ctx, article); err != nil {
		return fmt.Errorf("save article %s: %w", id, err)
	}
	t.logger.Warn("extraction failed",
		zap.String("article_id", id.String()),
		zap.String("url", url),
		zap.String("error", errMsg))
	return nil
}
