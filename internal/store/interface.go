package store

import (
	"context"
	"errors"

	"pagekeep/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("article not found")
)

type Store interface {
	Save(ctx context.Context, article *model.Article) error
	Get(ctx context.Context, id uuid.UUID) (*model.Article, error)
	List(ctx context.Context, limit int) ([]model.Article, error)
	ListByStatus(ctx context.Context, status model.ExtractionStatus) ([]model.Article, error)
	Close()
}
