package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pagekeep/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// heavyFields is the part of an article too big for Redis. It lives in
// Badger under the article ID; everything else is Redis metadata.
type heavyFields struct {
	Content      string `json:"content"`
	OriginalHTML string `json:"original_html"`
}

// HybridStore combines Redis (metadata, recency list, status index) and
// Badger (article content and original HTML).
type HybridStore struct {
	rdb  *redis.Client
	db   *badger.DB
	stop chan struct{}
}

// NewHybridStore connects to Redis and opens the Badger directory.
func NewHybridStore(redisAddr string, badgerPath string) (*HybridStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	opts := badger.DefaultOptions(badgerPath)
	opts.Logger = nil // Silence default logger
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	s := &HybridStore{rdb: rdb, db: db, stop: make(chan struct{})}
	go s.valueLogGC()
	return s, nil
}

// valueLogGC reclaims Badger value-log space in the background.
func (s *HybridStore) valueLogGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			_ = s.db.RunValueLogGC(0.7)
		}
	}
}

// Close cleans up connections
func (s *HybridStore) Close() {
	close(s.stop)
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func metaKey(id uuid.UUID) string {
	return fmt.Sprintf("article:%s", id)
}

func statusKey(status model.ExtractionStatus) string {
	return fmt.Sprintf("idx:status:%s", status)
}

// Save writes metadata to Redis and heavy content to Badger. The status
// index sets are kept in sync on every save.
func (s *HybridStore) Save(ctx context.Context, article *model.Article) error {
	meta := *article
	meta.Content = ""
	meta.OriginalHTML = ""

	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	key := metaKey(article.ID)
	idStr := article.ID.String()
	isNew, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, key, data, 0)

	// A brand-new article joins the recency list once.
	if isNew == 0 {
		pipe.LPush(ctx, "list:recent", idStr)
		pipe.LTrim(ctx, "list:recent", 0, 199) // Keep only last 200 items
	}

	// Membership in exactly one status set.
	for _, st := range model.Statuses {
		if st == article.ExtractionStatus {
			pipe.SAdd(ctx, statusKey(st), idStr)
		} else {
			pipe.SRem(ctx, statusKey(st), idStr)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	// Heavy fields (extracted HTML + original page) go to Badger.
	if article.Content != "" || article.OriginalHTML != "" {
		blob, err := json.Marshal(heavyFields{
			Content:      article.Content,
			OriginalHTML: article.OriginalHTML,
		})
		if err != nil {
			return err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(idStr), blob)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Get combines data: metadata from Redis + content from Badger.
func (s *HybridStore) Get(ctx context.Context, id uuid.UUID) (*model.Article, error) {
	val, err := s.rdb.Get(ctx, metaKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	var article model.Article
	if err := json.Unmarshal(val, &article); err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id.String()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var heavy heavyFields
			if err := json.Unmarshal(val, &heavy); err != nil {
				return err
			}
			article.Content = heavy.Content
			article.OriginalHTML = heavy.OriginalHTML
			return nil
		})
	})
	if err != nil && err != badger.ErrKeyNotFound {
		return nil, err
	}

	return &article, nil
}

// List fetches the most recent articles, metadata only.
func (s *HybridStore) List(ctx context.Context, limit int) ([]model.Article, error) {
	ids, err := s.rdb.LRange(ctx, "list:recent", 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return s.fetchMeta(ctx, ids)
}

// ListByStatus returns every article currently in the given status,
// metadata only. The reaper scans the "extracting" set through this.
func (s *HybridStore) ListByStatus(ctx context.Context, status model.ExtractionStatus) ([]model.Article, error) {
	ids, err := s.rdb.SMembers(ctx, statusKey(status)).Result()
	if err != nil {
		return nil, err
	}
	return s.fetchMeta(ctx, ids)
}

func (s *HybridStore) fetchMeta(ctx context.Context, ids []string) ([]model.Article, error) {
	var articles []model.Article
	for _, idStr := range ids {
		val, err := s.rdb.Get(ctx, fmt.Sprintf("article:%s", idStr)).Bytes()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return nil, err
		}

		var a model.Article
		if err := json.Unmarshal(val, &a); err == nil {
			articles = append(articles, a)
		}
	}
	return articles, nil
}
