package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Kind string

// KindExtractArticle is currently the only job kind.
const KindExtractArticle Kind = "extract-article"

var (
	ErrNotStarted = errors.New("queue has not been started")
	ErrFull       = errors.New("queue buffer is full")
	// ErrInFlight means a job for the same article is already queued or
	// running. Retries for an in-flight article are rejected, not stacked.
	ErrInFlight = errors.New("extraction already in flight for article")
)

// Payload identifies the work a job carries. Immutable once enqueued.
type Payload struct {
	ArticleID uuid.UUID
	URL       string
	UserID    string
}

// Job is a unit of queued work. It lives only inside the queue; the
// durable record of what happened to it is the article's status.
type Job struct {
	ID          uuid.UUID
	Kind        Kind
	Payload     Payload
	Attempts    int
	MaxAttempts int
	LastError   string
}

// Handler runs one attempt of a job. Returning an error triggers a retry
// until MaxAttempts is exhausted.
type Handler func(ctx context.Context, job *Job) error

type Config struct {
	Concurrency int           // worker goroutines, default 2
	Buffer      int           // channel capacity, default 256
	MaxAttempts int           // per-job attempt ceiling, default 3
	RetryDelay  time.Duration // fixed delay between attempts, default 5s
}

// Queue is a fixed-size worker pool over an in-memory FIFO. Nothing here
// survives a restart; the reaper recovers from that via persisted status.
type Queue struct {
	cfg      Config
	logger   *zap.Logger
	handlers map[Kind]Handler

	jobs chan *Job

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	started  bool

	wg sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Queue{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[Kind]Handler),
		jobs:     make(chan *Job, cfg.Buffer),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (q *Queue) Register(kind Kind, h Handler) {
	q.handlers[kind] = h
}

// Start launches the worker pool. Workers drain until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.runWorker(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Enqueue accepts a job into the queue. It returns as soon as the job is
// accepted, not when it completes. Fails if the queue was never started,
// if the buffer is full, or if the article already has a job in flight.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return ErrNotStarted
	}
	if _, busy := q.inflight[job.Payload.ArticleID]; busy {
		q.mu.Unlock()
		return ErrInFlight
	}
	q.inflight[job.Payload.ArticleID] = struct{}{}
	q.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}

	select {
	case q.jobs <- job:
		q.logger.Info("job enqueued",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.String("article_id", job.Payload.ArticleID.String()))
		return nil
	default:
		q.release(job.Payload.ArticleID)
		return ErrFull
	}
}

// IsInFlight reports whether a job for the article is queued or running.
func (q *Queue) IsInFlight(articleID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, busy := q.inflight[articleID]
	return busy
}

func (q *Queue) release(articleID uuid.UUID) {
	q.mu.Lock()
	delete(q.inflight, articleID)
	q.mu.Unlock()
}

func (q *Queue) runWorker(ctx context.Context, n int) {
	defer q.wg.Done()
	logger := q.logger.With(zap.Int("worker", n))
	logger.Info("queue worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("queue worker shutting down")
			return
		case job := <-q.jobs:
			q.runJob(ctx, job)
		}
	}
}

// runJob drives one job through its attempts. Jobs are dropped after the
// last failed attempt; the handler is responsible for leaving the article
// in a terminal state by then.
func (q *Queue) runJob(ctx context.Context, job *Job) {
	defer q.release(job.Payload.ArticleID)

	logger := q.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)))

	handler, ok := q.handlers[job.Kind]
	if !ok {
		logger.Error("no handler registered for kind")
		return
	}

	for {
		job.Attempts++
		err := handler(ctx, job)
		if err == nil {
			logger.Info("task_finish", zap.Int("attempts", job.Attempts))
			return
		}

		job.LastError = err.Error()
		if job.Attempts >= job.MaxAttempts {
			logger.Error("task_failed",
				zap.Int("attempts", job.Attempts),
				zap.Error(err))
			return
		}

		logger.Warn("attempt failed, retrying",
			zap.Int("attempt", job.Attempts),
			zap.Duration("delay", q.cfg.RetryDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(q.cfg.RetryDelay):
		}
	}
}
