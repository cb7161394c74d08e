package reaper

import (
	"context"
	"testing"
	"time"

	"pagekeep/internal/model"
	"pagekeep/internal/queue"
	"pagekeep/internal/store"
	"pagekeep/internal/tracker"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store  store.Store
	reaper *Reaper
	queue  *queue.Queue
	jobs   chan queue.Payload
	hold   chan struct{}
	cancel context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	st, err := store.NewHybridStore(mr.Addr(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(st.Close)

	logger := zap.NewNop()
	jobs := make(chan queue.Payload, 16)
	hold := make(chan struct{})
	close(hold) // handlers return immediately unless a test re-arms this

	f := &fixture{jobs: jobs, hold: hold}
	q := queue.New(queue.Config{RetryDelay: time.Millisecond}, logger)
	q.Register(queue.KindExtractArticle, func(ctx context.Context, job *queue.Job) error {
		jobs <- job.Payload
		select {
		case <-f.hold:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)

	tr := tracker.New(st, logger)
	f.store = st
	f.queue = q
	f.reaper = New(st, tr, q, 10*time.Minute, logger)
	f.cancel = cancel
	return f
}

func (f *fixture) seed(t *testing.T, status model.ExtractionStatus, age time.Duration) model.Article {
	t.Helper()
	article := model.NewArticle("https://example.com/stuck", "user-1")
	article.ExtractionStatus = status
	article.UpdatedAt = time.Now().Add(-age)
	require.NoError(t, f.store.Save(context.Background(), &article))
	return article
}

// TestCleanupStuck_RecoversStaleExtraction: an article stuck in
// "extracting" for 11 minutes is failed with a timeout message and
// exactly one new job is enqueued for its URL.
func TestCleanupStuck_RecoversStaleExtraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	article := f.seed(t, model.StatusExtracting, 11*time.Minute)

	n, err := f.reaper.CleanupStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Get(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.ExtractionStatus)
	assert.Contains(t, got.ExtractionError, "timed out")

	select {
	case payload := <-f.jobs:
		assert.Equal(t, article.ID, payload.ArticleID)
		assert.Equal(t, article.URL, payload.URL)
	case <-time.After(time.Second):
		t.Fatal("no job was enqueued for the stuck article")
	}

	// Exactly one job, not a burst.
	select {
	case <-f.jobs:
		t.Fatal("more than one job enqueued")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestCleanupStuck_LeavesFreshExtractionsAlone: an article that entered
// "extracting" recently is someone's live job, not a stuck one.
func TestCleanupStuck_LeavesFreshExtractionsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	article := f.seed(t, model.StatusExtracting, time.Minute)

	n, err := f.reaper.CleanupStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.store.Get(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtracting, got.ExtractionStatus)
}

// TestCleanupStuck_SkipsInFlightExtraction: a stale "extracting" record
// whose job is still held by a live worker in this process belongs to
// that worker; the sweep must not fail it out from under them.
func TestCleanupStuck_SkipsInFlightExtraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	article := f.seed(t, model.StatusExtracting, 11*time.Minute)

	// Re-arm the hold so the worker stays inside the handler.
	f.hold = make(chan struct{})
	require.NoError(t, f.queue.Enqueue(&queue.Job{
		Kind: queue.KindExtractArticle,
		Payload: queue.Payload{
			ArticleID: article.ID,
			URL:       article.URL,
			UserID:    article.UserID,
		},
	}))
	select {
	case <-f.jobs:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the job")
	}

	n, err := f.reaper.CleanupStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "in-flight articles must not be rescheduled")

	got, err := f.store.Get(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtracting, got.ExtractionStatus,
		"the owning worker keeps control of the status")

	close(f.hold)
}

func TestCleanupStuck_IgnoresOtherStatuses(t *testing.T) {
	f := newFixture(t)

	f.seed(t, model.StatusCompleted, time.Hour)
	f.seed(t, model.StatusFailed, time.Hour)

	n, err := f.reaper.CleanupStuck(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetryExtraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	article := f.seed(t, model.StatusFailed, time.Hour)
	require.NoError(t, f.reaper.RetryExtraction(ctx, article.ID))

	select {
	case payload := <-f.jobs:
		assert.Equal(t, article.URL, payload.URL)
	case <-time.After(time.Second):
		t.Fatal("retry did not enqueue a job")
	}
}

func TestRetryExtraction_UnknownArticle(t *testing.T) {
	f := newFixture(t)

	ghost := model.NewArticle("https://example.com/ghost", "")
	err := f.reaper.RetryExtraction(context.Background(), ghost.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
