package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeImageCache records requested URLs and hands out predictable names.
type fakeImageCache struct {
	fail  bool
	calls []string
}

func (f *fakeImageCache) DownloadAndOptimize(ctx context.Context, remoteURL string) (string, error) {
	f.calls = append(f.calls, remoteURL)
	if f.fail {
		return "", fmt.Errorf("simulated image failure")
	}
	return fmt.Sprintf("cached-%d.jpg", len(f.calls)), nil
}

// stubReadability makes the readability outcome deterministic in tests.
type stubReadability struct {
	result *Result
	ok     bool
}

func (s stubReadability) Extract(html string, base *url.URL) (*Result, bool) {
	return s.result, s.ok
}

func newTestExtractor(images ImageCache, r Readability) *Extractor {
	e := New(images, zap.NewNop())
	if r != nil {
		e.readability = r
	}
	return e
}

const testPage = `<html><head>
	<meta property="og:title" content="Page Title">
	<meta property="og:image" content="/img/lead.png">
	<meta name="author" content="Page Author">
	<meta name="description" content="Page description">
	<meta property="article:published_time" content="2024-05-10T08:00:00Z">
	<link rel="icon" href="/favicon.ico">
</head><body><article><p>hello</p></article></body></html>`

func TestExtractFromHTML_ReadabilitySuccess(t *testing.T) {
	cache := &fakeImageCache{}
	words := strings.Repeat("word ", 400)
	e := newTestExtractor(cache, stubReadability{
		result: &Result{
			Title:       "Readable Title",
			Byline:      "Readable Author",
			Excerpt:     "Readable excerpt",
			Content:     `<p>Body text</p><img src="/img/inline.png">`,
			TextContent: words,
		},
		ok: true,
	})

	base := mustURL(t, "https://example.com/post")
	article, err := e.ExtractFromHTML(context.Background(), testPage, base)
	require.NoError(t, err)

	assert.Equal(t, "Readable Title", article.Title)
	assert.Equal(t, "Readable Author", article.Author)
	assert.Equal(t, "Readable excerpt", article.Excerpt)
	assert.Equal(t, 400, article.WordCount)
	assert.Equal(t, 2, article.ReadingTime)
	assert.Equal(t, testPage, article.OriginalHTML)
	assert.Equal(t, "https://example.com/favicon.ico", article.Favicon)
	require.NotNil(t, article.PublishedAt)

	// Lead image comes from og:image, resolved against the base URL.
	require.NotEmpty(t, cache.calls)
	assert.Equal(t, "https://example.com/img/lead.png", cache.calls[0])
	assert.Equal(t, "cached-1.jpg", article.Image)

	// The inline image src is rewritten to the cached copy.
	assert.Contains(t, article.Content, `src="/assets/cached-2.jpg"`)
	assert.NotContains(t, article.Content, "/img/inline.png")
}

func TestExtractFromHTML_MetadataFillsMissingFields(t *testing.T) {
	e := newTestExtractor(&fakeImageCache{}, stubReadability{
		result: &Result{Content: "<p>just a body</p>", TextContent: "just a body"},
		ok:     true,
	})

	article, err := e.ExtractFromHTML(context.Background(), testPage, mustURL(t, "https://example.com/post"))
	require.NoError(t, err)

	assert.Equal(t, "Page Title", article.Title)
	assert.Equal(t, "Page Author", article.Author)
	assert.Equal(t, "Page description", article.Excerpt)
}

// TestExtractFromHTML_FallbackNeverErrors feeds a page with no extractable
// body through the real readability implementation. The result must be a
// labeled fallback document, never an error.
func TestExtractFromHTML_FallbackNeverErrors(t *testing.T) {
	e := newTestExtractor(&fakeImageCache{}, nil)

	html := `<html><head><meta property="og:title" content="Great Video"></head><body></body></html>`
	base := mustURL(t, "https://www.youtube.com/watch?v=abc123")

	article, err := e.ExtractFromHTML(context.Background(), html, base)
	require.NoError(t, err)

	assert.Equal(t, "Great Video", article.Title)
	assert.Contains(t, article.Content, "video page")
	assert.Contains(t, article.Content, "youtube.com")
	assert.GreaterOrEqual(t, article.ReadingTime, 1)
}

func TestExtractFromHTML_DefaultTitle(t *testing.T) {
	e := newTestExtractor(&fakeImageCache{}, stubReadability{})

	article, err := e.ExtractFromHTML(context.Background(),
		`<html><head></head><body></body></html>`, mustURL(t, "https://example.com/"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, article.Title)
}

// TestExtractFromHTML_ImageFailureSwallowed: a broken image must never
// fail the extraction; the remote reference stays in the content and the
// lead image field stays empty.
func TestExtractFromHTML_ImageFailureSwallowed(t *testing.T) {
	cache := &fakeImageCache{fail: true}
	e := newTestExtractor(cache, stubReadability{
		result: &Result{
			Title:       "T",
			Content:     `<p>text</p><img src="https://cdn.example.com/pic.png">`,
			TextContent: "text",
		},
		ok: true,
	})

	article, err := e.ExtractFromHTML(context.Background(), testPage, mustURL(t, "https://example.com/post"))
	require.NoError(t, err)

	assert.Empty(t, article.Image)
	assert.Contains(t, article.Content, "https://cdn.example.com/pic.png")
}

func TestExtractFromURL(t *testing.T) {
	page := `<html><head><title>Served Page</title></head><body><p>content</p></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "pagekeep")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	e := newTestExtractor(&fakeImageCache{}, stubReadability{})
	article, err := e.ExtractFromURL(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Served Page", article.Title)
	assert.Equal(t, page, article.OriginalHTML)
}

func TestExtractFromURL_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := newTestExtractor(&fakeImageCache{}, stubReadability{})
	_, err := e.ExtractFromURL(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestExtractFromURL_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	e := newTestExtractor(&fakeImageCache{}, stubReadability{})
	_, err := e.ExtractFromURL(context.Background(), srv.URL)
	assert.Error(t, err)
}
