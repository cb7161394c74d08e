package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; pagekeep/1.0; +article archiver)"
	maxBodyBytes     = 10 << 20 // 10 MiB page cap
)

// Article is the ephemeral result of one extraction. It is flattened onto
// the persisted article record by the state tracker, never stored as-is.
type Article struct {
	Title        string
	Author       string
	Content      string
	Excerpt      string
	WordCount    int
	ReadingTime  int
	PublishedAt  *time.Time
	Favicon      string
	Image        string // locally cached lead image filename
	OriginalHTML string
}

// ImageCache downloads and optimizes a remote image, returning the local
// filename. Failures here are always swallowed by the extractor.
type ImageCache interface {
	DownloadAndOptimize(ctx context.Context, remoteURL string) (string, error)
}

// Extractor turns a URL into a readable Article. It does not retry;
// transient failures are the job queue's problem.
type Extractor struct {
	client      *http.Client
	readability Readability
	images      ImageCache
	logger      *zap.Logger
	userAgent   string
}

func New(images ImageCache, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:      &http.Client{Timeout: 30 * time.Second},
		readability: shioriReadability{},
		images:      images,
		logger:      logger,
		userAgent:   defaultUserAgent,
	}
}

// ExtractFromURL fetches the page and extracts an article from it. A
// network failure or non-2xx status is a hard failure.
func (e *Extractor) ExtractFromURL(ctx context.Context, rawURL string) (*Article, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	return e.ExtractFromHTML(ctx, string(body), base)
}

// ExtractFromHTML extracts an article from already-fetched HTML. A null
// readability result degrades to fallback content; only unparseable HTML
// is an error.
func (e *Extractor) ExtractFromHTML(ctx context.Context, html string, base *url.URL) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	meta := ExtractMetadata(doc, base)

	article := &Article{
		OriginalHTML: html,
		Favicon:      meta.Favicon,
		PublishedAt:  meta.PublishedAt,
	}

	var textContent string
	if result, ok := e.readability.Extract(html, base); ok {
		article.Title = firstNonEmpty(result.Title, meta.Title)
		article.Author = firstNonEmpty(result.Byline, meta.Author)
		article.Excerpt = firstNonEmpty(result.Excerpt, meta.Description)
		article.Content = result.Content
		textContent = result.TextContent
	} else {
		// No extractable body. Not an error; serve a labeled fallback.
		article.Title = meta.Title
		article.Author = meta.Author
		article.Excerpt = meta.Description
		article.Content = BuildFallback(base.String(), meta)
	}
	if article.Title == "" {
		article.Title = DefaultTitle
	}

	if lead := findLeadImage(doc, base); lead != "" {
		name, err := e.images.DownloadAndOptimize(ctx, lead)
		if err != nil {
			e.logger.Warn("lead image skipped", zap.String("url", lead), zap.Error(err))
		} else {
			article.Image = name
		}
	}

	article.Content = e.rewriteContentImages(ctx, article.Content, base)

	if textContent == "" {
		textContent = PlainText(article.Content)
	}
	article.WordCount = CountWords(textContent)
	article.ReadingTime = ReadingTime(article.WordCount)

	return article, nil
}

// findLeadImage walks the selector preference order: og:image, then
// twitter:image, then the first image inside an article container, then
// the first image anywhere.
func findLeadImage(doc *goquery.Document, base *url.URL) string {
	for _, c := range []candidate{
		{`meta[property="og:image"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`meta[property="twitter:image"]`, "content"},
	} {
		if v := strings.TrimSpace(doc.Find(c.selector).First().AttrOr(c.attr, "")); v != "" {
			return resolveURL(base, v)
		}
	}
	for _, sel := range []string{`article img`, `.featured-image img`, `img`} {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("src", "")); v != "" {
			return resolveURL(base, v)
		}
	}
	return ""
}

// rewriteContentImages caches every embedded image and points its src at
// the local copy. A failed image keeps its remote reference; nothing here
// can fail the extraction.
func (e *Extractor) rewriteContentImages(ctx context.Context, content string, base *url.URL) string {
	if content == "" {
		return content
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}

	rewritten := false
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "/assets/") {
			return
		}
		remote := resolveURL(base, src)
		if remote == "" {
			return
		}
		name, err := e.images.DownloadAndOptimize(ctx, remote)
		if err != nil {
			e.logger.Warn("content image skipped", zap.String("url", remote), zap.Error(err))
			return
		}
		s.SetAttr("src", "/assets/"+name)
		rewritten = true
	})
	if !rewritten {
		return content
	}

	// goquery wraps fragments in html/body; unwrap on the way out.
	out, err := doc.Find("body").Html()
	if err != nil {
		return content
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
