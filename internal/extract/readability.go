package extract

import (
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

// Result is what a readability pass produces when it finds a main
// content block.
type Result struct {
	Title       string
	Byline      string
	Excerpt     string
	Content     string
	TextContent string
}

// Readability isolates the main content of an HTML document. A false
// return means nothing extractable was found — video pages, SPA shells,
// bare social posts — and is not an error; the extractor degrades to
// fallback content instead.
type Readability interface {
	Extract(html string, base *url.URL) (*Result, bool)
}

// shioriReadability backs the Readability capability with go-readability.
type shioriReadability struct{}

func (shioriReadability) Extract(html string, base *url.URL) (*Result, bool) {
	article, err := readability.FromReader(strings.NewReader(html), base)
	if err != nil {
		return nil, false
	}
	if strings.TrimSpace(article.Content) == "" && strings.TrimSpace(article.TextContent) == "" {
		return nil, false
	}
	return &Result{
		Title:       article.Title,
		Byline:      article.Byline,
		Excerpt:     article.Excerpt,
		Content:     article.Content,
		TextContent: article.TextContent,
	}, true
}
