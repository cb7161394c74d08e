package extract

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// DefaultTitle is used when no title can be found anywhere on the page.
const DefaultTitle = "Untitled Article"

// Metadata holds whatever page-level tags offered, independent of whether
// readability found an article body.
type Metadata struct {
	Title       string
	Author      string
	Description string
	Favicon     string
	PublishedAt *time.Time
}

// candidate is one CSS selector to try; attr "" means element text.
type candidate struct {
	selector string
	attr     string
}

var (
	titleCandidates = []candidate{
		{`meta[property="og:title"]`, "content"},
		{`meta[name="twitter:title"]`, "content"},
		{`title`, ""},
		{`h1`, ""},
	}
	authorCandidates = []candidate{
		{`meta[name="author"]`, "content"},
		{`meta[property="article:author"]`, "content"},
		{`[rel="author"]`, ""},
		{`.author`, ""},
		{`.byline`, ""},
	}
	descriptionCandidates = []candidate{
		{`meta[property="og:description"]`, "content"},
		{`meta[name="description"]`, "content"},
		{`meta[name="twitter:description"]`, "content"},
	}
	faviconCandidates = []candidate{
		{`link[rel="icon"]`, "href"},
		{`link[rel="shortcut icon"]`, "href"},
		{`link[rel="apple-touch-icon"]`, "href"},
	}
	dateCandidates = []candidate{
		{`meta[property="article:published_time"]`, "content"},
		{`meta[name="date"]`, "content"},
		{`meta[name="publish-date"]`, "content"},
		{`time[datetime]`, "datetime"},
	}
)

// ExtractMetadata walks the ranked selector lists independently per
// field and keeps the first non-empty trimmed value it finds.
func ExtractMetadata(doc *goquery.Document, base *url.URL) Metadata {
	meta := Metadata{
		Title:       firstMatch(doc, titleCandidates),
		Author:      firstMatch(doc, authorCandidates),
		Description: firstMatch(doc, descriptionCandidates),
	}

	if href := firstMatch(doc, faviconCandidates); href != "" {
		meta.Favicon = resolveURL(base, href)
	}

	meta.PublishedAt = firstDate(doc)
	return meta
}

func firstMatch(doc *goquery.Document, candidates []candidate) string {
	for _, c := range candidates {
		sel := doc.Find(c.selector).First()
		if sel.Length() == 0 {
			continue
		}
		var val string
		if c.attr == "" {
			val = sel.Text()
		} else {
			val = sel.AttrOr(c.attr, "")
		}
		if val = strings.TrimSpace(val); val != "" {
			return val
		}
	}
	return ""
}

// firstDate returns the first candidate value that parses as a date.
// Syntactically broken dates are skipped, never fatal.
func firstDate(doc *goquery.Document) *time.Time {
	for _, c := range dateCandidates {
		raw := strings.TrimSpace(doc.Find(c.selector).First().AttrOr(c.attr, ""))
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return &t
		}
	}
	return nil
}

// resolveURL turns a possibly relative reference into an absolute URL.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}
