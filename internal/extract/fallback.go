package extract

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

const (
	videoNote = "This looks like a video page. Videos cannot be converted to " +
		"article form — use the link below to watch it on the original site."
	socialNote = "This looks like a social media post. Posts cannot be reliably " +
		"extracted — use the link below to view it at the source."
	genericNote = "The content of this page could not be extracted " +
		"automatically. Use the link below to read it at the source."
)

var (
	videoDomains  = []string{"youtube.com", "youtu.be"}
	socialDomains = []string{"twitter.com", "x.com"}
)

// IsExactDomain reports whether rawURL's host is domain or a subdomain of
// it. Plain substring matching would let notyoutube.com spoof youtube.com,
// so the comparison is exact-or-subdomain only.
func IsExactDomain(rawURL, domain string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func matchesAny(rawURL string, domains []string) bool {
	for _, d := range domains {
		if IsExactDomain(rawURL, d) {
			return true
		}
	}
	return false
}

// BuildFallback synthesizes a minimal viewable document for pages with no
// extractable article body: title, meta description if present, a
// platform-appropriate note, and a link back to the source.
func BuildFallback(pageURL string, meta Metadata) string {
	title := meta.Title
	if title == "" {
		title = DefaultTitle
	}

	note := genericNote
	switch {
	case matchesAny(pageURL, videoDomains):
		note = videoNote
	case matchesAny(pageURL, socialDomains):
		note = socialNote
	}

	var b strings.Builder
	b.WriteString(`<div class="fallback-content">`)
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(title))
	if meta.Description != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(meta.Description))
	}
	fmt.Fprintf(&b, `<p class="fallback-note">%s</p>`, html.EscapeString(note))
	fmt.Fprintf(&b, `<p><a href="%s">View the original page</a></p>`, html.EscapeString(pageURL))
	b.WriteString(`</div>`)
	return b.String()
}
