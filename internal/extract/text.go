package extract

import (
	"html"
	"regexp"
	"strings"
)

// wordsPerMinute is the assumed reading speed for the reading-time estimate.
const wordsPerMinute = 200

var tagExpr = regexp.MustCompile(`<[^>]*>`)

// PlainText strips tags and decodes entities, for word counting when no
// readability text output is available.
func PlainText(htmlStr string) string {
	return html.UnescapeString(tagExpr.ReplaceAllString(htmlStr, " "))
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// ReadingTime is ceil(words/200) in minutes, never below 1.
func ReadingTime(words int) int {
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
