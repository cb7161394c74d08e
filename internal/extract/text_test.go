package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	got := PlainText(`<p>Hello &amp; welcome to <b>pagekeep</b></p>`)
	assert.Equal(t, "Hello & welcome to pagekeep", strings.Join(strings.Fields(got), " "))
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 0, CountWords("   \n\t "))
	assert.Equal(t, 3, CountWords("one two three"))
}

func TestReadingTime(t *testing.T) {
	cases := []struct {
		words, want int
	}{
		{0, 1},   // never zero
		{1, 1},   // ceiling
		{200, 1},
		{201, 2},
		{400, 2}, // exactly 400 words reads in 2 minutes
		{401, 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ReadingTime(tc.words), "words=%d", tc.words)
	}
}
