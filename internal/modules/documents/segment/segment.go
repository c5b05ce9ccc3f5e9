// Package segment splits page text into bounded chunks, preferring sentence
// punctuation as the cut point.
package segment

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxLength is the per-chunk bound in characters.
	DefaultMaxLength = 7500
	// SearchWindow is how far back from the bound a punctuation mark is looked for.
	SearchWindow = 300
)

var whitespaceRun = regexp.MustCompile(`[ \t\n\v\f\r]{2,}`)

// Normalize turns newlines into spaces and then collapses every run of two or more
// whitespace characters into a single space.
func Normalize(text string) string {
	return whitespaceRun.ReplaceAllString(strings.ReplaceAll(text, "\n", " "), " ")
}

func isPunctuation(r rune) bool {
	switch r {
	case '.', '。', ';', '；', '!', '！', '?', '？':
		return true
	}
	return false
}

// Segment splits text into chunks of at most maxLength characters. Lengths are
// measured in runes. Concatenating the result always yields text.
func Segment(text string, maxLength int) []string {
	r := []rune(text)
	if maxLength <= 0 || len(r) <= maxLength {
		return []string{text}
	}

	out := make([]string, 0, len(r)/maxLength+1)
	for len(r) > maxLength {
		idx := splitIndex(r, maxLength)
		out = append(out, string(r[:idx]))
		r = r[idx:]
	}
	return append(out, string(r))
}

// splitIndex returns the cut position for r, which is longer than maxLength. The cut
// lands just after the last punctuation mark within the window, or at maxLength.
func splitIndex(r []rune, maxLength int) int {
	low := maxLength - SearchWindow
	if low < 0 {
		low = 0
	}
	idx := maxLength
	for i := maxLength - 1; i >= low; i-- {
		if isPunctuation(r[i]) {
			idx = i + 1
			break
		}
	}
	if idx == 0 {
		idx = maxLength
	}
	return idx
}

// Page normalizes a page's raw text and segments it when it exceeds maxLength.
func Page(raw string, maxLength int) []string {
	return Segment(Normalize(raw), maxLength)
}
