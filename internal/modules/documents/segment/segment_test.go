package segment

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"a\nb", "a b"},
		{"a \n b", "a b"},
		{"a\n\n\nb", "a b"},
		{"a\t\tb", "a b"},
		{"a\tb", "a\tb"},
		{"  lead", " lead"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestSegmentShortTextIsSingleChunk(t *testing.T) {
	for _, in := range []string{"", "short", strings.Repeat("x", 7500)} {
		assert.Equal(t, []string{in}, Segment(in, DefaultMaxLength))
	}
}

func TestSegmentSplitsAfterPunctuationInsideWindow(t *testing.T) {
	text := strings.Repeat("a", 7300) + "." + strings.Repeat("b", 1699)
	require.Equal(t, 9000, utf8.RuneCountInString(text))

	chunks := Segment(text, DefaultMaxLength)
	require.Len(t, chunks, 2)
	assert.Equal(t, 7301, utf8.RuneCountInString(chunks[0]))
	assert.True(t, strings.HasSuffix(chunks[0], "."))
	assert.Equal(t, 1699, utf8.RuneCountInString(chunks[1]))
}

func TestSegmentFallsBackToHardSplitWithoutPunctuation(t *testing.T) {
	text := strings.Repeat("z", 9000)
	chunks := Segment(text, DefaultMaxLength)
	require.Len(t, chunks, 2)
	assert.Equal(t, 7500, len(chunks[0]))
	assert.Equal(t, 1500, len(chunks[1]))
}

func TestSegmentIgnoresPunctuationOutsideWindow(t *testing.T) {
	// mark at 7100 is before the 7200..7499 window
	text := strings.Repeat("a", 7100) + "。" + strings.Repeat("b", 1899)
	chunks := Segment(text, DefaultMaxLength)
	require.Len(t, chunks, 2)
	assert.Equal(t, 7500, utf8.RuneCountInString(chunks[0]))
}

func TestSegmentFullWidthPunctuationCountsAsOneCharacter(t *testing.T) {
	text := strings.Repeat("あ", 7400) + "？" + strings.Repeat("い", 1000)
	chunks := Segment(text, DefaultMaxLength)
	require.Len(t, chunks, 2)
	assert.Equal(t, 7401, utf8.RuneCountInString(chunks[0]))
	assert.True(t, strings.HasSuffix(chunks[0], "？"))
}

func TestSegmentPropertiesHold(t *testing.T) {
	marks := []string{".", "。", ";", "；", "!", "！", "?", "？"}
	for seed := 0; seed < 40; seed++ {
		var b strings.Builder
		n := 500 + seed*613
		for i := 0; i < n; i++ {
			if (i*7+seed*13)%97 == 0 {
				b.WriteString(marks[(i+seed)%len(marks)])
			} else if i%3 == 0 {
				b.WriteString("文")
			} else {
				b.WriteByte(byte('a' + i%26))
			}
		}
		text := b.String()
		for _, max := range []int{350, 1000, DefaultMaxLength} {
			chunks := Segment(text, max)
			assert.Equal(t, text, strings.Join(chunks, ""), "lossless seed=%d max=%d", seed, max)
			for i, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), max, "bound seed=%d max=%d chunk=%d", seed, max, i)
				if i < len(chunks)-1 {
					assert.NotEmpty(t, c)
				}
			}
			assert.Equal(t, chunks, Segment(text, max), "deterministic")
		}
	}
}

func TestSegmentSmallBoundStillTerminates(t *testing.T) {
	chunks := Segment(".....", 1)
	assert.Equal(t, []string{".", ".", ".", ".", "."}, chunks)
	assert.Equal(t, []string{"abc"}, Segment("abc", 0))
}

func TestPageNormalizesBeforeMeasuring(t *testing.T) {
	raw := strings.Repeat("word\n\n", 1400)
	chunks := Page(raw, DefaultMaxLength)
	assert.Equal(t, Normalize(raw), strings.Join(chunks, ""))
	assert.Len(t, chunks, 1)
}
