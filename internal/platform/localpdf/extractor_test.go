package localpdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	pdf "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

// buildPDF writes a minimal PDF with one Helvetica text line per page.
func buildPDF(pageTexts ...string) []byte {
	var objs []string
	n := len(pageTexts)
	// 1 catalog, 2 pages, 3 font, then page/content pairs
	kids := make([]string, n)
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pageTexts {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtractPagesInOrder(t *testing.T) {
	ex := NewExtractor(logger.Nop())
	pages, err := ex.ExtractPages(context.Background(), buildPDF("Hello page one", "Second page text"), "application/pdf")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, 1, pages[0].PageNumber)
	require.Equal(t, 2, pages[1].PageNumber)
	require.Contains(t, pages[0].Text, "Hello page one")
	require.Contains(t, pages[1].Text, "Second page text")
}

func TestExtractPagesRejectsGarbage(t *testing.T) {
	ex := NewExtractor(logger.Nop())
	_, err := ex.ExtractPages(context.Background(), []byte("not a pdf at all"), "application/pdf")
	require.Error(t, err)

	_, err = ex.ExtractPages(context.Background(), nil, "application/pdf")
	require.Error(t, err)

	_, err = ex.ExtractPages(context.Background(), buildPDF("x"), "image/png")
	require.Error(t, err)
}

func TestExtractPagesHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractor(logger.Nop()).ExtractPages(ctx, buildPDF("a", "b"), "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractPagesKeepsOtherPagesWhenOnePanics(t *testing.T) {
	ex := NewExtractor(logger.Nop()).(*extractor)
	ex.readPage = func(r *pdf.Reader, i int, fonts map[string]*pdf.Font) (string, error) {
		if i == 1 {
			panic("malformed content stream")
		}
		return plainText(r, i, fonts)
	}

	pages, err := ex.ExtractPages(context.Background(), buildPDF("broken", "Second page text", "Third page text"), "application/pdf")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	require.Equal(t, "", pages[0].Text)
	require.Contains(t, pages[1].Text, "Second page text")
	require.Contains(t, pages[2].Text, "Third page text")
	require.Equal(t, 3, pages[2].PageNumber)
}
