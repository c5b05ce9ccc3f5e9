// Package localpdf reads per-page text straight from PDF bytes, for deployments
// without a Document AI processor.
package localpdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

type extractor struct {
	log      *logger.Logger
	readPage func(r *pdf.Reader, i int, fonts map[string]*pdf.Font) (string, error)
}

func NewExtractor(log *logger.Logger) gcp.PageExtractor {
	return &extractor{log: log.With("service", "localpdf.Extractor"), readPage: plainText}
}

func (e *extractor) ExtractPages(ctx context.Context, data []byte, mimeType string) ([]gcp.PageText, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if mt := strings.ToLower(strings.TrimSpace(mimeType)); mt != "" && mt != "application/pdf" {
		return nil, fmt.Errorf("unsupported mime type %q", mimeType)
	}

	r, n, err := open(data)
	if err != nil {
		return nil, err
	}

	fonts := map[string]*pdf.Font{}
	pages := make([]gcp.PageText, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, gcp.PageText{PageNumber: i, Text: e.pageText(r, i, fonts)})
	}
	e.log.Debug("PDF parsed", "pages", n, "bytes", len(data))
	return pages, nil
}

// open parses the trailer and page tree. The parser panics on some malformed input.
func open(data []byte) (r *pdf.Reader, n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, n, err = nil, 0, fmt.Errorf("pdf parse: %v", rec)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("pdf reader: %w", err)
	}
	return r, r.NumPage(), nil
}

// pageText returns "" for a page that cannot be read, so one bad content stream
// costs only that page.
func (e *extractor) pageText(r *pdf.Reader, i int, fonts map[string]*pdf.Font) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Warn("Page text extraction panicked", "page", i, "error", fmt.Sprint(rec))
			text = ""
		}
	}()
	text, err := e.readPage(r, i, fonts)
	if err != nil {
		e.log.Warn("Page text extraction failed", "page", i, "error", err)
		return ""
	}
	return text
}

func plainText(r *pdf.Reader, i int, fonts map[string]*pdf.Font) (string, error) {
	p := r.Page(i)
	if p.V.IsNull() {
		return "", nil
	}
	for _, name := range p.Fonts() {
		if _, ok := fonts[name]; !ok {
			f := p.Font(name)
			fonts[name] = &f
		}
	}
	return p.GetPlainText(fonts)
}

func (e *extractor) Close() error { return nil }
