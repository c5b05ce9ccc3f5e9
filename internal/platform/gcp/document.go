package gcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/yungbote/pdfrag-backend/internal/platform/ctxutil"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

// PageText is the raw text of one page. PageNumber is 1-based.
type PageText struct {
	PageNumber int
	Text       string
}

// PageExtractor turns document bytes into per-page text in page order.
type PageExtractor interface {
	ExtractPages(ctx context.Context, data []byte, mimeType string) ([]PageText, error)
	Close() error
}

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

type documentService struct {
	log       *logger.Logger
	docClient *documentai.DocumentProcessorClient
	processor string
	timeout   time.Duration
}

// only the fields needed to rebuild page text.
var pageTextFieldMask = []string{"text", "pages.page_number", "pages.paragraphs.layout.text_anchor"}

func NewDocument(log *logger.Logger, cfg DocumentConfig) (PageExtractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Document")

	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us"
	}
	name := processorName(cfg.ProjectID, location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("missing DOCUMENTAI_PROJECT_ID or DOCUMENTAI_PROCESSOR_ID")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	docOpts := credentialOptions(option.WithEndpoint(endpoint))
	c, err := documentai.NewDocumentProcessorClient(context.Background(), docOpts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	return &documentService{log: slog, docClient: c, processor: name, timeout: timeout}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentService) ExtractPages(ctx context.Context, data []byte, mimeType string) ([]PageText, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), s.timeout)
	defer cancel()

	resp, err := s.docClient.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
		FieldMask: &fieldmaskpb.FieldMask{Paths: pageTextFieldMask},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return nil, nil
	}
	pages := pagesFromDocument(resp.Document)
	s.log.Debug("Document AI pages extracted", "pages", len(pages), "bytes", len(data))
	return pages, nil
}

// pagesFromDocument rebuilds page text from paragraph anchors. Paragraphs are joined
// with newlines the way a text stripper would emit line breaks. A page without
// paragraphs is still returned with empty text so page numbering stays dense.
func pagesFromDocument(doc *documentaipb.Document) []PageText {
	if doc == nil {
		return nil
	}
	full := []rune(doc.Text)
	out := make([]PageText, 0, len(doc.Pages))
	for i, p := range doc.Pages {
		if p == nil {
			continue
		}
		pageNum := int(p.PageNumber)
		if pageNum <= 0 {
			pageNum = i + 1
		}
		var b strings.Builder
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil || para.Layout.TextAnchor == nil {
				continue
			}
			t := textFromAnchor(full, para.Layout.TextAnchor)
			if strings.TrimSpace(t) == "" {
				continue
			}
			b.WriteString(t)
			if !strings.HasSuffix(t, "\n") {
				b.WriteString("\n")
			}
		}
		out = append(out, PageText{PageNumber: pageNum, Text: b.String()})
	}
	if len(out) == 0 && strings.TrimSpace(doc.Text) != "" {
		out = append(out, PageText{PageNumber: 1, Text: doc.Text})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out
}

// Anchor indices count characters, not bytes.
func textFromAnchor(full []rune, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || len(full) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(string(full[start:end]))
	}
	return b.String()
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	version = strings.TrimSpace(version)

	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
