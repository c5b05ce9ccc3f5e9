package gcp

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

func anchor(start, end int64) *documentaipb.Document_Page_Layout {
	return &documentaipb.Document_Page_Layout{
		TextAnchor: &documentaipb.Document_TextAnchor{
			TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
		},
	}
}

func TestPagesFromDocumentUsesCharacterOffsets(t *testing.T) {
	// "日本語。" is 4 characters but 12 bytes.
	doc := &documentaipb.Document{
		Text: "日本語。Hello.Second page",
		Pages: []*documentaipb.Document_Page{
			{
				PageNumber: 1,
				Paragraphs: []*documentaipb.Document_Page_Paragraph{
					{Layout: anchor(0, 4)},
					{Layout: anchor(4, 10)},
				},
			},
			{
				PageNumber: 2,
				Paragraphs: []*documentaipb.Document_Page_Paragraph{{Layout: anchor(10, 21)}},
			},
		},
	}

	pages := pagesFromDocument(doc)
	if len(pages) != 2 {
		t.Fatalf("pages: want=2 got=%d", len(pages))
	}
	if pages[0].Text != "日本語。\nHello.\n" {
		t.Fatalf("page 1 text: want=%q got=%q", "日本語。\nHello.\n", pages[0].Text)
	}
	if pages[1].PageNumber != 2 || pages[1].Text != "Second page\n" {
		t.Fatalf("page 2: want=(2,%q) got=(%d,%q)", "Second page\n", pages[1].PageNumber, pages[1].Text)
	}
}

func TestPagesFromDocumentFallsBackToFullText(t *testing.T) {
	pages := pagesFromDocument(&documentaipb.Document{Text: "only text"})
	if len(pages) != 1 || pages[0].PageNumber != 1 || pages[0].Text != "only text" {
		t.Fatalf("fallback: got=%+v", pages)
	}
}

func TestPagesFromDocumentKeepsEmptyPages(t *testing.T) {
	doc := &documentaipb.Document{
		Text:  "abc",
		Pages: []*documentaipb.Document_Page{{PageNumber: 1}, {PageNumber: 2, Paragraphs: []*documentaipb.Document_Page_Paragraph{{Layout: anchor(0, 3)}}}},
	}
	pages := pagesFromDocument(doc)
	if len(pages) != 2 || pages[0].Text != "" || pages[1].Text != "abc\n" {
		t.Fatalf("empty page: got=%+v", pages)
	}
}

func TestProcessorName(t *testing.T) {
	if got := processorName("p", "eu", "id", ""); got != "projects/p/locations/eu/processors/id" {
		t.Fatalf("name: got=%s", got)
	}
	if got := processorName("p", "eu", "id", "v1"); got != "projects/p/locations/eu/processors/id/processorVersions/v1" {
		t.Fatalf("versioned name: got=%s", got)
	}
	if got := processorName("", "eu", "id", ""); got != "" {
		t.Fatalf("missing project: got=%s", got)
	}
}
