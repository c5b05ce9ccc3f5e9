package documents

import "github.com/google/uuid"

// Chunk is a bounded piece of one page's normalized text.
type Chunk struct {
	ID         uuid.UUID
	Filename   string
	PageNumber int
	Text       string
}

// IndexedDocumentRow is one row of the vector table.
type IndexedDocumentRow struct {
	ID           uuid.UUID `json:"id"`
	Embedding    []float32 `json:"-"`
	OriginalText string    `json:"origntext"`
	Filename     string    `json:"filename"`
	PageNumber   int       `json:"pageNumber"`
}
