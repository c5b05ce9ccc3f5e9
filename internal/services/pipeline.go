package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	documentrepos "github.com/yungbote/pdfrag-backend/internal/data/repos/documents"
	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	"github.com/yungbote/pdfrag-backend/internal/modules/documents/segment"
	"github.com/yungbote/pdfrag-backend/internal/observability"
	pkgerrors "github.com/yungbote/pdfrag-backend/internal/pkg/errors"
	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

var errExtractorDisabled = errors.New("page extractor not configured")

const (
	pdfMimeType                = "application/pdf"
	DefaultIngestChunkInterval = 20 * time.Millisecond
)

// IngestReport summarizes one Ingest call.
type IngestReport struct {
	Filename  string `json:"filename"`
	Pages     int    `json:"pages"`
	Chunks    int    `json:"chunks"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

type IngestionService interface {
	// Ingest extracts, segments, embeds and stores every chunk of a PDF. A failing
	// chunk is marked DbInsertionFailed and the next one is processed.
	Ingest(ctx context.Context, data []byte, filename string) (IngestReport, error)
}

type IngestionConfig struct {
	MaxChunkLength int
	// ChunkInterval is the minimum spacing between the start of two chunks.
	ChunkInterval time.Duration
}

type ingestionService struct {
	log       *logger.Logger
	extractor gcp.PageExtractor
	embedder  EmbeddingService
	tracker   StatusTracker
	vectors   documentrepos.VectorRepo
	cfg       IngestionConfig
}

func NewIngestionService(
	baseLog *logger.Logger,
	extractor gcp.PageExtractor,
	embedder EmbeddingService,
	tracker StatusTracker,
	vectors documentrepos.VectorRepo,
	cfg IngestionConfig,
) IngestionService {
	if cfg.MaxChunkLength <= 0 {
		cfg.MaxChunkLength = segment.DefaultMaxLength
	}
	return &ingestionService{
		log:       baseLog.With("service", "IngestionService"),
		extractor: extractor,
		embedder:  embedder,
		tracker:   tracker,
		vectors:   vectors,
		cfg:       cfg,
	}
}

// IsIngestible reports whether filename names a PDF.
func IsIngestible(filename string) bool {
	return strings.EqualFold(path.Ext(filename), ".pdf")
}

func (s *ingestionService) Ingest(ctx context.Context, data []byte, filename string) (IngestReport, error) {
	report := IngestReport{Filename: filename}
	if !IsIngestible(filename) {
		s.log.Info("Skipping non-PDF upload", "filename", filename)
		return report, fmt.Errorf("%w: %s", pkgerrors.ErrUnsupportedFile, filename)
	}

	if s.extractor == nil {
		return report, errExtractorDisabled
	}
	pages, err := s.extractor.ExtractPages(ctx, data, pdfMimeType)
	if err != nil {
		s.log.Error("Page extraction failed", "filename", filename, "error", err)
		return report, fmt.Errorf("extract pages of %s: %w", filename, err)
	}
	report.Pages = len(pages)
	s.log.Info("Ingest started", "filename", filename, "pages", len(pages), "bytes", len(data))
	started := time.Now()
	metrics := observability.Current()

	limit := rate.Inf
	if s.cfg.ChunkInterval > 0 {
		limit = rate.Every(s.cfg.ChunkInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, page := range pages {
		chunks := segment.Page(page.Text, s.cfg.MaxChunkLength)
		if len(chunks) > 1 {
			s.log.Debug("Page split", "filename", filename, "page", page.PageNumber, "chunks", len(chunks))
		}
		for _, text := range chunks {
			if strings.TrimSpace(text) == "" {
				report.Skipped++
				metrics.IncIngestChunk("skipped")
				s.log.Debug("Skipping blank chunk", "filename", filename, "page", page.PageNumber)
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				metrics.ObserveIngest("cancelled", time.Since(started))
				return report, err
			}
			report.Chunks++
			if s.processChunk(ctx, domain.Chunk{
				ID:         uuid.New(),
				Filename:   filename,
				PageNumber: page.PageNumber,
				Text:       text,
			}) {
				report.Completed++
				metrics.IncIngestChunk("completed")
			} else {
				report.Failed++
				metrics.IncIngestChunk("failed")
			}
		}
	}

	s.log.Info("Ingest finished",
		"filename", filename,
		"pages", report.Pages,
		"chunks", report.Chunks,
		"completed", report.Completed,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	metrics.ObserveIngest("finished", time.Since(started))
	return report, nil
}

// processChunk runs one chunk through embed and insert. It reports whether the chunk
// reached Completed.
func (s *ingestionService) processChunk(ctx context.Context, c domain.Chunk) bool {
	ctx, span := observability.Tracer().Start(ctx, "ingest.chunk", trace.WithAttributes(
		attribute.String("chunk.id", c.ID.String()),
		attribute.String("document.filename", c.Filename),
		attribute.Int("document.page", c.PageNumber),
		attribute.Int("chunk.length", len([]rune(c.Text))),
	))
	defer span.End()

	chunkLog := s.log.With("chunk_id", c.ID.String(), "filename", c.Filename, "page", c.PageNumber)

	fail := func(stage string, err error) bool {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		chunkLog.Error("Chunk ingestion failed", "stage", stage, "error", err)
		if merr := s.tracker.MarkFailed(ctx, c.ID, stage, err); merr != nil {
			chunkLog.Error("Failed to mark chunk as failed", "error", merr)
		}
		return false
	}

	if err := s.tracker.CreateRecord(ctx, c.ID, c.Filename, domain.StatusPageSeparated, c.PageNumber); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create_record")
		chunkLog.Error("Failed to create status record", "error", err)
		return false
	}

	vector, err := s.embedder.Embed(ctx, c.Text, &c.ID)
	if err != nil {
		return fail("embed", err)
	}
	if err := s.tracker.UpdateStatus(ctx, c.ID, domain.StatusEmbeddingInvoked); err != nil {
		return fail("embed_status", err)
	}

	row := domain.IndexedDocumentRow{
		ID:           c.ID,
		Embedding:    vector,
		OriginalText: c.Text,
		Filename:     c.Filename,
		PageNumber:   c.PageNumber,
	}
	if err := s.vectors.Insert(ctx, row); err != nil {
		return fail("insert", err)
	}
	if err := s.tracker.UpdateStatus(ctx, c.ID, domain.StatusDbInserted); err != nil {
		return fail("insert_status", err)
	}
	if err := s.tracker.UpdateStatus(ctx, c.ID, domain.StatusCompleted); err != nil {
		return fail("complete_status", err)
	}
	chunkLog.Debug("Chunk completed", "dimensions", len(vector))
	return true
}
