package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	documentrepos "github.com/yungbote/pdfrag-backend/internal/data/repos/documents"
	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	"github.com/yungbote/pdfrag-backend/internal/observability"
	"github.com/yungbote/pdfrag-backend/internal/platform/ctxutil"
	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/httpx"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/platform/openai"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
)

const DefaultStreamEmitInterval = 20 * time.Millisecond

// errSessionGone aborts a completion stream once its session can no longer receive.
var errSessionGone = errors.New("session no longer accepts events")

type RAGQueryService interface {
	// Submit answers input on sessionID in the background and returns at once.
	Submit(ctx context.Context, input, sessionID string)
	// Answer runs one submission to completion.
	Answer(ctx context.Context, input, sessionID string)
	// Wait blocks until every submitted answer has finished or ctx ends.
	Wait(ctx context.Context) error
}

type RAGQueryConfig struct {
	TopK int
	// EmitInterval is the pause after each event sent to a session.
	EmitInterval time.Duration
}

type ragQueryService struct {
	log      *logger.Logger
	embedder EmbeddingService
	vectors  documentrepos.VectorRepo
	chat     openai.Client
	emitter  realtime.Emitter
	links    gcp.URLResolver
	cfg      RAGQueryConfig

	inflight sync.WaitGroup
}

func NewRAGQueryService(
	baseLog *logger.Logger,
	embedder EmbeddingService,
	vectors documentrepos.VectorRepo,
	chat openai.Client,
	emitter realtime.Emitter,
	links gcp.URLResolver,
	cfg RAGQueryConfig,
) RAGQueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = documentrepos.DefaultTopK
	}
	if cfg.EmitInterval < 0 {
		cfg.EmitInterval = 0
	}
	return &ragQueryService{
		log:      baseLog.With("service", "RAGQueryService"),
		embedder: embedder,
		vectors:  vectors,
		chat:     chat,
		emitter:  emitter,
		links:    links,
		cfg:      cfg,
	}
}

func (s *ragQueryService) Submit(ctx context.Context, input, sessionID string) {
	runCtx := ctxutil.Detached(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.Answer(runCtx, input, sessionID)
	}()
}

func (s *ragQueryService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ragQueryService) Answer(ctx context.Context, input, sessionID string) {
	ctx = realtime.WithTrigger(ctx, input)
	queryLog := s.log.With("session_id", sessionID)
	if td := ctxutil.GetTraceData(ctx); td != nil && td.RequestID != "" {
		queryLog = queryLog.With("request_id", td.RequestID)
	}

	vector, err := s.embedder.Embed(ctx, input, nil)
	if err != nil {
		queryLog.Error("Query embedding failed", "input", logger.Fragment(input, 200), "error", err)
		return
	}

	rows, err := s.vectors.QueryNearest(ctx, vector, s.cfg.TopK)
	if err != nil {
		queryLog.Error("Vector query failed, answering with no documents", "error", err)
		rows = nil
	}
	if len(rows) == 0 {
		queryLog.Info("No documents matched query", "input", logger.Fragment(input, 200))
		return
	}
	queryLog.Info("Answering query", "documents", len(rows))

	var g errgroup.Group
	for _, row := range rows {
		g.Go(func() error {
			s.answerDocument(ctx, queryLog, row, input, sessionID)
			return nil
		})
	}
	_ = g.Wait()
}

// answerDocument streams the completion for one retrieved row. Events for a single
// document are emitted in order: create, createLink, addMessage..., then done or error.
func (s *ragQueryService) answerDocument(ctx context.Context, log *logger.Logger, row domain.IndexedDocumentRow, input, sessionID string) {
	docID := row.ID.String()
	ctx, span := observability.Tracer().Start(ctx, "rag.document", trace.WithAttributes(
		attribute.String("document.id", docID),
		attribute.String("document.filename", row.Filename),
		attribute.Int("document.page", row.PageNumber),
	))
	defer span.End()
	docLog := log.With("document_id", docID)

	if err := s.emit(ctx, docLog, sessionID, input, realtime.CreateEvent(docID)); err != nil {
		return
	}
	if err := s.emit(ctx, docLog, sessionID, input, realtime.CreateLinkEvent(docID, s.pageLink(row), row.PageNumber, row.Filename)); err != nil {
		return
	}

	_, err := s.chat.StreamChat(ctx, BuildRAGMessages(row.OriginalText, input), func(delta string) error {
		if delta == "" {
			return nil
		}
		return s.emit(ctx, docLog, sessionID, input, realtime.AddMessageEvent(docID, delta))
	})
	if err != nil {
		if errors.Is(err, errSessionGone) {
			docLog.Debug("Stopped streaming, session gone")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion stream failed")
		docLog.Error("Completion stream failed", "input", logger.Fragment(input, 200), "error", err)
		observability.Current().IncRAGDocument("error")
		_ = s.emit(ctx, docLog, sessionID, input, realtime.ErrorEvent(docID, "completion stream failed"))
		return
	}
	observability.Current().IncRAGDocument("done")
	_ = s.emit(ctx, docLog, sessionID, input, realtime.DoneEvent(docID))
}

// emit sends ev and then waits EmitInterval. It returns errSessionGone when further
// events for this session would be wasted.
func (s *ragQueryService) emit(ctx context.Context, log *logger.Logger, sessionID, input string, ev realtime.ClientEvent) error {
	payload, err := ev.Encode()
	if err != nil {
		log.Error("Encode client event failed", "action", ev.Action, "error", err)
		return nil
	}
	res := s.emitter.Emit(ctx, sessionID, payload)
	observability.Current().IncEmitResult(res.String())
	if res.IsFailure() {
		realtime.LogEmitFailure(log, res, sessionID, payload, input)
		if res == realtime.EmitTerminated || res == realtime.EmitCancelled {
			return errSessionGone
		}
	}
	if err := httpx.Sleep(ctx, s.cfg.EmitInterval); err != nil {
		return errSessionGone
	}
	return nil
}

func (s *ragQueryService) pageLink(row domain.IndexedDocumentRow) string {
	base := row.Filename
	if s.links != nil {
		base = s.links.PublicURL(row.Filename)
	}
	return base + "#page=" + strconv.Itoa(row.PageNumber)
}
