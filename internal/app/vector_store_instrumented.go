package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	documentrepos "github.com/yungbote/pdfrag-backend/internal/data/repos/documents"
	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	"github.com/yungbote/pdfrag-backend/internal/observability"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

const slowVectorOp = 500 * time.Millisecond

type instrumentedVectorRepo struct {
	inner documentrepos.VectorRepo
	log   *logger.Logger
}

func instrumentVectorRepo(log *logger.Logger, inner documentrepos.VectorRepo) documentrepos.VectorRepo {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorRepo{inner: inner, log: log.With("component", "VectorRepoTiming")}
}

func (s *instrumentedVectorRepo) Insert(ctx context.Context, row domain.IndexedDocumentRow) error {
	ctx, span := observability.Tracer().Start(ctx, "vector.insert", trace.WithAttributes(
		attribute.Int("vector.dimensions", len(row.Embedding)),
	))
	start := time.Now()
	err := s.inner.Insert(ctx, row)
	s.observe(span, "insert", err, time.Since(start))
	return err
}

func (s *instrumentedVectorRepo) QueryNearest(ctx context.Context, vector []float32, k int) ([]domain.IndexedDocumentRow, error) {
	ctx, span := observability.Tracer().Start(ctx, "vector.query_nearest", trace.WithAttributes(
		attribute.Int("vector.dimensions", len(vector)),
		attribute.Int("vector.k", k),
	))
	start := time.Now()
	out, err := s.inner.QueryNearest(ctx, vector, k)
	span.SetAttributes(attribute.Int("vector.results", len(out)))
	s.observe(span, "query_nearest", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorRepo) observe(span trace.Span, operation string, err error, dur time.Duration) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, operation)
	}
	if dur >= slowVectorOp {
		s.log.Warn("Slow vector operation", "operation", operation, "duration_ms", dur.Milliseconds(), "error", err)
	}
}
