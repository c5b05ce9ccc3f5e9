package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	"github.com/yungbote/pdfrag-backend/internal/observability"
	"github.com/yungbote/pdfrag-backend/internal/platform/httpx"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/platform/openai"
)

var ErrEmbeddingExhausted = errors.New("embedding attempts exhausted")

const (
	DefaultEmbedMaxAttempts = 3
	DefaultEmbedRetryDelay  = 20 * time.Millisecond
)

type EmbeddingService interface {
	// Embed returns the embedding of text. When chunkID is set, every failed attempt
	// moves that chunk to EmbeddingRetrying.
	Embed(ctx context.Context, text string, chunkID *uuid.UUID) ([]float32, error)
}

type EmbeddingConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type embeddingService struct {
	log     *logger.Logger
	client  openai.Client
	tracker StatusTracker
	cfg     EmbeddingConfig
}

// NewEmbeddingService builds the adapter. tracker may be nil for query-time embeddings.
func NewEmbeddingService(baseLog *logger.Logger, client openai.Client, tracker StatusTracker, cfg EmbeddingConfig) EmbeddingService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultEmbedMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &embeddingService{
		log:     baseLog.With("service", "EmbeddingService"),
		client:  client,
		tracker: tracker,
		cfg:     cfg,
	}
}

func (s *embeddingService) Embed(ctx context.Context, text string, chunkID *uuid.UUID) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		res, err := s.client.Embed(ctx, text)
		if err == nil {
			observability.Current().IncEmbedAttempt("ok")
			s.logUsage(res, chunkID)
			return res.Vector, nil
		}
		lastErr = err
		observability.Current().IncEmbedAttempt("error")

		kv := []interface{}{"attempt", attempt, "max_attempts", s.cfg.MaxAttempts, "error", err}
		if chunkID != nil {
			kv = append(kv, "chunk_id", chunkID.String())
		}
		s.log.Error("Embedding call failed", kv...)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if chunkID != nil && s.tracker != nil {
			if terr := s.tracker.UpdateStatus(ctx, *chunkID, domain.StatusEmbeddingRetrying); terr != nil {
				s.log.Warn("Failed to record embedding retry", "chunk_id", chunkID.String(), "error", terr)
			}
		}
		if attempt < s.cfg.MaxAttempts {
			if err := httpx.Sleep(ctx, s.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrEmbeddingExhausted, s.cfg.MaxAttempts, lastErr)
}

func (s *embeddingService) logUsage(res openai.EmbedResult, chunkID *uuid.UUID) {
	if !res.Usage.Present {
		s.log.Debug("Embedding response carried no usage", "model", res.Model)
		return
	}
	kv := []interface{}{
		"model", res.Model,
		"prompt_tokens", res.Usage.PromptTokens,
		"total_tokens", res.Usage.TotalTokens,
	}
	if chunkID != nil {
		kv = append(kv, "chunk_id", chunkID.String())
	}
	s.log.Info("Embedding usage", kv...)
}
