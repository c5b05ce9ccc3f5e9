package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	documentrepos "github.com/yungbote/pdfrag-backend/internal/data/repos/documents"
	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	"github.com/yungbote/pdfrag-backend/internal/platform/dbctx"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

// StatusTracker records the ingestion state of each chunk.
type StatusTracker interface {
	// CreateRecord writes a new record. A duplicate create for the same chunk is a no-op.
	CreateRecord(ctx context.Context, chunkID uuid.UUID, filename string, status domain.Status, page int) error
	// UpdateStatus moves a record forward. Repeating the current status is a no-op and a
	// backward move returns domain.ErrInvalidTransition.
	UpdateStatus(ctx context.Context, chunkID uuid.UUID, status domain.Status) error
	// MarkFailed moves a record to DbInsertionFailed and stores the cause.
	MarkFailed(ctx context.Context, chunkID uuid.UUID, stage string, cause error) error
	ListAll(ctx context.Context) ([]*domain.DocumentStatus, error)
	ListFailed(ctx context.Context) ([]*domain.DocumentStatus, error)
}

type statusTracker struct {
	log  *logger.Logger
	repo documentrepos.DocumentStatusRepo
}

func NewStatusTracker(baseLog *logger.Logger, repo documentrepos.DocumentStatusRepo) StatusTracker {
	return &statusTracker{
		log:  baseLog.With("service", "StatusTracker"),
		repo: repo,
	}
}

func (t *statusTracker) CreateRecord(ctx context.Context, chunkID uuid.UUID, filename string, status domain.Status, page int) error {
	created, err := t.repo.Create(dbctx.Context{Ctx: ctx}, &domain.DocumentStatus{
		ID:         chunkID,
		Filename:   filename,
		PageNumber: page,
		Status:     status,
	})
	if err != nil {
		return fmt.Errorf("create status record %s: %w", chunkID, err)
	}
	if !created {
		t.log.Debug("Status record already exists", "chunk_id", chunkID.String())
	}
	return nil
}

func (t *statusTracker) UpdateStatus(ctx context.Context, chunkID uuid.UUID, status domain.Status) error {
	return t.transition(ctx, chunkID, status, nil)
}

func (t *statusTracker) MarkFailed(ctx context.Context, chunkID uuid.UUID, stage string, cause error) error {
	detail := map[string]any{"stage": stage}
	if cause != nil {
		detail["error"] = logger.Fragment(cause.Error(), 500)
	}
	return t.transition(ctx, chunkID, domain.StatusDbInsertionFailed, detail)
}

func (t *statusTracker) transition(ctx context.Context, chunkID uuid.UUID, status domain.Status, detail map[string]any) error {
	got, err := t.repo.Transition(dbctx.Context{Ctx: ctx}, chunkID, status, detail)
	if err != nil {
		t.log.Warn("Status transition rejected",
			"chunk_id", chunkID.String(),
			"to", string(status),
			"current", string(got),
			"error", err,
		)
		return fmt.Errorf("update status %s: %w", chunkID, err)
	}
	return nil
}

func (t *statusTracker) ListAll(ctx context.Context) ([]*domain.DocumentStatus, error) {
	return t.repo.ListAll(dbctx.Context{Ctx: ctx})
}

func (t *statusTracker) ListFailed(ctx context.Context) ([]*domain.DocumentStatus, error) {
	return t.repo.ListByStatus(dbctx.Context{Ctx: ctx}, domain.StatusDbInsertionFailed)
}
