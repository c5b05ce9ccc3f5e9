package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	pkgerrors "github.com/yungbote/pdfrag-backend/internal/pkg/errors"
	"github.com/yungbote/pdfrag-backend/internal/platform/dbctx"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

type DocumentStatusRepo interface {
	// Create inserts rec unless a record with the same id exists. It reports whether a
	// row was written.
	Create(dbc dbctx.Context, rec *domain.DocumentStatus) (bool, error)
	// Transition moves a record to status `to` only from one of its allowed
	// predecessors. Writing the current status again is a no-op. It returns the status
	// the record holds afterwards.
	Transition(dbc dbctx.Context, id uuid.UUID, to domain.Status, detail map[string]any) (domain.Status, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.DocumentStatus, error)
	ListAll(dbc dbctx.Context) ([]*domain.DocumentStatus, error)
	ListByStatus(dbc dbctx.Context, statuses ...domain.Status) ([]*domain.DocumentStatus, error)
}

type documentStatusRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentStatusRepo(db *gorm.DB, baseLog *logger.Logger) DocumentStatusRepo {
	return &documentStatusRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentStatusRepo"),
	}
}

func (r *documentStatusRepo) Create(dbc dbctx.Context, rec *domain.DocumentStatus) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if rec == nil || rec.ID == uuid.Nil {
		return false, fmt.Errorf("%w: status record id required", pkgerrors.ErrInvalidArgument)
	}
	if !rec.Status.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", pkgerrors.ErrInvalidArgument, rec.Status)
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentStatusRepo) Transition(dbc dbctx.Context, id uuid.UUID, to domain.Status, detail map[string]any) (domain.Status, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if !to.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", pkgerrors.ErrInvalidArgument, to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if to == domain.StatusEmbeddingRetrying {
		updates["attempts"] = gorm.Expr("attempts + ?", 1)
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return "", fmt.Errorf("encode status detail: %w", err)
		}
		updates["detail"] = datatypes.JSON(raw)
	}

	from := to.AllowedPredecessors()
	if len(from) > 0 {
		res := transaction.WithContext(dbc.Ctx).
			Model(&domain.DocumentStatus{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(updates)
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected > 0 {
			return to, nil
		}
	}

	current, err := r.GetByID(dbc, id)
	if err != nil {
		return "", err
	}
	if current.Status == to {
		return to, nil
	}
	return current.Status, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
}

func (r *documentStatusRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.DocumentStatus, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rec domain.DocumentStatus
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document status %s: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *documentStatusRepo) ListAll(dbc dbctx.Context) ([]*domain.DocumentStatus, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.DocumentStatus
	if err := transaction.WithContext(dbc.Ctx).
		Order("created_at DESC").
		Order("filename ASC").
		Order("page_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentStatusRepo) ListByStatus(dbc dbctx.Context, statuses ...domain.Status) ([]*domain.DocumentStatus, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []*domain.DocumentStatus{}
	if len(statuses) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("status IN ?", statuses).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
