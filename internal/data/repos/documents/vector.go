package documents

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	pkgerrors "github.com/yungbote/pdfrag-backend/internal/pkg/errors"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

const DefaultTopK = 5

// VectorConn is the subset of *pgxpool.Pool the vector repo needs.
type VectorConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type VectorRepo interface {
	// Insert writes row. A row whose id already exists is left untouched.
	Insert(ctx context.Context, row domain.IndexedDocumentRow) error
	// QueryNearest returns up to k rows ordered by ascending L2 distance to vector.
	// Returned rows carry no embedding.
	QueryNearest(ctx context.Context, vector []float32, k int) ([]domain.IndexedDocumentRow, error)
}

type vectorRepo struct {
	conn VectorConn
	log  *logger.Logger

	insertSQL string
	querySQL  string
}

func NewVectorRepo(conn VectorConn, table string, baseLog *logger.Logger) (VectorRepo, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: vector table name required", pkgerrors.ErrInvalidArgument)
	}
	ident := pgx.Identifier{table}.Sanitize()
	return &vectorRepo{
		conn: conn,
		log:  baseLog.With("repo", "VectorRepo", "table", table),
		insertSQL: fmt.Sprintf(
			`INSERT INTO %s (id, embedding, origntext, filename, pagenumber) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
			ident,
		),
		querySQL: fmt.Sprintf(
			`SELECT id::text, origntext, filename, pagenumber FROM %s ORDER BY embedding <-> $1 LIMIT $2`,
			ident,
		),
	}, nil
}

func (r *vectorRepo) Insert(ctx context.Context, row domain.IndexedDocumentRow) error {
	if row.ID == uuid.Nil {
		return fmt.Errorf("%w: row id required", pkgerrors.ErrInvalidArgument)
	}
	if len(row.Embedding) == 0 {
		return fmt.Errorf("%w: row %s has no embedding", pkgerrors.ErrInvalidArgument, row.ID)
	}
	tag, err := r.conn.Exec(ctx, r.insertSQL,
		row.ID.String(),
		pgvector.NewVector(row.Embedding),
		row.OriginalText,
		row.Filename,
		row.PageNumber,
	)
	if err != nil {
		return fmt.Errorf("insert vector row %s: %w", row.ID, err)
	}
	if tag.RowsAffected() == 0 {
		r.log.Debug("vector row already present", "id", row.ID.String())
	}
	return nil
}

func (r *vectorRepo) QueryNearest(ctx context.Context, vector []float32, k int) ([]domain.IndexedDocumentRow, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", pkgerrors.ErrInvalidArgument)
	}
	if k <= 0 {
		k = DefaultTopK
	}
	rows, err := r.conn.Query(ctx, r.querySQL, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IndexedDocumentRow, 0, k)
	for rows.Next() {
		var (
			rawID string
			row   domain.IndexedDocumentRow
		)
		if err := rows.Scan(&rawID, &row.OriginalText, &row.Filename, &row.PageNumber); err != nil {
			return nil, fmt.Errorf("scan nearest row: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("scan nearest row id %q: %w", rawID, err)
		}
		row.ID = id
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest rows: %w", err)
	}
	return out, nil
}
