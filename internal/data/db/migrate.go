package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/pdfrag-backend/internal/domain/documents"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&documents.DocumentStatus{},
	)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// VectorSchemaStatements returns the DDL for the vector table. The table name is
// quoted as an identifier.
func VectorSchemaStatements(table string, dimensions int) ([]string, error) {
	if table == "" {
		return nil, fmt.Errorf("vector table name required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dimensions)
	}
	ident := pgx.Identifier{table}.Sanitize()
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	embedding vector(%d) NOT NULL,
	origntext text NOT NULL,
	filename text NOT NULL,
	pagenumber integer NOT NULL
)`, ident, dimensions),
	}, nil
}

func EnsureVectorSchema(ctx context.Context, conn execer, table string, dimensions int) error {
	stmts, err := VectorSchemaStatements(table, dimensions)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("vector schema: %w", err)
		}
	}
	return nil
}
