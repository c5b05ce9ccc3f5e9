package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yungbote/pdfrag-backend/internal/data/db"
	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/localpdf"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/platform/openai"
	"github.com/yungbote/pdfrag-backend/internal/realtime/bus"
)

// Stores are the two Postgres handles: gorm for status records, pgx for vectors.
type Stores struct {
	Postgres   *db.PostgresService
	VectorPool *pgxpool.Pool
}

func wireStores(ctx context.Context, log *logger.Logger, cfg Config) (Stores, error) {
	log.Info("Wiring stores...")
	pg, err := db.NewPostgresService(log, cfg.PostgresService())
	if err != nil {
		return Stores{}, fmt.Errorf("init postgres: %w", err)
	}
	pool, err := db.NewVectorPool(ctx, log, cfg.PostgresService())
	if err != nil {
		_ = pg.Close()
		return Stores{}, fmt.Errorf("init vector pool: %w", err)
	}
	return Stores{Postgres: pg, VectorPool: pool}, nil
}

func (s Stores) Close(log *logger.Logger) {
	if s.VectorPool != nil {
		s.VectorPool.Close()
	}
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			log.Warn("Postgres close failed", "error", err)
		}
	}
}

// migrate creates the status table and the vector table.
func migrate(ctx context.Context, log *logger.Logger, cfg Config, stores Stores) error {
	if err := db.AutoMigrateAll(stores.Postgres.DB()); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	if err := db.EnsureVectorSchema(ctx, stores.VectorPool, cfg.Postgres.VectorTable, cfg.Postgres.EmbeddingDimensions); err != nil {
		return err
	}
	log.Info("Schema ready", "vector_table", cfg.Postgres.VectorTable, "dimensions", cfg.Postgres.EmbeddingDimensions)
	return nil
}

type Clients struct {
	OpenAI    openai.Client
	Blobs     gcp.BlobStore
	Extractor gcp.PageExtractor
	Bus       bus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Openai
	oa, err := openai.NewClient(log, cfg.OpenAIClient())
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	out := Clients{OpenAI: oa}

	// Gcs
	blobs, err := resolveBlobStore(log, cfg)
	switch {
	case errors.Is(err, errProviderDisabled):
		log.Warn("Blob store disabled; uploads are rejected", "error_code", bootstrapErrorCode(err))
	case err != nil:
		return Clients{}, err
	default:
		out.Blobs = blobs
	}

	// Document AI
	extractor, err := resolvePageExtractor(log, cfg)
	switch {
	case errors.Is(err, errProviderDisabled):
		log.Info("Document AI not configured; using local PDF text extraction", "error_code", bootstrapErrorCode(err))
		out.Extractor = localpdf.NewExtractor(log)
	case err != nil:
		out.Close(log)
		return Clients{}, err
	default:
		out.Extractor = extractor
	}

	// Redis
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := bus.NewRedisBus(log, cfg.RedisBus())
		if err != nil {
			out.Close(log)
			return Clients{}, fmt.Errorf("init redis session bus: %w", err)
		}
		out.Bus = b
	}
	return out, nil
}

// linkResolver prefers the live bucket and falls back to static URLs, so links
// still render when uploads are disabled.
func (c Clients) linkResolver(cfg Config) gcp.URLResolver {
	if c.Blobs != nil {
		return c.Blobs
	}
	return gcp.StaticURLResolver{BaseURL: cfg.Blob.PublicBaseURL, Container: cfg.Blob.Container}
}

func (c Clients) Close(log *logger.Logger) {
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			log.Warn("Redis bus close failed", "error", err)
		}
	}
	if c.Blobs != nil {
		if err := c.Blobs.Close(); err != nil {
			log.Warn("Blob store close failed", "error", err)
		}
	}
	if c.Extractor != nil {
		if err := c.Extractor.Close(); err != nil {
			log.Warn("Document AI close failed", "error", err)
		}
	}
}
