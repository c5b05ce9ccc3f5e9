package app

import (
	"fmt"

	documentrepos "github.com/yungbote/pdfrag-backend/internal/data/repos/documents"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

type Repos struct {
	Status  documentrepos.DocumentStatusRepo
	Vectors documentrepos.VectorRepo
}

func wireRepos(log *logger.Logger, cfg Config, stores Stores) (Repos, error) {
	log.Info("Wiring repos...")
	vectors, err := documentrepos.NewVectorRepo(stores.VectorPool, cfg.Postgres.VectorTable, log)
	if err != nil {
		return Repos{}, fmt.Errorf("init vector repo: %w", err)
	}
	return Repos{
		Status:  documentrepos.NewDocumentStatusRepo(stores.Postgres.DB(), log),
		Vectors: instrumentVectorRepo(log, vectors),
	}, nil
}
