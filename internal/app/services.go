package app

import (
	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
	"github.com/yungbote/pdfrag-backend/internal/services"
)

type Services struct {
	Tracker   services.StatusTracker
	Embedding services.EmbeddingService
	Ingestion services.IngestionService
	Documents services.DocumentService
	RAG       services.RAGQueryService
}

func wireServices(
	log *logger.Logger,
	cfg Config,
	clients Clients,
	reposet Repos,
	emitter realtime.Emitter,
	links gcp.URLResolver,
) Services {
	log.Info("Wiring services...")
	tracker := services.NewStatusTracker(log, reposet.Status)
	embedding := services.NewEmbeddingService(log, clients.OpenAI, tracker, cfg.Embedding())
	ingestion := services.NewIngestionService(log, clients.Extractor, embedding, tracker, reposet.Vectors, cfg.Ingestion())
	return Services{
		Tracker:   tracker,
		Embedding: embedding,
		Ingestion: ingestion,
		Documents: services.NewDocumentService(log, clients.Blobs, ingestion),
		RAG:       services.NewRAGQueryService(log, embedding, reposet.Vectors, clients.OpenAI, emitter, links, cfg.RAGQuery()),
	}
}
