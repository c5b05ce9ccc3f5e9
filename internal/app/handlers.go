package app

import (
	httpH "github.com/yungbote/pdfrag-backend/internal/http/handlers"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Realtime *httpH.RealtimeHandler
	Document *httpH.DocumentHandler
}

func wireHandlers(log *logger.Logger, stores Stores, serviceset Services, registry *realtime.Registry) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Pinger{}
	if stores.Postgres != nil {
		checks["postgres"] = stores.Postgres.Ping
	}
	if stores.VectorPool != nil {
		checks["vectors"] = stores.VectorPool.Ping
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(checks),
		Realtime: httpH.NewRealtimeHandler(log, registry, serviceset.RAG),
		Document: httpH.NewDocumentHandler(httpH.DocumentHandlerDeps{
			Log:       log,
			Documents: serviceset.Documents,
			Tracker:   serviceset.Tracker,
		}),
	}
}
