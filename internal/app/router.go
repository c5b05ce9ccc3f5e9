package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/yungbote/pdfrag-backend/internal/http"
	"github.com/yungbote/pdfrag-backend/internal/observability"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, handlerset Handlers) *apphttp.Server {
	if cfg.LogMode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.ServiceName
	}
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		Metrics:         observability.Current(),
		HealthHandler:   handlerset.Health,
		RealtimeHandler: handlerset.Realtime,
		DocumentHandler: handlerset.Document,
	})
}
