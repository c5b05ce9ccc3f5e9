package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/pdfrag-backend/internal/observability"

	httpH "github.com/yungbote/pdfrag-backend/internal/http/handlers"
	httpMW "github.com/yungbote/pdfrag-backend/internal/http/middleware"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	RealtimeHandler *httpH.RealtimeHandler
	DocumentHandler *httpH.DocumentHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	{
		// Session streaming
		if cfg.RealtimeHandler != nil {
			api.GET("/stream", cfg.RealtimeHandler.Stream)
			api.POST("/submit", cfg.RealtimeHandler.Submit)
		}

		// Documents
		if cfg.DocumentHandler != nil {
			api.POST("/documents", cfg.DocumentHandler.Upload)
			api.GET("/documents/status", cfg.DocumentHandler.ListStatus)
			api.GET("/documents/status/failed", cfg.DocumentHandler.ListFailed)
		}
	}

	return r
}
