package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	apphttp "github.com/yungbote/pdfrag-backend/internal/http"
	"github.com/yungbote/pdfrag-backend/internal/observability"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
	"github.com/yungbote/pdfrag-backend/internal/realtime/bus"
)

const (
	httpShutdownTimeout  = 10 * time.Second
	queryDrainTimeout    = 20 * time.Second
	ingestDrainTimeout   = time.Minute
	traceShutdownTimeout = 5 * time.Second
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Stores   Stores
	Clients  Clients
	Repos    Repos
	Services Services
	Registry *realtime.Registry
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	busEmitter    *bus.Emitter
	shutdownTrace func(context.Context) error
	cancel        context.CancelFunc
}

// Bootstrap creates the logger and loads configuration.
func Bootstrap() (*logger.Logger, Config, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, Config{}, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, Config{}, err
	}
	return log, cfg, nil
}

func New(ctx context.Context) (*App, error) {
	log, cfg, err := Bootstrap()
	if err != nil {
		return nil, err
	}
	a := &App{Log: log, Cfg: cfg}
	a.shutdownTrace = observability.InitOTel(ctx, log, cfg.Tracing())
	a.Metrics = observability.Init(log, cfg.Metrics.Enabled)

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	stores, err := wireStores(ctx, a.Log, a.Cfg)
	if err != nil {
		return err
	}
	a.Stores = stores
	if err := migrate(ctx, a.Log, a.Cfg, stores); err != nil {
		return err
	}

	clients, err := wireClients(a.Log, a.Cfg)
	if err != nil {
		return err
	}
	a.Clients = clients

	reposet, err := wireRepos(a.Log, a.Cfg, stores)
	if err != nil {
		return err
	}
	a.Repos = reposet

	a.Registry = realtime.NewRegistry(a.Log, a.Cfg.Query.SessionBufferSize)
	var emitter realtime.Emitter = a.Registry
	if clients.Bus != nil {
		a.busEmitter = bus.NewEmitter(a.Log, clients.Bus, a.Registry)
		emitter = a.busEmitter
	}

	a.Services = wireServices(a.Log, a.Cfg, clients, reposet, emitter, clients.linkResolver(a.Cfg))
	a.setServer(wireServer(a.Log, a.Cfg, wireHandlers(a.Log, stores, a.Services, a.Registry)))
	return nil
}

// setServer installs srv. Open session streams only return once their session closes,
// so the registry is closed as soon as shutdown begins.
func (a *App) setServer(srv *apphttp.Server) {
	a.Server = srv
	if a.Registry != nil {
		srv.OnShutdown(a.Registry.Close)
	}
}

// Start runs background workers: the metrics endpoint and, when Redis is set, the
// cross-instance forwarder.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)
		a.Metrics.StartPoolCollector(ctx, a.Stores.VectorPool, 0)
	}

	if a.busEmitter != nil {
		if err := a.busEmitter.Forward(ctx); err != nil {
			return fmt.Errorf("start session forwarder: %w", err)
		}
		a.Log.Info("Session forwarder started", "channel", a.Cfg.Redis.Channel)
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	addr := ":" + a.Cfg.HTTP.Port
	a.Log.Info("Listening", "addr", addr)
	return a.Server.Run(addr)
}

// Close stops intake first, then drains in-flight work, then releases clients. Each
// step gets its own deadline so a slow one cannot starve the next.
func (a *App) Close() {
	if a == nil {
		return
	}

	if a.Server != nil {
		withTimeout(httpShutdownTimeout, func(ctx context.Context) {
			if err := a.Server.Shutdown(ctx); err != nil {
				a.Log.Warn("HTTP shutdown failed", "error", err)
			}
		})
	}
	if a.Registry != nil {
		a.Registry.Close()
	}
	if a.Services.RAG != nil {
		withTimeout(queryDrainTimeout, func(ctx context.Context) {
			if err := a.Services.RAG.Wait(ctx); err != nil {
				a.Log.Warn("Pending queries abandoned", "error", err)
			}
		})
	}
	if a.Services.Documents != nil {
		withTimeout(ingestDrainTimeout, func(ctx context.Context) {
			if err := a.Services.Documents.Wait(ctx); err != nil {
				a.Log.Warn("Pending ingests abandoned, chunks may be left mid-pipeline", "error", err)
			}
		})
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close(a.Log)
	a.Stores.Close(a.Log)
	if a.shutdownTrace != nil {
		withTimeout(traceShutdownTimeout, func(ctx context.Context) {
			if err := a.shutdownTrace(ctx); err != nil {
				a.Log.Warn("Trace shutdown failed", "error", err)
			}
		})
	}
	a.Log.Sync()
}

func withTimeout(d time.Duration, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	fn(ctx)
}

// Migrate applies the schema and exits.
func Migrate(ctx context.Context) error {
	log, cfg, err := Bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	stores, err := wireStores(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer stores.Close(log)
	return migrate(ctx, log, cfg, stores)
}
