package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apphttp "github.com/yungbote/pdfrag-backend/internal/http"
	httpH "github.com/yungbote/pdfrag-backend/internal/http/handlers"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
)

type waitRecorder struct {
	waited chan error
}

func (w *waitRecorder) Submit(context.Context, string, string) {}
func (w *waitRecorder) Answer(context.Context, string, string) {}

func (w *waitRecorder) Wait(ctx context.Context) error {
	w.waited <- ctx.Err()
	return nil
}

func TestCloseDrainsWithOpenStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	rag := &waitRecorder{waited: make(chan error, 1)}
	a := &App{Log: log, Registry: realtime.NewRegistry(log, 4)}
	a.Services.RAG = rag
	a.setServer(apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		RealtimeHandler: httpH.NewRealtimeHandler(log, a.Registry, rag),
	}))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = a.Server.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/api/stream?sessionId=s1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if s, ok := a.Registry.Get("s1"); ok && s.SubscriberCount() == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for subscriber")
		}
		time.Sleep(10 * time.Millisecond)
	}

	start := time.Now()
	a.Close()
	if took := time.Since(start); took > 5*time.Second {
		t.Fatalf("close blocked on open stream: took=%s", took)
	}
	select {
	case err := <-rag.waited:
		if err != nil {
			t.Fatalf("query drain ctx: want=nil got=%v", err)
		}
	default:
		t.Fatalf("query drain never ran")
	}
}
