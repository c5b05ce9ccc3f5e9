package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pdfrag-backend/internal/http/response"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
	"github.com/yungbote/pdfrag-backend/internal/services"
)

const (
	defaultHeartbeat = 15 * time.Second
	maxSessionIDLen  = 128
	maxSubmitBytes   = 64 << 10
)

type RealtimeHandler struct {
	log       *logger.Logger
	registry  *realtime.Registry
	rag       services.RAGQueryService
	heartbeat time.Duration
}

func NewRealtimeHandler(log *logger.Logger, registry *realtime.Registry, rag services.RAGQueryService) *RealtimeHandler {
	return &RealtimeHandler{
		log:       log.With("handler", "RealtimeHandler"),
		registry:  registry,
		rag:       rag,
		heartbeat: defaultHeartbeat,
	}
}

// sessionIDFromQuery accepts sessionId, and userId for older clients.
func sessionIDFromQuery(c *gin.Context) (string, error) {
	id := strings.TrimSpace(c.Query("sessionId"))
	if id == "" {
		id = strings.TrimSpace(c.Query("userId"))
	}
	if id == "" {
		return "", errors.New("missing sessionId")
	}
	if len(id) > maxSessionIDLen {
		return "", errors.New("sessionId too long")
	}
	return id, nil
}

// Stream opens an SSE stream for a session. Each event is written as one data frame.
// The subscriber is released when the client goes away.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	sessionID, err := sessionIDFromQuery(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session", err)
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", errors.New("streaming unsupported"))
		return
	}

	session := h.registry.GetOrCreate(sessionID)
	sub := session.Subscribe()
	defer h.registry.Release(sessionID, sub)
	h.log.Info("Session stream open", "session_id", sessionID)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("Session stream closed by client", "session_id", sessionID)
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				h.log.Debug("Session terminated", "session_id", sessionID)
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Submit accepts the raw request body as the query and answers it on the session
// stream. It returns 202 before any work is done.
func (h *RealtimeHandler) Submit(c *gin.Context) {
	sessionID, err := sessionIDFromQuery(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session", err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSubmitBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(body) > maxSubmitBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "body_too_large", errors.New("query too long"))
		return
	}
	input := strings.TrimSpace(string(body))
	if input == "" {
		response.RespondError(c, http.StatusBadRequest, "empty_query", errors.New("query is empty"))
		return
	}

	h.rag.Submit(c.Request.Context(), input, sessionID)
	response.RespondAccepted(c, gin.H{"sessionId": sessionID, "status": "accepted"})
}
