package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	"github.com/yungbote/pdfrag-backend/internal/http/response"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/services"
)

type DocumentHandlerDeps struct {
	Log       *logger.Logger
	Documents services.DocumentService
	Tracker   services.StatusTracker
}

type DocumentHandler struct {
	log       *logger.Logger
	documents services.DocumentService
	tracker   services.StatusTracker
}

func NewDocumentHandler(deps DocumentHandlerDeps) *DocumentHandler {
	return &DocumentHandler{
		log:       deps.Log.With("handler", "DocumentHandler"),
		documents: deps.Documents,
		tracker:   deps.Tracker,
	}
}

// POST /api/documents
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", errors.New("multipart field \"file\" required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return
	}
	defer f.Close()

	key, err := h.documents.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		h.log.Warn("Document upload rejected", "filename", fh.Filename, "error", err)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"key": key, "status": "ingesting"})
}

// GET /api/documents/status
func (h *DocumentHandler) ListStatus(c *gin.Context) {
	h.respondRecords(c, h.tracker.ListAll)
}

// GET /api/documents/status/failed
func (h *DocumentHandler) ListFailed(c *gin.Context) {
	h.respondRecords(c, h.tracker.ListFailed)
}

func (h *DocumentHandler) respondRecords(c *gin.Context, list func(ctx context.Context) ([]*domain.DocumentStatus, error)) {
	records, err := list(c.Request.Context())
	if err != nil {
		h.log.Error("List status records failed", "error", err)
		response.RespondServiceError(c, err)
		return
	}
	if records == nil {
		records = []*domain.DocumentStatus{}
	}
	response.RespondOK(c, gin.H{"records": records})
}
