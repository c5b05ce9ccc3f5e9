package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	pkgerrors "github.com/yungbote/pdfrag-backend/internal/pkg/errors"
	"github.com/yungbote/pdfrag-backend/internal/platform/ctxutil"
	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

// MaxUploadBytes bounds a single uploaded PDF.
const MaxUploadBytes = 64 << 20

var errBlobStoreDisabled = errors.New("blob store not configured")

// DocumentService stores source PDFs and hands them to the ingestion pipeline.
type DocumentService interface {
	// Upload stores the file under its base name and starts ingestion in the background.
	// It returns the object key.
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	// IngestStored downloads key from the blob store and ingests it synchronously.
	IngestStored(ctx context.Context, key string) (IngestReport, error)
	// IngestAll ingests every PDF under prefix, one after another.
	IngestAll(ctx context.Context, prefix string) ([]IngestReport, error)
	Wait(ctx context.Context) error
}

type documentService struct {
	log      *logger.Logger
	blobs    gcp.BlobStore
	ingestor IngestionService

	inflight sync.WaitGroup
}

func NewDocumentService(baseLog *logger.Logger, blobs gcp.BlobStore, ingestor IngestionService) DocumentService {
	return &documentService{
		log:      baseLog.With("service", "DocumentService"),
		blobs:    blobs,
		ingestor: ingestor,
	}
}

// ObjectKey returns the key a file is stored under, or ErrUnsupportedFile.
func ObjectKey(filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: filename required", pkgerrors.ErrInvalidArgument)
	}
	if !IsIngestible(name) {
		return "", fmt.Errorf("%w: %s", pkgerrors.ErrUnsupportedFile, name)
	}
	return name, nil
}

func (s *documentService) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	if s.blobs == nil {
		return "", errBlobStoreDisabled
	}
	key, err := ObjectKey(filename)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", key, err)
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", pkgerrors.ErrInvalidArgument, key, MaxUploadBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", pkgerrors.ErrInvalidArgument, key)
	}

	if err := s.blobs.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		s.log.Error("Blob upload failed", "key", key, "error", err)
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.log.Info("Document uploaded", "key", key, "bytes", len(data))

	runCtx := ctxutil.Detached(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if _, err := s.ingestor.Ingest(runCtx, data, key); err != nil {
			s.log.Error("Background ingest failed", "key", key, "error", err)
		}
	}()
	return key, nil
}

func (s *documentService) IngestStored(ctx context.Context, key string) (IngestReport, error) {
	if s.blobs == nil {
		return IngestReport{Filename: key}, errBlobStoreDisabled
	}
	if !IsIngestible(key) {
		return IngestReport{Filename: key}, fmt.Errorf("%w: %s", pkgerrors.ErrUnsupportedFile, key)
	}
	data, err := s.blobs.Download(ctx, key)
	if err != nil {
		return IngestReport{Filename: key}, fmt.Errorf("download %s: %w", key, err)
	}
	return s.ingestor.Ingest(ctx, data, key)
}

func (s *documentService) IngestAll(ctx context.Context, prefix string) ([]IngestReport, error) {
	if s.blobs == nil {
		return nil, errBlobStoreDisabled
	}
	keys, err := s.blobs.ListKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	out := make([]IngestReport, 0, len(keys))
	for _, key := range keys {
		if !IsIngestible(key) {
			continue
		}
		report, err := s.IngestStored(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			s.log.Error("Ingest of stored object failed", "key", key, "error", err)
			continue
		}
		out = append(out, report)
	}
	return out, nil
}

func (s *documentService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
