package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

var (
	newBucketService = gcp.NewBucketService
	newDocumentAI    = gcp.NewDocument
)

// errProviderDisabled marks an optional provider left unconfigured.
var errProviderDisabled = errors.New("provider not configured")

type ProviderBootstrapErrorCode string

const (
	ProviderBootstrapErrorMissingBucket        ProviderBootstrapErrorCode = "missing_bucket"
	ProviderBootstrapErrorInvalidPublicBaseURL ProviderBootstrapErrorCode = "invalid_public_base_url"
	ProviderBootstrapErrorMissingProcessor     ProviderBootstrapErrorCode = "missing_processor"
	ProviderBootstrapErrorConnectFailed        ProviderBootstrapErrorCode = "connect_failed"
)

type ProviderBootstrapError struct {
	Code     ProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *ProviderBootstrapError) Error() string {
	if e == nil {
		return "provider bootstrap failed"
	}
	return fmt.Sprintf("%s bootstrap failed (code=%s): %v", e.Provider, e.Code, e.Cause)
}

func (e *ProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBlobStore opens the PDF bucket. Without a bucket name it returns an error
// wrapping errProviderDisabled.
func resolveBlobStore(log *logger.Logger, cfg Config) (gcp.BlobStore, error) {
	bucketCfg := cfg.Bucket()
	if strings.TrimSpace(bucketCfg.Bucket) == "" {
		return nil, &ProviderBootstrapError{
			Code:     ProviderBootstrapErrorMissingBucket,
			Provider: "blob_store",
			Cause:    errProviderDisabled,
		}
	}
	log.Info("Selecting blob store", "bucket", bucketCfg.Bucket, "emulator_host", bucketCfg.EmulatorHost)

	store, err := newBucketService(log, bucketCfg)
	if err != nil {
		classified := classifyBlobStoreError(err)
		log.Error("Blob store bootstrap failed", "error_code", classified.Code, "error", classified)
		return nil, classified
	}
	return store, nil
}

func classifyBlobStoreError(err error) *ProviderBootstrapError {
	code := ProviderBootstrapErrorConnectFailed
	if strings.Contains(err.Error(), "BLOB_PUBLIC_BASE_URL") {
		code = ProviderBootstrapErrorInvalidPublicBaseURL
	}
	return &ProviderBootstrapError{Code: code, Provider: "blob_store", Cause: err}
}

// resolvePageExtractor opens the Document AI processor. Without a processor id it
// returns an error wrapping errProviderDisabled.
func resolvePageExtractor(log *logger.Logger, cfg Config) (gcp.PageExtractor, error) {
	docCfg := cfg.Document()
	if strings.TrimSpace(docCfg.ProjectID) == "" || strings.TrimSpace(docCfg.ProcessorID) == "" {
		return nil, &ProviderBootstrapError{
			Code:     ProviderBootstrapErrorMissingProcessor,
			Provider: "document_ai",
			Cause:    errProviderDisabled,
		}
	}
	extractor, err := newDocumentAI(log, docCfg)
	if err != nil {
		log.Error("Document AI bootstrap failed", "error", err)
		return nil, &ProviderBootstrapError{Code: ProviderBootstrapErrorConnectFailed, Provider: "document_ai", Cause: err}
	}
	return extractor, nil
}

func bootstrapErrorCode(err error) ProviderBootstrapErrorCode {
	var bootstrapErr *ProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return ProviderBootstrapErrorConnectFailed
}
