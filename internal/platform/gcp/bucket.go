package gcp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

// BlobStore holds the source PDFs that chunk deep links point at.
type BlobStore interface {
	URLResolver
	Upload(ctx context.Context, key string, r io.Reader) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// URLResolver maps an object key (the ingested filename) to its public URL.
type URLResolver interface {
	PublicURL(key string) string
}

type BucketConfig struct {
	Bucket        string
	PublicBaseURL string
	EmulatorHost  string
}

// StaticURLResolver builds public URLs without a storage client, for processes that
// only render links.
type StaticURLResolver struct {
	BaseURL   string
	Container string
}

func (r StaticURLResolver) PublicURL(key string) string {
	return publicObjectURL(r.BaseURL, r.Container, key)
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucket        string
	publicBaseURL string
}

func NewBucketService(log *logger.Logger, cfg BucketConfig) (BlobStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("missing env var MATERIAL_GCS_BUCKET_NAME")
	}
	publicBase, err := resolvePublicBaseURL(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var opts []option.ClientOption
	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	if emulator != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		opts = []option.ClientOption{option.WithoutAuthentication()}
	} else {
		opts = credentialOptions(option.WithScopes(storage.ScopeReadWrite))
	}
	st, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog := log.With("service", "BucketService")
	serviceLog.Info("Object storage initialized", "bucket", bucket, "emulator_host", emulator, "public_base_url", publicBase)
	return &bucketService{
		log:           serviceLog,
		storageClient: st,
		bucket:        bucket,
		publicBaseURL: publicBase,
	}, nil
}

func resolvePublicBaseURL(cfg BucketConfig) (string, error) {
	raw := strings.TrimSpace(cfg.PublicBaseURL)
	if raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return "", fmt.Errorf("invalid BLOB_PUBLIC_BASE_URL=%q; expected absolute URL like https://storage.googleapis.com", raw)
		}
		return strings.TrimRight(raw, "/"), nil
	}
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		return strings.TrimRight(host, "/"), nil
	}
	return "", nil
}

func (bs *bucketService) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}

func (bs *bucketService) Upload(ctx context.Context, key string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	bs.log.Debug("Object uploaded", "bucket", bs.bucket, "key", key)
	return nil
}

func (bs *bucketService) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	rc, err := bs.storageClient.Bucket(bs.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (bs *bucketService) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	it := bs.storageClient.Bucket(bs.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (bs *bucketService) PublicURL(key string) string {
	return publicObjectURL(bs.publicBaseURL, bs.bucket, key)
}

func publicObjectURL(base, container, key string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	container = strings.Trim(strings.TrimSpace(container), "/")
	if container == "" {
		return base + "/" + strings.Join(parts, "/")
	}
	return base + "/" + container + "/" + strings.Join(parts, "/")
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain; charset=utf-8"
	default:
		return ""
	}
}
