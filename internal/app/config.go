package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/pdfrag-backend/internal/data/db"
	"github.com/yungbote/pdfrag-backend/internal/observability"
	"github.com/yungbote/pdfrag-backend/internal/platform/envutil"
	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/platform/openai"
	"github.com/yungbote/pdfrag-backend/internal/realtime/bus"
	"github.com/yungbote/pdfrag-backend/internal/services"
)

type HTTPConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type PostgresConfig struct {
	Host                string `yaml:"host"`
	Port                string `yaml:"port"`
	User                string `yaml:"user"`
	Password            string `yaml:"password"`
	Name                string `yaml:"name"`
	SSLMode             string `yaml:"sslmode"`
	MaxConns            int    `yaml:"max_conns"`
	VectorTable         string `yaml:"vector_table"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
}

type OpenAIConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	ChatModel   string        `yaml:"chat_model"`
	EmbedModel  string        `yaml:"embed_model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Temperature *float64      `yaml:"temperature"`
}

type IngestConfig struct {
	MaxChunkLength   int           `yaml:"max_chunk_length"`
	ChunkInterval    time.Duration `yaml:"chunk_interval"`
	EmbedMaxAttempts int           `yaml:"embed_max_attempts"`
	EmbedRetryDelay  time.Duration `yaml:"embed_retry_delay"`
}

type QueryConfig struct {
	TopK              int           `yaml:"top_k"`
	EmitInterval      time.Duration `yaml:"emit_interval"`
	SessionBufferSize int           `yaml:"session_buffer_size"`
}

type BlobConfig struct {
	Bucket        string `yaml:"bucket"`
	Container     string `yaml:"container"`
	PublicBaseURL string `yaml:"public_base_url"`
	EmulatorHost  string `yaml:"emulator_host"`
}

type DocumentAIConfig struct {
	ProjectID        string        `yaml:"project_id"`
	Location         string        `yaml:"location"`
	ProcessorID      string        `yaml:"processor_id"`
	ProcessorVersion string        `yaml:"processor_version"`
	Timeout          time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type Config struct {
	LogMode     string `yaml:"log_mode"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`

	HTTP       HTTPConfig       `yaml:"http"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Query      QueryConfig      `yaml:"query"`
	Blob       BlobConfig       `yaml:"blob"`
	DocumentAI DocumentAIConfig `yaml:"documentai"`
	Redis      RedisConfig      `yaml:"redis"`
	Otel       OtelConfig       `yaml:"otel"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoadConfig reads .env (if present), then the environment, then the YAML file named by
// CONFIG_FILE. Keys present in the file override what the environment set.
func LoadConfig(log *logger.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Could not load .env file", "error", err)
	}

	oa := openai.ConfigFromEnv(log)
	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development", log),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "pdfrag", log),
		Environment: envutil.String("APP_ENV", "development", log),
		HTTP: HTTPConfig{
			Port:        envutil.String("PORT", "8080", log),
			CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "", log)),
		},
		Postgres: PostgresConfig{
			Host:                envutil.String("POSTGRES_HOST", "localhost", log),
			Port:                envutil.String("POSTGRES_PORT", "5432", log),
			User:                envutil.String("POSTGRES_USER", "postgres", log),
			Password:            envutil.String("POSTGRES_PASSWORD", "", nil),
			Name:                envutil.String("POSTGRES_NAME", "pdfrag", log),
			SSLMode:             envutil.String("POSTGRES_SSLMODE", "disable", log),
			MaxConns:            envutil.Int("POSTGRES_MAX_CONNS", 10, log),
			VectorTable:         envutil.String("VECTOR_TABLE_NAME", "pdf_vectors", log),
			EmbeddingDimensions: envutil.Int("EMBEDDING_DIMENSIONS", 1536, log),
		},
		OpenAI: OpenAIConfig{
			APIKey:      oa.APIKey,
			BaseURL:     oa.BaseURL,
			ChatModel:   oa.ChatModel,
			EmbedModel:  oa.EmbedModel,
			Timeout:     oa.Timeout,
			MaxRetries:  oa.MaxRetries,
			Temperature: oa.Temperature,
		},
		Ingest: IngestConfig{
			MaxChunkLength:   envutil.Int("INGEST_MAX_CHUNK_LENGTH", 7500, log),
			ChunkInterval:    envutil.Millis("INGEST_CHUNK_INTERVAL_MS", services.DefaultIngestChunkInterval, log),
			EmbedMaxAttempts: envutil.Int("EMBED_MAX_ATTEMPTS", services.DefaultEmbedMaxAttempts, log),
			EmbedRetryDelay:  envutil.Millis("EMBED_RETRY_DELAY_MS", services.DefaultEmbedRetryDelay, log),
		},
		Query: QueryConfig{
			TopK:              envutil.Int("QUERY_TOP_K", 5, log),
			EmitInterval:      envutil.Millis("STREAM_EMIT_INTERVAL_MS", services.DefaultStreamEmitInterval, log),
			SessionBufferSize: envutil.Int("SESSION_BUFFER_SIZE", 256, log),
		},
		Blob: BlobConfig{
			Bucket:        envutil.String("MATERIAL_GCS_BUCKET_NAME", "", log),
			Container:     envutil.String("BLOB_CONTAINER", "pdfs", log),
			PublicBaseURL: envutil.String("BLOB_PUBLIC_BASE_URL", "", log),
			EmulatorHost:  envutil.String("STORAGE_EMULATOR_HOST", "", log),
		},
		DocumentAI: DocumentAIConfig{
			ProjectID:        envutil.String("DOCUMENTAI_PROJECT_ID", "", log),
			Location:         envutil.String("DOCUMENTAI_LOCATION", "us", log),
			ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", "", log),
			ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", "", log),
			Timeout:          time.Duration(envutil.Int("DOCUMENTAI_TIMEOUT_SECONDS", 180, log)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", "", log),
			Password: envutil.String("REDIS_PASSWORD", "", nil),
			DB:       envutil.Int("REDIS_DB", 0, log),
			Channel:  envutil.String("REDIS_CHANNEL", "pdfrag:session-events", log),
		},
		Otel: OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false, log),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Headers:     envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "", nil),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
			SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1, log),
		},
		Metrics: MetricsConfig{
			Enabled: envutil.Bool("METRICS_ENABLED", false, log),
			Addr:    envutil.String("METRICS_ADDR", ":9090", log),
		},
	}

	if path := envutil.String("CONFIG_FILE", "", log); path != "" {
		if err := overlayYAML(&cfg, path); err != nil {
			return Config{}, err
		}
		log.Info("Config file applied", "path", path)
	}
	return cfg, nil
}

func overlayYAML(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) PostgresService() db.PostgresConfig {
	return db.PostgresConfig{
		Host:     c.Postgres.Host,
		Port:     c.Postgres.Port,
		User:     c.Postgres.User,
		Password: c.Postgres.Password,
		Name:     c.Postgres.Name,
		SSLMode:  c.Postgres.SSLMode,
		MaxConns: int32(c.Postgres.MaxConns),
	}
}

func (c Config) OpenAIClient() openai.Config {
	return openai.Config{
		APIKey:      c.OpenAI.APIKey,
		BaseURL:     c.OpenAI.BaseURL,
		ChatModel:   c.OpenAI.ChatModel,
		EmbedModel:  c.OpenAI.EmbedModel,
		Timeout:     c.OpenAI.Timeout,
		MaxRetries:  c.OpenAI.MaxRetries,
		Temperature: c.OpenAI.Temperature,
	}
}

func (c Config) Bucket() gcp.BucketConfig {
	return gcp.BucketConfig{
		Bucket:        c.Blob.Bucket,
		PublicBaseURL: c.Blob.PublicBaseURL,
		EmulatorHost:  c.Blob.EmulatorHost,
	}
}

func (c Config) Document() gcp.DocumentConfig {
	return gcp.DocumentConfig{
		ProjectID:        c.DocumentAI.ProjectID,
		Location:         c.DocumentAI.Location,
		ProcessorID:      c.DocumentAI.ProcessorID,
		ProcessorVersion: c.DocumentAI.ProcessorVersion,
		Timeout:          c.DocumentAI.Timeout,
	}
}

func (c Config) RedisBus() bus.RedisConfig {
	return bus.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Channel:  c.Redis.Channel,
	}
}

func (c Config) Tracing() observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.Otel.Enabled,
		ServiceName: c.ServiceName,
		Environment: c.Environment,
		Endpoint:    c.Otel.Endpoint,
		Headers:     c.Otel.Headers,
		Insecure:    c.Otel.Insecure,
		SampleRatio: c.Otel.SampleRatio,
	}
}

func (c Config) Embedding() services.EmbeddingConfig {
	return services.EmbeddingConfig{
		MaxAttempts: c.Ingest.EmbedMaxAttempts,
		RetryDelay:  c.Ingest.EmbedRetryDelay,
	}
}

func (c Config) Ingestion() services.IngestionConfig {
	return services.IngestionConfig{
		MaxChunkLength: c.Ingest.MaxChunkLength,
		ChunkInterval:  c.Ingest.ChunkInterval,
	}
}

func (c Config) RAGQuery() services.RAGQueryConfig {
	return services.RAGQueryConfig{
		TopK:         c.Query.TopK,
		EmitInterval: c.Query.EmitInterval,
	}
}
