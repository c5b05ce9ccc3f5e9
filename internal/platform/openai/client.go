package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/pdfrag-backend/internal/platform/ctxutil"
	"github.com/yungbote/pdfrag-backend/internal/platform/envutil"
	"github.com/yungbote/pdfrag-backend/internal/platform/httpx"
	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

// Usage is the token accounting block of an API response. Present is false when the
// response carried no usage block at all.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Present          bool
}

type EmbedResult struct {
	Vector []float32
	Model  string
	Usage  Usage
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the OpenAI API client used by the ingestion and query paths.
type Client interface {
	Embed(ctx context.Context, input string) (EmbedResult, error)

	// StreamChat streams chat completion deltas to onDelta in arrival order and
	// returns the full text. A non-nil error from onDelta aborts the stream.
	StreamChat(ctx context.Context, messages []ChatMessage, onDelta func(delta string) error) (string, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
	// MaxRetries bounds retries of a chat stream's opening request. Embed never
	// retries at this level; its callers own the attempt budget.
	MaxRetries  int
	Temperature *float64
}

func ConfigFromEnv(log *logger.Logger) Config {
	cfg := Config{
		APIKey:     envutil.String("OPENAI_API_KEY", "", nil),
		BaseURL:    envutil.String("OPENAI_BASE_URL", "https://api.openai.com", log),
		ChatModel:  envutil.String("OPENAI_MODEL", "gpt-4o-mini", log),
		EmbedModel: envutil.String("OPENAI_EMBED_MODEL", "text-embedding-ada-002", log),
		Timeout:    time.Duration(envutil.Int("OPENAI_TIMEOUT_SECONDS", 120, log)) * time.Second,
		MaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 0, log),
	}
	if v := envutil.Float("OPENAI_TEMPERATURE", -1, log); v >= 0 {
		cfg.Temperature = &v
	}
	return cfg
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	maxRetries int

	temperature *float64
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	c := &client{
		log:         log.With("client", "OpenAIClient"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		chatModel:   strings.TrimSpace(cfg.ChatModel),
		embedModel:  strings.TrimSpace(cfg.EmbedModel),
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		temperature: cfg.Temperature,
	}
	c.log.Info("OpenAI client initialized", "base_url", baseURL, "chat_model", c.chatModel, "embed_model", c.embedModel, "max_retries", maxRetries)
	return c, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do returns the raw body so callers can pull optional blocks (usage) out of it.
func (c *client) do(ctx context.Context, retries int, method, path string, body any, out any) ([]byte, error) {
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out != nil {
				if uErr := json.Unmarshal(raw, out); uErr != nil {
					return raw, fmt.Errorf("openai decode error: %w; raw=%s", uErr, truncate(string(raw), 512))
				}
			}
			return raw, nil
		}
		if !httpx.IsRetryableError(err) || attempt == retries {
			return raw, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", retries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("unreachable retry loop")
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, input string) (EmbedResult, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		s = " "
	}
	req := embeddingsRequest{Model: c.embedModel, Input: []string{s}}

	var resp embeddingsResponse
	// one request per call: EmbeddingService bounds the attempts
	raw, err := c.do(ctx, 0, http.MethodPost, "/v1/embeddings", req, &resp)
	if err != nil {
		return EmbedResult{}, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return EmbedResult{}, fmt.Errorf("openai embeddings: empty vector model=%s", c.embedModel)
	}
	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	model := resp.Model
	if model == "" {
		model = c.embedModel
	}
	return EmbedResult{Vector: vec, Model: model, Usage: extractUsageFromRaw(raw)}, nil
}

// -------------------- Chat completions (streaming) --------------------

// openStream retries the opening request up to maxRetries times. Nothing has been
// delivered to the caller yet, so a retry cannot duplicate deltas.
func (c *client) openStream(ctx context.Context, body chatCompletionsRequest) (*http.Response, error) {
	backoff := 500 * time.Millisecond
	for attempt := 0; ; attempt++ {
		req, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
			_ = resp.Body.Close()
			err = &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if !httpx.IsRetryableError(err) || attempt >= c.maxRetries {
			return nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI stream open retrying", "attempt", attempt+1, "max_retries", c.maxRetries, "sleep", sleepFor.String(), "error", err.Error())
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error json.RawMessage `json:"error,omitempty"`
}

func (c *client) StreamChat(ctx context.Context, messages []ChatMessage, onDelta func(delta string) error) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("openai chat: no messages")
	}
	body := chatCompletionsRequest{
		Model:       c.chatModel,
		Messages:    messages,
		Stream:      true,
		Temperature: c.temperature,
	}
	start := time.Now()
	resp, err := c.openStream(ctx, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if len(chunk.Error) > 0 && string(chunk.Error) != "null" {
			return fmt.Errorf("openai stream error: %s", string(chunk.Error))
		}
		for _, choice := range chunk.Choices {
			d := strings.TrimRight(choice.Delta.Content, "\u0000")
			if d == "" {
				continue
			}
			full.WriteString(d)
			if onDelta != nil {
				if err := onDelta(d); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return full.String(), err
	}
	c.log.Debug("OpenAI chat stream finished",
		"model", c.chatModel,
		"duration_ms", time.Since(start).Milliseconds(),
		"estimated_completion_tokens", estimateTokens(full.String()),
	)
	return full.String(), nil
}

// -------------------- helpers --------------------

// IsStatus reports whether err carries the given HTTP status from the API.
func IsStatus(err error, status int) bool {
	var httpErr *openAIHTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

func extractUsageFromRaw(raw []byte) Usage {
	if len(raw) == 0 {
		return Usage{}
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Usage{}
	}
	usage, ok := payload["usage"].(map[string]any)
	if !ok {
		return Usage{}
	}
	u := Usage{
		PromptTokens:     intFromAny(usage["prompt_tokens"]),
		CompletionTokens: intFromAny(usage["completion_tokens"]),
		TotalTokens:      intFromAny(usage["total_tokens"]),
		Present:          true,
	}
	if u.PromptTokens == 0 {
		u.PromptTokens = intFromAny(usage["input_tokens"])
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func intFromAny(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return 0
}

func estimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(text))) / 4.0))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
