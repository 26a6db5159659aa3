package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/metrics"
)

// maxLoggedBody caps the provider error body written to logs.
const maxLoggedBody = 256

// Embedder is an embedding provider using the OpenAI-compatible API.
// One Embedder serves one model; image models receive data-URIs as input.
type Embedder struct {
	client     *openai.Client
	baseURL    string
	model      openai.EmbeddingModel
	kind       domain.ModelKind
	dimensions int
	user       string
	logger     *zap.Logger
}

// Config holds the embedding provider settings for a single model.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Kind    domain.ModelKind
	// Dimensions is sent as the "dimensions" request field when > 0.
	Dimensions int
	User       string
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		baseURL:    cfg.BaseURL,
		model:      openai.EmbeddingModel(cfg.Model),
		kind:       cfg.Kind,
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		logger:     logger,
	}
}

// Model returns the model name this embedder calls.
func (e *Embedder) Model() string { return string(e.model) }

// Kind returns the model family.
func (e *Embedder) Kind() domain.ModelKind { return e.kind }

// Embed implements domain.Embedder. Returns the vector and usage with transport-level metrics.
func (e *Embedder) Embed(ctx context.Context, input string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{input},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	kind, model := string(e.kind), string(e.model)
	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		errType := classifyError(ctx, err)
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(kind, model, errType).Inc()
		e.logFailure(err, errType, duration)
		return domain.EmbeddingResult{}, parseAPIError(err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(kind, model, "empty_response").Inc()
		e.logger.Warn("Embedding response carried no vector",
			zap.String("endpoint", e.baseURL),
			zap.String("model", model),
			zap.Duration("duration", duration),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(kind, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(kind, model).Observe(duration.Seconds())

	totalTokens := resp.Usage.TotalTokens
	promptTokens := resp.Usage.PromptTokens
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(kind, model, "prompt").Add(float64(promptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(kind, model, "total").Add(float64(totalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (e *Embedder) logFailure(err error, errType string, duration time.Duration) {
	fields := []zap.Field{
		zap.String("endpoint", e.baseURL),
		zap.String("model", string(e.model)),
		zap.String("error_type", errType),
		zap.Duration("duration", duration),
	}

	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &reqErr):
		fields = append(fields,
			zap.Int("status", reqErr.HTTPStatusCode),
			zap.String("body", truncateBody(reqErr.Body)),
		)
	case errors.As(err, &apiErr):
		fields = append(fields,
			zap.Int("status", apiErr.HTTPStatusCode),
			zap.String("body", truncateBody([]byte(apiErr.Message))),
		)
	default:
		fields = append(fields, zap.Error(err))
	}

	e.logger.Warn("Embedding request failed", fields...)
}

// classifyError maps a client error to the error_type metric label.
func classifyError(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	if errors.As(err, &reqErr) || errors.As(err, &apiErr) {
		return "api_error"
	}
	return "transport"
}

func truncateBody(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody])
	}
	return string(body)
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingProviderError.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = truncateBody(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
