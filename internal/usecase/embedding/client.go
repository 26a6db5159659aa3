package embedding

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecmatch/internal/domain"
)

// DefaultTimeout is the per-call budget for one provider request.
const DefaultTimeout = 30 * time.Second

// Degradation reasons reported in Outcome.Reason and the degraded metric.
const (
	ReasonDisabled          = "disabled"
	ReasonEmptyInput        = "empty_input"
	ReasonUnknownModel      = "unknown_model"
	ReasonInvalidImage      = "invalid_image"
	ReasonTimeout           = "timeout"
	ReasonProviderError     = "provider_error"
	ReasonDimensionMismatch = "dimension_mismatch"
)

const defaultImageMIME = "image/jpeg"

// ErrInvalidImage signals an image payload that is not valid base64.
var ErrInvalidImage = errors.New("invalid base64 image")

// Model is one configured embedding model.
type Model struct {
	Embedder   domain.Embedder
	Name       string
	Dimensions int // expected vector length, 0 = unchecked
	MaxWords   int // leading-word budget for text input, 0 = unlimited
}

// Config controls the client behavior.
type Config struct {
	Enabled bool
	Timeout time.Duration
}

// Metrics are the counters the client reports to. Nil vecs are skipped.
type Metrics struct {
	Degraded    *prometheus.CounterVec // labels: kind, reason
	Truncations *prometheus.CounterVec // labels: kind
}

// Client turns text and images into embeddings. It never fails hard:
// every problem ends in a Degraded outcome so callers can continue without vectors.
type Client struct {
	cfg     Config
	models  map[domain.ModelKind]Model
	metrics Metrics
	logger  *zap.Logger
}

// NewClient creates an embedding client over the configured models.
func NewClient(cfg Config, models map[domain.ModelKind]Model, m Metrics, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg, models: models, metrics: m, logger: logger}
}

// Enabled reports whether embeddings of the given kind can be requested at all.
func (c *Client) Enabled(kind domain.ModelKind) bool {
	if !c.cfg.Enabled {
		return false
	}
	_, ok := c.models[kind]
	return ok
}

// EmbedText embeds text with the model of the given kind.
// Text longer than the model's word budget is cut to its leading words.
func (c *Client) EmbedText(ctx context.Context, text string, kind domain.ModelKind) domain.Outcome[domain.Embedding] {
	m, reason := c.model(kind)
	if reason != "" {
		return c.degrade(kind, reason, nil)
	}
	if strings.TrimSpace(text) == "" {
		return c.degrade(kind, ReasonEmptyInput, domain.ErrEmptyInput)
	}

	if truncated, ok := TruncateWords(text, m.MaxWords); ok {
		c.logger.Debug("Truncated input to model word budget",
			zap.String("model", m.Name),
			zap.Int("max_words", m.MaxWords),
		)
		if c.metrics.Truncations != nil {
			c.metrics.Truncations.WithLabelValues(string(kind)).Inc()
		}
		text = truncated
	}

	return c.embed(ctx, m, kind, text)
}

// EmbedImage embeds a base64-encoded image with the model of the given kind.
// Raw base64 is wrapped into a data-URI; an input that already is a data-URI is sent as is.
func (c *Client) EmbedImage(ctx context.Context, image string, kind domain.ModelKind) domain.Outcome[domain.Embedding] {
	m, reason := c.model(kind)
	if reason != "" {
		return c.degrade(kind, reason, nil)
	}
	image = strings.TrimSpace(image)
	if image == "" {
		return c.degrade(kind, ReasonEmptyInput, domain.ErrEmptyInput)
	}

	uri, err := DataURI(image)
	if err != nil {
		return c.degrade(kind, ReasonInvalidImage, err)
	}

	return c.embed(ctx, m, kind, uri)
}

func (c *Client) model(kind domain.ModelKind) (Model, string) {
	if !c.cfg.Enabled {
		return Model{}, ReasonDisabled
	}
	m, ok := c.models[kind]
	if !ok || m.Embedder == nil {
		return Model{}, ReasonUnknownModel
	}
	return m, ""
}

func (c *Client) embed(ctx context.Context, m Model, kind domain.ModelKind, input string) domain.Outcome[domain.Embedding] {
	// Each call gets its own budget; nothing is shared with earlier calls.
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res, err := m.Embedder.Embed(callCtx, input)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return c.degrade(kind, ReasonTimeout, err)
		}
		return c.degrade(kind, ReasonProviderError, err)
	}

	emb, err := domain.NewEmbedding(res.Embedding, kind, m.Name, m.Dimensions)
	if err != nil {
		if errors.Is(err, domain.ErrVectorDimMismatch) {
			return c.degrade(kind, ReasonDimensionMismatch, err)
		}
		return c.degrade(kind, ReasonProviderError, err)
	}
	return domain.Ok(emb)
}

func (c *Client) degrade(kind domain.ModelKind, reason string, cause error) domain.Outcome[domain.Embedding] {
	if c.metrics.Degraded != nil {
		c.metrics.Degraded.WithLabelValues(string(kind), reason).Inc()
	}
	fields := []zap.Field{zap.String("kind", string(kind)), zap.String("reason", reason)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	switch reason {
	case ReasonDisabled, ReasonEmptyInput:
		c.logger.Debug("No embedding", fields...)
	default:
		c.logger.Warn("No embedding", fields...)
	}
	return domain.Degraded[domain.Embedding](reason, cause)
}

// TruncateWords keeps the first maxWords whitespace-separated words of text.
// Reports false when text already fits (or maxWords <= 0).
func TruncateWords(text string, maxWords int) (string, bool) {
	if maxWords <= 0 {
		return text, false
	}
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text, false
	}
	return strings.Join(words[:maxWords], " "), true
}

// DataURI wraps a base64 payload as data:<mime>;base64,<payload>.
// The mime type is sniffed from the decoded header bytes and defaults to image/jpeg.
func DataURI(image string) (string, error) {
	if strings.HasPrefix(image, "data:") {
		return image, nil
	}

	// http.DetectContentType reads at most 512 bytes; 684 base64 chars cover them.
	head := image
	if len(head) > 684 {
		head = head[:684]
	}
	head = head[:len(head)-len(head)%4]
	raw, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if len(raw) == 0 {
		return "", ErrInvalidImage
	}

	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		mime = defaultImageMIME
	}
	return "data:" + mime + ";base64," + image, nil
}
