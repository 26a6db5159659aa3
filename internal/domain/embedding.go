package domain

import (
	"context"
	"fmt"
)

// ModelKind tells which embedding model family produced (or should produce) a vector.
type ModelKind string

const (
	// ModelText is a text-only embedding model.
	ModelText ModelKind = "text"
	// ModelImage is an image (cross-modal) embedding model. Text sent to it is cross-modal input.
	ModelImage ModelKind = "image"
)

// IsValid reports whether the kind is a known model family.
func (k ModelKind) IsValid() bool {
	return k == ModelText || k == ModelImage
}

// ParseModelKind converts a config or request value into a ModelKind.
func ParseModelKind(s string) (ModelKind, error) {
	k := ModelKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown model kind %q", s)
	}
	return k, nil
}

// Embedder is the vectorization contract for a single model.
// Input is plain text or, for image models, a data-URI.
type Embedder interface {
	Embed(ctx context.Context, input string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the raw provider vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedding is a complete vector for one input. It is never partially populated.
type Embedding struct {
	Values []float32
	Kind   ModelKind
	Model  string
}

// NewEmbedding validates a provider vector. expectedDim <= 0 skips the dimension check.
func NewEmbedding(values []float32, kind ModelKind, model string, expectedDim int) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, fmt.Errorf("empty vector from %s: %w", model, ErrEmbeddingProviderError)
	}
	if expectedDim > 0 && len(values) != expectedDim {
		return Embedding{}, fmt.Errorf("%s returned %d dimensions, want %d: %w",
			model, len(values), expectedDim, ErrVectorDimMismatch)
	}
	return Embedding{Values: values, Kind: kind, Model: model}, nil
}

// Dimensions returns the vector length.
func (e Embedding) Dimensions() int { return len(e.Values) }
