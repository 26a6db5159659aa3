package embedding

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.1, 0.2, 0.3},
		TotalTokens: 7,
	}}
	p := NewInstrumentedEmbedder(inner, domain.ModelText, "test-model", zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	result, err := p.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3 dims, got %d", len(result.Embedding))
	}
	if usage.TotalTokens() != 7 || !usage.Used() {
		t.Errorf("usage = %d tokens, used=%v", usage.TotalTokens(), usage.Used())
	}
}

func TestInstrumentedEmbedder_NoUsageCollector(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}, TotalTokens: 3}}
	p := NewInstrumentedEmbedder(inner, domain.ModelImage, "clip", zap.NewNop())

	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	p := NewInstrumentedEmbedder(inner, domain.ModelText, "test-model", zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	_, err := p.Embed(ctx, "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if usage.Used() {
		t.Error("failed call must not be counted as usage")
	}
}
