package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestOutcome_States(t *testing.T) {
	ok := Ok(42)
	if v, usable := ok.Value(); !usable || v != 42 {
		t.Errorf("Ok.Value() = %d, %v", v, usable)
	}
	if ok.State() != OutcomeOK || ok.Reason() != "" || ok.Err() != nil {
		t.Errorf("Ok state = %v reason = %q err = %v", ok.State(), ok.Reason(), ok.Err())
	}

	cause := errors.New("boom")
	deg := Degraded[int]("provider timeout", cause)
	if _, usable := deg.Value(); usable {
		t.Error("Degraded.Value() reported usable")
	}
	if deg.IsOK() || deg.State() != OutcomeDegraded {
		t.Errorf("Degraded state = %v", deg.State())
	}
	if deg.Reason() != "provider timeout" || !errors.Is(deg.Err(), cause) {
		t.Errorf("Degraded reason = %q err = %v", deg.Reason(), deg.Err())
	}

	fatal := Fatal[string](cause)
	if fatal.State() != OutcomeFatal || fatal.Reason() != "boom" {
		t.Errorf("Fatal state = %v reason = %q", fatal.State(), fatal.Reason())
	}
}

func TestOutcomeState_String(t *testing.T) {
	tests := map[OutcomeState]string{
		OutcomeOK:        "ok",
		OutcomeDegraded:  "degraded",
		OutcomeFatal:     "fatal",
		OutcomeState(99): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestNewEmbedding(t *testing.T) {
	e, err := NewEmbedding([]float32{1, 2, 3}, ModelText, "m", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Dimensions() != 3 || e.Kind != ModelText || e.Model != "m" {
		t.Errorf("embedding = %+v", e)
	}

	if _, err := NewEmbedding([]float32{1, 2, 3}, ModelText, "m", 0); err != nil {
		t.Errorf("expectedDim 0 should skip check: %v", err)
	}
	if _, err := NewEmbedding(nil, ModelText, "m", 3); !errors.Is(err, ErrEmbeddingProviderError) {
		t.Errorf("empty vector err = %v", err)
	}
	if _, err := NewEmbedding([]float32{1, 2}, ModelText, "m", 3); !errors.Is(err, ErrVectorDimMismatch) {
		t.Errorf("dim mismatch err = %v", err)
	}
}

func TestParseModelKind(t *testing.T) {
	if k, err := ParseModelKind("image"); err != nil || k != ModelImage {
		t.Errorf("ParseModelKind(image) = %q, %v", k, err)
	}
	if _, err := ParseModelKind("audio"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestRetrievalError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewRetrievalError("products", "FT.SEARCH", cause)

	if !errors.Is(err, ErrRetrieval) {
		t.Error("RetrievalError should match ErrRetrieval")
	}
	if !errors.Is(err, cause) {
		t.Error("RetrievalError should unwrap to cause")
	}
	var re *RetrievalError
	if !errors.As(err, &re) || re.Collection != "products" {
		t.Errorf("errors.As failed: %v", err)
	}
	if !strings.Contains(err.Error(), "FT.SEARCH products") {
		t.Errorf("Error() = %q", err.Error())
	}

	missing := NewRetrievalError("ghost", "search", ErrCollectionNotFound)
	if !errors.Is(missing, ErrCollectionNotFound) {
		t.Error("should match ErrCollectionNotFound")
	}
}

func TestKeys(t *testing.T) {
	if got := IndexName("products"); got != "vecmatch:products:idx" {
		t.Errorf("IndexName = %q", got)
	}
	if got := DocumentPrefix("products"); got != "vecmatch:products:" {
		t.Errorf("DocumentPrefix = %q", got)
	}
}

func TestEmbeddingUsage_Concurrent(t *testing.T) {
	ctx, usage := NewContextWithUsage(context.Background())
	if usage.Used() {
		t.Error("fresh usage reports Used")
	}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			UsageFromContext(ctx).AddTokens(2)
		}()
	}
	wg.Wait()

	if usage.TotalTokens() != 100 {
		t.Errorf("TotalTokens() = %d, want 100", usage.TotalTokens())
	}
	if !usage.Used() {
		t.Error("Used() = false after AddTokens")
	}

	var nilUsage *EmbeddingUsage
	nilUsage.AddTokens(5)
	if UsageFromContext(context.Background()) != nil {
		t.Error("UsageFromContext on bare context should be nil")
	}
}
