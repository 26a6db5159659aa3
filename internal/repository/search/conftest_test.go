package search

import (
	"context"
	"testing"

	"github.com/kailas-cloud/vecmatch/internal/db"
	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/domain/collection"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchFn      func(ctx context.Context, q *db.Query) (*db.SearchResult, error)
	searchMultiFn func(ctx context.Context, qs []*db.Query) ([]*db.SearchResult, error)
	multiCalls    int
}

func (m *mockStore) Search(ctx context.Context, q *db.Query) (*db.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchMulti(ctx context.Context, qs []*db.Query) ([]*db.SearchResult, error) {
	m.multiCalls++
	if m.searchMultiFn != nil {
		return m.searchMultiFn(ctx, qs)
	}
	out := make([]*db.SearchResult, len(qs))
	for i := range out {
		out[i] = &db.SearchResult{}
	}
	return out, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	products, err := collection.New(collection.Spec{
		Name:        "products",
		QueryBy:     []string{"name"},
		VectorField: "embedding",
		ModelKind:   domain.ModelText,
		Dimensions:  4,
	})
	if err != nil {
		t.Fatal(err)
	}
	logs, err := collection.New(collection.Spec{Name: "logs", QueryBy: []string{"message"}})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := collection.NewRegistry(products, logs)
	if err != nil {
		t.Fatal(err)
	}
	ms := &mockStore{}
	return New(ms, reg, Metrics{}), ms
}

func testVector() []float32 {
	return []float32{0.1, 0.1, 0.1, 0.1}
}

func floatPtr(f float64) *float64 { return &f }
