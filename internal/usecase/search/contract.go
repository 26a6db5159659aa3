package search

import (
	"context"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	domcol "github.com/kailas-cloud/vecmatch/internal/domain/collection"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/query"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/result"
)

// Retriever executes query descriptors against the index.
type Retriever interface {
	Search(ctx context.Context, d query.Descriptor) ([]result.Hit, error)
	SearchBatch(ctx context.Context, ds []query.Descriptor) ([][]result.Hit, error)
}

// CollectionReader resolves configured collections.
type CollectionReader interface {
	Get(name string) (domcol.Collection, error)
}

// Embedder produces query embeddings. It never fails hard.
type Embedder interface {
	EmbedText(ctx context.Context, text string, kind domain.ModelKind) domain.Outcome[domain.Embedding]
}
