package classify

import (
	"context"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	domcol "github.com/kailas-cloud/vecmatch/internal/domain/collection"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/query"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/result"
)

// Embedder produces caption and image embeddings. It never fails hard.
type Embedder interface {
	EmbedText(ctx context.Context, text string, kind domain.ModelKind) domain.Outcome[domain.Embedding]
	EmbedImage(ctx context.Context, image string, kind domain.ModelKind) domain.Outcome[domain.Embedding]
}

// Retriever runs a single nearest-neighbor query.
type Retriever interface {
	Search(ctx context.Context, d query.Descriptor) ([]result.Hit, error)
}

// CollectionReader resolves the group collections.
type CollectionReader interface {
	Get(name string) (domcol.Collection, error)
}
