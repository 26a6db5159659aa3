package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	domcol "github.com/kailas-cloud/vecmatch/internal/domain/collection"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/filter"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/fusion"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/query"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/result"
)

// maxEmbedConcurrency bounds query embeddings in flight for one batch.
const maxEmbedConcurrency = 8

// Request is one search against a collection.
type Request struct {
	Collection    string
	Text          string
	Filters       filter.Expression
	Limit         int
	Alpha         *float64
	SortBy        string
	SortDesc      bool
	ExcludeFields []string
}

// Response carries ranked hits. Degraded is set when the query embedding was
// unavailable and the search ran without its vector clause.
type Response struct {
	Hits     []result.Hit
	Degraded bool
	Reason   string
}

// Service runs hybrid searches: lexical and vector signals when an embedding
// is available, lexical only when it is not.
type Service struct {
	retriever Retriever
	colls     CollectionReader
	embed     Embedder
	builder   *query.Builder
	logger    *zap.Logger
}

// New creates a search service.
func New(r Retriever, colls CollectionReader, embed Embedder, b *query.Builder, logger *zap.Logger) *Service {
	return &Service{retriever: r, colls: colls, embed: embed, builder: b, logger: logger}
}

// plan is a request resolved to a descriptor, or to an empty degraded response
// when nothing can be searched without the missing embedding.
type plan struct {
	desc     query.Descriptor
	skip     bool
	degraded bool
	reason   string
}

// HybridSearch embeds the request text (when the collection stores vectors)
// and runs the resulting descriptor.
func (s *Service) HybridSearch(ctx context.Context, req Request) (Response, error) {
	p, err := s.plan(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if p.skip {
		return p.response(nil), nil
	}

	hits, err := s.retriever.Search(ctx, p.desc)
	if err != nil {
		return Response{}, fmt.Errorf("search %s: %w", req.Collection, err)
	}
	return p.response(hits), nil
}

// SearchBatch embeds every request concurrently, then executes all descriptors
// in a single retrieval round trip. Responses follow request order.
func (s *Service) SearchBatch(ctx context.Context, reqs []Request) ([]Response, error) {
	if len(reqs) == 0 {
		return []Response{}, nil
	}

	plans := make([]plan, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbedConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			p, err := s.plan(gctx, req)
			if err != nil {
				return fmt.Errorf("searches[%d]: %w", i, err)
			}
			plans[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ds []query.Descriptor
	var idx []int
	for i, p := range plans {
		if !p.skip {
			ds = append(ds, p.desc)
			idx = append(idx, i)
		}
	}

	out := make([]Response, len(reqs))
	for i, p := range plans {
		out[i] = p.response(nil)
	}
	if len(ds) == 0 {
		return out, nil
	}

	hits, err := s.retriever.SearchBatch(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("search batch: %w", err)
	}
	for j, i := range idx {
		out[i] = plans[i].response(hits[j])
	}
	return out, nil
}

// FuseRankings combines weighted rankings. Ids must be reported by at least two sources.
func (s *Service) FuseRankings(sources []fusion.Source) []fusion.Ranked {
	return fusion.Combine(sources)
}

func (s *Service) plan(ctx context.Context, req Request) (plan, error) {
	col, err := s.colls.Get(req.Collection)
	if err != nil {
		return plan{}, fmt.Errorf("get collection: %w", err)
	}

	var p plan
	emb := s.embedQuery(ctx, col, req.Text, &p)

	if emb == nil && p.degraded && len(col.QueryBy()) == 0 {
		// Vector-only collection without a vector: nothing to run.
		if err := col.ValidateFilters(req.Filters); err != nil {
			return plan{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
		p.skip = true
		return p, nil
	}

	d, err := s.builder.Build(col, req.Text, req.Filters, req.Limit, emb, req.Alpha,
		query.WithSortBy(req.SortBy, req.SortDesc),
		query.WithExcludeFields(req.ExcludeFields...),
	)
	if err != nil {
		return plan{}, fmt.Errorf("build query: %w", err)
	}
	p.desc = d
	return p, nil
}

func (s *Service) embedQuery(ctx context.Context, col domcol.Collection, text string, p *plan) *domain.Embedding {
	vs, ok := col.TextVector()
	if !ok || strings.TrimSpace(text) == "" {
		return nil
	}
	out := s.embed.EmbedText(ctx, text, vs.Kind)
	emb, ok := out.Value()
	if !ok {
		p.degraded = true
		p.reason = out.Reason()
		s.logger.Info("Search degraded to lexical",
			zap.String("collection", col.Name()),
			zap.String("reason", out.Reason()),
		)
		return nil
	}
	return &emb
}

func (p plan) response(hits []result.Hit) Response {
	if hits == nil {
		hits = []result.Hit{}
	}
	return Response{Hits: hits, Degraded: p.degraded, Reason: p.reason}
}
