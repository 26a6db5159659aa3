package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/vecmatch/internal/db"
	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/domain/collection"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/query"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/result"
)

// Operation labels for metrics and RetrievalError.Op.
const (
	opSearch      = "search"
	opSearchBatch = "search_batch"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	Search(ctx context.Context, q *db.Query) (*db.SearchResult, error)
	SearchMulti(ctx context.Context, qs []*db.Query) ([]*db.SearchResult, error)
}

// registry resolves collection layouts.
type registry interface {
	Get(name string) (collection.Collection, error)
}

// Metrics are the optional collectors the repo reports into.
type Metrics struct {
	Requests *prometheus.CounterVec   // labels: op, status
	Duration *prometheus.HistogramVec // labels: op
}

// Repo is the retrieval client: it executes query descriptors against the index.
// Index-level failures are returned as *domain.RetrievalError.
type Repo struct {
	store       store
	collections registry
	metrics     Metrics
}

// New creates a search repository.
func New(s store, collections registry, m Metrics) *Repo {
	return &Repo{store: s, collections: collections, metrics: m}
}

// Search executes one descriptor and returns ranked hits.
func (r *Repo) Search(ctx context.Context, d query.Descriptor) ([]result.Hit, error) {
	q, err := r.toQuery(d)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sr, err := r.store.Search(ctx, q)
	r.observe(opSearch, start, err)
	if err != nil {
		return nil, retrievalError(d.Collection, opSearch, err)
	}

	return toHits(sr, d.Collection), nil
}

// SearchBatch executes every descriptor in a single round trip.
// Results are positionally aligned with ds.
func (r *Repo) SearchBatch(ctx context.Context, ds []query.Descriptor) ([][]result.Hit, error) {
	if len(ds) == 0 {
		return nil, nil
	}

	qs := make([]*db.Query, len(ds))
	for i, d := range ds {
		q, err := r.toQuery(d)
		if err != nil {
			return nil, err
		}
		qs[i] = q
	}

	start := time.Now()
	srs, err := r.store.SearchMulti(ctx, qs)
	r.observe(opSearchBatch, start, err)
	if err != nil {
		return nil, retrievalError(batchLabel(ds), opSearchBatch, err)
	}

	out := make([][]result.Hit, len(ds))
	for i, sr := range srs {
		out[i] = toHits(sr, ds[i].Collection)
	}
	return out, nil
}

func (r *Repo) toQuery(d query.Descriptor) (*db.Query, error) {
	col, err := r.collections.Get(d.Collection)
	if err != nil {
		return nil, domain.NewRetrievalError(d.Collection, opSearch, err)
	}

	q := &db.Query{
		IndexName:     domain.IndexName(col.Name()),
		Text:          d.LexicalTerm,
		TextFields:    d.QueryBy,
		Filters:       d.Filters,
		Limit:         d.Limit,
		ExcludeFields: d.ExcludeFields,
	}
	q.ExcludeFields = append(q.ExcludeFields, col.VectorFields()...)
	if d.SortBy != nil {
		q.SortBy = d.SortBy.Field
		q.SortDesc = d.SortBy.Desc
	}
	if v := d.Vector; v != nil {
		q.Vector = &db.VectorQuery{
			Field:  v.Field,
			Values: v.Values,
			K:      v.Neighbors,
			Alpha:  v.Alpha,
		}
	}
	return q, nil
}

func (r *Repo) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if r.metrics.Requests != nil {
		r.metrics.Requests.WithLabelValues(op, status).Inc()
	}
	if r.metrics.Duration != nil {
		r.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// retrievalError wraps a store failure. A missing index means the collection
// was configured but never created, so it also matches ErrCollectionNotFound.
func retrievalError(collection, op string, err error) error {
	if errors.Is(err, db.ErrIndexNotFound) {
		err = fmt.Errorf("%w: %w", domain.ErrCollectionNotFound, err)
	}
	return domain.NewRetrievalError(collection, op, err)
}

func batchLabel(ds []query.Descriptor) string {
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.Collection)
	}
	return strings.Join(names, ",")
}

// toHits converts db entries into hits, stripping the collection key prefix from ids.
func toHits(sr *db.SearchResult, collection string) []result.Hit {
	if sr == nil || len(sr.Entries) == 0 {
		return []result.Hit{}
	}

	prefix := domain.DocumentPrefix(collection)
	hits := make([]result.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, result.Hit{
			ID:       strings.TrimPrefix(e.Key, prefix),
			Distance: e.Distance,
			Score:    e.Score,
			Payload:  e.Fields,
		})
	}
	return hits
}
