package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/domain/collection"
	"github.com/kailas-cloud/vecmatch/internal/domain/collection/field"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/filter"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/mode"
)

// Query parameter limits.
const (
	// MaxQueryLength is the maximum allowed lexical term length.
	MaxQueryLength = 4096
	DefaultLimit   = 20
	MaxLimit       = 250
	DefaultAlpha   = 0.5
)

// VectorClause asks the index for the nearest neighbors of Values in Field.
// Alpha is set only for blended queries: 1 = vector dominant, 0 = lexical dominant.
type VectorClause struct {
	Field     string
	Values    []float32
	Kind      domain.ModelKind
	Neighbors int
	Alpha     *float64
}

// SortBy orders hits by a numeric payload field instead of relevance.
type SortBy struct {
	Field string
	Desc  bool
}

// Descriptor is one fully-specified retrieval request.
type Descriptor struct {
	Collection    string
	LexicalTerm   string
	QueryBy       []string
	Filters       filter.Expression
	Vector        *VectorClause
	Limit         int
	SortBy        *SortBy
	ExcludeFields []string
}

// Mode reports which retrieval strategy the descriptor resolves to.
func (d Descriptor) Mode() mode.Mode {
	switch {
	case d.Vector != nil && d.Vector.Alpha != nil:
		return mode.Hybrid
	case d.Vector != nil:
		return mode.Vector
	default:
		return mode.Lexical
	}
}

// Option customizes a Descriptor at build time.
type Option func(*Descriptor)

// WithSortBy orders results by a numeric field.
func WithSortBy(field string, desc bool) Option {
	return func(d *Descriptor) {
		if field != "" {
			d.SortBy = &SortBy{Field: field, Desc: desc}
		}
	}
}

// WithExcludeFields drops payload fields from returned hits.
func WithExcludeFields(fields ...string) Option {
	return func(d *Descriptor) { d.ExcludeFields = append(d.ExcludeFields, fields...) }
}

// Builder turns (term, filters, embedding) into query descriptors.
type Builder struct {
	defaultAlpha float64
}

// NewBuilder creates a builder. defaultAlpha outside [0,1] falls back to DefaultAlpha.
func NewBuilder(defaultAlpha float64) *Builder {
	if defaultAlpha < 0 || defaultAlpha > 1 {
		defaultAlpha = DefaultAlpha
	}
	return &Builder{defaultAlpha: defaultAlpha}
}

// Build creates a descriptor for col.
//
// With an embedding the descriptor gets a vector clause on the field storing
// embeddings of the same kind, with neighbors = limit;
// if a lexical term is present too, alpha (or the builder default) is attached.
// Without an embedding the descriptor is lexical only.
func (b *Builder) Build(
	col collection.Collection,
	term string,
	filters filter.Expression,
	limit int,
	emb *domain.Embedding,
	alpha *float64,
	opts ...Option,
) (Descriptor, error) {
	term = strings.TrimSpace(term)
	if len(term) > MaxQueryLength {
		return Descriptor{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if err := col.ValidateFilters(filters); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	if alpha != nil && (*alpha < 0 || *alpha > 1) {
		return Descriptor{}, fmt.Errorf("alpha must be between 0 and 1: %w", domain.ErrInvalidQuery)
	}

	d := Descriptor{
		Collection:  col.Name(),
		LexicalTerm: term,
		QueryBy:     col.QueryBy(),
		Filters:     filters,
		Limit:       limit,
	}

	if emb != nil && col.HasVectors() {
		vs, ok := col.Vector(emb.Kind)
		if !ok {
			return Descriptor{}, fmt.Errorf(
				"collection %s has no vector field for embedding kind %q: %w",
				col.Name(), emb.Kind, domain.ErrInvalidQuery)
		}
		if vs.Dimensions > 0 && emb.Dimensions() != vs.Dimensions {
			return Descriptor{}, fmt.Errorf("collection %s field %s expects %d, got %d: %w",
				col.Name(), vs.Field, vs.Dimensions, emb.Dimensions(), domain.ErrVectorDimMismatch)
		}
		d.Vector = &VectorClause{
			Field:     vs.Field,
			Values:    emb.Values,
			Kind:      emb.Kind,
			Neighbors: limit,
		}
		if term != "" && len(col.QueryBy()) > 0 {
			a := b.defaultAlpha
			if alpha != nil {
				a = *alpha
			}
			d.Vector.Alpha = &a
		}
	}

	if d.Vector == nil && len(col.QueryBy()) == 0 {
		return Descriptor{}, fmt.Errorf("collection %s has no text fields and no embedding was given: %w",
			col.Name(), domain.ErrInvalidQuery)
	}

	for _, opt := range opts {
		opt(&d)
	}
	if d.SortBy != nil {
		if f, ok := col.FieldByName(d.SortBy.Field); !ok || f.FieldType() != field.Numeric {
			return Descriptor{}, fmt.Errorf("sort_by %q is not a numeric field: %w", d.SortBy.Field, domain.ErrInvalidQuery)
		}
	}
	return d, nil
}
