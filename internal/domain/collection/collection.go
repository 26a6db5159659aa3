package collection

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/domain/collection/field"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/filter"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Spec is the input to New. It mirrors one entry of retrieval.collections in config.
// VectorField, ModelKind and Dimensions are shorthand for a single entry of Vectors.
type Spec struct {
	Name        string
	QueryBy     []string
	VectorField string
	ModelKind   domain.ModelKind
	Dimensions  int
	Vectors     []VectorSpec
	Fields      []field.Field
}

// VectorSpec is one vector field and the model family whose embeddings it stores.
type VectorSpec struct {
	Field      string
	Kind       domain.ModelKind
	Dimensions int // 0 = unchecked
}

// Collection describes how a searchable collection is laid out in the index:
// which TEXT fields take the lexical term, which vector field takes each kind of embedding,
// and which fields can be filtered on.
type Collection struct {
	name    string
	queryBy []string
	vectors []VectorSpec
	fields  []field.Field
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("collection name too long (max 64)")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("collection name must be alphanumeric with underscores and hyphens")
	}
	return nil
}

func validateFields(fields []field.Field, reserved ...string) error {
	if len(fields) > 64 {
		return fmt.Errorf("too many fields (max 64)")
	}
	seen := make(map[string]bool, len(fields)+len(reserved))
	for _, name := range reserved {
		if name != "" {
			seen[name] = true
		}
	}
	for _, f := range fields {
		if seen[f.Name()] {
			return fmt.Errorf("duplicate field name: %s", f.Name())
		}
		seen[f.Name()] = true
	}
	return nil
}

// New validates a collection spec.
// A collection needs at least one of: a TEXT field to query by, or a vector field.
// It holds at most one vector field per model kind.
func New(s Spec) (Collection, error) {
	if err := validateName(s.Name); err != nil {
		return Collection{}, err
	}

	vectors := s.Vectors
	if s.VectorField != "" {
		vectors = append([]VectorSpec{{Field: s.VectorField, Kind: s.ModelKind, Dimensions: s.Dimensions}}, vectors...)
	}
	if len(s.QueryBy) == 0 && len(vectors) == 0 {
		return Collection{}, fmt.Errorf("collection %s: query_by or a vector field is required", s.Name)
	}

	reserved := append([]string(nil), s.QueryBy...)
	kinds := make(map[domain.ModelKind]bool, len(vectors))
	for _, v := range vectors {
		if v.Field == "" {
			return Collection{}, fmt.Errorf("collection %s: vector field name is required", s.Name)
		}
		if !v.Kind.IsValid() {
			return Collection{}, fmt.Errorf("collection %s: invalid model kind %q", s.Name, v.Kind)
		}
		if kinds[v.Kind] {
			return Collection{}, fmt.Errorf("collection %s: more than one vector field for kind %q", s.Name, v.Kind)
		}
		kinds[v.Kind] = true
		if v.Dimensions < 0 {
			return Collection{}, fmt.Errorf("collection %s: dimensions must not be negative", s.Name)
		}
		if slices.Contains(reserved, v.Field) {
			return Collection{}, fmt.Errorf("collection %s: duplicate field name: %s", s.Name, v.Field)
		}
		reserved = append(reserved, v.Field)
	}
	if err := validateFields(s.Fields, reserved...); err != nil {
		return Collection{}, fmt.Errorf("collection %s: %w", s.Name, err)
	}

	return Collection{
		name:    s.Name,
		queryBy: s.QueryBy,
		vectors: vectors,
		fields:  s.Fields,
	}, nil
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// QueryBy returns the TEXT fields the lexical term is matched against.
func (c Collection) QueryBy() []string { return c.queryBy }

// HasVectors reports whether the collection can take a vector clause.
func (c Collection) HasVectors() bool { return len(c.vectors) > 0 }

// Vectors returns the declared vector fields.
func (c Collection) Vectors() []VectorSpec { return c.vectors }

// Vector returns the vector field that stores embeddings of the given kind.
func (c Collection) Vector(kind domain.ModelKind) (VectorSpec, bool) {
	for _, v := range c.vectors {
		if v.Kind == kind {
			return v, true
		}
	}
	return VectorSpec{}, false
}

// TextVector returns the field a text query is embedded for: the text-kind field,
// otherwise the image-kind field through the cross-modal text path.
func (c Collection) TextVector() (VectorSpec, bool) {
	if v, ok := c.Vector(domain.ModelText); ok {
		return v, true
	}
	return c.Vector(domain.ModelImage)
}

// VectorFields returns the names of all vector fields.
func (c Collection) VectorFields() []string {
	out := make([]string, len(c.vectors))
	for i, v := range c.vectors {
		out[i] = v.Field
	}
	return out
}

// Fields returns the filterable fields.
func (c Collection) Fields() []field.Field { return c.fields }

// FieldByName looks up a filterable field by name.
func (c Collection) FieldByName(name string) (field.Field, bool) {
	for _, f := range c.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return field.Field{}, false
}

// ValidateFilters ensures filter fields exist in the collection
// and that the filter type (match/range) matches the field type (tag/numeric).
func (c Collection) ValidateFilters(expr filter.Expression) error {
	if expr.IsEmpty() {
		return nil
	}
	for _, cond := range expr.Conditions() {
		f, ok := c.FieldByName(cond.Key())
		if !ok {
			return fmt.Errorf("unknown filter field %q", cond.Key())
		}
		if cond.IsMatch() && f.FieldType() != field.Tag {
			return fmt.Errorf("match filter on non-tag field %q", cond.Key())
		}
		if cond.IsRange() && f.FieldType() != field.Numeric {
			return fmt.Errorf("range filter on non-numeric field %q", cond.Key())
		}
	}
	return nil
}

// Registry is a read-only name -> Collection lookup built once at startup.
type Registry struct {
	byName map[string]Collection
}

// NewRegistry indexes collections by name. Duplicate names are rejected.
func NewRegistry(cols ...Collection) (*Registry, error) {
	m := make(map[string]Collection, len(cols))
	for _, c := range cols {
		if _, dup := m[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate collection %q", c.Name())
		}
		m[c.Name()] = c
	}
	return &Registry{byName: m}, nil
}

// Get returns a collection or domain.ErrCollectionNotFound.
func (r *Registry) Get(name string) (Collection, error) {
	c, ok := r.byName[name]
	if !ok {
		return Collection{}, fmt.Errorf("%q: %w", name, domain.ErrCollectionNotFound)
	}
	return c, nil
}

// All returns every registered collection (unordered).
func (r *Registry) All() []Collection {
	out := make([]Collection, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	return out
}
