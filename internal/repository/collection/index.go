package collection

import (
	"fmt"

	"github.com/kailas-cloud/vecmatch/internal/db"
	"github.com/kailas-cloud/vecmatch/internal/domain"
	domcol "github.com/kailas-cloud/vecmatch/internal/domain/collection"
	"github.com/kailas-cloud/vecmatch/internal/domain/collection/field"
)

// buildIndex creates an FT index definition for a configured collection:
// TEXT for every query_by field, TAG/NUMERIC for filterable fields
// and an HNSW/COSINE vector field when the collection stores vectors.
func buildIndex(col domcol.Collection, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	b := db.NewIndex(domain.IndexName(col.Name())).Prefix(domain.DocumentPrefix(col.Name()))

	for _, name := range col.QueryBy() {
		b.Text(name)
	}

	for _, f := range col.Fields() {
		switch f.FieldType() {
		case field.Tag:
			b.Tag(f.Name())
		case field.Numeric:
			b.Numeric(f.Name())
		default:
			return nil, fmt.Errorf("unknown field type: %s", f.FieldType())
		}
	}

	for _, v := range col.Vectors() {
		if v.Dimensions <= 0 {
			return nil, fmt.Errorf("collection %s: dimensions are required to index vector field %s", col.Name(), v.Field)
		}
		b.VectorHNSW(v.Field, v.Dimensions, db.DistanceCosine, hnsw.M, hnsw.EFConstruct)
	}

	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", col.Name(), err)
	}
	return def, nil
}
