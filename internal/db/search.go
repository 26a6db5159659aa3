package db

import "github.com/kailas-cloud/vecmatch/internal/domain/search/filter"

// Query is the input for a single FT.SEARCH-backed retrieval.
//
// Text matches TextFields with BM25; Vector asks for KNN on a vector field.
// With both set and Vector.Alpha non-nil the store blends the two rankings.
type Query struct {
	IndexName     string
	Text          string
	TextFields    []string
	Filters       filter.Expression
	Vector        *VectorQuery
	Limit         int
	SortBy        string
	SortDesc      bool
	ExcludeFields []string
}

// VectorQuery is the KNN part of a Query.
type VectorQuery struct {
	Field  string
	Values []float32
	K      int
	Alpha  *float64 // 1 = vector only ordering, 0 = lexical only ordering
}

// IsHybrid reports whether the query blends lexical and vector rankings.
func (q *Query) IsHybrid() bool {
	return q.Vector != nil && q.Vector.Alpha != nil && q.Text != ""
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Distance is the cosine distance to the query vector, nil for lexical-only queries.
type SearchEntry struct {
	Key      string
	Score    float64
	Distance *float64
	Fields   map[string]string
}
