package chi

// ErrorCode is a machine-readable error identifier in error responses.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest         ErrorCode = "bad_request"
	CodeValidationFailed   ErrorCode = "validation_failed"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeCollectionNotFound ErrorCode = "collection_not_found"
	CodeVectorDimMismatch  ErrorCode = "vector_dim_mismatch"
	CodeIndexUnavailable   ErrorCode = "index_unavailable"
	CodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// RangeFilter bounds a numeric field.
type RangeFilter struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// FilterCondition matches a tag value or a numeric range on one field.
type FilterCondition struct {
	Key   string       `json:"key"`
	Match *string      `json:"match,omitempty"`
	Range *RangeFilter `json:"range,omitempty"`
}

// FilterExpression combines conditions.
type FilterExpression struct {
	Must    []FilterCondition `json:"must,omitempty"`
	Should  []FilterCondition `json:"should,omitempty"`
	MustNot []FilterCondition `json:"must_not,omitempty"`
}

// SearchRequest is the body of POST /collections/{collection}/search.
type SearchRequest struct {
	Text    string            `json:"text"`
	Filters *FilterExpression `json:"filters,omitempty"`
	Limit   *int              `json:"limit,omitempty"`
	Alpha   *float64          `json:"alpha,omitempty"`
	// SortBy is "field" or "field:asc" / "field:desc".
	SortBy        string   `json:"sort_by,omitempty"`
	ExcludeFields []string `json:"exclude_fields,omitempty"`
}

// MultiSearchItem is one search in a multi-search request.
type MultiSearchItem struct {
	Collection string `json:"collection"`
	SearchRequest
}

// MultiSearchRequest is the body of POST /search/multi.
type MultiSearchRequest struct {
	Searches []MultiSearchItem `json:"searches"`
}

// SearchHit is one ranked record.
type SearchHit struct {
	ID       string            `json:"id"`
	Distance *float64          `json:"distance,omitempty"`
	Score    float64           `json:"score"`
	Payload  map[string]string `json:"payload"`
}

// SearchResponse lists hits. Degraded is set when the search ran without its vector signal.
type SearchResponse struct {
	Hits           []SearchHit `json:"hits"`
	Degraded       bool        `json:"degraded"`
	DegradedReason string      `json:"degraded_reason,omitempty"`
}

// MultiSearchResponse holds one response per search, in request order.
type MultiSearchResponse struct {
	Results []SearchResponse `json:"results"`
}

// ClassifyRequest is the body of POST /classify.
type ClassifyRequest struct {
	Caption      string `json:"caption,omitempty"`
	Image        string `json:"image,omitempty"`
	DefaultGroup string `json:"default_group,omitempty"`
}

// ClassifyResponse is the classification decision.
type ClassifyResponse struct {
	Label       string   `json:"label"`
	Confidence  float64  `json:"confidence"`
	UsedDefault bool     `json:"used_default"`
	Modalities  []string `json:"modalities"`
}

// FuseHit is an id with a distance-like value (lower is better).
type FuseHit struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// FuseSource is one weighted ranking.
type FuseSource struct {
	Weight float64   `json:"weight"`
	Hits   []FuseHit `json:"hits"`
}

// FuseRequest is the body of POST /fuse.
type FuseRequest struct {
	Sources []FuseSource `json:"sources"`
}

// FusedItem is an id reported by at least two sources.
type FusedItem struct {
	ID               string  `json:"id"`
	WeightedDistance float64 `json:"weighted_distance"`
	Sources          int     `json:"sources"`
}

// FuseResponse lists fused items, best first.
type FuseResponse struct {
	Items []FusedItem `json:"items"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status         string            `json:"status"`
	Checks         map[string]string `json:"checks"`
	MissingIndexes []string          `json:"missing_indexes,omitempty"`
	Version        string            `json:"version"`
}
