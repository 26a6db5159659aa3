package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/filter"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/fusion"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/result"
	"github.com/kailas-cloud/vecmatch/internal/metrics"
	classifyuc "github.com/kailas-cloud/vecmatch/internal/usecase/classify"
	healthuc "github.com/kailas-cloud/vecmatch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/vecmatch/internal/usecase/search"
	"github.com/kailas-cloud/vecmatch/internal/version"
)

// Searcher runs searches and rank fusion.
type Searcher interface {
	HybridSearch(ctx context.Context, req searchuc.Request) (searchuc.Response, error)
	SearchBatch(ctx context.Context, reqs []searchuc.Request) ([]searchuc.Response, error)
	FuseRankings(sources []fusion.Source) []fusion.Ranked
}

// Classifier assigns content to groups.
type Classifier interface {
	Classify(ctx context.Context, in classifyuc.Input) classifyuc.Result
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Options configures request limits and authentication.
type Options struct {
	APIKeys      []string
	MaxBodyBytes int64
	MaxBatchSize int
}

// Server is the HTTP API.
type Server struct {
	search   Searcher
	classify Classifier
	health   HealthChecker
	opts     Options
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	classify Classifier,
	health HealthChecker,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 16 << 20
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 50
	}
	return &Server{search: search, classify: classify, health: health, opts: opts, logger: logger}
}

// Routes builds the router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.opts.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/classify", s.Classify)
	r.Post("/collections/{collection}/search", s.Search)
	r.Post("/search/multi", s.MultiSearch)
	r.Post("/fuse", s.Fuse)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Classify handles POST /classify. It always answers 200 with a group.
func (s *Server) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res := s.classify.Classify(ctx, classifyuc.Input{
		Caption:      req.Caption,
		Image:        req.Image,
		DefaultGroup: req.DefaultGroup,
	})

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, ClassifyResponse{
		Label:       res.Label,
		Confidence:  res.Confidence,
		UsedDefault: res.UsedDefault,
		Modalities:  nonNil(res.Modalities),
	})
}

// Search handles POST /collections/{collection}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}

	searchReq, err := searchRequestFromDTO(chi.URLParam(r, "collection"), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.search.HybridSearch(ctx, searchReq)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchResponseToDTO(resp))
}

// MultiSearch handles POST /search/multi.
func (s *Server) MultiSearch(w http.ResponseWriter, r *http.Request) {
	var req MultiSearchRequest
	if !s.decode(w, r, &req) {
		return
	}

	if len(req.Searches) == 0 || len(req.Searches) > s.opts.MaxBatchSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("searches count must be between 1 and %d", s.opts.MaxBatchSize))
		return
	}

	reqs := make([]searchuc.Request, len(req.Searches))
	for i, item := range req.Searches {
		sr, err := searchRequestFromDTO(item.Collection, item.SearchRequest)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, fmt.Sprintf("searches[%d]: %v", i, err))
			return
		}
		reqs[i] = sr
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resps, err := s.search.SearchBatch(ctx, reqs)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	out := MultiSearchResponse{Results: make([]SearchResponse, len(resps))}
	for i, resp := range resps {
		out.Results[i] = searchResponseToDTO(resp)
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, out)
}

// Fuse handles POST /fuse. Hit distances must be distance-like: lower is better.
func (s *Server) Fuse(w http.ResponseWriter, r *http.Request) {
	var req FuseRequest
	if !s.decode(w, r, &req) {
		return
	}

	sources := make([]fusion.Source, 0, len(req.Sources))
	for i, src := range req.Sources {
		items := make([]fusion.Item, len(src.Hits))
		for j, h := range src.Hits {
			items[j] = fusion.Item{ID: h.ID, Distance: h.Distance}
		}
		fs, err := fusion.NewSource(src.Weight, items)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, fmt.Sprintf("sources[%d]: %v", i, err))
			return
		}
		sources = append(sources, fs)
	}

	ranked := s.search.FuseRankings(sources)
	out := FuseResponse{Items: make([]FusedItem, len(ranked))}
	for i, rk := range ranked {
		out.Items[i] = FusedItem{ID: rk.ID, WeightedDistance: rk.WeightedDistance, Sources: rk.Sources}
	}
	writeJSON(w, http.StatusOK, out)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:         string(report.Status),
		Checks:         checks,
		MissingIndexes: report.MissingIndexes,
		Version:        version.Version,
	})
}

// decode reads a size-limited JSON body. Writes a 400 and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set("X-Embedding-Tokens", strconv.FormatInt(usage.TotalTokens(), 10))
	}
}

func searchRequestFromDTO(collection string, req SearchRequest) (searchuc.Request, error) {
	if collection == "" {
		return searchuc.Request{}, errors.New("collection is required")
	}
	filters, err := filtersFromDTO(req.Filters)
	if err != nil {
		return searchuc.Request{}, fmt.Errorf("parse filters: %w", err)
	}
	if req.Limit != nil && *req.Limit <= 0 {
		return searchuc.Request{}, errors.New("limit must be positive")
	}
	sortField, desc, err := parseSortBy(req.SortBy)
	if err != nil {
		return searchuc.Request{}, err
	}

	return searchuc.Request{
		Collection:    collection,
		Text:          req.Text,
		Filters:       filters,
		Limit:         derefInt(req.Limit),
		Alpha:         req.Alpha,
		SortBy:        sortField,
		SortDesc:      desc,
		ExcludeFields: req.ExcludeFields,
	}, nil
}

// parseSortBy accepts "field", "field:asc" or "field:desc".
func parseSortBy(s string) (string, bool, error) {
	if s == "" {
		return "", false, nil
	}
	name, order, hasOrder := strings.Cut(s, ":")
	if name == "" {
		return "", false, fmt.Errorf("sort_by %q: field is required", s)
	}
	if !hasOrder {
		return name, false, nil
	}
	switch strings.ToLower(order) {
	case "asc":
		return name, false, nil
	case "desc":
		return name, true, nil
	default:
		return "", false, fmt.Errorf("sort_by %q: order must be asc or desc", s)
	}
}

func filtersFromDTO(f *FilterExpression) (filter.Expression, error) {
	if f == nil {
		return filter.Expression{}, nil
	}

	must, err := conditionsFromDTO(f.Must)
	if err != nil {
		return filter.Expression{}, err
	}
	should, err := conditionsFromDTO(f.Should)
	if err != nil {
		return filter.Expression{}, err
	}
	mustNot, err := conditionsFromDTO(f.MustNot)
	if err != nil {
		return filter.Expression{}, err
	}

	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("new expression: %w", err)
	}
	return expr, nil
}

func conditionsFromDTO(cs []FilterCondition) ([]filter.Condition, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	out := make([]filter.Condition, 0, len(cs))
	for _, c := range cs {
		cond, err := filterConditionFromDTO(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func filterConditionFromDTO(c FilterCondition) (filter.Condition, error) {
	switch {
	case c.Match != nil && c.Range != nil:
		return filter.Condition{},
			fmt.Errorf("filter condition for %q must have match or range, not both", c.Key)
	case c.Match != nil:
		cond, err := filter.NewMatch(c.Key, *c.Match)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("match filter: %w", err)
		}
		return cond, nil
	case c.Range != nil:
		rf, err := filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("range filter: %w", err)
		}
		cond, err := filter.NewRange(c.Key, rf)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("range condition: %w", err)
		}
		return cond, nil
	default:
		return filter.Condition{}, errors.New("filter condition must have either match or range")
	}
}

func searchResponseToDTO(resp searchuc.Response) SearchResponse {
	hits := make([]SearchHit, len(resp.Hits))
	for i, h := range resp.Hits {
		hits[i] = hitToDTO(h)
	}
	return SearchResponse{Hits: hits, Degraded: resp.Degraded, DegradedReason: resp.Reason}
}

func hitToDTO(h result.Hit) SearchHit {
	payload := h.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	return SearchHit{ID: h.ID, Distance: h.Distance, Score: h.Score, Payload: payload}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
