package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/fusion"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/result"
	classifyuc "github.com/kailas-cloud/vecmatch/internal/usecase/classify"
	healthuc "github.com/kailas-cloud/vecmatch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/vecmatch/internal/usecase/search"
)

// --- Mocks ---

type mockSearcher struct {
	searchFn func(ctx context.Context, req searchuc.Request) (searchuc.Response, error)
	batchFn  func(ctx context.Context, reqs []searchuc.Request) ([]searchuc.Response, error)
	fused    []fusion.Source
}

func (m *mockSearcher) HybridSearch(ctx context.Context, req searchuc.Request) (searchuc.Response, error) {
	return m.searchFn(ctx, req)
}

func (m *mockSearcher) SearchBatch(ctx context.Context, reqs []searchuc.Request) ([]searchuc.Response, error) {
	return m.batchFn(ctx, reqs)
}

func (m *mockSearcher) FuseRankings(sources []fusion.Source) []fusion.Ranked {
	m.fused = sources
	return fusion.Combine(sources)
}

type mockClassifier struct {
	got classifyuc.Input
	res classifyuc.Result
}

func (m *mockClassifier) Classify(_ context.Context, in classifyuc.Input) classifyuc.Result {
	m.got = in
	return m.res
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

func newTestServer(s Searcher, c Classifier, h HealthChecker, opts Options) http.Handler {
	if s == nil {
		s = &mockSearcher{}
	}
	if c == nil {
		c = &mockClassifier{}
	}
	if h == nil {
		h = &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}
	}
	return NewServer(s, c, h, opts, zap.NewNop()).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func ptr[T any](v T) *T { return &v }

// --- Search ---

func TestSearch_OK(t *testing.T) {
	var got searchuc.Request
	s := &mockSearcher{searchFn: func(ctx context.Context, req searchuc.Request) (searchuc.Response, error) {
		got = req
		domain.UsageFromContext(ctx).AddTokens(7)
		return searchuc.Response{Hits: []result.Hit{
			{ID: "a", Distance: ptr(0.1), Score: 0.9, Payload: map[string]string{"name": "A"}},
			{ID: "b", Score: 0.4},
		}}, nil
	}}
	h := newTestServer(s, nil, nil, Options{})

	rr := do(t, h, http.MethodPost, "/collections/products/search",
		`{"text":"red shoes","limit":5,"alpha":0.3,"sort_by":"price:desc",`+
			`"filters":{"must":[{"key":"brand","match":"acme"}],"must_not":[{"key":"price","range":{"gt":100}}]}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Embedding-Tokens") != "7" {
		t.Errorf("X-Embedding-Tokens: got %q", rr.Header().Get("X-Embedding-Tokens"))
	}

	if got.Collection != "products" || got.Text != "red shoes" || got.Limit != 5 {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Alpha == nil || *got.Alpha != 0.3 {
		t.Errorf("alpha: got %v", got.Alpha)
	}
	if got.SortBy != "price" || !got.SortDesc {
		t.Errorf("sort: got %q desc=%v", got.SortBy, got.SortDesc)
	}
	if len(got.Filters.Must()) != 1 || len(got.Filters.MustNot()) != 1 {
		t.Errorf("filters: got %+v", got.Filters)
	}

	resp := decodeBody[SearchResponse](t, rr)
	if len(resp.Hits) != 2 {
		t.Fatalf("hits: got %d, want 2", len(resp.Hits))
	}
	if resp.Hits[0].Distance == nil || *resp.Hits[0].Distance != 0.1 {
		t.Errorf("hit[0] distance: got %v", resp.Hits[0].Distance)
	}
	if resp.Hits[1].Payload == nil {
		t.Error("hit[1] payload must be an empty object, not null")
	}
}

func TestSearch_DegradedResponse(t *testing.T) {
	s := &mockSearcher{searchFn: func(context.Context, searchuc.Request) (searchuc.Response, error) {
		return searchuc.Response{Degraded: true, Reason: "timeout"}, nil
	}}
	h := newTestServer(s, nil, nil, Options{})

	rr := do(t, h, http.MethodPost, "/collections/products/search", `{"text":"x"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if rr.Header().Get("X-Embedding-Tokens") != "" {
		t.Error("no embedding used, header must be absent")
	}
	resp := decodeBody[SearchResponse](t, rr)
	if !resp.Degraded || resp.DegradedReason != "timeout" {
		t.Errorf("got degraded=%v reason=%q", resp.Degraded, resp.DegradedReason)
	}
	if resp.Hits == nil {
		t.Error("hits must be an empty array")
	}
}

func TestSearch_DomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"not found", fmt.Errorf("get: %w", domain.ErrCollectionNotFound), http.StatusNotFound, CodeCollectionNotFound},
		{"dim mismatch", domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch},
		{"invalid query", fmt.Errorf("%w: bad sort", domain.ErrInvalidQuery), http.StatusBadRequest, CodeValidationFailed},
		{"retrieval", &domain.RetrievalError{Op: "search", Err: errors.New("conn reset")}, http.StatusBadGateway, CodeIndexUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockSearcher{searchFn: func(context.Context, searchuc.Request) (searchuc.Response, error) {
				return searchuc.Response{}, tt.err
			}}
			h := newTestServer(s, nil, nil, Options{})

			rr := do(t, h, http.MethodPost, "/collections/c/search", `{"text":"x"}`)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			resp := decodeBody[ErrorResponse](t, rr)
			if resp.Code != tt.code {
				t.Errorf("code: got %s, want %s", resp.Code, tt.code)
			}
			if tt.code == CodeInternalError && strings.Contains(resp.Message, "boom") {
				t.Errorf("internal error leaked: %q", resp.Message)
			}
		})
	}
}

func TestSearch_BadRequests(t *testing.T) {
	s := &mockSearcher{searchFn: func(context.Context, searchuc.Request) (searchuc.Response, error) {
		t.Fatal("searcher must not be called")
		return searchuc.Response{}, nil
	}}
	h := newTestServer(s, nil, nil, Options{MaxBodyBytes: 256})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"text":`, http.StatusBadRequest},
		{"unknown field", `{"txt":"x"}`, http.StatusBadRequest},
		{"zero limit", `{"text":"x","limit":0}`, http.StatusBadRequest},
		{"bad sort order", `{"text":"x","sort_by":"price:up"}`, http.StatusBadRequest},
		{"empty sort field", `{"text":"x","sort_by":":desc"}`, http.StatusBadRequest},
		{"match and range", `{"filters":{"must":[{"key":"a","match":"b","range":{"gt":1}}]}}`, http.StatusBadRequest},
		{"empty condition", `{"filters":{"must":[{"key":"a"}]}}`, http.StatusBadRequest},
		{"body too large", `{"text":"` + strings.Repeat("x", 512) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/collections/c/search", tt.body)
			if rr.Code != tt.status {
				t.Errorf("status: got %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

// --- Multi search ---

func TestMultiSearch_OK(t *testing.T) {
	var got []searchuc.Request
	s := &mockSearcher{batchFn: func(_ context.Context, reqs []searchuc.Request) ([]searchuc.Response, error) {
		got = reqs
		out := make([]searchuc.Response, len(reqs))
		for i, r := range reqs {
			out[i] = searchuc.Response{Hits: []result.Hit{{ID: r.Collection + "-1"}}}
		}
		out[1].Degraded = true
		out[1].Reason = "disabled"
		return out, nil
	}}
	h := newTestServer(s, nil, nil, Options{})

	rr := do(t, h, http.MethodPost, "/search/multi",
		`{"searches":[{"collection":"products","text":"shoes"},{"collection":"photos","text":"cat","limit":3}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(got) != 2 || got[0].Collection != "products" || got[1].Limit != 3 {
		t.Errorf("unexpected requests: %+v", got)
	}

	resp := decodeBody[MultiSearchResponse](t, rr)
	if len(resp.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Hits[0].ID != "products-1" || resp.Results[1].Hits[0].ID != "photos-1" {
		t.Errorf("results out of order: %+v", resp.Results)
	}
	if !resp.Results[1].Degraded {
		t.Error("second result should be degraded")
	}
}

func TestMultiSearch_Validation(t *testing.T) {
	s := &mockSearcher{batchFn: func(context.Context, []searchuc.Request) ([]searchuc.Response, error) {
		t.Fatal("searcher must not be called")
		return nil, nil
	}}
	h := newTestServer(s, nil, nil, Options{MaxBatchSize: 2})

	tests := []struct {
		name string
		body string
	}{
		{"empty", `{"searches":[]}`},
		{"too many", `{"searches":[{"collection":"a"},{"collection":"b"},{"collection":"c"}]}`},
		{"missing collection", `{"searches":[{"text":"x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/search/multi", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

func TestMultiSearch_Error(t *testing.T) {
	s := &mockSearcher{batchFn: func(context.Context, []searchuc.Request) ([]searchuc.Response, error) {
		return nil, fmt.Errorf("plan: %w", domain.ErrCollectionNotFound)
	}}
	h := newTestServer(s, nil, nil, Options{})

	rr := do(t, h, http.MethodPost, "/search/multi", `{"searches":[{"collection":"nope"}]}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- Classify ---

func TestClassify(t *testing.T) {
	c := &mockClassifier{res: classifyuc.Result{
		Label:      "pets",
		Confidence: 1.42,
		Modalities: []string{"text", "image"},
	}}
	h := newTestServer(nil, c, nil, Options{})

	rr := do(t, h, http.MethodPost, "/classify", `{"caption":"my cat","image":"aGVsbG8=","default_group":"misc"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if c.got.Caption != "my cat" || c.got.Image != "aGVsbG8=" || c.got.DefaultGroup != "misc" {
		t.Errorf("unexpected input: %+v", c.got)
	}

	resp := decodeBody[ClassifyResponse](t, rr)
	if resp.Label != "pets" || resp.Confidence != 1.42 || resp.UsedDefault {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Modalities) != 2 {
		t.Errorf("modalities: got %v", resp.Modalities)
	}
}

func TestClassify_DefaultHasEmptyModalities(t *testing.T) {
	c := &mockClassifier{res: classifyuc.Result{Label: "general", UsedDefault: true}}
	h := newTestServer(nil, c, nil, Options{})

	rr := do(t, h, http.MethodPost, "/classify", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"modalities":[]`) {
		t.Errorf("modalities must serialize as []: %s", rr.Body.String())
	}
}

// --- Fuse ---

func TestFuse(t *testing.T) {
	s := &mockSearcher{}
	h := newTestServer(s, nil, nil, Options{})

	rr := do(t, h, http.MethodPost, "/fuse", `{"sources":[
		{"weight":1,"hits":[{"id":"a","distance":0.1},{"id":"b","distance":0.2},{"id":"only1","distance":0}]},
		{"weight":2,"hits":[{"id":"b","distance":0.1},{"id":"a","distance":0.3}]}
	]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(s.fused) != 2 {
		t.Fatalf("sources passed: got %d", len(s.fused))
	}

	resp := decodeBody[FuseResponse](t, rr)
	if len(resp.Items) != 2 {
		t.Fatalf("items: got %+v, want a and b only", resp.Items)
	}
	if resp.Items[0].ID != "b" || resp.Items[1].ID != "a" {
		t.Errorf("order: got %s, %s", resp.Items[0].ID, resp.Items[1].ID)
	}
	if resp.Items[0].Sources != 2 {
		t.Errorf("sources: got %d", resp.Items[0].Sources)
	}
}

func TestFuse_InvalidSource(t *testing.T) {
	h := newTestServer(&mockSearcher{}, nil, nil, Options{})

	for _, body := range []string{
		`{"sources":[{"weight":0,"hits":[]}]}`,
		`{"sources":[{"weight":1,"hits":[{"id":"a","distance":-1}]}]}`,
		`{"sources":[{"weight":1,"hits":[{"id":"","distance":1}]}]}`,
	} {
		rr := do(t, h, http.MethodPost, "/fuse", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", body, rr.Code)
		}
	}
}

// --- Health and routing ---

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		status healthuc.Status
		code   int
	}{
		{"healthy", healthuc.Healthy, http.StatusOK},
		{"degraded", healthuc.Degraded, http.StatusOK},
		{"unhealthy", healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := &mockHealth{report: healthuc.Report{
				Status:         tt.status,
				Checks:         map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
				MissingIndexes: []string{"photos"},
			}}
			h := newTestServer(nil, nil, hc, Options{APIKeys: []string{"secret"}})

			rr := do(t, h, http.MethodGet, "/health", "")
			if rr.Code != tt.code {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.code)
			}
			resp := decodeBody[HealthResponse](t, rr)
			if resp.Status != string(tt.status) || resp.Checks["database"] != "ok" {
				t.Errorf("unexpected response: %+v", resp)
			}
			if len(resp.MissingIndexes) != 1 {
				t.Errorf("missing indexes: got %v", resp.MissingIndexes)
			}
		})
	}
}

func TestRoutes_AuthAndRequestID(t *testing.T) {
	h := newTestServer(nil, nil, nil, Options{APIKeys: []string{"secret"}})

	rr := do(t, h, http.MethodPost, "/classify", `{}`)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID must be set")
	}
}

func TestRoutes_NotFoundAndMethod(t *testing.T) {
	h := newTestServer(nil, nil, nil, Options{})

	if rr := do(t, h, http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/classify", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: got %d", rr.Code)
	}
}

func TestRoutes_PanicRecovered(t *testing.T) {
	c := &panickingClassifier{}
	h := newTestServer(nil, c, nil, Options{})

	rr := do(t, h, http.MethodPost, "/classify", `{}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
	resp := decodeBody[ErrorResponse](t, rr)
	if resp.Code != CodeInternalError {
		t.Errorf("code: got %s", resp.Code)
	}
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, classifyuc.Input) classifyuc.Result {
	panic("boom")
}

func TestParseSortBy(t *testing.T) {
	tests := []struct {
		in      string
		field   string
		desc    bool
		wantErr bool
	}{
		{"", "", false, false},
		{"price", "price", false, false},
		{"price:asc", "price", false, false},
		{"price:DESC", "price", true, false},
		{"price:sideways", "", false, true},
		{":asc", "", false, true},
	}
	for _, tt := range tests {
		field, desc, err := parseSortBy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSortBy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if field != tt.field || desc != tt.desc {
			t.Errorf("parseSortBy(%q) = %q, %v", tt.in, field, desc)
		}
	}
}
