package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecmatch/internal/db"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/filter"
)

// distanceField is the alias KNN results carry their vector distance under.
const distanceField = "__distance"

// plan is the set of FT.SEARCH commands one query expands to,
// plus the function that turns their replies into a result.
type plan struct {
	cmds     []rueidis.Completed
	assemble func(replies []rueidis.RedisResult) (*db.SearchResult, error)
}

// Search runs a single query. Hybrid queries send KNN and BM25 in one pipeline.
func (s *Store) Search(ctx context.Context, q *db.Query) (*db.SearchResult, error) {
	res, err := s.SearchMulti(ctx, []*db.Query{q})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// SearchMulti runs all queries in one DoMulti round trip. Results keep input order.
// The first failing query fails the whole batch.
func (s *Store) SearchMulti(ctx context.Context, qs []*db.Query) ([]*db.SearchResult, error) {
	if len(qs) == 0 {
		return nil, nil
	}

	plans := make([]plan, len(qs))
	var cmds []rueidis.Completed
	for i, q := range qs {
		p, err := s.planQuery(q)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		plans[i] = p
		cmds = append(cmds, p.cmds...)
	}

	replies := s.client.DoMulti(ctx, cmds...)

	out := make([]*db.SearchResult, len(qs))
	offset := 0
	for i, p := range plans {
		n := len(p.cmds)
		res, err := p.assemble(replies[offset : offset+n])
		if err != nil {
			return nil, fmt.Errorf("query %d (%s): %w", i, qs[i].IndexName, err)
		}
		offset += n
		out[i] = res
	}
	return out, nil
}

func (s *Store) planQuery(q *db.Query) (plan, error) {
	if q.IndexName == "" {
		return plan{}, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return plan{}, fmt.Errorf("limit must be positive")
	}
	if v := q.Vector; v != nil {
		if v.Field == "" || len(v.Values) == 0 {
			return plan{}, fmt.Errorf("vector field and values are required")
		}
		if v.K <= 0 {
			return plan{}, fmt.Errorf("k must be positive")
		}
	}

	switch {
	case q.IsHybrid():
		knn := s.knnCommand(q, q.Vector.K)
		bm25 := s.textCommand(q, q.Vector.K)
		return plan{
			cmds: []rueidis.Completed{knn, bm25},
			assemble: func(r []rueidis.RedisResult) (*db.SearchResult, error) {
				kres, err := readKNN(r[0])
				if err != nil {
					return nil, err
				}
				tres, err := readBM25(r[1])
				if err != nil {
					return nil, err
				}
				entries := blendRanks(kres.Entries, tres.Entries, *q.Vector.Alpha, q.Vector.Values, q.Vector.Field)
				if q.SortBy != "" {
					sortByField(entries, q.SortBy, q.SortDesc)
				}
				if len(entries) > q.Limit {
					entries = entries[:q.Limit]
				}
				return finish(q, &db.SearchResult{Total: len(entries), Entries: entries}), nil
			},
		}, nil

	case q.Vector != nil:
		return plan{
			cmds: []rueidis.Completed{s.knnCommand(q, q.Limit)},
			assemble: func(r []rueidis.RedisResult) (*db.SearchResult, error) {
				res, err := readKNN(r[0])
				if err != nil {
					return nil, err
				}
				return finish(q, res), nil
			},
		}, nil

	default:
		return plan{
			cmds: []rueidis.Completed{s.textCommand(q, q.Limit)},
			assemble: func(r []rueidis.RedisResult) (*db.SearchResult, error) {
				res, err := readBM25(r[0])
				if err != nil {
					return nil, err
				}
				return finish(q, res), nil
			},
		}, nil
	}
}

// knnCommand builds "(filter)=>[KNN k @field $BLOB AS __distance]" sorted by distance.
func (s *Store) knnCommand(q *db.Query, limit int) rueidis.Completed {
	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB AS %s]", q.Vector.K, q.Vector.Field, distanceField)

	var queryStr string
	if filterStr := buildFilter(q.Filters); filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	} else {
		queryStr = "*=>" + knnPart
	}

	args := []string{q.IndexName, queryStr, "PARAMS", "2", "BLOB", vectorToBytes(q.Vector.Values)}
	if q.SortBy != "" && !q.IsHybrid() {
		args = append(args, "SORTBY", q.SortBy, sortDir(q.SortDesc))
	} else {
		args = append(args, "SORTBY", distanceField, "ASC")
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2")

	return s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
}

// textCommand builds a BM25 query over the TEXT fields, or a filter-only scan when Text is empty.
func (s *Store) textCommand(q *db.Query, limit int) rueidis.Completed {
	var parts []string
	if filterStr := buildFilter(q.Filters); filterStr != "" {
		parts = append(parts, filterStr)
	}
	if q.Text != "" {
		parts = append(parts, buildTextClause(q.TextFields, q.Text))
	}
	queryStr := "*"
	if len(parts) > 0 {
		queryStr = strings.Join(parts, " ")
	}

	args := []string{q.IndexName, queryStr, "WITHSCORES"}
	if q.SortBy != "" && !q.IsHybrid() {
		args = append(args, "SORTBY", q.SortBy, sortDir(q.SortDesc))
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2")

	return s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
}

func buildTextClause(fields []string, text string) string {
	escaped := escapeQuery(text)
	if len(fields) == 0 {
		return "(" + escaped + ")"
	}
	return fmt.Sprintf("@%s:(%s)", strings.Join(fields, "|"), escaped)
}

func sortDir(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

// finish drops excluded payload fields.
func finish(q *db.Query, res *db.SearchResult) *db.SearchResult {
	if len(q.ExcludeFields) == 0 {
		return res
	}
	for i := range res.Entries {
		for _, f := range q.ExcludeFields {
			delete(res.Entries[i].Fields, f)
		}
	}
	return res
}

func searchError(err error) error {
	if isUnknownIndex(err) {
		return &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}
	return &db.Error{Op: db.OpSearch, Err: err}
}

// --- Result parsing ---

func readKNN(r rueidis.RedisResult) (*db.SearchResult, error) {
	raw, err := r.ToArray()
	if err != nil {
		return nil, searchError(err)
	}
	return parseKNNResult(raw)
}

func readBM25(r rueidis.RedisResult) (*db.SearchResult, error) {
	raw, err := r.ToArray()
	if err != nil {
		return nil, searchError(err)
	}
	return parseBM25Result(raw)
}

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if distStr, ok := entry.Fields[distanceField]; ok {
			if d, err := strconv.ParseFloat(distStr, 64); err == nil {
				entry.Distance = &d
				entry.Score = max(0, 1.0-d)
			}
			delete(entry.Fields, distanceField)
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseBM25Result(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/3)
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  score,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter translates filter.Expression into an FT.SEARCH pre-filter query string.
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}

	var parts []string

	for _, cond := range expr.Must() {
		parts = append(parts, buildCondition(cond))
	}

	if shouldParts := buildShouldGroup(expr.Should()); shouldParts != "" {
		parts = append(parts, shouldParts)
	}

	for _, cond := range expr.MustNot() {
		parts = append(parts, "-"+buildCondition(cond))
	}

	return strings.Join(parts, " ")
}

func buildCondition(cond filter.Condition) string {
	if cond.IsMatch() {
		return fmt.Sprintf("@%s:{%s}", cond.Key(), tagEscaper.Replace(cond.Match()))
	}
	if cond.IsRange() {
		return buildNumericFilter(cond.Key(), *cond.Range())
	}
	return ""
}

func buildShouldGroup(conditions []filter.Condition) string {
	if len(conditions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conditions))
	for _, cond := range conditions {
		parts = append(parts, buildCondition(cond))
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

func buildNumericFilter(key string, r filter.Range) string {
	minBound := "-inf"
	maxBound := "+inf"

	if r.GT() != nil {
		minBound = fmt.Sprintf("(%g", *r.GT())
	} else if r.GTE() != nil {
		minBound = fmt.Sprintf("%g", *r.GTE())
	}

	if r.LT() != nil {
		maxBound = fmt.Sprintf("(%g", *r.LT())
	} else if r.LTE() != nil {
		maxBound = fmt.Sprintf("%g", *r.LTE())
	}

	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

// --- Query helpers ---

// tagEscaper escapes TAG punctuation; every special char gets a backslash.
var tagEscaper = func() *strings.Replacer {
	var pairs []string
	for _, c := range ",.<>{}\"':;!@#$%^&*()-+=~ " {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

var queryEscaper = func() *strings.Replacer {
	pairs := []string{`\`, `\\`}
	for _, c := range `'"@{}()|-~*[]!%^$<>=;+` {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func bytesToVector(s string) ([]float32, bool) {
	if len(s) == 0 || len(s)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(s)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return v, true
}
