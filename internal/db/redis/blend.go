package redis

import (
	"math"
	"sort"
	"strconv"

	"github.com/kailas-cloud/vecmatch/internal/db"
)

// blendRanks merges KNN and BM25 rankings by rank position:
// score(d) = alpha/(vecRank+1) + (1-alpha)/(lexRank+1), a missing rank contributing 0.
// alpha=1 orders purely by vector rank, alpha=0 purely by lexical rank.
//
// Lexical-only hits get their distance computed from the stored vector
// returned with the BM25 reply. The vector blob itself is dropped from the payload.
func blendRanks(knn, bm25 []db.SearchEntry, alpha float64, query []float32, vectorField string) []db.SearchEntry {
	type scored struct {
		entry db.SearchEntry
		score float64
	}

	merged := make(map[string]*scored, len(knn)+len(bm25))
	order := make([]string, 0, len(knn)+len(bm25))

	for rank, e := range knn {
		merged[e.Key] = &scored{entry: e, score: alpha / float64(rank+1)}
		order = append(order, e.Key)
	}

	for rank, e := range bm25 {
		s := (1 - alpha) / float64(rank+1)
		if existing, ok := merged[e.Key]; ok {
			existing.score += s
			for k, v := range e.Fields {
				if _, has := existing.entry.Fields[k]; !has {
					existing.entry.Fields[k] = v
				}
			}
			continue
		}
		if stored, ok := bytesToVector(e.Fields[vectorField]); ok {
			if d, ok := cosineDistance(query, stored); ok {
				e.Distance = &d
			}
		}
		merged[e.Key] = &scored{entry: e, score: s}
		order = append(order, e.Key)
	}

	out := make([]db.SearchEntry, 0, len(order))
	for _, key := range order {
		m := merged[key]
		m.entry.Score = m.score
		delete(m.entry.Fields, vectorField)
		out = append(out, m.entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	return out
}

// sortByField reorders blended entries by a payload field, keeping blend order for ties.
// Values compare numerically when both parse as numbers. Entries missing the field go last.
func sortByField(entries []db.SearchEntry, field string, desc bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, aok := entries[i].Fields[field]
		b, bok := entries[j].Fields[field]
		if !aok || !bok {
			return aok && !bok
		}
		c := compareValues(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// cosineDistance returns 1 - cos(a, b), matching the COSINE metric of the index.
func cosineDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), true
}
