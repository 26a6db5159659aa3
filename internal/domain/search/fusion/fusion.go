// Package fusion merges ranked distance lists from several sources into one
// consensus ranking. Lower distances are better throughout.
package fusion

import (
	"fmt"
	"math"
	"sort"
)

// Item is one (id, distance) pair contributed by a source.
type Item struct {
	ID       string
	Distance float64
}

// Source is one weighted ranked list.
type Source struct {
	Hits   []Item
	Weight float64
}

// NewSource validates a weighted source: weight must be positive and finite,
// distances must be non-negative.
func NewSource(weight float64, hits []Item) (Source, error) {
	if !(weight > 0) || math.IsInf(weight, 1) {
		return Source{}, fmt.Errorf("source weight must be positive, got %v", weight)
	}
	for _, h := range hits {
		if h.ID == "" {
			return Source{}, fmt.Errorf("hit id is required")
		}
		if h.Distance < 0 || math.IsNaN(h.Distance) {
			return Source{}, fmt.Errorf("hit %q: distance must be non-negative, got %v", h.ID, h.Distance)
		}
	}
	return Source{Hits: hits, Weight: weight}, nil
}

// Ranked is a fused result: the sum of weighted distances of an id across sources.
type Ranked struct {
	ID               string
	WeightedDistance float64
	Sources          int
}

type tally struct {
	weighted []float64
	sources  map[int]struct{}
	order    int
}

// Combine fuses sources into a single ranking sorted ascending by weighted distance.
// An id must appear in at least two distinct sources to be ranked.
// Ties keep first-seen order.
func Combine(sources []Source) []Ranked {
	tallies := make(map[string]*tally)
	var order []string

	for si, src := range sources {
		for _, h := range src.Hits {
			t, ok := tallies[h.ID]
			if !ok {
				t = &tally{sources: make(map[int]struct{}, 2), order: len(order)}
				tallies[h.ID] = t
				order = append(order, h.ID)
			}
			t.weighted = append(t.weighted, h.Distance*src.Weight)
			t.sources[si] = struct{}{}
		}
	}

	out := make([]Ranked, 0, len(order))
	for _, id := range order {
		t := tallies[id]
		if len(t.sources) <= 1 {
			continue
		}
		var sum float64
		for _, w := range t.weighted {
			sum += w
		}
		out = append(out, Ranked{ID: id, WeightedDistance: sum, Sources: len(t.sources)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WeightedDistance < out[j].WeightedDistance
	})
	return out
}
