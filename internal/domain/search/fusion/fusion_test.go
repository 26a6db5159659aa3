package fusion

import (
	"math"
	"testing"
)

func TestCombine_ConsensusGate(t *testing.T) {
	a := Source{Hits: []Item{{ID: "x", Distance: 0.1}}, Weight: 1.0}
	b := Source{Weight: 1.0}

	got := Combine([]Source{a, b})
	if len(got) != 0 {
		t.Fatalf("Combine() = %v, want empty", got)
	}
}

func TestCombine_SingleSourceRepeatsDoNotPassGate(t *testing.T) {
	a := Source{Hits: []Item{{ID: "x", Distance: 0.1}, {ID: "x", Distance: 0.2}}, Weight: 1.0}
	b := Source{Hits: []Item{{ID: "y", Distance: 0.3}}, Weight: 1.0}

	if got := Combine([]Source{a, b}); len(got) != 0 {
		t.Fatalf("Combine() = %v, want empty", got)
	}
}

func TestCombine_Weighting(t *testing.T) {
	a := Source{Hits: []Item{{ID: "x", Distance: 0.2}}, Weight: 1.0}
	b := Source{Hits: []Item{{ID: "x", Distance: 0.4}}, Weight: 0.5}

	got := Combine([]Source{a, b})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != "x" {
		t.Errorf("ID = %q, want x", got[0].ID)
	}
	if math.Abs(got[0].WeightedDistance-0.4) > 1e-9 {
		t.Errorf("WeightedDistance = %f, want 0.4", got[0].WeightedDistance)
	}
	if got[0].Sources != 2 {
		t.Errorf("Sources = %d, want 2", got[0].Sources)
	}
}

func TestCombine_AscendingWithStableTies(t *testing.T) {
	a := Source{Hits: []Item{
		{ID: "p", Distance: 0.5},
		{ID: "q", Distance: 0.1},
		{ID: "r", Distance: 0.25},
		{ID: "s", Distance: 0.2},
	}, Weight: 1}
	b := Source{Hits: []Item{
		{ID: "s", Distance: 0.1},
		{ID: "r", Distance: 0.05},
		{ID: "q", Distance: 0.2},
		{ID: "p", Distance: 0.5},
	}, Weight: 1}

	got := Combine([]Source{a, b})
	want := []string{"q", "r", "s", "p"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d] = %q, want %q (full: %v)", i, got[i].ID, id, got)
		}
	}
}

func TestCombine_Empty(t *testing.T) {
	if got := Combine(nil); len(got) != 0 {
		t.Errorf("Combine(nil) = %v", got)
	}
	if got := Combine([]Source{{Weight: 1}, {Weight: 2}}); len(got) != 0 {
		t.Errorf("Combine(empty sources) = %v", got)
	}
}

func TestCombine_Deterministic(t *testing.T) {
	a := Source{Hits: []Item{{ID: "x", Distance: 0.3}, {ID: "y", Distance: 0.3}}, Weight: 1}
	b := Source{Hits: []Item{{ID: "y", Distance: 0.3}, {ID: "x", Distance: 0.3}}, Weight: 1}

	first := Combine([]Source{a, b})
	for range 10 {
		again := Combine([]Source{a, b})
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("run differs: %v vs %v", first, again)
			}
		}
	}
	if first[0].ID != "x" {
		t.Errorf("tie should keep first-seen order, got %q first", first[0].ID)
	}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name    string
		weight  float64
		hits    []Item
		wantErr bool
	}{
		{"valid", 0.5, []Item{{ID: "a", Distance: 0.1}}, false},
		{"empty hits", 1, nil, false},
		{"zero weight", 0, nil, true},
		{"negative weight", -1, nil, true},
		{"nan weight", math.NaN(), nil, true},
		{"negative distance", 1, []Item{{ID: "a", Distance: -0.1}}, true},
		{"empty id", 1, []Item{{Distance: 0.1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSource(tt.weight, tt.hits)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSource() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
