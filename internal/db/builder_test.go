package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_Collection(t *testing.T) {
	idx, err := NewIndex("vecmatch:products:idx").
		Prefix("vecmatch:products:").
		Text("name").
		TextWeighted("description", 0.5).
		Tag("brand").
		Numeric("price").
		VectorHNSW("embedding", 1024, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(idx.Fields) != 5 {
		t.Fatalf("fields count = %d, want 5", len(idx.Fields))
	}
	if idx.Fields[0].Type != IndexFieldText {
		t.Errorf("field[0] = %+v, want TEXT", idx.Fields[0])
	}
	if idx.Fields[1].TextWeight != 0.5 {
		t.Errorf("field[1].TextWeight = %f, want 0.5", idx.Fields[1].TextWeight)
	}
	if idx.Fields[2].Type != IndexFieldTag || idx.Fields[3].Type != IndexFieldNumeric {
		t.Errorf("fields[2:4] = %+v", idx.Fields[2:4])
	}
	v := idx.Fields[4]
	if v.VectorDim != 1024 || v.VectorM != 16 || v.VectorEFConstruct != 200 {
		t.Errorf("vector field = %+v", v)
	}
	if v.VectorDistance != DistanceCosine {
		t.Errorf("distance = %q, want COSINE", v.VectorDistance)
	}
}

func TestIndexBuilder_MultiplePrefixes(t *testing.T) {
	idx, err := NewIndex("multi-idx").
		Prefix("a:", "b:", "c:").
		Tag("x").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Prefixes) != 3 {
		t.Errorf("prefix count = %d, want 3", len(idx.Prefixes))
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder func() (*IndexDefinition, error)
		wantErr string
	}{
		{
			name: "empty name",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("").Tag("x").Build()
			},
			wantErr: "index name is required",
		},
		{
			name: "no fields",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Build()
			},
			wantErr: "at least one field",
		},
		{
			name: "vector without dim",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").VectorHNSW("v", 0, DistanceCosine, 0, 0).Build()
			},
			wantErr: "positive DIM",
		},
		{
			name: "invalid characters",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx with spaces").Tag("x").Build()
			},
			wantErr: "invalid characters",
		},
		{
			name: "duplicate fields",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Tag("x").Numeric("x").Build()
			},
			wantErr: "duplicate field name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx, err := NewIndex("my-idx").
		Prefix("doc:").
		Tag("cat").
		VectorHNSW("vec", 512, DistanceCosine, 0, 0).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	s := idx.String()
	if !strings.HasPrefix(s, "FT.CREATE my-idx ON HASH PREFIX 1 doc: SCHEMA") {
		t.Errorf("unexpected prefix: %q", s)
	}
	if !strings.HasSuffix(s, "vec VECTOR HNSW") {
		t.Errorf("unexpected suffix: %q", s)
	}
}

func TestQuery_IsHybrid(t *testing.T) {
	alpha := 0.5
	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"lexical", Query{Text: "shoes"}, false},
		{"vector", Query{Vector: &VectorQuery{Field: "v", K: 2}}, false},
		{"vector with alpha but no text", Query{Vector: &VectorQuery{Alpha: &alpha}}, false},
		{"hybrid", Query{Text: "shoes", Vector: &VectorQuery{Alpha: &alpha}}, true},
	}
	for _, tt := range tests {
		if got := tt.q.IsHybrid(); got != tt.want {
			t.Errorf("%s: IsHybrid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
