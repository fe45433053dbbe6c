package common

import (
	"reflect"
	"testing"
)

func TestRelationshipID(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		relType string
		target  string
		want    string
	}{
		{"Simple", "ml", "part_of", "ai", "ml__part_of__ai"},
		{"SameEndpoints", "a", "self", "a", "a__self__a"},
		{"EmptyType", "a", "", "b", "a____b"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RelationshipID(tc.source, tc.relType, tc.target)
			if got != tc.want {
				t.Fatalf("RelationshipID(%q, %q, %q) = %q, want %q", tc.source, tc.relType, tc.target, got, tc.want)
			}
		})
	}
}

func TestDerivedID_IgnoresStoredID(t *testing.T) {
	rel := Relationship{ID: "stale", Source: "ml", Type: "part_of", Target: "ai"}
	if got := rel.DerivedID(); got != "ml__part_of__ai" {
		t.Fatalf("expected ml__part_of__ai, got %q", got)
	}
}

func TestUnionMaps_ProposedWins(t *testing.T) {
	existing := map[string]any{"a": 1, "b": "old"}
	proposed := map[string]any{"b": "new", "c": true}

	got := UnionMaps(existing, proposed)
	want := map[string]any{"a": 1, "b": "new", "c": true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Inputs must stay untouched.
	if existing["b"] != "old" {
		t.Fatalf("existing map mutated: %v", existing)
	}
	if len(proposed) != 2 {
		t.Fatalf("proposed map mutated: %v", proposed)
	}
}

func TestUnionMaps_NilInputs(t *testing.T) {
	if got := UnionMaps[string, string](nil, nil); got != nil {
		t.Fatalf("expected nil for nil inputs, got %v", got)
	}

	got := UnionMaps(nil, map[string]string{"k": "v"})
	if !reflect.DeepEqual(got, map[string]string{"k": "v"}) {
		t.Fatalf("expected proposed copy, got %v", got)
	}
}

func TestEntityKeepAlways(t *testing.T) {
	tests := []struct {
		name   string
		entity Entity
		want   bool
	}{
		{"NoMetadata", Entity{ID: "a"}, false},
		{"OtherKeys", Entity{Metadata: map[string]string{"origin": "doc"}}, false},
		{"True", Entity{Metadata: map[string]string{MetadataKeepAlways: "true"}}, true},
		{"AnyValue", Entity{Metadata: map[string]string{MetadataKeepAlways: "1"}}, true},
		{"EmptyValue", Entity{Metadata: map[string]string{MetadataKeepAlways: ""}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.entity.KeepAlways(); got != tc.want {
				t.Fatalf("KeepAlways() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEntityClone_Independent(t *testing.T) {
	orig := Entity{
		ID:         "ml",
		Name:       "Machine Learning",
		Type:       "concept",
		Attributes: map[string]any{"note": "original"},
		Metadata:   map[string]string{"origin": "doc1"},
	}

	clone := orig.Clone()
	clone.Attributes["note"] = "changed"
	clone.Metadata["origin"] = "doc2"

	if orig.Attributes["note"] != "original" {
		t.Fatalf("clone shares attributes map with original: %v", orig.Attributes)
	}
	if orig.Metadata["origin"] != "doc1" {
		t.Fatalf("clone shares metadata map with original: %v", orig.Metadata)
	}
}

func TestKnowledgeGraphClone_Independent(t *testing.T) {
	orig := KnowledgeGraph{
		Entities: []Entity{
			{ID: "ml", Name: "ML", Type: "concept", Attributes: map[string]any{"k": "v"}},
		},
		Relationships: []Relationship{
			{ID: "ml__part_of__ai", Source: "ml", Target: "ai", Type: "part_of"},
		},
	}

	clone := orig.Clone()
	clone.Entities[0].Attributes["k"] = "mutated"
	clone.Relationships[0].Type = "other"

	if orig.Entities[0].Attributes["k"] != "v" {
		t.Fatalf("clone shares entity attributes with original")
	}
	if orig.Relationships[0].Type != "part_of" {
		t.Fatalf("clone shares relationship slice with original")
	}
}

func TestFindEntityAndRelationship(t *testing.T) {
	g := KnowledgeGraph{
		Entities:      []Entity{{ID: "ml"}, {ID: "ai"}},
		Relationships: []Relationship{{ID: "ml__part_of__ai", Source: "ml", Target: "ai", Type: "part_of"}},
	}

	if _, ok := g.FindEntity("ml"); !ok {
		t.Fatal("expected to find entity ml")
	}
	if _, ok := g.FindEntity("missing"); ok {
		t.Fatal("did not expect to find entity missing")
	}
	if _, ok := g.FindRelationship("ml__part_of__ai"); !ok {
		t.Fatal("expected to find relationship")
	}

	ids := g.EntityIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 entity ids, got %d", len(ids))
	}
	if _, ok := ids["ai"]; !ok {
		t.Fatal("expected ai in entity id set")
	}
}
