package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/graftlab/graft/pkg/common"
)

// backendsUnderTest returns every backend constructor that needs no
// external service. The whole contract suite runs against each of them.
func backendsUnderTest(t *testing.T) map[string]GraphStorage {
	t.Helper()

	fileStore, err := NewFileStorage(filepath.Join(t.TempDir(), "graph.json"))
	if err != nil {
		t.Fatalf("failed to create file storage: %v", err)
	}

	return map[string]GraphStorage{
		"memory": NewMemoryStorage(),
		"file":   fileStore,
	}
}

func TestGetEntityNotFound(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := backend.GetEntity(ctx, "missing")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestMergeEntityInsertAndUpdate(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			inserted, err := backend.MergeEntity(ctx, common.Entity{
				ID:          "ml",
				Name:        "Machine Learning",
				Description: "A field of AI",
				Type:        "concept",
				Attributes:  map[string]any{"domain": "cs"},
			})
			if err != nil {
				t.Fatalf("insert failed: %v", err)
			}
			if inserted.Name != "Machine Learning" {
				t.Fatalf("expected inserted name, got %q", inserted.Name)
			}

			// Shallow merge: set fields overwrite, unset fields survive.
			merged, err := backend.MergeEntity(ctx, common.Entity{
				ID:         "ml",
				Name:       "ML",
				Attributes: map[string]any{"note": "updated"},
			})
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}
			if merged.Name != "ML" {
				t.Fatalf("expected overwritten name ML, got %q", merged.Name)
			}
			if merged.Description != "A field of AI" {
				t.Fatalf("expected description to survive, got %q", merged.Description)
			}
			if merged.Type != "concept" {
				t.Fatalf("expected type to survive, got %q", merged.Type)
			}
			if !reflect.DeepEqual(merged.Attributes, map[string]any{"note": "updated"}) {
				t.Fatalf("expected incoming attributes to replace, got %v", merged.Attributes)
			}

			stored, err := backend.GetEntity(ctx, "ml")
			if err != nil {
				t.Fatalf("get after merge failed: %v", err)
			}
			if !reflect.DeepEqual(stored, merged) {
				t.Fatalf("stored entity differs from merge result: %v vs %v", stored, merged)
			}
		})
	}
}

func TestMergeEntityIdempotent(t *testing.T) {
	ctx := context.Background()
	entity := common.Entity{
		ID:         "ai",
		Name:       "AI",
		Type:       "concept",
		Attributes: map[string]any{"area": "cs"},
		Metadata:   map[string]string{"keep_always": "true"},
	}

	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			first, err := backend.MergeEntity(ctx, entity)
			if err != nil {
				t.Fatalf("first merge failed: %v", err)
			}
			second, err := backend.MergeEntity(ctx, entity)
			if err != nil {
				t.Fatalf("second merge failed: %v", err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("merge is not idempotent: %v vs %v", first, second)
			}

			graph, err := backend.GetKnowledgeGraph(ctx)
			if err != nil {
				t.Fatalf("snapshot failed: %v", err)
			}
			if len(graph.Entities) != 1 {
				t.Fatalf("expected 1 entity, got %d", len(graph.Entities))
			}
		})
	}
}

func TestMergeRelationshipDerivesID(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			rel, err := backend.MergeRelationship(ctx, common.Relationship{
				Source: "ml",
				Target: "ai",
				Type:   "part_of",
			})
			if err != nil {
				t.Fatalf("merge failed: %v", err)
			}
			if rel.ID != "ml__part_of__ai" {
				t.Fatalf("expected derived id, got %q", rel.ID)
			}

			// Same triple again is an update, not a parallel edge.
			_, err = backend.MergeRelationship(ctx, common.Relationship{
				Source:     "ml",
				Target:     "ai",
				Type:       "part_of",
				Attributes: map[string]any{"strength": 0.9},
			})
			if err != nil {
				t.Fatalf("second merge failed: %v", err)
			}

			graph, err := backend.GetKnowledgeGraph(ctx)
			if err != nil {
				t.Fatalf("snapshot failed: %v", err)
			}
			if len(graph.Relationships) != 1 {
				t.Fatalf("expected 1 relationship, got %d", len(graph.Relationships))
			}
			if !reflect.DeepEqual(graph.Relationships[0].Attributes, map[string]any{"strength": 0.9}) {
				t.Fatalf("expected updated attributes, got %v", graph.Relationships[0].Attributes)
			}
		})
	}
}

func TestFindDuplicateEntities(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		entities   []common.Entity
		wantGroups int
	}{
		{
			name: "CaseInsensitiveNameMatch",
			entities: []common.Entity{
				{ID: "a", Name: "Foo", Type: "X"},
				{ID: "b", Name: "foo", Type: "X"},
			},
			wantGroups: 1,
		},
		{
			name: "DifferentTypeIsNoDuplicate",
			entities: []common.Entity{
				{ID: "a", Name: "Foo", Type: "X"},
				{ID: "b", Name: "foo", Type: "Y"},
			},
			wantGroups: 0,
		},
		{
			name: "SingletonsExcluded",
			entities: []common.Entity{
				{ID: "a", Name: "Foo", Type: "X"},
				{ID: "b", Name: "Bar", Type: "X"},
			},
			wantGroups: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for name, backend := range backendsUnderTest(t) {
				t.Run(name, func(t *testing.T) {
					for _, entity := range tc.entities {
						if _, err := backend.MergeEntity(ctx, entity); err != nil {
							t.Fatalf("merge failed: %v", err)
						}
					}
					groups, err := backend.FindDuplicateEntities(ctx)
					if err != nil {
						t.Fatalf("find duplicates failed: %v", err)
					}
					if len(groups) != tc.wantGroups {
						t.Fatalf("expected %d groups, got %d", tc.wantGroups, len(groups))
					}
				})
			}
		})
	}
}

func TestDeleteIsNoOpForAbsentIDs(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := backend.DeleteEntity(ctx, "missing"); err != nil {
				t.Fatalf("delete entity errored: %v", err)
			}
			if err := backend.DeleteRelationship(ctx, "missing"); err != nil {
				t.Fatalf("delete relationship errored: %v", err)
			}
		})
	}
}

func TestNewGraphStorageUnknownType(t *testing.T) {
	_, err := NewGraphStorage(context.Background(), Config{Type: "cassandra"})
	if err == nil {
		t.Fatal("expected configuration error for unknown backend type")
	}
}

func sortedEntityIDs(graph common.KnowledgeGraph) []string {
	ids := make([]string, 0, len(graph.Entities))
	for _, e := range graph.Entities {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}
