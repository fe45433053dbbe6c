package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/graftlab/graft/pkg/common"
)

func TestFileStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.json")

	first, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("failed to create file storage: %v", err)
	}

	entities := []common.Entity{
		{ID: "ml", Name: "Machine Learning", Type: "concept", Attributes: map[string]any{"domain": "cs"}},
		{ID: "ai", Name: "AI", Type: "concept", Metadata: map[string]string{"keep_always": "true"}},
	}
	for _, entity := range entities {
		if _, err := first.MergeEntity(ctx, entity); err != nil {
			t.Fatalf("merge entity failed: %v", err)
		}
	}
	if _, err := first.MergeRelationship(ctx, common.Relationship{
		Source:     "ml",
		Target:     "ai",
		Type:       "part_of",
		Attributes: map[string]any{"strength": 0.8},
	}); err != nil {
		t.Fatalf("merge relationship failed: %v", err)
	}

	if err := first.Save(ctx); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("failed to reload graph file: %v", err)
	}

	before, err := first.GetKnowledgeGraph(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	after, err := second.GetKnowledgeGraph(ctx)
	if err != nil {
		t.Fatalf("snapshot after reload failed: %v", err)
	}

	if !reflect.DeepEqual(sortedEntityIDs(before), sortedEntityIDs(after)) {
		t.Fatalf("entity sets differ after reload: %v vs %v", sortedEntityIDs(before), sortedEntityIDs(after))
	}
	if len(after.Relationships) != 1 {
		t.Fatalf("expected 1 relationship after reload, got %d", len(after.Relationships))
	}

	rel, err := second.GetRelationship(ctx, "ml__part_of__ai")
	if err != nil {
		t.Fatalf("relationship missing after reload: %v", err)
	}
	if !reflect.DeepEqual(rel.Attributes, map[string]any{"strength": 0.8}) {
		t.Fatalf("relationship attributes did not round-trip: %v", rel.Attributes)
	}

	entity, err := second.GetEntity(ctx, "ai")
	if err != nil {
		t.Fatalf("entity missing after reload: %v", err)
	}
	if entity.Metadata["keep_always"] != "true" {
		t.Fatalf("metadata did not round-trip: %v", entity.Metadata)
	}
}

func TestFileStorageMutationsAreNotAutoPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.json")

	first, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("failed to create file storage: %v", err)
	}
	if _, err := first.MergeEntity(ctx, common.Entity{ID: "ml", Name: "ML", Type: "concept"}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	// No Save: the reloaded store must be empty.
	second, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("failed to reload graph file: %v", err)
	}
	graph, err := second.GetKnowledgeGraph(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(graph.Entities) != 0 {
		t.Fatalf("expected unsaved mutation to be invisible, got %d entities", len(graph.Entities))
	}
}

func TestFileStorageCompactCapability(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.json")

	fileStore, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("failed to create file storage: %v", err)
	}

	var backend GraphStorage = fileStore
	compactor, ok := backend.(Compactor)
	if !ok {
		t.Fatal("file storage must advertise the compact capability")
	}
	if err := compactor.Compact(ctx); err != nil {
		t.Fatalf("compact failed: %v", err)
	}

	var memory GraphStorage = NewMemoryStorage()
	if _, ok := memory.(Compactor); ok {
		t.Fatal("memory storage must not advertise the compact capability")
	}
}

func TestRelationshipFloatAttributesSurviveReload(t *testing.T) {
	// JSON decodes numbers as float64; attribute maps must compare equal
	// across a save/load cycle when producers write float values.
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.json")

	first, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("failed to create file storage: %v", err)
	}
	if _, err := first.MergeEntity(ctx, common.Entity{
		ID:         "gpt",
		Name:       "GPT",
		Type:       "product",
		Attributes: map[string]any{"version": 4.0},
	}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if err := first.Save(ctx); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("failed to reload graph file: %v", err)
	}
	entity, err := second.GetEntity(ctx, "gpt")
	if err != nil {
		t.Fatalf("entity missing: %v", err)
	}
	if !reflect.DeepEqual(entity.Attributes, map[string]any{"version": 4.0}) {
		t.Fatalf("attributes changed across reload: %v", entity.Attributes)
	}
}
