package store

import (
	"context"
	"sync"

	"github.com/graftlab/graft/pkg/common"
)

// MemoryStorage is the transient in-memory backend: two maps behind an
// RWMutex, no persistence. It is the default backend and the reference
// implementation of the merge contract.
type MemoryStorage struct {
	mu            sync.RWMutex
	entities      map[string]common.Entity
	relationships map[string]common.Relationship
}

// NewMemoryStorage creates an empty in-memory graph store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entities:      make(map[string]common.Entity),
		relationships: make(map[string]common.Relationship),
	}
}

func (s *MemoryStorage) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		return common.Entity{}, ErrNotFound
	}
	return entity.Clone(), nil
}

func (s *MemoryStorage) MergeEntity(ctx context.Context, entity common.Entity) (common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entities[entity.ID]
	if !ok {
		stored := entity.Clone()
		s.entities[entity.ID] = stored
		return stored.Clone(), nil
	}

	merged := mergeEntityRecord(existing, entity)
	s.entities[entity.ID] = merged
	return merged.Clone(), nil
}

func (s *MemoryStorage) DeleteEntity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entities, id)
	return nil
}

func (s *MemoryStorage) GetRelationship(ctx context.Context, id string) (common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.relationships[id]
	if !ok {
		return common.Relationship{}, ErrNotFound
	}
	return rel.Clone(), nil
}

func (s *MemoryStorage) MergeRelationship(ctx context.Context, rel common.Relationship) (common.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rel.ID == "" {
		rel.ID = rel.DerivedID()
	}

	existing, ok := s.relationships[rel.ID]
	if !ok {
		stored := rel.Clone()
		s.relationships[rel.ID] = stored
		return stored.Clone(), nil
	}

	merged := mergeRelationshipRecord(existing, rel)
	s.relationships[rel.ID] = merged
	return merged.Clone(), nil
}

func (s *MemoryStorage) DeleteRelationship(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.relationships, id)
	return nil
}

func (s *MemoryStorage) FindDuplicateEntities(ctx context.Context) ([][]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make(map[string][]common.Entity)
	for _, entity := range s.entities {
		key := duplicateKey(entity)
		groups[key] = append(groups[key], entity.Clone())
	}

	duplicates := make([][]common.Entity, 0)
	for _, group := range groups {
		if len(group) > 1 {
			duplicates = append(duplicates, group)
		}
	}
	return duplicates, nil
}

func (s *MemoryStorage) GetKnowledgeGraph(ctx context.Context) (common.KnowledgeGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	graph := common.KnowledgeGraph{
		Entities:      make([]common.Entity, 0, len(s.entities)),
		Relationships: make([]common.Relationship, 0, len(s.relationships)),
	}
	for _, entity := range s.entities {
		graph.Entities = append(graph.Entities, entity.Clone())
	}
	for _, rel := range s.relationships {
		graph.Relationships = append(graph.Relationships, rel.Clone())
	}
	return graph, nil
}

func (s *MemoryStorage) Close(ctx context.Context) error {
	return nil
}
