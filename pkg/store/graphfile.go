package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/graftlab/graft/pkg/common"
)

// graphDocument is the on-disk representation of the file backend: a
// directed multigraph with nodes carrying open attribute maps and edges
// keyed by (source, target, key), where key is the relationship's derived
// id. It round-trips losslessly through save/load.
type graphDocument struct {
	Directed   bool        `json:"directed"`
	Multigraph bool        `json:"multigraph"`
	Nodes      []graphNode `json:"nodes"`
	Edges      []graphEdge `json:"edges"`
}

type graphNode struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Type        string            `json:"type"`
	Attributes  map[string]any    `json:"attributes,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type graphEdge struct {
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Key        string            `json:"key"`
	Type       string            `json:"type"`
	Attributes map[string]any    `json:"attributes,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// FileStorage is the locally persisted backend. Mutations operate on the
// in-memory graph only; durability is explicit via Save, which callers must
// schedule themselves. The graph file is loaded once at construction when
// it exists.
type FileStorage struct {
	mu            sync.RWMutex
	path          string
	entities      map[string]common.Entity
	relationships map[string]common.Relationship
}

// NewFileStorage creates a file-persisted graph store rooted at path,
// loading the existing graph file if one is present.
func NewFileStorage(path string) (*FileStorage, error) {
	s := &FileStorage{
		path:          path,
		entities:      make(map[string]common.Entity),
		relationships: make(map[string]common.Relationship),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load graph file %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStorage) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var doc graphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse graph document: %w", err)
	}

	for _, node := range doc.Nodes {
		s.entities[node.ID] = common.Entity{
			ID:          node.ID,
			Name:        node.Name,
			Description: node.Description,
			Type:        node.Type,
			Attributes:  node.Attributes,
			Metadata:    node.Metadata,
		}
	}
	for _, edge := range doc.Edges {
		s.relationships[edge.Key] = common.Relationship{
			ID:         edge.Key,
			Source:     edge.Source,
			Target:     edge.Target,
			Type:       edge.Type,
			Attributes: edge.Attributes,
			Metadata:   edge.Metadata,
		}
	}
	return nil
}

// Save writes the current graph to the graph file. The document is written
// to a temp file in the same directory and renamed over the target, so a
// failed write never truncates an existing graph.
func (s *FileStorage) Save(ctx context.Context) error {
	s.mu.RLock()
	doc := s.document()
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize graph document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".graph-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp graph file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write graph file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close graph file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace graph file: %w", err)
	}
	return nil
}

// Compact rewrites the graph file in canonical order (nodes and edges
// sorted by id), reclaiming space left by collapsed and pruned records.
func (s *FileStorage) Compact(ctx context.Context) error {
	return s.Save(ctx)
}

// document assembles the serializable form with deterministic ordering.
// Callers must hold at least a read lock.
func (s *FileStorage) document() graphDocument {
	doc := graphDocument{
		Directed:   true,
		Multigraph: true,
		Nodes:      make([]graphNode, 0, len(s.entities)),
		Edges:      make([]graphEdge, 0, len(s.relationships)),
	}

	for _, entity := range s.entities {
		doc.Nodes = append(doc.Nodes, graphNode{
			ID:          entity.ID,
			Name:        entity.Name,
			Description: entity.Description,
			Type:        entity.Type,
			Attributes:  entity.Attributes,
			Metadata:    entity.Metadata,
		})
	}
	for _, rel := range s.relationships {
		doc.Edges = append(doc.Edges, graphEdge{
			Source:     rel.Source,
			Target:     rel.Target,
			Key:        rel.ID,
			Type:       rel.Type,
			Attributes: rel.Attributes,
			Metadata:   rel.Metadata,
		})
	}

	sort.Slice(doc.Nodes, func(i, j int) bool { return doc.Nodes[i].ID < doc.Nodes[j].ID })
	sort.Slice(doc.Edges, func(i, j int) bool { return doc.Edges[i].Key < doc.Edges[j].Key })

	return doc
}

func (s *FileStorage) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		return common.Entity{}, ErrNotFound
	}
	return entity.Clone(), nil
}

func (s *FileStorage) MergeEntity(ctx context.Context, entity common.Entity) (common.Entity, error) {
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

func (s *FileStorage) DeleteEntity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entities, id)
	return nil
}

func (s *FileStorage) GetRelationship(ctx context.Context, id string) (common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.relationships[id]
	if !ok {
		return common.Relationship{}, ErrNotFound
	}
	return rel.Clone(), nil
}

func (s *FileStorage) MergeRelationship(ctx context.Context, rel common.Relationship) (common.Relationship, error) {
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

func (s *FileStorage) DeleteRelationship(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.relationships, id)
	return nil
}

func (s *FileStorage) FindDuplicateEntities(ctx context.Context) ([][]common.Entity, error) {
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

func (s *FileStorage) GetKnowledgeGraph(ctx context.Context) (common.KnowledgeGraph, error) {
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

// Close persists the graph one final time before releasing the store.
func (s *FileStorage) Close(ctx context.Context) error {
	return s.Save(ctx)
}
