package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/common"
)

// ErrNotFound is returned by Get operations when no record with the given
// id exists in the backend.
var ErrNotFound = errors.New("not found")

// GraphStorage defines the interface for persisting and querying a fused
// knowledge graph. All three backend variants (in-memory, file-persisted,
// Neo4j) implement the same contract and are interchangeable: the fusion
// engine never knows which one it is writing to.
//
// Merge operations are upserts with shallow-merge semantics: on an existing
// record, fields explicitly set on the incoming value (non-empty strings,
// non-nil maps) overwrite the stored ones and unset fields stay untouched.
// Delete operations are no-ops for absent ids. Every method may block on
// I/O; cancellation belongs to the caller's context.
type GraphStorage interface {
	GetEntity(ctx context.Context, id string) (common.Entity, error)
	MergeEntity(ctx context.Context, entity common.Entity) (common.Entity, error)
	DeleteEntity(ctx context.Context, id string) error

	GetRelationship(ctx context.Context, id string) (common.Relationship, error)
	MergeRelationship(ctx context.Context, rel common.Relationship) (common.Relationship, error)
	DeleteRelationship(ctx context.Context, id string) error

	// FindDuplicateEntities groups entities sharing the same
	// (case-insensitive name, type) pair; only clusters with more than one
	// member are returned.
	FindDuplicateEntities(ctx context.Context) ([][]common.Entity, error)

	// GetKnowledgeGraph returns a full snapshot reflecting all prior merges.
	GetKnowledgeGraph(ctx context.Context) (common.KnowledgeGraph, error)

	Close(ctx context.Context) error
}

// Compactor is an optional capability: backends that can reclaim storage
// advertise it, callers discover it by interface assertion. Not
// implementing it is valid.
type Compactor interface {
	Compact(ctx context.Context) error
}

// Saver is an optional capability for backends whose durability is
// explicit rather than per-operation. Callers needing persistence must
// schedule Save themselves.
type Saver interface {
	Save(ctx context.Context) error
}

// Storage backend types selectable through Config.Type.
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeNeo4j  = "neo4j"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	Type string

	// FilePath is the graph file location for the file backend.
	FilePath string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
}

// ConfigFromEnv assembles a Config from the environment.
func ConfigFromEnv() Config {
	return Config{
		Type:          util.GetEnvString("GRAPH_STORAGE_TYPE", TypeMemory),
		FilePath:      util.GetEnvString("GRAPH_FILE_PATH", "graph.json"),
		Neo4jURI:      util.GetEnv("NEO4J_URI"),
		Neo4jUser:     util.GetEnv("NEO4J_USER"),
		Neo4jPassword: util.GetEnv("NEO4J_PASSWORD"),
		Neo4jDatabase: util.GetEnvString("NEO4J_DATABASE", "neo4j"),
	}
}

// NewGraphStorage constructs the backend selected by cfg.Type. An unknown
// type is a configuration error and fails construction; callers treat that
// as fatal at startup.
func NewGraphStorage(ctx context.Context, cfg Config) (GraphStorage, error) {
	switch cfg.Type {
	case TypeMemory:
		return NewMemoryStorage(), nil
	case TypeFile:
		if cfg.FilePath == "" {
			return nil, errors.New("file storage requires a graph file path")
		}
		return NewFileStorage(cfg.FilePath)
	case TypeNeo4j:
		if cfg.Neo4jURI == "" {
			return nil, errors.New("neo4j storage requires a connection URI")
		}
		return NewNeo4jStorage(ctx, Neo4jParams{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
	default:
		return nil, fmt.Errorf("unsupported graph storage type: %q", cfg.Type)
	}
}

// mergeEntityRecord applies the shallow-merge contract to an existing
// entity: set fields on incoming win, unset fields keep the stored value,
// the id never changes.
func mergeEntityRecord(existing, incoming common.Entity) common.Entity {
	merged := existing.Clone()
	if incoming.Name != "" {
		merged.Name = incoming.Name
	}
	if incoming.Description != "" {
		merged.Description = incoming.Description
	}
	if incoming.Type != "" {
		merged.Type = incoming.Type
	}
	if incoming.Attributes != nil {
		merged.Attributes = common.UnionMaps(nil, incoming.Attributes)
	}
	if incoming.Metadata != nil {
		merged.Metadata = common.UnionMaps(nil, incoming.Metadata)
	}
	return merged
}

// mergeRelationshipRecord applies the shallow-merge contract to an existing
// relationship, keyed by derived id; the structural triple is part of the
// identity and never changes here.
func mergeRelationshipRecord(existing, incoming common.Relationship) common.Relationship {
	merged := existing.Clone()
	if incoming.Attributes != nil {
		merged.Attributes = common.UnionMaps(nil, incoming.Attributes)
	}
	if incoming.Metadata != nil {
		merged.Metadata = common.UnionMaps(nil, incoming.Metadata)
	}
	return merged
}

// duplicateKey is the grouping key for FindDuplicateEntities:
// case-insensitive name plus exact type.
func duplicateKey(e common.Entity) string {
	return strings.ToLower(strings.TrimSpace(e.Name)) + "\x00" + e.Type
}
