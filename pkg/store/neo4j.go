package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graftlab/graft/pkg/common"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStorage is the remote graph-database backend. Every operation is an
// idempotent upsert or read against the remote instance keyed by id; there
// is no local cache, so every call pays a round trip and any connectivity
// loss fails the operation.
//
// Attributes and metadata are carried as JSON string properties because
// Neo4j properties admit no nested maps.
type Neo4jStorage struct {
	driver   neo4j.DriverWithContext
	database string
}

// Neo4jParams configures the connection to the remote instance.
type Neo4jParams struct {
	URI      string
	User     string
	Password string
	Database string
}

// NewNeo4jStorage connects to the remote instance, verifies connectivity
// and ensures the id uniqueness constraint exists.
func NewNeo4jStorage(ctx context.Context, params Neo4jParams) (*Neo4jStorage, error) {
	auth := neo4j.BasicAuth(params.User, params.Password, "")
	driver, err := neo4j.NewDriverWithContext(params.URI, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = 50
		cfg.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	s := &Neo4jStorage{
		driver:   driver,
		database: params.Database,
	}

	// Best effort: older server versions reject the IF NOT EXISTS syntax.
	session := s.session(ctx)
	_, _ = session.Run(ctx, "CREATE CONSTRAINT IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE", nil)
	_ = session.Close(ctx)

	return s, nil
}

func (s *Neo4jStorage) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

func (s *Neo4jStorage) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return readEntityTx(ctx, tx, id)
	})
	if err != nil {
		return common.Entity{}, err
	}
	entity, ok := result.(common.Entity)
	if !ok {
		return common.Entity{}, ErrNotFound
	}
	return entity, nil
}

func (s *Neo4jStorage) MergeEntity(ctx context.Context, entity common.Entity) (common.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		merged := entity
		existing, err := readEntityTx(ctx, tx, entity.ID)
		if err != nil {
			return nil, err
		}
		if e, ok := existing.(common.Entity); ok {
			merged = mergeEntityRecord(e, entity)
		}

		props, err := entityProps(merged)
		if err != nil {
			return nil, err
		}
		_, err = tx.Run(ctx, `
MERGE (e:Entity {id: $id})
SET e += $props`, map[string]any{"id": merged.ID, "props": props})
		if err != nil {
			return nil, err
		}
		return merged, nil
	})
	if err != nil {
		return common.Entity{}, fmt.Errorf("failed to merge entity %s: %w", entity.ID, err)
	}
	return result.(common.Entity), nil
}

func (s *Neo4jStorage) DeleteEntity(ctx context.Context, id string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {id: $id})
DETACH DELETE e`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	return nil
}

func (s *Neo4jStorage) GetRelationship(ctx context.Context, id string) (common.Relationship, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return readRelationshipTx(ctx, tx, id)
	})
	if err != nil {
		return common.Relationship{}, err
	}
	rel, ok := result.(common.Relationship)
	if !ok {
		return common.Relationship{}, ErrNotFound
	}
	return rel, nil
}

func (s *Neo4jStorage) MergeRelationship(ctx context.Context, rel common.Relationship) (common.Relationship, error) {
	if rel.ID == "" {
		rel.ID = rel.DerivedID()
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		merged := rel
		existing, err := readRelationshipTx(ctx, tx, rel.ID)
		if err != nil {
			return nil, err
		}
		if r, ok := existing.(common.Relationship); ok {
			merged = mergeRelationshipRecord(r, rel)
		}

		props, err := relationshipProps(merged)
		if err != nil {
			return nil, err
		}
		res, err := tx.Run(ctx, `
MATCH (a:Entity {id: $source}), (b:Entity {id: $target})
MERGE (a)-[r:RELATIONSHIP {id: $id}]->(b)
SET r += $props
RETURN r.id`, map[string]any{
			"source": merged.Source,
			"target": merged.Target,
			"id":     merged.ID,
			"props":  props,
		})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, fmt.Errorf("endpoints %s/%s not present", merged.Source, merged.Target)
		}
		return merged, nil
	})
	if err != nil {
		return common.Relationship{}, fmt.Errorf("failed to merge relationship %s: %w", rel.ID, err)
	}
	return result.(common.Relationship), nil
}

func (s *Neo4jStorage) DeleteRelationship(ctx context.Context, id string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH ()-[r:RELATIONSHIP {id: $id}]->()
DELETE r`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to delete relationship %s: %w", id, err)
	}
	return nil
}

func (s *Neo4jStorage) FindDuplicateEntities(ctx context.Context) ([][]common.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity)
WITH toLower(trim(e.name)) AS name, e.type AS type, collect(e) AS members
WHERE size(members) > 1
RETURN members`, nil)
		if err != nil {
			return nil, err
		}

		groups := make([][]common.Entity, 0)
		for res.Next(ctx) {
			members, ok := res.Record().Get("members")
			if !ok {
				continue
			}
			group := make([]common.Entity, 0)
			for _, member := range members.([]any) {
				node, ok := member.(neo4j.Node)
				if !ok {
					continue
				}
				entity, err := entityFromProps(node.Props)
				if err != nil {
					return nil, err
				}
				group = append(group, entity)
			}
			if len(group) > 1 {
				groups = append(groups, group)
			}
		}
		return groups, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate entities: %w", err)
	}
	return result.([][]common.Entity), nil
}

func (s *Neo4jStorage) GetKnowledgeGraph(ctx context.Context) (common.KnowledgeGraph, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		graph := common.KnowledgeGraph{
			Entities:      make([]common.Entity, 0),
			Relationships: make([]common.Relationship, 0),
		}

		res, err := tx.Run(ctx, "MATCH (e:Entity) RETURN e", nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			value, ok := res.Record().Get("e")
			if !ok {
				continue
			}
			entity, err := entityFromProps(value.(neo4j.Node).Props)
			if err != nil {
				return nil, err
			}
			graph.Entities = append(graph.Entities, entity)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
MATCH (a:Entity)-[r:RELATIONSHIP]->(b:Entity)
RETURN r, a.id AS source, b.id AS target`, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			record := res.Record()
			value, ok := record.Get("r")
			if !ok {
				continue
			}
			source, _ := record.Get("source")
			target, _ := record.Get("target")
			rel, err := relationshipFromProps(value.(neo4j.Relationship).Props, source.(string), target.(string))
			if err != nil {
				return nil, err
			}
			graph.Relationships = append(graph.Relationships, rel)
		}
		return graph, res.Err()
	})
	if err != nil {
		return common.KnowledgeGraph{}, fmt.Errorf("failed to read knowledge graph: %w", err)
	}
	return result.(common.KnowledgeGraph), nil
}

func (s *Neo4jStorage) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// readEntityTx returns the entity with the given id or nil when absent.
func readEntityTx(ctx context.Context, tx neo4j.ManagedTransaction, id string) (any, error) {
	res, err := tx.Run(ctx, "MATCH (e:Entity {id: $id}) RETURN e", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if !res.Next(ctx) {
		return nil, res.Err()
	}
	value, ok := res.Record().Get("e")
	if !ok {
		return nil, nil
	}
	return entityFromPropsErr(value.(neo4j.Node).Props)
}

func readRelationshipTx(ctx context.Context, tx neo4j.ManagedTransaction, id string) (any, error) {
	res, err := tx.Run(ctx, `
MATCH (a:Entity)-[r:RELATIONSHIP {id: $id}]->(b:Entity)
RETURN r, a.id AS source, b.id AS target`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if !res.Next(ctx) {
		return nil, res.Err()
	}
	record := res.Record()
	value, ok := record.Get("r")
	if !ok {
		return nil, nil
	}
	source, _ := record.Get("source")
	target, _ := record.Get("target")
	rel, err := relationshipFromProps(value.(neo4j.Relationship).Props, source.(string), target.(string))
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func entityFromPropsErr(props map[string]any) (any, error) {
	entity, err := entityFromProps(props)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func entityProps(entity common.Entity) (map[string]any, error) {
	attrs, err := encodeJSONProp(entity.Attributes)
	if err != nil {
		return nil, err
	}
	meta, err := encodeJSONProp(entity.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":            entity.Name,
		"description":     entity.Description,
		"type":            entity.Type,
		"attributes_json": attrs,
		"metadata_json":   meta,
	}, nil
}

func entityFromProps(props map[string]any) (common.Entity, error) {
	entity := common.Entity{
		ID:          stringProp(props, "id"),
		Name:        stringProp(props, "name"),
		Description: stringProp(props, "description"),
		Type:        stringProp(props, "type"),
	}
	if raw := stringProp(props, "attributes_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &entity.Attributes); err != nil {
			return common.Entity{}, fmt.Errorf("corrupt attributes on entity %s: %w", entity.ID, err)
		}
	}
	if raw := stringProp(props, "metadata_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &entity.Metadata); err != nil {
			return common.Entity{}, fmt.Errorf("corrupt metadata on entity %s: %w", entity.ID, err)
		}
	}
	return entity, nil
}

func relationshipProps(rel common.Relationship) (map[string]any, error) {
	attrs, err := encodeJSONProp(rel.Attributes)
	if err != nil {
		return nil, err
	}
	meta, err := encodeJSONProp(rel.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":            rel.Type,
		"attributes_json": attrs,
		"metadata_json":   meta,
	}, nil
}

func relationshipFromProps(props map[string]any, source, target string) (common.Relationship, error) {
	rel := common.Relationship{
		ID:     stringProp(props, "id"),
		Source: source,
		Target: target,
		Type:   stringProp(props, "type"),
	}
	if raw := stringProp(props, "attributes_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rel.Attributes); err != nil {
			return common.Relationship{}, fmt.Errorf("corrupt attributes on relationship %s: %w", rel.ID, err)
		}
	}
	if raw := stringProp(props, "metadata_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rel.Metadata); err != nil {
			return common.Relationship{}, fmt.Errorf("corrupt metadata on relationship %s: %w", rel.ID, err)
		}
	}
	return rel, nil
}

func encodeJSONProp(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode property: %w", err)
	}
	return string(data), nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
