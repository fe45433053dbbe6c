package analyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/ai"
	"github.com/graftlab/graft/pkg/common"
)

type extractEntity struct {
	EntityName        string `json:"entity_name" jsonschema_description:"Name of the entity exactly as the document writes it"`
	EntityType        string `json:"entity_type" jsonschema_description:"One of the provided entity types"`
	EntityDescription string `json:"entity_description" jsonschema_description:"Comprehensive description of the entity's attributes, activities and information provided by the chunk."`
}

type extractRelationship struct {
	SourceEntity            string `json:"source_entity" jsonschema_description:"Name of the source entity, as identified in step 1"`
	TargetEntity            string `json:"target_entity" jsonschema_description:"Name of the target entity, as identified in step 1"`
	RelationshipType        string `json:"relationship_type" jsonschema_description:"Short lower_snake_case relationship type, e.g. part_of or works_for"`
	RelationshipDescription string `json:"relationship_description" jsonschema_description:"Explanation as to why the source entity and the target entity are related to each other"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities identified in the text chunk"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships identified in the text chunk"`
}

// DefaultEntityTypes is used when a document does not carry its own
// entity type list.
var DefaultEntityTypes = []string{
	"ORGANIZATION", "PERSON", "LOCATION", "CONCEPT",
	"CREATIVE_WORK", "DATE", "PRODUCT", "EVENT",
}

// extractFromChunk runs one structured extraction call and converts the
// response into graph records. Entity ids are derived from names so the
// same entity extracted from different chunks lands on the same record.
func extractFromChunk(
	ctx context.Context,
	c chunk,
	documentName string,
	entityTypes []string,
	client ai.GraphAIClient,
) (*common.KnowledgeGraph, error) {
	types := entityTypes
	if len(types) == 0 {
		types = DefaultEntityTypes
	}

	systemPrompt := fmt.Sprintf(
		ai.ExtractPrompt,
		strings.Join(types, ","),
		documentName,
		strings.Join(types, ","),
	)

	var res extractResponse
	err := client.GenerateCompletionWithFormat(
		ctx,
		"extract_entities_and_relationships",
		"Extract entities and relationships from a provided document chunk.",
		c.text,
		&res,
		ai.WithSystemPrompts(systemPrompt),
	)
	if err != nil {
		return nil, err
	}

	graph := &common.KnowledgeGraph{}
	entityAt := make(map[string]int, len(res.Entities))

	for _, entity := range res.Entities {
		name := strings.TrimSpace(entity.EntityName)
		if name == "" {
			continue
		}
		id := util.NormalizeEntityID(name)
		if id == "" {
			continue
		}

		if i, ok := entityAt[id]; ok {
			existing := &graph.Entities[i]
			existing.Description = joinDescriptions(existing.Description, entity.EntityDescription)
			continue
		}
		entityAt[id] = len(graph.Entities)
		graph.Entities = append(graph.Entities, common.Entity{
			ID:          id,
			Name:        name,
			Description: entity.EntityDescription,
			Type:        entity.EntityType,
			Metadata: map[string]string{
				"document": c.documentID,
				"chunk":    c.id,
			},
		})
	}

	seenRels := make(map[string]struct{}, len(res.Relationships))
	for _, rel := range res.Relationships {
		source := util.NormalizeEntityID(rel.SourceEntity)
		target := util.NormalizeEntityID(rel.TargetEntity)
		if _, ok := entityAt[source]; !ok {
			continue
		}
		if _, ok := entityAt[target]; !ok {
			continue
		}
		relType := strings.TrimSpace(rel.RelationshipType)
		if relType == "" {
			relType = "related_to"
		}

		r := common.Relationship{
			Source: source,
			Target: target,
			Type:   relType,
			Attributes: map[string]any{
				"description": rel.RelationshipDescription,
			},
			Metadata: map[string]string{
				"document": c.documentID,
				"chunk":    c.id,
			},
		}
		r.ID = r.DerivedID()

		if _, ok := seenRels[r.ID]; ok {
			continue
		}
		seenRels[r.ID] = struct{}{}
		graph.Relationships = append(graph.Relationships, r)
	}

	return graph, nil
}

func joinDescriptions(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	default:
		return a + " " + b
	}
}
