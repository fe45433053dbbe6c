package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/common"
)

// Resolver is the production resolution oracle: it prompts a model for a
// schema-constrained merged entity record and parses the response
// leniently. Retries on failure are bounded and owned here; callers treat
// a returned error as terminal.
type Resolver struct {
	client     GraphAIClient
	maxRetries int
}

// NewResolverParams defines the configuration for creating a Resolver.
type NewResolverParams struct {
	Client     GraphAIClient
	MaxRetries int
}

// NewResolver creates a resolver backed by the given AI client. MaxRetries
// defaults to 3 when unset.
func NewResolver(params NewResolverParams) (*Resolver, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("resolver requires an ai client")
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Resolver{
		client:     params.Client,
		maxRetries: maxRetries,
	}, nil
}

// resolvedEntity is the strict response schema for resolution calls.
// Attribute and metadata maps travel as JSON object strings because the
// schema disallows additional properties on objects.
type resolvedEntity struct {
	ID             string `json:"id" jsonschema_description:"Id of the merged entity. Must be one of the provided record ids."`
	Name           string `json:"name" jsonschema_description:"Display name of the merged entity."`
	Description    string `json:"description" jsonschema_description:"Combined description covering all provided records."`
	Type           string `json:"type" jsonschema_description:"Category tag of the merged entity, e.g. concept or organization."`
	AttributesJSON string `json:"attributes_json" jsonschema_description:"Merged attributes as a JSON object string. Use {} when empty."`
	MetadataJSON   string `json:"metadata_json" jsonschema_description:"Merged metadata as a JSON object string. Use {} when empty."`
}

func (r resolvedEntity) toEntity() (common.Entity, error) {
	if strings.TrimSpace(r.Name) == "" {
		return common.Entity{}, fmt.Errorf("resolver returned an entity without a name")
	}

	entity := common.Entity{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Type:        r.Type,
	}
	if trimmed := strings.TrimSpace(r.AttributesJSON); trimmed != "" && trimmed != "{}" {
		if err := UnmarshalFlexible(trimmed, &entity.Attributes); err != nil {
			return common.Entity{}, fmt.Errorf("resolver returned invalid attributes: %w", err)
		}
	}
	if trimmed := strings.TrimSpace(r.MetadataJSON); trimmed != "" && trimmed != "{}" {
		if err := UnmarshalFlexible(trimmed, &entity.Metadata); err != nil {
			return common.Entity{}, fmt.Errorf("resolver returned invalid metadata: %w", err)
		}
	}
	return entity, nil
}

// ResolveEntityConflict merges two records that share an id but disagree
// on name or type. The returned record always carries the existing id.
func (r *Resolver) ResolveEntityConflict(
	ctx context.Context,
	existing common.Entity,
	proposed common.Entity,
	connections []string,
) (common.Entity, error) {
	existingJSON, err := json.Marshal(existing)
	if err != nil {
		return common.Entity{}, fmt.Errorf("failed to encode existing record: %w", err)
	}
	proposedJSON, err := json.Marshal(proposed)
	if err != nil {
		return common.Entity{}, fmt.Errorf("failed to encode proposed record: %w", err)
	}

	connectionList := "None"
	if len(connections) > 0 {
		connectionList = "- " + strings.Join(connections, "\n- ")
	}

	prompt := fmt.Sprintf(ResolveConflictPrompt, existingJSON, proposedJSON, connectionList)

	entity, err := r.resolve(ctx, "resolve_entity_conflict", "Merge two conflicting entity records into one.", prompt)
	if err != nil {
		return common.Entity{}, err
	}

	entity.ID = existing.ID
	return entity, nil
}

// MergeEntityGroup collapses a group of duplicate entities into one
// canonical record. The model is instructed to keep one of the group's
// ids; an answer outside the group falls back to the first member's id.
func (r *Resolver) MergeEntityGroup(
	ctx context.Context,
	group []common.Entity,
) (common.Entity, error) {
	if len(group) == 0 {
		return common.Entity{}, fmt.Errorf("cannot merge an empty entity group")
	}
	if len(group) == 1 {
		return group[0].Clone(), nil
	}

	groupJSON, err := json.Marshal(group)
	if err != nil {
		return common.Entity{}, fmt.Errorf("failed to encode entity group: %w", err)
	}

	prompt := fmt.Sprintf(MergeGroupPrompt, groupJSON)

	entity, err := r.resolve(ctx, "merge_entity_group", "Collapse duplicate entity records into one canonical record.", prompt)
	if err != nil {
		return common.Entity{}, err
	}

	known := false
	for _, member := range group {
		if member.ID == entity.ID {
			known = true
			break
		}
	}
	if !known {
		entity.ID = group[0].ID
	}
	return entity, nil
}

func (r *Resolver) resolve(ctx context.Context, name, description, prompt string) (common.Entity, error) {
	var entity common.Entity
	err := util.RetryErrWithContext(ctx, r.maxRetries, func(ctx context.Context) error {
		var res resolvedEntity
		if err := r.client.GenerateCompletionWithFormat(ctx, name, description, prompt, &res); err != nil {
			return err
		}
		parsed, err := res.toEntity()
		if err != nil {
			return err
		}
		entity = parsed
		return nil
	})
	if err != nil {
		return common.Entity{}, fmt.Errorf("resolution failed after %d attempts: %w", r.maxRetries, err)
	}
	return entity, nil
}
