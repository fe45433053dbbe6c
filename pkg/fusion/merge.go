package fusion

import (
	"context"
	"fmt"

	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/common"
	"github.com/graftlab/graft/pkg/logger"
)

type mergeStats struct {
	entitiesAdded        int
	entitiesUpdated      int
	relationshipsAdded   int
	relationshipsUpdated int
	relationshipsDropped int
}

func (s mergeStats) changes() int {
	return s.entitiesAdded + s.entitiesUpdated + s.relationshipsAdded + s.relationshipsUpdated
}

// MergeAnalysis merges a batch of analysis fragments into the graph,
// strictly one fragment at a time in arrival order. Entities are merged
// before relationships within each fragment so intra-fragment endpoint
// references resolve, and the cached snapshot is refreshed after every
// mutation pass.
//
// A consolidation pass runs whenever the running change count exceeds the
// configured threshold, and unconditionally once after the last fragment.
// Re-invoking MergeAnalysis with the same fragments converges rather than
// duplicates: every merge is keyed by id.
//
// On error the graph is left in a well-defined partially merged state;
// progress already committed to storage stays committed.
func (p *Processor) MergeAnalysis(ctx context.Context, fragments []common.Fragment) (common.KnowledgeGraph, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.refreshBaseGraph(ctx); err != nil {
		return common.KnowledgeGraph{}, fmt.Errorf("failed to load base graph: %w", err)
	}

	running := 0
	for i, fragment := range fragments {
		if fragment.KnowledgeGraph == nil {
			logger.Debug("[Fusion] Skipping fragment without graph content", "fragment", i)
			continue
		}

		stats, err := p.mergeFragment(ctx, *fragment.KnowledgeGraph)
		if err != nil {
			return p.baseGraph.Clone(), fmt.Errorf("failed to merge fragment %d: %w", i, err)
		}

		logger.Info(
			"[Fusion] Merged fragment",
			"fragment", i,
			"entities_added", stats.entitiesAdded,
			"entities_updated", stats.entitiesUpdated,
			"relationships_added", stats.relationshipsAdded,
			"relationships_updated", stats.relationshipsUpdated,
			"relationships_dropped", stats.relationshipsDropped,
		)

		running += stats.changes()
		if running > p.threshold {
			logger.Info("[Fusion] Change threshold exceeded, consolidating", "changes", running)
			if err := p.consolidate(ctx); err != nil {
				return p.baseGraph.Clone(), err
			}
			running = 0
		}
	}

	if err := p.consolidate(ctx); err != nil {
		return p.baseGraph.Clone(), err
	}

	return p.baseGraph.Clone(), nil
}

func (p *Processor) mergeFragment(ctx context.Context, fragment common.KnowledgeGraph) (mergeStats, error) {
	stats := mergeStats{}

	if err := p.mergeEntities(ctx, fragment.Entities, &stats); err != nil {
		return stats, err
	}
	if err := p.refreshBaseGraph(ctx); err != nil {
		return stats, fmt.Errorf("failed to refresh graph after entity merge: %w", err)
	}

	if err := p.mergeRelationships(ctx, fragment.Relationships, &stats); err != nil {
		return stats, err
	}
	if err := p.refreshBaseGraph(ctx); err != nil {
		return stats, fmt.Errorf("failed to refresh graph after relationship merge: %w", err)
	}

	return stats, nil
}

// mergeEntities applies each proposed entity as an add or an update. An
// update with matching name and type is a local map union; a disagreeing
// name or type is a genuine semantic conflict and escalates to the
// resolver. Resolver failures propagate.
func (p *Processor) mergeEntities(ctx context.Context, proposed []common.Entity, stats *mergeStats) error {
	for _, entity := range proposed {
		if entity.ID == "" {
			entity.ID = util.NormalizeEntityID(entity.Name)
		}
		if entity.ID == "" {
			logger.Warn("[Fusion] Dropping entity without id or name", "type", entity.Type)
			continue
		}

		existing, found := p.baseGraph.FindEntity(entity.ID)
		if !found {
			if _, err := p.storage.MergeEntity(ctx, entity); err != nil {
				return fmt.Errorf("failed to add entity %s: %w", entity.ID, err)
			}
			stats.entitiesAdded++
			continue
		}

		if existing.Name == entity.Name && existing.Type == entity.Type {
			updated := entity.Clone()
			updated.Attributes = common.UnionMaps(existing.Attributes, entity.Attributes)
			updated.Metadata = common.UnionMaps(existing.Metadata, entity.Metadata)
			if _, err := p.storage.MergeEntity(ctx, updated); err != nil {
				return fmt.Errorf("failed to update entity %s: %w", entity.ID, err)
			}
			stats.entitiesUpdated++
			continue
		}

		resolved, err := p.resolver.ResolveEntityConflict(ctx, existing, entity, p.entityConnections(existing.ID))
		if err != nil {
			return fmt.Errorf("failed to resolve conflict for entity %s: %w", entity.ID, err)
		}
		// Merges never change ids, whatever the resolver answered.
		resolved.ID = existing.ID
		if _, err := p.storage.MergeEntity(ctx, resolved); err != nil {
			return fmt.Errorf("failed to store resolved entity %s: %w", entity.ID, err)
		}
		stats.entitiesUpdated++
	}
	return nil
}

// mergeRelationships applies each proposed relationship keyed by its
// derived id. A relationship referencing an entity missing from the graph
// is dropped and logged, never queued or stored dangling.
func (p *Processor) mergeRelationships(ctx context.Context, proposed []common.Relationship, stats *mergeStats) error {
	entityIDs := p.baseGraph.EntityIDs()

	for _, rel := range proposed {
		rel.ID = rel.DerivedID()

		existing, found := p.baseGraph.FindRelationship(rel.ID)
		if !found {
			if _, ok := entityIDs[rel.Source]; !ok {
				logger.Warn("[Fusion] Dropping relationship with missing source", "id", rel.ID, "source", rel.Source)
				stats.relationshipsDropped++
				continue
			}
			if _, ok := entityIDs[rel.Target]; !ok {
				logger.Warn("[Fusion] Dropping relationship with missing target", "id", rel.ID, "target", rel.Target)
				stats.relationshipsDropped++
				continue
			}
			if _, err := p.storage.MergeRelationship(ctx, rel); err != nil {
				return fmt.Errorf("failed to add relationship %s: %w", rel.ID, err)
			}
			stats.relationshipsAdded++
			continue
		}

		// Same derived id means the structural triple is identical, so the
		// update degenerates to an attribute-only merge.
		updated := rel.Clone()
		updated.Attributes = common.UnionMaps(existing.Attributes, rel.Attributes)
		updated.Metadata = common.UnionMaps(existing.Metadata, rel.Metadata)
		if _, err := p.storage.MergeRelationship(ctx, updated); err != nil {
			return fmt.Errorf("failed to update relationship %s: %w", rel.ID, err)
		}
		stats.relationshipsUpdated++
	}
	return nil
}

// entityConnections renders the edges touching an entity as short
// "source -[type]-> target" lines for resolver context.
func (p *Processor) entityConnections(id string) []string {
	connections := make([]string, 0)
	for _, rel := range p.baseGraph.Relationships {
		if rel.Source == id || rel.Target == id {
			connections = append(connections, fmt.Sprintf("%s -[%s]-> %s", rel.Source, rel.Type, rel.Target))
		}
	}
	return connections
}
