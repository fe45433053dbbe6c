package fusion

import (
	"context"
	"errors"
	"fmt"

	"github.com/graftlab/graft/pkg/common"
	"github.com/graftlab/graft/pkg/logger"
	"github.com/graftlab/graft/pkg/store"
)

// Consolidate reconciles the whole graph: duplicate entity groups collapse
// into canonical records, invalid relationships and orphaned entities are
// pruned, and the backend compacts when it can.
//
// A resolver failure aborts only the group being collapsed; remaining
// groups, pruning and compaction still run and the collected errors are
// reported at the end. Backend failures are fatal and propagate
// immediately.
func (p *Processor) Consolidate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.refreshBaseGraph(ctx); err != nil {
		return fmt.Errorf("failed to load base graph: %w", err)
	}
	return p.consolidate(ctx)
}

// consolidate runs the pass with the mutex already held.
func (p *Processor) consolidate(ctx context.Context) error {
	var groupErrs []error

	groups, err := p.storage.FindDuplicateEntities(ctx)
	if err != nil {
		return fmt.Errorf("failed to find duplicate entities: %w", err)
	}
	if len(groups) > 0 {
		logger.Info("[Fusion] Collapsing duplicate entity groups", "groups", len(groups))
	}
	for _, group := range groups {
		if err := p.collapseGroup(ctx, group); err != nil {
			logger.Error("[Fusion] Failed to collapse duplicate group", "name", group[0].Name, "err", err)
			groupErrs = append(groupErrs, fmt.Errorf("failed to collapse group %q: %w", group[0].Name, err))
		}
	}

	if err := p.refreshBaseGraph(ctx); err != nil {
		return fmt.Errorf("failed to refresh graph after duplicate collapse: %w", err)
	}

	if err := p.pruneOrphans(ctx); err != nil {
		groupErrs = append(groupErrs, err)
		return errors.Join(groupErrs...)
	}

	if err := p.refreshBaseGraph(ctx); err != nil {
		return fmt.Errorf("failed to refresh graph after pruning: %w", err)
	}

	// Compact implies a persisted rewrite, so Save only matters for
	// backends that persist on demand without compaction support.
	if compactor, ok := p.storage.(store.Compactor); ok {
		if err := compactor.Compact(ctx); err != nil {
			return fmt.Errorf("failed to compact storage: %w", err)
		}
	} else if saver, ok := p.storage.(store.Saver); ok {
		if err := saver.Save(ctx); err != nil {
			return fmt.Errorf("failed to persist storage: %w", err)
		}
	}

	return errors.Join(groupErrs...)
}

// collapseGroup asks the resolver for one canonical record covering the
// whole duplicate group, re-points every incident relationship to the
// canonical id and deletes the collapsed members. The resolver is expected
// to keep one of the group's ids; any other answer falls back to the first
// member's id so the collapse stays within the group.
func (p *Processor) collapseGroup(ctx context.Context, group []common.Entity) error {
	canonical, err := p.resolver.MergeEntityGroup(ctx, group)
	if err != nil {
		return err
	}

	memberIDs := make(map[string]struct{}, len(group))
	for _, member := range group {
		memberIDs[member.ID] = struct{}{}
	}
	if _, ok := memberIDs[canonical.ID]; !ok {
		canonical.ID = group[0].ID
	}

	if _, err := p.storage.MergeEntity(ctx, canonical); err != nil {
		return fmt.Errorf("failed to store canonical entity %s: %w", canonical.ID, err)
	}

	collapsed := make(map[string]struct{}, len(group)-1)
	for id := range memberIDs {
		if id != canonical.ID {
			collapsed[id] = struct{}{}
		}
	}

	// Re-point edges before deleting members: derived ids change with
	// their endpoints, so the superseded edge goes and a new one is merged.
	// The edges come from a fresh storage read, not the cached snapshot:
	// an earlier group's collapse may already have rewritten edges shared
	// with this group.
	current, err := p.storage.GetKnowledgeGraph(ctx)
	if err != nil {
		return fmt.Errorf("failed to read graph for collapse: %w", err)
	}
	for _, rel := range current.Relationships {
		_, sourceCollapsed := collapsed[rel.Source]
		_, targetCollapsed := collapsed[rel.Target]
		if !sourceCollapsed && !targetCollapsed {
			continue
		}

		if err := p.storage.DeleteRelationship(ctx, rel.ID); err != nil {
			return fmt.Errorf("failed to delete superseded relationship %s: %w", rel.ID, err)
		}

		repointed := rel.Clone()
		if sourceCollapsed {
			repointed.Source = canonical.ID
		}
		if targetCollapsed {
			repointed.Target = canonical.ID
		}
		if repointed.Source == repointed.Target {
			// Edges between two collapsed members would become self-loops.
			continue
		}
		repointed.ID = repointed.DerivedID()
		if _, err := p.storage.MergeRelationship(ctx, repointed); err != nil {
			return fmt.Errorf("failed to re-point relationship %s: %w", repointed.ID, err)
		}
	}

	for id := range collapsed {
		if err := p.storage.DeleteEntity(ctx, id); err != nil {
			return fmt.Errorf("failed to delete collapsed entity %s: %w", id, err)
		}
	}

	logger.Debug("[Fusion] Collapsed duplicate group", "canonical", canonical.ID, "members", len(group))
	return nil
}

// pruneOrphans drops relationships whose endpoints are gone, then entities
// with no surviving relationship and no keep_always pin. Relationship
// pruning runs first so connectivity reflects a validated edge set.
func (p *Processor) pruneOrphans(ctx context.Context) error {
	graph, err := p.storage.GetKnowledgeGraph(ctx)
	if err != nil {
		return fmt.Errorf("failed to read graph for pruning: %w", err)
	}

	entityIDs := graph.EntityIDs()
	connected := make(map[string]struct{})
	prunedRelationships := 0

	for _, rel := range graph.Relationships {
		_, sourceOk := entityIDs[rel.Source]
		_, targetOk := entityIDs[rel.Target]
		if !sourceOk || !targetOk {
			if err := p.storage.DeleteRelationship(ctx, rel.ID); err != nil {
				return fmt.Errorf("failed to prune relationship %s: %w", rel.ID, err)
			}
			prunedRelationships++
			continue
		}
		connected[rel.Source] = struct{}{}
		connected[rel.Target] = struct{}{}
	}

	prunedEntities := 0
	for _, entity := range graph.Entities {
		if _, ok := connected[entity.ID]; ok {
			continue
		}
		if entity.KeepAlways() {
			continue
		}
		if err := p.storage.DeleteEntity(ctx, entity.ID); err != nil {
			return fmt.Errorf("failed to prune entity %s: %w", entity.ID, err)
		}
		prunedEntities++
	}

	if prunedRelationships > 0 || prunedEntities > 0 {
		logger.Info("[Fusion] Pruned orphans", "relationships", prunedRelationships, "entities", prunedEntities)
	}
	return nil
}
