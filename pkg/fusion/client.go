package fusion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/graftlab/graft/pkg/common"
	"github.com/graftlab/graft/pkg/store"
)

// DefaultConsolidateThreshold is the number of applied changes (entity and
// relationship adds plus updates) after which a consolidation pass runs
// mid-batch, bounding the drift between incremental merges and a fully
// reconciled graph.
const DefaultConsolidateThreshold = 100

// Resolver is the conflict-resolution oracle boundary. The processor
// escalates to it when two records with the same id disagree on name or
// type, and when a consolidation pass collapses a group of duplicate
// entities into one canonical record.
//
// Implementations own their retry policy; the processor treats every call
// as "eventually returns a record or fails terminally".
type Resolver interface {
	// ResolveEntityConflict merges two records sharing an id whose name or
	// type disagree. The connections describe the existing entity's edges
	// so the resolver can weigh graph context. The returned record keeps
	// the existing id.
	ResolveEntityConflict(ctx context.Context, existing, proposed common.Entity, connections []string) (common.Entity, error)

	// MergeEntityGroup collapses a group of duplicate entities (same
	// case-insensitive name and type, distinct ids) into one canonical
	// record whose id is one of the group's ids.
	MergeEntityGroup(ctx context.Context, group []common.Entity) (common.Entity, error)
}

// Processor is the knowledge fusion engine: the sole mutator of the graph
// storage. It merges analysis fragments one at a time, escalates genuine
// conflicts to the resolver, and periodically reconciles the whole graph
// (duplicate collapse, orphan pruning, compaction).
//
// The cached snapshot is refreshed wholesale from storage after every
// mutation pass and is never patched in place. All mutation entry points
// are serialized on an internal mutex; fragment producers may run in
// parallel, fragment consumption does not.
type Processor struct {
	mu       sync.Mutex
	storage  store.GraphStorage
	resolver Resolver

	threshold int
	baseGraph common.KnowledgeGraph
}

// NewProcessorParams defines the configuration for creating a Processor.
//
// Storage and Resolver are required. ConsolidateThreshold falls back to
// DefaultConsolidateThreshold when unset.
type NewProcessorParams struct {
	Storage              store.GraphStorage
	Resolver             Resolver
	ConsolidateThreshold int
}

// NewProcessor creates a fusion processor bound to a storage backend and a
// resolution oracle. The cached snapshot is loaded from storage up front,
// so reads reflect a pre-populated backend before the first mutation.
func NewProcessor(ctx context.Context, params NewProcessorParams) (*Processor, error) {
	if params.Storage == nil {
		return nil, errors.New("fusion processor requires a graph storage")
	}
	if params.Resolver == nil {
		return nil, errors.New("fusion processor requires a resolver")
	}

	threshold := params.ConsolidateThreshold
	if threshold <= 0 {
		threshold = DefaultConsolidateThreshold
	}

	p := &Processor{
		storage:   params.Storage,
		resolver:  params.Resolver,
		threshold: threshold,
	}
	if err := p.refreshBaseGraph(ctx); err != nil {
		return nil, fmt.Errorf("failed to load base graph: %w", err)
	}
	return p, nil
}

// GetKnowledgeGraph returns a copy of the current cached snapshot. The
// snapshot reflects the state after the most recent mutation pass.
func (p *Processor) GetKnowledgeGraph() common.KnowledgeGraph {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baseGraph.Clone()
}

// refreshBaseGraph replaces the cached snapshot with a fresh read from
// storage. Callers must hold the mutex.
func (p *Processor) refreshBaseGraph(ctx context.Context) error {
	graph, err := p.storage.GetKnowledgeGraph(ctx)
	if err != nil {
		return err
	}
	p.baseGraph = graph
	return nil
}
