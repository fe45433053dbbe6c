package common

// KnowledgeGraph represents the fused graph of entities and typed
// relationships. It is the central structure of the system: fragments
// carry partial graphs, storage backends persist the full graph, and the
// fusion engine reconciles the two.
//
// Entities are keyed by their id and relationships by their derived id;
// uniqueness per key is an invariant maintained by the fusion engine and
// the storage backends, not by this value type. Ordering within either
// slice carries no meaning.
type KnowledgeGraph struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Entity represents a node in the graph. An entity can be an organization,
// person, location, or any other relevant concept. Its id is stable for the
// lifetime of the graph: merges update every other field but never the id.
//
// By convention ids are normalized snake_case forms of the entity name
// (see util.NormalizeEntityID), which is what makes independently produced
// fragments collide on the same node.
type Entity struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Type        string            `json:"type"`
	Attributes  map[string]any    `json:"attributes,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MetadataKeepAlways is the reserved metadata key that pins an entity
// against orphan pruning.
const MetadataKeepAlways = "keep_always"

// KeepAlways reports whether the entity is pinned against orphan pruning.
// Any non-empty value of the reserved metadata key counts as pinned.
func (e Entity) KeepAlways() bool {
	return e.Metadata[MetadataKeepAlways] != ""
}

// Clone returns a copy of the entity whose attribute and metadata maps are
// independent of the original.
func (e Entity) Clone() Entity {
	out := e
	out.Attributes = cloneAnyMap(e.Attributes)
	out.Metadata = cloneStringMap(e.Metadata)
	return out
}

// Relationship represents a directional edge between two entities,
// referencing them by id. Its identity is derived from the structural
// triple (source, type, target), so a graph holds at most one relationship
// per triple; re-proposing the same triple updates the stored edge instead
// of adding a parallel one.
type Relationship struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Type       string            `json:"type"`
	Attributes map[string]any    `json:"attributes,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RelationshipID derives the identity of an edge from its structural triple.
func RelationshipID(source, relType, target string) string {
	return source + "__" + relType + "__" + target
}

// DerivedID returns the relationship's identity as derived from its current
// source, type, and target, regardless of the stored ID field.
func (r Relationship) DerivedID() string {
	return RelationshipID(r.Source, r.Type, r.Target)
}

// Clone returns a copy of the relationship whose attribute and metadata
// maps are independent of the original.
func (r Relationship) Clone() Relationship {
	out := r
	out.Attributes = cloneAnyMap(r.Attributes)
	out.Metadata = cloneStringMap(r.Metadata)
	return out
}

// Fragment is one consolidated analysis result produced from a document or
// chunk batch. The fusion engine reads only the knowledge graph part; the
// summary and metadata travel along for reporting and provenance.
type Fragment struct {
	KnowledgeGraph *KnowledgeGraph   `json:"knowledge_graph,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// FindEntity returns the entity with the given id, if present.
func (g KnowledgeGraph) FindEntity(id string) (Entity, bool) {
	for _, e := range g.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// FindRelationship returns the relationship with the given derived id, if present.
func (g KnowledgeGraph) FindRelationship(id string) (Relationship, bool) {
	for _, r := range g.Relationships {
		if r.ID == id {
			return r, true
		}
	}
	return Relationship{}, false
}

// EntityIDs returns the set of entity ids present in the graph.
func (g KnowledgeGraph) EntityIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(g.Entities))
	for _, e := range g.Entities {
		ids[e.ID] = struct{}{}
	}
	return ids
}

// Clone returns a copy of the graph with independent entity and
// relationship values.
func (g KnowledgeGraph) Clone() KnowledgeGraph {
	out := KnowledgeGraph{}
	if g.Entities != nil {
		out.Entities = make([]Entity, len(g.Entities))
		for i, e := range g.Entities {
			out.Entities[i] = e.Clone()
		}
	}
	if g.Relationships != nil {
		out.Relationships = make([]Relationship, len(g.Relationships))
		for i, r := range g.Relationships {
			out.Relationships[i] = r.Clone()
		}
	}
	return out
}

// UnionMaps merges proposed into existing, proposed values winning on key
// collision. Neither input is mutated; the result is always a fresh map
// unless both inputs are nil.
func UnionMaps[K comparable, V any](existing, proposed map[K]V) map[K]V {
	if existing == nil && proposed == nil {
		return nil
	}
	out := make(map[K]V, len(existing)+len(proposed))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range proposed {
		out[k] = v
	}
	return out
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
