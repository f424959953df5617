package store

// Relationship defines a parent-child relationship for cascade operations.
type Relationship struct {
	// ParentCollection holds the parent documents (e.g., "sessions").
	ParentCollection Collection

	// ChildCollection holds the child documents (e.g., "session-players").
	ChildCollection Collection

	// ParentKeyField is the field in the child that holds the parent id (e.g., "sessionId").
	ParentKeyField string
}

// Registry holds all known document relationships for cascade operations.
type Registry struct {
	relationships []Relationship
	byParent      map[Collection][]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byParent:      make(map[Collection][]Relationship),
	}
}

// Register adds a relationship to the registry.
// This should be called during startup for each parent-child relationship.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byParent[rel.ParentCollection] = append(r.byParent[rel.ParentCollection], rel)
}

// ChildrenOf returns all child relationships for a given parent collection.
func (r *Registry) ChildrenOf(parent Collection) []Relationship {
	return r.byParent[parent]
}

// AllRelationships returns all registered relationships.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// HasChildren returns true if the parent collection has any registered child relationships.
func (r *Registry) HasChildren(parent Collection) bool {
	return len(r.byParent[parent]) > 0
}

// Parents returns the parent collections with registered children, in
// registration order.
func (r *Registry) Parents() []Collection {
	var out []Collection
	seen := map[Collection]bool{}
	for _, rel := range r.relationships {
		if !seen[rel.ParentCollection] {
			seen[rel.ParentCollection] = true
			out = append(out, rel.ParentCollection)
		}
	}
	return out
}
