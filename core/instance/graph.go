// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package instance

// Graph is a connected set of entities and relationships, used for
// neighborhood queries and batched reference-copy exchange.
type Graph struct {
	Entities      []EntityDetail `json:"entities,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// Copy returns an independent deep copy of the graph.
func (g Graph) Copy() Graph {
	cg := Graph{}
	if g.Entities != nil {
		cg.Entities = make([]EntityDetail, len(g.Entities))
		for i, e := range g.Entities {
			cg.Entities[i] = e.Copy()
		}
	}
	if g.Relationships != nil {
		cg.Relationships = make([]Relationship, len(g.Relationships))
		for i, r := range g.Relationships {
			cg.Relationships[i] = r.Copy()
		}
	}
	return cg
}

// Empty reports whether the graph holds no instances.
func (g Graph) Empty() bool {
	return len(g.Entities) == 0 && len(g.Relationships) == 0
}
