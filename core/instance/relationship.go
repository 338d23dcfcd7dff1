// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package instance

import (
	"encoding/json"
)

// Relationship links exactly two entities. Each end is an owned
// proxy copy; relationships never hold references into an entity
// graph.
type Relationship struct {
	Header
	Properties Properties   `json:"properties,omitempty"`
	EntityOne  *EntityProxy `json:"entityOneProxy,omitempty"`
	EntityTwo  *EntityProxy `json:"entityTwoProxy,omitempty"`
}

// Copy returns an independent copy of the relationship, including
// its end proxies.
func (r Relationship) Copy() Relationship {
	cr := r
	cr.Header = r.Header.Copy()
	cr.Properties = r.Properties.Copy()
	if r.EntityOne != nil {
		p := r.EntityOne.Copy()
		cr.EntityOne = &p
	}
	if r.EntityTwo != nil {
		p := r.EntityTwo.Copy()
		cr.EntityTwo = &p
	}
	return cr
}

// HasEnd reports whether the entity is one of the relationship's
// ends.
func (r Relationship) HasEnd(entityGUID string) bool {
	return (r.EntityOne != nil && r.EntityOne.GUID == entityGUID) ||
		(r.EntityTwo != nil && r.EntityTwo.GUID == entityGUID)
}

// OtherEnd returns the proxy at the far end from the given entity,
// if the entity is one of the ends.
func (r Relationship) OtherEnd(entityGUID string) (EntityProxy, bool) {
	if r.EntityOne != nil && r.EntityOne.GUID == entityGUID && r.EntityTwo != nil {
		return *r.EntityTwo, true
	}
	if r.EntityTwo != nil && r.EntityTwo.GUID == entityGUID && r.EntityOne != nil {
		return *r.EntityOne, true
	}
	return EntityProxy{}, false
}

// MarshalJSON implements json.Marshaler.
func (r Relationship) MarshalJSON() ([]byte, error) {
	type relationshipJSON Relationship
	return json.Marshal(struct {
		Class string `json:"class"`
		relationshipJSON
	}{classRelationship, relationshipJSON(r)})
}
