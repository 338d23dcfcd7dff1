// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package instance

import (
	"encoding/json"
)

// Class discriminators marshaled with each instance kind.
const (
	classEntityDetail   = "EntityDetail"
	classEntityProxy    = "EntityProxy"
	classRelationship   = "Relationship"
	classClassification = "Classification"
)

// ClassificationOrigin records how a classification came to be
// attached to its entity.
type ClassificationOrigin string

const (
	// OriginAssigned marks a classification attached directly to the
	// entity.
	OriginAssigned ClassificationOrigin = "ASSIGNED"

	// OriginPropagated marks a classification that flowed to the
	// entity along a relationship.
	OriginPropagated ClassificationOrigin = "PROPAGATED"
)

// Classification is a typed, named property bundle attached to
// exactly one entity. It has no GUID of its own; its identity is the
// (entity, name) pair.
type Classification struct {
	AuditHeader
	Name       string               `json:"name"`
	Origin     ClassificationOrigin `json:"classificationOrigin,omitempty"`
	OriginGUID string               `json:"classificationOriginGUID,omitempty"`
	Properties Properties           `json:"properties,omitempty"`
}

// Copy returns an independent copy of the classification.
func (c Classification) Copy() Classification {
	cc := c
	cc.AuditHeader = c.AuditHeader.Copy()
	cc.Properties = c.Properties.Copy()
	return cc
}

// MarshalJSON implements json.Marshaler.
func (c Classification) MarshalJSON() ([]byte, error) {
	type classificationJSON Classification
	return json.Marshal(struct {
		Class string `json:"class"`
		classificationJSON
	}{classClassification, classificationJSON(c)})
}

// EntitySummary is the identity, audit trail and classifications of
// an entity, without its properties.
type EntitySummary struct {
	Header
	Classifications []Classification `json:"classifications,omitempty"`
}

// Copy returns an independent copy of the summary.
func (e EntitySummary) Copy() EntitySummary {
	ce := e
	ce.Header = e.Header.Copy()
	ce.Classifications = copyClassifications(e.Classifications)
	return ce
}

// Classification returns the named classification, if attached.
func (e EntitySummary) Classification(name string) (Classification, bool) {
	for _, c := range e.Classifications {
		if c.Name == name {
			return c, true
		}
	}
	return Classification{}, false
}

// SetClassification attaches the classification, replacing any
// existing classification of the same name.
func (e *EntitySummary) SetClassification(c Classification) {
	for i, existing := range e.Classifications {
		if existing.Name == c.Name {
			e.Classifications[i] = c
			return
		}
	}
	e.Classifications = append(e.Classifications, c)
}

// RemoveClassification detaches the named classification, reporting
// whether it was attached.
func (e *EntitySummary) RemoveClassification(name string) bool {
	for i, existing := range e.Classifications {
		if existing.Name == name {
			e.Classifications = append(e.Classifications[:i], e.Classifications[i+1:]...)
			return true
		}
	}
	return false
}

func copyClassifications(classifications []Classification) []Classification {
	if classifications == nil {
		return nil
	}
	out := make([]Classification, len(classifications))
	for i, c := range classifications {
		out[i] = c.Copy()
	}
	return out
}

// EntityDetail is a full entity: summary plus properties.
type EntityDetail struct {
	EntitySummary
	Properties Properties `json:"properties,omitempty"`
}

// Copy returns an independent copy of the entity.
func (e EntityDetail) Copy() EntityDetail {
	ce := e
	ce.EntitySummary = e.EntitySummary.Copy()
	ce.Properties = e.Properties.Copy()
	return ce
}

// MarshalJSON implements json.Marshaler.
func (e EntityDetail) MarshalJSON() ([]byte, error) {
	type entityDetailJSON EntityDetail
	return json.Marshal(struct {
		Class string `json:"class"`
		entityDetailJSON
	}{classEntityDetail, entityDetailJSON(e)})
}

// EntityProxy is a stub for an entity that is not materialized
// locally: its identity plus the unique properties needed to display
// it. Proxies stand in as relationship ends.
type EntityProxy struct {
	Header
	UniqueProperties Properties `json:"uniqueProperties,omitempty"`
}

// Copy returns an independent copy of the proxy.
func (p EntityProxy) Copy() EntityProxy {
	cp := p
	cp.Header = p.Header.Copy()
	cp.UniqueProperties = p.UniqueProperties.Copy()
	return cp
}

// MarshalJSON implements json.Marshaler.
func (p EntityProxy) MarshalJSON() ([]byte, error) {
	type entityProxyJSON EntityProxy
	return json.Marshal(struct {
		Class string `json:"class"`
		entityProxyJSON
	}{classEntityProxy, entityProxyJSON(p)})
}
