// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package event defines the envelope exchanged between cohort
// members. One flat record carries every event kind; which payload
// fields are populated depends on the event type. Unknown fields are
// ignored on input and empty fields are elided on output, so members
// running different versions can share a cohort.
package event

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"

	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
)

// ProtocolV1 is the envelope version written by this implementation.
const ProtocolV1 = "v1.0"

// Type discriminates the events a cohort member can publish.
type Type string

const (
	// Entity instance events.
	TypeNewEntity            Type = "NEW_ENTITY"
	TypeUpdatedEntity        Type = "UPDATED_ENTITY"
	TypeUndoneEntity         Type = "UNDONE_ENTITY"
	TypeClassifiedEntity     Type = "CLASSIFIED_ENTITY"
	TypeReclassifiedEntity   Type = "RECLASSIFIED_ENTITY"
	TypeDeclassifiedEntity   Type = "DECLASSIFIED_ENTITY"
	TypeDeletedEntity        Type = "DELETED_ENTITY"
	TypePurgedEntity         Type = "PURGED_ENTITY"
	TypeRestoredEntity       Type = "RESTORED_ENTITY"
	TypeReIdentifiedEntity   Type = "RE_IDENTIFIED_ENTITY"
	TypeReTypedEntity        Type = "RE_TYPED_ENTITY"
	TypeReHomedEntity        Type = "RE_HOMED_ENTITY"
	TypeRefreshEntityRequest Type = "REFRESH_ENTITY_REQUEST"
	TypeRefreshedEntity      Type = "REFRESHED_ENTITY"

	// Relationship instance events.
	TypeNewRelationship            Type = "NEW_RELATIONSHIP"
	TypeUpdatedRelationship        Type = "UPDATED_RELATIONSHIP"
	TypeUndoneRelationship         Type = "UNDONE_RELATIONSHIP"
	TypeDeletedRelationship        Type = "DELETED_RELATIONSHIP"
	TypePurgedRelationship         Type = "PURGED_RELATIONSHIP"
	TypeRestoredRelationship       Type = "RESTORED_RELATIONSHIP"
	TypeReIdentifiedRelationship   Type = "RE_IDENTIFIED_RELATIONSHIP"
	TypeReTypedRelationship        Type = "RE_TYPED_RELATIONSHIP"
	TypeReHomedRelationship        Type = "RE_HOMED_RELATIONSHIP"
	TypeRefreshRelationshipRequest Type = "REFRESH_RELATIONSHIP_REQUEST"
	TypeRefreshedRelationship      Type = "REFRESHED_RELATIONSHIP"

	// Cross-instance events.
	TypeBatchInstances       Type = "BATCH_INSTANCES"
	TypeConflictingInstances Type = "CONFLICTING_INSTANCES"
	TypeConflictingType      Type = "CONFLICTING_TYPE"

	// Type definition events.
	TypeNewTypeDef                   Type = "NEW_TYPEDEF"
	TypeNewAttributeTypeDef          Type = "NEW_ATTRIBUTE_TYPEDEF"
	TypeUpdatedTypeDef               Type = "UPDATED_TYPEDEF"
	TypeDeletedTypeDef               Type = "DELETED_TYPEDEF"
	TypeDeletedAttributeTypeDef      Type = "DELETED_ATTRIBUTE_TYPEDEF"
	TypeReIdentifiedTypeDef          Type = "RE_IDENTIFIED_TYPEDEF"
	TypeReIdentifiedAttributeTypeDef Type = "RE_IDENTIFIED_ATTRIBUTE_TYPEDEF"

	// Cohort registry events.
	TypeRegistration               Type = "REGISTRATION"
	TypeReRegistration             Type = "RE_REGISTRATION"
	TypeUnRegistration             Type = "UN_REGISTRATION"
	TypeRefreshRegistrationRequest Type = "REFRESH_REGISTRATION_REQUEST"
)

// Category groups event types by the subsystem that consumes them.
type Category string

const (
	CategoryUnknown  Category = ""
	CategoryInstance Category = "instance"
	CategoryTypeDef  Category = "typedef"
	CategoryRegistry Category = "registry"
)

var eventCategories = map[Type]Category{
	TypeNewEntity:            CategoryInstance,
	TypeUpdatedEntity:        CategoryInstance,
	TypeUndoneEntity:         CategoryInstance,
	TypeClassifiedEntity:     CategoryInstance,
	TypeReclassifiedEntity:   CategoryInstance,
	TypeDeclassifiedEntity:   CategoryInstance,
	TypeDeletedEntity:        CategoryInstance,
	TypePurgedEntity:         CategoryInstance,
	TypeRestoredEntity:       CategoryInstance,
	TypeReIdentifiedEntity:   CategoryInstance,
	TypeReTypedEntity:        CategoryInstance,
	TypeReHomedEntity:        CategoryInstance,
	TypeRefreshEntityRequest: CategoryInstance,
	TypeRefreshedEntity:      CategoryInstance,

	TypeNewRelationship:            CategoryInstance,
	TypeUpdatedRelationship:        CategoryInstance,
	TypeUndoneRelationship:         CategoryInstance,
	TypeDeletedRelationship:        CategoryInstance,
	TypePurgedRelationship:         CategoryInstance,
	TypeRestoredRelationship:       CategoryInstance,
	TypeReIdentifiedRelationship:   CategoryInstance,
	TypeReTypedRelationship:        CategoryInstance,
	TypeReHomedRelationship:        CategoryInstance,
	TypeRefreshRelationshipRequest: CategoryInstance,
	TypeRefreshedRelationship:      CategoryInstance,

	TypeBatchInstances:       CategoryInstance,
	TypeConflictingInstances: CategoryInstance,
	TypeConflictingType:      CategoryInstance,

	TypeNewTypeDef:                   CategoryTypeDef,
	TypeNewAttributeTypeDef:          CategoryTypeDef,
	TypeUpdatedTypeDef:               CategoryTypeDef,
	TypeDeletedTypeDef:               CategoryTypeDef,
	TypeDeletedAttributeTypeDef:      CategoryTypeDef,
	TypeReIdentifiedTypeDef:          CategoryTypeDef,
	TypeReIdentifiedAttributeTypeDef: CategoryTypeDef,

	TypeRegistration:               CategoryRegistry,
	TypeReRegistration:             CategoryRegistry,
	TypeUnRegistration:             CategoryRegistry,
	TypeRefreshRegistrationRequest: CategoryRegistry,
}

// Category returns the subsystem the event type belongs to, or
// CategoryUnknown for types this implementation does not recognize.
func (t Type) Category() Category {
	return eventCategories[t]
}

// Validate returns an error if the event type is not recognized.
func (t Type) Validate() error {
	if _, ok := eventCategories[t]; !ok {
		return errors.NotValidf("event type %q", string(t))
	}
	return nil
}

// Originator identifies the server that published an event.
type Originator struct {
	MetadataCollectionID string `json:"metadataCollectionId,omitempty"`
	ServerName           string `json:"serverName,omitempty"`
	ServerType           string `json:"serverType,omitempty"`
	OrganizationName     string `json:"organizationName,omitempty"`
}

// Event is the cohort wire envelope. Exactly one logical payload is
// populated per event type; consumers must tolerate unfamiliar
// fields so cohorts can mix implementation versions.
type Event struct {
	ProtocolVersion string     `json:"protocolVersion,omitempty"`
	Type            Type       `json:"eventType"`
	Originator      Originator `json:"originator"`

	// Instance payloads.
	Entity               *instance.EntityDetail `json:"entity,omitempty"`
	OriginalEntity       *instance.EntityDetail `json:"originalEntity,omitempty"`
	Relationship         *instance.Relationship `json:"relationship,omitempty"`
	OriginalRelationship *instance.Relationship `json:"originalRelationship,omitempty"`
	InstanceBatch        *instance.Graph        `json:"instanceBatch,omitempty"`

	// Instance identity fields for events that carry no full payload
	// (purges, refresh requests) and for re-identification.
	TypeDefGUID          string `json:"typeDefGUID,omitempty"`
	TypeDefName          string `json:"typeDefName,omitempty"`
	InstanceGUID         string `json:"instanceGUID,omitempty"`
	OriginalInstanceGUID string `json:"originalInstanceGUID,omitempty"`

	// Home routing fields.
	HomeMetadataCollectionID         string `json:"homeMetadataCollectionId,omitempty"`
	OriginalHomeMetadataCollectionID string `json:"originalHomeMetadataCollectionId,omitempty"`

	// Re-type support.
	OriginalTypeDefSummary *typedef.Summary `json:"originalTypeDefSummary,omitempty"`

	// Conflict targeting: the instance believed to be in error.
	TargetMetadataCollectionID string           `json:"targetMetadataCollectionId,omitempty"`
	TargetTypeDefSummary       *typedef.Summary `json:"targetTypeDefSummary,omitempty"`
	TargetInstanceGUID         string           `json:"targetInstanceGUID,omitempty"`

	// Conflict counterpart: the originator's view of the instance.
	OtherMetadataCollectionID string              `json:"otherMetadataCollectionId,omitempty"`
	OtherTypeDefSummary       *typedef.Summary    `json:"otherTypeDefSummary,omitempty"`
	OtherInstanceGUID         string              `json:"otherInstanceGUID,omitempty"`
	OtherOrigin               instance.Provenance `json:"otherOrigin,omitempty"`

	// Type definition payloads.
	TypeDef                  *typedef.TypeDef          `json:"typeDef,omitempty"`
	AttributeTypeDef         *typedef.AttributeTypeDef `json:"attributeTypeDef,omitempty"`
	OriginalAttributeTypeDef *typedef.AttributeTypeDef `json:"originalAttributeTypeDef,omitempty"`
	TypeDefPatch             *typedef.Patch            `json:"typeDefPatch,omitempty"`

	// Registration payloads.
	MetadataCollectionName string     `json:"metadataCollectionName,omitempty"`
	RegistrationTime       *time.Time `json:"registrationTime,omitempty"`

	// Error reporting, populated on conflict events.
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Validate returns an error if the envelope is not well formed
// enough to dispatch: it must carry a recognized event type and name
// its originating collection.
func (e Event) Validate() error {
	if err := e.Type.Validate(); err != nil {
		return errors.Trace(err)
	}
	if e.Originator.MetadataCollectionID == "" {
		return errors.NotValidf("event %q with empty originator metadata collection id", string(e.Type))
	}
	return nil
}

// Marshal encodes the event for the cohort bus.
func Marshal(e Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if e.ProtocolVersion == "" {
		e.ProtocolVersion = ProtocolV1
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// Unmarshal decodes an event received from the cohort bus.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, errors.Trace(err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, errors.Trace(err)
	}
	return e, nil
}
