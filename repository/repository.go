// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package repository defines the contracts between the federation
// core and the repositories it mediates: the caller-facing
// MetadataCollection surface, the storage Backend beneath the local
// wrapper, the security verifier, and the default helper and
// validator used to build and check instances.
package repository

import (
	"context"
	"time"

	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
)

// TypeDefOps is the type definition surface of a metadata
// collection.
type TypeDefOps interface {
	// AllTypes returns every type definition the collection supports.
	AllTypes(ctx context.Context, userID string) (typedef.Gallery, error)

	// FindTypesByName returns the definitions whose names match the
	// wildcard pattern (* and ? are honored).
	FindTypesByName(ctx context.Context, userID, name string) (typedef.Gallery, error)

	// TypeDefsByCategory returns the definitions of one category.
	TypeDefsByCategory(ctx context.Context, userID string, category typedef.Category) ([]typedef.TypeDef, error)

	// AttributeTypeDefsByCategory returns the attribute definitions
	// of one category.
	AttributeTypeDefsByCategory(ctx context.Context, userID string, category typedef.AttributeCategory) ([]typedef.AttributeTypeDef, error)

	// TypeDefsByProperty returns the definitions that declare every
	// named attribute.
	TypeDefsByProperty(ctx context.Context, userID string, attributeNames []string) ([]typedef.TypeDef, error)

	// TypesByExternalID returns the definitions mapped to the given
	// external standard element. Empty arguments are treated as
	// wildcards.
	TypesByExternalID(ctx context.Context, userID, standard, organization, identifier string) (typedef.Gallery, error)

	// SearchForTypeDefs returns the definitions whose names match the
	// search string.
	SearchForTypeDefs(ctx context.Context, userID, searchCriteria string) ([]typedef.TypeDef, error)

	// TypeDefByGUID returns one definition.
	TypeDefByGUID(ctx context.Context, userID, guid string) (typedef.TypeDef, error)

	// TypeDefByName returns one definition.
	TypeDefByName(ctx context.Context, userID, name string) (typedef.TypeDef, error)

	// AttributeTypeDefByGUID returns one attribute definition.
	AttributeTypeDefByGUID(ctx context.Context, userID, guid string) (typedef.AttributeTypeDef, error)

	// AttributeTypeDefByName returns one attribute definition.
	AttributeTypeDefByName(ctx context.Context, userID, name string) (typedef.AttributeTypeDef, error)

	// AddTypeDef defines a new type.
	AddTypeDef(ctx context.Context, userID string, def typedef.TypeDef) error

	// AddAttributeTypeDef defines a new attribute type.
	AddAttributeTypeDef(ctx context.Context, userID string, def typedef.AttributeTypeDef) error

	// AddTypeDefGallery defines every type in the gallery, attribute
	// types first.
	AddTypeDefGallery(ctx context.Context, userID string, gallery typedef.Gallery) error

	// VerifyTypeDef reports whether the definition is known and
	// identical to the stored one. A clash on identity fails with
	// TypeDefConflict.
	VerifyTypeDef(ctx context.Context, userID string, def typedef.TypeDef) (bool, error)

	// VerifyAttributeTypeDef is VerifyTypeDef for attribute types.
	VerifyAttributeTypeDef(ctx context.Context, userID string, def typedef.AttributeTypeDef) (bool, error)

	// UpdateTypeDef applies a patch and returns the updated
	// definition.
	UpdateTypeDef(ctx context.Context, userID string, patch typedef.Patch) (typedef.TypeDef, error)

	// DeleteTypeDef removes an unused type definition.
	DeleteTypeDef(ctx context.Context, userID, guid, name string) error

	// DeleteAttributeTypeDef removes an unused attribute type
	// definition.
	DeleteAttributeTypeDef(ctx context.Context, userID, guid, name string) error

	// ReIdentifyTypeDef moves a definition to a new GUID and name.
	ReIdentifyTypeDef(ctx context.Context, userID, originalGUID, originalName, newGUID, newName string) (typedef.TypeDef, error)

	// ReIdentifyAttributeTypeDef moves an attribute definition to a
	// new GUID and name.
	ReIdentifyAttributeTypeDef(ctx context.Context, userID, originalGUID, originalName, newGUID, newName string) (typedef.AttributeTypeDef, error)
}

// InstanceReads is the query surface of a metadata collection. Every
// returned instance carries complete provenance.
type InstanceReads interface {
	// IsEntityKnown returns the entity, or nil without error when the
	// GUID is not stored here.
	IsEntityKnown(ctx context.Context, userID, entityGUID string) (*instance.EntityDetail, error)

	// GetEntitySummary returns the entity's identity and
	// classifications. It succeeds even when only a proxy is stored.
	GetEntitySummary(ctx context.Context, userID, entityGUID string) (instance.EntitySummary, error)

	// GetEntityDetail returns the full entity. It fails with
	// EntityProxyOnly when only a proxy is stored.
	GetEntityDetail(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error)

	// GetEntityDetailAsOfTime returns the entity as it was at the
	// given time, on repositories that keep history.
	GetEntityDetailAsOfTime(ctx context.Context, userID, entityGUID string, asOfTime time.Time) (instance.EntityDetail, error)

	// FindEntitiesByProperty returns the entities matching the
	// property conditions.
	FindEntitiesByProperty(ctx context.Context, userID string, args FindEntitiesArgs) ([]instance.EntityDetail, error)

	// FindEntitiesByClassification returns the entities carrying the
	// classification, optionally narrowed by classification
	// properties.
	FindEntitiesByClassification(ctx context.Context, userID string, args FindEntitiesArgs) ([]instance.EntityDetail, error)

	// FindEntitiesByPropertyValue returns the entities with any
	// string property matching the search string.
	FindEntitiesByPropertyValue(ctx context.Context, userID string, args FindEntitiesArgs) ([]instance.EntityDetail, error)

	// GetRelationshipsForEntity returns the relationships attached to
	// the entity.
	GetRelationshipsForEntity(ctx context.Context, userID string, args RelationshipsForEntityArgs) ([]instance.Relationship, error)

	// IsRelationshipKnown returns the relationship, or nil without
	// error when the GUID is not stored here.
	IsRelationshipKnown(ctx context.Context, userID, relationshipGUID string) (*instance.Relationship, error)

	// GetRelationship returns the relationship.
	GetRelationship(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error)

	// GetRelationshipAsOfTime returns the relationship as it was at
	// the given time, on repositories that keep history.
	GetRelationshipAsOfTime(ctx context.Context, userID, relationshipGUID string, asOfTime time.Time) (instance.Relationship, error)

	// FindRelationshipsByProperty returns the relationships matching
	// the property conditions.
	FindRelationshipsByProperty(ctx context.Context, userID string, args FindRelationshipsArgs) ([]instance.Relationship, error)

	// FindRelationshipsByPropertyValue returns the relationships with
	// any string property matching the search string.
	FindRelationshipsByPropertyValue(ctx context.Context, userID string, args FindRelationshipsArgs) ([]instance.Relationship, error)

	// GetLinkingEntities returns the instances on paths between two
	// entities.
	GetLinkingEntities(ctx context.Context, userID, startEntityGUID, endEntityGUID string, statusFilter []instance.Status) (instance.Graph, error)

	// GetEntityNeighborhood returns the instances reachable from an
	// entity within the given number of hops.
	GetEntityNeighborhood(ctx context.Context, userID string, args NeighborhoodArgs) (instance.Graph, error)

	// GetRelatedEntities returns every entity connected to the start
	// entity, directly or indirectly.
	GetRelatedEntities(ctx context.Context, userID string, args RelatedEntitiesArgs) ([]instance.EntityDetail, error)
}

// InstanceWrites is the lifecycle surface of a metadata collection.
// Writes are only accepted at an instance's home collection.
type InstanceWrites interface {
	// AddEntity creates a new entity homed in this collection.
	AddEntity(ctx context.Context, userID string, args AddEntityArgs) (instance.EntityDetail, error)

	// AddExternalEntity creates a new entity mastered by an external
	// system, with this collection as its replication point.
	AddExternalEntity(ctx context.Context, userID string, args AddExternalEntityArgs) (instance.EntityDetail, error)

	// AddEntityProxy stores a proxy so relationships can link to an
	// entity homed elsewhere. Proxies are not events and not homed
	// here.
	AddEntityProxy(ctx context.Context, userID string, proxy instance.EntityProxy) error

	// UpdateEntityStatus moves the entity to a new status.
	UpdateEntityStatus(ctx context.Context, userID, entityGUID string, status instance.Status) (instance.EntityDetail, error)

	// UpdateEntityProperties replaces the entity's properties.
	UpdateEntityProperties(ctx context.Context, userID, entityGUID string, properties instance.Properties) (instance.EntityDetail, error)

	// UndoEntityUpdate rolls the entity back to its previous version.
	UndoEntityUpdate(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error)

	// DeleteEntity soft-deletes the entity.
	DeleteEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID string) (instance.EntityDetail, error)

	// PurgeEntity removes a soft-deleted entity permanently.
	PurgeEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID string) error

	// RestoreEntity returns a soft-deleted entity to its previous
	// status.
	RestoreEntity(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error)

	// ClassifyEntity attaches a classification.
	ClassifyEntity(ctx context.Context, userID, entityGUID, classificationName string, properties instance.Properties) (instance.EntityDetail, error)

	// DeclassifyEntity detaches a classification.
	DeclassifyEntity(ctx context.Context, userID, entityGUID, classificationName string) (instance.EntityDetail, error)

	// UpdateEntityClassification replaces a classification's
	// properties.
	UpdateEntityClassification(ctx context.Context, userID, entityGUID, classificationName string, properties instance.Properties) (instance.EntityDetail, error)

	// AddRelationship creates a new relationship homed in this
	// collection.
	AddRelationship(ctx context.Context, userID string, args AddRelationshipArgs) (instance.Relationship, error)

	// AddExternalRelationship creates a new relationship mastered by
	// an external system.
	AddExternalRelationship(ctx context.Context, userID string, args AddExternalRelationshipArgs) (instance.Relationship, error)

	// UpdateRelationshipStatus moves the relationship to a new
	// status.
	UpdateRelationshipStatus(ctx context.Context, userID, relationshipGUID string, status instance.Status) (instance.Relationship, error)

	// UpdateRelationshipProperties replaces the relationship's
	// properties.
	UpdateRelationshipProperties(ctx context.Context, userID, relationshipGUID string, properties instance.Properties) (instance.Relationship, error)

	// UndoRelationshipUpdate rolls the relationship back to its
	// previous version.
	UndoRelationshipUpdate(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error)

	// DeleteRelationship soft-deletes the relationship.
	DeleteRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID string) (instance.Relationship, error)

	// PurgeRelationship removes a soft-deleted relationship
	// permanently.
	PurgeRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID string) error

	// RestoreRelationship returns a soft-deleted relationship to its
	// previous status.
	RestoreRelationship(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error)
}

// InstanceControl is the control-plane surface: identity, type and
// home changes.
type InstanceControl interface {
	// ReIdentifyEntity moves the entity to a new GUID.
	ReIdentifyEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID, newEntityGUID string) (instance.EntityDetail, error)

	// ReTypeEntity moves the entity to a different type.
	ReTypeEntity(ctx context.Context, userID, entityGUID string, currentType, newType typedef.Summary) (instance.EntityDetail, error)

	// ReHomeEntity transfers ownership of the entity to another
	// collection.
	ReHomeEntity(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID, newHomeMetadataCollectionID, newHomeMetadataCollectionName string) (instance.EntityDetail, error)

	// ReIdentifyRelationship moves the relationship to a new GUID.
	ReIdentifyRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID, newRelationshipGUID string) (instance.Relationship, error)

	// ReTypeRelationship moves the relationship to a different type.
	ReTypeRelationship(ctx context.Context, userID, relationshipGUID string, currentType, newType typedef.Summary) (instance.Relationship, error)

	// ReHomeRelationship transfers ownership of the relationship to
	// another collection.
	ReHomeRelationship(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID, newHomeMetadataCollectionID, newHomeMetadataCollectionName string) (instance.Relationship, error)
}

// ReferenceCopyOps maintains copies of instances homed in other
// collections. Only inbound cohort event processing and federation
// learning call these.
type ReferenceCopyOps interface {
	// SaveEntityReferenceCopy stores or replaces a reference copy.
	SaveEntityReferenceCopy(ctx context.Context, userID string, entity instance.EntityDetail) error

	// PurgeEntityReferenceCopy removes a reference copy.
	PurgeEntityReferenceCopy(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error

	// RefreshEntityReferenceCopy asks the home collection to publish
	// the entity's current state.
	RefreshEntityReferenceCopy(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error

	// SaveRelationshipReferenceCopy stores or replaces a reference
	// copy, materializing end proxies as needed.
	SaveRelationshipReferenceCopy(ctx context.Context, userID string, relationship instance.Relationship) error

	// PurgeRelationshipReferenceCopy removes a reference copy.
	PurgeRelationshipReferenceCopy(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error

	// RefreshRelationshipReferenceCopy asks the home collection to
	// publish the relationship's current state.
	RefreshRelationshipReferenceCopy(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error

	// SaveInstanceReferenceCopies stores a batch of reference copies,
	// entities before relationships.
	SaveInstanceReferenceCopies(ctx context.Context, userID string, graph instance.Graph) error
}

// MetadataCollection is the complete surface of one repository,
// local or remote. The local wrapper, remote connectors and the
// enterprise federator all present it.
type MetadataCollection interface {
	// MetadataCollectionID returns the immutable identifier of the
	// collection this surface serves.
	MetadataCollectionID(ctx context.Context) (string, error)

	TypeDefOps
	InstanceReads
	InstanceWrites
	InstanceControl
	ReferenceCopyOps
}
