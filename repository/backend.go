// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package repository

import (
	"context"
	"time"

	"github.com/juju/metafed/core/instance"
)

// EntityLookupKind says what a Backend holds for an entity GUID.
type EntityLookupKind int

const (
	// EntityMissing means the GUID is not stored at all.
	EntityMissing EntityLookupKind = iota

	// EntityFull means a full entity is stored.
	EntityFull

	// EntityProxyOnly means only a relationship-end proxy is stored.
	EntityProxyOnly
)

// EntityLookup is the result of a Backend entity lookup. Exactly one
// of Entity or Proxy is meaningful, selected by Kind.
type EntityLookup struct {
	Kind   EntityLookupKind
	Entity instance.EntityDetail
	Proxy  instance.EntityProxy
}

// Backend is the storage engine beneath the local repository
// wrapper. It persists what it is given and answers queries; the
// wrapper owns lifecycle semantics, validation, authorization,
// provenance and events.
//
// Backends must return copies that the caller owns, and must not
// retain references to stored arguments. Optional capabilities
// (historical reads, path queries) fail with FunctionNotSupported.
type Backend interface {
	// LookupEntity reports what is stored for the GUID: a full
	// entity, only a proxy, or nothing.
	LookupEntity(ctx context.Context, entityGUID string) (EntityLookup, error)

	// EntityAsOf returns the entity as stored at the given time.
	EntityAsOf(ctx context.Context, entityGUID string, asOfTime time.Time) (instance.EntityDetail, error)

	// PutEntity stores or replaces an entity, archiving the replaced
	// version for undo. Home instances must advance their version on
	// replacement.
	PutEntity(ctx context.Context, entity instance.EntityDetail) error

	// PutEntityProxy stores a relationship-end proxy. Storing a proxy
	// for a GUID with a full entity is a no-op.
	PutEntityProxy(ctx context.Context, proxy instance.EntityProxy) error

	// PreviousEntity returns the archived previous version of the
	// entity, if one exists.
	PreviousEntity(ctx context.Context, entityGUID string) (instance.EntityDetail, error)

	// RemoveEntity hard-removes an entity or proxy and its undo
	// history.
	RemoveEntity(ctx context.Context, entityGUID string) error

	// Relationship returns the stored relationship.
	Relationship(ctx context.Context, relationshipGUID string) (instance.Relationship, error)

	// RelationshipAsOf returns the relationship as stored at the
	// given time.
	RelationshipAsOf(ctx context.Context, relationshipGUID string, asOfTime time.Time) (instance.Relationship, error)

	// PutRelationship stores or replaces a relationship, archiving
	// the replaced version for undo. Both ends must already be known,
	// at least as proxies.
	PutRelationship(ctx context.Context, relationship instance.Relationship) error

	// PreviousRelationship returns the archived previous version of
	// the relationship, if one exists.
	PreviousRelationship(ctx context.Context, relationshipGUID string) (instance.Relationship, error)

	// RemoveRelationship hard-removes a relationship and its undo
	// history.
	RemoveRelationship(ctx context.Context, relationshipGUID string) error

	// FindEntities answers all three entity searches; which condition
	// set is populated depends on the caller.
	FindEntities(ctx context.Context, args FindEntitiesArgs) ([]instance.EntityDetail, error)

	// FindRelationships answers both relationship searches.
	FindRelationships(ctx context.Context, args FindRelationshipsArgs) ([]instance.Relationship, error)

	// RelationshipsForEntity returns the relationships attached to an
	// entity.
	RelationshipsForEntity(ctx context.Context, args RelationshipsForEntityArgs) ([]instance.Relationship, error)

	// Neighborhood walks relationships out from an entity.
	Neighborhood(ctx context.Context, args NeighborhoodArgs) (instance.Graph, error)

	// RelatedEntities returns the closure of entities reachable from
	// the start entity.
	RelatedEntities(ctx context.Context, args RelatedEntitiesArgs) ([]instance.EntityDetail, error)

	// LinkingEntities returns the instances on paths between two
	// entities.
	LinkingEntities(ctx context.Context, startEntityGUID, endEntityGUID string, statusFilter []instance.Status) (instance.Graph, error)
}
