// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package inmemory provides a map-backed storage engine beneath the
// local repository wrapper. It keeps no history beyond the single
// archived version needed for undo; historical reads and path queries
// are not supported.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/repository"
)

// Backend stores instances in maps guarded by a single lock. All
// values passed in are copied on the way in, and all values handed
// out are copies the caller owns.
type Backend struct {
	mu sync.RWMutex

	entities      map[string]instance.EntityDetail
	proxies       map[string]instance.EntityProxy
	relationships map[string]instance.Relationship

	// One archived version per instance, replaced on every put.
	previousEntities      map[string]instance.EntityDetail
	previousRelationships map[string]instance.Relationship
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		entities:              make(map[string]instance.EntityDetail),
		proxies:               make(map[string]instance.EntityProxy),
		relationships:         make(map[string]instance.Relationship),
		previousEntities:      make(map[string]instance.EntityDetail),
		previousRelationships: make(map[string]instance.Relationship),
	}
}

// LookupEntity reports what is stored for the GUID. A full entity
// shadows any proxy stored earlier under the same GUID.
func (b *Backend) LookupEntity(ctx context.Context, entityGUID string) (repository.EntityLookup, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e, ok := b.entities[entityGUID]; ok {
		return repository.EntityLookup{Kind: repository.EntityFull, Entity: e.Copy()}, nil
	}
	if p, ok := b.proxies[entityGUID]; ok {
		return repository.EntityLookup{Kind: repository.EntityProxyOnly, Proxy: p.Copy()}, nil
	}
	return repository.EntityLookup{Kind: repository.EntityMissing}, nil
}

// EntityAsOf is not supported; the backend keeps no history.
func (b *Backend) EntityAsOf(ctx context.Context, entityGUID string, asOfTime time.Time) (instance.EntityDetail, error) {
	return instance.EntityDetail{}, errors.Annotatef(coreerrors.FunctionNotSupported, "historical entity reads")
}

// PutEntity stores or replaces an entity. The replaced version is
// archived for undo, and any proxy stored under the GUID is
// superseded.
func (b *Backend) PutEntity(ctx context.Context, entity instance.EntityDetail) error {
	if entity.GUID == "" {
		return errors.Annotatef(coreerrors.InvalidEntity, "entity without GUID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if previous, ok := b.entities[entity.GUID]; ok {
		b.previousEntities[entity.GUID] = previous
	}
	delete(b.proxies, entity.GUID)
	b.entities[entity.GUID] = entity.Copy()
	return nil
}

// PutEntityProxy stores a relationship-end proxy. A GUID already
// holding a full entity is left alone.
func (b *Backend) PutEntityProxy(ctx context.Context, proxy instance.EntityProxy) error {
	if proxy.GUID == "" {
		return errors.Annotatef(coreerrors.InvalidEntity, "proxy without GUID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entities[proxy.GUID]; ok {
		return nil
	}
	b.proxies[proxy.GUID] = proxy.Copy()
	return nil
}

// PreviousEntity returns the archived previous version of the entity.
func (b *Backend) PreviousEntity(ctx context.Context, entityGUID string) (instance.EntityDetail, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	previous, ok := b.previousEntities[entityGUID]
	if !ok {
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.EntityNotKnown,
			"no previous version of entity %q", entityGUID)
	}
	return previous.Copy(), nil
}

// RemoveEntity hard-removes whatever is stored for the GUID, along
// with its undo history.
func (b *Backend) RemoveEntity(ctx context.Context, entityGUID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, hasEntity := b.entities[entityGUID]
	_, hasProxy := b.proxies[entityGUID]
	if !hasEntity && !hasProxy {
		return errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", entityGUID)
	}
	delete(b.entities, entityGUID)
	delete(b.proxies, entityGUID)
	delete(b.previousEntities, entityGUID)
	return nil
}

// Relationship returns the stored relationship.
func (b *Backend) Relationship(ctx context.Context, relationshipGUID string) (instance.Relationship, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.relationships[relationshipGUID]
	if !ok {
		return instance.Relationship{}, errors.Annotatef(coreerrors.RelationshipNotKnown,
			"relationship %q", relationshipGUID)
	}
	return r.Copy(), nil
}

// RelationshipAsOf is not supported; the backend keeps no history.
func (b *Backend) RelationshipAsOf(ctx context.Context, relationshipGUID string, asOfTime time.Time) (instance.Relationship, error) {
	return instance.Relationship{}, errors.Annotatef(coreerrors.FunctionNotSupported, "historical relationship reads")
}

// PutRelationship stores or replaces a relationship. Both ends must
// already be stored, at least as proxies; the replaced version is
// archived for undo.
func (b *Backend) PutRelationship(ctx context.Context, relationship instance.Relationship) error {
	if relationship.GUID == "" {
		return errors.Annotatef(coreerrors.InvalidRelationship, "relationship without GUID")
	}
	if relationship.EntityOne == nil || relationship.EntityTwo == nil {
		return errors.Annotatef(coreerrors.InvalidRelationship,
			"relationship %q is missing an end proxy", relationship.GUID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, end := range []string{relationship.EntityOne.GUID, relationship.EntityTwo.GUID} {
		if !b.entityStored(end) {
			return errors.Annotatef(coreerrors.EntityNotKnown,
				"relationship end %q is not stored", end)
		}
	}
	if previous, ok := b.relationships[relationship.GUID]; ok {
		b.previousRelationships[relationship.GUID] = previous
	}
	b.relationships[relationship.GUID] = relationship.Copy()
	return nil
}

// PreviousRelationship returns the archived previous version of the
// relationship.
func (b *Backend) PreviousRelationship(ctx context.Context, relationshipGUID string) (instance.Relationship, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	previous, ok := b.previousRelationships[relationshipGUID]
	if !ok {
		return instance.Relationship{}, errors.Annotatef(coreerrors.RelationshipNotKnown,
			"no previous version of relationship %q", relationshipGUID)
	}
	return previous.Copy(), nil
}

// RemoveRelationship hard-removes a relationship and its undo
// history.
func (b *Backend) RemoveRelationship(ctx context.Context, relationshipGUID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.relationships[relationshipGUID]; !ok {
		return errors.Annotatef(coreerrors.RelationshipNotKnown, "relationship %q", relationshipGUID)
	}
	delete(b.relationships, relationshipGUID)
	delete(b.previousRelationships, relationshipGUID)
	return nil
}

// entityStored reports whether the GUID holds a full entity or a
// proxy. Callers must hold the lock.
func (b *Backend) entityStored(entityGUID string) bool {
	if _, ok := b.entities[entityGUID]; ok {
		return true
	}
	_, ok := b.proxies[entityGUID]
	return ok
}
