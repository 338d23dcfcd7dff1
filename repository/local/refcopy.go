// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package local

import (
	"context"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
	"github.com/juju/metafed/repository"
)

// SaveEntityReferenceCopy implements repository.ReferenceCopyOps. The
// copy is stored exactly as supplied; version, audit trail and
// provenance belong to the home collection.
func (r *Repository) SaveEntityReferenceCopy(ctx context.Context, userID string, entity instance.EntityDetail) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateEntity(entity); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateReferenceEntity(r.config.MetadataCollectionID, entity); err != nil {
		return errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	if _, err := r.validator.KnownType(entity.Type, typedef.CategoryEntity); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.config.Backend.PutEntity(ctx, entity))
}

// PurgeEntityReferenceCopy implements repository.ReferenceCopyOps.
// Unlike a home purge there is no deleted-first requirement; the copy
// simply goes.
func (r *Repository) PurgeEntityReferenceCopy(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	lookup, err := r.config.Backend.LookupEntity(ctx, entityGUID)
	if err != nil {
		return errors.Trace(err)
	}
	if lookup.Kind == repository.EntityMissing {
		return errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", entityGUID)
	}
	var header instance.AuditHeader
	if lookup.Kind == repository.EntityFull {
		header = lookup.Entity.AuditHeader
	} else {
		header = lookup.Proxy.AuditHeader
	}
	if header.MetadataCollectionID == r.config.MetadataCollectionID {
		return errors.Annotatef(coreerrors.HomeEntity,
			"entity %q is homed here, not a reference copy", entityGUID)
	}
	return errors.Trace(r.config.Backend.RemoveEntity(ctx, entityGUID))
}

// RefreshEntityReferenceCopy implements repository.ReferenceCopyOps.
// Nothing is touched locally; the request goes out to the cohort and
// the home collection answers with a refresh event.
func (r *Repository) RefreshEntityReferenceCopy(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return errors.Trace(err)
	}
	if homeMetadataCollectionID == r.config.MetadataCollectionID {
		return errors.Annotatef(coreerrors.HomeEntity,
			"entity %q is homed here; there is nothing to refresh from", entityGUID)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.events().EntityRefreshRequested(ctx, typeDefGUID, typeDefName, entityGUID, homeMetadataCollectionID))
}

// SaveRelationshipReferenceCopy implements
// repository.ReferenceCopyOps. End proxies are materialized so the
// copy is navigable even when the ends were never seen here.
func (r *Repository) SaveRelationshipReferenceCopy(ctx context.Context, userID string, relationship instance.Relationship) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateRelationship(relationship); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateReferenceRelationship(r.config.MetadataCollectionID, relationship); err != nil {
		return errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	if _, err := r.validator.KnownType(relationship.Type, typedef.CategoryRelationship); err != nil {
		return errors.Trace(err)
	}
	for _, end := range []*instance.EntityProxy{relationship.EntityOne, relationship.EntityTwo} {
		if end == nil {
			continue
		}
		if err := r.config.Backend.PutEntityProxy(ctx, *end); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(r.config.Backend.PutRelationship(ctx, relationship))
}

// PurgeRelationshipReferenceCopy implements
// repository.ReferenceCopyOps.
func (r *Repository) PurgeRelationshipReferenceCopy(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	rel, err := r.config.Backend.Relationship(ctx, relationshipGUID)
	if err != nil {
		return errors.Trace(err)
	}
	if rel.MetadataCollectionID == r.config.MetadataCollectionID {
		return errors.Annotatef(coreerrors.HomeRelationship,
			"relationship %q is homed here, not a reference copy", relationshipGUID)
	}
	return errors.Trace(r.config.Backend.RemoveRelationship(ctx, relationshipGUID))
}

// RefreshRelationshipReferenceCopy implements
// repository.ReferenceCopyOps.
func (r *Repository) RefreshRelationshipReferenceCopy(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return errors.Trace(err)
	}
	if homeMetadataCollectionID == r.config.MetadataCollectionID {
		return errors.Annotatef(coreerrors.HomeRelationship,
			"relationship %q is homed here; there is nothing to refresh from", relationshipGUID)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.events().RelationshipRefreshRequested(ctx, typeDefGUID, typeDefName, relationshipGUID, homeMetadataCollectionID))
}

// SaveInstanceReferenceCopies implements repository.ReferenceCopyOps.
// Entities land before relationships so the relationship ends
// resolve. A failing instance does not stop the rest of the batch.
func (r *Repository) SaveInstanceReferenceCopies(ctx context.Context, userID string, graph instance.Graph) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	var failed int
	var first error
	for _, e := range graph.Entities {
		if err := r.SaveEntityReferenceCopy(ctx, userID, e); err != nil {
			logger.Errorf("saving reference copy of entity %q: %v", e.GUID, err)
			if first == nil {
				first = err
			}
			failed++
		}
	}
	for _, rel := range graph.Relationships {
		if err := r.SaveRelationshipReferenceCopy(ctx, userID, rel); err != nil {
			logger.Errorf("saving reference copy of relationship %q: %v", rel.GUID, err)
			if first == nil {
				first = err
			}
			failed++
		}
	}
	if first != nil {
		total := len(graph.Entities) + len(graph.Relationships)
		return errors.Annotatef(first, "%d of %d reference copies failed", failed, total)
	}
	return nil
}
