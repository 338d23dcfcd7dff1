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

// AddEntity implements repository.InstanceWrites.
func (r *Repository) AddEntity(ctx context.Context, userID string, args repository.AddEntityArgs) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canCreate(ctx, userID, args.TypeName); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.helper.NewEntity(userID, r.origin(), args)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	def, err := r.validator.KnownType(e.Type, typedef.CategoryEntity)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(def, e.Properties); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityCreated(ctx, e)
	r.stampEntity(&e)
	return e, nil
}

// AddExternalEntity implements repository.InstanceWrites. The entity
// is homed in the external collection, so it lands here as a
// reference copy with this collection recorded as its replicator.
func (r *Repository) AddExternalEntity(ctx context.Context, userID string, args repository.AddExternalEntityArgs) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("externalSourceGUID", args.ExternalSourceGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canCreate(ctx, userID, args.TypeName); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	origin := r.externalOrigin(args.ExternalSourceGUID, args.ExternalSourceName)
	e, err := r.helper.NewEntity(userID, origin, args.AddEntityArgs)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	def, err := r.validator.KnownType(e.Type, typedef.CategoryEntity)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(def, e.Properties); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityCreated(ctx, e)
	return e, nil
}

// AddEntityProxy implements repository.InstanceWrites. Proxies are
// relationship scaffolding, not metadata changes, so none is
// announced to the cohort.
func (r *Repository) AddEntityProxy(ctx context.Context, userID string, proxy instance.EntityProxy) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateEntityProxy(proxy); err != nil {
		return errors.Trace(err)
	}
	if proxy.MetadataCollectionID == r.config.MetadataCollectionID {
		return errors.Annotatef(coreerrors.InvalidParameter,
			"entity %q is homed here; a proxy cannot replace the real entity", proxy.GUID)
	}
	if err := r.canCreate(ctx, userID, proxy.Type.Name); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.config.Backend.PutEntityProxy(ctx, proxy))
}

// UpdateEntityStatus implements repository.InstanceWrites.
func (r *Repository) UpdateEntityStatus(ctx context.Context, userID, entityGUID string, status instance.Status) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if status == instance.StatusDeleted {
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.StatusNotSupported,
			"deletion goes through DeleteEntity")
	}
	e, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	def, err := r.validator.KnownType(e.Type, typedef.CategoryEntity)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateStatus(def, status); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	original := e.Copy()
	e.Status = status
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityUpdated(ctx, original, e)
	r.stampEntity(&e)
	return e, nil
}

// UpdateEntityProperties implements repository.InstanceWrites.
func (r *Repository) UpdateEntityProperties(ctx context.Context, userID, entityGUID string, properties instance.Properties) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	def, err := r.validator.KnownType(e.Type, typedef.CategoryEntity)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(def, properties); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	original := e.Copy()
	e.Properties = properties.Copy()
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityUpdated(ctx, original, e)
	r.stampEntity(&e)
	return e, nil
}

// UndoEntityUpdate implements repository.InstanceWrites. The restored
// content is republished under a version above the one rolled back,
// so the undo itself propagates.
func (r *Repository) UndoEntityUpdate(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	current, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, current.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	previous, err := r.config.Backend.PreviousEntity(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	restored := previous.Copy()
	restored.Version = current.Version
	r.helper.Advance(&restored.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, restored); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityUndone(ctx, restored)
	r.stampEntity(&restored)
	return restored, nil
}

// DeleteEntity implements repository.InstanceWrites. Relationships
// attached to the entity and homed here are soft-deleted with it.
func (r *Repository) DeleteEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID string) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := matchesType(e.Type, typeDefGUID, typeDefName); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if e.Status == instance.StatusDeleted {
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.InvalidParameter,
			"entity %q is already deleted", entityGUID)
	}
	if err := r.canDelete(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.deleteAttachedRelationships(ctx, userID, entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e.StatusOnDelete = e.Status
	e.Status = instance.StatusDeleted
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityDeleted(ctx, e)
	r.stampEntity(&e)
	return e, nil
}

// PurgeEntity implements repository.InstanceWrites. Any relationships
// still attached, deleted or not, go with the entity.
func (r *Repository) PurgeEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID string) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return errors.Trace(err)
	}
	e, err := r.fullEntity(ctx, entityGUID)
	if err != nil {
		return errors.Trace(err)
	}
	if err := matchesType(e.Type, typeDefGUID, typeDefName); err != nil {
		return errors.Trace(err)
	}
	if !r.ownedHere(e.AuditHeader) {
		return errors.Annotatef(coreerrors.InvalidParameter,
			"entity %q is homed in collection %q; changes must go to its home",
			entityGUID, e.MetadataCollectionID)
	}
	if e.Status != instance.StatusDeleted {
		return errors.Annotatef(coreerrors.EntityNotDeleted,
			"entity %q must be deleted before it can be purged", entityGUID)
	}
	if err := r.canDelete(ctx, userID, e.Header); err != nil {
		return errors.Trace(err)
	}
	attached, err := r.config.Backend.RelationshipsForEntity(ctx, repository.RelationshipsForEntityArgs{
		EntityGUID:   entityGUID,
		StatusFilter: instance.AllStatuses(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	for _, rel := range attached {
		if err := r.config.Backend.RemoveRelationship(ctx, rel.GUID); err != nil {
			return errors.Trace(err)
		}
	}
	if err := r.config.Backend.RemoveEntity(ctx, entityGUID); err != nil {
		return errors.Trace(err)
	}
	r.events().EntityPurged(ctx, typeDefGUID, typeDefName, entityGUID)
	return nil
}

// RestoreEntity implements repository.InstanceWrites.
func (r *Repository) RestoreEntity(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if e.Status != instance.StatusDeleted {
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.EntityNotDeleted,
			"entity %q is not deleted", entityGUID)
	}
	if err := r.canDelete(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e.Status = e.StatusOnDelete
	if e.Status == instance.StatusUnknown {
		e.Status = instance.StatusActive
	}
	e.StatusOnDelete = instance.StatusUnknown
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityRestored(ctx, e)
	r.stampEntity(&e)
	return e, nil
}

// ClassifyEntity implements repository.InstanceWrites.
func (r *Repository) ClassifyEntity(ctx context.Context, userID, entityGUID, classificationName string, properties instance.Properties) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	classification, err := r.helper.NewClassification(userID, r.origin(), classificationName, properties)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	def, err := r.config.Types.TypeDefByName(classificationName)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(def, properties); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e.SetClassification(classification)
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityClassified(ctx, e)
	r.stampEntity(&e)
	return e, nil
}

// DeclassifyEntity implements repository.InstanceWrites.
func (r *Repository) DeclassifyEntity(ctx context.Context, userID, entityGUID, classificationName string) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if !e.RemoveClassification(classificationName) {
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.ClassificationError,
			"entity %q has no classification %q", entityGUID, classificationName)
	}
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityDeclassified(ctx, e)
	r.stampEntity(&e)
	return e, nil
}

// UpdateEntityClassification implements repository.InstanceWrites.
func (r *Repository) UpdateEntityClassification(ctx context.Context, userID, entityGUID, classificationName string, properties instance.Properties) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	existing, ok := e.Classification(classificationName)
	if !ok {
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.ClassificationError,
			"entity %q has no classification %q", entityGUID, classificationName)
	}
	def, err := r.config.Types.TypeDefByName(classificationName)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(def, properties); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated := existing.Copy()
	updated.Properties = properties.Copy()
	r.helper.Advance(&updated.AuditHeader, userID)
	e.SetClassification(updated)
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityReclassified(ctx, e)
	r.stampEntity(&e)
	return e, nil
}

// deleteAttachedRelationships soft-deletes the active relationships
// attached to a dying entity. Reference copies among them stay as
// they are; their homes cascade for themselves.
func (r *Repository) deleteAttachedRelationships(ctx context.Context, userID, entityGUID string) error {
	attached, err := r.config.Backend.RelationshipsForEntity(ctx, repository.RelationshipsForEntityArgs{
		EntityGUID: entityGUID,
	})
	if err != nil {
		return errors.Trace(err)
	}
	for _, rel := range attached {
		if !r.ownedHere(rel.AuditHeader) {
			continue
		}
		rel.StatusOnDelete = rel.Status
		rel.Status = instance.StatusDeleted
		r.helper.Advance(&rel.AuditHeader, userID)
		if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
			return errors.Trace(err)
		}
		r.events().RelationshipDeleted(ctx, rel)
	}
	return nil
}
