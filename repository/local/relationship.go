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

// AddRelationship implements repository.InstanceWrites. Both ends
// must already be stored here, at least as proxies.
func (r *Repository) AddRelationship(ctx context.Context, userID string, args repository.AddRelationshipArgs) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canCreate(ctx, userID, args.TypeName); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	endOne, err := r.endProxy(ctx, args.EntityOneGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	endTwo, err := r.endProxy(ctx, args.EntityTwoGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel, err := r.helper.NewRelationship(userID, r.origin(), args, endOne, endTwo)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	def, err := r.validator.KnownType(rel.Type, typedef.CategoryRelationship)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(def, rel.Properties); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipCreated(ctx, rel)
	r.stampRelationship(&rel)
	return rel, nil
}

// AddExternalRelationship implements repository.InstanceWrites.
func (r *Repository) AddExternalRelationship(ctx context.Context, userID string, args repository.AddExternalRelationshipArgs) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("externalSourceGUID", args.ExternalSourceGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canCreate(ctx, userID, args.TypeName); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	endOne, err := r.endProxy(ctx, args.EntityOneGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	endTwo, err := r.endProxy(ctx, args.EntityTwoGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	origin := r.externalOrigin(args.ExternalSourceGUID, args.ExternalSourceName)
	rel, err := r.helper.NewRelationship(userID, origin, args.AddRelationshipArgs, endOne, endTwo)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	def, err := r.validator.KnownType(rel.Type, typedef.CategoryRelationship)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(def, rel.Properties); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipCreated(ctx, rel)
	return rel, nil
}

// UpdateRelationshipStatus implements repository.InstanceWrites.
func (r *Repository) UpdateRelationshipStatus(ctx context.Context, userID, relationshipGUID string, status instance.Status) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if status == instance.StatusDeleted {
		return instance.Relationship{}, errors.Annotatef(coreerrors.StatusNotSupported,
			"deletion goes through DeleteRelationship")
	}
	rel, err := r.relationshipForUpdate(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	def, err := r.validator.KnownType(rel.Type, typedef.CategoryRelationship)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateStatus(def, status); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, rel.Header); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	original := rel.Copy()
	rel.Status = status
	r.helper.Advance(&rel.AuditHeader, userID)
	if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipUpdated(ctx, original, rel)
	r.stampRelationship(&rel)
	return rel, nil
}

// UpdateRelationshipProperties implements repository.InstanceWrites.
func (r *Repository) UpdateRelationshipProperties(ctx context.Context, userID, relationshipGUID string, properties instance.Properties) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel, err := r.relationshipForUpdate(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	def, err := r.validator.KnownType(rel.Type, typedef.CategoryRelationship)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(def, properties); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, rel.Header); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	original := rel.Copy()
	rel.Properties = properties.Copy()
	r.helper.Advance(&rel.AuditHeader, userID)
	if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipUpdated(ctx, original, rel)
	r.stampRelationship(&rel)
	return rel, nil
}

// UndoRelationshipUpdate implements repository.InstanceWrites.
func (r *Repository) UndoRelationshipUpdate(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	current, err := r.relationshipForUpdate(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canUpdate(ctx, userID, current.Header); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	previous, err := r.config.Backend.PreviousRelationship(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	restored := previous.Copy()
	restored.Version = current.Version
	r.helper.Advance(&restored.AuditHeader, userID)
	if err := r.config.Backend.PutRelationship(ctx, restored); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipUndone(ctx, restored)
	r.stampRelationship(&restored)
	return restored, nil
}

// DeleteRelationship implements repository.InstanceWrites.
func (r *Repository) DeleteRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID string) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel, err := r.relationshipForUpdate(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := matchesType(rel.Type, typeDefGUID, typeDefName); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if rel.Status == instance.StatusDeleted {
		return instance.Relationship{}, errors.Annotatef(coreerrors.InvalidParameter,
			"relationship %q is already deleted", relationshipGUID)
	}
	if err := r.canDelete(ctx, userID, rel.Header); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel.StatusOnDelete = rel.Status
	rel.Status = instance.StatusDeleted
	r.helper.Advance(&rel.AuditHeader, userID)
	if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipDeleted(ctx, rel)
	r.stampRelationship(&rel)
	return rel, nil
}

// PurgeRelationship implements repository.InstanceWrites.
func (r *Repository) PurgeRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID string) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return errors.Trace(err)
	}
	rel, err := r.config.Backend.Relationship(ctx, relationshipGUID)
	if err != nil {
		return errors.Trace(err)
	}
	if err := matchesType(rel.Type, typeDefGUID, typeDefName); err != nil {
		return errors.Trace(err)
	}
	if !r.ownedHere(rel.AuditHeader) {
		return errors.Annotatef(coreerrors.InvalidParameter,
			"relationship %q is homed in collection %q; changes must go to its home",
			relationshipGUID, rel.MetadataCollectionID)
	}
	if rel.Status != instance.StatusDeleted {
		return errors.Annotatef(coreerrors.RelationshipNotDeleted,
			"relationship %q must be deleted before it can be purged", relationshipGUID)
	}
	if err := r.canDelete(ctx, userID, rel.Header); err != nil {
		return errors.Trace(err)
	}
	if err := r.config.Backend.RemoveRelationship(ctx, relationshipGUID); err != nil {
		return errors.Trace(err)
	}
	r.events().RelationshipPurged(ctx, typeDefGUID, typeDefName, relationshipGUID)
	return nil
}

// RestoreRelationship implements repository.InstanceWrites.
func (r *Repository) RestoreRelationship(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel, err := r.relationshipForUpdate(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if rel.Status != instance.StatusDeleted {
		return instance.Relationship{}, errors.Annotatef(coreerrors.RelationshipNotDeleted,
			"relationship %q is not deleted", relationshipGUID)
	}
	if err := r.canDelete(ctx, userID, rel.Header); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel.Status = rel.StatusOnDelete
	if rel.Status == instance.StatusUnknown {
		rel.Status = instance.StatusActive
	}
	rel.StatusOnDelete = instance.StatusUnknown
	r.helper.Advance(&rel.AuditHeader, userID)
	if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipRestored(ctx, rel)
	r.stampRelationship(&rel)
	return rel, nil
}

// endProxy resolves a relationship end to a proxy, from either the
// full entity or a stored proxy.
func (r *Repository) endProxy(ctx context.Context, entityGUID string) (instance.EntityProxy, error) {
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityProxy{}, errors.Trace(err)
	}
	lookup, err := r.config.Backend.LookupEntity(ctx, entityGUID)
	if err != nil {
		return instance.EntityProxy{}, errors.Trace(err)
	}
	switch lookup.Kind {
	case repository.EntityFull:
		proxy, err := r.helper.NewEntityProxy(lookup.Entity)
		return proxy, errors.Trace(err)
	case repository.EntityProxyOnly:
		return lookup.Proxy, nil
	}
	return instance.EntityProxy{}, errors.Annotatef(coreerrors.EntityNotKnown,
		"relationship end %q", entityGUID)
}
