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

// ReIdentifyEntity implements repository.InstanceControl. Attached
// relationships are re-pointed at the new GUID in place; the move is
// storage maintenance, not a change to the relationships themselves.
func (r *Repository) ReIdentifyEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID, newEntityGUID string) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("newEntityGUID", newEntityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.entityForUpdate(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := matchesType(e.Type, typeDefGUID, typeDefName); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	lookup, err := r.config.Backend.LookupEntity(ctx, newEntityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if lookup.Kind != repository.EntityMissing {
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.EntityConflict,
			"GUID %q is already in use", newEntityGUID)
	}
	updated := e.Copy()
	updated.GUID = newEntityGUID
	r.helper.Advance(&updated.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, updated); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.repointRelationships(ctx, entityGUID, updated); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.config.Backend.RemoveEntity(ctx, entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityReIdentified(ctx, entityGUID, updated)
	r.stampEntity(&updated)
	return updated, nil
}

// ReTypeEntity implements repository.InstanceControl. The entity's
// properties must already satisfy the new type.
func (r *Repository) ReTypeEntity(ctx context.Context, userID, entityGUID string, currentType, newType typedef.Summary) (instance.EntityDetail, error) {
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
	if err := matchesType(e.Type, currentType.GUID, currentType.Name); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	newDef, err := r.validator.KnownType(newType.InstanceType(), typedef.CategoryEntity)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(newDef, e.Properties); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	original := typedef.Summary{
		GUID:     e.Type.GUID,
		Name:     e.Type.Name,
		Version:  e.Type.Version,
		Category: typedef.CategoryEntity,
	}
	e.Type = newDef.InstanceType()
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityReTyped(ctx, original, e)
	r.stampEntity(&e)
	return e, nil
}

// ReHomeEntity implements repository.InstanceControl. An instance can
// only be re-homed into the collection answering the call, typically
// to adopt a reference copy whose home repository has left the cohort
// for good.
func (r *Repository) ReHomeEntity(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID, newHomeMetadataCollectionID, newHomeMetadataCollectionName string) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.fullEntity(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := matchesType(e.Type, typeDefGUID, typeDefName); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validateReHome(e.AuditHeader, homeMetadataCollectionID, newHomeMetadataCollectionID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	originalHome := e.MetadataCollectionID
	r.adoptHeader(&e.AuditHeader, newHomeMetadataCollectionName)
	r.helper.Advance(&e.AuditHeader, userID)
	if err := r.config.Backend.PutEntity(ctx, e); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.events().EntityReHomed(ctx, originalHome, e)
	r.stampEntity(&e)
	return e, nil
}

// ReIdentifyRelationship implements repository.InstanceControl.
func (r *Repository) ReIdentifyRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID, newRelationshipGUID string) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("newRelationshipGUID", newRelationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel, err := r.relationshipForUpdate(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := matchesType(rel.Type, typeDefGUID, typeDefName); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	_, err = r.config.Backend.Relationship(ctx, newRelationshipGUID)
	if err == nil {
		return instance.Relationship{}, errors.Annotatef(coreerrors.RelationshipConflict,
			"GUID %q is already in use", newRelationshipGUID)
	}
	if !errors.Is(err, coreerrors.RelationshipNotKnown) {
		return instance.Relationship{}, errors.Trace(err)
	}
	updated := rel.Copy()
	updated.GUID = newRelationshipGUID
	r.helper.Advance(&updated.AuditHeader, userID)
	if err := r.config.Backend.PutRelationship(ctx, updated); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.config.Backend.RemoveRelationship(ctx, relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipReIdentified(ctx, relationshipGUID, updated)
	r.stampRelationship(&updated)
	return updated, nil
}

// ReTypeRelationship implements repository.InstanceControl.
func (r *Repository) ReTypeRelationship(ctx context.Context, userID, relationshipGUID string, currentType, newType typedef.Summary) (instance.Relationship, error) {
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
	if err := matchesType(rel.Type, currentType.GUID, currentType.Name); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	newDef, err := r.validator.KnownType(newType.InstanceType(), typedef.CategoryRelationship)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateProperties(newDef, rel.Properties); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	original := typedef.Summary{
		GUID:     rel.Type.GUID,
		Name:     rel.Type.Name,
		Version:  rel.Type.Version,
		Category: typedef.CategoryRelationship,
	}
	rel.Type = newDef.InstanceType()
	r.helper.Advance(&rel.AuditHeader, userID)
	if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipReTyped(ctx, original, rel)
	r.stampRelationship(&rel)
	return rel, nil
}

// ReHomeRelationship implements repository.InstanceControl.
func (r *Repository) ReHomeRelationship(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID, newHomeMetadataCollectionID, newHomeMetadataCollectionName string) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel, err := r.config.Backend.Relationship(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := matchesType(rel.Type, typeDefGUID, typeDefName); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validateReHome(rel.AuditHeader, homeMetadataCollectionID, newHomeMetadataCollectionID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canMaintain(ctx, userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	originalHome := rel.MetadataCollectionID
	r.adoptHeader(&rel.AuditHeader, newHomeMetadataCollectionName)
	r.helper.Advance(&rel.AuditHeader, userID)
	if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.events().RelationshipReHomed(ctx, originalHome, rel)
	r.stampRelationship(&rel)
	return rel, nil
}

// validateReHome checks that the caller has the instance's current
// home right and is adopting it into this collection.
func (r *Repository) validateReHome(h instance.AuditHeader, homeMetadataCollectionID, newHomeMetadataCollectionID string) error {
	if h.MetadataCollectionID != homeMetadataCollectionID {
		return errors.Annotatef(coreerrors.InvalidParameter,
			"home collection %q does not match the instance's home %q",
			homeMetadataCollectionID, h.MetadataCollectionID)
	}
	if h.MetadataCollectionID == r.config.MetadataCollectionID {
		return errors.Annotatef(coreerrors.InvalidParameter,
			"instance is already homed in this collection")
	}
	if newHomeMetadataCollectionID != r.config.MetadataCollectionID {
		return errors.Annotatef(coreerrors.InvalidParameter,
			"an instance can only be re-homed into the collection that stores it; new home %q is not %q",
			newHomeMetadataCollectionID, r.config.MetadataCollectionID)
	}
	return nil
}

// adoptHeader rewrites an instance's provenance so this collection is
// its home.
func (r *Repository) adoptHeader(h *instance.AuditHeader, newHomeName string) {
	h.MetadataCollectionID = r.config.MetadataCollectionID
	h.MetadataCollectionName = newHomeName
	if h.MetadataCollectionName == "" {
		h.MetadataCollectionName = r.config.MetadataCollectionName
	}
	h.Provenance = instance.ProvenanceLocalCohort
	h.ReplicatedBy = ""
}

// repointRelationships rewrites the end proxies of every relationship
// attached to a re-identified entity. The relationships keep their
// versions; only the identity within the proxy changes.
func (r *Repository) repointRelationships(ctx context.Context, oldGUID string, updated instance.EntityDetail) error {
	proxy, err := r.helper.NewEntityProxy(updated)
	if err != nil {
		return errors.Trace(err)
	}
	attached, err := r.config.Backend.RelationshipsForEntity(ctx, repository.RelationshipsForEntityArgs{
		EntityGUID:   oldGUID,
		StatusFilter: instance.AllStatuses(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	for _, rel := range attached {
		if rel.EntityOne != nil && rel.EntityOne.GUID == oldGUID {
			p := proxy.Copy()
			rel.EntityOne = &p
		}
		if rel.EntityTwo != nil && rel.EntityTwo.GUID == oldGUID {
			p := proxy.Copy()
			rel.EntityTwo = &p
		}
		if err := r.config.Backend.PutRelationship(ctx, rel); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
