// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package enterprise

import (
	"context"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
	"github.com/juju/metafed/repository"
)

// create runs a new-instance request against each member in order
// until one accepts it. Members that do not support instance creation
// are skipped; any other failure is the caller's answer.
func create[T any](ctx context.Context, f *Federator, op string, call func(context.Context, connection) (T, error)) (T, error) {
	var zero T
	conns, err := f.snapshot()
	if err != nil {
		return zero, errors.Trace(err)
	}
	for _, conn := range conns {
		if err := ctx.Err(); err != nil {
			return zero, errors.Trace(err)
		}
		result, err := call(ctx, conn)
		if errors.Is(err, coreerrors.FunctionNotSupported) {
			logger.Infof("%s: %q does not accept new instances: %v", op, conn.collectionID, err)
			f.config.Metrics.connectorSkipped(conn.collectionID, "unsupported")
			continue
		}
		if err != nil {
			return zero, errors.Trace(err)
		}
		return result, nil
	}
	return zero, errors.Annotatef(coreerrors.FunctionNotSupported,
		"no cohort member accepts new instances")
}

// entityHome locates the entity across the cohort and resolves the
// member that owns it.
func (f *Federator) entityHome(ctx context.Context, op, userID, entityGUID string) (connection, error) {
	conns, err := f.snapshot()
	if err != nil {
		return connection{}, errors.Trace(err)
	}
	winner, err := f.bestEntity(ctx, conns, op, userID, entityGUID)
	if err != nil {
		return connection{}, errors.Trace(err)
	}
	home, err := homeConnection(conns, winner.item.Header)
	return home, errors.Trace(err)
}

func (f *Federator) relationshipHome(ctx context.Context, op, userID, relationshipGUID string) (connection, error) {
	conns, err := f.snapshot()
	if err != nil {
		return connection{}, errors.Trace(err)
	}
	winner, err := f.bestRelationship(ctx, conns, op, userID, relationshipGUID)
	if err != nil {
		return connection{}, errors.Trace(err)
	}
	home, err := homeConnection(conns, winner.item.Header)
	return home, errors.Trace(err)
}

// adopter resolves the member a re-home hands ownership to.
func (f *Federator) adopter(newHomeMetadataCollectionID string) (connection, error) {
	conns, err := f.snapshot()
	if err != nil {
		return connection{}, errors.Trace(err)
	}
	for _, conn := range conns {
		if conn.collectionID == newHomeMetadataCollectionID {
			return conn, nil
		}
	}
	return connection{}, errors.Annotatef(coreerrors.NoHomeForInstance,
		"no registered repository for collection %q", newHomeMetadataCollectionID)
}

// AddEntity implements repository.InstanceWrites.
func (f *Federator) AddEntity(ctx context.Context, userID string, args repository.AddEntityArgs) (instance.EntityDetail, error) {
	return create(ctx, f, "addEntity", func(ctx context.Context, conn connection) (instance.EntityDetail, error) {
		return conn.collection.AddEntity(ctx, userID, args)
	})
}

// AddExternalEntity implements repository.InstanceWrites.
func (f *Federator) AddExternalEntity(ctx context.Context, userID string, args repository.AddExternalEntityArgs) (instance.EntityDetail, error) {
	return create(ctx, f, "addExternalEntity", func(ctx context.Context, conn connection) (instance.EntityDetail, error) {
		return conn.collection.AddExternalEntity(ctx, userID, args)
	})
}

// AddEntityProxy implements repository.InstanceWrites. Proxies are
// local bookkeeping, so the local member stores them.
func (f *Federator) AddEntityProxy(ctx context.Context, userID string, proxy instance.EntityProxy) error {
	local, err := f.localConnection()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(local.collection.AddEntityProxy(ctx, userID, proxy))
}

// UpdateEntityStatus implements repository.InstanceWrites.
func (f *Federator) UpdateEntityStatus(ctx context.Context, userID, entityGUID string, status instance.Status) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "updateEntityStatus", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated, err := home.collection.UpdateEntityStatus(ctx, userID, entityGUID, status)
	return updated, errors.Trace(err)
}

// UpdateEntityProperties implements repository.InstanceWrites.
func (f *Federator) UpdateEntityProperties(ctx context.Context, userID, entityGUID string, properties instance.Properties) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "updateEntityProperties", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated, err := home.collection.UpdateEntityProperties(ctx, userID, entityGUID, properties)
	return updated, errors.Trace(err)
}

// UndoEntityUpdate implements repository.InstanceWrites.
func (f *Federator) UndoEntityUpdate(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "undoEntityUpdate", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	restored, err := home.collection.UndoEntityUpdate(ctx, userID, entityGUID)
	return restored, errors.Trace(err)
}

// DeleteEntity implements repository.InstanceWrites.
func (f *Federator) DeleteEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID string) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "deleteEntity", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	deleted, err := home.collection.DeleteEntity(ctx, userID, typeDefGUID, typeDefName, entityGUID)
	return deleted, errors.Trace(err)
}

// PurgeEntity implements repository.InstanceWrites.
func (f *Federator) PurgeEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID string) error {
	home, err := f.entityHome(ctx, "purgeEntity", userID, entityGUID)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(home.collection.PurgeEntity(ctx, userID, typeDefGUID, typeDefName, entityGUID))
}

// RestoreEntity implements repository.InstanceWrites.
func (f *Federator) RestoreEntity(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "restoreEntity", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	restored, err := home.collection.RestoreEntity(ctx, userID, entityGUID)
	return restored, errors.Trace(err)
}

// ClassifyEntity implements repository.InstanceWrites.
func (f *Federator) ClassifyEntity(ctx context.Context, userID, entityGUID, classificationName string, properties instance.Properties) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "classifyEntity", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated, err := home.collection.ClassifyEntity(ctx, userID, entityGUID, classificationName, properties)
	return updated, errors.Trace(err)
}

// DeclassifyEntity implements repository.InstanceWrites.
func (f *Federator) DeclassifyEntity(ctx context.Context, userID, entityGUID, classificationName string) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "declassifyEntity", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated, err := home.collection.DeclassifyEntity(ctx, userID, entityGUID, classificationName)
	return updated, errors.Trace(err)
}

// UpdateEntityClassification implements repository.InstanceWrites.
func (f *Federator) UpdateEntityClassification(ctx context.Context, userID, entityGUID, classificationName string, properties instance.Properties) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "updateEntityClassification", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated, err := home.collection.UpdateEntityClassification(ctx, userID, entityGUID, classificationName, properties)
	return updated, errors.Trace(err)
}

// AddRelationship implements repository.InstanceWrites.
func (f *Federator) AddRelationship(ctx context.Context, userID string, args repository.AddRelationshipArgs) (instance.Relationship, error) {
	return create(ctx, f, "addRelationship", func(ctx context.Context, conn connection) (instance.Relationship, error) {
		return conn.collection.AddRelationship(ctx, userID, args)
	})
}

// AddExternalRelationship implements repository.InstanceWrites.
func (f *Federator) AddExternalRelationship(ctx context.Context, userID string, args repository.AddExternalRelationshipArgs) (instance.Relationship, error) {
	return create(ctx, f, "addExternalRelationship", func(ctx context.Context, conn connection) (instance.Relationship, error) {
		return conn.collection.AddExternalRelationship(ctx, userID, args)
	})
}

// UpdateRelationshipStatus implements repository.InstanceWrites.
func (f *Federator) UpdateRelationshipStatus(ctx context.Context, userID, relationshipGUID string, status instance.Status) (instance.Relationship, error) {
	home, err := f.relationshipHome(ctx, "updateRelationshipStatus", userID, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	updated, err := home.collection.UpdateRelationshipStatus(ctx, userID, relationshipGUID, status)
	return updated, errors.Trace(err)
}

// UpdateRelationshipProperties implements repository.InstanceWrites.
func (f *Federator) UpdateRelationshipProperties(ctx context.Context, userID, relationshipGUID string, properties instance.Properties) (instance.Relationship, error) {
	home, err := f.relationshipHome(ctx, "updateRelationshipProperties", userID, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	updated, err := home.collection.UpdateRelationshipProperties(ctx, userID, relationshipGUID, properties)
	return updated, errors.Trace(err)
}

// UndoRelationshipUpdate implements repository.InstanceWrites.
func (f *Federator) UndoRelationshipUpdate(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error) {
	home, err := f.relationshipHome(ctx, "undoRelationshipUpdate", userID, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	restored, err := home.collection.UndoRelationshipUpdate(ctx, userID, relationshipGUID)
	return restored, errors.Trace(err)
}

// DeleteRelationship implements repository.InstanceWrites.
func (f *Federator) DeleteRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID string) (instance.Relationship, error) {
	home, err := f.relationshipHome(ctx, "deleteRelationship", userID, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	deleted, err := home.collection.DeleteRelationship(ctx, userID, typeDefGUID, typeDefName, relationshipGUID)
	return deleted, errors.Trace(err)
}

// PurgeRelationship implements repository.InstanceWrites.
func (f *Federator) PurgeRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID string) error {
	home, err := f.relationshipHome(ctx, "purgeRelationship", userID, relationshipGUID)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(home.collection.PurgeRelationship(ctx, userID, typeDefGUID, typeDefName, relationshipGUID))
}

// RestoreRelationship implements repository.InstanceWrites.
func (f *Federator) RestoreRelationship(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error) {
	home, err := f.relationshipHome(ctx, "restoreRelationship", userID, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	restored, err := home.collection.RestoreRelationship(ctx, userID, relationshipGUID)
	return restored, errors.Trace(err)
}

// ReIdentifyEntity implements repository.InstanceControl.
func (f *Federator) ReIdentifyEntity(ctx context.Context, userID, typeDefGUID, typeDefName, entityGUID, newEntityGUID string) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "reIdentifyEntity", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated, err := home.collection.ReIdentifyEntity(ctx, userID, typeDefGUID, typeDefName, entityGUID, newEntityGUID)
	return updated, errors.Trace(err)
}

// ReTypeEntity implements repository.InstanceControl.
func (f *Federator) ReTypeEntity(ctx context.Context, userID, entityGUID string, currentType, newType typedef.Summary) (instance.EntityDetail, error) {
	home, err := f.entityHome(ctx, "reTypeEntity", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated, err := home.collection.ReTypeEntity(ctx, userID, entityGUID, currentType, newType)
	return updated, errors.Trace(err)
}

// ReHomeEntity implements repository.InstanceControl. Ownership is
// adopted by the new home, so the request routes there.
func (f *Federator) ReHomeEntity(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID, newHomeMetadataCollectionID, newHomeMetadataCollectionName string) (instance.EntityDetail, error) {
	conn, err := f.adopter(newHomeMetadataCollectionID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	updated, err := conn.collection.ReHomeEntity(ctx, userID, entityGUID, typeDefGUID, typeDefName,
		homeMetadataCollectionID, newHomeMetadataCollectionID, newHomeMetadataCollectionName)
	return updated, errors.Trace(err)
}

// ReIdentifyRelationship implements repository.InstanceControl.
func (f *Federator) ReIdentifyRelationship(ctx context.Context, userID, typeDefGUID, typeDefName, relationshipGUID, newRelationshipGUID string) (instance.Relationship, error) {
	home, err := f.relationshipHome(ctx, "reIdentifyRelationship", userID, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	updated, err := home.collection.ReIdentifyRelationship(ctx, userID, typeDefGUID, typeDefName, relationshipGUID, newRelationshipGUID)
	return updated, errors.Trace(err)
}

// ReTypeRelationship implements repository.InstanceControl.
func (f *Federator) ReTypeRelationship(ctx context.Context, userID, relationshipGUID string, currentType, newType typedef.Summary) (instance.Relationship, error) {
	home, err := f.relationshipHome(ctx, "reTypeRelationship", userID, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	updated, err := home.collection.ReTypeRelationship(ctx, userID, relationshipGUID, currentType, newType)
	return updated, errors.Trace(err)
}

// ReHomeRelationship implements repository.InstanceControl.
func (f *Federator) ReHomeRelationship(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID, newHomeMetadataCollectionID, newHomeMetadataCollectionName string) (instance.Relationship, error) {
	conn, err := f.adopter(newHomeMetadataCollectionID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	updated, err := conn.collection.ReHomeRelationship(ctx, userID, relationshipGUID, typeDefGUID, typeDefName,
		homeMetadataCollectionID, newHomeMetadataCollectionID, newHomeMetadataCollectionName)
	return updated, errors.Trace(err)
}

// Reference-copy maintenance always lands on the local member; the
// cohort layer owns the copies it saves there.

// SaveEntityReferenceCopy implements repository.ReferenceCopyOps.
func (f *Federator) SaveEntityReferenceCopy(ctx context.Context, userID string, entity instance.EntityDetail) error {
	local, err := f.localConnection()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(local.collection.SaveEntityReferenceCopy(ctx, userID, entity))
}

// PurgeEntityReferenceCopy implements repository.ReferenceCopyOps.
func (f *Federator) PurgeEntityReferenceCopy(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error {
	local, err := f.localConnection()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(local.collection.PurgeEntityReferenceCopy(ctx, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID))
}

// RefreshEntityReferenceCopy implements repository.ReferenceCopyOps.
func (f *Federator) RefreshEntityReferenceCopy(ctx context.Context, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error {
	local, err := f.localConnection()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(local.collection.RefreshEntityReferenceCopy(ctx, userID, entityGUID, typeDefGUID, typeDefName, homeMetadataCollectionID))
}

// SaveRelationshipReferenceCopy implements repository.ReferenceCopyOps.
func (f *Federator) SaveRelationshipReferenceCopy(ctx context.Context, userID string, relationship instance.Relationship) error {
	local, err := f.localConnection()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(local.collection.SaveRelationshipReferenceCopy(ctx, userID, relationship))
}

// PurgeRelationshipReferenceCopy implements repository.ReferenceCopyOps.
func (f *Federator) PurgeRelationshipReferenceCopy(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error {
	local, err := f.localConnection()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(local.collection.PurgeRelationshipReferenceCopy(ctx, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID))
}

// RefreshRelationshipReferenceCopy implements repository.ReferenceCopyOps.
func (f *Federator) RefreshRelationshipReferenceCopy(ctx context.Context, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID string) error {
	local, err := f.localConnection()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(local.collection.RefreshRelationshipReferenceCopy(ctx, userID, relationshipGUID, typeDefGUID, typeDefName, homeMetadataCollectionID))
}

// SaveInstanceReferenceCopies implements repository.ReferenceCopyOps.
func (f *Federator) SaveInstanceReferenceCopies(ctx context.Context, userID string, graph instance.Graph) error {
	local, err := f.localConnection()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(local.collection.SaveInstanceReferenceCopies(ctx, userID, graph))
}
