// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package local

import (
	"context"
	"time"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
	"github.com/juju/metafed/repository"
)

// IsEntityKnown implements repository.InstanceReads.
func (r *Repository) IsEntityKnown(ctx context.Context, userID, entityGUID string) (*instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return nil, errors.Trace(err)
	}
	lookup, err := r.config.Backend.LookupEntity(ctx, entityGUID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if lookup.Kind != repository.EntityFull {
		return nil, nil
	}
	e := lookup.Entity
	if err := r.canRead(ctx, userID, e.Header); err != nil {
		return nil, errors.Trace(err)
	}
	r.stampEntity(&e)
	return &e, nil
}

// GetEntitySummary implements repository.InstanceReads.
func (r *Repository) GetEntitySummary(ctx context.Context, userID, entityGUID string) (instance.EntitySummary, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntitySummary{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntitySummary{}, errors.Trace(err)
	}
	lookup, err := r.config.Backend.LookupEntity(ctx, entityGUID)
	if err != nil {
		return instance.EntitySummary{}, errors.Trace(err)
	}
	var summary instance.EntitySummary
	switch lookup.Kind {
	case repository.EntityFull:
		summary = lookup.Entity.EntitySummary
	case repository.EntityProxyOnly:
		summary = instance.EntitySummary{Header: lookup.Proxy.Header}
	default:
		return instance.EntitySummary{}, errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", entityGUID)
	}
	if err := r.canRead(ctx, userID, summary.Header); err != nil {
		return instance.EntitySummary{}, errors.Trace(err)
	}
	r.stampSummary(&summary)
	return summary, nil
}

// GetEntityDetail implements repository.InstanceReads.
func (r *Repository) GetEntityDetail(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error) {
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
	if err := r.canRead(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.stampEntity(&e)
	return e, nil
}

// GetEntityDetailAsOfTime implements repository.InstanceReads.
func (r *Repository) GetEntityDetailAsOfTime(ctx context.Context, userID, entityGUID string, asOfTime time.Time) (instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", entityGUID); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	e, err := r.config.Backend.EntityAsOf(ctx, entityGUID, asOfTime)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if err := r.canRead(ctx, userID, e.Header); err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	r.stampEntity(&e)
	return e, nil
}

// FindEntitiesByProperty implements repository.InstanceReads.
func (r *Repository) FindEntitiesByProperty(ctx context.Context, userID string, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	if err := r.validateEntityFind(userID, args); err != nil {
		return nil, errors.Trace(err)
	}
	entities, err := r.config.Backend.FindEntities(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.readableEntities(ctx, userID, entities)
}

// FindEntitiesByClassification implements repository.InstanceReads.
func (r *Repository) FindEntitiesByClassification(ctx context.Context, userID string, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	if err := r.validateEntityFind(userID, args); err != nil {
		return nil, errors.Trace(err)
	}
	if args.ClassificationName == "" {
		return nil, errors.Annotatef(coreerrors.InvalidParameter, "classificationName is empty")
	}
	def, err := r.config.Types.TypeDefByName(args.ClassificationName)
	if err != nil {
		return nil, errors.Annotatef(coreerrors.ClassificationError, "classification %q is not defined", args.ClassificationName)
	}
	if def.Category != typedef.CategoryClassification {
		return nil, errors.Annotatef(coreerrors.ClassificationError, "%q is a %s type, not a classification", def.Name, def.Category)
	}
	entities, err := r.config.Backend.FindEntities(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.readableEntities(ctx, userID, entities)
}

// FindEntitiesByPropertyValue implements repository.InstanceReads.
func (r *Repository) FindEntitiesByPropertyValue(ctx context.Context, userID string, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	if err := r.validateEntityFind(userID, args); err != nil {
		return nil, errors.Trace(err)
	}
	if args.SearchString == "" {
		return nil, errors.Annotatef(coreerrors.InvalidParameter, "searchString is empty")
	}
	entities, err := r.config.Backend.FindEntities(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.readableEntities(ctx, userID, entities)
}

// GetRelationshipsForEntity implements repository.InstanceReads.
func (r *Repository) GetRelationshipsForEntity(ctx context.Context, userID string, args repository.RelationshipsForEntityArgs) ([]instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", args.EntityGUID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.validator.ValidatePaging(args.Paging); err != nil {
		return nil, errors.Trace(err)
	}
	lookup, err := r.config.Backend.LookupEntity(ctx, args.EntityGUID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if lookup.Kind == repository.EntityMissing {
		return nil, errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", args.EntityGUID)
	}
	relationships, err := r.config.Backend.RelationshipsForEntity(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.readableRelationships(ctx, userID, relationships)
}

// IsRelationshipKnown implements repository.InstanceReads.
func (r *Repository) IsRelationshipKnown(ctx context.Context, userID, relationshipGUID string) (*instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return nil, errors.Trace(err)
	}
	rel, err := r.config.Backend.Relationship(ctx, relationshipGUID)
	if errors.Is(err, coreerrors.RelationshipNotKnown) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.canRead(ctx, userID, rel.Header); err != nil {
		return nil, errors.Trace(err)
	}
	r.stampRelationship(&rel)
	return &rel, nil
}

// GetRelationship implements repository.InstanceReads.
func (r *Repository) GetRelationship(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error) {
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
	if err := r.canRead(ctx, userID, rel.Header); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.stampRelationship(&rel)
	return rel, nil
}

// GetRelationshipAsOfTime implements repository.InstanceReads.
func (r *Repository) GetRelationshipAsOfTime(ctx context.Context, userID, relationshipGUID string, asOfTime time.Time) (instance.Relationship, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("relationshipGUID", relationshipGUID); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	rel, err := r.config.Backend.RelationshipAsOf(ctx, relationshipGUID, asOfTime)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if err := r.canRead(ctx, userID, rel.Header); err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	r.stampRelationship(&rel)
	return rel, nil
}

// FindRelationshipsByProperty implements repository.InstanceReads.
func (r *Repository) FindRelationshipsByProperty(ctx context.Context, userID string, args repository.FindRelationshipsArgs) ([]instance.Relationship, error) {
	if err := r.validateRelationshipFind(userID, args); err != nil {
		return nil, errors.Trace(err)
	}
	relationships, err := r.config.Backend.FindRelationships(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.readableRelationships(ctx, userID, relationships)
}

// FindRelationshipsByPropertyValue implements repository.InstanceReads.
func (r *Repository) FindRelationshipsByPropertyValue(ctx context.Context, userID string, args repository.FindRelationshipsArgs) ([]instance.Relationship, error) {
	if err := r.validateRelationshipFind(userID, args); err != nil {
		return nil, errors.Trace(err)
	}
	if args.SearchString == "" {
		return nil, errors.Annotatef(coreerrors.InvalidParameter, "searchString is empty")
	}
	relationships, err := r.config.Backend.FindRelationships(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.readableRelationships(ctx, userID, relationships)
}

// GetLinkingEntities implements repository.InstanceReads.
func (r *Repository) GetLinkingEntities(ctx context.Context, userID, startEntityGUID, endEntityGUID string, statusFilter []instance.Status) (instance.Graph, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("startEntityGUID", startEntityGUID); err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("endEntityGUID", endEntityGUID); err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	graph, err := r.config.Backend.LinkingEntities(ctx, startEntityGUID, endEntityGUID, statusFilter)
	if err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	return r.readableGraph(ctx, userID, graph)
}

// GetEntityNeighborhood implements repository.InstanceReads.
func (r *Repository) GetEntityNeighborhood(ctx context.Context, userID string, args repository.NeighborhoodArgs) (instance.Graph, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", args.EntityGUID); err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	graph, err := r.config.Backend.Neighborhood(ctx, args)
	if err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	return r.readableGraph(ctx, userID, graph)
}

// GetRelatedEntities implements repository.InstanceReads.
func (r *Repository) GetRelatedEntities(ctx context.Context, userID string, args repository.RelatedEntitiesArgs) ([]instance.EntityDetail, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("entityGUID", args.StartEntityGUID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.validator.ValidatePaging(args.Paging); err != nil {
		return nil, errors.Trace(err)
	}
	entities, err := r.config.Backend.RelatedEntities(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.readableEntities(ctx, userID, entities)
}

func (r *Repository) validateEntityFind(userID string, args repository.FindEntitiesArgs) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidatePaging(args.Paging); err != nil {
		return errors.Trace(err)
	}
	if args.TypeGUID != "" && !r.config.Types.IsActive(args.TypeGUID) {
		return errors.Annotatef(coreerrors.TypeDefNotKnown, "type %q", args.TypeGUID)
	}
	return nil
}

func (r *Repository) validateRelationshipFind(userID string, args repository.FindRelationshipsArgs) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidatePaging(args.Paging); err != nil {
		return errors.Trace(err)
	}
	if args.TypeGUID != "" && !r.config.Types.IsActive(args.TypeGUID) {
		return errors.Annotatef(coreerrors.TypeDefNotKnown, "type %q", args.TypeGUID)
	}
	return nil
}

// readableEntities drops search results the caller may not see.
// Authorization failures hide the instance rather than failing the
// search.
func (r *Repository) readableEntities(ctx context.Context, userID string, entities []instance.EntityDetail) ([]instance.EntityDetail, error) {
	var visible []instance.EntityDetail
	for _, e := range entities {
		err := r.canRead(ctx, userID, e.Header)
		if errors.Is(err, coreerrors.UserNotAuthorized) {
			continue
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
		r.stampEntity(&e)
		visible = append(visible, e)
	}
	return visible, nil
}

func (r *Repository) readableRelationships(ctx context.Context, userID string, relationships []instance.Relationship) ([]instance.Relationship, error) {
	var visible []instance.Relationship
	for _, rel := range relationships {
		err := r.canRead(ctx, userID, rel.Header)
		if errors.Is(err, coreerrors.UserNotAuthorized) {
			continue
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
		r.stampRelationship(&rel)
		visible = append(visible, rel)
	}
	return visible, nil
}

func (r *Repository) readableGraph(ctx context.Context, userID string, graph instance.Graph) (instance.Graph, error) {
	entities, err := r.readableEntities(ctx, userID, graph.Entities)
	if err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	relationships, err := r.readableRelationships(ctx, userID, graph.Relationships)
	if err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	return instance.Graph{Entities: entities, Relationships: relationships}, nil
}
