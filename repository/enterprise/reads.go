// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package enterprise

import (
	"context"
	"time"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/repository"
)

// IsEntityKnown implements repository.InstanceReads. The entity is
// known to the federation when any member knows it.
func (f *Federator) IsEntityKnown(ctx context.Context, userID, entityGUID string) (*instance.EntityDetail, error) {
	conns, err := f.snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, "isEntityKnown",
		func(ctx context.Context, conn connection) (instance.EntityDetail, error) {
			e, err := conn.collection.IsEntityKnown(ctx, userID, entityGUID)
			if err != nil {
				return instance.EntityDetail{}, err
			}
			if e == nil {
				return instance.EntityDetail{}, errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", entityGUID)
			}
			return *e, nil
		})
	if errors.Is(err, coreerrors.EntityNotKnown) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	winner := best(cands, entityHeader)
	f.learnEntity(ctx, userID, winner)
	return &winner.item, nil
}

// GetEntitySummary implements repository.InstanceReads.
func (f *Federator) GetEntitySummary(ctx context.Context, userID, entityGUID string) (instance.EntitySummary, error) {
	conns, err := f.snapshot()
	if err != nil {
		return instance.EntitySummary{}, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, "getEntitySummary",
		func(ctx context.Context, conn connection) (instance.EntitySummary, error) {
			return conn.collection.GetEntitySummary(ctx, userID, entityGUID)
		})
	if err != nil {
		return instance.EntitySummary{}, errors.Trace(err)
	}
	winner := best(cands, summaryHeader)
	f.learnEntitySummary(ctx, userID, winner)
	return winner.item, nil
}

// GetEntityDetail implements repository.InstanceReads.
func (f *Federator) GetEntityDetail(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error) {
	conns, err := f.snapshot()
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	winner, err := f.bestEntity(ctx, conns, "getEntityDetail", userID, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	f.learnEntity(ctx, userID, winner)
	return winner.item, nil
}

// GetEntityDetailAsOfTime implements repository.InstanceReads.
func (f *Federator) GetEntityDetailAsOfTime(ctx context.Context, userID, entityGUID string, asOfTime time.Time) (instance.EntityDetail, error) {
	conns, err := f.snapshot()
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, "getEntityDetailAsOfTime",
		func(ctx context.Context, conn connection) (instance.EntityDetail, error) {
			return conn.collection.GetEntityDetailAsOfTime(ctx, userID, entityGUID, asOfTime)
		})
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	return best(cands, entityHeader).item, nil
}

// FindEntitiesByProperty implements repository.InstanceReads.
func (f *Federator) FindEntitiesByProperty(ctx context.Context, userID string, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	return f.findEntities(ctx, "findEntitiesByProperty", userID, args,
		func(ctx context.Context, conn connection, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
			return conn.collection.FindEntitiesByProperty(ctx, userID, args)
		})
}

// FindEntitiesByClassification implements repository.InstanceReads.
func (f *Federator) FindEntitiesByClassification(ctx context.Context, userID string, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	return f.findEntities(ctx, "findEntitiesByClassification", userID, args,
		func(ctx context.Context, conn connection, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
			return conn.collection.FindEntitiesByClassification(ctx, userID, args)
		})
}

// FindEntitiesByPropertyValue implements repository.InstanceReads.
func (f *Federator) FindEntitiesByPropertyValue(ctx context.Context, userID string, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	return f.findEntities(ctx, "findEntitiesByPropertyValue", userID, args,
		func(ctx context.Context, conn connection, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
			return conn.collection.FindEntitiesByPropertyValue(ctx, userID, args)
		})
}

// findEntities fans an entity search out with a widened page, merges
// the members' contributions and re-pages to the caller's window.
func (f *Federator) findEntities(ctx context.Context, op, userID string, args repository.FindEntitiesArgs, call func(context.Context, connection, repository.FindEntitiesArgs) ([]instance.EntityDetail, error)) ([]instance.EntityDetail, error) {
	conns, err := f.snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	paging := args.Paging
	args.Paging = widen(paging)
	lists, err := collect(ctx, f, conns, op,
		func(ctx context.Context, conn connection) ([]instance.EntityDetail, error) {
			return call(ctx, conn, args)
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	merged := rePage(merge(lists, entityHeader), entityHeader, entityProperties, paging)
	f.learnEntities(ctx, userID, merged)
	return items(merged), nil
}

// GetRelationshipsForEntity implements repository.InstanceReads.
func (f *Federator) GetRelationshipsForEntity(ctx context.Context, userID string, args repository.RelationshipsForEntityArgs) ([]instance.Relationship, error) {
	conns, err := f.snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	paging := args.Paging
	args.Paging = widen(paging)
	lists, err := collect(ctx, f, conns, "getRelationshipsForEntity",
		func(ctx context.Context, conn connection) ([]instance.Relationship, error) {
			return conn.collection.GetRelationshipsForEntity(ctx, userID, args)
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	merged := rePage(merge(lists, relationshipHeader), relationshipHeader, relationshipProperties, paging)
	f.learnRelationships(ctx, userID, merged)
	return items(merged), nil
}

// IsRelationshipKnown implements repository.InstanceReads.
func (f *Federator) IsRelationshipKnown(ctx context.Context, userID, relationshipGUID string) (*instance.Relationship, error) {
	conns, err := f.snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, "isRelationshipKnown",
		func(ctx context.Context, conn connection) (instance.Relationship, error) {
			rel, err := conn.collection.IsRelationshipKnown(ctx, userID, relationshipGUID)
			if err != nil {
				return instance.Relationship{}, err
			}
			if rel == nil {
				return instance.Relationship{}, errors.Annotatef(coreerrors.RelationshipNotKnown, "relationship %q", relationshipGUID)
			}
			return *rel, nil
		})
	if errors.Is(err, coreerrors.RelationshipNotKnown) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	winner := best(cands, relationshipHeader)
	f.learnRelationship(ctx, userID, winner)
	return &winner.item, nil
}

// GetRelationship implements repository.InstanceReads.
func (f *Federator) GetRelationship(ctx context.Context, userID, relationshipGUID string) (instance.Relationship, error) {
	conns, err := f.snapshot()
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	winner, err := f.bestRelationship(ctx, conns, "getRelationship", userID, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	f.learnRelationship(ctx, userID, winner)
	return winner.item, nil
}

// GetRelationshipAsOfTime implements repository.InstanceReads.
func (f *Federator) GetRelationshipAsOfTime(ctx context.Context, userID, relationshipGUID string, asOfTime time.Time) (instance.Relationship, error) {
	conns, err := f.snapshot()
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, "getRelationshipAsOfTime",
		func(ctx context.Context, conn connection) (instance.Relationship, error) {
			return conn.collection.GetRelationshipAsOfTime(ctx, userID, relationshipGUID, asOfTime)
		})
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	return best(cands, relationshipHeader).item, nil
}

// FindRelationshipsByProperty implements repository.InstanceReads.
func (f *Federator) FindRelationshipsByProperty(ctx context.Context, userID string, args repository.FindRelationshipsArgs) ([]instance.Relationship, error) {
	return f.findRelationships(ctx, "findRelationshipsByProperty", userID, args,
		func(ctx context.Context, conn connection, args repository.FindRelationshipsArgs) ([]instance.Relationship, error) {
			return conn.collection.FindRelationshipsByProperty(ctx, userID, args)
		})
}

// FindRelationshipsByPropertyValue implements repository.InstanceReads.
func (f *Federator) FindRelationshipsByPropertyValue(ctx context.Context, userID string, args repository.FindRelationshipsArgs) ([]instance.Relationship, error) {
	return f.findRelationships(ctx, "findRelationshipsByPropertyValue", userID, args,
		func(ctx context.Context, conn connection, args repository.FindRelationshipsArgs) ([]instance.Relationship, error) {
			return conn.collection.FindRelationshipsByPropertyValue(ctx, userID, args)
		})
}

func (f *Federator) findRelationships(ctx context.Context, op, userID string, args repository.FindRelationshipsArgs, call func(context.Context, connection, repository.FindRelationshipsArgs) ([]instance.Relationship, error)) ([]instance.Relationship, error) {
	conns, err := f.snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	paging := args.Paging
	args.Paging = widen(paging)
	lists, err := collect(ctx, f, conns, op,
		func(ctx context.Context, conn connection) ([]instance.Relationship, error) {
			return call(ctx, conn, args)
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	merged := rePage(merge(lists, relationshipHeader), relationshipHeader, relationshipProperties, paging)
	f.learnRelationships(ctx, userID, merged)
	return items(merged), nil
}

// GetLinkingEntities implements repository.InstanceReads.
func (f *Federator) GetLinkingEntities(ctx context.Context, userID, startEntityGUID, endEntityGUID string, statusFilter []instance.Status) (instance.Graph, error) {
	conns, err := f.snapshot()
	if err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	graphs, err := collect(ctx, f, conns, "getLinkingEntities",
		func(ctx context.Context, conn connection) (instance.Graph, error) {
			return conn.collection.GetLinkingEntities(ctx, userID, startEntityGUID, endEntityGUID, statusFilter)
		})
	if err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	return f.learnedGraph(ctx, userID, graphs), nil
}

// GetEntityNeighborhood implements repository.InstanceReads.
func (f *Federator) GetEntityNeighborhood(ctx context.Context, userID string, args repository.NeighborhoodArgs) (instance.Graph, error) {
	conns, err := f.snapshot()
	if err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	graphs, err := collect(ctx, f, conns, "getEntityNeighborhood",
		func(ctx context.Context, conn connection) (instance.Graph, error) {
			return conn.collection.GetEntityNeighborhood(ctx, userID, args)
		})
	if err != nil {
		return instance.Graph{}, errors.Trace(err)
	}
	return f.learnedGraph(ctx, userID, graphs), nil
}

// GetRelatedEntities implements repository.InstanceReads.
func (f *Federator) GetRelatedEntities(ctx context.Context, userID string, args repository.RelatedEntitiesArgs) ([]instance.EntityDetail, error) {
	conns, err := f.snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	paging := args.Paging
	args.Paging = widen(paging)
	lists, err := collect(ctx, f, conns, "getRelatedEntities",
		func(ctx context.Context, conn connection) ([]instance.EntityDetail, error) {
			return conn.collection.GetRelatedEntities(ctx, userID, args)
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	merged := rePage(merge(lists, entityHeader), entityHeader, entityProperties, paging)
	f.learnEntities(ctx, userID, merged)
	return items(merged), nil
}

// learnedGraph merges member graphs and offers the remote-sourced
// instances to the retrieval processor.
func (f *Federator) learnedGraph(ctx context.Context, userID string, graphs []sourced[instance.Graph]) instance.Graph {
	entities, relationships := mergeGraphs(graphs)
	f.learnEntities(ctx, userID, entities)
	f.learnRelationships(ctx, userID, relationships)
	return instance.Graph{
		Entities:      items(entities),
		Relationships: items(relationships),
	}
}

// bestEntity fans a full-entity read out and keeps the superseding
// copy. Write routing reuses it to locate an instance's home.
func (f *Federator) bestEntity(ctx context.Context, conns []connection, op, userID, entityGUID string) (sourced[instance.EntityDetail], error) {
	cands, err := collect(ctx, f, conns, op,
		func(ctx context.Context, conn connection) (instance.EntityDetail, error) {
			return conn.collection.GetEntityDetail(ctx, userID, entityGUID)
		})
	if err != nil {
		return sourced[instance.EntityDetail]{}, errors.Trace(err)
	}
	return best(cands, entityHeader), nil
}

func (f *Federator) bestRelationship(ctx context.Context, conns []connection, op, userID, relationshipGUID string) (sourced[instance.Relationship], error) {
	cands, err := collect(ctx, f, conns, op,
		func(ctx context.Context, conn connection) (instance.Relationship, error) {
			return conn.collection.GetRelationship(ctx, userID, relationshipGUID)
		})
	if err != nil {
		return sourced[instance.Relationship]{}, errors.Trace(err)
	}
	return best(cands, relationshipHeader), nil
}
