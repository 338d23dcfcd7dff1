// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package inmemory

import (
	"context"
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/repository"
)

// Neighborhood walks relationships breadth-first out from the anchor
// entity. Entities failing the filters are neither returned nor
// expanded; the anchor is always expanded.
func (b *Backend) Neighborhood(ctx context.Context, args repository.NeighborhoodArgs) (instance.Graph, error) {
	if args.AsOfTime != nil {
		return instance.Graph{}, errors.Annotatef(coreerrors.FunctionNotSupported, "historical queries")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	anchor, ok := b.entities[args.EntityGUID]
	if !ok {
		return instance.Graph{}, errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", args.EntityGUID)
	}
	entityTypes := set.NewStrings(args.EntityTypeGUIDs...)
	relationshipTypes := set.NewStrings(args.RelationshipTypeGUIDs...)
	classifications := set.NewStrings(args.ClassificationNames...)

	var graph instance.Graph
	if entityAdmitted(anchor, entityTypes, classifications, args.StatusFilter) {
		graph.Entities = append(graph.Entities, anchor.Copy())
	}
	seenEntities := set.NewStrings(args.EntityGUID)
	seenRelationships := set.NewStrings()
	frontier := []string{args.EntityGUID}
	for level := 0; len(frontier) > 0 && (args.Level < 0 || level < args.Level); level++ {
		var next []string
		for _, guid := range frontier {
			for _, r := range b.relationships {
				if seenRelationships.Contains(r.GUID) || !r.HasEnd(guid) {
					continue
				}
				if !relationshipTypes.IsEmpty() && !relationshipTypes.Contains(r.Type.GUID) {
					continue
				}
				if !statusAdmits(r.Status, args.StatusFilter) {
					continue
				}
				seenRelationships.Add(r.GUID)
				graph.Relationships = append(graph.Relationships, r.Copy())

				other, ok := r.OtherEnd(guid)
				if !ok || seenEntities.Contains(other.GUID) {
					continue
				}
				seenEntities.Add(other.GUID)
				e, stored := b.entities[other.GUID]
				if !stored || !entityAdmitted(e, entityTypes, classifications, args.StatusFilter) {
					continue
				}
				graph.Entities = append(graph.Entities, e.Copy())
				next = append(next, other.GUID)
			}
		}
		frontier = next
	}
	sortGraph(&graph)
	return graph, nil
}

// RelatedEntities returns every entity reachable from the start
// entity, excluding the start entity itself.
func (b *Backend) RelatedEntities(ctx context.Context, args repository.RelatedEntitiesArgs) ([]instance.EntityDetail, error) {
	if args.AsOfTime != nil {
		return nil, errors.Annotatef(coreerrors.FunctionNotSupported, "historical queries")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.entities[args.StartEntityGUID]; !ok {
		return nil, errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", args.StartEntityGUID)
	}
	entityTypes := set.NewStrings(args.EntityTypeGUIDs...)
	classifications := set.NewStrings(args.ClassificationNames...)

	var results []instance.EntityDetail
	seen := set.NewStrings(args.StartEntityGUID)
	frontier := []string{args.StartEntityGUID}
	for len(frontier) > 0 {
		var next []string
		for _, guid := range frontier {
			for _, r := range b.relationships {
				if !r.HasEnd(guid) || !statusAdmits(r.Status, args.StatusFilter) {
					continue
				}
				other, ok := r.OtherEnd(guid)
				if !ok || seen.Contains(other.GUID) {
					continue
				}
				seen.Add(other.GUID)
				e, stored := b.entities[other.GUID]
				if !stored || !entityAdmitted(e, entityTypes, classifications, args.StatusFilter) {
					continue
				}
				results = append(results, e.Copy())
				next = append(next, other.GUID)
			}
		}
		frontier = next
	}
	sortEntities(results, args.Paging)
	return page(results, args.Paging), nil
}

// LinkingEntities is not supported; the backend does not enumerate
// paths.
func (b *Backend) LinkingEntities(ctx context.Context, startEntityGUID, endEntityGUID string, statusFilter []instance.Status) (instance.Graph, error) {
	return instance.Graph{}, errors.Annotatef(coreerrors.FunctionNotSupported, "path queries")
}

func entityAdmitted(e instance.EntityDetail, entityTypes, classifications set.Strings, statusFilter []instance.Status) bool {
	if !statusAdmits(e.Status, statusFilter) {
		return false
	}
	if !entityTypes.IsEmpty() && !entityTypes.Contains(e.Type.GUID) {
		return false
	}
	if classifications.IsEmpty() {
		return true
	}
	for _, name := range classifications.Values() {
		if _, ok := e.Classification(name); ok {
			return true
		}
	}
	return false
}

func sortGraph(g *instance.Graph) {
	sort.Slice(g.Entities, func(i, j int) bool {
		return g.Entities[i].GUID < g.Entities[j].GUID
	})
	sort.Slice(g.Relationships, func(i, j int) bool {
		return g.Relationships[i].GUID < g.Relationships[j].GUID
	})
}
