// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package inmemory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/repository"
)

// FindEntities scans every stored entity against the populated
// conditions. Proxies are never returned by searches.
func (b *Backend) FindEntities(ctx context.Context, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	if args.AsOfTime != nil {
		return nil, errors.Annotatef(coreerrors.FunctionNotSupported, "historical queries")
	}
	b.mu.RLock()
	var results []instance.EntityDetail
	for _, e := range b.entities {
		if !entityMatches(e, args) {
			continue
		}
		results = append(results, e.Copy())
	}
	b.mu.RUnlock()

	sortEntities(results, args.Paging)
	return page(results, args.Paging), nil
}

// FindRelationships scans every stored relationship against the
// populated conditions.
func (b *Backend) FindRelationships(ctx context.Context, args repository.FindRelationshipsArgs) ([]instance.Relationship, error) {
	if args.AsOfTime != nil {
		return nil, errors.Annotatef(coreerrors.FunctionNotSupported, "historical queries")
	}
	b.mu.RLock()
	var results []instance.Relationship
	for _, r := range b.relationships {
		if !relationshipMatches(r, args) {
			continue
		}
		results = append(results, r.Copy())
	}
	b.mu.RUnlock()

	sortRelationships(results, args.Paging)
	return page(results, args.Paging), nil
}

// RelationshipsForEntity returns the relationships attached to the
// entity, which must be stored at least as a proxy.
func (b *Backend) RelationshipsForEntity(ctx context.Context, args repository.RelationshipsForEntityArgs) ([]instance.Relationship, error) {
	if args.AsOfTime != nil {
		return nil, errors.Annotatef(coreerrors.FunctionNotSupported, "historical queries")
	}
	b.mu.RLock()
	if !b.entityStored(args.EntityGUID) {
		b.mu.RUnlock()
		return nil, errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", args.EntityGUID)
	}
	var results []instance.Relationship
	for _, r := range b.relationships {
		if !r.HasEnd(args.EntityGUID) {
			continue
		}
		if args.RelationshipTypeGUID != "" && r.Type.GUID != args.RelationshipTypeGUID {
			continue
		}
		if !statusAdmits(r.Status, args.StatusFilter) {
			continue
		}
		results = append(results, r.Copy())
	}
	b.mu.RUnlock()

	sortRelationships(results, args.Paging)
	return page(results, args.Paging), nil
}

func entityMatches(e instance.EntityDetail, args repository.FindEntitiesArgs) bool {
	if args.TypeGUID != "" && e.Type.GUID != args.TypeGUID {
		return false
	}
	if !statusAdmits(e.Status, args.StatusFilter) {
		return false
	}
	if !propertiesMatch(e.Properties, args.MatchProperties, args.MatchCriteria) {
		return false
	}
	if args.SearchString != "" && !searchMatches(e.Properties, args.SearchString) {
		return false
	}
	if args.ClassificationName != "" {
		c, ok := e.Classification(args.ClassificationName)
		if !ok {
			return false
		}
		if !propertiesMatch(c.Properties, args.ClassificationProperties, repository.MatchAll) {
			return false
		}
	}
	return true
}

func relationshipMatches(r instance.Relationship, args repository.FindRelationshipsArgs) bool {
	if args.TypeGUID != "" && r.Type.GUID != args.TypeGUID {
		return false
	}
	if !statusAdmits(r.Status, args.StatusFilter) {
		return false
	}
	if !propertiesMatch(r.Properties, args.MatchProperties, args.MatchCriteria) {
		return false
	}
	if args.SearchString != "" && !searchMatches(r.Properties, args.SearchString) {
		return false
	}
	return true
}

// statusAdmits applies the status filter. An empty filter admits
// everything except soft-deleted instances.
func statusAdmits(status instance.Status, filter []instance.Status) bool {
	if len(filter) == 0 {
		return !status.Deleted()
	}
	for _, s := range filter {
		if s == status {
			return true
		}
	}
	return false
}

func propertiesMatch(stored, conditions instance.Properties, criteria repository.MatchCriteria) bool {
	if len(conditions) == 0 {
		return true
	}
	matched := 0
	for name, want := range conditions {
		if got, ok := stored[name]; ok && got.Equal(want) {
			matched++
		}
	}
	switch criteria {
	case repository.MatchAny:
		return matched > 0
	case repository.MatchNone:
		return matched == 0
	default:
		return matched == len(conditions)
	}
}

// searchMatches reports whether any string-valued property contains
// the search string.
func searchMatches(stored instance.Properties, search string) bool {
	for _, value := range stored {
		p, ok := value.(instance.PrimitiveValue)
		if !ok {
			continue
		}
		s, ok := p.StringValue()
		if !ok {
			continue
		}
		if strings.Contains(s, search) {
			return true
		}
	}
	return false
}

func sortEntities(list []instance.EntityDetail, paging repository.Paging) {
	sort.Slice(list, func(i, j int) bool {
		return headerLess(list[i].Header, list[j].Header, list[i].Properties, list[j].Properties, paging)
	})
}

func sortRelationships(list []instance.Relationship, paging repository.Paging) {
	sort.Slice(list, func(i, j int) bool {
		return headerLess(list[i].Header, list[j].Header, list[i].Properties, list[j].Properties, paging)
	})
}

// headerLess orders results before paging. Every order falls back to
// GUID so pages are stable.
func headerLess(a, b instance.Header, pa, pb instance.Properties, paging repository.Paging) bool {
	switch paging.Sequencing {
	case repository.SequencePropertyAscending:
		sa := stringProperty(pa, paging.SequencingProperty)
		sb := stringProperty(pb, paging.SequencingProperty)
		if sa != sb {
			return sa < sb
		}
	case repository.SequencePropertyDescending:
		sa := stringProperty(pa, paging.SequencingProperty)
		sb := stringProperty(pb, paging.SequencingProperty)
		if sa != sb {
			return sa > sb
		}
	case repository.SequenceLastUpdateRecent:
		ta, tb := lastUpdate(a), lastUpdate(b)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
	case repository.SequenceLastUpdateOldest:
		ta, tb := lastUpdate(a), lastUpdate(b)
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
	case repository.SequenceCreationRecent:
		if !a.CreateTime.Equal(b.CreateTime) {
			return a.CreateTime.After(b.CreateTime)
		}
	case repository.SequenceCreationOldest:
		if !a.CreateTime.Equal(b.CreateTime) {
			return a.CreateTime.Before(b.CreateTime)
		}
	}
	return a.GUID < b.GUID
}

func stringProperty(properties instance.Properties, name string) string {
	value, ok := properties[name]
	if !ok {
		return ""
	}
	p, ok := value.(instance.PrimitiveValue)
	if !ok {
		return ""
	}
	s, _ := p.StringValue()
	return s
}

func lastUpdate(h instance.Header) time.Time {
	if h.UpdateTime != nil {
		return *h.UpdateTime
	}
	return h.CreateTime
}

func page[T any](list []T, p repository.Paging) []T {
	if p.FromElement >= len(list) {
		return nil
	}
	list = list[p.FromElement:]
	if p.PageSize > 0 && len(list) > p.PageSize {
		list = list[:p.PageSize]
	}
	return list
}
