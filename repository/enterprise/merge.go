// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package enterprise

import (
	"sort"
	"time"

	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/repository"
)

// supersedes reports whether a candidate copy of an instance should
// replace the incumbent sharing its GUID: highest version wins, then
// highest type version; a tie goes to the copy served by its own home
// over a reference copy; a full tie keeps the incumbent, so the first
// member to respond wins.
func supersedes(incumbent instance.Header, incumbentSource string, candidate instance.Header, candidateSource string) bool {
	if candidate.Version != incumbent.Version {
		return candidate.Version > incumbent.Version
	}
	if candidate.Type.Version != incumbent.Type.Version {
		return candidate.Type.Version > incumbent.Type.Version
	}
	return homeCopy(candidate, candidateSource) && !homeCopy(incumbent, incumbentSource)
}

func homeCopy(h instance.Header, source string) bool {
	return source != "" && (h.MetadataCollectionID == source || h.ReplicatedBy == source)
}

// best reduces single-instance candidates to the winning copy.
func best[T any](cands []sourced[T], header func(T) instance.Header) sourced[T] {
	winner := cands[0]
	for _, c := range cands[1:] {
		if supersedes(header(winner.item), winner.source, header(c.item), c.source) {
			winner = c
		}
	}
	return winner
}

// merge flattens per-member result lists into one, de-duplicated by
// GUID with the superseding copy kept. Output preserves first-seen
// order; callers re-sequence before paging.
func merge[T any](lists []sourced[[]T], header func(T) instance.Header) []sourced[T] {
	kept := make(map[string]int)
	var out []sourced[T]
	for _, list := range lists {
		for _, item := range list.item {
			h := header(item)
			i, ok := kept[h.GUID]
			if !ok {
				kept[h.GUID] = len(out)
				out = append(out, sourced[T]{item: item, source: list.source})
				continue
			}
			if supersedes(header(out[i].item), out[i].source, h, list.source) {
				out[i] = sourced[T]{item: item, source: list.source}
			}
		}
	}
	return out
}

// items strips the source tags once merging and learning are done.
func items[T any](list []sourced[T]) []T {
	if len(list) == 0 {
		return nil
	}
	out := make([]T, len(list))
	for i, s := range list {
		out[i] = s.item
	}
	return out
}

// widen converts the caller's page into the page requested from each
// member: everything from the start of the sequence up to the end of
// the caller's window, so the merged set still contains the window
// regardless of how the members' contributions interleave.
func widen(p repository.Paging) repository.Paging {
	w := p
	w.FromElement = 0
	if p.PageSize > 0 {
		w.PageSize = p.PageSize + p.FromElement
	}
	return w
}

// rePage sequences the merged set and applies the caller's original
// window.
func rePage[T any](list []sourced[T], header func(T) instance.Header, properties func(T) instance.Properties, paging repository.Paging) []sourced[T] {
	sort.SliceStable(list, func(i, j int) bool {
		return mergedLess(header(list[i].item), header(list[j].item),
			properties(list[i].item), properties(list[j].item), paging)
	})
	if paging.FromElement >= len(list) {
		return nil
	}
	list = list[paging.FromElement:]
	if paging.PageSize > 0 && len(list) > paging.PageSize {
		list = list[:paging.PageSize]
	}
	return list
}

// mergedLess orders merged results the way the members order theirs,
// falling back to GUID so pages are stable across fan-outs.
func mergedLess(a, b instance.Header, pa, pb instance.Properties, paging repository.Paging) bool {
	switch paging.Sequencing {
	case repository.SequencePropertyAscending:
		sa, sb := sequencingProperty(pa, paging.SequencingProperty), sequencingProperty(pb, paging.SequencingProperty)
		if sa != sb {
			return sa < sb
		}
	case repository.SequencePropertyDescending:
		sa, sb := sequencingProperty(pa, paging.SequencingProperty), sequencingProperty(pb, paging.SequencingProperty)
		if sa != sb {
			return sa > sb
		}
	case repository.SequenceLastUpdateRecent:
		ta, tb := latestChange(a), latestChange(b)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
	case repository.SequenceLastUpdateOldest:
		ta, tb := latestChange(a), latestChange(b)
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

func sequencingProperty(properties instance.Properties, name string) string {
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

func latestChange(h instance.Header) time.Time {
	if h.UpdateTime != nil {
		return *h.UpdateTime
	}
	return h.CreateTime
}

func entityHeader(e instance.EntityDetail) instance.Header       { return e.Header }
func summaryHeader(e instance.EntitySummary) instance.Header     { return e.Header }
func relationshipHeader(r instance.Relationship) instance.Header { return r.Header }

func entityProperties(e instance.EntityDetail) instance.Properties       { return e.Properties }
func relationshipProperties(r instance.Relationship) instance.Properties { return r.Properties }

// mergeGraphs unions per-member graphs, de-duplicated by GUID with
// the superseding copies kept, ordered by GUID.
func mergeGraphs(graphs []sourced[instance.Graph]) ([]sourced[instance.EntityDetail], []sourced[instance.Relationship]) {
	entityLists := make([]sourced[[]instance.EntityDetail], len(graphs))
	relationshipLists := make([]sourced[[]instance.Relationship], len(graphs))
	for i, g := range graphs {
		entityLists[i] = sourced[[]instance.EntityDetail]{item: g.item.Entities, source: g.source}
		relationshipLists[i] = sourced[[]instance.Relationship]{item: g.item.Relationships, source: g.source}
	}
	entities := merge(entityLists, entityHeader)
	relationships := merge(relationshipLists, relationshipHeader)
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].item.GUID < entities[j].item.GUID
	})
	sort.Slice(relationships, func(i, j int) bool {
		return relationships[i].item.GUID < relationships[j].item.GUID
	})
	return entities, relationships
}
