// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package repository

import (
	"time"

	"github.com/juju/metafed/core/instance"
)

// MatchCriteria says how multiple property conditions combine.
type MatchCriteria string

const (
	// MatchAll requires every condition to hold.
	MatchAll MatchCriteria = "ALL"

	// MatchAny requires at least one condition to hold.
	MatchAny MatchCriteria = "ANY"

	// MatchNone requires no condition to hold.
	MatchNone MatchCriteria = "NONE"
)

// SequencingOrder says how results are ordered before paging.
type SequencingOrder string

const (
	// SequenceGUID orders by instance GUID. It is the default and
	// keeps paged merges deterministic.
	SequenceGUID SequencingOrder = "GUID"

	SequencePropertyAscending  SequencingOrder = "PROPERTY_ASCENDING"
	SequencePropertyDescending SequencingOrder = "PROPERTY_DESCENDING"
	SequenceLastUpdateRecent   SequencingOrder = "LAST_UPDATE_RECENT"
	SequenceLastUpdateOldest   SequencingOrder = "LAST_UPDATE_OLDEST"
	SequenceCreationRecent     SequencingOrder = "CREATION_DATE_RECENT"
	SequenceCreationOldest     SequencingOrder = "CREATION_DATE_OLDEST"
)

// Paging bounds and orders one page of results. A zero PageSize
// means unbounded.
type Paging struct {
	FromElement        int
	PageSize           int
	Sequencing         SequencingOrder
	SequencingProperty string
}

// FindEntitiesArgs is the condition set for entity searches. Exactly
// one of MatchProperties, SearchString or ClassificationName drives
// the search, depending on which find operation is called.
type FindEntitiesArgs struct {
	// TypeGUID narrows results to one entity type.
	TypeGUID string

	// MatchProperties and MatchCriteria drive
	// FindEntitiesByProperty.
	MatchProperties instance.Properties
	MatchCriteria   MatchCriteria

	// SearchString drives FindEntitiesByPropertyValue; string
	// properties are matched by substring.
	SearchString string

	// ClassificationName and ClassificationProperties drive
	// FindEntitiesByClassification.
	ClassificationName       string
	ClassificationProperties instance.Properties

	// StatusFilter keeps only instances in the listed statuses. An
	// empty filter keeps everything except soft-deleted instances.
	StatusFilter []instance.Status

	// AsOfTime runs the search against historical state, on
	// repositories that keep history.
	AsOfTime *time.Time

	Paging
}

// FindRelationshipsArgs is the condition set for relationship
// searches.
type FindRelationshipsArgs struct {
	TypeGUID string

	MatchProperties instance.Properties
	MatchCriteria   MatchCriteria

	SearchString string

	StatusFilter []instance.Status
	AsOfTime     *time.Time

	Paging
}

// RelationshipsForEntityArgs bounds the relationships returned for
// one entity.
type RelationshipsForEntityArgs struct {
	EntityGUID           string
	RelationshipTypeGUID string
	StatusFilter         []instance.Status
	AsOfTime             *time.Time

	Paging
}

// NeighborhoodArgs bounds a neighborhood traversal. Level is the
// number of relationship hops to walk; negative means unbounded.
type NeighborhoodArgs struct {
	EntityGUID            string
	EntityTypeGUIDs       []string
	RelationshipTypeGUIDs []string
	ClassificationNames   []string
	StatusFilter          []instance.Status
	AsOfTime              *time.Time
	Level                 int
}

// RelatedEntitiesArgs bounds a related-entities closure walk.
type RelatedEntitiesArgs struct {
	StartEntityGUID     string
	EntityTypeGUIDs     []string
	ClassificationNames []string
	StatusFilter        []instance.Status
	AsOfTime            *time.Time

	Paging
}

// AddEntityArgs carries a new entity's initial state.
type AddEntityArgs struct {
	TypeName        string
	Properties      instance.Properties
	Classifications []instance.Classification

	// InitialStatus overrides the type's declared initial status.
	InitialStatus instance.Status
}

// AddExternalEntityArgs carries a new externally mastered entity's
// initial state and its master's identity.
type AddExternalEntityArgs struct {
	AddEntityArgs

	// ExternalSourceGUID is the metadata collection id of the
	// external master; it becomes the instance's home.
	ExternalSourceGUID string

	// ExternalSourceName is the external master's display name.
	ExternalSourceName string
}

// AddRelationshipArgs carries a new relationship's initial state.
// The end entities must already be known locally, at least as
// proxies.
type AddRelationshipArgs struct {
	TypeName      string
	Properties    instance.Properties
	EntityOneGUID string
	EntityTwoGUID string
	InitialStatus instance.Status
}

// AddExternalRelationshipArgs carries a new externally mastered
// relationship's initial state and its master's identity.
type AddExternalRelationshipArgs struct {
	AddRelationshipArgs

	ExternalSourceGUID string
	ExternalSourceName string
}

// InstanceOrigin is the provenance identity stamped on new
// instances.
type InstanceOrigin struct {
	MetadataCollectionID   string
	MetadataCollectionName string
	Provenance             instance.Provenance

	// ReplicatedBy is the collection routing events for an external
	// master.
	ReplicatedBy string
}
