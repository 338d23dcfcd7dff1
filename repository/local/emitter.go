// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package local

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/juju/metafed/bus"
	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/event"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
)

// EmitterConfig identifies the publishing server and its outbound
// path.
type EmitterConfig struct {
	// Publisher carries marshaled events to the cohort, usually a
	// bus.BufferedPublisher or a bus.Fanout over several.
	Publisher bus.Publisher

	// Originator names the local server on every event.
	Originator event.Originator

	// ProduceChangeEvents gates announcements of repository state.
	// Protocol traffic (refresh requests, conflict reports, cohort
	// registration) is sent regardless.
	ProduceChangeEvents bool
}

// Validate returns an error if the configuration is incomplete.
func (c EmitterConfig) Validate() error {
	if c.Publisher == nil {
		return errors.NotValidf("nil Publisher")
	}
	if c.Originator.MetadataCollectionID == "" {
		return errors.NotValidf("empty Originator.MetadataCollectionID")
	}
	return nil
}

// Emitter builds cohort events and hands them to the outbound
// publisher. Change announcements are best-effort: a failure to queue
// one is logged, never surfaced, so a completed write is not undone
// by a full queue. Protocol events report their errors because the
// event is the whole operation.
//
// The zero Emitter is disconnected: change events are discarded and
// protocol events fail with FunctionNotSupported.
type Emitter struct {
	config EmitterConfig
}

// NewEmitter returns an emitter publishing on behalf of the
// originator.
func NewEmitter(config EmitterConfig) (*Emitter, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Emitter{config: config}, nil
}

func (em *Emitter) publish(ctx context.Context, ev event.Event) error {
	if em.config.Publisher == nil {
		return errors.Annotatef(coreerrors.FunctionNotSupported,
			"no cohort event connection")
	}
	ev.Originator = em.config.Originator
	data, err := event.Marshal(ev)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(em.config.Publisher.Publish(ctx, data))
}

// change publishes a state announcement, honoring the produce-events
// switch and swallowing failures.
func (em *Emitter) change(ctx context.Context, ev event.Event) {
	if em.config.Publisher == nil || !em.config.ProduceChangeEvents {
		return
	}
	if err := em.publish(ctx, ev); err != nil {
		logger.Errorf("publishing %s event: %v", ev.Type, err)
	}
}

// Entity change announcements.

func (em *Emitter) EntityCreated(ctx context.Context, e instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeNewEntity, Entity: &e})
}

func (em *Emitter) EntityUpdated(ctx context.Context, original, updated instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeUpdatedEntity, OriginalEntity: &original, Entity: &updated})
}

func (em *Emitter) EntityUndone(ctx context.Context, e instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeUndoneEntity, Entity: &e})
}

func (em *Emitter) EntityClassified(ctx context.Context, e instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeClassifiedEntity, Entity: &e})
}

func (em *Emitter) EntityReclassified(ctx context.Context, e instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeReclassifiedEntity, Entity: &e})
}

func (em *Emitter) EntityDeclassified(ctx context.Context, e instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeDeclassifiedEntity, Entity: &e})
}

func (em *Emitter) EntityDeleted(ctx context.Context, e instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeDeletedEntity, Entity: &e})
}

func (em *Emitter) EntityPurged(ctx context.Context, typeDefGUID, typeDefName, entityGUID string) {
	em.change(ctx, event.Event{
		Type:         event.TypePurgedEntity,
		TypeDefGUID:  typeDefGUID,
		TypeDefName:  typeDefName,
		InstanceGUID: entityGUID,
	})
}

func (em *Emitter) EntityRestored(ctx context.Context, e instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeRestoredEntity, Entity: &e})
}

func (em *Emitter) EntityReIdentified(ctx context.Context, originalGUID string, e instance.EntityDetail) {
	em.change(ctx, event.Event{
		Type:                 event.TypeReIdentifiedEntity,
		OriginalInstanceGUID: originalGUID,
		Entity:               &e,
	})
}

func (em *Emitter) EntityReTyped(ctx context.Context, original typedef.Summary, e instance.EntityDetail) {
	em.change(ctx, event.Event{
		Type:                   event.TypeReTypedEntity,
		OriginalTypeDefSummary: &original,
		Entity:                 &e,
	})
}

func (em *Emitter) EntityReHomed(ctx context.Context, originalHome string, e instance.EntityDetail) {
	em.change(ctx, event.Event{
		Type:                             event.TypeReHomedEntity,
		OriginalHomeMetadataCollectionID: originalHome,
		Entity:                           &e,
	})
}

func (em *Emitter) EntityRefreshed(ctx context.Context, e instance.EntityDetail) {
	em.change(ctx, event.Event{Type: event.TypeRefreshedEntity, Entity: &e})
}

// Relationship change announcements.

func (em *Emitter) RelationshipCreated(ctx context.Context, rel instance.Relationship) {
	em.change(ctx, event.Event{Type: event.TypeNewRelationship, Relationship: &rel})
}

func (em *Emitter) RelationshipUpdated(ctx context.Context, original, updated instance.Relationship) {
	em.change(ctx, event.Event{Type: event.TypeUpdatedRelationship, OriginalRelationship: &original, Relationship: &updated})
}

func (em *Emitter) RelationshipUndone(ctx context.Context, rel instance.Relationship) {
	em.change(ctx, event.Event{Type: event.TypeUndoneRelationship, Relationship: &rel})
}

func (em *Emitter) RelationshipDeleted(ctx context.Context, rel instance.Relationship) {
	em.change(ctx, event.Event{Type: event.TypeDeletedRelationship, Relationship: &rel})
}

func (em *Emitter) RelationshipPurged(ctx context.Context, typeDefGUID, typeDefName, relationshipGUID string) {
	em.change(ctx, event.Event{
		Type:         event.TypePurgedRelationship,
		TypeDefGUID:  typeDefGUID,
		TypeDefName:  typeDefName,
		InstanceGUID: relationshipGUID,
	})
}

func (em *Emitter) RelationshipRestored(ctx context.Context, rel instance.Relationship) {
	em.change(ctx, event.Event{Type: event.TypeRestoredRelationship, Relationship: &rel})
}

func (em *Emitter) RelationshipReIdentified(ctx context.Context, originalGUID string, rel instance.Relationship) {
	em.change(ctx, event.Event{
		Type:                 event.TypeReIdentifiedRelationship,
		OriginalInstanceGUID: originalGUID,
		Relationship:         &rel,
	})
}

func (em *Emitter) RelationshipReTyped(ctx context.Context, original typedef.Summary, rel instance.Relationship) {
	em.change(ctx, event.Event{
		Type:                   event.TypeReTypedRelationship,
		OriginalTypeDefSummary: &original,
		Relationship:           &rel,
	})
}

func (em *Emitter) RelationshipReHomed(ctx context.Context, originalHome string, rel instance.Relationship) {
	em.change(ctx, event.Event{
		Type:                             event.TypeReHomedRelationship,
		OriginalHomeMetadataCollectionID: originalHome,
		Relationship:                     &rel,
	})
}

func (em *Emitter) RelationshipRefreshed(ctx context.Context, rel instance.Relationship) {
	em.change(ctx, event.Event{Type: event.TypeRefreshedRelationship, Relationship: &rel})
}

// InstanceBatch announces a graph of instances in one event.
func (em *Emitter) InstanceBatch(ctx context.Context, graph instance.Graph) {
	em.change(ctx, event.Event{Type: event.TypeBatchInstances, InstanceBatch: &graph})
}

// Type definition change announcements.

func (em *Emitter) TypeDefAdded(ctx context.Context, def typedef.TypeDef) {
	em.change(ctx, event.Event{Type: event.TypeNewTypeDef, TypeDef: &def})
}

func (em *Emitter) AttributeTypeDefAdded(ctx context.Context, def typedef.AttributeTypeDef) {
	em.change(ctx, event.Event{Type: event.TypeNewAttributeTypeDef, AttributeTypeDef: &def})
}

func (em *Emitter) TypeDefUpdated(ctx context.Context, patch typedef.Patch, def typedef.TypeDef) {
	em.change(ctx, event.Event{Type: event.TypeUpdatedTypeDef, TypeDefPatch: &patch, TypeDef: &def})
}

func (em *Emitter) TypeDefDeleted(ctx context.Context, guid, name string) {
	em.change(ctx, event.Event{Type: event.TypeDeletedTypeDef, TypeDefGUID: guid, TypeDefName: name})
}

func (em *Emitter) AttributeTypeDefDeleted(ctx context.Context, guid, name string) {
	em.change(ctx, event.Event{Type: event.TypeDeletedAttributeTypeDef, TypeDefGUID: guid, TypeDefName: name})
}

func (em *Emitter) TypeDefReIdentified(ctx context.Context, original typedef.Summary, def typedef.TypeDef) {
	em.change(ctx, event.Event{
		Type:                   event.TypeReIdentifiedTypeDef,
		OriginalTypeDefSummary: &original,
		TypeDef:                &def,
	})
}

func (em *Emitter) AttributeTypeDefReIdentified(ctx context.Context, original, def typedef.AttributeTypeDef) {
	em.change(ctx, event.Event{
		Type:                     event.TypeReIdentifiedAttributeTypeDef,
		OriginalAttributeTypeDef: &original,
		AttributeTypeDef:         &def,
	})
}

// Protocol events. These are the operation itself, so failures
// surface to the caller.

// EntityRefreshRequested asks the entity's home collection to
// publish its current state.
func (em *Emitter) EntityRefreshRequested(ctx context.Context, typeDefGUID, typeDefName, entityGUID, homeCollectionID string) error {
	return errors.Trace(em.publish(ctx, event.Event{
		Type:                     event.TypeRefreshEntityRequest,
		TypeDefGUID:              typeDefGUID,
		TypeDefName:              typeDefName,
		InstanceGUID:             entityGUID,
		HomeMetadataCollectionID: homeCollectionID,
	}))
}

// RelationshipRefreshRequested asks the relationship's home
// collection to publish its current state.
func (em *Emitter) RelationshipRefreshRequested(ctx context.Context, typeDefGUID, typeDefName, relationshipGUID, homeCollectionID string) error {
	return errors.Trace(em.publish(ctx, event.Event{
		Type:                     event.TypeRefreshRelationshipRequest,
		TypeDefGUID:              typeDefGUID,
		TypeDefName:              typeDefName,
		InstanceGUID:             relationshipGUID,
		HomeMetadataCollectionID: homeCollectionID,
	}))
}

// InstanceConflict reports two instances sharing a GUID. The target
// names the copy believed to be in error; the other fields carry this
// server's view.
type InstanceConflict struct {
	TargetMetadataCollectionID string
	TargetTypeDefSummary       typedef.Summary
	TargetInstanceGUID         string

	OtherMetadataCollectionID string
	OtherTypeDefSummary       typedef.Summary
	OtherInstanceGUID         string
	OtherOrigin               instance.Provenance

	Message string
}

// InstancesConflict reports a GUID collision to the cohort.
func (em *Emitter) InstancesConflict(ctx context.Context, conflict InstanceConflict) error {
	return errors.Trace(em.publish(ctx, event.Event{
		Type:                       event.TypeConflictingInstances,
		TargetMetadataCollectionID: conflict.TargetMetadataCollectionID,
		TargetTypeDefSummary:       &conflict.TargetTypeDefSummary,
		TargetInstanceGUID:         conflict.TargetInstanceGUID,
		OtherMetadataCollectionID:  conflict.OtherMetadataCollectionID,
		OtherTypeDefSummary:        &conflict.OtherTypeDefSummary,
		OtherInstanceGUID:          conflict.OtherInstanceGUID,
		OtherOrigin:                conflict.OtherOrigin,
		ErrorMessage:               conflict.Message,
	}))
}

// TypeConflict reports an instance arriving with a type version older
// than the locally stored copy's.
func (em *Emitter) TypeConflict(ctx context.Context, targetCollectionID string, targetType typedef.Summary, targetInstanceGUID string, otherType typedef.Summary, message string) error {
	return errors.Trace(em.publish(ctx, event.Event{
		Type:                       event.TypeConflictingType,
		TargetMetadataCollectionID: targetCollectionID,
		TargetTypeDefSummary:       &targetType,
		TargetInstanceGUID:         targetInstanceGUID,
		OtherTypeDefSummary:        &otherType,
		ErrorMessage:               message,
	}))
}

// Cohort registry events.

// Registration announces this server joining the cohort.
func (em *Emitter) Registration(ctx context.Context, collectionName string, registrationTime time.Time) error {
	return errors.Trace(em.publish(ctx, event.Event{
		Type:                   event.TypeRegistration,
		MetadataCollectionName: collectionName,
		RegistrationTime:       &registrationTime,
	}))
}

// ReRegistration answers a refresh-registration request with this
// server's standing registration.
func (em *Emitter) ReRegistration(ctx context.Context, collectionName string, registrationTime time.Time) error {
	return errors.Trace(em.publish(ctx, event.Event{
		Type:                   event.TypeReRegistration,
		MetadataCollectionName: collectionName,
		RegistrationTime:       &registrationTime,
	}))
}

// UnRegistration announces this server permanently leaving the
// cohort.
func (em *Emitter) UnRegistration(ctx context.Context) error {
	return errors.Trace(em.publish(ctx, event.Event{Type: event.TypeUnRegistration}))
}

// RefreshRegistrationRequest asks every cohort member to re-announce
// its registration.
func (em *Emitter) RefreshRegistrationRequest(ctx context.Context) error {
	return errors.Trace(em.publish(ctx, event.Event{Type: event.TypeRefreshRegistrationRequest}))
}
