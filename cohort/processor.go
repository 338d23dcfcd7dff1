// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cohort

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/event"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
	"github.com/juju/metafed/repository"
	"github.com/juju/metafed/repository/local"
)

// ProcessorEmitter is the outbound surface the processor answers the
// cohort on: refresh responses, collision reports and type conflicts.
type ProcessorEmitter interface {
	EntityRefreshed(ctx context.Context, e instance.EntityDetail)
	RelationshipRefreshed(ctx context.Context, rel instance.Relationship)
	InstancesConflict(ctx context.Context, conflict local.InstanceConflict) error
	TypeConflict(ctx context.Context, targetCollectionID string, targetType typedef.Summary, targetInstanceGUID string, otherType typedef.Summary, message string) error
}

// ProcessorConfig holds the processor's identity and collaborators.
type ProcessorConfig struct {
	// LocalMetadataCollectionID identifies this member. Events it
	// originated are ignored, and instances it owns are never treated
	// as reference copies.
	LocalMetadataCollectionID string

	// Local is the wrapper over the local repository. All stores and
	// purges go through its reference-copy surface.
	Local repository.MetadataCollection

	// Types mirrors the locally supported type definitions. Learned
	// types are recorded here.
	Types *typedef.Cache

	// Rule gates which inbound instances are stored or learned.
	Rule *ExchangeRule

	// Emitter reports conflicts and answers refresh requests.
	Emitter ProcessorEmitter

	// ServerUserID is the identity stamped on maintenance operations
	// the processor performs on the local repository.
	ServerUserID string

	// Metrics, when set, counts event outcomes.
	Metrics *Collector
}

// Validate returns an error if the configuration is incomplete.
func (c ProcessorConfig) Validate() error {
	if c.LocalMetadataCollectionID == "" {
		return errors.NotValidf("empty LocalMetadataCollectionID")
	}
	if c.Local == nil {
		return errors.NotValidf("nil Local")
	}
	if c.Types == nil {
		return errors.NotValidf("nil Types")
	}
	if c.Rule == nil {
		return errors.NotValidf("nil Rule")
	}
	if c.Emitter == nil {
		return errors.NotValidf("nil Emitter")
	}
	if c.ServerUserID == "" {
		return errors.NotValidf("empty ServerUserID")
	}
	return nil
}

// Processor consumes inbound cohort events about instances and keeps
// the local store of reference copies in step with the cohort. A
// failure processing one event is logged and the event dropped;
// nothing propagates to the delivery loop.
//
// Events about the same GUID are serialized with a per-GUID lock so
// the compare-and-store ladder never races itself; events about
// different GUIDs proceed concurrently.
type Processor struct {
	config ProcessorConfig
	locks  *kmutex.Kmutex
}

// NewProcessor returns a processor storing into the local repository.
func NewProcessor(config ProcessorConfig) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Processor{
		config: config,
		locks:  kmutex.New(),
	}, nil
}

// ProcessInstanceEvent dispatches one instance-category event. Events
// originated by this member are ignored.
func (p *Processor) ProcessInstanceEvent(ctx context.Context, ev event.Event) {
	if ev.Originator.MetadataCollectionID == p.config.LocalMetadataCollectionID {
		return
	}
	var err error
	switch ev.Type {
	case event.TypeNewEntity, event.TypeUpdatedEntity, event.TypeUndoneEntity,
		event.TypeClassifiedEntity, event.TypeReclassifiedEntity, event.TypeDeclassifiedEntity,
		event.TypeDeletedEntity, event.TypeRestoredEntity, event.TypeReIdentifiedEntity,
		event.TypeReTypedEntity, event.TypeReHomedEntity, event.TypeRefreshedEntity:
		err = p.updateReferenceEntity(ctx, ev)
	case event.TypeNewRelationship, event.TypeUpdatedRelationship, event.TypeUndoneRelationship,
		event.TypeDeletedRelationship, event.TypeRestoredRelationship, event.TypeReIdentifiedRelationship,
		event.TypeReTypedRelationship, event.TypeReHomedRelationship, event.TypeRefreshedRelationship:
		err = p.updateReferenceRelationship(ctx, ev)
	case event.TypePurgedEntity:
		err = p.purgeEntityCopy(ctx, ev)
	case event.TypePurgedRelationship:
		err = p.purgeRelationshipCopy(ctx, ev)
	case event.TypeRefreshEntityRequest:
		err = p.serveEntityRefresh(ctx, ev)
	case event.TypeRefreshRelationshipRequest:
		err = p.serveRelationshipRefresh(ctx, ev)
	case event.TypeBatchInstances:
		err = p.saveBatch(ctx, ev)
	case event.TypeConflictingInstances:
		err = p.resolveInstanceConflict(ctx, ev)
	case event.TypeConflictingType:
		err = p.resolveTypeConflict(ctx, ev)
	default:
		logger.Tracef("ignoring %s event from %q", ev.Type, ev.Originator.MetadataCollectionID)
		return
	}
	if err != nil {
		logger.Errorf("processing %s event from %q: %v", ev.Type, ev.Originator.MetadataCollectionID, err)
		p.config.Metrics.eventDropped(ev.Type, "error")
		return
	}
	p.config.Metrics.eventProcessed(ev.Type)
}

// ProcessTypeDefEvent adopts cohort type definitions into the local
// cache, within what the exchange rule allows.
func (p *Processor) ProcessTypeDefEvent(ctx context.Context, ev event.Event) {
	if ev.Originator.MetadataCollectionID == p.config.LocalMetadataCollectionID {
		return
	}
	if !p.config.Rule.LearnsTypeDefs() {
		p.config.Metrics.eventDropped(ev.Type, "filtered")
		return
	}
	var err error
	switch ev.Type {
	case event.TypeNewTypeDef:
		err = p.learnTypeDef(ev)
	case event.TypeNewAttributeTypeDef:
		err = p.learnAttributeTypeDef(ev)
	case event.TypeUpdatedTypeDef:
		err = p.applyTypeDefUpdate(ev)
	default:
		logger.Tracef("ignoring %s event from %q", ev.Type, ev.Originator.MetadataCollectionID)
		return
	}
	if err != nil {
		logger.Errorf("processing %s event from %q: %v", ev.Type, ev.Originator.MetadataCollectionID, err)
		p.config.Metrics.eventDropped(ev.Type, "error")
		return
	}
	p.config.Metrics.eventProcessed(ev.Type)
}

// ownedLocally reports whether the instance is this member's to
// change: homed here or replicated through here.
func (p *Processor) ownedLocally(h instance.AuditHeader) bool {
	return h.MetadataCollectionID == p.config.LocalMetadataCollectionID ||
		h.ReplicatedBy == p.config.LocalMetadataCollectionID
}

// verdict is the outcome of comparing an inbound instance against the
// stored copy.
type verdict int

const (
	verdictAccept verdict = iota
	verdictStale
	verdictCollision
	verdictTypeRegression
)

// compareStored runs the ladder an inbound copy must climb before it
// replaces the stored one: same creation moment, newer version, type
// version not regressing.
func compareStored(incoming, stored instance.Header) verdict {
	if !incoming.CreateTime.Equal(stored.CreateTime) {
		return verdictCollision
	}
	if incoming.Version <= stored.Version {
		return verdictStale
	}
	if incoming.Type.Version < stored.Type.Version {
		return verdictTypeRegression
	}
	return verdictAccept
}

func (p *Processor) updateReferenceEntity(ctx context.Context, ev event.Event) error {
	if ev.Entity == nil {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without entity payload", ev.Type)
	}
	e := ev.Entity.Copy()
	if e.MetadataCollectionID == "" {
		return errors.Annotatef(coreerrors.InvalidEntity,
			"entity %q arrived without a home metadata collection", e.GUID)
	}
	if p.ownedLocally(e.AuditHeader) {
		return errors.Annotatef(coreerrors.HomeEntity,
			"entity %q from %q claims to be homed here", e.GUID, ev.Originator.MetadataCollectionID)
	}

	p.locks.Lock(e.GUID)
	defer p.locks.Unlock(e.GUID)

	stored, err := p.config.Local.IsEntityKnown(ctx, p.config.ServerUserID, e.GUID)
	if err != nil {
		return errors.Trace(err)
	}
	if stored != nil {
		switch compareStored(e.Header, stored.Header) {
		case verdictCollision:
			p.config.Metrics.conflictReported("instances")
			return errors.Trace(p.reportCollision(ctx, ev, e.Header, stored.Header, stored.Provenance, typedef.CategoryEntity))
		case verdictStale:
			logger.Tracef("dropping %s for entity %q: version %d does not advance stored version %d",
				ev.Type, e.GUID, e.Version, stored.Version)
			p.config.Metrics.eventDropped(ev.Type, "stale")
			return nil
		case verdictTypeRegression:
			p.config.Metrics.conflictReported("type")
			return errors.Trace(p.reportTypeRegression(ctx, ev, e.Header, stored.Header, typedef.CategoryEntity))
		}
		p.auditDrift(e.Header, stored.Header)
	}

	if !p.config.Rule.ProcessInstanceEvent(e.Type) {
		p.config.Metrics.eventDropped(ev.Type, "filtered")
		return nil
	}
	if err := p.ensureTypeKnown(e.Type, typedef.CategoryEntity); err != nil {
		if errors.Is(err, coreerrors.TypeDefNotKnown) {
			logger.Debugf("not storing entity %q: %v", e.GUID, err)
			p.config.Metrics.eventDropped(ev.Type, "unknown-type")
			return nil
		}
		return errors.Trace(err)
	}
	if err := p.config.Local.SaveEntityReferenceCopy(ctx, p.config.ServerUserID, e); err != nil {
		return errors.Trace(err)
	}
	p.config.Metrics.referenceCopies("saved", 1)

	if ev.Type == event.TypeReIdentifiedEntity && ev.OriginalInstanceGUID != "" && ev.OriginalInstanceGUID != e.GUID {
		if err := p.discardEntityCopy(ctx, ev.OriginalInstanceGUID, e.Type.GUID, e.Type.Name, e.MetadataCollectionID); err != nil {
			logger.Errorf("discarding superseded copy %q: %v", ev.OriginalInstanceGUID, err)
		}
	}
	return nil
}

func (p *Processor) updateReferenceRelationship(ctx context.Context, ev event.Event) error {
	if ev.Relationship == nil {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without relationship payload", ev.Type)
	}
	rel := ev.Relationship.Copy()
	if rel.MetadataCollectionID == "" {
		return errors.Annotatef(coreerrors.InvalidRelationship,
			"relationship %q arrived without a home metadata collection", rel.GUID)
	}
	if p.ownedLocally(rel.AuditHeader) {
		return errors.Annotatef(coreerrors.HomeRelationship,
			"relationship %q from %q claims to be homed here", rel.GUID, ev.Originator.MetadataCollectionID)
	}

	p.locks.Lock(rel.GUID)
	defer p.locks.Unlock(rel.GUID)

	stored, err := p.config.Local.IsRelationshipKnown(ctx, p.config.ServerUserID, rel.GUID)
	if err != nil {
		return errors.Trace(err)
	}
	if stored != nil {
		switch compareStored(rel.Header, stored.Header) {
		case verdictCollision:
			p.config.Metrics.conflictReported("instances")
			return errors.Trace(p.reportCollision(ctx, ev, rel.Header, stored.Header, stored.Provenance, typedef.CategoryRelationship))
		case verdictStale:
			logger.Tracef("dropping %s for relationship %q: version %d does not advance stored version %d",
				ev.Type, rel.GUID, rel.Version, stored.Version)
			p.config.Metrics.eventDropped(ev.Type, "stale")
			return nil
		case verdictTypeRegression:
			p.config.Metrics.conflictReported("type")
			return errors.Trace(p.reportTypeRegression(ctx, ev, rel.Header, stored.Header, typedef.CategoryRelationship))
		}
		p.auditDrift(rel.Header, stored.Header)
	}

	if !p.config.Rule.ProcessInstanceEvent(rel.Type) {
		p.config.Metrics.eventDropped(ev.Type, "filtered")
		return nil
	}
	if err := p.ensureTypeKnown(rel.Type, typedef.CategoryRelationship); err != nil {
		if errors.Is(err, coreerrors.TypeDefNotKnown) {
			logger.Debugf("not storing relationship %q: %v", rel.GUID, err)
			p.config.Metrics.eventDropped(ev.Type, "unknown-type")
			return nil
		}
		return errors.Trace(err)
	}
	if err := p.config.Local.SaveRelationshipReferenceCopy(ctx, p.config.ServerUserID, rel); err != nil {
		return errors.Trace(err)
	}
	p.config.Metrics.referenceCopies("saved", 1)

	if ev.Type == event.TypeReIdentifiedRelationship && ev.OriginalInstanceGUID != "" && ev.OriginalInstanceGUID != rel.GUID {
		if err := p.discardRelationshipCopy(ctx, ev.OriginalInstanceGUID, rel.Type.GUID, rel.Type.Name, rel.MetadataCollectionID); err != nil {
			logger.Errorf("discarding superseded copy %q: %v", ev.OriginalInstanceGUID, err)
		}
	}
	return nil
}

// auditDrift notes home and type movement on an accepted copy. Both
// are legitimate (re-home, re-type) but worth a line in the log.
func (p *Processor) auditDrift(incoming, stored instance.Header) {
	if stored.MetadataCollectionID != incoming.MetadataCollectionID {
		logger.Infof("instance %q moved home from %q to %q",
			incoming.GUID, stored.MetadataCollectionID, incoming.MetadataCollectionID)
	}
	if stored.Type.GUID != incoming.Type.GUID {
		logger.Infof("instance %q changed type from %q to %q",
			incoming.GUID, stored.Type.Name, incoming.Type.Name)
	}
}

// ensureTypeKnown admits the instance's type: already active, or
// adopted as a learned definition when the rule allows it. A learned
// definition carries no attributes, so it admits any properties until
// the real definition arrives.
func (p *Processor) ensureTypeKnown(t instance.InstanceType, category typedef.Category) error {
	if p.config.Types.IsActive(t.GUID) {
		return nil
	}
	if !p.config.Rule.LearnsUnknownTypes() {
		return errors.Annotatef(coreerrors.TypeDefNotKnown, "type %q (%s)", t.Name, t.GUID)
	}
	def := typedef.TypeDef{
		Summary: typedef.Summary{
			GUID:     t.GUID,
			Name:     t.Name,
			Version:  t.Version,
			Category: category,
		},
	}
	return errors.Trace(p.config.Types.MarkLearned(def))
}

func typeSummary(t instance.InstanceType, category typedef.Category) typedef.Summary {
	return typedef.Summary{GUID: t.GUID, Name: t.Name, Version: t.Version, Category: category}
}

// reportCollision answers a GUID collision: the incoming copy was
// created at a different moment than the stored one, so they are
// different instances fighting over one identity. The event names the
// sender's copy as the one in error and carries our view alongside.
func (p *Processor) reportCollision(ctx context.Context, ev event.Event, incoming, stored instance.Header, storedOrigin instance.Provenance, category typedef.Category) error {
	logger.Warningf("instance %q from %q collides with the stored copy: created %s there, %s here",
		incoming.GUID, ev.Originator.MetadataCollectionID, incoming.CreateTime, stored.CreateTime)
	return errors.Trace(p.config.Emitter.InstancesConflict(ctx, local.InstanceConflict{
		TargetMetadataCollectionID: ev.Originator.MetadataCollectionID,
		TargetTypeDefSummary:       typeSummary(incoming.Type, category),
		TargetInstanceGUID:         incoming.GUID,
		OtherMetadataCollectionID:  stored.MetadataCollectionID,
		OtherTypeDefSummary:        typeSummary(stored.Type, category),
		OtherInstanceGUID:          stored.GUID,
		OtherOrigin:                storedOrigin,
		Message:                    fmt.Sprintf("instance %q exists in two collections with different create times", incoming.GUID),
	}))
}

// reportTypeRegression answers an inbound copy whose type version is
// older than the stored copy's.
func (p *Processor) reportTypeRegression(ctx context.Context, ev event.Event, incoming, stored instance.Header, category typedef.Category) error {
	logger.Warningf("instance %q from %q carries type %q version %d, older than the stored version %d",
		incoming.GUID, ev.Originator.MetadataCollectionID,
		incoming.Type.Name, incoming.Type.Version, stored.Type.Version)
	return errors.Trace(p.config.Emitter.TypeConflict(ctx,
		ev.Originator.MetadataCollectionID,
		typeSummary(incoming.Type, category),
		incoming.GUID,
		typeSummary(stored.Type, category),
		fmt.Sprintf("type version %d regresses the stored version %d", incoming.Type.Version, stored.Type.Version),
	))
}

func (p *Processor) purgeEntityCopy(ctx context.Context, ev event.Event) error {
	if ev.InstanceGUID == "" {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without instance GUID", ev.Type)
	}
	p.locks.Lock(ev.InstanceGUID)
	defer p.locks.Unlock(ev.InstanceGUID)
	return errors.Trace(p.discardEntityCopy(ctx, ev.InstanceGUID,
		ev.TypeDefGUID, ev.TypeDefName, ev.Originator.MetadataCollectionID))
}

func (p *Processor) purgeRelationshipCopy(ctx context.Context, ev event.Event) error {
	if ev.InstanceGUID == "" {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without instance GUID", ev.Type)
	}
	p.locks.Lock(ev.InstanceGUID)
	defer p.locks.Unlock(ev.InstanceGUID)
	return errors.Trace(p.discardRelationshipCopy(ctx, ev.InstanceGUID,
		ev.TypeDefGUID, ev.TypeDefName, ev.Originator.MetadataCollectionID))
}

// discardEntityCopy removes a reference copy if one is stored. A
// missing copy and a locally homed instance are both fine: there is
// nothing of the cohort's to remove.
func (p *Processor) discardEntityCopy(ctx context.Context, guid, typeDefGUID, typeDefName, home string) error {
	err := p.config.Local.PurgeEntityReferenceCopy(ctx, p.config.ServerUserID, guid, typeDefGUID, typeDefName, home)
	if errors.Is(err, coreerrors.EntityNotKnown) || errors.Is(err, coreerrors.HomeEntity) {
		return nil
	}
	if err != nil {
		return errors.Trace(err)
	}
	p.config.Metrics.referenceCopies("purged", 1)
	return nil
}

func (p *Processor) discardRelationshipCopy(ctx context.Context, guid, typeDefGUID, typeDefName, home string) error {
	err := p.config.Local.PurgeRelationshipReferenceCopy(ctx, p.config.ServerUserID, guid, typeDefGUID, typeDefName, home)
	if errors.Is(err, coreerrors.RelationshipNotKnown) || errors.Is(err, coreerrors.HomeRelationship) {
		return nil
	}
	if err != nil {
		return errors.Trace(err)
	}
	p.config.Metrics.referenceCopies("purged", 1)
	return nil
}

// serveEntityRefresh answers a refresh request for an entity this
// member owns by publishing its current state. Requests for entities
// owned elsewhere are left for their authority.
func (p *Processor) serveEntityRefresh(ctx context.Context, ev event.Event) error {
	if ev.InstanceGUID == "" {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without instance GUID", ev.Type)
	}
	e, err := p.config.Local.IsEntityKnown(ctx, p.config.ServerUserID, ev.InstanceGUID)
	if err != nil {
		return errors.Trace(err)
	}
	if e == nil || !p.ownedLocally(e.AuditHeader) {
		return nil
	}
	p.config.Emitter.EntityRefreshed(ctx, *e)
	p.config.Metrics.refreshServed()
	return nil
}

func (p *Processor) serveRelationshipRefresh(ctx context.Context, ev event.Event) error {
	if ev.InstanceGUID == "" {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without instance GUID", ev.Type)
	}
	rel, err := p.config.Local.IsRelationshipKnown(ctx, p.config.ServerUserID, ev.InstanceGUID)
	if err != nil {
		return errors.Trace(err)
	}
	if rel == nil || !p.ownedLocally(rel.AuditHeader) {
		return nil
	}
	p.config.Emitter.RelationshipRefreshed(ctx, *rel)
	p.config.Metrics.refreshServed()
	return nil
}

// saveBatch stores every admitted instance of a BATCH_INSTANCES
// event. Batches carry authoritative refresh content, so there is no
// version ladder; the exchange rule and type gate still apply per
// instance.
func (p *Processor) saveBatch(ctx context.Context, ev event.Event) error {
	if ev.InstanceBatch == nil {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without instance batch", ev.Type)
	}
	var graph instance.Graph
	for _, e := range ev.InstanceBatch.Entities {
		if p.ownedLocally(e.AuditHeader) || !p.config.Rule.ProcessInstanceEvent(e.Type) {
			continue
		}
		if err := p.ensureTypeKnown(e.Type, typedef.CategoryEntity); err != nil {
			logger.Debugf("skipping batched entity %q: %v", e.GUID, err)
			continue
		}
		graph.Entities = append(graph.Entities, e.Copy())
	}
	for _, rel := range ev.InstanceBatch.Relationships {
		if p.ownedLocally(rel.AuditHeader) || !p.config.Rule.ProcessInstanceEvent(rel.Type) {
			continue
		}
		if err := p.ensureTypeKnown(rel.Type, typedef.CategoryRelationship); err != nil {
			logger.Debugf("skipping batched relationship %q: %v", rel.GUID, err)
			continue
		}
		graph.Relationships = append(graph.Relationships, rel.Copy())
	}
	if graph.Empty() {
		return nil
	}
	if err := p.config.Local.SaveInstanceReferenceCopies(ctx, p.config.ServerUserID, graph); err != nil {
		return errors.Trace(err)
	}
	p.config.Metrics.referenceCopies("saved", len(graph.Entities)+len(graph.Relationships))
	return nil
}

// resolveInstanceConflict reacts to a GUID collision report. When the
// report targets this member, the local instance yields the identity:
// it moves to a freshly generated GUID and the wrapper announces the
// re-identification. Otherwise any stored copy of the disputed GUID
// is discarded until its home settles the collision.
func (p *Processor) resolveInstanceConflict(ctx context.Context, ev event.Event) error {
	if ev.TargetInstanceGUID == "" || ev.TargetTypeDefSummary == nil {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without a target instance", ev.Type)
	}
	target := *ev.TargetTypeDefSummary
	logger.Warningf("cohort member %q reports instance %q in %q conflicts with %q in %q: %s",
		ev.Originator.MetadataCollectionID, ev.TargetInstanceGUID, ev.TargetMetadataCollectionID,
		ev.OtherInstanceGUID, ev.OtherMetadataCollectionID, ev.ErrorMessage)

	if ev.TargetMetadataCollectionID != p.config.LocalMetadataCollectionID {
		p.locks.Lock(ev.TargetInstanceGUID)
		defer p.locks.Unlock(ev.TargetInstanceGUID)
		if target.Category == typedef.CategoryRelationship {
			return errors.Trace(p.discardRelationshipCopy(ctx, ev.TargetInstanceGUID,
				target.GUID, target.Name, ev.TargetMetadataCollectionID))
		}
		return errors.Trace(p.discardEntityCopy(ctx, ev.TargetInstanceGUID,
			target.GUID, target.Name, ev.TargetMetadataCollectionID))
	}

	newGUID := uuid.NewString()
	if target.Category == typedef.CategoryRelationship {
		if _, err := p.config.Local.ReIdentifyRelationship(ctx, p.config.ServerUserID,
			target.GUID, target.Name, ev.TargetInstanceGUID, newGUID); err != nil {
			return errors.Trace(err)
		}
	} else {
		if _, err := p.config.Local.ReIdentifyEntity(ctx, p.config.ServerUserID,
			target.GUID, target.Name, ev.TargetInstanceGUID, newGUID); err != nil {
			return errors.Trace(err)
		}
	}
	logger.Infof("re-identified instance %q as %q to resolve a GUID collision", ev.TargetInstanceGUID, newGUID)
	return nil
}

// resolveTypeConflict reacts to a type-version conflict report. A
// locally homed instance is left for administrators to align; a
// reference copy of the disputed instance is discarded.
func (p *Processor) resolveTypeConflict(ctx context.Context, ev event.Event) error {
	if ev.TargetInstanceGUID == "" || ev.TargetTypeDefSummary == nil {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without a target instance", ev.Type)
	}
	target := *ev.TargetTypeDefSummary
	logger.Warningf("cohort member %q reports a type conflict on instance %q (%s): %s",
		ev.Originator.MetadataCollectionID, ev.TargetInstanceGUID, target.Name, ev.ErrorMessage)
	if ev.TargetMetadataCollectionID == p.config.LocalMetadataCollectionID {
		return nil
	}
	p.locks.Lock(ev.TargetInstanceGUID)
	defer p.locks.Unlock(ev.TargetInstanceGUID)
	if target.Category == typedef.CategoryRelationship {
		return errors.Trace(p.discardRelationshipCopy(ctx, ev.TargetInstanceGUID,
			target.GUID, target.Name, ev.TargetMetadataCollectionID))
	}
	return errors.Trace(p.discardEntityCopy(ctx, ev.TargetInstanceGUID,
		target.GUID, target.Name, ev.TargetMetadataCollectionID))
}

func (p *Processor) learnTypeDef(ev event.Event) error {
	if ev.TypeDef == nil {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without type definition", ev.Type)
	}
	if p.config.Types.IsActive(ev.TypeDef.GUID) {
		return nil
	}
	return errors.Trace(p.config.Types.MarkLearned(*ev.TypeDef))
}

func (p *Processor) learnAttributeTypeDef(ev event.Event) error {
	if ev.AttributeTypeDef == nil {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without attribute type definition", ev.Type)
	}
	if _, err := p.config.Types.AttributeTypeDefByGUID(ev.AttributeTypeDef.GUID); err == nil {
		return nil
	}
	return errors.Trace(p.config.Types.AddAttributeTypeDef(*ev.AttributeTypeDef))
}

func (p *Processor) applyTypeDefUpdate(ev event.Event) error {
	if ev.TypeDef == nil {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s event without type definition", ev.Type)
	}
	if !p.config.Types.IsLearned(ev.TypeDef.GUID) {
		// Locally administered definitions evolve through the local
		// type maintenance surface, not the cohort.
		return nil
	}
	return errors.Trace(p.config.Types.UpdateTypeDef(*ev.TypeDef))
}

// Retrieval hand-off: the federator offers every instance a remote
// member returned from a read. An unknown instance is not stored from
// the query result, which may be filtered by the remote's security
// rules; instead the home is asked to publish it properly.

// ProcessRetrievedEntitySummary implements the federator's retrieval
// hand-off for entity summaries.
func (p *Processor) ProcessRetrievedEntitySummary(ctx context.Context, userID, sourceCollectionID string, e instance.EntitySummary) {
	p.maybeRefreshEntity(ctx, e.Header)
}

// ProcessRetrievedEntityDetail implements the federator's retrieval
// hand-off for entities.
func (p *Processor) ProcessRetrievedEntityDetail(ctx context.Context, userID, sourceCollectionID string, e instance.EntityDetail) {
	p.maybeRefreshEntity(ctx, e.Header)
}

// ProcessRetrievedRelationship implements the federator's retrieval
// hand-off for relationships.
func (p *Processor) ProcessRetrievedRelationship(ctx context.Context, userID, sourceCollectionID string, rel instance.Relationship) {
	p.maybeRefreshRelationship(ctx, rel.Header)
}

func (p *Processor) maybeRefreshEntity(ctx context.Context, h instance.Header) {
	if h.MetadataCollectionID == "" || p.ownedLocally(h.AuditHeader) {
		return
	}
	if !p.config.Rule.LearnInstanceEvent(h.Type) {
		return
	}
	stored, err := p.config.Local.IsEntityKnown(ctx, p.config.ServerUserID, h.GUID)
	if err != nil {
		logger.Errorf("checking entity %q before requesting refresh: %v", h.GUID, err)
		return
	}
	if stored != nil {
		return
	}
	if err := p.config.Local.RefreshEntityReferenceCopy(ctx, p.config.ServerUserID,
		h.GUID, h.Type.GUID, h.Type.Name, h.MetadataCollectionID); err != nil {
		logger.Errorf("requesting refresh of entity %q from %q: %v", h.GUID, h.MetadataCollectionID, err)
	}
}

func (p *Processor) maybeRefreshRelationship(ctx context.Context, h instance.Header) {
	if h.MetadataCollectionID == "" || p.ownedLocally(h.AuditHeader) {
		return
	}
	if !p.config.Rule.LearnInstanceEvent(h.Type) {
		return
	}
	stored, err := p.config.Local.IsRelationshipKnown(ctx, p.config.ServerUserID, h.GUID)
	if err != nil {
		logger.Errorf("checking relationship %q before requesting refresh: %v", h.GUID, err)
		return
	}
	if stored != nil {
		return
	}
	if err := p.config.Local.RefreshRelationshipReferenceCopy(ctx, p.config.ServerUserID,
		h.GUID, h.Type.GUID, h.Type.Name, h.MetadataCollectionID); err != nil {
		logger.Errorf("requesting refresh of relationship %q from %q: %v", h.GUID, h.MetadataCollectionID, err)
	}
}
