// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package local implements the repository wrapper: the single
// mediator between callers and the embedded storage engine. Every
// operation validates its parameters, authorizes the user, delegates
// to the Backend, stamps provenance on whatever comes back and, for
// state changes, announces the change to the cohort.
package local

import (
	"context"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
	"github.com/juju/metafed/repository"
)

var logger = loggo.GetLogger("metafed.repository.local")

// Config holds the wrapper's collaborators and identity.
type Config struct {
	// MetadataCollectionID is the immutable identity of the local
	// collection. Every instance created here is homed under it.
	MetadataCollectionID string

	// MetadataCollectionName is the display name stamped alongside
	// the id.
	MetadataCollectionName string

	// Backend is the storage engine beneath the wrapper.
	Backend repository.Backend

	// Types is the mirror of the type definitions this repository
	// supports. Type mutations maintain it.
	Types *typedef.Cache

	// Security authorizes operations. Nil permits everything.
	Security repository.SecurityVerifier

	// Emitter announces state changes to the cohort. Nil discards
	// change events and fails refresh requests.
	Emitter *Emitter

	// Clock stamps audit times.
	Clock clock.Clock
}

// Validate returns an error if the configuration is incomplete.
func (c Config) Validate() error {
	if c.MetadataCollectionID == "" {
		return errors.NotValidf("empty MetadataCollectionID")
	}
	if c.Backend == nil {
		return errors.NotValidf("nil Backend")
	}
	if c.Types == nil {
		return errors.NotValidf("nil Types")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Repository is the local half of the cohort: a MetadataCollection
// over the embedded Backend.
type Repository struct {
	config    Config
	helper    *repository.Helper
	validator *repository.Validator
}

var _ repository.MetadataCollection = (*Repository)(nil)

// NewRepository returns a wrapper over the configured Backend.
func NewRepository(config Config) (*Repository, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Repository{
		config:    config,
		helper:    repository.NewHelper(config.Types, config.Clock),
		validator: repository.NewValidator(config.Types),
	}, nil
}

// MetadataCollectionID implements repository.MetadataCollection.
func (r *Repository) MetadataCollectionID(ctx context.Context) (string, error) {
	return r.config.MetadataCollectionID, nil
}

var nopEmitter = &Emitter{}

func (r *Repository) events() *Emitter {
	if r.config.Emitter == nil {
		return nopEmitter
	}
	return r.config.Emitter
}

// origin is the provenance stamped on instances created at this
// collection.
func (r *Repository) origin() repository.InstanceOrigin {
	return repository.InstanceOrigin{
		MetadataCollectionID:   r.config.MetadataCollectionID,
		MetadataCollectionName: r.config.MetadataCollectionName,
		Provenance:             instance.ProvenanceLocalCohort,
	}
}

// externalOrigin is the provenance stamped on instances mastered by
// an external system with this collection as the replication point.
func (r *Repository) externalOrigin(sourceGUID, sourceName string) repository.InstanceOrigin {
	return repository.InstanceOrigin{
		MetadataCollectionID:   sourceGUID,
		MetadataCollectionName: sourceName,
		Provenance:             instance.ProvenanceExternalSource,
		ReplicatedBy:           r.config.MetadataCollectionID,
	}
}

// ownedHere reports whether this collection may change the instance:
// it is homed here, or replicated through here on behalf of an
// external master.
func (r *Repository) ownedHere(h instance.AuditHeader) bool {
	return h.MetadataCollectionID == r.config.MetadataCollectionID ||
		h.ReplicatedBy == r.config.MetadataCollectionID
}

// stampHeader completes collection identity on an outgoing header: a
// header without a home is adopted by this collection, and the local
// display name is filled in when the stored copy predates it.
func (r *Repository) stampHeader(h *instance.AuditHeader) {
	if h.MetadataCollectionID == "" {
		h.MetadataCollectionID = r.config.MetadataCollectionID
		h.Provenance = instance.ProvenanceLocalCohort
	}
	if h.MetadataCollectionID == r.config.MetadataCollectionID && h.MetadataCollectionName == "" {
		h.MetadataCollectionName = r.config.MetadataCollectionName
	}
}

func (r *Repository) stampEntity(e *instance.EntityDetail) {
	r.stampHeader(&e.AuditHeader)
	for i := range e.Classifications {
		r.stampHeader(&e.Classifications[i].AuditHeader)
	}
}

func (r *Repository) stampSummary(e *instance.EntitySummary) {
	r.stampHeader(&e.AuditHeader)
	for i := range e.Classifications {
		r.stampHeader(&e.Classifications[i].AuditHeader)
	}
}

func (r *Repository) stampProxy(p *instance.EntityProxy) {
	r.stampHeader(&p.AuditHeader)
}

func (r *Repository) stampRelationship(rel *instance.Relationship) {
	r.stampHeader(&rel.AuditHeader)
	if rel.EntityOne != nil {
		r.stampHeader(&rel.EntityOne.AuditHeader)
	}
	if rel.EntityTwo != nil {
		r.stampHeader(&rel.EntityTwo.AuditHeader)
	}
}

func (r *Repository) stampEntities(entities []instance.EntityDetail) {
	for i := range entities {
		r.stampEntity(&entities[i])
	}
}

func (r *Repository) stampRelationships(relationships []instance.Relationship) {
	for i := range relationships {
		r.stampRelationship(&relationships[i])
	}
}

func (r *Repository) stampGraph(g *instance.Graph) {
	r.stampEntities(g.Entities)
	r.stampRelationships(g.Relationships)
}

// Authorization helpers. A nil verifier permits everything.

func (r *Repository) canReadTypes(ctx context.Context, userID string) error {
	if r.config.Security == nil {
		return nil
	}
	return errors.Trace(r.config.Security.CanReadTypes(ctx, userID))
}

func (r *Repository) canWriteTypes(ctx context.Context, userID string) error {
	if r.config.Security == nil {
		return nil
	}
	return errors.Trace(r.config.Security.CanWriteTypes(ctx, userID))
}

func (r *Repository) canCreate(ctx context.Context, userID, typeName string) error {
	if r.config.Security == nil {
		return nil
	}
	return errors.Trace(r.config.Security.CanCreateInstance(ctx, userID, typeName))
}

func (r *Repository) canRead(ctx context.Context, userID string, header instance.Header) error {
	if r.config.Security == nil {
		return nil
	}
	return errors.Trace(r.config.Security.CanReadInstance(ctx, userID, header))
}

func (r *Repository) canUpdate(ctx context.Context, userID string, header instance.Header) error {
	if r.config.Security == nil {
		return nil
	}
	return errors.Trace(r.config.Security.CanUpdateInstance(ctx, userID, header))
}

func (r *Repository) canDelete(ctx context.Context, userID string, header instance.Header) error {
	if r.config.Security == nil {
		return nil
	}
	return errors.Trace(r.config.Security.CanDeleteInstance(ctx, userID, header))
}

func (r *Repository) canMaintain(ctx context.Context, userID string) error {
	if r.config.Security == nil {
		return nil
	}
	return errors.Trace(r.config.Security.CanMaintainInstances(ctx, userID))
}

// fullEntity returns the stored full entity for the GUID.
func (r *Repository) fullEntity(ctx context.Context, entityGUID string) (instance.EntityDetail, error) {
	lookup, err := r.config.Backend.LookupEntity(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	switch lookup.Kind {
	case repository.EntityFull:
		return lookup.Entity, nil
	case repository.EntityProxyOnly:
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.EntityProxyOnly,
			"entity %q is only stored as a relationship end", entityGUID)
	}
	return instance.EntityDetail{}, errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", entityGUID)
}

// entityForUpdate returns the stored full entity after checking that
// this collection may change it.
func (r *Repository) entityForUpdate(ctx context.Context, entityGUID string) (instance.EntityDetail, error) {
	e, err := r.fullEntity(ctx, entityGUID)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	if !r.ownedHere(e.AuditHeader) {
		return instance.EntityDetail{}, errors.Annotatef(coreerrors.InvalidParameter,
			"entity %q is homed in collection %q; changes must go to its home",
			entityGUID, e.MetadataCollectionID)
	}
	return e, nil
}

// relationshipForUpdate returns the stored relationship after
// checking that this collection may change it.
func (r *Repository) relationshipForUpdate(ctx context.Context, relationshipGUID string) (instance.Relationship, error) {
	rel, err := r.config.Backend.Relationship(ctx, relationshipGUID)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if !r.ownedHere(rel.AuditHeader) {
		return instance.Relationship{}, errors.Annotatef(coreerrors.InvalidParameter,
			"relationship %q is homed in collection %q; changes must go to its home",
			relationshipGUID, rel.MetadataCollectionID)
	}
	return rel, nil
}

// matchesType checks the caller-supplied type identity against the
// stored instance, a guard against operating on the wrong instance
// by GUID reuse.
func matchesType(t instance.InstanceType, typeDefGUID, typeDefName string) error {
	if t.GUID != typeDefGUID || t.Name != typeDefName {
		return errors.Annotatef(coreerrors.InvalidParameter,
			"type %q (%s) does not match the instance's type %q (%s)",
			typeDefName, typeDefGUID, t.Name, t.GUID)
	}
	return nil
}
