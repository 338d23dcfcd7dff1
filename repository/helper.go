// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package repository

import (
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
)

// Helper builds well-formed instances: skeleton entities and
// relationships with their audit trail stamped, proxies cut down to
// unique properties, and new versions of existing instances.
type Helper struct {
	types *typedef.Cache
	clock clock.Clock
}

// NewHelper returns a helper drawing type knowledge from the given
// cache and timestamps from the given clock.
func NewHelper(types *typedef.Cache, clk clock.Clock) *Helper {
	return &Helper{types: types, clock: clk}
}

// NewEntity returns a version-1 entity of the named type, stamped
// with the given origin. Classifications are stamped individually;
// they carry the same origin as the entity.
func (h *Helper) NewEntity(userID string, origin InstanceOrigin, args AddEntityArgs) (instance.EntityDetail, error) {
	def, err := h.entityTypeDef(args.TypeName)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	status, err := initialStatus(def, args.InitialStatus)
	if err != nil {
		return instance.EntityDetail{}, errors.Trace(err)
	}
	entity := instance.EntityDetail{
		EntitySummary: instance.EntitySummary{
			Header: instance.Header{
				AuditHeader: h.newAuditHeader(userID, origin, def, status),
				GUID:        uuid.NewString(),
			},
		},
		Properties: args.Properties.Copy(),
	}
	for _, c := range args.Classifications {
		stamped, err := h.NewClassification(userID, origin, c.Name, c.Properties)
		if err != nil {
			return instance.EntityDetail{}, errors.Trace(err)
		}
		entity.SetClassification(stamped)
	}
	return entity, nil
}

// NewRelationship returns a version-1 relationship of the named
// type, owning copies of the two end proxies.
func (h *Helper) NewRelationship(userID string, origin InstanceOrigin, args AddRelationshipArgs, endOne, endTwo instance.EntityProxy) (instance.Relationship, error) {
	def, err := h.types.TypeDefByName(args.TypeName)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	if def.Category != typedef.CategoryRelationship {
		return instance.Relationship{}, errors.Annotatef(coreerrors.TypeError,
			"%q is a %s, not a relationship type", args.TypeName, def.Category)
	}
	status, err := initialStatus(def, args.InitialStatus)
	if err != nil {
		return instance.Relationship{}, errors.Trace(err)
	}
	one := endOne.Copy()
	two := endTwo.Copy()
	return instance.Relationship{
		Header: instance.Header{
			AuditHeader: h.newAuditHeader(userID, origin, def, status),
			GUID:        uuid.NewString(),
		},
		Properties: args.Properties.Copy(),
		EntityOne:  &one,
		EntityTwo:  &two,
	}, nil
}

// NewClassification returns a stamped classification of the named
// classification type.
func (h *Helper) NewClassification(userID string, origin InstanceOrigin, name string, properties instance.Properties) (instance.Classification, error) {
	def, err := h.types.TypeDefByName(name)
	if err != nil {
		return instance.Classification{}, errors.Annotatef(coreerrors.ClassificationError,
			"classification type %q is not defined", name)
	}
	if def.Category != typedef.CategoryClassification {
		return instance.Classification{}, errors.Annotatef(coreerrors.ClassificationError,
			"%q is a %s, not a classification type", name, def.Category)
	}
	return instance.Classification{
		AuditHeader: h.newAuditHeader(userID, origin, def, instance.StatusActive),
		Name:        name,
		Origin:      instance.OriginAssigned,
		Properties:  properties.Copy(),
	}, nil
}

// NewEntityProxy cuts an entity down to a proxy: its header plus the
// properties its type declares unique.
func (h *Helper) NewEntityProxy(entity instance.EntityDetail) (instance.EntityProxy, error) {
	if entity.GUID == "" {
		return instance.EntityProxy{}, errors.Annotatef(coreerrors.InvalidEntity, "entity without GUID")
	}
	proxy := instance.EntityProxy{Header: entity.Header.Copy()}
	def, err := h.types.TypeDefByGUID(entity.Type.GUID)
	if err != nil {
		// An unknown type carries no unique-attribute knowledge; the
		// proxy is identity only.
		return proxy, nil
	}
	for _, name := range def.UniqueAttributes() {
		if value, ok := entity.Properties[name]; ok {
			if proxy.UniqueProperties == nil {
				proxy.UniqueProperties = make(instance.Properties)
			}
			proxy.UniqueProperties[name] = value.Copy()
		}
	}
	return proxy, nil
}

// Advance stamps the audit trail for the next version of an
// instance: version incremented, update time and updater set.
func (h *Helper) Advance(header *instance.AuditHeader, userID string) {
	now := h.clock.Now().UTC()
	header.UpdatedBy = userID
	header.UpdateTime = &now
	header.Version++
}

func (h *Helper) newAuditHeader(userID string, origin InstanceOrigin, def typedef.TypeDef, status instance.Status) instance.AuditHeader {
	return instance.AuditHeader{
		Type:                   def.InstanceType(),
		Provenance:             origin.Provenance,
		MetadataCollectionID:   origin.MetadataCollectionID,
		MetadataCollectionName: origin.MetadataCollectionName,
		ReplicatedBy:           origin.ReplicatedBy,
		CreatedBy:              userID,
		CreateTime:             h.clock.Now().UTC(),
		Version:                1,
		Status:                 status,
	}
}

func (h *Helper) entityTypeDef(typeName string) (typedef.TypeDef, error) {
	def, err := h.types.TypeDefByName(typeName)
	if err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	if def.Category != typedef.CategoryEntity {
		return typedef.TypeDef{}, errors.Annotatef(coreerrors.TypeError,
			"%q is a %s, not an entity type", typeName, def.Category)
	}
	return def, nil
}

func initialStatus(def typedef.TypeDef, requested instance.Status) (instance.Status, error) {
	status := requested
	if status == instance.StatusUnknown {
		status = def.InitialStatus
	}
	if status == instance.StatusUnknown {
		status = instance.StatusActive
	}
	if status.Deleted() {
		return "", errors.Annotatef(coreerrors.StatusNotSupported,
			"new instances cannot start deleted")
	}
	if !def.AllowsStatus(status) {
		return "", errors.Annotatef(coreerrors.StatusNotSupported,
			"type %q does not permit status %q", def.Name, status)
	}
	return status, nil
}
