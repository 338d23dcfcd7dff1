// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package repository

import (
	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
)

// Validator performs the structural checks the local wrapper runs
// before delegating to storage. It holds no state beyond the type
// cache it checks types against.
type Validator struct {
	types *typedef.Cache
}

// NewValidator returns a validator checking types against the given
// cache.
func NewValidator(types *typedef.Cache) *Validator {
	return &Validator{types: types}
}

// ValidateUserID rejects an empty user id.
func (v *Validator) ValidateUserID(userID string) error {
	if userID == "" {
		return errors.Annotatef(coreerrors.InvalidParameter, "userID is empty")
	}
	return nil
}

// ValidateGUID rejects an empty identifier, naming the offending
// parameter.
func (v *Validator) ValidateGUID(parameterName, guid string) error {
	if guid == "" {
		return errors.Annotatef(coreerrors.InvalidParameter, "%s is empty", parameterName)
	}
	return nil
}

// ValidatePaging rejects negative paging bounds.
func (v *Validator) ValidatePaging(p Paging) error {
	if p.FromElement < 0 {
		return errors.Annotatef(coreerrors.PagingError, "fromElement %d is negative", p.FromElement)
	}
	if p.PageSize < 0 {
		return errors.Annotatef(coreerrors.PagingError, "pageSize %d is negative", p.PageSize)
	}
	return nil
}

// ValidateTypeDef rejects a structurally invalid type definition.
func (v *Validator) ValidateTypeDef(def typedef.TypeDef) error {
	if err := def.Validate(); err != nil {
		return errors.Annotatef(coreerrors.InvalidTypeDef, "%v", err)
	}
	return nil
}

// ValidateAttributeTypeDef rejects a structurally invalid attribute
// type definition.
func (v *Validator) ValidateAttributeTypeDef(def typedef.AttributeTypeDef) error {
	if err := def.Validate(); err != nil {
		return errors.Annotatef(coreerrors.InvalidTypeDef, "%v", err)
	}
	return nil
}

// KnownType resolves an instance's type reference against the cache,
// requiring the expected category. The instance's type version may
// lag the cached definition but its name must agree.
func (v *Validator) KnownType(t instance.InstanceType, category typedef.Category) (typedef.TypeDef, error) {
	if t.GUID == "" || t.Name == "" {
		return typedef.TypeDef{}, errors.Annotatef(coreerrors.TypeError, "instance type is incomplete")
	}
	def, err := v.types.TypeDefByGUID(t.GUID)
	if err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	if def.Name != t.Name {
		return typedef.TypeDef{}, errors.Annotatef(coreerrors.TypeError,
			"type %q is defined as %q", t.Name, def.Name)
	}
	if def.Category != category {
		return typedef.TypeDef{}, errors.Annotatef(coreerrors.TypeError,
			"type %q is a %s, expected %s", t.Name, def.Category, category)
	}
	return def, nil
}

// ValidateStatus rejects a status the type does not permit.
func (v *Validator) ValidateStatus(def typedef.TypeDef, status instance.Status) error {
	if err := status.Validate(); err != nil {
		return errors.Annotatef(coreerrors.StatusNotSupported, "%v", err)
	}
	if !def.AllowsStatus(status) {
		return errors.Annotatef(coreerrors.StatusNotSupported,
			"type %q does not permit status %q", def.Name, status)
	}
	return nil
}

// ValidateProperties rejects property names the type does not
// declare. A type declaring no attributes is open and admits any
// property.
func (v *Validator) ValidateProperties(def typedef.TypeDef, properties instance.Properties) error {
	if len(def.Attributes) == 0 {
		return nil
	}
	for name := range properties {
		if _, ok := def.Attribute(name); !ok {
			return errors.Annotatef(coreerrors.PropertyError,
				"type %q does not declare property %q", def.Name, name)
		}
	}
	return nil
}

// ValidateEntity rejects a structurally invalid entity.
func (v *Validator) ValidateEntity(e instance.EntityDetail) error {
	if err := v.validateHeader(e.Header); err != nil {
		return errors.Annotatef(coreerrors.InvalidEntity, "%v", err)
	}
	return nil
}

// ValidateEntityProxy rejects a structurally invalid proxy. Proxies
// stand in for instances homed elsewhere, so a home collection id is
// required.
func (v *Validator) ValidateEntityProxy(p instance.EntityProxy) error {
	if err := v.validateHeader(p.Header); err != nil {
		return errors.Annotatef(coreerrors.InvalidEntity, "proxy %v", err)
	}
	if p.MetadataCollectionID == "" {
		return errors.Annotatef(coreerrors.InvalidEntity,
			"proxy %q has no home metadata collection", p.GUID)
	}
	return nil
}

// ValidateRelationship rejects a structurally invalid relationship,
// including one missing either end.
func (v *Validator) ValidateRelationship(r instance.Relationship) error {
	if err := v.validateHeader(r.Header); err != nil {
		return errors.Annotatef(coreerrors.InvalidRelationship, "%v", err)
	}
	if r.EntityOne == nil || r.EntityTwo == nil {
		return errors.Annotatef(coreerrors.InvalidRelationship,
			"relationship %q is missing an end proxy", r.GUID)
	}
	return nil
}

// ValidateReferenceEntity rejects a reference copy that claims to be
// homed in this collection.
func (v *Validator) ValidateReferenceEntity(localCollectionID string, e instance.EntityDetail) error {
	if err := v.ValidateEntity(e); err != nil {
		return errors.Trace(err)
	}
	if e.MetadataCollectionID == localCollectionID {
		return errors.Annotatef(coreerrors.HomeEntity,
			"entity %q is homed in %q", e.GUID, localCollectionID)
	}
	return nil
}

// ValidateReferenceRelationship rejects a reference copy that claims
// to be homed in this collection.
func (v *Validator) ValidateReferenceRelationship(localCollectionID string, r instance.Relationship) error {
	if err := v.ValidateRelationship(r); err != nil {
		return errors.Trace(err)
	}
	if r.MetadataCollectionID == localCollectionID {
		return errors.Annotatef(coreerrors.HomeRelationship,
			"relationship %q is homed in %q", r.GUID, localCollectionID)
	}
	return nil
}

func (v *Validator) validateHeader(h instance.Header) error {
	if h.GUID == "" {
		return errors.New("instance without GUID")
	}
	if h.Type.GUID == "" || h.Type.Name == "" {
		return errors.Errorf("instance %q has an incomplete type", h.GUID)
	}
	if h.Version < 1 {
		return errors.Errorf("instance %q has version %d", h.GUID, h.Version)
	}
	if h.CreateTime.IsZero() {
		return errors.Errorf("instance %q has no create time", h.GUID)
	}
	if h.Status != instance.StatusUnknown {
		if err := h.Status.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
