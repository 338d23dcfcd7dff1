// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package typedef models the type definitions that describe metadata
// instances: entity, relationship and classification types, the
// attribute types their properties draw on, and the patches that
// evolve them. It also provides the thread-safe cache each repository
// keeps of the definitions it actively supports.
package typedef

import (
	"time"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
)

// Category classifies a type definition by the kind of instance it
// describes.
type Category string

const (
	CategoryEntity         Category = "ENTITY_DEF"
	CategoryRelationship   Category = "RELATIONSHIP_DEF"
	CategoryClassification Category = "CLASSIFICATION_DEF"
)

// Validate returns an error if the category is not recognized.
func (c Category) Validate() error {
	switch c {
	case CategoryEntity, CategoryRelationship, CategoryClassification:
		return nil
	}
	return errors.NotValidf("type definition category %q", string(c))
}

// AttributeCategory classifies an attribute type definition.
type AttributeCategory string

const (
	AttributePrimitive  AttributeCategory = "PRIMITIVE"
	AttributeCollection AttributeCategory = "COLLECTION"
	AttributeEnum       AttributeCategory = "ENUM_DEF"
)

// Validate returns an error if the category is not recognized.
func (c AttributeCategory) Validate() error {
	switch c {
	case AttributePrimitive, AttributeCollection, AttributeEnum:
		return nil
	}
	return errors.NotValidf("attribute type definition category %q", string(c))
}

// Summary identifies one version of a type definition. It is the
// form carried inside events and instance headers.
type Summary struct {
	GUID        string   `json:"guid"`
	Name        string   `json:"name"`
	Version     int64    `json:"version"`
	VersionName string   `json:"versionName,omitempty"`
	Category    Category `json:"category,omitempty"`
}

// InstanceType returns the instance-side type reference for this
// type definition version.
func (s Summary) InstanceType() instance.InstanceType {
	return instance.InstanceType{
		GUID:    s.GUID,
		Name:    s.Name,
		Version: s.Version,
	}
}

// Validate returns an error if the summary lacks identity.
func (s Summary) Validate() error {
	if s.GUID == "" {
		return errors.NotValidf("empty type definition GUID")
	}
	if s.Name == "" {
		return errors.NotValidf("empty type definition name")
	}
	if s.Version < 1 {
		return errors.NotValidf("type definition version %d", s.Version)
	}
	return nil
}

// ExternalMapping correlates a type definition with the equivalent
// element of an external standard.
type ExternalMapping struct {
	StandardName string `json:"standardName,omitempty"`
	Organization string `json:"organization,omitempty"`
	Identifier   string `json:"identifier"`
}

// Attribute describes a property that instances of a type may carry.
type Attribute struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TypeGUID    string `json:"typeGUID,omitempty"`
	TypeName    string `json:"typeName,omitempty"`
	Required    bool   `json:"required,omitempty"`

	// Unique marks an attribute whose value identifies the instance;
	// unique attributes are carried on entity proxies.
	Unique bool `json:"unique,omitempty"`
}

// TypeDef is the full definition of an entity, relationship or
// classification type.
type TypeDef struct {
	Summary
	SuperType        *Summary          `json:"superType,omitempty"`
	Description      string            `json:"description,omitempty"`
	Origin           string            `json:"origin,omitempty"`
	CreatedBy        string            `json:"createdBy,omitempty"`
	UpdatedBy        string            `json:"updatedBy,omitempty"`
	CreateTime       time.Time         `json:"createTime,omitempty"`
	UpdateTime       *time.Time        `json:"updateTime,omitempty"`
	Options          map[string]string `json:"options,omitempty"`
	ExternalMappings []ExternalMapping `json:"externalMappings,omitempty"`
	ValidStatuses    []instance.Status `json:"validInstanceStatuses,omitempty"`
	InitialStatus    instance.Status   `json:"initialStatus,omitempty"`
	Attributes       []Attribute       `json:"attributes,omitempty"`
}

// Copy returns an independent deep copy of the definition.
func (d TypeDef) Copy() TypeDef {
	cd := d
	if d.SuperType != nil {
		st := *d.SuperType
		cd.SuperType = &st
	}
	if d.UpdateTime != nil {
		t := *d.UpdateTime
		cd.UpdateTime = &t
	}
	if d.Options != nil {
		cd.Options = make(map[string]string, len(d.Options))
		for k, v := range d.Options {
			cd.Options[k] = v
		}
	}
	cd.ExternalMappings = append([]ExternalMapping(nil), d.ExternalMappings...)
	cd.ValidStatuses = append([]instance.Status(nil), d.ValidStatuses...)
	cd.Attributes = append([]Attribute(nil), d.Attributes...)
	return cd
}

// Validate returns an error if the definition is structurally
// invalid.
func (d TypeDef) Validate() error {
	if err := d.Summary.Validate(); err != nil {
		return errors.Trace(err)
	}
	if err := d.Category.Validate(); err != nil {
		return errors.Trace(err)
	}
	seen := make(map[string]bool, len(d.Attributes))
	for _, attr := range d.Attributes {
		if attr.Name == "" {
			return errors.NotValidf("attribute with empty name")
		}
		if seen[attr.Name] {
			return errors.NotValidf("duplicate attribute %q", attr.Name)
		}
		seen[attr.Name] = true
	}
	return nil
}

// AllowsStatus reports whether instances of this type may take the
// given status. An empty valid-status list admits the whole
// lifecycle vocabulary; StatusDeleted is always reachable through
// soft-delete.
func (d TypeDef) AllowsStatus(s instance.Status) bool {
	if s == instance.StatusDeleted {
		return true
	}
	if len(d.ValidStatuses) == 0 {
		return s.Validate() == nil
	}
	for _, valid := range d.ValidStatuses {
		if valid == s {
			return true
		}
	}
	return false
}

// Attribute returns the named attribute definition, if present.
func (d TypeDef) Attribute(name string) (Attribute, bool) {
	for _, attr := range d.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// UniqueAttributes returns the names of the attributes that identify
// instances of this type.
func (d TypeDef) UniqueAttributes() []string {
	var names []string
	for _, attr := range d.Attributes {
		if attr.Unique {
			names = append(names, attr.Name)
		}
	}
	return names
}

// EnumElement is one symbol of an enumerated attribute type.
type EnumElement struct {
	Ordinal     int    `json:"ordinal"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// AttributeTypeDef defines a primitive, collection or enumeration
// attribute type.
type AttributeTypeDef struct {
	GUID        string            `json:"guid"`
	Name        string            `json:"name"`
	Version     int64             `json:"version"`
	VersionName string            `json:"versionName,omitempty"`
	Category    AttributeCategory `json:"category"`
	Description string            `json:"description,omitempty"`

	// Primitive is set for PRIMITIVE definitions.
	Primitive instance.PrimitiveCategory `json:"primitiveCategory,omitempty"`

	// CollectionKind and ElementCategory are set for COLLECTION
	// definitions.
	CollectionKind  string                     `json:"collectionKind,omitempty"`
	ElementCategory instance.PrimitiveCategory `json:"elementCategory,omitempty"`

	// Elements and DefaultValue are set for ENUM_DEF definitions.
	Elements     []EnumElement `json:"elements,omitempty"`
	DefaultValue string        `json:"defaultValue,omitempty"`
}

// Copy returns an independent deep copy of the definition.
func (d AttributeTypeDef) Copy() AttributeTypeDef {
	cd := d
	cd.Elements = append([]EnumElement(nil), d.Elements...)
	return cd
}

// Validate returns an error if the definition is structurally
// invalid.
func (d AttributeTypeDef) Validate() error {
	if d.GUID == "" {
		return errors.NotValidf("empty attribute type definition GUID")
	}
	if d.Name == "" {
		return errors.NotValidf("empty attribute type definition name")
	}
	if d.Version < 1 {
		return errors.NotValidf("attribute type definition version %d", d.Version)
	}
	if err := d.Category.Validate(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Patch is an additive change to a type definition. It applies to
// exactly one stored version and moves the definition to a newer one.
type Patch struct {
	TypeDefGUID         string            `json:"typeDefGUID"`
	TypeDefName         string            `json:"typeDefName"`
	ApplyToVersion      int64             `json:"applyToVersion"`
	UpdateToVersion     int64             `json:"updateToVersion"`
	NewVersionName      string            `json:"newVersionName,omitempty"`
	NewDescription      string            `json:"newDescription,omitempty"`
	NewAttributes       []Attribute       `json:"newAttributes,omitempty"`
	NewOptions          map[string]string `json:"newOptions,omitempty"`
	NewExternalMappings []ExternalMapping `json:"newExternalMappings,omitempty"`
	NewValidStatuses    []instance.Status `json:"newValidStatuses,omitempty"`
}

// Validate returns an error if the patch is structurally invalid.
func (p Patch) Validate() error {
	if p.TypeDefGUID == "" {
		return errors.NotValidf("empty patch type definition GUID")
	}
	if p.TypeDefName == "" {
		return errors.NotValidf("empty patch type definition name")
	}
	if p.ApplyToVersion < 1 {
		return errors.NotValidf("patch apply-to version %d", p.ApplyToVersion)
	}
	if p.UpdateToVersion <= p.ApplyToVersion {
		return errors.NotValidf("patch update-to version %d does not advance version %d",
			p.UpdateToVersion, p.ApplyToVersion)
	}
	return nil
}

// Apply returns the definition with the patch applied. It fails with
// PatchError when the patch does not target this definition's
// identity and current version, or when it would duplicate an
// attribute.
func (d TypeDef) Apply(p Patch) (TypeDef, error) {
	if p.TypeDefGUID != d.GUID || p.TypeDefName != d.Name {
		return TypeDef{}, errors.Annotatef(coreerrors.PatchError,
			"patch targets %q (%s), definition is %q (%s)",
			p.TypeDefName, p.TypeDefGUID, d.Name, d.GUID)
	}
	if p.ApplyToVersion != d.Version {
		return TypeDef{}, errors.Annotatef(coreerrors.PatchError,
			"patch applies to version %d, definition is at version %d",
			p.ApplyToVersion, d.Version)
	}
	updated := d.Copy()
	updated.Version = p.UpdateToVersion
	if p.NewVersionName != "" {
		updated.VersionName = p.NewVersionName
	}
	if p.NewDescription != "" {
		updated.Description = p.NewDescription
	}
	for _, attr := range p.NewAttributes {
		if _, ok := updated.Attribute(attr.Name); ok {
			return TypeDef{}, errors.Annotatef(coreerrors.PatchError,
				"patch adds attribute %q which already exists", attr.Name)
		}
		updated.Attributes = append(updated.Attributes, attr)
	}
	if len(p.NewOptions) > 0 && updated.Options == nil {
		updated.Options = make(map[string]string, len(p.NewOptions))
	}
	for k, v := range p.NewOptions {
		updated.Options[k] = v
	}
	updated.ExternalMappings = append(updated.ExternalMappings, p.NewExternalMappings...)
	if len(p.NewValidStatuses) > 0 {
		updated.ValidStatuses = append([]instance.Status(nil), p.NewValidStatuses...)
	}
	return updated, nil
}

// Gallery bundles type definitions and attribute type definitions
// for bulk exchange.
type Gallery struct {
	AttributeTypeDefs []AttributeTypeDef `json:"attributeTypeDefs,omitempty"`
	TypeDefs          []TypeDef          `json:"typeDefs,omitempty"`
}

// Copy returns an independent deep copy of the gallery.
func (g Gallery) Copy() Gallery {
	cg := Gallery{}
	if g.AttributeTypeDefs != nil {
		cg.AttributeTypeDefs = make([]AttributeTypeDef, len(g.AttributeTypeDefs))
		for i, d := range g.AttributeTypeDefs {
			cg.AttributeTypeDefs[i] = d.Copy()
		}
	}
	if g.TypeDefs != nil {
		cg.TypeDefs = make([]TypeDef, len(g.TypeDefs))
		for i, d := range g.TypeDefs {
			cg.TypeDefs[i] = d.Copy()
		}
	}
	return cg
}

// Empty reports whether the gallery holds no definitions.
func (g Gallery) Empty() bool {
	return len(g.AttributeTypeDefs) == 0 && len(g.TypeDefs) == 0
}
