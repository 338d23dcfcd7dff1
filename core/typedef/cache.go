// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedef

import (
	"sync"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
)

// Cache is the in-memory mirror of the type definitions a repository
// actively supports. The repository wrapper updates it on every
// successful type mutation; the exchange rule and validator consult
// it on every inbound instance.
//
// All methods are safe for concurrent use. Definitions are copied on
// the way in and out, so callers never share state with the cache.
type Cache struct {
	mu sync.RWMutex

	typeDefs     map[string]TypeDef
	typeDefNames map[string]string

	attributeDefs  map[string]AttributeTypeDef
	attributeNames map[string]string

	// learned tracks definitions adopted from the cohort rather than
	// configured locally.
	learned set.Strings
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		typeDefs:       make(map[string]TypeDef),
		typeDefNames:   make(map[string]string),
		attributeDefs:  make(map[string]AttributeTypeDef),
		attributeNames: make(map[string]string),
		learned:        set.NewStrings(),
	}
}

// AddTypeDef records a new definition. It fails with TypeDefConflict
// if the GUID or name is already taken.
func (c *Cache) AddTypeDef(def TypeDef) error {
	if err := def.Validate(); err != nil {
		return errors.Trace(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.typeDefs[def.GUID]; ok {
		return errors.Annotatef(coreerrors.TypeDefConflict, "GUID %q already defined", def.GUID)
	}
	if guid, ok := c.typeDefNames[def.Name]; ok {
		return errors.Annotatef(coreerrors.TypeDefConflict,
			"name %q already defined by %q", def.Name, guid)
	}
	c.typeDefs[def.GUID] = def.Copy()
	c.typeDefNames[def.Name] = def.GUID
	return nil
}

// AddAttributeTypeDef records a new attribute definition. It fails
// with TypeDefConflict if the GUID or name is already taken.
func (c *Cache) AddAttributeTypeDef(def AttributeTypeDef) error {
	if err := def.Validate(); err != nil {
		return errors.Trace(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.attributeDefs[def.GUID]; ok {
		return errors.Annotatef(coreerrors.TypeDefConflict, "GUID %q already defined", def.GUID)
	}
	if guid, ok := c.attributeNames[def.Name]; ok {
		return errors.Annotatef(coreerrors.TypeDefConflict,
			"name %q already defined by %q", def.Name, guid)
	}
	c.attributeDefs[def.GUID] = def.Copy()
	c.attributeNames[def.Name] = def.GUID
	return nil
}

// UpdateTypeDef replaces the stored definition with the same GUID and
// name. It fails with TypeDefNotKnown when absent and TypeDefConflict
// when the name does not match the stored identity.
func (c *Cache) UpdateTypeDef(def TypeDef) error {
	if err := def.Validate(); err != nil {
		return errors.Trace(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.typeDefs[def.GUID]
	if !ok {
		return errors.Annotatef(coreerrors.TypeDefNotKnown, "GUID %q", def.GUID)
	}
	if stored.Name != def.Name {
		return errors.Annotatef(coreerrors.TypeDefConflict,
			"stored definition %q is named %q, not %q", def.GUID, stored.Name, def.Name)
	}
	c.typeDefs[def.GUID] = def.Copy()
	return nil
}

// RemoveTypeDef forgets the definition. It fails with TypeDefNotKnown
// when absent.
func (c *Cache) RemoveTypeDef(guid, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.typeDefs[guid]
	if !ok || stored.Name != name {
		return errors.Annotatef(coreerrors.TypeDefNotKnown, "%q (%s)", name, guid)
	}
	delete(c.typeDefs, guid)
	delete(c.typeDefNames, stored.Name)
	c.learned.Remove(guid)
	return nil
}

// RemoveAttributeTypeDef forgets the attribute definition. It fails
// with TypeDefNotKnown when absent.
func (c *Cache) RemoveAttributeTypeDef(guid, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.attributeDefs[guid]
	if !ok || stored.Name != name {
		return errors.Annotatef(coreerrors.TypeDefNotKnown, "%q (%s)", name, guid)
	}
	delete(c.attributeDefs, guid)
	delete(c.attributeNames, stored.Name)
	c.learned.Remove(guid)
	return nil
}

// ReIdentifyTypeDef atomically replaces the definition stored under
// the original identity with the updated definition, which may carry
// a new GUID and name. It fails with TypeDefNotKnown when the
// original is absent and TypeDefConflict when the new identity is
// already taken.
func (c *Cache) ReIdentifyTypeDef(originalGUID, originalName string, updated TypeDef) error {
	if err := updated.Validate(); err != nil {
		return errors.Trace(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.typeDefs[originalGUID]
	if !ok || stored.Name != originalName {
		return errors.Annotatef(coreerrors.TypeDefNotKnown, "%q (%s)", originalName, originalGUID)
	}
	if updated.GUID != originalGUID {
		if _, ok := c.typeDefs[updated.GUID]; ok {
			return errors.Annotatef(coreerrors.TypeDefConflict, "GUID %q already defined", updated.GUID)
		}
	}
	if updated.Name != originalName {
		if guid, ok := c.typeDefNames[updated.Name]; ok {
			return errors.Annotatef(coreerrors.TypeDefConflict,
				"name %q already defined by %q", updated.Name, guid)
		}
	}
	delete(c.typeDefs, originalGUID)
	delete(c.typeDefNames, originalName)
	c.typeDefs[updated.GUID] = updated.Copy()
	c.typeDefNames[updated.Name] = updated.GUID
	if c.learned.Contains(originalGUID) {
		c.learned.Remove(originalGUID)
		c.learned.Add(updated.GUID)
	}
	return nil
}

// ReIdentifyAttributeTypeDef is ReIdentifyTypeDef for attribute
// types.
func (c *Cache) ReIdentifyAttributeTypeDef(originalGUID, originalName string, updated AttributeTypeDef) error {
	if err := updated.Validate(); err != nil {
		return errors.Trace(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.attributeDefs[originalGUID]
	if !ok || stored.Name != originalName {
		return errors.Annotatef(coreerrors.TypeDefNotKnown, "%q (%s)", originalName, originalGUID)
	}
	if updated.GUID != originalGUID {
		if _, ok := c.attributeDefs[updated.GUID]; ok {
			return errors.Annotatef(coreerrors.TypeDefConflict, "GUID %q already defined", updated.GUID)
		}
	}
	if updated.Name != originalName {
		if guid, ok := c.attributeNames[updated.Name]; ok {
			return errors.Annotatef(coreerrors.TypeDefConflict,
				"name %q already defined by %q", updated.Name, guid)
		}
	}
	delete(c.attributeDefs, originalGUID)
	delete(c.attributeNames, originalName)
	c.attributeDefs[updated.GUID] = updated.Copy()
	c.attributeNames[updated.Name] = updated.GUID
	return nil
}

// TypeDefByGUID returns the stored definition.
func (c *Cache) TypeDefByGUID(guid string) (TypeDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.typeDefs[guid]
	if !ok {
		return TypeDef{}, errors.Annotatef(coreerrors.TypeDefNotKnown, "GUID %q", guid)
	}
	return def.Copy(), nil
}

// TypeDefByName returns the stored definition.
func (c *Cache) TypeDefByName(name string) (TypeDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	guid, ok := c.typeDefNames[name]
	if !ok {
		return TypeDef{}, errors.Annotatef(coreerrors.TypeDefNotKnown, "name %q", name)
	}
	return c.typeDefs[guid].Copy(), nil
}

// AttributeTypeDefByGUID returns the stored attribute definition.
func (c *Cache) AttributeTypeDefByGUID(guid string) (AttributeTypeDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.attributeDefs[guid]
	if !ok {
		return AttributeTypeDef{}, errors.Annotatef(coreerrors.TypeDefNotKnown, "GUID %q", guid)
	}
	return def.Copy(), nil
}

// AttributeTypeDefByName returns the stored attribute definition.
func (c *Cache) AttributeTypeDefByName(name string) (AttributeTypeDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	guid, ok := c.attributeNames[name]
	if !ok {
		return AttributeTypeDef{}, errors.Annotatef(coreerrors.TypeDefNotKnown, "name %q", name)
	}
	return c.attributeDefs[guid].Copy(), nil
}

// All returns every stored definition.
func (c *Cache) All() Gallery {
	c.mu.RLock()
	defer c.mu.RUnlock()
	gallery := Gallery{}
	for _, def := range c.typeDefs {
		gallery.TypeDefs = append(gallery.TypeDefs, def.Copy())
	}
	for _, def := range c.attributeDefs {
		gallery.AttributeTypeDefs = append(gallery.AttributeTypeDefs, def.Copy())
	}
	return gallery
}

// IsActive reports whether the type definition is known to this
// repository.
func (c *Cache) IsActive(guid string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.typeDefs[guid]
	return ok
}

// IsActiveName reports whether a type definition of that name is
// known to this repository.
func (c *Cache) IsActiveName(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.typeDefNames[name]
	return ok
}

// MarkLearned records a definition adopted from the cohort. An
// existing definition with the same GUID is left untouched but still
// marked as learned.
func (c *Cache) MarkLearned(def TypeDef) error {
	if err := def.Validate(); err != nil {
		return errors.Trace(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.typeDefs[def.GUID]; !ok {
		if guid, ok := c.typeDefNames[def.Name]; ok {
			return errors.Annotatef(coreerrors.TypeDefConflict,
				"name %q already defined by %q", def.Name, guid)
		}
		c.typeDefs[def.GUID] = def.Copy()
		c.typeDefNames[def.Name] = def.GUID
	}
	c.learned.Add(def.GUID)
	return nil
}

// IsLearned reports whether the definition was adopted from the
// cohort.
func (c *Cache) IsLearned(guid string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.learned.Contains(guid)
}
