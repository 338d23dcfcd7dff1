// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package local

import (
	"context"
	"path"
	"reflect"
	"sort"
	"strings"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
	"github.com/juju/metafed/repository"
)

// AllTypes implements repository.TypeDefOps.
func (r *Repository) AllTypes(ctx context.Context, userID string) (typedef.Gallery, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.Gallery{}, errors.Trace(err)
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return typedef.Gallery{}, errors.Trace(err)
	}
	gallery := r.config.Types.All()
	sortGallery(&gallery)
	return gallery, nil
}

// FindTypesByName implements repository.TypeDefOps.
func (r *Repository) FindTypesByName(ctx context.Context, userID, name string) (typedef.Gallery, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.Gallery{}, errors.Trace(err)
	}
	if name == "" {
		return typedef.Gallery{}, errors.Annotatef(coreerrors.InvalidParameter, "name is empty")
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return typedef.Gallery{}, errors.Trace(err)
	}
	all := r.config.Types.All()
	gallery := typedef.Gallery{}
	for _, def := range all.TypeDefs {
		if nameMatches(name, def.Name) {
			gallery.TypeDefs = append(gallery.TypeDefs, def)
		}
	}
	for _, def := range all.AttributeTypeDefs {
		if nameMatches(name, def.Name) {
			gallery.AttributeTypeDefs = append(gallery.AttributeTypeDefs, def)
		}
	}
	sortGallery(&gallery)
	return gallery, nil
}

// TypeDefsByCategory implements repository.TypeDefOps.
func (r *Repository) TypeDefsByCategory(ctx context.Context, userID string, category typedef.Category) ([]typedef.TypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := category.Validate(); err != nil {
		return nil, errors.Annotatef(coreerrors.InvalidParameter, "%v", err)
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return nil, errors.Trace(err)
	}
	var defs []typedef.TypeDef
	for _, def := range r.config.Types.All().TypeDefs {
		if def.Category == category {
			defs = append(defs, def)
		}
	}
	sortTypeDefs(defs)
	return defs, nil
}

// AttributeTypeDefsByCategory implements repository.TypeDefOps.
func (r *Repository) AttributeTypeDefsByCategory(ctx context.Context, userID string, category typedef.AttributeCategory) ([]typedef.AttributeTypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := category.Validate(); err != nil {
		return nil, errors.Annotatef(coreerrors.InvalidParameter, "%v", err)
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return nil, errors.Trace(err)
	}
	var defs []typedef.AttributeTypeDef
	for _, def := range r.config.Types.All().AttributeTypeDefs {
		if def.Category == category {
			defs = append(defs, def)
		}
	}
	sortAttributeTypeDefs(defs)
	return defs, nil
}

// TypeDefsByProperty implements repository.TypeDefOps.
func (r *Repository) TypeDefsByProperty(ctx context.Context, userID string, attributeNames []string) ([]typedef.TypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return nil, errors.Trace(err)
	}
	if len(attributeNames) == 0 {
		return nil, errors.Annotatef(coreerrors.InvalidParameter, "attributeNames is empty")
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return nil, errors.Trace(err)
	}
	var defs []typedef.TypeDef
	for _, def := range r.config.Types.All().TypeDefs {
		declared := true
		for _, name := range attributeNames {
			if _, ok := def.Attribute(name); !ok {
				declared = false
				break
			}
		}
		if declared {
			defs = append(defs, def)
		}
	}
	sortTypeDefs(defs)
	return defs, nil
}

// TypesByExternalID implements repository.TypeDefOps.
func (r *Repository) TypesByExternalID(ctx context.Context, userID, standard, organization, identifier string) (typedef.Gallery, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.Gallery{}, errors.Trace(err)
	}
	if standard == "" && organization == "" && identifier == "" {
		return typedef.Gallery{}, errors.Annotatef(coreerrors.InvalidParameter,
			"at least one of standard, organization and identifier is required")
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return typedef.Gallery{}, errors.Trace(err)
	}
	gallery := typedef.Gallery{}
	for _, def := range r.config.Types.All().TypeDefs {
		for _, mapping := range def.ExternalMappings {
			if (standard == "" || mapping.StandardName == standard) &&
				(organization == "" || mapping.Organization == organization) &&
				(identifier == "" || mapping.Identifier == identifier) {
				gallery.TypeDefs = append(gallery.TypeDefs, def)
				break
			}
		}
	}
	sortGallery(&gallery)
	return gallery, nil
}

// SearchForTypeDefs implements repository.TypeDefOps.
func (r *Repository) SearchForTypeDefs(ctx context.Context, userID, searchCriteria string) ([]typedef.TypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return nil, errors.Trace(err)
	}
	if searchCriteria == "" {
		return nil, errors.Annotatef(coreerrors.InvalidParameter, "searchCriteria is empty")
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return nil, errors.Trace(err)
	}
	var defs []typedef.TypeDef
	for _, def := range r.config.Types.All().TypeDefs {
		if strings.Contains(def.Name, searchCriteria) {
			defs = append(defs, def)
		}
	}
	sortTypeDefs(defs)
	return defs, nil
}

// TypeDefByGUID implements repository.TypeDefOps.
func (r *Repository) TypeDefByGUID(ctx context.Context, userID, guid string) (typedef.TypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("guid", guid); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	def, err := r.config.Types.TypeDefByGUID(guid)
	return def, errors.Trace(err)
}

// TypeDefByName implements repository.TypeDefOps.
func (r *Repository) TypeDefByName(ctx context.Context, userID, name string) (typedef.TypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	if name == "" {
		return typedef.TypeDef{}, errors.Annotatef(coreerrors.InvalidParameter, "name is empty")
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	def, err := r.config.Types.TypeDefByName(name)
	return def, errors.Trace(err)
}

// AttributeTypeDefByGUID implements repository.TypeDefOps.
func (r *Repository) AttributeTypeDefByGUID(ctx context.Context, userID, guid string) (typedef.AttributeTypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("guid", guid); err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	def, err := r.config.Types.AttributeTypeDefByGUID(guid)
	return def, errors.Trace(err)
}

// AttributeTypeDefByName implements repository.TypeDefOps.
func (r *Repository) AttributeTypeDefByName(ctx context.Context, userID, name string) (typedef.AttributeTypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	if name == "" {
		return typedef.AttributeTypeDef{}, errors.Annotatef(coreerrors.InvalidParameter, "name is empty")
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	def, err := r.config.Types.AttributeTypeDefByName(name)
	return def, errors.Trace(err)
}

// AddTypeDef implements repository.TypeDefOps.
func (r *Repository) AddTypeDef(ctx context.Context, userID string, def typedef.TypeDef) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateTypeDef(def); err != nil {
		return errors.Trace(err)
	}
	if err := r.canWriteTypes(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.config.Types.AddTypeDef(def); err != nil {
		return errors.Trace(err)
	}
	r.events().TypeDefAdded(ctx, def)
	return nil
}

// AddAttributeTypeDef implements repository.TypeDefOps.
func (r *Repository) AddAttributeTypeDef(ctx context.Context, userID string, def typedef.AttributeTypeDef) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateAttributeTypeDef(def); err != nil {
		return errors.Trace(err)
	}
	if err := r.canWriteTypes(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.config.Types.AddAttributeTypeDef(def); err != nil {
		return errors.Trace(err)
	}
	r.events().AttributeTypeDefAdded(ctx, def)
	return nil
}

// AddTypeDefGallery implements repository.TypeDefOps. Attribute types
// are defined first so the type definitions that draw on them land on
// a complete vocabulary.
func (r *Repository) AddTypeDefGallery(ctx context.Context, userID string, gallery typedef.Gallery) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if gallery.Empty() {
		return errors.Annotatef(coreerrors.InvalidParameter, "gallery is empty")
	}
	for _, def := range gallery.AttributeTypeDefs {
		if err := r.AddAttributeTypeDef(ctx, userID, def); err != nil {
			return errors.Trace(err)
		}
	}
	for _, def := range gallery.TypeDefs {
		if err := r.AddTypeDef(ctx, userID, def); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// VerifyTypeDef implements repository.TypeDefOps.
func (r *Repository) VerifyTypeDef(ctx context.Context, userID string, def typedef.TypeDef) (bool, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return false, errors.Trace(err)
	}
	if err := r.validator.ValidateTypeDef(def); err != nil {
		return false, errors.Trace(err)
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return false, errors.Trace(err)
	}
	stored, err := r.config.Types.TypeDefByGUID(def.GUID)
	if errors.Is(err, coreerrors.TypeDefNotKnown) {
		if r.config.Types.IsActiveName(def.Name) {
			return false, errors.Annotatef(coreerrors.TypeDefConflict,
				"name %q is defined under a different GUID", def.Name)
		}
		return false, nil
	}
	if err != nil {
		return false, errors.Trace(err)
	}
	if stored.Name != def.Name {
		return false, errors.Annotatef(coreerrors.TypeDefConflict,
			"GUID %q is defined under name %q, not %q", def.GUID, stored.Name, def.Name)
	}
	if !reflect.DeepEqual(stored, def) {
		return false, errors.Annotatef(coreerrors.TypeDefConflict,
			"definition %q differs from the stored definition", def.Name)
	}
	return true, nil
}

// VerifyAttributeTypeDef implements repository.TypeDefOps.
func (r *Repository) VerifyAttributeTypeDef(ctx context.Context, userID string, def typedef.AttributeTypeDef) (bool, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return false, errors.Trace(err)
	}
	if err := r.validator.ValidateAttributeTypeDef(def); err != nil {
		return false, errors.Trace(err)
	}
	if err := r.canReadTypes(ctx, userID); err != nil {
		return false, errors.Trace(err)
	}
	stored, err := r.config.Types.AttributeTypeDefByGUID(def.GUID)
	if errors.Is(err, coreerrors.TypeDefNotKnown) {
		return false, nil
	}
	if err != nil {
		return false, errors.Trace(err)
	}
	if stored.Name != def.Name {
		return false, errors.Annotatef(coreerrors.TypeDefConflict,
			"GUID %q is defined under name %q, not %q", def.GUID, stored.Name, def.Name)
	}
	if !reflect.DeepEqual(stored, def) {
		return false, errors.Annotatef(coreerrors.TypeDefConflict,
			"definition %q differs from the stored definition", def.Name)
	}
	return true, nil
}

// UpdateTypeDef implements repository.TypeDefOps.
func (r *Repository) UpdateTypeDef(ctx context.Context, userID string, patch typedef.Patch) (typedef.TypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	if err := patch.Validate(); err != nil {
		return typedef.TypeDef{}, errors.Annotatef(coreerrors.InvalidTypeDef, "%v", err)
	}
	if err := r.canWriteTypes(ctx, userID); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	stored, err := r.config.Types.TypeDefByGUID(patch.TypeDefGUID)
	if err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	updated, err := stored.Apply(patch)
	if err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	if err := r.config.Types.UpdateTypeDef(updated); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	r.events().TypeDefUpdated(ctx, patch, updated)
	return updated, nil
}

// DeleteTypeDef implements repository.TypeDefOps.
func (r *Repository) DeleteTypeDef(ctx context.Context, userID, guid, name string) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("guid", guid); err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.Annotatef(coreerrors.InvalidParameter, "name is empty")
	}
	if err := r.canWriteTypes(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	def, err := r.config.Types.TypeDefByGUID(guid)
	if err != nil {
		return errors.Trace(err)
	}
	inUse, err := r.typeDefInUse(ctx, def)
	if err != nil {
		return errors.Trace(err)
	}
	if inUse {
		return errors.Annotatef(coreerrors.TypeDefInUse, "%q (%s) has stored instances", name, guid)
	}
	if err := r.config.Types.RemoveTypeDef(guid, name); err != nil {
		return errors.Trace(err)
	}
	r.events().TypeDefDeleted(ctx, guid, name)
	return nil
}

// DeleteAttributeTypeDef implements repository.TypeDefOps.
func (r *Repository) DeleteAttributeTypeDef(ctx context.Context, userID, guid, name string) error {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.validator.ValidateGUID("guid", guid); err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.Annotatef(coreerrors.InvalidParameter, "name is empty")
	}
	if err := r.canWriteTypes(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	if err := r.config.Types.RemoveAttributeTypeDef(guid, name); err != nil {
		return errors.Trace(err)
	}
	r.events().AttributeTypeDefDeleted(ctx, guid, name)
	return nil
}

// ReIdentifyTypeDef implements repository.TypeDefOps.
func (r *Repository) ReIdentifyTypeDef(ctx context.Context, userID, originalGUID, originalName, newGUID, newName string) (typedef.TypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	for parameter, value := range map[string]string{
		"originalGUID": originalGUID, "originalName": originalName,
		"newGUID": newGUID, "newName": newName,
	} {
		if value == "" {
			return typedef.TypeDef{}, errors.Annotatef(coreerrors.InvalidParameter, "%s is empty", parameter)
		}
	}
	if err := r.canWriteTypes(ctx, userID); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	stored, err := r.config.Types.TypeDefByGUID(originalGUID)
	if err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	original := stored.Summary
	updated := stored.Copy()
	updated.GUID = newGUID
	updated.Name = newName
	updated.Version++
	updated.UpdatedBy = userID
	now := r.config.Clock.Now().UTC()
	updated.UpdateTime = &now
	if err := r.config.Types.ReIdentifyTypeDef(originalGUID, originalName, updated); err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	r.events().TypeDefReIdentified(ctx, original, updated)
	return updated, nil
}

// ReIdentifyAttributeTypeDef implements repository.TypeDefOps.
func (r *Repository) ReIdentifyAttributeTypeDef(ctx context.Context, userID, originalGUID, originalName, newGUID, newName string) (typedef.AttributeTypeDef, error) {
	if err := r.validator.ValidateUserID(userID); err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	for parameter, value := range map[string]string{
		"originalGUID": originalGUID, "originalName": originalName,
		"newGUID": newGUID, "newName": newName,
	} {
		if value == "" {
			return typedef.AttributeTypeDef{}, errors.Annotatef(coreerrors.InvalidParameter, "%s is empty", parameter)
		}
	}
	if err := r.canWriteTypes(ctx, userID); err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	stored, err := r.config.Types.AttributeTypeDefByGUID(originalGUID)
	if err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	original := stored.Copy()
	updated := stored.Copy()
	updated.GUID = newGUID
	updated.Name = newName
	updated.Version++
	if err := r.config.Types.ReIdentifyAttributeTypeDef(originalGUID, originalName, updated); err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	r.events().AttributeTypeDefReIdentified(ctx, original, updated)
	return updated, nil
}

// typeDefInUse reports whether any stored instance draws on the
// definition.
func (r *Repository) typeDefInUse(ctx context.Context, def typedef.TypeDef) (bool, error) {
	filter := instance.AllStatuses()
	switch def.Category {
	case typedef.CategoryEntity:
		entities, err := r.config.Backend.FindEntities(ctx, repository.FindEntitiesArgs{
			TypeGUID:     def.GUID,
			StatusFilter: filter,
			Paging:       repository.Paging{PageSize: 1},
		})
		if err != nil {
			return false, errors.Trace(err)
		}
		return len(entities) > 0, nil
	case typedef.CategoryRelationship:
		relationships, err := r.config.Backend.FindRelationships(ctx, repository.FindRelationshipsArgs{
			TypeGUID:     def.GUID,
			StatusFilter: filter,
			Paging:       repository.Paging{PageSize: 1},
		})
		if err != nil {
			return false, errors.Trace(err)
		}
		return len(relationships) > 0, nil
	case typedef.CategoryClassification:
		entities, err := r.config.Backend.FindEntities(ctx, repository.FindEntitiesArgs{
			ClassificationName: def.Name,
			StatusFilter:       filter,
			Paging:             repository.Paging{PageSize: 1},
		})
		if err != nil {
			return false, errors.Trace(err)
		}
		return len(entities) > 0, nil
	}
	return false, nil
}

// nameMatches honors the * and ? wildcards in type name searches.
func nameMatches(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}

func sortGallery(gallery *typedef.Gallery) {
	sortTypeDefs(gallery.TypeDefs)
	sortAttributeTypeDefs(gallery.AttributeTypeDefs)
}

func sortTypeDefs(defs []typedef.TypeDef) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
}

func sortAttributeTypeDefs(defs []typedef.AttributeTypeDef) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
}
