// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package enterprise

import (
	"context"
	"sort"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/typedef"
)

// Federated type reads union every member's vocabulary; a definition
// appearing in several members is kept at its highest version. Type
// maintenance is an administrative operation on one repository, so
// the federated surface refuses it.

// AllTypes implements repository.TypeDefOps.
func (f *Federator) AllTypes(ctx context.Context, userID string) (typedef.Gallery, error) {
	return f.mergeGalleries(ctx, "allTypes", func(ctx context.Context, conn connection) (typedef.Gallery, error) {
		return conn.collection.AllTypes(ctx, userID)
	})
}

// FindTypesByName implements repository.TypeDefOps.
func (f *Federator) FindTypesByName(ctx context.Context, userID, name string) (typedef.Gallery, error) {
	return f.mergeGalleries(ctx, "findTypesByName", func(ctx context.Context, conn connection) (typedef.Gallery, error) {
		return conn.collection.FindTypesByName(ctx, userID, name)
	})
}

// TypeDefsByCategory implements repository.TypeDefOps.
func (f *Federator) TypeDefsByCategory(ctx context.Context, userID string, category typedef.Category) ([]typedef.TypeDef, error) {
	return f.mergeTypeDefs(ctx, "typeDefsByCategory", func(ctx context.Context, conn connection) ([]typedef.TypeDef, error) {
		return conn.collection.TypeDefsByCategory(ctx, userID, category)
	})
}

// AttributeTypeDefsByCategory implements repository.TypeDefOps.
func (f *Federator) AttributeTypeDefsByCategory(ctx context.Context, userID string, category typedef.AttributeCategory) ([]typedef.AttributeTypeDef, error) {
	conns, err := f.snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	lists, err := collect(ctx, f, conns, "attributeTypeDefsByCategory",
		func(ctx context.Context, conn connection) ([]typedef.AttributeTypeDef, error) {
			return conn.collection.AttributeTypeDefsByCategory(ctx, userID, category)
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return mergeAttributeTypeDefs(lists), nil
}

// TypeDefsByProperty implements repository.TypeDefOps.
func (f *Federator) TypeDefsByProperty(ctx context.Context, userID string, attributeNames []string) ([]typedef.TypeDef, error) {
	return f.mergeTypeDefs(ctx, "typeDefsByProperty", func(ctx context.Context, conn connection) ([]typedef.TypeDef, error) {
		return conn.collection.TypeDefsByProperty(ctx, userID, attributeNames)
	})
}

// TypesByExternalID implements repository.TypeDefOps.
func (f *Federator) TypesByExternalID(ctx context.Context, userID, standard, organization, identifier string) (typedef.Gallery, error) {
	return f.mergeGalleries(ctx, "typesByExternalID", func(ctx context.Context, conn connection) (typedef.Gallery, error) {
		return conn.collection.TypesByExternalID(ctx, userID, standard, organization, identifier)
	})
}

// SearchForTypeDefs implements repository.TypeDefOps.
func (f *Federator) SearchForTypeDefs(ctx context.Context, userID, searchCriteria string) ([]typedef.TypeDef, error) {
	return f.mergeTypeDefs(ctx, "searchForTypeDefs", func(ctx context.Context, conn connection) ([]typedef.TypeDef, error) {
		return conn.collection.SearchForTypeDefs(ctx, userID, searchCriteria)
	})
}

// TypeDefByGUID implements repository.TypeDefOps.
func (f *Federator) TypeDefByGUID(ctx context.Context, userID, guid string) (typedef.TypeDef, error) {
	return f.bestTypeDef(ctx, "typeDefByGUID", func(ctx context.Context, conn connection) (typedef.TypeDef, error) {
		return conn.collection.TypeDefByGUID(ctx, userID, guid)
	})
}

// TypeDefByName implements repository.TypeDefOps.
func (f *Federator) TypeDefByName(ctx context.Context, userID, name string) (typedef.TypeDef, error) {
	return f.bestTypeDef(ctx, "typeDefByName", func(ctx context.Context, conn connection) (typedef.TypeDef, error) {
		return conn.collection.TypeDefByName(ctx, userID, name)
	})
}

// AttributeTypeDefByGUID implements repository.TypeDefOps.
func (f *Federator) AttributeTypeDefByGUID(ctx context.Context, userID, guid string) (typedef.AttributeTypeDef, error) {
	return f.bestAttributeTypeDef(ctx, "attributeTypeDefByGUID", func(ctx context.Context, conn connection) (typedef.AttributeTypeDef, error) {
		return conn.collection.AttributeTypeDefByGUID(ctx, userID, guid)
	})
}

// AttributeTypeDefByName implements repository.TypeDefOps.
func (f *Federator) AttributeTypeDefByName(ctx context.Context, userID, name string) (typedef.AttributeTypeDef, error) {
	return f.bestAttributeTypeDef(ctx, "attributeTypeDefByName", func(ctx context.Context, conn connection) (typedef.AttributeTypeDef, error) {
		return conn.collection.AttributeTypeDefByName(ctx, userID, name)
	})
}

// VerifyTypeDef implements repository.TypeDefOps. The definition is
// verified when any member confirms it; an identity clash anywhere in
// the cohort fails the verification.
func (f *Federator) VerifyTypeDef(ctx context.Context, userID string, def typedef.TypeDef) (bool, error) {
	conns, err := f.snapshot()
	if err != nil {
		return false, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, "verifyTypeDef",
		func(ctx context.Context, conn connection) (bool, error) {
			return conn.collection.VerifyTypeDef(ctx, userID, def)
		})
	if err != nil {
		return false, errors.Trace(err)
	}
	for _, c := range cands {
		if c.item {
			return true, nil
		}
	}
	return false, nil
}

// VerifyAttributeTypeDef implements repository.TypeDefOps.
func (f *Federator) VerifyAttributeTypeDef(ctx context.Context, userID string, def typedef.AttributeTypeDef) (bool, error) {
	conns, err := f.snapshot()
	if err != nil {
		return false, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, "verifyAttributeTypeDef",
		func(ctx context.Context, conn connection) (bool, error) {
			return conn.collection.VerifyAttributeTypeDef(ctx, userID, def)
		})
	if err != nil {
		return false, errors.Trace(err)
	}
	for _, c := range cands {
		if c.item {
			return true, nil
		}
	}
	return false, nil
}

// AddTypeDef implements repository.TypeDefOps.
func (f *Federator) AddTypeDef(ctx context.Context, userID string, def typedef.TypeDef) error {
	return f.typeMaintenanceUnsupported("addTypeDef")
}

// AddAttributeTypeDef implements repository.TypeDefOps.
func (f *Federator) AddAttributeTypeDef(ctx context.Context, userID string, def typedef.AttributeTypeDef) error {
	return f.typeMaintenanceUnsupported("addAttributeTypeDef")
}

// AddTypeDefGallery implements repository.TypeDefOps.
func (f *Federator) AddTypeDefGallery(ctx context.Context, userID string, gallery typedef.Gallery) error {
	return f.typeMaintenanceUnsupported("addTypeDefGallery")
}

// UpdateTypeDef implements repository.TypeDefOps.
func (f *Federator) UpdateTypeDef(ctx context.Context, userID string, patch typedef.Patch) (typedef.TypeDef, error) {
	return typedef.TypeDef{}, f.typeMaintenanceUnsupported("updateTypeDef")
}

// DeleteTypeDef implements repository.TypeDefOps.
func (f *Federator) DeleteTypeDef(ctx context.Context, userID, guid, name string) error {
	return f.typeMaintenanceUnsupported("deleteTypeDef")
}

// DeleteAttributeTypeDef implements repository.TypeDefOps.
func (f *Federator) DeleteAttributeTypeDef(ctx context.Context, userID, guid, name string) error {
	return f.typeMaintenanceUnsupported("deleteAttributeTypeDef")
}

// ReIdentifyTypeDef implements repository.TypeDefOps.
func (f *Federator) ReIdentifyTypeDef(ctx context.Context, userID, originalGUID, originalName, newGUID, newName string) (typedef.TypeDef, error) {
	return typedef.TypeDef{}, f.typeMaintenanceUnsupported("reIdentifyTypeDef")
}

// ReIdentifyAttributeTypeDef implements repository.TypeDefOps.
func (f *Federator) ReIdentifyAttributeTypeDef(ctx context.Context, userID, originalGUID, originalName, newGUID, newName string) (typedef.AttributeTypeDef, error) {
	return typedef.AttributeTypeDef{}, f.typeMaintenanceUnsupported("reIdentifyAttributeTypeDef")
}

func (f *Federator) typeMaintenanceUnsupported(op string) error {
	return errors.Annotatef(coreerrors.FunctionNotSupported,
		"%s: type maintenance is administered per repository, not through the federated view", op)
}

func (f *Federator) mergeGalleries(ctx context.Context, op string, call func(context.Context, connection) (typedef.Gallery, error)) (typedef.Gallery, error) {
	conns, err := f.snapshot()
	if err != nil {
		return typedef.Gallery{}, errors.Trace(err)
	}
	galleries, err := collect(ctx, f, conns, op, call)
	if err != nil {
		return typedef.Gallery{}, errors.Trace(err)
	}
	typeLists := make([]sourced[[]typedef.TypeDef], len(galleries))
	attributeLists := make([]sourced[[]typedef.AttributeTypeDef], len(galleries))
	for i, g := range galleries {
		typeLists[i] = sourced[[]typedef.TypeDef]{item: g.item.TypeDefs, source: g.source}
		attributeLists[i] = sourced[[]typedef.AttributeTypeDef]{item: g.item.AttributeTypeDefs, source: g.source}
	}
	return typedef.Gallery{
		TypeDefs:          mergeTypeDefLists(typeLists),
		AttributeTypeDefs: mergeAttributeTypeDefs(attributeLists),
	}, nil
}

func (f *Federator) mergeTypeDefs(ctx context.Context, op string, call func(context.Context, connection) ([]typedef.TypeDef, error)) ([]typedef.TypeDef, error) {
	conns, err := f.snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	lists, err := collect(ctx, f, conns, op, call)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return mergeTypeDefLists(lists), nil
}

func (f *Federator) bestTypeDef(ctx context.Context, op string, call func(context.Context, connection) (typedef.TypeDef, error)) (typedef.TypeDef, error) {
	conns, err := f.snapshot()
	if err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, op, call)
	if err != nil {
		return typedef.TypeDef{}, errors.Trace(err)
	}
	winner := cands[0].item
	for _, c := range cands[1:] {
		if c.item.Version > winner.Version {
			winner = c.item
		}
	}
	return winner, nil
}

func (f *Federator) bestAttributeTypeDef(ctx context.Context, op string, call func(context.Context, connection) (typedef.AttributeTypeDef, error)) (typedef.AttributeTypeDef, error) {
	conns, err := f.snapshot()
	if err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	cands, err := collect(ctx, f, conns, op, call)
	if err != nil {
		return typedef.AttributeTypeDef{}, errors.Trace(err)
	}
	winner := cands[0].item
	for _, c := range cands[1:] {
		if c.item.Version > winner.Version {
			winner = c.item
		}
	}
	return winner, nil
}

func mergeTypeDefLists(lists []sourced[[]typedef.TypeDef]) []typedef.TypeDef {
	kept := make(map[string]int)
	var out []typedef.TypeDef
	for _, list := range lists {
		for _, def := range list.item {
			i, ok := kept[def.GUID]
			if !ok {
				kept[def.GUID] = len(out)
				out = append(out, def)
				continue
			}
			if def.Version > out[i].Version {
				out[i] = def
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func mergeAttributeTypeDefs(lists []sourced[[]typedef.AttributeTypeDef]) []typedef.AttributeTypeDef {
	kept := make(map[string]int)
	var out []typedef.AttributeTypeDef
	for _, list := range lists {
		for _, def := range list.item {
			i, ok := kept[def.GUID]
			if !ok {
				kept[def.GUID] = len(out)
				out = append(out, def)
				continue
			}
			if def.Version > out[i].Version {
				out[i] = def
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
