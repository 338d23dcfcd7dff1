// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package testing provides the fixtures the package test suites
// share: a small catalogue of type definitions and factories building
// instances shaped the way the local wrapper stores them.
package testing

import (
	"time"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
)

// DataSetTypeDef returns the entity type the test suites populate
// repositories with.
func DataSetTypeDef() typedef.TypeDef {
	return typedef.TypeDef{
		Summary: typedef.Summary{
			GUID:     "type-dataset",
			Name:     "DataSet",
			Version:  1,
			Category: typedef.CategoryEntity,
		},
		Attributes: []typedef.Attribute{
			{Name: "name", TypeName: "string"},
		},
	}
}

// LinkTypeDef returns the relationship type connecting test entities.
func LinkTypeDef() typedef.TypeDef {
	return typedef.TypeDef{
		Summary: typedef.Summary{
			GUID:     "type-link",
			Name:     "Link",
			Version:  1,
			Category: typedef.CategoryRelationship,
		},
	}
}

// NewTypeCache returns a cache holding the given definitions.
func NewTypeCache(c *gc.C, defs ...typedef.TypeDef) *typedef.Cache {
	cache := typedef.NewCache()
	for _, def := range defs {
		c.Assert(cache.AddTypeDef(def), jc.ErrorIsNil)
	}
	return cache
}

// EntityParams tunes MakeDataSet. Zero fields take the documented
// defaults.
type EntityParams struct {
	// GUID identifies the entity.
	GUID string

	// Home is the owning metadata collection id.
	Home string

	// HomeName is the collection's display name. Empty takes
	// "repo-" + Home.
	HomeName string

	// Version defaults to 1. Versions past 1 carry an update stamp,
	// as a copy that has been changed at its home would.
	Version int64

	// CreateTime is the creation moment. Reference-copy comparisons
	// hang off it, so collision tests vary it deliberately.
	CreateTime time.Time

	// CreatedBy defaults to "test-admin".
	CreatedBy string

	// Properties defaults to {name: "orders"}.
	Properties instance.Properties
}

// MakeDataSet returns a DataSet entity as a wrapper at its home
// collection would store and announce it.
func MakeDataSet(p EntityParams) instance.EntityDetail {
	if p.Version == 0 {
		p.Version = 1
	}
	if p.HomeName == "" && p.Home != "" {
		p.HomeName = "repo-" + p.Home
	}
	if p.CreatedBy == "" {
		p.CreatedBy = "test-admin"
	}
	if p.Properties == nil {
		p.Properties = instance.Properties{"name": instance.NewStringValue("orders")}
	}
	e := instance.EntityDetail{
		EntitySummary: instance.EntitySummary{
			Header: instance.Header{
				AuditHeader: instance.AuditHeader{
					Type:                   instance.InstanceType{GUID: "type-dataset", Name: "DataSet", Version: 1},
					Provenance:             instance.ProvenanceLocalCohort,
					MetadataCollectionID:   p.Home,
					MetadataCollectionName: p.HomeName,
					CreatedBy:              p.CreatedBy,
					CreateTime:             p.CreateTime,
					Version:                p.Version,
					Status:                 instance.StatusActive,
				},
				GUID: p.GUID,
			},
		},
		Properties: p.Properties,
	}
	if p.Version > 1 {
		at := p.CreateTime.Add(time.Duration(p.Version) * time.Minute)
		e.UpdateTime = &at
		e.UpdatedBy = p.CreatedBy
	}
	return e
}

// MakeLink returns a Link relationship between the two entities, the
// ends carried as proxies the way cohort events carry them.
func MakeLink(guid, home string, createTime time.Time, one, two instance.EntityDetail) instance.Relationship {
	proxy := func(e instance.EntityDetail) *instance.EntityProxy {
		return &instance.EntityProxy{Header: e.Header.Copy()}
	}
	return instance.Relationship{
		Header: instance.Header{
			AuditHeader: instance.AuditHeader{
				Type:                   instance.InstanceType{GUID: "type-link", Name: "Link", Version: 1},
				Provenance:             instance.ProvenanceLocalCohort,
				MetadataCollectionID:   home,
				MetadataCollectionName: "repo-" + home,
				CreatedBy:              "test-admin",
				CreateTime:             createTime,
				Version:                1,
				Status:                 instance.StatusActive,
			},
			GUID: guid,
		},
		EntityOne: proxy(one),
		EntityTwo: proxy(two),
	}
}
