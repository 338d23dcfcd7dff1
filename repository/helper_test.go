// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package repository_test

import (
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
	"github.com/juju/metafed/repository"
)

type HelperSuite struct {
	testing.IsolationSuite

	clock  *testclock.Clock
	types  *typedef.Cache
	helper *repository.Helper
	origin repository.InstanceOrigin
}

var _ = gc.Suite(&HelperSuite{})

func (s *HelperSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	s.types = typedef.NewCache()
	c.Assert(s.types.AddTypeDef(typedef.TypeDef{
		Summary: typedef.Summary{GUID: "type-1", Name: "DataSet", Version: 1, Category: typedef.CategoryEntity},
		Attributes: []typedef.Attribute{
			{Name: "name", TypeName: "string"},
			{Name: "qualifiedName", TypeName: "string", Unique: true},
		},
	}), jc.ErrorIsNil)
	c.Assert(s.types.AddTypeDef(typedef.TypeDef{
		Summary: typedef.Summary{GUID: "type-7", Name: "DataFlow", Version: 1, Category: typedef.CategoryRelationship},
	}), jc.ErrorIsNil)
	c.Assert(s.types.AddTypeDef(typedef.TypeDef{
		Summary: typedef.Summary{GUID: "type-9", Name: "Confidential", Version: 1, Category: typedef.CategoryClassification},
	}), jc.ErrorIsNil)
	s.helper = repository.NewHelper(s.types, s.clock)
	s.origin = repository.InstanceOrigin{
		MetadataCollectionID:   "A",
		MetadataCollectionName: "collection A",
		Provenance:             instance.ProvenanceLocalCohort,
	}
}

func (s *HelperSuite) TestNewEntity(c *gc.C) {
	properties := instance.Properties{"name": instance.NewStringValue("orders")}
	entity, err := s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{
		TypeName:   "DataSet",
		Properties: properties,
		Classifications: []instance.Classification{
			{Name: "Confidential", Properties: instance.Properties{"level": instance.NewIntValue(2)}},
		},
	})
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(entity.GUID, gc.Not(gc.Equals), "")
	c.Assert(entity.Type, gc.Equals, instance.InstanceType{GUID: "type-1", Name: "DataSet", Version: 1})
	c.Assert(entity.Version, gc.Equals, int64(1))
	c.Assert(entity.Status, gc.Equals, instance.StatusActive)
	c.Assert(entity.Provenance, gc.Equals, instance.ProvenanceLocalCohort)
	c.Assert(entity.MetadataCollectionID, gc.Equals, "A")
	c.Assert(entity.MetadataCollectionName, gc.Equals, "collection A")
	c.Assert(entity.CreatedBy, gc.Equals, "erin")
	c.Assert(entity.CreateTime, gc.Equals, s.clock.Now().UTC())
	c.Assert(entity.UpdateTime, gc.IsNil)

	c.Assert(entity.Classifications, gc.HasLen, 1)
	stamped := entity.Classifications[0]
	c.Assert(stamped.Type, gc.Equals, instance.InstanceType{GUID: "type-9", Name: "Confidential", Version: 1})
	c.Assert(stamped.Origin, gc.Equals, instance.OriginAssigned)
	c.Assert(stamped.Version, gc.Equals, int64(1))

	// The helper copies caller-supplied properties.
	properties["name"] = instance.NewStringValue("mutated")
	c.Assert(entity.Properties["name"].Equal(instance.NewStringValue("orders")), jc.IsTrue)
}

func (s *HelperSuite) TestNewEntityUnknownType(c *gc.C) {
	_, err := s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{TypeName: "Mystery"})
	c.Assert(err, jc.ErrorIs, coreerrors.TypeDefNotKnown)
}

func (s *HelperSuite) TestNewEntityWrongCategory(c *gc.C) {
	_, err := s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{TypeName: "DataFlow"})
	c.Assert(err, jc.ErrorIs, coreerrors.TypeError)
}

func (s *HelperSuite) TestNewEntityInitialStatus(c *gc.C) {
	entity, err := s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{
		TypeName:      "DataSet",
		InitialStatus: instance.StatusDraft,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(entity.Status, gc.Equals, instance.StatusDraft)

	_, err = s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{
		TypeName:      "DataSet",
		InitialStatus: instance.StatusDeleted,
	})
	c.Assert(err, jc.ErrorIs, coreerrors.StatusNotSupported)
}

func (s *HelperSuite) TestNewEntityRestrictedStatuses(c *gc.C) {
	c.Assert(s.types.AddTypeDef(typedef.TypeDef{
		Summary:       typedef.Summary{GUID: "type-2", Name: "Report", Version: 1, Category: typedef.CategoryEntity},
		ValidStatuses: []instance.Status{instance.StatusDraft},
		InitialStatus: instance.StatusDraft,
	}), jc.ErrorIsNil)

	entity, err := s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{TypeName: "Report"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(entity.Status, gc.Equals, instance.StatusDraft)

	_, err = s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{
		TypeName:      "Report",
		InitialStatus: instance.StatusActive,
	})
	c.Assert(err, jc.ErrorIs, coreerrors.StatusNotSupported)
}

func (s *HelperSuite) TestNewRelationship(c *gc.C) {
	endOne := instance.EntityProxy{Header: instance.Header{GUID: "g1"}}
	endTwo := instance.EntityProxy{Header: instance.Header{GUID: "g2"}}
	r, err := s.helper.NewRelationship("erin", s.origin, repository.AddRelationshipArgs{
		TypeName: "DataFlow",
	}, endOne, endTwo)
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(r.Type.Name, gc.Equals, "DataFlow")
	c.Assert(r.Version, gc.Equals, int64(1))
	c.Assert(r.EntityOne.GUID, gc.Equals, "g1")
	c.Assert(r.EntityTwo.GUID, gc.Equals, "g2")

	// Ends are owned copies.
	endOne.GUID = "mutated"
	c.Assert(r.EntityOne.GUID, gc.Equals, "g1")
}

func (s *HelperSuite) TestNewRelationshipWrongCategory(c *gc.C) {
	_, err := s.helper.NewRelationship("erin", s.origin, repository.AddRelationshipArgs{
		TypeName: "DataSet",
	}, instance.EntityProxy{}, instance.EntityProxy{})
	c.Assert(err, jc.ErrorIs, coreerrors.TypeError)
}

func (s *HelperSuite) TestNewClassificationWrongCategory(c *gc.C) {
	_, err := s.helper.NewClassification("erin", s.origin, "DataSet", nil)
	c.Assert(err, jc.ErrorIs, coreerrors.ClassificationError)

	_, err = s.helper.NewClassification("erin", s.origin, "Mystery", nil)
	c.Assert(err, jc.ErrorIs, coreerrors.ClassificationError)
}

func (s *HelperSuite) TestNewEntityProxy(c *gc.C) {
	entity, err := s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{
		TypeName: "DataSet",
		Properties: instance.Properties{
			"name":          instance.NewStringValue("orders"),
			"qualifiedName": instance.NewStringValue("a.orders"),
		},
	})
	c.Assert(err, jc.ErrorIsNil)

	proxy, err := s.helper.NewEntityProxy(entity)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(proxy.GUID, gc.Equals, entity.GUID)
	c.Assert(proxy.UniqueProperties, gc.HasLen, 1)
	c.Assert(proxy.UniqueProperties["qualifiedName"].Equal(instance.NewStringValue("a.orders")), jc.IsTrue)
}

func (s *HelperSuite) TestNewEntityProxyUnknownType(c *gc.C) {
	entity := instance.EntityDetail{}
	entity.GUID = "g1"
	entity.Type = instance.InstanceType{GUID: "gone", Name: "Gone", Version: 1}
	proxy, err := s.helper.NewEntityProxy(entity)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(proxy.GUID, gc.Equals, "g1")
	c.Assert(proxy.UniqueProperties, gc.HasLen, 0)
}

func (s *HelperSuite) TestAdvance(c *gc.C) {
	entity, err := s.helper.NewEntity("erin", s.origin, repository.AddEntityArgs{TypeName: "DataSet"})
	c.Assert(err, jc.ErrorIsNil)

	s.clock.Advance(time.Minute)
	s.helper.Advance(&entity.AuditHeader, "sam")

	c.Assert(entity.Version, gc.Equals, int64(2))
	c.Assert(entity.UpdatedBy, gc.Equals, "sam")
	c.Assert(entity.UpdateTime, gc.NotNil)
	c.Assert(*entity.UpdateTime, gc.Equals, s.clock.Now().UTC())
	c.Assert(entity.CreatedBy, gc.Equals, "erin")
}
