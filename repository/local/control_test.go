// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package local_test

import (
	"context"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
)

type ControlSuite struct {
	baseSuite
}

var _ = gc.Suite(&ControlSuite{})

func (s *ControlSuite) TestReIdentifyEntity(c *gc.C) {
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	link := s.addLink(c, one.GUID, two.GUID)

	updated, err := s.repo.ReIdentifyEntity(context.Background(), user, "type-dataset", "DataSet", one.GUID, "g-new")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(updated.GUID, gc.Equals, "g-new")
	c.Check(updated.Version, gc.Equals, int64(2))

	// The old identity is gone and attached relationships follow the
	// new one without a version bump of their own.
	gone, err := s.repo.IsEntityKnown(context.Background(), user, one.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(gone, gc.IsNil)

	rel, err := s.repo.GetRelationship(context.Background(), user, link.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(rel.HasEnd("g-new"), jc.IsTrue)
	c.Check(rel.HasEnd(one.GUID), jc.IsFalse)
	c.Check(rel.Version, gc.Equals, int64(1))
}

func (s *ControlSuite) TestReIdentifyEntityGUIDInUse(c *gc.C) {
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")

	_, err := s.repo.ReIdentifyEntity(context.Background(), user, "type-dataset", "DataSet", one.GUID, two.GUID)
	c.Assert(err, jc.ErrorIs, coreerrors.EntityConflict)
}

func (s *ControlSuite) TestReIdentifyEntityWrongTypeRejected(c *gc.C) {
	one := s.addDataSet(c, "orders")
	_, err := s.repo.ReIdentifyEntity(context.Background(), user, "type-report", "Report", one.GUID, "g-new")
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidParameter)
}

func (s *ControlSuite) TestReIdentifyForeignCopyRejected(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))
	_, err := s.repo.ReIdentifyEntity(context.Background(), user, "type-dataset", "DataSet", "g1", "g-new")
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidParameter)
}

func (s *ControlSuite) TestReTypeEntity(c *gc.C) {
	c.Assert(s.types.AddTypeDef(typedef.TypeDef{
		Summary: typedef.Summary{GUID: "type-table", Name: "Table", Version: 1, Category: typedef.CategoryEntity},
		Attributes: []typedef.Attribute{
			{Name: "name", TypeName: "string", Unique: true},
		},
	}), jc.ErrorIsNil)
	e := s.addDataSet(c, "orders")

	updated, err := s.repo.ReTypeEntity(context.Background(), user, e.GUID,
		typedef.Summary{GUID: "type-dataset", Name: "DataSet", Version: 1, Category: typedef.CategoryEntity},
		typedef.Summary{GUID: "type-table", Name: "Table", Version: 1, Category: typedef.CategoryEntity})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(updated.Type.GUID, gc.Equals, "type-table")
	c.Check(updated.Type.Name, gc.Equals, "Table")
	c.Check(updated.Version, gc.Equals, int64(2))
	c.Check(updated.Properties["name"], jc.DeepEquals, instance.NewStringValue("orders"))
}

func (s *ControlSuite) TestReTypeEntityToRelationshipTypeRejected(c *gc.C) {
	e := s.addDataSet(c, "orders")
	_, err := s.repo.ReTypeEntity(context.Background(), user, e.GUID,
		typedef.Summary{GUID: "type-dataset", Name: "DataSet", Version: 1, Category: typedef.CategoryEntity},
		typedef.Summary{GUID: "type-link", Name: "Link", Version: 1, Category: typedef.CategoryRelationship})
	c.Assert(err, jc.ErrorIs, coreerrors.TypeError)
}

func (s *ControlSuite) TestReTypeEntityPropertiesMustFit(c *gc.C) {
	e, err := s.repo.AddEntity(context.Background(), user, addDataSetArgs("orders"))
	c.Assert(err, jc.ErrorIsNil)
	_, err = s.repo.UpdateEntityProperties(context.Background(), user, e.GUID, instance.Properties{
		"name":        instance.NewStringValue("orders"),
		"description": instance.NewStringValue("all orders"),
	})
	c.Assert(err, jc.ErrorIsNil)

	// Report does not declare "description".
	_, err = s.repo.ReTypeEntity(context.Background(), user, e.GUID,
		typedef.Summary{GUID: "type-dataset", Name: "DataSet", Version: 1, Category: typedef.CategoryEntity},
		typedef.Summary{GUID: "type-report", Name: "Report", Version: 1, Category: typedef.CategoryEntity})
	c.Assert(err, jc.ErrorIs, coreerrors.PropertyError)
}

func (s *ControlSuite) TestReTypeEntityWrongCurrentTypeRejected(c *gc.C) {
	e := s.addDataSet(c, "orders")
	_, err := s.repo.ReTypeEntity(context.Background(), user, e.GUID,
		typedef.Summary{GUID: "type-report", Name: "Report", Version: 1, Category: typedef.CategoryEntity},
		typedef.Summary{GUID: "type-dataset", Name: "DataSet", Version: 1, Category: typedef.CategoryEntity})
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidParameter)
}

func (s *ControlSuite) TestReHomeEntity(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))

	adopted, err := s.repo.ReHomeEntity(context.Background(), user, "g1", "type-dataset", "DataSet",
		"mc-other", collectionID, "main")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(adopted.MetadataCollectionID, gc.Equals, collectionID)
	c.Check(adopted.MetadataCollectionName, gc.Equals, "main")
	c.Check(adopted.Provenance, gc.Equals, instance.ProvenanceLocalCohort)
	c.Check(adopted.ReplicatedBy, gc.Equals, "")
	c.Check(adopted.Version, gc.Equals, int64(2))

	// The adopted entity is writable here now.
	_, err = s.repo.UpdateEntityProperties(context.Background(), user, "g1", instance.Properties{
		"name": instance.NewStringValue("adopted"),
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *ControlSuite) TestReHomeEntityWrongCurrentHome(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))
	_, err := s.repo.ReHomeEntity(context.Background(), user, "g1", "type-dataset", "DataSet",
		"mc-wrong", collectionID, "main")
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidParameter)
	c.Assert(err, gc.ErrorMatches, `home collection "mc-wrong" does not match the instance's home "mc-other".*`)
}

func (s *ControlSuite) TestReHomeEntityAlreadyLocal(c *gc.C) {
	e := s.addDataSet(c, "orders")
	_, err := s.repo.ReHomeEntity(context.Background(), user, e.GUID, "type-dataset", "DataSet",
		collectionID, collectionID, "main")
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidParameter)
}

func (s *ControlSuite) TestReHomeEntityMustAdoptLocally(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))
	_, err := s.repo.ReHomeEntity(context.Background(), user, "g1", "type-dataset", "DataSet",
		"mc-other", "mc-third", "third")
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidParameter)
}

func (s *ControlSuite) TestReIdentifyRelationship(c *gc.C) {
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	rel := s.addLink(c, one.GUID, two.GUID)

	updated, err := s.repo.ReIdentifyRelationship(context.Background(), user, "type-link", "Link", rel.GUID, "rel-new")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(updated.GUID, gc.Equals, "rel-new")
	c.Check(updated.Version, gc.Equals, int64(2))

	gone, err := s.repo.IsRelationshipKnown(context.Background(), user, rel.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(gone, gc.IsNil)
}

func (s *ControlSuite) TestReIdentifyRelationshipGUIDInUse(c *gc.C) {
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	first := s.addLink(c, one.GUID, two.GUID)
	second := s.addLink(c, two.GUID, one.GUID)

	_, err := s.repo.ReIdentifyRelationship(context.Background(), user, "type-link", "Link", first.GUID, second.GUID)
	c.Assert(err, jc.ErrorIs, coreerrors.RelationshipConflict)
}

func (s *ControlSuite) TestReHomeRelationship(c *gc.C) {
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	foreign := s.foreignLink(c, "rel-remote", "mc-other", one.GUID, two.GUID)

	adopted, err := s.repo.ReHomeRelationship(context.Background(), user, foreign.GUID, "type-link", "Link",
		"mc-other", collectionID, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(adopted.MetadataCollectionID, gc.Equals, collectionID)
	c.Check(adopted.MetadataCollectionName, gc.Equals, "main")
	c.Check(adopted.ReplicatedBy, gc.Equals, "")
	c.Check(adopted.Version, gc.Equals, int64(2))
}

func (s *ControlSuite) TestReTypeRelationship(c *gc.C) {
	c.Assert(s.types.AddTypeDef(typedef.TypeDef{
		Summary: typedef.Summary{GUID: "type-feed", Name: "Feed", Version: 1, Category: typedef.CategoryRelationship},
	}), jc.ErrorIsNil)
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	rel := s.addLink(c, one.GUID, two.GUID)

	updated, err := s.repo.ReTypeRelationship(context.Background(), user, rel.GUID,
		typedef.Summary{GUID: "type-link", Name: "Link", Version: 1, Category: typedef.CategoryRelationship},
		typedef.Summary{GUID: "type-feed", Name: "Feed", Version: 1, Category: typedef.CategoryRelationship})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(updated.Type.Name, gc.Equals, "Feed")
	c.Check(updated.Version, gc.Equals, int64(2))
}
