// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package local_test

import (
	"context"
	"time"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/event"
	"github.com/juju/metafed/core/instance"
)

type RefCopySuite struct {
	baseSuite
}

var _ = gc.Suite(&RefCopySuite{})

func (s *RefCopySuite) TestSaveEntityReferenceCopyVerbatim(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 7))

	e := s.getEntity(c, "g1")
	c.Check(e.Version, gc.Equals, int64(7))
	c.Check(e.CreatedBy, gc.Equals, "remote")
	c.Check(e.UpdatedBy, gc.Equals, "remote")
	c.Check(e.UpdateTime, gc.NotNil)
	c.Check(e.MetadataCollectionID, gc.Equals, "mc-other")
}

func (s *RefCopySuite) TestSaveEntityReferenceCopySupersedes(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 3))

	e := s.getEntity(c, "g1")
	c.Check(e.Version, gc.Equals, int64(3))
}

func (s *RefCopySuite) TestSaveEntityReferenceCopyRejectsLocalHome(c *gc.C) {
	err := s.repo.SaveEntityReferenceCopy(context.Background(), user, s.foreignDataSet("g1", collectionID, 1))
	c.Assert(err, jc.ErrorIs, coreerrors.HomeEntity)
}

func (s *RefCopySuite) TestSaveEntityReferenceCopyRejectsUnknownType(c *gc.C) {
	e := s.foreignDataSet("g1", "mc-other", 1)
	e.Type = instance.InstanceType{GUID: "type-mystery", Name: "Mystery", Version: 1}
	e.Properties = nil
	err := s.repo.SaveEntityReferenceCopy(context.Background(), user, e)
	c.Assert(err, jc.ErrorIs, coreerrors.TypeDefNotKnown)
}

func (s *RefCopySuite) TestReferenceCopiesReadOnly(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))

	_, err := s.repo.UpdateEntityProperties(context.Background(), user, "g1", instance.Properties{
		"name": instance.NewStringValue("hijacked"),
	})
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidParameter)

	_, err = s.repo.DeleteEntity(context.Background(), user, "type-dataset", "DataSet", "g1")
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidParameter)
}

func (s *RefCopySuite) TestPurgeEntityReferenceCopy(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))

	err := s.repo.PurgeEntityReferenceCopy(context.Background(), user, "g1", "type-dataset", "DataSet", "mc-other")
	c.Assert(err, jc.ErrorIsNil)

	_, err = s.repo.GetEntityDetail(context.Background(), user, "g1")
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)
}

func (s *RefCopySuite) TestPurgeEntityReferenceCopyMissing(c *gc.C) {
	err := s.repo.PurgeEntityReferenceCopy(context.Background(), user, "g-missing", "type-dataset", "DataSet", "mc-other")
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)
}

func (s *RefCopySuite) TestPurgeEntityReferenceCopyRejectsHome(c *gc.C) {
	e := s.addDataSet(c, "orders")
	err := s.repo.PurgeEntityReferenceCopy(context.Background(), user, e.GUID, "type-dataset", "DataSet", collectionID)
	c.Assert(err, jc.ErrorIs, coreerrors.HomeEntity)
}

func (s *RefCopySuite) TestRefreshEntityReferenceCopy(c *gc.C) {
	repo, publisher := s.emitterRepo(c, false)
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))

	err := repo.RefreshEntityReferenceCopy(context.Background(), user, "g1", "type-dataset", "DataSet", "mc-other")
	c.Assert(err, jc.ErrorIsNil)

	events := publisher.events(c)
	c.Assert(events, gc.HasLen, 1)
	c.Check(events[0].Type, gc.Equals, event.TypeRefreshEntityRequest)
	c.Check(events[0].TypeDefGUID, gc.Equals, "type-dataset")
	c.Check(events[0].TypeDefName, gc.Equals, "DataSet")
	c.Check(events[0].InstanceGUID, gc.Equals, "g1")
	c.Check(events[0].HomeMetadataCollectionID, gc.Equals, "mc-other")
	c.Check(events[0].Originator.MetadataCollectionID, gc.Equals, collectionID)
	c.Check(events[0].Originator.ServerName, gc.Equals, "server-main")
}

func (s *RefCopySuite) TestRefreshEntityRejectsLocalHome(c *gc.C) {
	repo, _ := s.emitterRepo(c, false)
	e := s.addDataSet(c, "orders")
	err := repo.RefreshEntityReferenceCopy(context.Background(), user, e.GUID, "type-dataset", "DataSet", collectionID)
	c.Assert(err, jc.ErrorIs, coreerrors.HomeEntity)
}

func (s *RefCopySuite) TestRefreshNeedsEventConnection(c *gc.C) {
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))
	err := s.repo.RefreshEntityReferenceCopy(context.Background(), user, "g1", "type-dataset", "DataSet", "mc-other")
	c.Assert(err, jc.ErrorIs, coreerrors.FunctionNotSupported)
}

func (s *RefCopySuite) TestSaveRelationshipReferenceCopyMaterializesEnds(c *gc.C) {
	one := s.foreignDataSet("g-a", "mc-other", 1)
	two := s.foreignDataSet("g-b", "mc-other", 1)
	rel := instance.Relationship{
		Header: instance.Header{
			AuditHeader: instance.AuditHeader{
				Type:                 instance.InstanceType{GUID: "type-link", Name: "Link", Version: 1},
				Provenance:           instance.ProvenanceLocalCohort,
				MetadataCollectionID: "mc-other",
				CreatedBy:            "remote",
				CreateTime:           s.clock.Now().Add(-time.Hour).UTC(),
				Version:              1,
				Status:               instance.StatusActive,
			},
			GUID: "rel-far",
		},
		EntityOne: &instance.EntityProxy{Header: one.Header},
		EntityTwo: &instance.EntityProxy{Header: two.Header},
	}
	c.Assert(s.repo.SaveRelationshipReferenceCopy(context.Background(), user, rel), jc.ErrorIsNil)

	got, err := s.repo.GetRelationship(context.Background(), user, "rel-far")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.MetadataCollectionID, gc.Equals, "mc-other")

	// The ends were never stored here, so proxies stand in for them.
	summary, err := s.repo.GetEntitySummary(context.Background(), user, "g-a")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(summary.MetadataCollectionID, gc.Equals, "mc-other")
	_, err = s.repo.GetEntityDetail(context.Background(), user, "g-a")
	c.Assert(err, jc.ErrorIs, coreerrors.EntityProxyOnly)
}

func (s *RefCopySuite) TestSaveRelationshipReferenceCopyRejectsLocalHome(c *gc.C) {
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	rel := s.addLink(c, one.GUID, two.GUID)
	err := s.repo.SaveRelationshipReferenceCopy(context.Background(), user, rel)
	c.Assert(err, jc.ErrorIs, coreerrors.HomeRelationship)
}

func (s *RefCopySuite) TestPurgeRelationshipReferenceCopy(c *gc.C) {
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	foreign := s.foreignLink(c, "rel-remote", "mc-other", one.GUID, two.GUID)

	err := s.repo.PurgeRelationshipReferenceCopy(context.Background(), user, foreign.GUID, "type-link", "Link", "mc-other")
	c.Assert(err, jc.ErrorIsNil)

	_, err = s.repo.GetRelationship(context.Background(), user, foreign.GUID)
	c.Assert(err, jc.ErrorIs, coreerrors.RelationshipNotKnown)
}

func (s *RefCopySuite) TestPurgeRelationshipReferenceCopyRejectsHome(c *gc.C) {
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	rel := s.addLink(c, one.GUID, two.GUID)

	err := s.repo.PurgeRelationshipReferenceCopy(context.Background(), user, rel.GUID, "type-link", "Link", collectionID)
	c.Assert(err, jc.ErrorIs, coreerrors.HomeRelationship)
}

func (s *RefCopySuite) TestRefreshRelationshipReferenceCopy(c *gc.C) {
	repo, publisher := s.emitterRepo(c, false)
	one := s.addDataSet(c, "orders")
	two := s.addDataSet(c, "customers")
	foreign := s.foreignLink(c, "rel-remote", "mc-other", one.GUID, two.GUID)

	err := repo.RefreshRelationshipReferenceCopy(context.Background(), user, foreign.GUID, "type-link", "Link", "mc-other")
	c.Assert(err, jc.ErrorIsNil)

	events := publisher.events(c)
	c.Assert(events, gc.HasLen, 1)
	c.Check(events[0].Type, gc.Equals, event.TypeRefreshRelationshipRequest)
	c.Check(events[0].InstanceGUID, gc.Equals, foreign.GUID)
	c.Check(events[0].HomeMetadataCollectionID, gc.Equals, "mc-other")
}

func (s *RefCopySuite) TestSaveInstanceReferenceCopiesOrdersEntitiesFirst(c *gc.C) {
	one := s.foreignDataSet("g-a", "mc-other", 1)
	two := s.foreignDataSet("g-b", "mc-other", 1)
	rel := instance.Relationship{
		Header: instance.Header{
			AuditHeader: instance.AuditHeader{
				Type:                 instance.InstanceType{GUID: "type-link", Name: "Link", Version: 1},
				Provenance:           instance.ProvenanceLocalCohort,
				MetadataCollectionID: "mc-other",
				CreatedBy:            "remote",
				CreateTime:           s.clock.Now().Add(-time.Hour).UTC(),
				Version:              1,
				Status:               instance.StatusActive,
			},
			GUID: "rel-far",
		},
		EntityOne: &instance.EntityProxy{Header: one.Header},
		EntityTwo: &instance.EntityProxy{Header: two.Header},
	}
	err := s.repo.SaveInstanceReferenceCopies(context.Background(), user, instance.Graph{
		Entities:      []instance.EntityDetail{one, two},
		Relationships: []instance.Relationship{rel},
	})
	c.Assert(err, jc.ErrorIsNil)

	// Both ends arrived in the same batch as full copies.
	c.Check(s.getEntity(c, "g-a").Version, gc.Equals, int64(1))
	c.Check(s.getEntity(c, "g-b").Version, gc.Equals, int64(1))
	_, err = s.repo.GetRelationship(context.Background(), user, "rel-far")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *RefCopySuite) TestSaveInstanceReferenceCopiesPartialFailure(c *gc.C) {
	err := s.repo.SaveInstanceReferenceCopies(context.Background(), user, instance.Graph{
		Entities: []instance.EntityDetail{
			s.foreignDataSet("g-good", "mc-other", 1),
			s.foreignDataSet("g-bad", collectionID, 1),
		},
	})
	c.Assert(err, jc.ErrorIs, coreerrors.HomeEntity)
	c.Assert(err, gc.ErrorMatches, "1 of 2 reference copies failed: .*")

	// The batch continued past the failure.
	c.Check(s.getEntity(c, "g-good").Version, gc.Equals, int64(1))
}
