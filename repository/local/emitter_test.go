// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package local_test

import (
	"context"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/metafed/core/event"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/repository/local"
)

type EmitterSuite struct {
	baseSuite
}

var _ = gc.Suite(&EmitterSuite{})

func (s *EmitterSuite) TestConfigValidate(c *gc.C) {
	_, err := local.NewEmitter(local.EmitterConfig{
		Originator: event.Originator{MetadataCollectionID: collectionID},
	})
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = local.NewEmitter(local.EmitterConfig{
		Publisher: &capturePublisher{},
	})
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = local.NewEmitter(local.EmitterConfig{
		Publisher:  &capturePublisher{},
		Originator: event.Originator{MetadataCollectionID: collectionID},
	})
	c.Check(err, jc.ErrorIsNil)
}

func (s *EmitterSuite) TestChangeEventsGatedOff(c *gc.C) {
	repo, publisher := s.emitterRepo(c, false)

	_, err := repo.AddEntity(context.Background(), user, addDataSetArgs("orders"))
	c.Assert(err, jc.ErrorIsNil)

	c.Check(publisher.events(c), gc.HasLen, 0)
}

func (s *EmitterSuite) TestEntityLifecycleEvents(c *gc.C) {
	repo, publisher := s.emitterRepo(c, true)

	e, err := repo.AddEntity(context.Background(), user, addDataSetArgs("orders"))
	c.Assert(err, jc.ErrorIsNil)
	_, err = repo.UpdateEntityProperties(context.Background(), user, e.GUID, instance.Properties{
		"name": instance.NewStringValue("orders_v2"),
	})
	c.Assert(err, jc.ErrorIsNil)
	_, err = repo.DeleteEntity(context.Background(), user, "type-dataset", "DataSet", e.GUID)
	c.Assert(err, jc.ErrorIsNil)
	err = repo.PurgeEntity(context.Background(), user, "type-dataset", "DataSet", e.GUID)
	c.Assert(err, jc.ErrorIsNil)

	events := publisher.events(c)
	c.Assert(events, gc.HasLen, 4)

	c.Check(events[0].Type, gc.Equals, event.TypeNewEntity)
	c.Check(events[0].ProtocolVersion, gc.Equals, event.ProtocolV1)
	c.Check(events[0].Originator.MetadataCollectionID, gc.Equals, collectionID)
	c.Assert(events[0].Entity, gc.NotNil)
	c.Check(events[0].Entity.GUID, gc.Equals, e.GUID)

	c.Check(events[1].Type, gc.Equals, event.TypeUpdatedEntity)
	c.Assert(events[1].OriginalEntity, gc.NotNil)
	c.Check(events[1].OriginalEntity.Version, gc.Equals, int64(1))
	c.Assert(events[1].Entity, gc.NotNil)
	c.Check(events[1].Entity.Version, gc.Equals, int64(2))

	c.Check(events[2].Type, gc.Equals, event.TypeDeletedEntity)

	c.Check(events[3].Type, gc.Equals, event.TypePurgedEntity)
	c.Check(events[3].TypeDefGUID, gc.Equals, "type-dataset")
	c.Check(events[3].TypeDefName, gc.Equals, "DataSet")
	c.Check(events[3].InstanceGUID, gc.Equals, e.GUID)
	c.Check(events[3].Entity, gc.IsNil)
}

func (s *EmitterSuite) TestRelationshipEvents(c *gc.C) {
	repo, publisher := s.emitterRepo(c, true)

	one, err := repo.AddEntity(context.Background(), user, addDataSetArgs("orders"))
	c.Assert(err, jc.ErrorIsNil)
	two, err := repo.AddEntity(context.Background(), user, addDataSetArgs("customers"))
	c.Assert(err, jc.ErrorIsNil)
	rel, err := repo.AddRelationship(context.Background(), user, addLinkArgs(one.GUID, two.GUID))
	c.Assert(err, jc.ErrorIsNil)

	events := publisher.events(c)
	c.Assert(events, gc.HasLen, 3)
	c.Check(events[2].Type, gc.Equals, event.TypeNewRelationship)
	c.Assert(events[2].Relationship, gc.NotNil)
	c.Check(events[2].Relationship.GUID, gc.Equals, rel.GUID)
}

func (s *EmitterSuite) TestClassificationEvents(c *gc.C) {
	repo, publisher := s.emitterRepo(c, true)

	e, err := repo.AddEntity(context.Background(), user, addDataSetArgs("orders"))
	c.Assert(err, jc.ErrorIsNil)
	_, err = repo.ClassifyEntity(context.Background(), user, e.GUID, "Confidential", nil)
	c.Assert(err, jc.ErrorIsNil)
	_, err = repo.DeclassifyEntity(context.Background(), user, e.GUID, "Confidential")
	c.Assert(err, jc.ErrorIsNil)

	events := publisher.events(c)
	c.Assert(events, gc.HasLen, 3)
	c.Check(events[1].Type, gc.Equals, event.TypeClassifiedEntity)
	c.Check(events[2].Type, gc.Equals, event.TypeDeclassifiedEntity)
}

func (s *EmitterSuite) TestPublishFailureDoesNotFailWrites(c *gc.C) {
	repo := s.publishFailureRepo(c)

	e, err := repo.AddEntity(context.Background(), user, addDataSetArgs("orders"))
	c.Assert(err, jc.ErrorIsNil)

	// The write landed even though the announcement was lost.
	c.Check(s.getEntity(c, e.GUID).GUID, gc.Equals, e.GUID)
}

func (s *EmitterSuite) TestProtocolEventFailureSurfaces(c *gc.C) {
	repo := s.publishFailureRepo(c)
	s.saveForeignCopy(c, s.foreignDataSet("g1", "mc-other", 1))

	err := repo.RefreshEntityReferenceCopy(context.Background(), user, "g1", "type-dataset", "DataSet", "mc-other")
	c.Assert(err, gc.ErrorMatches, "bus down")
}

func (s *EmitterSuite) publishFailureRepo(c *gc.C) *local.Repository {
	emitter, err := local.NewEmitter(local.EmitterConfig{
		Publisher:           failingPublisher{},
		Originator:          event.Originator{MetadataCollectionID: collectionID, ServerName: "server-main"},
		ProduceChangeEvents: true,
	})
	c.Assert(err, jc.ErrorIsNil)
	repo, err := local.NewRepository(local.Config{
		MetadataCollectionID:   collectionID,
		MetadataCollectionName: "main",
		Backend:                s.backend,
		Types:                  s.types,
		Emitter:                emitter,
		Clock:                  s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)
	return repo
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, message []byte) error {
	return errors.New("bus down")
}
