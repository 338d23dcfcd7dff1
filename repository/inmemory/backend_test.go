// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package inmemory_test

import (
	"context"
	"time"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/repository"
	"github.com/juju/metafed/repository/inmemory"
)

var testTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func makeEntity(guid, typeGUID, name string) instance.EntityDetail {
	e := instance.EntityDetail{}
	e.GUID = guid
	e.Type = instance.InstanceType{GUID: typeGUID, Name: "DataSet", Version: 1}
	e.Version = 1
	e.Status = instance.StatusActive
	e.MetadataCollectionID = "A"
	e.CreateTime = testTime
	if name != "" {
		e.Properties = instance.Properties{"name": instance.NewStringValue(name)}
	}
	return e
}

func makeProxy(guid string) instance.EntityProxy {
	p := instance.EntityProxy{}
	p.GUID = guid
	p.Type = instance.InstanceType{GUID: "type-1", Name: "DataSet", Version: 1}
	p.Version = 1
	p.MetadataCollectionID = "B"
	p.CreateTime = testTime
	return p
}

func makeRelationship(guid, typeGUID, endOne, endTwo string) instance.Relationship {
	one := makeProxy(endOne)
	two := makeProxy(endTwo)
	r := instance.Relationship{EntityOne: &one, EntityTwo: &two}
	r.GUID = guid
	r.Type = instance.InstanceType{GUID: typeGUID, Name: "DataFlow", Version: 1}
	r.Version = 1
	r.Status = instance.StatusActive
	r.MetadataCollectionID = "A"
	r.CreateTime = testTime
	return r
}

type BackendSuite struct {
	testing.IsolationSuite

	backend *inmemory.Backend
}

var _ = gc.Suite(&BackendSuite{})

func (s *BackendSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.backend = inmemory.New()
}

func (s *BackendSuite) TestLookupMissing(c *gc.C) {
	lookup, err := s.backend.LookupEntity(context.Background(), "absent")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(lookup.Kind, gc.Equals, repository.EntityMissing)
}

func (s *BackendSuite) TestPutAndLookupEntity(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)

	lookup, err := s.backend.LookupEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(lookup.Kind, gc.Equals, repository.EntityFull)
	c.Assert(lookup.Entity.GUID, gc.Equals, "g1")
}

func (s *BackendSuite) TestPutEntityWithoutGUID(c *gc.C) {
	err := s.backend.PutEntity(context.Background(), instance.EntityDetail{})
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidEntity)
}

func (s *BackendSuite) TestProxyLookup(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntityProxy(ctx, makeProxy("g1")), jc.ErrorIsNil)

	lookup, err := s.backend.LookupEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(lookup.Kind, gc.Equals, repository.EntityProxyOnly)
	c.Assert(lookup.Proxy.GUID, gc.Equals, "g1")
}

func (s *BackendSuite) TestEntitySupersedesProxy(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntityProxy(ctx, makeProxy("g1")), jc.ErrorIsNil)
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)

	lookup, err := s.backend.LookupEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(lookup.Kind, gc.Equals, repository.EntityFull)
}

func (s *BackendSuite) TestProxyDoesNotShadowEntity(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)
	c.Assert(s.backend.PutEntityProxy(ctx, makeProxy("g1")), jc.ErrorIsNil)

	lookup, err := s.backend.LookupEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(lookup.Kind, gc.Equals, repository.EntityFull)
}

func (s *BackendSuite) TestPreviousEntity(c *gc.C) {
	ctx := context.Background()
	_, err := s.backend.PreviousEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)

	v1 := makeEntity("g1", "type-1", "orders")
	c.Assert(s.backend.PutEntity(ctx, v1), jc.ErrorIsNil)
	_, err = s.backend.PreviousEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)

	v2 := makeEntity("g1", "type-1", "orders-renamed")
	v2.Version = 2
	c.Assert(s.backend.PutEntity(ctx, v2), jc.ErrorIsNil)

	previous, err := s.backend.PreviousEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(previous.Version, gc.Equals, int64(1))

	// Only the latest replaced version is archived.
	v3 := makeEntity("g1", "type-1", "orders-again")
	v3.Version = 3
	c.Assert(s.backend.PutEntity(ctx, v3), jc.ErrorIsNil)

	previous, err = s.backend.PreviousEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(previous.Version, gc.Equals, int64(2))
}

func (s *BackendSuite) TestRemoveEntity(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "renamed")), jc.ErrorIsNil)
	c.Assert(s.backend.RemoveEntity(ctx, "g1"), jc.ErrorIsNil)

	lookup, err := s.backend.LookupEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(lookup.Kind, gc.Equals, repository.EntityMissing)

	_, err = s.backend.PreviousEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)

	err = s.backend.RemoveEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)
}

func (s *BackendSuite) TestEntityAsOfNotSupported(c *gc.C) {
	_, err := s.backend.EntityAsOf(context.Background(), "g1", testTime)
	c.Assert(err, jc.ErrorIs, coreerrors.FunctionNotSupported)
}

func (s *BackendSuite) TestPutRelationship(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)
	c.Assert(s.backend.PutEntityProxy(ctx, makeProxy("g2")), jc.ErrorIsNil)
	c.Assert(s.backend.PutRelationship(ctx, makeRelationship("r1", "type-7", "g1", "g2")), jc.ErrorIsNil)

	r, err := s.backend.Relationship(ctx, "r1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(r.GUID, gc.Equals, "r1")
	c.Assert(r.EntityOne.GUID, gc.Equals, "g1")
}

func (s *BackendSuite) TestPutRelationshipEndNotStored(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)

	err := s.backend.PutRelationship(ctx, makeRelationship("r1", "type-7", "g1", "g2"))
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)

	_, err = s.backend.Relationship(ctx, "r1")
	c.Assert(err, jc.ErrorIs, coreerrors.RelationshipNotKnown)
}

func (s *BackendSuite) TestPutRelationshipMissingEndProxy(c *gc.C) {
	r := makeRelationship("r1", "type-7", "g1", "g2")
	r.EntityTwo = nil
	err := s.backend.PutRelationship(context.Background(), r)
	c.Assert(err, jc.ErrorIs, coreerrors.InvalidRelationship)
}

func (s *BackendSuite) TestPreviousRelationship(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g2", "type-1", "billing")), jc.ErrorIsNil)

	v1 := makeRelationship("r1", "type-7", "g1", "g2")
	c.Assert(s.backend.PutRelationship(ctx, v1), jc.ErrorIsNil)
	_, err := s.backend.PreviousRelationship(ctx, "r1")
	c.Assert(err, jc.ErrorIs, coreerrors.RelationshipNotKnown)

	v2 := makeRelationship("r1", "type-7", "g1", "g2")
	v2.Version = 2
	c.Assert(s.backend.PutRelationship(ctx, v2), jc.ErrorIsNil)

	previous, err := s.backend.PreviousRelationship(ctx, "r1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(previous.Version, gc.Equals, int64(1))
}

func (s *BackendSuite) TestRemoveRelationship(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g2", "type-1", "billing")), jc.ErrorIsNil)
	c.Assert(s.backend.PutRelationship(ctx, makeRelationship("r1", "type-7", "g1", "g2")), jc.ErrorIsNil)

	c.Assert(s.backend.RemoveRelationship(ctx, "r1"), jc.ErrorIsNil)
	_, err := s.backend.Relationship(ctx, "r1")
	c.Assert(err, jc.ErrorIs, coreerrors.RelationshipNotKnown)

	err = s.backend.RemoveRelationship(ctx, "r1")
	c.Assert(err, jc.ErrorIs, coreerrors.RelationshipNotKnown)
}

func (s *BackendSuite) TestReadsReturnCopies(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.backend.PutEntity(ctx, makeEntity("g1", "type-1", "orders")), jc.ErrorIsNil)

	lookup, err := s.backend.LookupEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	lookup.Entity.Properties["name"] = instance.NewStringValue("mutated")
	lookup.Entity.Status = instance.StatusDeleted

	again, err := s.backend.LookupEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(again.Entity.Properties["name"].Equal(instance.NewStringValue("orders")), jc.IsTrue)
	c.Assert(again.Entity.Status, gc.Equals, instance.StatusActive)
}

func (s *BackendSuite) TestPutDoesNotRetainArgument(c *gc.C) {
	ctx := context.Background()
	e := makeEntity("g1", "type-1", "orders")
	c.Assert(s.backend.PutEntity(ctx, e), jc.ErrorIsNil)
	e.Properties["name"] = instance.NewStringValue("mutated")

	lookup, err := s.backend.LookupEntity(ctx, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(lookup.Entity.Properties["name"].Equal(instance.NewStringValue("orders")), jc.IsTrue)
}
