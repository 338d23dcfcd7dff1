// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package enterprise_test

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
	"github.com/juju/metafed/repository"
	"github.com/juju/metafed/repository/enterprise"
	"github.com/juju/metafed/repository/inmemory"
	"github.com/juju/metafed/repository/local"
	coretesting "github.com/juju/metafed/testing"
)

// member is one cohort repository under test: a local wrapper over an
// in-memory backend.
type member struct {
	id      string
	backend *inmemory.Backend
	repo    *local.Repository
}

// flakyMember fails selected reads so fan-out robustness can be
// exercised; everything else passes through.
type flakyMember struct {
	repository.MetadataCollection
	err error
}

func (m *flakyMember) GetEntityDetail(ctx context.Context, userID, entityGUID string) (instance.EntityDetail, error) {
	if m.err != nil {
		return instance.EntityDetail{}, m.err
	}
	return m.MetadataCollection.GetEntityDetail(ctx, userID, entityGUID)
}

func (m *flakyMember) FindEntitiesByProperty(ctx context.Context, userID string, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.MetadataCollection.FindEntitiesByProperty(ctx, userID, args)
}

// recordingMember notes which writes reach it.
type recordingMember struct {
	repository.MetadataCollection

	mu      sync.Mutex
	updates []string
}

func (m *recordingMember) UpdateEntityProperties(ctx context.Context, userID, entityGUID string, properties instance.Properties) (instance.EntityDetail, error) {
	m.mu.Lock()
	m.updates = append(m.updates, entityGUID)
	m.mu.Unlock()
	return m.MetadataCollection.UpdateEntityProperties(ctx, userID, entityGUID, properties)
}

func (m *recordingMember) Updates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.updates...)
}

// retrievalRecorder notes the instances offered for learning.
type retrievalRecorder struct {
	mu       sync.Mutex
	entities []string // "source/guid"
}

func (r *retrievalRecorder) ProcessRetrievedEntitySummary(ctx context.Context, userID, source string, e instance.EntitySummary) {
	r.record(source, e.GUID)
}

func (r *retrievalRecorder) ProcessRetrievedEntityDetail(ctx context.Context, userID, source string, e instance.EntityDetail) {
	r.record(source, e.GUID)
}

func (r *retrievalRecorder) ProcessRetrievedRelationship(ctx context.Context, userID, source string, rel instance.Relationship) {
	r.record(source, rel.GUID)
}

func (r *retrievalRecorder) record(source, guid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, source+"/"+guid)
}

func (r *retrievalRecorder) Seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entities...)
}

type FederatorSuite struct {
	testing.IsolationSuite

	clock *testclock.Clock
}

var _ = gc.Suite(&FederatorSuite{})

const user = "erin"

func (s *FederatorSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
}

func (s *FederatorSuite) newMember(c *gc.C, id string) *member {
	types := coretesting.NewTypeCache(c, coretesting.DataSetTypeDef())
	backend := inmemory.New()
	repo, err := local.NewRepository(local.Config{
		MetadataCollectionID:   id,
		MetadataCollectionName: "repo-" + id,
		Backend:                backend,
		Types:                  types,
		Clock:                  s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)
	return &member{id: id, backend: backend, repo: repo}
}

func (s *FederatorSuite) newFederator(c *gc.C, cfg enterprise.Config) *enterprise.Federator {
	if cfg.MetadataCollectionID == "" {
		cfg.MetadataCollectionID = "enterprise"
	}
	f, err := enterprise.NewFederator(cfg)
	c.Assert(err, jc.ErrorIsNil)
	return f
}

func (s *FederatorSuite) addDataSet(c *gc.C, m *member, name string) instance.EntityDetail {
	e, err := m.repo.AddEntity(context.Background(), user, repository.AddEntityArgs{
		TypeName: "DataSet",
		Properties: instance.Properties{
			"name": instance.NewStringValue(name),
		},
	})
	c.Assert(err, jc.ErrorIsNil)
	return e
}

func (s *FederatorSuite) TestValidate(c *gc.C) {
	_, err := enterprise.NewFederator(enterprise.Config{})
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *FederatorSuite) TestNoRepositories(c *gc.C) {
	f := s.newFederator(c, enterprise.Config{})
	_, err := f.GetEntityDetail(context.Background(), user, "g1")
	c.Assert(err, jc.ErrorIs, coreerrors.NoRepositories)
}

func (s *FederatorSuite) TestMetadataCollectionID(c *gc.C) {
	f := s.newFederator(c, enterprise.Config{MetadataCollectionID: "enterprise-view"})
	id, err := f.MetadataCollectionID(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(id, gc.Equals, "enterprise-view")
}

func (s *FederatorSuite) TestGetEntityDetailFromRemote(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	e := s.addDataSet(c, b, "orders")

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)

	got, err := f.GetEntityDetail(context.Background(), user, e.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got.GUID, gc.Equals, e.GUID)
	c.Assert(got.MetadataCollectionID, gc.Equals, "B")
}

func (s *FederatorSuite) TestGetEntityDetailOrderIndependent(c *gc.C) {
	// The same lookup succeeds with the holder registered last.
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	e := s.addDataSet(c, a, "orders")

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("B", b.repo)
	f.AddRemoteConnector("A", a.repo)

	got, err := f.GetEntityDetail(context.Background(), user, e.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got.GUID, gc.Equals, e.GUID)
	c.Assert(got.MetadataCollectionID, gc.Equals, "A")
}

func (s *FederatorSuite) TestGetEntityDetailNotKnownAnywhere(c *gc.C) {
	a := s.newMember(c, "A")
	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)

	_, err := f.GetEntityDetail(context.Background(), user, "missing")
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)
}

func (s *FederatorSuite) TestGetEntityDetailPrefersNewestVersion(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	v1 := s.addDataSet(c, b, "orders")

	// A holds a stale reference copy; B has moved on.
	c.Assert(a.repo.SaveEntityReferenceCopy(context.Background(), user, v1), jc.ErrorIsNil)
	v2, err := b.repo.UpdateEntityProperties(context.Background(), user, v1.GUID, instance.Properties{
		"name": instance.NewStringValue("orders_v2"),
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v2.Version, gc.Equals, int64(2))

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)

	got, err := f.GetEntityDetail(context.Background(), user, v1.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got.Version, gc.Equals, int64(2))
	name, _ := got.Properties["name"].(instance.PrimitiveValue)
	c.Assert(name.Value, gc.Equals, "orders_v2")
}

func (s *FederatorSuite) TestIsEntityKnownNilWhenAbsent(c *gc.C) {
	a := s.newMember(c, "A")
	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)

	got, err := f.IsEntityKnown(context.Background(), user, "missing")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got, gc.IsNil)
}

func (s *FederatorSuite) TestFindEntitiesMergesWithoutDuplicates(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	o1 := s.addDataSet(c, a, "o1")
	o2 := s.addDataSet(c, b, "o2")

	// A also holds a reference copy of o2; the merge must not
	// return it twice.
	c.Assert(a.repo.SaveEntityReferenceCopy(context.Background(), user, o2), jc.ErrorIsNil)

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)

	results, err := f.FindEntitiesByProperty(context.Background(), user, repository.FindEntitiesArgs{
		TypeGUID: "type-dataset",
		Paging:   repository.Paging{PageSize: 10},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(results, gc.HasLen, 2)
	guids := []string{results[0].GUID, results[1].GUID}
	c.Assert(guids, jc.SameContents, []string{o1.GUID, o2.GUID})
}

func (s *FederatorSuite) TestFindEntitiesSkipsFailingMember(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	o1 := s.addDataSet(c, a, "o1")
	s.addDataSet(c, b, "o2")

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", &flakyMember{
		MetadataCollection: b.repo,
		err:                errors.Annotatef(coreerrors.RepositoryError, "store offline"),
	})

	results, err := f.FindEntitiesByProperty(context.Background(), user, repository.FindEntitiesArgs{
		TypeGUID: "type-dataset",
		Paging:   repository.Paging{PageSize: 10},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(results, gc.HasLen, 1)
	c.Assert(results[0].GUID, gc.Equals, o1.GUID)
}

func (s *FederatorSuite) TestFindEntitiesAllMembersFailing(c *gc.C) {
	a := s.newMember(c, "A")
	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", &flakyMember{
		MetadataCollection: a.repo,
		err:                errors.Annotatef(coreerrors.RepositoryError, "store offline"),
	})

	_, err := f.FindEntitiesByProperty(context.Background(), user, repository.FindEntitiesArgs{
		TypeGUID: "type-dataset",
	})
	c.Assert(err, jc.ErrorIs, coreerrors.RepositoryError)
}

func (s *FederatorSuite) TestFindEntitiesRePagesAcrossMembers(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	s.addDataSet(c, a, "a1")
	s.addDataSet(c, a, "a3")
	s.addDataSet(c, b, "a2")
	s.addDataSet(c, b, "a4")

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)

	results, err := f.FindEntitiesByProperty(context.Background(), user, repository.FindEntitiesArgs{
		TypeGUID: "type-dataset",
		Paging: repository.Paging{
			FromElement:        1,
			PageSize:           2,
			Sequencing:         repository.SequencePropertyAscending,
			SequencingProperty: "name",
		},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(results, gc.HasLen, 2)
	names := make([]string, len(results))
	for i, e := range results {
		p, _ := e.Properties["name"].(instance.PrimitiveValue)
		names[i], _ = p.StringValue()
	}
	c.Assert(names, jc.DeepEquals, []string{"a2", "a3"})
}

func (s *FederatorSuite) TestDeadlineReturnsWhatMerged(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	o1 := s.addDataSet(c, a, "o1")
	s.addDataSet(c, b, "o2")

	ctx, cancel := context.WithCancel(context.Background())
	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	// The canceling member stops the fan-out before B is reached.
	f.AddRemoteConnector("cancel", &cancelingMember{
		MetadataCollection: s.newMember(c, "cancel").repo,
		cancel:             cancel,
	})
	f.AddRemoteConnector("B", b.repo)

	results, err := f.FindEntitiesByProperty(ctx, user, repository.FindEntitiesArgs{
		TypeGUID: "type-dataset",
		Paging:   repository.Paging{PageSize: 10},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(results, gc.HasLen, 1)
	c.Assert(results[0].GUID, gc.Equals, o1.GUID)
}

// cancelingMember cancels the caller's context as a side effect of
// being read, simulating a deadline expiring mid-fan-out.
type cancelingMember struct {
	repository.MetadataCollection
	cancel context.CancelFunc
}

func (m *cancelingMember) FindEntitiesByProperty(ctx context.Context, userID string, args repository.FindEntitiesArgs) ([]instance.EntityDetail, error) {
	m.cancel()
	return m.MetadataCollection.FindEntitiesByProperty(ctx, userID, args)
}

func (s *FederatorSuite) TestUpdateRoutesToHomeOnly(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	e := s.addDataSet(c, b, "orders")

	ra := &recordingMember{MetadataCollection: a.repo}
	rb := &recordingMember{MetadataCollection: b.repo}

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", ra)
	f.AddRemoteConnector("B", rb)

	updated, err := f.UpdateEntityProperties(context.Background(), user, e.GUID, instance.Properties{
		"name": instance.NewStringValue("orders_v2"),
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(updated.Version, gc.Equals, int64(2))
	c.Assert(rb.Updates(), jc.DeepEquals, []string{e.GUID})
	c.Assert(ra.Updates(), gc.HasLen, 0)
}

func (s *FederatorSuite) TestUpdateNoHomeForInstance(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	e := s.addDataSet(c, b, "orders")

	// Only A is registered; it holds a copy homed at B, which is not
	// reachable.
	c.Assert(a.repo.SaveEntityReferenceCopy(context.Background(), user, e), jc.ErrorIsNil)
	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)

	_, err := f.UpdateEntityProperties(context.Background(), user, e.GUID, instance.Properties{
		"name": instance.NewStringValue("orders_v2"),
	})
	c.Assert(err, jc.ErrorIs, coreerrors.NoHomeForInstance)
}

func (s *FederatorSuite) TestAddEntityLandsLocally(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)

	e, err := f.AddEntity(context.Background(), user, repository.AddEntityArgs{
		TypeName:   "DataSet",
		Properties: instance.Properties{"name": instance.NewStringValue("orders")},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(e.MetadataCollectionID, gc.Equals, "A")

	stored, err := a.repo.IsEntityKnown(context.Background(), user, e.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(stored, gc.NotNil)
	elsewhere, err := b.repo.IsEntityKnown(context.Background(), user, e.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(elsewhere, gc.IsNil)
}

func (s *FederatorSuite) TestReferenceCopyOpsGoToLocal(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	e := s.addDataSet(c, b, "orders")

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)

	c.Assert(f.SaveEntityReferenceCopy(context.Background(), user, e), jc.ErrorIsNil)
	stored, err := a.repo.IsEntityKnown(context.Background(), user, e.GUID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(stored, gc.NotNil)
	c.Assert(stored.MetadataCollectionID, gc.Equals, "B")
}

func (s *FederatorSuite) TestRemoveRemoteConnector(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	e := s.addDataSet(c, b, "orders")

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)
	f.RemoveRemoteConnector("B")

	_, err := f.GetEntityDetail(context.Background(), user, e.GUID)
	c.Assert(err, jc.ErrorIs, coreerrors.EntityNotKnown)
}

func (s *FederatorSuite) TestRetrievalHandOffForRemoteInstances(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	localEntity := s.addDataSet(c, a, "mine")
	remoteEntity := s.addDataSet(c, b, "theirs")

	recorder := &retrievalRecorder{}
	f := s.newFederator(c, enterprise.Config{Retrieval: recorder})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)

	_, err := f.GetEntityDetail(context.Background(), user, remoteEntity.GUID)
	c.Assert(err, jc.ErrorIsNil)
	_, err = f.GetEntityDetail(context.Background(), user, localEntity.GUID)
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(recorder.Seen(), jc.DeepEquals, []string{"B/" + remoteEntity.GUID})
}

func (s *FederatorSuite) TestTypeMaintenanceUnsupported(c *gc.C) {
	a := s.newMember(c, "A")
	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)

	err := f.AddTypeDef(context.Background(), user, typedef.TypeDef{
		Summary: typedef.Summary{GUID: "t", Name: "T", Version: 1, Category: typedef.CategoryEntity},
	})
	c.Assert(err, jc.ErrorIs, coreerrors.FunctionNotSupported)
}

func (s *FederatorSuite) TestAllTypesMerged(c *gc.C) {
	a := s.newMember(c, "A")
	b := s.newMember(c, "B")
	// B knows one more type than A.
	err := b.repo.AddTypeDef(context.Background(), user, typedef.TypeDef{
		Summary: typedef.Summary{GUID: "type-report", Name: "Report", Version: 1, Category: typedef.CategoryEntity},
	})
	c.Assert(err, jc.ErrorIsNil)

	f := s.newFederator(c, enterprise.Config{})
	f.SetLocalConnector("A", a.repo)
	f.AddRemoteConnector("B", b.repo)

	gallery, err := f.AllTypes(context.Background(), user)
	c.Assert(err, jc.ErrorIsNil)
	names := make([]string, len(gallery.TypeDefs))
	for i, def := range gallery.TypeDefs {
		names[i] = def.Name
	}
	c.Assert(names, jc.DeepEquals, []string{"DataSet", "Report"})
}
