// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cohort_test

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/metafed/cohort"
	"github.com/juju/metafed/core/event"
	"github.com/juju/metafed/repository"
	"github.com/juju/metafed/repository/enterprise"
)

// The federator is the canonical consumer of registry notifications.
var _ cohort.ConnectorConsumer = (*enterprise.Federator)(nil)

// registryEmitter records the protocol events the registry sends.
type registryEmitter struct {
	mu              sync.Mutex
	registrations   []time.Time
	reRegistrations []time.Time
	unRegistrations int
	refreshRequests int
}

func (e *registryEmitter) Registration(ctx context.Context, name string, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registrations = append(e.registrations, at)
	return nil
}

func (e *registryEmitter) ReRegistration(ctx context.Context, name string, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reRegistrations = append(e.reRegistrations, at)
	return nil
}

func (e *registryEmitter) UnRegistration(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unRegistrations++
	return nil
}

func (e *registryEmitter) RefreshRegistrationRequest(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshRequests++
	return nil
}

func (e *registryEmitter) snapshot() ([]time.Time, []time.Time, int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Time(nil), e.registrations...),
		append([]time.Time(nil), e.reRegistrations...),
		e.unRegistrations, e.refreshRequests
}

// recordingConsumer notes connector notifications in arrival order.
type recordingConsumer struct {
	mu      sync.Mutex
	local   string
	added   []string
	removed []string
}

func (r *recordingConsumer) SetLocalConnector(id string, coll repository.MetadataCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if coll == nil {
		r.local = ""
		return
	}
	r.local = id
}

func (r *recordingConsumer) AddRemoteConnector(id string, coll repository.MetadataCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, id)
}

func (r *recordingConsumer) RemoveRemoteConnector(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *recordingConsumer) state() (string, []string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local, append([]string(nil), r.added...), append([]string(nil), r.removed...)
}

// staticConnector is a placeholder member connector; the registry
// only ever type-asserts it for io.Closer.
type staticConnector struct {
	repository.MetadataCollection

	mu     sync.Mutex
	closed bool
}

func (f *staticConnector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *staticConnector) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type RegistrySuite struct {
	testing.IsolationSuite

	clock   *testclock.Clock
	emitter *registryEmitter

	mu         sync.Mutex
	connectors map[string]*staticConnector
	factoryErr error
}

var _ = gc.Suite(&RegistrySuite{})

func (s *RegistrySuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	s.emitter = &registryEmitter{}
	s.connectors = make(map[string]*staticConnector)
	s.factoryErr = nil
}

func (s *RegistrySuite) factory() cohort.ConnectorFactory {
	return cohort.ConnectorFactoryFunc(func(ctx context.Context, m cohort.Member) (repository.MetadataCollection, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.factoryErr != nil {
			return nil, s.factoryErr
		}
		conn := &staticConnector{}
		s.connectors[m.MetadataCollectionID] = conn
		return conn, nil
	})
}

func (s *RegistrySuite) connector(c *gc.C, id string) *staticConnector {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connectors[id]
	c.Assert(ok, jc.IsTrue)
	return conn
}

func (s *RegistrySuite) newRegistry(c *gc.C) *cohort.Registry {
	r, err := cohort.NewRegistry(cohort.RegistryConfig{
		LocalMetadataCollectionID:   "A",
		LocalMetadataCollectionName: "repo-a",
		Emitter:                     s.emitter,
		Factory:                     s.factory(),
		Clock:                       s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)
	return r
}

func registrationEvent(t event.Type, id string, at time.Time) event.Event {
	return event.Event{
		Type: t,
		Originator: event.Originator{
			MetadataCollectionID: id,
			ServerName:           "server-" + id,
			ServerType:           "inmemory",
			OrganizationName:     "acme",
		},
		MetadataCollectionName: "repo-" + id,
		RegistrationTime:       &at,
	}
}

func (s *RegistrySuite) register(c *gc.C, r *cohort.Registry, id string) {
	r.ProcessRegistryEvent(context.Background(), registrationEvent(
		event.TypeRegistration, id, s.clock.Now().UTC()))
	members := r.Members()
	for _, m := range members {
		if m.MetadataCollectionID == id {
			return
		}
	}
	c.Fatalf("member %q did not register", id)
}

func (s *RegistrySuite) TestValidate(c *gc.C) {
	_, err := cohort.NewRegistry(cohort.RegistryConfig{})
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *RegistrySuite) TestAnnounceRegistrationFixesTime(c *gc.C) {
	r := s.newRegistry(c)
	first := s.clock.Now().UTC()
	c.Assert(r.AnnounceRegistration(context.Background()), jc.ErrorIsNil)

	s.clock.Advance(time.Hour)
	c.Assert(r.AnnounceRegistration(context.Background()), jc.ErrorIsNil)

	registrations, _, _, refreshes := s.emitter.snapshot()
	c.Assert(registrations, gc.HasLen, 2)
	c.Assert(registrations[0], gc.Equals, first)
	// The registration time survives re-announcement.
	c.Assert(registrations[1], gc.Equals, first)
	c.Assert(refreshes, gc.Equals, 2)
}

func (s *RegistrySuite) TestRegistrationAddsMember(c *gc.C) {
	r := s.newRegistry(c)
	consumer := &recordingConsumer{}
	r.RegisterConnectorConsumer(consumer)

	at := s.clock.Now().UTC().Add(-time.Hour)
	r.ProcessRegistryEvent(context.Background(), registrationEvent(event.TypeRegistration, "B", at))

	members := r.Members()
	c.Assert(members, gc.HasLen, 1)
	c.Assert(members[0], jc.DeepEquals, cohort.Member{
		MetadataCollectionID:   "B",
		MetadataCollectionName: "repo-B",
		ServerName:             "server-B",
		ServerType:             "inmemory",
		OrganizationName:       "acme",
		RegistrationTime:       at,
	})
	_, added, _ := consumer.state()
	c.Assert(added, jc.DeepEquals, []string{"B"})
}

func (s *RegistrySuite) TestRegistrationWithoutTimeUsesClock(c *gc.C) {
	r := s.newRegistry(c)
	ev := registrationEvent(event.TypeRegistration, "B", time.Time{})
	ev.RegistrationTime = nil
	r.ProcessRegistryEvent(context.Background(), ev)

	members := r.Members()
	c.Assert(members, gc.HasLen, 1)
	c.Assert(members[0].RegistrationTime, gc.Equals, s.clock.Now().UTC())
}

func (s *RegistrySuite) TestOwnEventsIgnored(c *gc.C) {
	r := s.newRegistry(c)
	r.ProcessRegistryEvent(context.Background(), registrationEvent(
		event.TypeRegistration, "A", s.clock.Now().UTC()))
	c.Assert(r.Members(), gc.HasLen, 0)
}

func (s *RegistrySuite) TestReRegistrationReplacesConnector(c *gc.C) {
	r := s.newRegistry(c)
	consumer := &recordingConsumer{}
	r.RegisterConnectorConsumer(consumer)

	s.register(c, r, "B")
	first := s.connector(c, "B")
	r.ProcessRegistryEvent(context.Background(), registrationEvent(
		event.TypeReRegistration, "B", s.clock.Now().UTC()))

	c.Assert(r.Members(), gc.HasLen, 1)
	c.Assert(first.isClosed(), jc.IsTrue)
	_, added, removed := consumer.state()
	c.Assert(added, jc.DeepEquals, []string{"B", "B"})
	c.Assert(removed, gc.HasLen, 0)
}

func (s *RegistrySuite) TestUnRegistrationRemovesMember(c *gc.C) {
	r := s.newRegistry(c)
	consumer := &recordingConsumer{}
	r.RegisterConnectorConsumer(consumer)

	s.register(c, r, "B")
	conn := s.connector(c, "B")
	r.ProcessRegistryEvent(context.Background(), event.Event{
		Type:       event.TypeUnRegistration,
		Originator: event.Originator{MetadataCollectionID: "B"},
	})

	c.Assert(r.Members(), gc.HasLen, 0)
	c.Assert(conn.isClosed(), jc.IsTrue)
	_, _, removed := consumer.state()
	c.Assert(removed, jc.DeepEquals, []string{"B"})
}

func (s *RegistrySuite) TestUnRegistrationOfStrangerIgnored(c *gc.C) {
	r := s.newRegistry(c)
	consumer := &recordingConsumer{}
	r.RegisterConnectorConsumer(consumer)

	r.ProcessRegistryEvent(context.Background(), event.Event{
		Type:       event.TypeUnRegistration,
		Originator: event.Originator{MetadataCollectionID: "C"},
	})
	_, _, removed := consumer.state()
	c.Assert(removed, gc.HasLen, 0)
}

func (s *RegistrySuite) TestRefreshRequestAnsweredAfterAnnounce(c *gc.C) {
	r := s.newRegistry(c)
	request := event.Event{
		Type:       event.TypeRefreshRegistrationRequest,
		Originator: event.Originator{MetadataCollectionID: "B"},
	}

	// Before announcing there is nothing to re-announce.
	r.ProcessRegistryEvent(context.Background(), request)
	_, reRegs, _, _ := s.emitter.snapshot()
	c.Assert(reRegs, gc.HasLen, 0)

	announced := s.clock.Now().UTC()
	c.Assert(r.AnnounceRegistration(context.Background()), jc.ErrorIsNil)
	s.clock.Advance(time.Minute)
	r.ProcessRegistryEvent(context.Background(), request)

	_, reRegs, _, _ = s.emitter.snapshot()
	c.Assert(reRegs, gc.HasLen, 1)
	c.Assert(reRegs[0], gc.Equals, announced)
}

func (s *RegistrySuite) TestFactoryFailureDropsRegistration(c *gc.C) {
	r := s.newRegistry(c)
	consumer := &recordingConsumer{}
	r.RegisterConnectorConsumer(consumer)

	s.mu.Lock()
	s.factoryErr = errors.New("member unreachable")
	s.mu.Unlock()
	r.ProcessRegistryEvent(context.Background(), registrationEvent(
		event.TypeRegistration, "B", s.clock.Now().UTC()))

	c.Assert(r.Members(), gc.HasLen, 0)
	_, added, _ := consumer.state()
	c.Assert(added, gc.HasLen, 0)
}

func (s *RegistrySuite) TestConsumerReplayOnRegistration(c *gc.C) {
	r := s.newRegistry(c)
	local := &staticConnector{}
	r.SetLocalConnector("A", local)
	s.register(c, r, "C")
	s.register(c, r, "B")

	consumer := &recordingConsumer{}
	r.RegisterConnectorConsumer(consumer)

	localID, added, _ := consumer.state()
	c.Assert(localID, gc.Equals, "A")
	c.Assert(added, jc.DeepEquals, []string{"B", "C"})
}

func (s *RegistrySuite) TestUnregisterConnectorConsumer(c *gc.C) {
	r := s.newRegistry(c)
	consumer := &recordingConsumer{}
	id := r.RegisterConnectorConsumer(consumer)
	r.UnregisterConnectorConsumer(id)

	s.register(c, r, "B")
	_, added, _ := consumer.state()
	c.Assert(added, gc.HasLen, 0)
}

func (s *RegistrySuite) assertMembershipChange(c *gc.C, w *cohort.MembershipWatcher, want ...string) {
	select {
	case members, ok := <-w.Changes():
		c.Assert(ok, jc.IsTrue)
		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = m.MetadataCollectionID
		}
		c.Assert(ids, jc.DeepEquals, append([]string{}, want...))
	case <-time.After(testing.LongWait):
		c.Fatalf("timed out waiting for membership change")
	}
}

func (s *RegistrySuite) assertNoMembershipChange(c *gc.C, w *cohort.MembershipWatcher) {
	select {
	case members := <-w.Changes():
		c.Fatalf("unexpected membership change: %v", members)
	case <-time.After(testing.ShortWait):
	}
}

func (s *RegistrySuite) TestWatchMembers(c *gc.C) {
	r := s.newRegistry(c)
	w := r.WatchMembers()
	defer workertest.CleanKill(c, w)

	s.assertMembershipChange(c, w)
	s.assertNoMembershipChange(c, w)

	s.register(c, r, "B")
	s.assertMembershipChange(c, w, "B")

	s.register(c, r, "C")
	s.assertMembershipChange(c, w, "B", "C")

	r.ProcessRegistryEvent(context.Background(), event.Event{
		Type:       event.TypeUnRegistration,
		Originator: event.Originator{MetadataCollectionID: "B"},
	})
	s.assertMembershipChange(c, w, "C")
}

func (s *RegistrySuite) assertMembershipSettles(c *gc.C, w *cohort.MembershipWatcher, want ...string) {
	deadline := time.After(testing.LongWait)
	for {
		select {
		case members, ok := <-w.Changes():
			c.Assert(ok, jc.IsTrue)
			ids := make([]string, len(members))
			for i, m := range members {
				ids[i] = m.MetadataCollectionID
			}
			if len(ids) != len(want) {
				// Stale intermediate snapshot; the latest follows.
				continue
			}
			c.Assert(ids, jc.DeepEquals, append([]string{}, want...))
			return
		case <-deadline:
			c.Fatalf("timed out waiting for membership %v", want)
		}
	}
}

func (s *RegistrySuite) TestWatcherCoalescesBursts(c *gc.C) {
	r := s.newRegistry(c)
	w := r.WatchMembers()
	defer workertest.CleanKill(c, w)
	s.assertMembershipChange(c, w)

	// Changes landing before the watcher is read converge on the
	// latest snapshot, and no stale snapshot follows it.
	s.register(c, r, "B")
	s.register(c, r, "C")
	s.assertMembershipSettles(c, w, "B", "C")
	s.assertNoMembershipChange(c, w)
}

func (s *RegistrySuite) TestWatcherClosedOnRegistryClose(c *gc.C) {
	r := s.newRegistry(c)
	w := r.WatchMembers()
	s.assertMembershipChange(c, w)

	c.Assert(r.Close(), jc.ErrorIsNil)
	select {
	case _, ok := <-w.Changes():
		c.Assert(ok, jc.IsFalse)
	case <-time.After(testing.LongWait):
		c.Fatalf("timed out waiting for watcher close")
	}
	c.Assert(w.Wait(), jc.ErrorIsNil)
}

func (s *RegistrySuite) TestCloseDisconnectsMembers(c *gc.C) {
	r := s.newRegistry(c)
	consumer := &recordingConsumer{}
	r.RegisterConnectorConsumer(consumer)
	s.register(c, r, "B")
	conn := s.connector(c, "B")

	c.Assert(r.Close(), jc.ErrorIsNil)
	c.Assert(conn.isClosed(), jc.IsTrue)
	c.Assert(r.Members(), gc.HasLen, 0)
	_, _, removed := consumer.state()
	c.Assert(removed, jc.DeepEquals, []string{"B"})

	// Close is idempotent.
	c.Assert(r.Close(), jc.ErrorIsNil)
}

func (s *RegistrySuite) TestWatchMembersAfterClose(c *gc.C) {
	r := s.newRegistry(c)
	c.Assert(r.Close(), jc.ErrorIsNil)

	w := r.WatchMembers()
	select {
	case _, ok := <-w.Changes():
		c.Assert(ok, jc.IsFalse)
	case <-time.After(testing.LongWait):
		c.Fatalf("timed out waiting for watcher close")
	}
	c.Assert(w.Wait(), jc.ErrorIsNil)
}

func (s *RegistrySuite) TestRegistrationAfterCloseRefused(c *gc.C) {
	r := s.newRegistry(c)
	c.Assert(r.Close(), jc.ErrorIsNil)

	r.ProcessRegistryEvent(context.Background(), registrationEvent(
		event.TypeRegistration, "B", s.clock.Now().UTC()))
	c.Assert(r.Members(), gc.HasLen, 0)
}
