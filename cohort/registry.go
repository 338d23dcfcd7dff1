// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cohort

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/metafed/core/event"
	"github.com/juju/metafed/repository"
)

// ConnectorConsumer is notified as repositories join and leave the
// cohort. The enterprise federator is the canonical consumer.
type ConnectorConsumer interface {
	// SetLocalConnector installs or replaces the local member. A nil
	// collection removes it.
	SetLocalConnector(metadataCollectionID string, collection repository.MetadataCollection)

	// AddRemoteConnector adds a remote member, replacing any previous
	// connector under the same collection id.
	AddRemoteConnector(metadataCollectionID string, collection repository.MetadataCollection)

	// RemoveRemoteConnector removes the remote member registered under
	// the collection id.
	RemoveRemoteConnector(metadataCollectionID string)
}

// ConnectorFactory builds the connector for a remote member announced
// on the cohort bus. Connectors that also implement io.Closer are
// closed when the member leaves or the registry shuts down.
type ConnectorFactory interface {
	NewConnector(ctx context.Context, member Member) (repository.MetadataCollection, error)
}

// ConnectorFactoryFunc adapts a function to the ConnectorFactory
// interface.
type ConnectorFactoryFunc func(ctx context.Context, member Member) (repository.MetadataCollection, error)

// NewConnector implements ConnectorFactory.
func (f ConnectorFactoryFunc) NewConnector(ctx context.Context, member Member) (repository.MetadataCollection, error) {
	return f(ctx, member)
}

// Member is one remote repository's standing registration.
type Member struct {
	MetadataCollectionID   string
	MetadataCollectionName string
	ServerName             string
	ServerType             string
	OrganizationName       string
	RegistrationTime       time.Time
}

// RegistryEmitter is the outbound protocol surface the registry
// announces itself with.
type RegistryEmitter interface {
	Registration(ctx context.Context, collectionName string, registrationTime time.Time) error
	ReRegistration(ctx context.Context, collectionName string, registrationTime time.Time) error
	UnRegistration(ctx context.Context) error
	RefreshRegistrationRequest(ctx context.Context) error
}

// RegistryConfig holds the registry's identity and collaborators.
type RegistryConfig struct {
	// LocalMetadataCollectionID identifies this member; events it
	// originated are ignored.
	LocalMetadataCollectionID string

	// LocalMetadataCollectionName is announced on registration.
	LocalMetadataCollectionName string

	// Emitter carries registration traffic to the cohort.
	Emitter RegistryEmitter

	// Factory builds connectors for announced remote members.
	Factory ConnectorFactory

	// Clock stamps the local registration time.
	Clock clock.Clock

	// Metrics, when set, tracks the cohort's remote membership.
	Metrics *Collector
}

// Validate returns an error if the configuration is incomplete.
func (c RegistryConfig) Validate() error {
	if c.LocalMetadataCollectionID == "" {
		return errors.NotValidf("empty LocalMetadataCollectionID")
	}
	if c.Emitter == nil {
		return errors.NotValidf("nil Emitter")
	}
	if c.Factory == nil {
		return errors.NotValidf("nil Factory")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Registry tracks which repositories are currently part of the
// cohort. It answers registration traffic from the bus, builds a
// connector for every remote member through the factory, and keeps
// its consumers' connector lists in step with the membership.
type Registry struct {
	config RegistryConfig

	mu           sync.Mutex
	consumers    map[string]ConnectorConsumer
	local        *localConnector
	members      map[string]Member
	connectors   map[string]repository.MetadataCollection
	watchers     map[*MembershipWatcher]bool
	registeredAt time.Time
	closed       bool
}

type localConnector struct {
	collectionID string
	collection   repository.MetadataCollection
}

// NewRegistry returns a registry with no members and no consumers.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Registry{
		config:     config,
		consumers:  make(map[string]ConnectorConsumer),
		members:    make(map[string]Member),
		connectors: make(map[string]repository.MetadataCollection),
		watchers:   make(map[*MembershipWatcher]bool),
	}, nil
}

// RegisterConnectorConsumer adds a consumer and replays the current
// membership to it: the local connector, if set, then every remote.
// The returned id unregisters it.
func (r *Registry) RegisterConnectorConsumer(consumer ConnectorConsumer) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.consumers[id] = consumer
	local := r.local
	conns := r.connectorSnapshot()
	r.mu.Unlock()

	if local != nil {
		consumer.SetLocalConnector(local.collectionID, local.collection)
	}
	for _, conn := range conns {
		consumer.AddRemoteConnector(conn.collectionID, conn.collection)
	}
	return id
}

// UnregisterConnectorConsumer removes the consumer; it receives no
// further notifications.
func (r *Registry) UnregisterConnectorConsumer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.consumers, id)
}

// SetLocalConnector installs the local repository's connector and
// passes it on to every consumer. A nil collection removes it.
func (r *Registry) SetLocalConnector(metadataCollectionID string, collection repository.MetadataCollection) {
	r.mu.Lock()
	if collection == nil {
		r.local = nil
	} else {
		r.local = &localConnector{collectionID: metadataCollectionID, collection: collection}
	}
	consumers := r.consumerSnapshot()
	r.mu.Unlock()

	for _, consumer := range consumers {
		consumer.SetLocalConnector(metadataCollectionID, collection)
	}
}

// AnnounceRegistration announces this member to the cohort and asks
// the existing members to re-announce themselves. The registration
// time is fixed on the first call and reused thereafter.
func (r *Registry) AnnounceRegistration(ctx context.Context) error {
	r.mu.Lock()
	if r.registeredAt.IsZero() {
		r.registeredAt = r.config.Clock.Now().UTC()
	}
	registeredAt := r.registeredAt
	r.mu.Unlock()

	if err := r.config.Emitter.Registration(ctx, r.config.LocalMetadataCollectionName, registeredAt); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.config.Emitter.RefreshRegistrationRequest(ctx))
}

// AnnounceUnRegistration tells the cohort this member is leaving for
// good.
func (r *Registry) AnnounceUnRegistration(ctx context.Context) error {
	return errors.Trace(r.config.Emitter.UnRegistration(ctx))
}

// ProcessRegistryEvent reacts to one registry-category event from the
// cohort bus. Failures are logged and the event dropped; registration
// traffic must never stall the pump.
func (r *Registry) ProcessRegistryEvent(ctx context.Context, ev event.Event) {
	if ev.Originator.MetadataCollectionID == r.config.LocalMetadataCollectionID {
		return
	}
	switch ev.Type {
	case event.TypeRegistration, event.TypeReRegistration:
		if err := r.addMember(ctx, ev); err != nil {
			logger.Errorf("registering cohort member %q: %v", ev.Originator.MetadataCollectionID, err)
		}
	case event.TypeUnRegistration:
		r.removeMember(ev.Originator.MetadataCollectionID)
	case event.TypeRefreshRegistrationRequest:
		r.mu.Lock()
		registeredAt := r.registeredAt
		r.mu.Unlock()
		if registeredAt.IsZero() {
			// Not yet announced; nothing to re-announce.
			return
		}
		if err := r.config.Emitter.ReRegistration(ctx, r.config.LocalMetadataCollectionName, registeredAt); err != nil {
			logger.Errorf("answering registration refresh request: %v", err)
		}
	default:
		logger.Tracef("ignoring registry event %s", ev.Type)
	}
}

func (r *Registry) addMember(ctx context.Context, ev event.Event) error {
	member := Member{
		MetadataCollectionID:   ev.Originator.MetadataCollectionID,
		MetadataCollectionName: ev.MetadataCollectionName,
		ServerName:             ev.Originator.ServerName,
		ServerType:             ev.Originator.ServerType,
		OrganizationName:       ev.Originator.OrganizationName,
		RegistrationTime:       r.config.Clock.Now().UTC(),
	}
	if ev.RegistrationTime != nil {
		member.RegistrationTime = *ev.RegistrationTime
	}
	connector, err := r.config.Factory.NewConnector(ctx, member)
	if err != nil {
		return errors.Annotatef(err, "building connector for %q", member.MetadataCollectionID)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		disconnect(connector)
		return errors.New("registry is shut down")
	}
	_, known := r.members[member.MetadataCollectionID]
	previous := r.connectors[member.MetadataCollectionID]
	r.members[member.MetadataCollectionID] = member
	r.connectors[member.MetadataCollectionID] = connector
	consumers := r.consumerSnapshot()
	r.noteMembershipLocked()
	r.mu.Unlock()

	if previous != nil && previous != connector {
		disconnect(previous)
	}
	for _, consumer := range consumers {
		consumer.AddRemoteConnector(member.MetadataCollectionID, connector)
	}
	if known {
		logger.Debugf("cohort member %q re-registered", member.MetadataCollectionID)
	} else {
		logger.Infof("cohort member %q joined", member.MetadataCollectionID)
	}
	return nil
}

func (r *Registry) removeMember(collectionID string) {
	r.mu.Lock()
	_, known := r.members[collectionID]
	connector := r.connectors[collectionID]
	delete(r.members, collectionID)
	delete(r.connectors, collectionID)
	consumers := r.consumerSnapshot()
	r.noteMembershipLocked()
	r.mu.Unlock()

	if !known {
		return
	}
	for _, consumer := range consumers {
		consumer.RemoveRemoteConnector(collectionID)
	}
	disconnect(connector)
	logger.Infof("cohort member %q left", collectionID)
}

// Members returns the remote membership, ordered by collection id.
func (r *Registry) Members() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked()
}

func (r *Registry) membersLocked() []Member {
	members := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].MetadataCollectionID < members[j].MetadataCollectionID
	})
	return members
}

// Close disconnects every remote connector and empties the
// membership, notifying consumers and closing watchers. The local
// connector is managed by its owner and left untouched.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	connectors := r.connectors
	r.connectors = make(map[string]repository.MetadataCollection)
	r.members = make(map[string]Member)
	consumers := r.consumerSnapshot()
	watchers := make([]*MembershipWatcher, 0, len(r.watchers))
	for w := range r.watchers {
		watchers = append(watchers, w)
	}
	// Watchers are stopped, not sent a final empty membership.
	r.watchers = make(map[*MembershipWatcher]bool)
	r.config.Metrics.memberCount(0)
	r.mu.Unlock()

	for id, connector := range connectors {
		for _, consumer := range consumers {
			consumer.RemoveRemoteConnector(id)
		}
		disconnect(connector)
	}
	for _, w := range watchers {
		w.Kill()
	}
	return nil
}

func (r *Registry) consumerSnapshot() []ConnectorConsumer {
	consumers := make([]ConnectorConsumer, 0, len(r.consumers))
	for _, c := range r.consumers {
		consumers = append(consumers, c)
	}
	return consumers
}

type remoteConnection struct {
	collectionID string
	collection   repository.MetadataCollection
}

func (r *Registry) connectorSnapshot() []remoteConnection {
	conns := make([]remoteConnection, 0, len(r.connectors))
	for id, c := range r.connectors {
		conns = append(conns, remoteConnection{collectionID: id, collection: c})
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].collectionID < conns[j].collectionID
	})
	return conns
}

func (r *Registry) noteMembershipLocked() {
	r.config.Metrics.memberCount(len(r.members))
	snapshot := r.membersLocked()
	for w := range r.watchers {
		w.send(snapshot)
	}
}

func disconnect(connector repository.MetadataCollection) {
	closer, ok := connector.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Errorf("disconnecting cohort connector: %v", err)
	}
}
