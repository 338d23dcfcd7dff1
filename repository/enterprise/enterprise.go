// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package enterprise presents the whole cohort as one logical
// repository. Reads fan out across every registered connector and
// merge the responses; writes are routed to the single connector that
// owns the instance. The registry feeds connector arrivals and
// departures through the consumer callbacks.
package enterprise

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/repository"
)

var logger = loggo.GetLogger("metafed.repository.enterprise")

// RetrievalProcessor receives instances returned by remote cohort
// members so the event-processing layer can decide whether to learn
// them as reference copies. Implementations must not block reads on
// slow learning; failures stay inside the processor.
type RetrievalProcessor interface {
	// ProcessRetrievedEntitySummary offers a summary returned by the
	// named source collection.
	ProcessRetrievedEntitySummary(ctx context.Context, userID, sourceCollectionID string, e instance.EntitySummary)

	// ProcessRetrievedEntityDetail offers an entity returned by the
	// named source collection.
	ProcessRetrievedEntityDetail(ctx context.Context, userID, sourceCollectionID string, e instance.EntityDetail)

	// ProcessRetrievedRelationship offers a relationship returned by
	// the named source collection.
	ProcessRetrievedRelationship(ctx context.Context, userID, sourceCollectionID string, rel instance.Relationship)
}

// Config holds the federator's identity and collaborators.
type Config struct {
	// MetadataCollectionID identifies the federated view itself. It
	// is distinct from every member collection and never appears as
	// an instance's home.
	MetadataCollectionID string

	// Retrieval, when set, is offered every instance a remote member
	// returns from a successful read.
	Retrieval RetrievalProcessor

	// Metrics, when set, counts connector skips and abandoned
	// fan-outs.
	Metrics *Collector
}

// Validate returns an error if the configuration is incomplete.
func (c Config) Validate() error {
	if c.MetadataCollectionID == "" {
		return errors.NotValidf("empty MetadataCollectionID")
	}
	return nil
}

// connection pairs a member collection with its immutable id.
type connection struct {
	collectionID string
	collection   repository.MetadataCollection
}

// Federator is a MetadataCollection over every repository the cohort
// registry currently knows about. The zero value is unusable; construct
// with NewFederator and register it as a connector consumer.
type Federator struct {
	config Config

	mu      sync.RWMutex
	local   *connection
	remotes []connection
}

var _ repository.MetadataCollection = (*Federator)(nil)

// NewFederator returns a federator with no connectors. Connectors
// arrive through the consumer callbacks.
func NewFederator(config Config) (*Federator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Federator{config: config}, nil
}

// MetadataCollectionID implements repository.MetadataCollection. The
// id names the federated view, not any member.
func (f *Federator) MetadataCollectionID(ctx context.Context) (string, error) {
	return f.config.MetadataCollectionID, nil
}

// SetLocalConnector installs or replaces the local member, which is
// always iterated first. A nil collection removes it.
func (f *Federator) SetLocalConnector(metadataCollectionID string, collection repository.MetadataCollection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if collection == nil {
		f.local = nil
		return
	}
	f.local = &connection{collectionID: metadataCollectionID, collection: collection}
}

// AddRemoteConnector adds a remote member, replacing any previous
// connector registered under the same collection id.
func (f *Federator) AddRemoteConnector(metadataCollectionID string, collection repository.MetadataCollection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, conn := range f.remotes {
		if conn.collectionID == metadataCollectionID {
			f.remotes[i].collection = collection
			return
		}
	}
	f.remotes = append(f.remotes, connection{
		collectionID: metadataCollectionID,
		collection:   collection,
	})
}

// RemoveRemoteConnector removes the remote member registered under
// the collection id, if any.
func (f *Federator) RemoveRemoteConnector(metadataCollectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, conn := range f.remotes {
		if conn.collectionID == metadataCollectionID {
			f.remotes = append(f.remotes[:i], f.remotes[i+1:]...)
			return
		}
	}
}

// snapshot returns the current connector list, local first, so a
// fan-out is unaffected by concurrent registry changes.
func (f *Federator) snapshot() ([]connection, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	conns := make([]connection, 0, len(f.remotes)+1)
	if f.local != nil {
		conns = append(conns, *f.local)
	}
	conns = append(conns, f.remotes...)
	if len(conns) == 0 {
		return nil, errors.Annotatef(coreerrors.NoRepositories, "no cohort members registered")
	}
	return conns, nil
}

func (f *Federator) localCollectionID() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.local == nil {
		return ""
	}
	return f.local.collectionID
}

func (f *Federator) localConnection() (connection, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.local == nil {
		return connection{}, errors.Annotatef(coreerrors.NoRepositories, "no local repository registered")
	}
	return *f.local, nil
}

// homeConnection resolves the member that owns the instance: the one
// whose id matches the instance's home collection or its replication
// point.
func homeConnection(conns []connection, h instance.Header) (connection, error) {
	for _, conn := range conns {
		if conn.collectionID == h.MetadataCollectionID || (h.ReplicatedBy != "" && conn.collectionID == h.ReplicatedBy) {
			return conn, nil
		}
	}
	return connection{}, errors.Annotatef(coreerrors.NoHomeForInstance,
		"no registered repository for collection %q", h.MetadataCollectionID)
}

// Retrieval hand-off. Instances sourced from a remote member are
// offered to the retrieval processor; locally sourced ones are
// already home.

func (f *Federator) remoteSourced(source string) bool {
	return f.config.Retrieval != nil && source != "" && source != f.localCollectionID()
}

func (f *Federator) learnEntitySummary(ctx context.Context, userID string, s sourced[instance.EntitySummary]) {
	if !f.remoteSourced(s.source) {
		return
	}
	f.config.Retrieval.ProcessRetrievedEntitySummary(ctx, userID, s.source, s.item)
}

func (f *Federator) learnEntity(ctx context.Context, userID string, s sourced[instance.EntityDetail]) {
	if !f.remoteSourced(s.source) {
		return
	}
	f.config.Retrieval.ProcessRetrievedEntityDetail(ctx, userID, s.source, s.item)
}

func (f *Federator) learnEntities(ctx context.Context, userID string, list []sourced[instance.EntityDetail]) {
	for _, s := range list {
		f.learnEntity(ctx, userID, s)
	}
}

func (f *Federator) learnRelationship(ctx context.Context, userID string, s sourced[instance.Relationship]) {
	if !f.remoteSourced(s.source) {
		return
	}
	f.config.Retrieval.ProcessRetrievedRelationship(ctx, userID, s.source, s.item)
}

func (f *Federator) learnRelationships(ctx context.Context, userID string, list []sourced[instance.Relationship]) {
	for _, s := range list {
		f.learnRelationship(ctx, userID, s)
	}
}
