// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cohort keeps one repository in step with the other members
// of a metadata cohort. The Registry tracks who the members are and
// maintains a connector to each; the Processor folds the members'
// instance and type events into the local repository as reference
// copies; the ExchangeRule says how much of the cohort's metadata
// this member takes. The Manager worker ties the three to a bus
// subscription and announces this member's registration.
package cohort

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/metafed/bus"
	"github.com/juju/metafed/core/event"
)

var logger = loggo.GetLogger("metafed.cohort")

// ManagerConfig holds the assembled collaborators for one cohort
// membership.
type ManagerConfig struct {
	// CohortName names the cohort, for logs and reports.
	CohortName string

	// Bus is the connection to the cohort topic. The manager owns the
	// inbound side; outbound events flow through Publisher.
	Bus bus.Bus

	// Publisher is the outbound delivery worker. The manager adopts
	// its lifetime: stopping the manager stops the publisher.
	Publisher *bus.BufferedPublisher

	// Registry tracks cohort membership.
	Registry *Registry

	// Processor folds inbound instance and type events into the local
	// repository.
	Processor *Processor
}

// Validate returns an error if the configuration is incomplete.
func (c ManagerConfig) Validate() error {
	if c.CohortName == "" {
		return errors.NotValidf("empty CohortName")
	}
	if c.Bus == nil {
		return errors.NotValidf("nil Bus")
	}
	if c.Publisher == nil {
		return errors.NotValidf("nil Publisher")
	}
	if c.Registry == nil {
		return errors.NotValidf("nil Registry")
	}
	if c.Processor == nil {
		return errors.NotValidf("nil Processor")
	}
	return nil
}

// Manager is the worker animating one cohort membership: it announces
// this member's registration, pumps inbound events from the bus to
// the registry and processor, and tears the membership state down
// when stopped.
type Manager struct {
	catacomb catacomb.Catacomb
	config   ManagerConfig
}

// NewManager starts the membership worker. Registration is announced
// before the first inbound event is dispatched; a member that cannot
// announce itself stops with the error.
func NewManager(config ManagerConfig) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	m := &Manager{config: config}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &m.catacomb,
		Work: m.loop,
		Init: []worker.Worker{config.Publisher},
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}

func (m *Manager) loop() error {
	ctx := m.catacomb.Context(context.Background())
	if err := m.config.Registry.AnnounceRegistration(ctx); err != nil {
		return errors.Annotatef(err, "announcing registration to cohort %q", m.config.CohortName)
	}

	inbound := make(chan event.Event)
	unsubscribe, err := m.config.Bus.Subscribe(func(message []byte) {
		ev, err := event.Unmarshal(message)
		if err != nil {
			logger.Errorf("discarding undecodable event from cohort %q: %v", m.config.CohortName, err)
			return
		}
		select {
		case inbound <- ev:
		case <-m.catacomb.Dying():
		}
	})
	if err != nil {
		return errors.Annotatef(err, "subscribing to cohort %q", m.config.CohortName)
	}
	defer m.config.Registry.Close()
	defer unsubscribe()

	logger.Infof("joined cohort %q", m.config.CohortName)
	for {
		select {
		case <-m.catacomb.Dying():
			return m.catacomb.ErrDying()
		case ev := <-inbound:
			m.dispatch(ctx, ev)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, ev event.Event) {
	switch ev.Type.Category() {
	case event.CategoryRegistry:
		m.config.Registry.ProcessRegistryEvent(ctx, ev)
	case event.CategoryInstance:
		m.config.Processor.ProcessInstanceEvent(ctx, ev)
	case event.CategoryTypeDef:
		m.config.Processor.ProcessTypeDefEvent(ctx, ev)
	default:
		logger.Tracef("ignoring uncategorized %s event", ev.Type)
	}
}

// PermanentLeave announces this member's departure from the cohort
// and stops the worker. Delivery of the departure announcement is
// best-effort: the manager does not wait for the outbound queue to
// drain, and the remaining members will in any case drop a silent
// member's registration on their next refresh.
func (m *Manager) PermanentLeave(ctx context.Context) error {
	if err := m.config.Registry.AnnounceUnRegistration(ctx); err != nil {
		return errors.Trace(err)
	}
	m.Kill()
	return errors.Trace(m.Wait())
}

// Report returns introspection details about this membership.
func (m *Manager) Report() map[string]interface{} {
	return map[string]interface{}{
		"cohort":    m.config.CohortName,
		"members":   len(m.config.Registry.Members()),
		"publisher": m.config.Publisher.Report(),
	}
}

// Kill is part of the worker.Worker interface.
func (m *Manager) Kill() {
	m.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (m *Manager) Wait() error {
	return m.catacomb.Wait()
}
