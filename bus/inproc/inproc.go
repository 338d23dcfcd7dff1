// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package inproc provides an in-process cohort bus backed by a
// shared pubsub hub. Repositories running in one process join the
// same hub; each cohort maps to one topic carrying marshaled events.
package inproc

import (
	"context"

	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
)

var logger = loggo.GetLogger("metafed.bus.inproc")

// Hub is the process-wide fabric cohort buses attach to.
type Hub struct {
	hub *pubsub.SimpleHub
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: loggo.GetLogger("metafed.bus.inproc.hub"),
		}),
	}
}

// Join returns the bus for the named cohort's topic.
func (h *Hub) Join(cohort string) *Bus {
	return &Bus{hub: h.hub, topic: "cohort." + cohort}
}

// Bus publishes and subscribes on a single cohort topic. Every
// subscriber sees every message, including those the same member
// published.
type Bus struct {
	hub   *pubsub.SimpleHub
	topic string
}

// Publish sends the message to every subscriber of the cohort topic
// and waits until all of them have handled it.
func (b *Bus) Publish(ctx context.Context, message []byte) error {
	done := b.hub.Publish(b.topic, message)
	select {
	case <-pubsub.Wait(done):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for cohort messages. Handlers for
// one subscriber run serially in publication order.
func (b *Bus) Subscribe(handler func(message []byte)) (func(), error) {
	unsubscribe := b.hub.Subscribe(b.topic, func(topic string, data interface{}) {
		message, ok := data.([]byte)
		if !ok {
			logger.Errorf("topic %q carried %T, expected []byte", topic, data)
			return
		}
		handler(message)
	})
	return unsubscribe, nil
}
