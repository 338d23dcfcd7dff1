// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package bus defines the transport contracts a cohort exchanges
// events over, and the bounded publisher that applies the outbound
// back-pressure policy.
package bus

import (
	"context"

	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("metafed.bus")

// Publisher hands one marshaled cohort event to the transport.
type Publisher interface {
	Publish(ctx context.Context, message []byte) error
}

// Subscriber delivers inbound cohort messages to a handler. The
// returned function cancels the subscription.
type Subscriber interface {
	Subscribe(handler func(message []byte)) (func(), error)
}

// Bus is a bidirectional connection to one cohort's topic.
type Bus interface {
	Publisher
	Subscriber
}
