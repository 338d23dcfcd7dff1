// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bus

import (
	"context"

	"github.com/juju/errors"
)

// Fanout publishes every message to a fixed set of targets. A server
// that belongs to several cohorts wraps one publisher per cohort in a
// Fanout so a single local change reaches all of them.
type Fanout struct {
	targets []Publisher
}

// NewFanout returns a publisher delivering to all of the targets.
func NewFanout(targets ...Publisher) *Fanout {
	return &Fanout{targets: targets}
}

// Publish implements Publisher. Every target is attempted; the first
// failure is returned after the remaining targets have been tried.
func (f *Fanout) Publish(ctx context.Context, message []byte) error {
	var first error
	for _, target := range f.targets {
		if err := target.Publish(ctx, message); err != nil {
			if first == nil {
				first = err
			}
			logger.Errorf("fanout publish: %v", err)
		}
	}
	return errors.Trace(first)
}
