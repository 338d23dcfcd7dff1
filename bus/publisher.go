// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bus

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"github.com/juju/worker/v4/catacomb"
)

// OverflowPolicy says what a full outbound queue does with a new
// event.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest queued event, recording the loss.
	DropOldest OverflowPolicy = "drop-oldest"

	// BlockCaller makes Publish wait until the queue has space.
	BlockCaller OverflowPolicy = "block"
)

// Validate returns an error for an unrecognized policy.
func (p OverflowPolicy) Validate() error {
	switch p {
	case DropOldest, BlockCaller:
		return nil
	}
	return errors.NotValidf("overflow policy %q", string(p))
}

// BufferedPublisherConfig holds the dependencies and policy for a
// buffered publisher.
type BufferedPublisherConfig struct {
	// Target is the transport delivered to.
	Target Publisher

	// QueueSize bounds the number of undelivered events held.
	QueueSize int

	// Overflow says what happens to new events when the queue is
	// full.
	Overflow OverflowPolicy

	// Clock paces delivery retries.
	Clock clock.Clock

	// DeliveryAttempts is how many times one event is offered to the
	// transport before it is dropped.
	DeliveryAttempts int

	// RetryDelay is the initial pause between delivery attempts.
	RetryDelay time.Duration
}

// Validate returns an error if the config is not usable.
func (config BufferedPublisherConfig) Validate() error {
	if config.Target == nil {
		return errors.NotValidf("nil Target")
	}
	if config.QueueSize < 1 {
		return errors.NotValidf("queue size %d", config.QueueSize)
	}
	if err := config.Overflow.Validate(); err != nil {
		return errors.Trace(err)
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.DeliveryAttempts < 1 {
		return errors.NotValidf("delivery attempts %d", config.DeliveryAttempts)
	}
	if config.RetryDelay <= 0 {
		return errors.NotValidf("retry delay %v", config.RetryDelay)
	}
	return nil
}

// BufferedPublisher decouples event producers from the cohort
// transport. Publish hands the event to a bounded queue and returns;
// a single delivery loop drains the queue, retrying each event
// before giving up on it. An undeliverable event is logged and
// dropped so one bad event cannot stall the cohort.
type BufferedPublisher struct {
	catacomb catacomb.Catacomb
	config   BufferedPublisherConfig
	queue    chan []byte

	mu        sync.Mutex
	published int64
	dropped   int64
	failed    int64
}

// NewBufferedPublisher starts the delivery worker and returns it.
func NewBufferedPublisher(config BufferedPublisherConfig) (*BufferedPublisher, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	p := &BufferedPublisher{
		config: config,
		queue:  make(chan []byte, config.QueueSize),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &p.catacomb,
		Work: p.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return p, nil
}

// Publish queues the message for delivery. Under BlockCaller a full
// queue makes the call wait; under DropOldest the oldest queued
// message is evicted to make room.
func (p *BufferedPublisher) Publish(ctx context.Context, message []byte) error {
	select {
	case <-p.catacomb.Dying():
		return errors.New("publisher stopping")
	default:
	}
	if p.config.Overflow == BlockCaller {
		select {
		case p.queue <- message:
			return nil
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-p.catacomb.Dying():
			return errors.New("publisher stopping")
		}
	}
	for {
		select {
		case p.queue <- message:
			return nil
		case <-p.catacomb.Dying():
			return errors.New("publisher stopping")
		default:
		}
		select {
		case <-p.queue:
			p.recordDrop("queue full, evicting oldest event")
		default:
		}
	}
}

func (p *BufferedPublisher) loop() error {
	for {
		select {
		case <-p.catacomb.Dying():
			return p.catacomb.ErrDying()
		case message := <-p.queue:
			if err := p.deliver(message); err != nil {
				if retry.IsRetryStopped(err) {
					return p.catacomb.ErrDying()
				}
				logger.Errorf("delivering cohort event: %v", err)
				p.mu.Lock()
				p.failed++
				p.mu.Unlock()
			}
		}
	}
}

func (p *BufferedPublisher) deliver(message []byte) error {
	ctx := p.catacomb.Context(context.Background())
	err := retry.Call(retry.CallArgs{
		Attempts: p.config.DeliveryAttempts,
		Delay:    p.config.RetryDelay,
		Clock:    p.config.Clock,
		Stop:     p.catacomb.Dying(),
		Func: func() error {
			return p.config.Target.Publish(ctx, message)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("cohort publish attempt %d failed: %v", attempt, err)
		},
	})
	if err != nil {
		return errors.Trace(err)
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

func (p *BufferedPublisher) recordDrop(reason string) {
	logger.Warningf("dropping cohort event: %s", reason)
	p.mu.Lock()
	p.dropped++
	p.mu.Unlock()
}

// Report returns introspection details about the queue and delivery
// counts.
func (p *BufferedPublisher) Report() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"queue-len":  len(p.queue),
		"queue-size": p.config.QueueSize,
		"published":  p.published,
		"dropped":    p.dropped,
		"failed":     p.failed,
	}
}

// Kill is part of the worker.Worker interface.
func (p *BufferedPublisher) Kill() {
	p.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (p *BufferedPublisher) Wait() error {
	return p.catacomb.Wait()
}
