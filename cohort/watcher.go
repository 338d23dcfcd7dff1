// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cohort

import (
	"gopkg.in/tomb.v2"
)

// MembershipWatcher reports changes to the cohort's remote
// membership. Every event carries the complete membership at the time
// it was generated; intermediate states may be coalesced. The first
// event is the membership at the time the watcher was created.
type MembershipWatcher struct {
	tomb     tomb.Tomb
	registry *Registry
	updates  chan []Member
	out      chan []Member
}

// WatchMembers returns a watcher over the registry's remote
// membership. A watcher taken from a closed registry is already
// stopped.
func (r *Registry) WatchMembers() *MembershipWatcher {
	w := &MembershipWatcher{
		registry: r,
		updates:  make(chan []Member, 1),
		out:      make(chan []Member),
	}
	r.mu.Lock()
	closed := r.closed
	if !closed {
		r.watchers[w] = true
		w.send(r.membersLocked())
	}
	r.mu.Unlock()

	w.tomb.Go(w.loop)
	if closed {
		w.tomb.Kill(nil)
	}
	return w
}

// Changes returns the event channel. It is closed when the watcher
// stops.
func (w *MembershipWatcher) Changes() <-chan []Member {
	return w.out
}

// send replaces any pending event with the newer snapshot. Callers
// hold the registry lock, so sends never race each other.
func (w *MembershipWatcher) send(members []Member) {
	select {
	case <-w.updates:
	default:
	}
	w.updates <- members
}

func (w *MembershipWatcher) loop() error {
	defer close(w.out)
	defer w.registry.removeWatcher(w)
	var out chan []Member
	var pending []Member
	for {
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case members := <-w.updates:
			pending = members
			out = w.out
		case out <- pending:
			out = nil
			pending = nil
		}
	}
}

func (r *Registry) removeWatcher(w *MembershipWatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, w)
}

// Kill is part of the worker.Worker interface.
func (w *MembershipWatcher) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *MembershipWatcher) Wait() error {
	return w.tomb.Wait()
}
