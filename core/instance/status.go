// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package instance

import (
	"github.com/juju/errors"
)

// Status is the lifecycle state of an instance. Type definitions
// restrict which statuses their instances may take; the set below is
// the vocabulary the core understands.
type Status string

const (
	StatusUnknown    Status = ""
	StatusDraft      Status = "DRAFT"
	StatusPrepared   Status = "PREPARED"
	StatusProposed   Status = "PROPOSED"
	StatusApproved   Status = "APPROVED"
	StatusActive     Status = "ACTIVE"
	StatusDeprecated Status = "DEPRECATED"
	StatusOther      Status = "OTHER"

	// StatusDeleted marks a soft-deleted instance. Only deleted
	// instances may be purged or restored.
	StatusDeleted Status = "DELETED"
)

// Validate returns an error if the status is not part of the
// lifecycle vocabulary.
func (s Status) Validate() error {
	switch s {
	case StatusDraft, StatusPrepared, StatusProposed, StatusApproved,
		StatusActive, StatusDeprecated, StatusOther, StatusDeleted:
		return nil
	case StatusUnknown:
		return errors.NotValidf("empty status")
	}
	return errors.NotValidf("status %q", string(s))
}

// Deleted reports whether the status marks a soft-deleted instance.
func (s Status) Deleted() bool {
	return s == StatusDeleted
}

// AllStatuses returns the complete lifecycle vocabulary, including
// DELETED. Passing it as a status filter disables status filtering.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusPrepared, StatusProposed, StatusApproved,
		StatusActive, StatusDeprecated, StatusOther, StatusDeleted,
	}
}
