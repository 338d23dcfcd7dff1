// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package instance

import (
	"github.com/juju/errors"
)

// Provenance describes where an instance originated, which in turn
// determines which collection may update it.
type Provenance string

const (
	// ProvenanceUnknown is the zero value; instances leaving a
	// repository wrapper never carry it.
	ProvenanceUnknown Provenance = ""

	// ProvenanceLocalCohort marks an instance homed in a repository
	// that is an active member of the cohort.
	ProvenanceLocalCohort Provenance = "LOCAL_COHORT"

	// ProvenanceExternalSource marks an instance mastered by a system
	// outside the cohort and replicated through a cohort member.
	ProvenanceExternalSource Provenance = "EXTERNAL_SOURCE"

	// ProvenanceDeregistered marks an instance whose home collection
	// has left the cohort, leaving the copy without an authority.
	ProvenanceDeregistered Provenance = "DEREGISTERED"

	// ProvenanceConfiguration marks an instance loaded from
	// configuration, such as a content pack of standard definitions.
	ProvenanceConfiguration Provenance = "CONFIGURATION"
)

// Validate returns an error if the provenance is not a recognized
// category.
func (p Provenance) Validate() error {
	switch p {
	case ProvenanceLocalCohort, ProvenanceExternalSource,
		ProvenanceDeregistered, ProvenanceConfiguration:
		return nil
	case ProvenanceUnknown:
		return errors.NotValidf("empty provenance")
	}
	return errors.NotValidf("provenance %q", string(p))
}
