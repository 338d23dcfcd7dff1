// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cohort

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/juju/metafed/core/instance"
	"github.com/juju/metafed/core/typedef"
)

// Rule names an exchange policy: how much of the cohort's metadata
// this repository takes in.
type Rule string

const (
	// RuleNone takes nothing from the cohort.
	RuleNone Rule = "NONE"

	// RuleJustTypeDefs takes type definitions but no instances.
	RuleJustTypeDefs Rule = "JUST_TYPEDEFS"

	// RuleLearnedTypeDefs takes type definitions and instances,
	// adopting types this repository has not seen before.
	RuleLearnedTypeDefs Rule = "LEARNED_TYPEDEFS"

	// RuleDesiredTypeDefs takes type definitions and instances of the
	// types this repository already defines.
	RuleDesiredTypeDefs Rule = "DESIRED_TYPEDEFS"

	// RuleSelectedTypeDefs takes type definitions and instances of an
	// explicitly configured list of type names.
	RuleSelectedTypeDefs Rule = "SELECTED_TYPEDEFS"

	// RuleAll takes everything.
	RuleAll Rule = "ALL"
)

// Validate returns an error for an unrecognized rule.
func (r Rule) Validate() error {
	switch r {
	case RuleNone, RuleJustTypeDefs, RuleLearnedTypeDefs,
		RuleDesiredTypeDefs, RuleSelectedTypeDefs, RuleAll:
		return nil
	}
	return errors.NotValidf("exchange rule %q", string(r))
}

// ExchangeRule decides, per instance, whether inbound cohort metadata
// is stored here. It is a pure predicate over the instance's type and
// the repository's type cache; the event processor applies it before
// every reference-copy save and every proactive refresh.
type ExchangeRule struct {
	rule     Rule
	selected set.Strings
	types    *typedef.Cache
}

// NewExchangeRule returns the rule in the given mode. The selected
// type names only matter in SELECTED_TYPEDEFS mode.
func NewExchangeRule(rule Rule, selectedTypeNames []string, types *typedef.Cache) (*ExchangeRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if types == nil {
		return nil, errors.NotValidf("nil type cache")
	}
	if rule == RuleSelectedTypeDefs && len(selectedTypeNames) == 0 {
		return nil, errors.NotValidf("SELECTED_TYPEDEFS with no selected types")
	}
	return &ExchangeRule{
		rule:     rule,
		selected: set.NewStrings(selectedTypeNames...),
		types:    types,
	}, nil
}

// Rule returns the configured mode.
func (r *ExchangeRule) Rule() Rule {
	return r.rule
}

// ProcessInstanceEvent reports whether an inbound instance of the
// given type may be persisted as a reference copy.
func (r *ExchangeRule) ProcessInstanceEvent(t instance.InstanceType) bool {
	switch r.rule {
	case RuleAll, RuleLearnedTypeDefs:
		return true
	case RuleDesiredTypeDefs:
		return r.types.IsActive(t.GUID)
	case RuleSelectedTypeDefs:
		return r.selected.Contains(t.Name)
	}
	return false
}

// LearnInstanceEvent reports whether a retrieved instance of the
// given type may be proactively refreshed into this repository. It is
// at least as permissive as ProcessInstanceEvent: a refresh only asks
// the home to publish, and the save rule gates again on arrival.
func (r *ExchangeRule) LearnInstanceEvent(t instance.InstanceType) bool {
	switch r.rule {
	case RuleAll, RuleLearnedTypeDefs, RuleDesiredTypeDefs:
		return true
	case RuleSelectedTypeDefs:
		return r.selected.Contains(t.Name)
	}
	return false
}

// LearnsTypeDefs reports whether cohort type definitions are adopted
// into the local cache.
func (r *ExchangeRule) LearnsTypeDefs() bool {
	return r.rule != RuleNone
}

// LearnsUnknownTypes reports whether an instance of a type this
// repository has never defined may still be stored, adopting the type
// as learned.
func (r *ExchangeRule) LearnsUnknownTypes() bool {
	return r.rule == RuleAll || r.rule == RuleLearnedTypeDefs
}
