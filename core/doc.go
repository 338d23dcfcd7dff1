// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package core holds the concepts shared by every layer of the metadata
repository services: the error taxonomy, the instance model, the type
definition model, and the cohort event envelope.

This is deliberately narrow; it is most important to be aware of what
should *not* go here. In particular:

  - if it stores or retrieves instances, it belongs under repository
  - if it moves bytes between cohort members, it belongs under bus
  - if it reacts to another member's events, it belongs under cohort

...and more generally, when adding to core:

  - it's fine to import from any subpackage of core
  - but never import any other package of this module
  - don't introduce mutable global state

The payoff is that a connector to a real repository can depend on core
alone and speak the cohort's language without dragging in the local
store, the federator or the transport.
*/
package core
