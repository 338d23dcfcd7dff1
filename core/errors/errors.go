// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package errors defines the error kinds surfaced by metadata
// collections, the enterprise federator and the cohort event
// processor. Callers match them with errors.Is; the kinds carry no
// state of their own, so call sites annotate with the offending
// parameter or instance identity.
package errors

import (
	"github.com/juju/errors"
)

const (
	// InvalidParameter describes an error that occurs when a caller
	// supplied argument is nil, empty or out of range. Call sites
	// annotate with the parameter name.
	InvalidParameter = errors.ConstError("invalid parameter")

	// UserNotAuthorized describes an error returned by the security
	// verifier when the calling user may not perform the operation.
	UserNotAuthorized = errors.ConstError("user not authorized")

	// RepositoryError describes an I/O or availability failure in the
	// underlying metadata store. Callers may retry.
	RepositoryError = errors.ConstError("repository error")

	// TypeError describes an error that occurs when an instance or
	// request names a type that is inconsistent with the stored
	// instance or with the type registry.
	TypeError = errors.ConstError("type mismatch")

	// InvalidTypeDef describes an error that occurs when a supplied
	// type definition is structurally invalid.
	InvalidTypeDef = errors.ConstError("type definition not valid")

	// TypeDefNotKnown describes an error that occurs when the
	// requested type definition is not defined in the repository.
	TypeDefNotKnown = errors.ConstError("type definition not known")

	// TypeDefConflict describes an error that occurs when a type
	// definition clashes with one already defined under the same
	// identity.
	TypeDefConflict = errors.ConstError("type definition conflict")

	// TypeDefInUse describes an error that occurs when a type
	// definition cannot be removed because instances of it exist.
	TypeDefInUse = errors.ConstError("type definition in use")

	// TypeDefNotSupported describes an error that occurs when the
	// repository does not support the requested type definition.
	TypeDefNotSupported = errors.ConstError("type definition not supported")

	// PatchError describes an error that occurs when a type
	// definition patch cannot be applied to the stored version.
	PatchError = errors.ConstError("type definition patch not applicable")

	// EntityNotKnown describes an error that occurs when the entity
	// identified by the request is not stored.
	EntityNotKnown = errors.ConstError("entity not known")

	// EntityProxyOnly describes an error that occurs when a full
	// entity is required but only a proxy is stored, or when a caller
	// attempts to update a proxy as if it were homed locally.
	EntityProxyOnly = errors.ConstError("only an entity proxy is stored")

	// EntityNotDeleted describes an error that occurs when an
	// operation requires a soft-deleted entity and the entity is not
	// in the deleted state.
	EntityNotDeleted = errors.ConstError("entity not deleted")

	// EntityConflict describes an error that occurs when an entity
	// cannot be added or updated because it clashes with a stored
	// entity.
	EntityConflict = errors.ConstError("entity conflict")

	// HomeEntity describes an error that occurs when a reference-copy
	// operation targets an entity that is homed in this repository.
	HomeEntity = errors.ConstError("entity is homed in this repository")

	// InvalidEntity describes an error that occurs when a supplied
	// entity fails structural validation.
	InvalidEntity = errors.ConstError("entity not valid")

	// RelationshipNotKnown describes an error that occurs when the
	// relationship identified by the request is not stored.
	RelationshipNotKnown = errors.ConstError("relationship not known")

	// RelationshipNotDeleted describes an error that occurs when an
	// operation requires a soft-deleted relationship and the
	// relationship is not in the deleted state.
	RelationshipNotDeleted = errors.ConstError("relationship not deleted")

	// RelationshipConflict describes an error that occurs when a
	// relationship cannot be added or updated because it clashes with
	// a stored relationship.
	RelationshipConflict = errors.ConstError("relationship conflict")

	// HomeRelationship describes an error that occurs when a
	// reference-copy operation targets a relationship that is homed
	// in this repository.
	HomeRelationship = errors.ConstError("relationship is homed in this repository")

	// InvalidRelationship describes an error that occurs when a
	// supplied relationship fails structural validation.
	InvalidRelationship = errors.ConstError("relationship not valid")

	// PropertyError describes an error that occurs when supplied
	// instance properties do not match the instance type.
	PropertyError = errors.ConstError("property not valid")

	// ClassificationError describes an error that occurs when a
	// classification is unknown or cannot be attached to the entity
	// type.
	ClassificationError = errors.ConstError("classification not valid")

	// StatusNotSupported describes an error that occurs when a
	// requested instance status is not defined for the instance type.
	StatusNotSupported = errors.ConstError("instance status not supported")

	// PagingError describes an error that occurs when paging values
	// are negative or inconsistent.
	PagingError = errors.ConstError("paging values not valid")

	// FunctionNotSupported describes an error that occurs when an
	// optional repository capability is not implemented. Federated
	// reads treat this as a soft failure.
	FunctionNotSupported = errors.ConstError("function not supported")

	// LogicError describes an invariant violation inside the
	// repository services. It is fatal to the request and logged.
	LogicError = errors.ConstError("internal logic error")

	// NoRepositories describes an error that occurs when a federated
	// operation runs with no repositories registered.
	NoRepositories = errors.ConstError("no repositories available")

	// NoHomeForInstance describes an error that occurs when no
	// registered repository matches an instance's home or replication
	// point.
	NoHomeForInstance = errors.ConstError("no home repository for instance")
)
