// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package repository

import (
	"context"

	"github.com/juju/metafed/core/instance"
)

// SecurityVerifier authorizes operations before the local wrapper
// delegates them. Implementations return an error satisfying
// UserNotAuthorized to deny; any other error fails the operation.
//
// A nil verifier on the wrapper permits everything.
type SecurityVerifier interface {
	// CanReadTypes authorizes type definition reads.
	CanReadTypes(ctx context.Context, userID string) error

	// CanWriteTypes authorizes type definition mutations.
	CanWriteTypes(ctx context.Context, userID string) error

	// CanCreateInstance authorizes creation of an instance of the
	// named type.
	CanCreateInstance(ctx context.Context, userID, typeName string) error

	// CanReadInstance authorizes reading one instance. Search results
	// failing this check are dropped rather than failing the call.
	CanReadInstance(ctx context.Context, userID string, header instance.Header) error

	// CanUpdateInstance authorizes lifecycle changes to one instance.
	CanUpdateInstance(ctx context.Context, userID string, header instance.Header) error

	// CanDeleteInstance authorizes soft-delete, purge and restore of
	// one instance.
	CanDeleteInstance(ctx context.Context, userID string, header instance.Header) error

	// CanMaintainInstances authorizes control-plane and
	// reference-copy maintenance operations.
	CanMaintainInstances(ctx context.Context, userID string) error
}
