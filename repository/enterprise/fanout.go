// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package enterprise

import (
	"context"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
)

// sourced tags a member's response with the collection it came from,
// so merging can prefer home copies and learning can skip local ones.
type sourced[T any] struct {
	item   T
	source string
}

// softError reports whether a member failure is survivable: the
// fan-out logs it and carries on with the remaining members.
func softError(err error) bool {
	return errors.Is(err, coreerrors.RepositoryError) ||
		errors.Is(err, coreerrors.FunctionNotSupported) ||
		errors.Is(err, coreerrors.UserNotAuthorized)
}

// absentError reports whether a member failure only says "not here":
// the subject, or the type vocabulary it needs, is unknown to that
// member. The fan-out keeps looking and surfaces the first such error
// only when no member responds.
func absentError(err error) bool {
	return errors.Is(err, coreerrors.EntityNotKnown) ||
		errors.Is(err, coreerrors.EntityProxyOnly) ||
		errors.Is(err, coreerrors.RelationshipNotKnown) ||
		errors.Is(err, coreerrors.TypeDefNotKnown) ||
		errors.Is(err, coreerrors.ClassificationError)
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, coreerrors.RepositoryError):
		return "repository-error"
	case errors.Is(err, coreerrors.FunctionNotSupported):
		return "unsupported"
	case errors.Is(err, coreerrors.UserNotAuthorized):
		return "unauthorized"
	default:
		return "other"
	}
}

// collect invokes call on every member in order and gathers the
// successful responses. Soft failures are logged and skipped; absent
// responses are remembered; anything else fails the read outright.
// When the context expires mid-fan-out, whatever has been gathered is
// returned and the rest of the cohort is abandoned.
func collect[T any](ctx context.Context, f *Federator, conns []connection, op string, call func(context.Context, connection) (T, error)) ([]sourced[T], error) {
	var (
		results []sourced[T]
		absent  error
		soft    error
	)
	for _, conn := range conns {
		if err := ctx.Err(); err != nil {
			if len(results) == 0 {
				return nil, errors.Trace(err)
			}
			logger.Warningf("%s: abandoning fan-out at %q: %v", op, conn.collectionID, err)
			f.config.Metrics.fanoutAbandoned(op)
			break
		}
		item, err := call(ctx, conn)
		switch {
		case err == nil:
			results = append(results, sourced[T]{item: item, source: conn.collectionID})
		case softError(err):
			logger.Infof("%s: skipping %q: %v", op, conn.collectionID, err)
			f.config.Metrics.connectorSkipped(conn.collectionID, skipReason(err))
			if soft == nil {
				soft = errors.Annotatef(err, "repository %q", conn.collectionID)
			}
		case absentError(err):
			if absent == nil {
				absent = err
			}
		default:
			return nil, errors.Trace(err)
		}
	}
	if len(results) > 0 {
		return results, nil
	}
	if absent != nil {
		return nil, errors.Trace(absent)
	}
	if soft != nil {
		return nil, errors.Trace(soft)
	}
	return nil, nil
}
