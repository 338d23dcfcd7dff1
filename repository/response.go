// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package repository

import (
	"net/http"

	"github.com/juju/errors"

	coreerrors "github.com/juju/metafed/core/errors"
)

// Response is the envelope a public API surface wraps around every
// call result. Transports are out of scope here; the envelope keeps
// the error contract stable for whichever transport embeds the core.
type Response struct {
	RelatedHTTPCode       int                    `json:"relatedHTTPCode"`
	ExceptionClassName    string                 `json:"exceptionClassName,omitempty"`
	ExceptionErrorMessage string                 `json:"exceptionErrorMessage,omitempty"`
	ExceptionSystemAction string                 `json:"exceptionSystemAction,omitempty"`
	ExceptionUserAction   string                 `json:"exceptionUserAction,omitempty"`
	ExceptionProperties   map[string]interface{} `json:"exceptionProperties,omitempty"`
}

// OKResponse is the envelope for a successful call.
func OKResponse() Response {
	return Response{RelatedHTTPCode: http.StatusOK}
}

type errorKindInfo struct {
	kind         errors.ConstError
	class        string
	code         int
	systemAction string
	userAction   string
}

// Ordered so more specific kinds shadow broader ones.
var errorKinds = []errorKindInfo{{
	kind:         coreerrors.UserNotAuthorized,
	class:        "UserNotAuthorizedException",
	code:         http.StatusForbidden,
	systemAction: "The request was rejected before any change was made.",
	userAction:   "Ask an administrator for access to this operation.",
}, {
	kind:         coreerrors.InvalidParameter,
	class:        "InvalidParameterException",
	code:         http.StatusBadRequest,
	systemAction: "The request was rejected before any change was made.",
	userAction:   "Correct the named parameter and retry.",
}, {
	kind:         coreerrors.PagingError,
	class:        "PagingErrorException",
	code:         http.StatusBadRequest,
	systemAction: "The request was rejected before any change was made.",
	userAction:   "Correct the paging values and retry.",
}, {
	kind:         coreerrors.PropertyError,
	class:        "PropertyErrorException",
	code:         http.StatusBadRequest,
	systemAction: "The request was rejected before any change was made.",
	userAction:   "Align the properties with the instance's type and retry.",
}, {
	kind:         coreerrors.ClassificationError,
	class:        "ClassificationErrorException",
	code:         http.StatusBadRequest,
	systemAction: "The request was rejected before any change was made.",
	userAction:   "Use a classification defined for the entity's type.",
}, {
	kind:         coreerrors.StatusNotSupported,
	class:        "StatusNotSupportedException",
	code:         http.StatusBadRequest,
	systemAction: "The request was rejected before any change was made.",
	userAction:   "Use a status the instance's type permits.",
}, {
	kind:         coreerrors.InvalidTypeDef,
	class:        "InvalidTypeDefException",
	code:         http.StatusBadRequest,
	systemAction: "The type definition was not stored.",
	userAction:   "Correct the type definition and retry.",
}, {
	kind:         coreerrors.PatchError,
	class:        "PatchErrorException",
	code:         http.StatusBadRequest,
	systemAction: "The type definition was not changed.",
	userAction:   "Rebase the patch on the stored version and retry.",
}, {
	kind:         coreerrors.InvalidEntity,
	class:        "InvalidEntityException",
	code:         http.StatusBadRequest,
	systemAction: "The entity was not stored.",
	userAction:   "Correct the entity and retry.",
}, {
	kind:         coreerrors.InvalidRelationship,
	class:        "InvalidRelationshipException",
	code:         http.StatusBadRequest,
	systemAction: "The relationship was not stored.",
	userAction:   "Correct the relationship and retry.",
}, {
	kind:         coreerrors.EntityNotDeleted,
	class:        "EntityNotDeletedException",
	code:         http.StatusBadRequest,
	systemAction: "The entity is unchanged.",
	userAction:   "Soft-delete the entity before purging or restoring it.",
}, {
	kind:         coreerrors.RelationshipNotDeleted,
	class:        "RelationshipNotDeletedException",
	code:         http.StatusBadRequest,
	systemAction: "The relationship is unchanged.",
	userAction:   "Soft-delete the relationship before purging or restoring it.",
}, {
	kind:         coreerrors.TypeError,
	class:        "TypeErrorException",
	code:         http.StatusBadRequest,
	systemAction: "The request was rejected before any change was made.",
	userAction:   "Use the type recorded on the stored instance.",
}, {
	kind:         coreerrors.TypeDefNotKnown,
	class:        "TypeDefNotKnownException",
	code:         http.StatusNotFound,
	systemAction: "No change was made.",
	userAction:   "Define the type or correct the identifier.",
}, {
	kind:         coreerrors.EntityNotKnown,
	class:        "EntityNotKnownException",
	code:         http.StatusNotFound,
	systemAction: "No change was made.",
	userAction:   "Correct the entity GUID and retry.",
}, {
	kind:         coreerrors.EntityProxyOnly,
	class:        "EntityProxyOnlyException",
	code:         http.StatusNotFound,
	systemAction: "No change was made.",
	userAction:   "Request the entity from its home repository.",
}, {
	kind:         coreerrors.RelationshipNotKnown,
	class:        "RelationshipNotKnownException",
	code:         http.StatusNotFound,
	systemAction: "No change was made.",
	userAction:   "Correct the relationship GUID and retry.",
}, {
	kind:         coreerrors.NoHomeForInstance,
	class:        "NoHomeForInstanceException",
	code:         http.StatusNotFound,
	systemAction: "The write was not routed.",
	userAction:   "Check that the instance's home repository is connected to the cohort.",
}, {
	kind:         coreerrors.TypeDefConflict,
	class:        "TypeDefConflictException",
	code:         http.StatusConflict,
	systemAction: "The type definition was not stored.",
	userAction:   "Resolve the clash with the already defined type.",
}, {
	kind:         coreerrors.TypeDefInUse,
	class:        "TypeDefInUseException",
	code:         http.StatusConflict,
	systemAction: "The type definition was not removed.",
	userAction:   "Purge the instances of this type first.",
}, {
	kind:         coreerrors.EntityConflict,
	class:        "EntityConflictException",
	code:         http.StatusConflict,
	systemAction: "The entity was not stored.",
	userAction:   "Resolve the clash with the stored entity.",
}, {
	kind:         coreerrors.RelationshipConflict,
	class:        "RelationshipConflictException",
	code:         http.StatusConflict,
	systemAction: "The relationship was not stored.",
	userAction:   "Resolve the clash with the stored relationship.",
}, {
	kind:         coreerrors.HomeEntity,
	class:        "HomeEntityException",
	code:         http.StatusConflict,
	systemAction: "The entity is unchanged.",
	userAction:   "Use the home repository's lifecycle operations instead.",
}, {
	kind:         coreerrors.HomeRelationship,
	class:        "HomeRelationshipException",
	code:         http.StatusConflict,
	systemAction: "The relationship is unchanged.",
	userAction:   "Use the home repository's lifecycle operations instead.",
}, {
	kind:         coreerrors.TypeDefNotSupported,
	class:        "TypeDefNotSupportedException",
	code:         http.StatusNotImplemented,
	systemAction: "No change was made.",
	userAction:   "Route the request to a repository that supports this type.",
}, {
	kind:         coreerrors.FunctionNotSupported,
	class:        "FunctionNotSupportedException",
	code:         http.StatusNotImplemented,
	systemAction: "No change was made.",
	userAction:   "Route the request to a repository that supports this capability.",
}, {
	kind:         coreerrors.NoRepositories,
	class:        "NoRepositoriesException",
	code:         http.StatusServiceUnavailable,
	systemAction: "The request was not run.",
	userAction:   "Retry once repositories have joined the cohort.",
}, {
	kind:         coreerrors.RepositoryError,
	class:        "RepositoryErrorException",
	code:         http.StatusServiceUnavailable,
	systemAction: "The request may have partially run; consult the audit log.",
	userAction:   "Retry; if the failure persists, check the repository service.",
}, {
	kind:         coreerrors.LogicError,
	class:        "LogicErrorException",
	code:         http.StatusInternalServerError,
	systemAction: "The request was abandoned and the failure audited.",
	userAction:   "Report the logged failure to the service owner.",
}}

// NewErrorResponse maps an error to the response envelope. Errors
// outside the kind taxonomy are reported as unexpected.
func NewErrorResponse(err error) Response {
	if err == nil {
		return OKResponse()
	}
	for _, info := range errorKinds {
		if errors.Is(err, info.kind) {
			return Response{
				RelatedHTTPCode:       info.code,
				ExceptionClassName:    info.class,
				ExceptionErrorMessage: err.Error(),
				ExceptionSystemAction: info.systemAction,
				ExceptionUserAction:   info.userAction,
			}
		}
	}
	return Response{
		RelatedHTTPCode:       http.StatusInternalServerError,
		ExceptionClassName:    "UnexpectedException",
		ExceptionErrorMessage: err.Error(),
		ExceptionSystemAction: "The request was abandoned and the failure audited.",
		ExceptionUserAction:   "Report the logged failure to the service owner.",
	}
}
