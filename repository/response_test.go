// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package repository_test

import (
	"net/http"

	"github.com/juju/errors"
	"github.com/juju/testing"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/juju/metafed/core/errors"
	"github.com/juju/metafed/repository"
)

type ResponseSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&ResponseSuite{})

func (s *ResponseSuite) TestOKResponse(c *gc.C) {
	r := repository.OKResponse()
	c.Assert(r.RelatedHTTPCode, gc.Equals, http.StatusOK)
	c.Assert(r.ExceptionClassName, gc.Equals, "")
}

func (s *ResponseSuite) TestNilError(c *gc.C) {
	r := repository.NewErrorResponse(nil)
	c.Assert(r.RelatedHTTPCode, gc.Equals, http.StatusOK)
}

func (s *ResponseSuite) TestKindMapping(c *gc.C) {
	for i, t := range []struct {
		err   error
		code  int
		class string
	}{{
		err:   coreerrors.InvalidParameter,
		code:  http.StatusBadRequest,
		class: "InvalidParameterException",
	}, {
		err:   coreerrors.UserNotAuthorized,
		code:  http.StatusForbidden,
		class: "UserNotAuthorizedException",
	}, {
		err:   coreerrors.EntityNotKnown,
		code:  http.StatusNotFound,
		class: "EntityNotKnownException",
	}, {
		err:   coreerrors.EntityProxyOnly,
		code:  http.StatusNotFound,
		class: "EntityProxyOnlyException",
	}, {
		err:   coreerrors.TypeDefConflict,
		code:  http.StatusConflict,
		class: "TypeDefConflictException",
	}, {
		err:   coreerrors.HomeEntity,
		code:  http.StatusConflict,
		class: "HomeEntityException",
	}, {
		err:   coreerrors.FunctionNotSupported,
		code:  http.StatusNotImplemented,
		class: "FunctionNotSupportedException",
	}, {
		err:   coreerrors.RepositoryError,
		code:  http.StatusServiceUnavailable,
		class: "RepositoryErrorException",
	}, {
		err:   coreerrors.NoRepositories,
		code:  http.StatusServiceUnavailable,
		class: "NoRepositoriesException",
	}, {
		err:   coreerrors.LogicError,
		code:  http.StatusInternalServerError,
		class: "LogicErrorException",
	}} {
		c.Logf("test %d: %v", i, t.err)
		r := repository.NewErrorResponse(t.err)
		c.Check(r.RelatedHTTPCode, gc.Equals, t.code)
		c.Check(r.ExceptionClassName, gc.Equals, t.class)
		c.Check(r.ExceptionSystemAction, gc.Not(gc.Equals), "")
		c.Check(r.ExceptionUserAction, gc.Not(gc.Equals), "")
	}
}

func (s *ResponseSuite) TestAnnotatedErrorKeepsKind(c *gc.C) {
	err := errors.Annotatef(coreerrors.EntityNotKnown, "entity %q", "g1")
	r := repository.NewErrorResponse(err)
	c.Assert(r.RelatedHTTPCode, gc.Equals, http.StatusNotFound)
	c.Assert(r.ExceptionClassName, gc.Equals, "EntityNotKnownException")
	c.Assert(r.ExceptionErrorMessage, gc.Matches, `entity "g1".*`)
}

func (s *ResponseSuite) TestUnexpectedError(c *gc.C) {
	r := repository.NewErrorResponse(errors.New("boom"))
	c.Assert(r.RelatedHTTPCode, gc.Equals, http.StatusInternalServerError)
	c.Assert(r.ExceptionClassName, gc.Equals, "UnexpectedException")
	c.Assert(r.ExceptionErrorMessage, gc.Equals, "boom")
}
