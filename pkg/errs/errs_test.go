package errs_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabell-io/tabell-go/pkg/errs"
)

func TestE(t *testing.T) {
	err := errs.E(errs.Op("tabell.Client.Login"), errs.Unauthenticated, "invalid username or password")

	assert.EqualError(t, err, "tabell.Client.Login: unauthenticated: invalid username or password")
}

func TestKindIs(t *testing.T) {
	inner := errs.E(errs.Op("session.Store.Token"), errs.IO, errors.New("disk gone"))
	outer := errs.E(errs.Op("tabell.Client.Tables"), inner)

	assert.True(t, errs.KindIs(errs.IO, outer))
	assert.False(t, errs.KindIs(errs.Timeout, outer))
	assert.False(t, errs.KindIs(errs.IO, errors.New("plain")))
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		expect errs.Kind
	}{
		{
			name:   "direct kind",
			err:    errs.E(errs.NotExist, "gone"),
			expect: errs.NotExist,
		},
		{
			name:   "kind further down the chain",
			err:    errs.E(errs.Op("outer"), errs.E(errs.Validation, "bad value")),
			expect: errs.Validation,
		},
		{
			name:   "no kind anywhere",
			err:    errs.E(errs.Op("outer"), "something"),
			expect: errs.Other,
		},
		{
			name:   "plain error",
			err:    errors.New("plain"),
			expect: errs.Other,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, errs.KindOf(tc.err))
		})
	}
}

func TestDuplicateKindsCollapse(t *testing.T) {
	inner := errs.E(errs.Unauthenticated, "session expired")
	outer := errs.E(errs.Op("outer"), errs.Unauthenticated, inner)

	// The kind appears once in the rendered chain.
	assert.EqualError(t, outer, "outer: unauthenticated: session expired")
	assert.True(t, errs.KindIs(errs.Unauthenticated, outer))
}

func TestMessage(t *testing.T) {
	err := errs.E(errs.Op("outer"), errs.E(errs.Op("inner"), errs.Validation, "Yas must be an integer"))

	assert.Equal(t, "Yas must be an integer", errs.Message(err))
	assert.Equal(t, "", errs.Message(nil))
	assert.Equal(t, "plain", errs.Message(errors.New("plain")))
}

func TestFieldsOf(t *testing.T) {
	fields := errs.Fields{"Yas": {"Yas must be an integer"}}

	inner := errs.E(errs.Validation, fields, "row values failed validation")
	outer := errs.E(errs.Op("outer"), inner)

	assert.Equal(t, fields, errs.FieldsOf(outer))
	assert.Nil(t, errs.FieldsOf(errors.New("plain")))
}

func TestOpStack(t *testing.T) {
	err := errs.E(errs.Op("a"), errs.E(errs.Op("b"), errs.E(errs.Op("c"), "boom")))

	assert.Equal(t, []string{"a", "b", "c"}, errs.OpStack(err))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := errs.E(errs.Op("op"), errs.Internal, cause)

	assert.True(t, errors.Is(err, cause))
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		kind   errs.Kind
		expect int
	}{
		{kind: errs.InvalidRequest, expect: http.StatusBadRequest},
		{kind: errs.Validation, expect: http.StatusUnprocessableEntity},
		{kind: errs.Unauthenticated, expect: http.StatusUnauthorized},
		{kind: errs.Unauthorized, expect: http.StatusForbidden},
		{kind: errs.NotExist, expect: http.StatusNotFound},
		{kind: errs.Exist, expect: http.StatusConflict},
		{kind: errs.RateLimited, expect: http.StatusTooManyRequests},
		{kind: errs.Timeout, expect: http.StatusGatewayTimeout},
		{kind: errs.Unavailable, expect: http.StatusServiceUnavailable},
		{kind: errs.Internal, expect: http.StatusInternalServerError},
		{kind: errs.Other, expect: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d", tc.expect), func(t *testing.T) {
			assert.Equal(t, tc.expect, errs.HTTPStatus(tc.kind))
		})
	}
}

func TestHTTPErrorResponse(t *testing.T) {
	err := errs.E(errs.Op("op"), errs.Validation, errs.Fields{"Yas": {"Yas must be an integer"}}, "row values failed validation")

	rec := httptest.NewRecorder()

	errs.HTTPErrorResponse(rec, zerolog.Nop(), err)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	res := errs.ErrResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	assert.False(t, res.Success)
	assert.Equal(t, "row values failed validation", res.Message)
	assert.Equal(t, map[string][]string{"Yas": {"Yas must be an integer"}}, res.Errors)
}
