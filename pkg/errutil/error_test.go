package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructorsKeepCause(t *testing.T) {
	cause := errors.New("boom")
	err := Internal("failed to credit", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusInternal, StatusOf(err))
	require.Contains(t, err.Error(), "boom")
}

func TestStatusOfWrapped(t *testing.T) {
	err := fmt.Errorf("apply webhook: %w", Forbidden("invalid signature", nil))

	require.True(t, Is(err, StatusForbidden))
	require.Equal(t, StatusUnknown, StatusOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusBadRequest:          http.StatusBadRequest,
		StatusForbidden:           http.StatusForbidden,
		StatusNotFound:            http.StatusNotFound,
		StatusConflict:            http.StatusConflict,
		StatusUnprocessableEntity: http.StatusUnprocessableEntity,
		StatusUnavailable:         http.StatusServiceUnavailable,
		StatusUnknown:             http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code)
	}
}

func TestJSONHidesCause(t *testing.T) {
	be := BaseError{Code: StatusInternal, Message: "failed", Err: errors.New("secret dsn")}
	body := be.JSON().(map[string]interface{})["error"].(map[string]interface{})

	require.Equal(t, "failed", body["message"])
}
