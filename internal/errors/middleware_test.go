package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	e.Use(Middleware())
	e.GET("/test", handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_StructuredError(t *testing.T) {
	rec := doRequest(t, func(echo.Context) error {
		return ForbiddenError("verification failed").WithContext("message_id", "msg-1")
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "verification failed", resp.Error)
	assert.Equal(t, TypeForbidden, resp.Type)
	assert.Equal(t, "msg-1", resp.Context["message_id"])
}

func TestMiddleware_PlainErrorBecomesInternal(t *testing.T) {
	rec := doRequest(t, func(echo.Context) error {
		return assert.AnError
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, TypeInternal, resp.Type)
	// The cause stays in the logs, never in the response body.
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestMiddleware_SuccessPassesThrough(t *testing.T) {
	rec := doRequest(t, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestWrapHTTPError(t *testing.T) {
	wrapped := WrapHTTPError(echo.NewHTTPError(http.StatusRequestEntityTooLarge, "body too large"))
	assert.Equal(t, TypeValidation, wrapped.Type)
	assert.Equal(t, "body too large", wrapped.Message)

	wrapped = WrapHTTPError(echo.NewHTTPError(http.StatusTeapot))
	assert.Equal(t, TypeInternal, wrapped.Type)
}
