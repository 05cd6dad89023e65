package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

func newEchoContext(t *testing.T, target string) echo.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec)
}

func TestGetTenantID(t *testing.T) {
	c := newEchoContext(t, "/v1/entities")
	req := c.Request().WithContext(appctx.SetTenantID(c.Request().Context(), "tenant-1"))
	c.SetRequest(req)

	tenantID, err := GetTenantID(c)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
}

func TestGetTenantID_Missing(t *testing.T) {
	c := newEchoContext(t, "/v1/entities")

	_, err := GetTenantID(c)
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))
}

func TestQueryInt(t *testing.T) {
	c := newEchoContext(t, "/v1/entities?page=3")

	page, err := QueryInt(c, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	size, err := QueryInt(c, "page_size", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, size)

	c = newEchoContext(t, "/v1/entities?page=three")
	_, err = QueryInt(c, "page", 1)
	assert.Error(t, err)
}

func TestQueryBool(t *testing.T) {
	c := newEchoContext(t, "/v1/entities?include_suppressed=true")

	include, err := QueryBool(c, "include_suppressed")
	require.NoError(t, err)
	assert.True(t, include)

	stale, err := QueryBool(c, "include_stale")
	require.NoError(t, err)
	assert.False(t, stale)

	c = newEchoContext(t, "/v1/entities?include_suppressed=maybe")
	_, err = QueryBool(c, "include_suppressed")
	assert.Error(t, err)
}
