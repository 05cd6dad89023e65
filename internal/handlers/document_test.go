package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeValidator struct {
	issues    models.Issues
	err       error
	documents [][]byte
}

func (f *fakeValidator) Validate(_ context.Context, _ string, documents [][]byte) (models.Issues, error) {
	f.documents = documents
	return f.issues, f.err
}

func postValidate(t *testing.T, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/validate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(appctx.SetTenantID(req.Context(), "tenant-1"))
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestValidate_BatchBody(t *testing.T) {
	validator := &fakeValidator{
		issues: models.Issues{
			models.StructuralError("apiResources[0].ordId", "invalid ORD ID"),
			models.LifecycleWarning("sap.s4:apiResource:orders:v1", "deprecated without successor"),
		},
	}
	h := NewDocumentHandler(validator)

	c, rec := postValidate(t, `{"documents": [{"openResourceDiscovery": "1.9"}, {"openResourceDiscovery": "1.9"}]}`)
	require.NoError(t, h.Validate(c))

	assert.Len(t, validator.documents, 2)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, 1, resp.Errors)
	assert.Len(t, resp.Issues, 2)
}

func TestValidate_BareDocument(t *testing.T) {
	validator := &fakeValidator{}
	h := NewDocumentHandler(validator)

	c, rec := postValidate(t, `{"openResourceDiscovery": "1.9", "apiResources": []}`)
	require.NoError(t, h.Validate(c))

	require.Len(t, validator.documents, 1)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, 0, resp.Errors)
	assert.NotNil(t, resp.Issues)
}

func TestValidate_EmptyBatch(t *testing.T) {
	h := NewDocumentHandler(&fakeValidator{})

	c, _ := postValidate(t, `{"documents": []}`)
	err := h.Validate(c)
	require.Error(t, err)
}
