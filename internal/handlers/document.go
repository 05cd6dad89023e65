package handlers

import (
	"context"
	"encoding/json"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// DocumentValidator checks documents without persisting anything.
type DocumentValidator interface {
	Validate(ctx context.Context, tenantID string, documents [][]byte) (models.Issues, error)
}

// DocumentHandler handles ad hoc document validation
type DocumentHandler struct {
	validator DocumentValidator
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(validator DocumentValidator) *DocumentHandler {
	return &DocumentHandler{validator: validator}
}

// RegisterRoutes registers document routes
func (h *DocumentHandler) RegisterRoutes(g *echo.Group) {
	docs := g.Group("/documents")
	docs.POST("/validate", h.Validate)
}

// ValidateRequest is a batch validation request body. A bare document object
// is also accepted.
type ValidateRequest struct {
	Documents []json.RawMessage `json:"documents"`
}

// ValidateResponse reports validation findings without writing anything.
type ValidateResponse struct {
	Valid  bool                     `json:"valid"`
	Errors int                      `json:"errors"`
	Issues []models.ValidationIssue `json:"issues"`
}

// Validate handles POST /documents/validate
func (h *DocumentHandler) Validate(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return BadRequest("failed to read request body")
	}

	var req ValidateRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Documents == nil {
		// Treat the body as a single document.
		req.Documents = []json.RawMessage{body}
	}
	if len(req.Documents) == 0 {
		return BadRequest("no documents supplied")
	}

	raws := make([][]byte, len(req.Documents))
	for i, doc := range req.Documents {
		raws[i] = doc
	}

	issues, err := h.validator.Validate(ctx, tenantID, raws)
	if err != nil {
		return err
	}

	errCount := 0
	for _, issue := range issues {
		if issue.Severity == models.SeverityError {
			errCount++
		}
	}
	if issues == nil {
		issues = models.Issues{}
	}

	return SuccessResponse(c, &ValidateResponse{
		Valid:  errCount == 0,
		Errors: errCount,
		Issues: issues,
	})
}
