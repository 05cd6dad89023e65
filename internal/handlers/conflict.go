package handlers

import (
	"github.com/labstack/echo/v4"

	conflictrepo "github.com/Ramsey-B/fern/internal/repositories/conflict"
)

// ConflictHandler exposes recorded merge conflicts for operator review
type ConflictHandler struct {
	repo *conflictrepo.Repository
}

// NewConflictHandler creates a new conflict handler
func NewConflictHandler(repo *conflictrepo.Repository) *ConflictHandler {
	return &ConflictHandler{repo: repo}
}

// RegisterRoutes registers conflict routes
func (h *ConflictHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/conflicts", h.List)
}

// List handles GET /conflicts?ord_id=...
func (h *ConflictHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	records, err := h.repo.List(ctx, tenantID, c.QueryParam("ord_id"))
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]any{
		"items":       records,
		"total_count": len(records),
	})
}
