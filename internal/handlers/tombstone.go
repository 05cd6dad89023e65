package handlers

import (
	"github.com/labstack/echo/v4"

	tombstonerepo "github.com/Ramsey-B/fern/internal/repositories/tombstone"
)

// TombstoneHandler exposes stored removal markers
type TombstoneHandler struct {
	repo *tombstonerepo.Repository
}

// NewTombstoneHandler creates a new tombstone handler
func NewTombstoneHandler(repo *tombstonerepo.Repository) *TombstoneHandler {
	return &TombstoneHandler{repo: repo}
}

// RegisterRoutes registers tombstone routes
func (h *TombstoneHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/tombstones", h.List)
}

// List handles GET /tombstones?include_cancelled=...
func (h *TombstoneHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	includeCancelled, err := QueryBool(c, "include_cancelled")
	if err != nil {
		return err
	}

	records, err := h.repo.List(ctx, tenantID, includeCancelled)
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]any{
		"items":       records,
		"total_count": len(records),
	})
}
