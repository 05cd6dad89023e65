package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/graphentity"
	"github.com/Ramsey-B/fern/pkg/ordid"
)

// EntityHandler handles the merged entity query facade
type EntityHandler struct {
	repo *graphentity.Repository
}

// NewEntityHandler creates a new entity handler
func NewEntityHandler(repo *graphentity.Repository) *EntityHandler {
	return &EntityHandler{repo: repo}
}

// RegisterRoutes registers entity routes
func (h *EntityHandler) RegisterRoutes(g *echo.Group) {
	entities := g.Group("/entities")
	entities.GET("", h.List)
	entities.GET("/:ordId", h.GetByOrdID)
}

// List handles GET /entities. Suppressed and stale entities are hidden
// unless include_suppressed / include_stale are set.
func (h *EntityHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	includeSuppressed, err := QueryBool(c, "include_suppressed")
	if err != nil {
		return err
	}
	includeStale, err := QueryBool(c, "include_stale")
	if err != nil {
		return err
	}
	page, err := QueryInt(c, "page", 1)
	if err != nil {
		return err
	}
	pageSize, err := QueryInt(c, "page_size", 50)
	if err != nil {
		return err
	}

	filter := graphentity.ListFilter{
		Kind:              c.QueryParam("kind"),
		PackageOrdID:      c.QueryParam("package"),
		ProviderID:        c.QueryParam("provider_id"),
		Visibility:        c.QueryParam("visibility"),
		Tag:               c.QueryParam("tag"),
		PolicyLevel:       c.QueryParam("policy_level"),
		IncludeSuppressed: includeSuppressed,
		IncludeStale:      includeStale,
		Page:              page,
		PageSize:          pageSize,
	}

	result, err := h.repo.List(ctx, tenantID, filter)
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}

// GetByOrdID handles GET /entities/:ordId
func (h *EntityHandler) GetByOrdID(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	id := c.Param("ordId")
	if !ordid.Valid(id) {
		return BadRequest("invalid ord id")
	}

	entity, err := h.repo.GetByOrdID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if entity == nil {
		return NotFound("entity not found")
	}

	return SuccessResponse(c, entity)
}
