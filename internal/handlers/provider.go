package handlers

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/graphentity"
	providerrepo "github.com/Ramsey-B/fern/internal/repositories/provider"
	"github.com/Ramsey-B/fern/pkg/crawler"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ProviderHandler handles the provider admin API
type ProviderHandler struct {
	repo     *providerrepo.Repository
	entities *graphentity.Repository
	crawler  *crawler.Crawler
	validate *validator.Validate
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(repo *providerrepo.Repository, entities *graphentity.Repository, crawlerSvc *crawler.Crawler) *ProviderHandler {
	return &ProviderHandler{
		repo:     repo,
		entities: entities,
		crawler:  crawlerSvc,
		validate: validator.New(),
	}
}

// RegisterRoutes registers provider routes
func (h *ProviderHandler) RegisterRoutes(g *echo.Group) {
	providers := g.Group("/providers")
	providers.POST("", h.Create)
	providers.GET("", h.List)
	providers.GET("/:id", h.GetByID)
	providers.PUT("/:id", h.Update)
	providers.DELETE("/:id", h.Delete)
	providers.POST("/:id/crawl", h.TriggerCrawl)
	providers.GET("/:id/documents", h.ListCrawlDocuments)
}

// Create handles POST /providers
func (h *ProviderHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req models.RegisterProviderRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return BadRequest(err.Error())
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	provider := &models.Provider{
		TenantID:      tenantID,
		Name:          req.Name,
		BaseURL:       req.BaseURL,
		WellKnownPath: req.WellKnownPath,
		Enabled:       enabled,
	}

	created, err := h.repo.Create(ctx, provider)
	if err != nil {
		return err
	}

	return CreatedResponse(c, created)
}

// List handles GET /providers
func (h *ProviderHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	providers, err := h.repo.List(ctx, tenantID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, providers)
}

// GetByID handles GET /providers/:id
func (h *ProviderHandler) GetByID(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	provider, err := h.repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return SuccessResponse(c, provider)
}

// Update handles PUT /providers/:id
func (h *ProviderHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req models.UpdateProviderRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return BadRequest(err.Error())
	}

	updated, err := h.repo.Update(ctx, tenantID, c.Param("id"), &req)
	if err != nil {
		return err
	}

	return SuccessResponse(c, updated)
}

// Delete handles DELETE /providers/:id. The provider's contributed
// entities are flagged stale rather than removed; they age out through
// the normal tombstone flow if nothing else claims them.
func (h *ProviderHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	providerID := c.Param("id")

	if err := h.repo.Delete(ctx, tenantID, providerID); err != nil {
		return err
	}

	if _, err := h.entities.SetStaleByProvider(ctx, tenantID, providerID, true); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// ListCrawlDocuments handles GET /providers/:id/documents. It exposes the
// per-document crawl state (URL, ETag, last fetch) recorded during crawls.
func (h *ProviderHandler) ListCrawlDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	provider, err := h.repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	known, err := h.repo.GetCrawlDocuments(ctx, provider.ID)
	if err != nil {
		return err
	}

	docs := make([]models.CrawlDocument, 0, len(known))
	for _, doc := range known {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })

	return SuccessResponse(c, map[string]any{
		"provider_id": provider.ID,
		"documents":   docs,
		"count":       len(docs),
	})
}

// TriggerCrawl handles POST /providers/:id/crawl. The crawl runs in the
// background; a crawl already running elsewhere is a no-op under the lock.
func (h *ProviderHandler) TriggerCrawl(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	provider, err := h.repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	if !provider.Enabled {
		return BadRequest("provider is disabled")
	}

	// The crawl outlives the request.
	go h.crawler.CrawlProvider(context.Background(), provider)

	return AcceptedResponse(c, map[string]string{
		"provider_id": provider.ID,
		"status":      "crawl_started",
	})
}
