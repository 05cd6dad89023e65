package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

// Repository persists provider registrations and their per-document crawl
// state.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create registers a provider for a tenant.
func (r *Repository) Create(ctx context.Context, provider *models.Provider) (*models.Provider, error) {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.Create")
	defer span.End()

	if provider.ID == "" {
		provider.ID = uuid.NewString()
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("providers")
	ib.Cols("id", "tenant_id", "name", "base_url", "well_known_path", "enabled")
	ib.Values(provider.ID, provider.TenantID, provider.Name, provider.BaseURL, provider.WellKnownPath, provider.Enabled)

	query, args := ib.Build()
	query += " RETURNING *"

	var created models.Provider
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": provider.TenantID,
			"name":      provider.Name,
		}).Error("failed to create provider")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create provider")
	}

	return &created, nil
}

// Get fetches one provider by id.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Provider, error) {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("providers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var provider models.Provider
	err := r.db.GetContext(ctx, &provider, query, args...)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "provider %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id":   tenantID,
			"provider_id": id,
		}).Error("failed to get provider")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get provider")
	}

	return &provider, nil
}

// List returns every registered provider for a tenant.
func (r *Repository) List(ctx context.Context, tenantID string) (*models.ProviderListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("providers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("name").Asc()

	query, args := sb.Build()

	providers := []models.Provider{}
	if err := r.db.SelectContext(ctx, &providers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to list providers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list providers")
	}

	return &models.ProviderListResponse{
		Items:      providers,
		TotalCount: len(providers),
	}, nil
}

// ListEnabled returns every enabled provider across all tenants, for the
// crawl scheduler.
func (r *Repository) ListEnabled(ctx context.Context) ([]models.Provider, error) {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.ListEnabled")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("providers")
	sb.Where(
		sb.Equal("enabled", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("last_crawl_at").Asc()

	query, args := sb.Build()

	var providers []models.Provider
	if err := r.db.SelectContext(ctx, &providers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list enabled providers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list enabled providers")
	}

	return providers, nil
}

// Update applies a partial update to a provider registration.
func (r *Repository) Update(ctx context.Context, tenantID, id string, req *models.UpdateProviderRequest) (*models.Provider, error) {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("providers")

	assignments := []string{"updated_at = NOW()"}
	if req.Name != nil {
		assignments = append(assignments, ub.Assign("name", *req.Name))
	}
	if req.BaseURL != nil {
		assignments = append(assignments, ub.Assign("base_url", *req.BaseURL))
	}
	if req.WellKnownPath != nil {
		assignments = append(assignments, ub.Assign("well_known_path", *req.WellKnownPath))
	}
	if req.Enabled != nil {
		assignments = append(assignments, ub.Assign("enabled", *req.Enabled))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	query += " RETURNING *"

	var updated models.Provider
	err := r.db.GetContext(ctx, &updated, query, args...)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "provider %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id":   tenantID,
			"provider_id": id,
		}).Error("failed to update provider")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update provider")
	}

	return &updated, nil
}

// Delete deregisters a provider. The row is soft deleted; its crawl state is
// dropped outright since conditional fetch headers are useless once the
// registration is gone.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.Delete")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("providers")
	ub.Set(
		"deleted_at = NOW()",
		"updated_at = NOW()",
		ub.Assign("enabled", false),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id":   tenantID,
			"provider_id": id,
		}).Error("failed to delete provider")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete provider")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "provider %s not found", id)
	}

	deleteDocs := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	deleteDocs.DeleteFrom("crawl_documents")
	deleteDocs.Where(deleteDocs.Equal("provider_id", id))

	docsQuery, docsArgs := deleteDocs.Build()
	if _, err := r.db.ExecContext(ctx, docsQuery, docsArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("provider_id", id).Error("failed to drop crawl documents")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to drop crawl documents")
	}

	return nil
}

// RecordCrawl updates the provider's crawl bookkeeping after an attempt.
// Successful crawls reset the failure count and clear staleness; failures
// increment it.
func (r *Repository) RecordCrawl(ctx context.Context, providerID string, at time.Time, succeeded bool) (*models.Provider, error) {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.RecordCrawl")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("providers")
	if succeeded {
		ub.Set(
			ub.Assign("last_crawl_at", at),
			ub.Assign("last_success_at", at),
			ub.Assign("failure_count", 0),
			ub.Assign("stale", false),
			"updated_at = NOW()",
		)
	} else {
		ub.Set(
			ub.Assign("last_crawl_at", at),
			"failure_count = failure_count + 1",
			"updated_at = NOW()",
		)
	}
	ub.Where(
		ub.Equal("id", providerID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	query += " RETURNING *"

	var provider models.Provider
	if err := r.db.GetContext(ctx, &provider, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("provider_id", providerID).Error("failed to record crawl")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record crawl")
	}

	return &provider, nil
}

// MarkStale flags a provider whose crawls keep failing.
func (r *Repository) MarkStale(ctx context.Context, providerID string) error {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.MarkStale")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("providers")
	ub.Set(
		ub.Assign("stale", true),
		"updated_at = NOW()",
	)
	ub.Where(
		ub.Equal("id", providerID),
		ub.Equal("stale", false),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("provider_id", providerID).Error("failed to mark provider stale")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark provider stale")
	}
	return nil
}

// GetCrawlDocuments returns the conditional fetch state for every document
// URL seen on previous crawls of the provider.
func (r *Repository) GetCrawlDocuments(ctx context.Context, providerID string) (map[string]models.CrawlDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.GetCrawlDocuments")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("crawl_documents")
	sb.Where(sb.Equal("provider_id", providerID))

	query, args := sb.Build()

	var docs []models.CrawlDocument
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("provider_id", providerID).Error("failed to get crawl documents")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get crawl documents")
	}

	byURL := make(map[string]models.CrawlDocument, len(docs))
	for _, doc := range docs {
		byURL[doc.URL] = doc
	}
	return byURL, nil
}

// UpsertCrawlDocument records the ETag and lastUpdate observed for a document
// URL so the next crawl can fetch conditionally.
func (r *Repository) UpsertCrawlDocument(ctx context.Context, doc *models.CrawlDocument) error {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.UpsertCrawlDocument")
	defer span.End()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	query := `
		INSERT INTO crawl_documents (id, provider_id, url, etag, last_update, last_fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_id, url)
		DO UPDATE SET
			etag = EXCLUDED.etag,
			last_update = EXCLUDED.last_update,
			last_fetched_at = EXCLUDED.last_fetched_at,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID,
		doc.ProviderID,
		doc.URL,
		doc.ETag,
		doc.LastUpdate,
		doc.LastFetchedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"provider_id": doc.ProviderID,
			"url":         doc.URL,
		}).Error("failed to upsert crawl document")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert crawl document")
	}
	return nil
}

// PruneCrawlDocuments drops fetch state for URLs the provider's configuration
// no longer lists.
func (r *Repository) PruneCrawlDocuments(ctx context.Context, providerID string, keep []string) error {
	ctx, span := tracing.StartSpan(ctx, "provider.Repository.PruneCrawlDocuments")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("crawl_documents")
	db.Where(db.Equal("provider_id", providerID))
	if len(keep) > 0 {
		urls := make([]interface{}, len(keep))
		for i, u := range keep {
			urls[i] = u
		}
		db.Where(db.NotIn("url", urls...))
	}

	query, args := db.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("provider_id", providerID).Error("failed to prune crawl documents")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to prune crawl documents")
	}
	return nil
}
