package graphentity

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/huandu/go-sqlbuilder"
)

// Repository persists the merged entity graph.
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

// ListFilter narrows the entity query facade. Visibility, Tag, and
// PolicyLevel filter on the effective (post-inheritance) view.
type ListFilter struct {
	Kind              string
	PackageOrdID      string
	ProviderID        string
	Visibility        string
	Tag               string
	PolicyLevel       string
	IncludeSuppressed bool
	IncludeStale      bool
	Page              int
	PageSize          int
}

// UpsertResult is a graph entity plus whether the upsert inserted a new row.
type UpsertResult struct {
	models.GraphEntity
	Inserted bool `db:"inserted"`
}

// LockEntity takes a transaction-scoped advisory lock on one entity key.
// Concurrent provider batches merging the same ORD ID serialize here, so a
// read-merge-write never starts from a snapshot another writer is replacing.
// The lock releases when the surrounding transaction commits or rolls back.
func (r *Repository) LockEntity(ctx context.Context, tenantID, ordID string) error {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.LockEntity")
	defer span.End()

	_, err := r.db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", tenantID+"/"+ordID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to lock graph entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock graph entity")
	}

	return nil
}

// GetByOrdID fetches one merged entity by its ORD ID. Returns nil when the
// tenant has no row for the id.
func (r *Repository) GetByOrdID(ctx context.Context, tenantID, ordID string) (*models.GraphEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.GetByOrdID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("graph_entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("ord_id", ordID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var entity models.GraphEntity
	err := r.db.GetContext(ctx, &entity, query, args...)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to get graph entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get graph entity")
	}

	return &entity, nil
}

// List returns a page of merged entities. Suppressed and stale rows are
// excluded unless the filter asks for them.
func (r *Repository) List(ctx context.Context, tenantID string, filter ListFilter) (*models.EntityListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.List")
	defer span.End()

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("graph_entities")
	r.applyListFilter(sb, tenantID, filter)
	sb.OrderBy("ord_id").Asc()
	sb.Limit(pageSize).Offset((page - 1) * pageSize)

	query, args := sb.Build()

	entities := []models.GraphEntity{}
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to list graph entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list graph entities")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)").From("graph_entities")
	r.applyListFilter(cb, tenantID, filter)

	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to count graph entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count graph entities")
	}

	return &models.EntityListResponse{
		Items:      entities,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func (r *Repository) applyListFilter(sb *sqlbuilder.SelectBuilder, tenantID string, filter ListFilter) {
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	if !filter.IncludeSuppressed {
		sb.Where(sb.IsNull("suppressed_at"))
	}
	if !filter.IncludeStale {
		sb.Where(sb.Equal("stale", false))
	}
	if filter.Kind != "" {
		sb.Where(sb.Equal("kind", filter.Kind))
	}
	if filter.PackageOrdID != "" {
		sb.Where(sb.Equal("package_ord_id", filter.PackageOrdID))
	}
	if filter.ProviderID != "" {
		sb.Where("providers @> " + sb.Var(jsonStringArray(filter.ProviderID)))
	}
	if filter.Visibility != "" {
		sb.Where("effective->>'visibility' = " + sb.Var(filter.Visibility))
	}
	if filter.Tag != "" {
		sb.Where("effective->'tags' @> " + sb.Var(jsonStringArray(filter.Tag)))
	}
	if filter.PolicyLevel != "" {
		sb.Where("effective->>'policyLevel' = " + sb.Var(filter.PolicyLevel))
	}
}

// KnownOrdIDs reports which of the given ORD IDs already exist in the merged
// graph. Suppressed rows still count as known so refetched documents that
// reference a tombstoned entity do not report it as dangling.
func (r *Repository) KnownOrdIDs(ctx context.Context, tenantID string, ordIDs []string) (map[string]bool, error) {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.KnownOrdIDs")
	defer span.End()

	known := map[string]bool{}
	if len(ordIDs) == 0 {
		return known, nil
	}

	ids := make([]interface{}, len(ordIDs))
	for i, id := range ordIDs {
		ids[i] = id
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("ord_id").From("graph_entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("ord_id", ids...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to look up known ord ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up known ord ids")
	}

	for _, id := range found {
		known[id] = true
	}
	return known, nil
}

// Upsert writes the merged entity, inserting on first sight of the ORD ID and
// replacing the merged state on conflict. Reports whether a new row was
// created so callers can distinguish created from merged events.
func (r *Repository) Upsert(ctx context.Context, entity *models.GraphEntity) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.Upsert")
	defer span.End()

	query := `
		WITH upsert AS (
			INSERT INTO graph_entities (
				tenant_id, ord_id, kind, package_ord_id, version, release_status,
				data, effective, providers, unresolved, last_update,
				conflicted, stale, suppressed_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (tenant_id, ord_id)
			DO UPDATE SET
				kind = EXCLUDED.kind,
				package_ord_id = EXCLUDED.package_ord_id,
				version = EXCLUDED.version,
				release_status = EXCLUDED.release_status,
				data = EXCLUDED.data,
				effective = EXCLUDED.effective,
				providers = EXCLUDED.providers,
				unresolved = EXCLUDED.unresolved,
				last_update = EXCLUDED.last_update,
				conflicted = EXCLUDED.conflicted,
				stale = EXCLUDED.stale,
				suppressed_at = EXCLUDED.suppressed_at,
				deleted_at = NULL,
				updated_at = NOW()
			RETURNING *, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result UpsertResult
	err := r.db.GetContext(ctx, &result, query,
		entity.TenantID,
		entity.OrdID,
		entity.Kind,
		entity.PackageOrdID,
		entity.Version,
		entity.ReleaseStatus,
		rawOrNull(entity.Data),
		rawOrNull(entity.Effective),
		rawOrNull(entity.Providers),
		rawOrNull(entity.Unresolved),
		entity.LastUpdate,
		entity.Conflicted,
		entity.Stale,
		entity.SuppressedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": entity.TenantID,
			"ord_id":    entity.OrdID,
		}).Error("failed to upsert graph entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert graph entity")
	}

	return &result, nil
}

// Suppress hides the entity from default query results without discarding its
// merged state.
func (r *Repository) Suppress(ctx context.Context, tenantID, ordID string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.Suppress")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("graph_entities")
	ub.Set(
		ub.Assign("suppressed_at", at),
		"updated_at = NOW()",
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("ord_id", ordID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to suppress graph entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to suppress graph entity")
	}
	return nil
}

// Reinstate clears a suppression after the ORD ID is republished.
func (r *Repository) Reinstate(ctx context.Context, tenantID, ordID string) error {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.Reinstate")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("graph_entities")
	ub.Set(
		"suppressed_at = NULL",
		"updated_at = NOW()",
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("ord_id", ordID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to reinstate graph entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reinstate graph entity")
	}
	return nil
}

// SetStaleByProvider flags or clears staleness on every entity the provider
// contributed to.
func (r *Repository) SetStaleByProvider(ctx context.Context, tenantID, providerID string, stale bool) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.SetStaleByProvider")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("graph_entities")
	ub.Set(
		ub.Assign("stale", stale),
		"updated_at = NOW()",
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		"providers @> "+ub.Var(jsonStringArray(providerID)),
		ub.NotEqual("stale", stale),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id":   tenantID,
			"provider_id": providerID,
		}).Error("failed to update staleness")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update staleness")
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}

// ListOrdIDsByProvider returns the ORD IDs the provider has contributed to,
// excluding suppressed rows, for removed-without-tombstone detection.
func (r *Repository) ListOrdIDsByProvider(ctx context.Context, tenantID, providerID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.ListOrdIDsByProvider")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("ord_id").From("graph_entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		"providers @> "+sb.Var(jsonStringArray(providerID)),
		sb.IsNull("suppressed_at"),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id":   tenantID,
			"provider_id": providerID,
		}).Error("failed to list ord ids by provider")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list ord ids by provider")
	}

	return ids, nil
}

// ListOrdIDsByPrefix returns the ORD IDs sharing an ID prefix, suppressed
// rows included. Used to enforce one vendor per namespace.
func (r *Repository) ListOrdIDsByPrefix(ctx context.Context, tenantID, prefix string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.ListOrdIDsByPrefix")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("ord_id").From("graph_entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Like("ord_id", prefix+"%"),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"prefix":    prefix,
		}).Error("failed to list ord ids by prefix")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list ord ids by prefix")
	}

	return ids, nil
}

// FindByUnresolvedTarget returns entities holding a dangling reference to any
// of the given ORD IDs, so a batch that supplies the targets can clear them.
func (r *Repository) FindByUnresolvedTarget(ctx context.Context, tenantID string, targets []string) ([]models.GraphEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.FindByUnresolvedTarget")
	defer span.End()

	if len(targets) == 0 {
		return nil, nil
	}

	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode reference targets")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("graph_entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNotNull("unresolved"),
		"EXISTS (SELECT 1 FROM jsonb_array_elements(unresolved) AS ref WHERE ref->>'target' = ANY (SELECT jsonb_array_elements_text("+sb.Var(string(targetsJSON))+"::jsonb)))",
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var entities []models.GraphEntity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to find entities by unresolved target")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find entities by unresolved target")
	}

	return entities, nil
}

// UpdateUnresolved replaces the dangling reference list on an entity.
func (r *Repository) UpdateUnresolved(ctx context.Context, tenantID, ordID string, refs []models.DanglingReference) error {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.UpdateUnresolved")
	defer span.End()

	var value interface{}
	if len(refs) > 0 {
		encoded, err := json.Marshal(refs)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode dangling references")
		}
		value = string(encoded)
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("graph_entities")
	ub.Set(
		ub.Assign("unresolved", value),
		"updated_at = NOW()",
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("ord_id", ordID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to update dangling references")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update dangling references")
	}
	return nil
}

// Purge physically deletes a suppressed entity once its tombstone's grace
// window has elapsed.
func (r *Repository) Purge(ctx context.Context, tenantID, ordID string) error {
	ctx, span := tracing.StartSpan(ctx, "graphentity.Repository.Purge")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("graph_entities")
	db.Where(
		db.Equal("tenant_id", tenantID),
		db.Equal("ord_id", ordID),
		db.IsNotNull("suppressed_at"),
	)

	query, args := db.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to purge graph entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to purge graph entity")
	}
	return nil
}

func rawOrNull(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func jsonStringArray(values ...string) string {
	encoded, _ := json.Marshal(values)
	return string(encoded)
}
