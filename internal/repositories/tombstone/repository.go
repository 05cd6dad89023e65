package tombstone

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

// Repository persists tombstone records through their grace window.
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

// Upsert records a tombstone for an ORD ID. A republished tombstone for the
// same id refreshes the removal date and clears any earlier cancellation.
func (r *Repository) Upsert(ctx context.Context, record *models.TombstoneRecord) (*models.TombstoneRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "tombstone.Repository.Upsert")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	query := `
		INSERT INTO tombstones (id, tenant_id, ord_id, provider_id, removal_date, purge_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, ord_id)
		DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			removal_date = EXCLUDED.removal_date,
			purge_after = EXCLUDED.purge_after,
			cancelled_at = NULL
		RETURNING *
	`

	var stored models.TombstoneRecord
	err := r.db.GetContext(ctx, &stored, query,
		record.ID,
		record.TenantID,
		record.OrdID,
		record.ProviderID,
		record.RemovalDate,
		record.PurgeAfter,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": record.TenantID,
			"ord_id":    record.OrdID,
		}).Error("failed to upsert tombstone")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert tombstone")
	}

	return &stored, nil
}

// ActiveOrdIDs returns every ORD ID with a live tombstone for the tenant,
// keyed for the batch planner.
func (r *Repository) ActiveOrdIDs(ctx context.Context, tenantID string) (map[string]bool, error) {
	ctx, span := tracing.StartSpan(ctx, "tombstone.Repository.ActiveOrdIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("ord_id").From("tombstones")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("cancelled_at"),
	)

	query, args := sb.Build()

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to list active tombstones")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list active tombstones")
	}

	active := make(map[string]bool, len(ids))
	for _, id := range ids {
		active[id] = true
	}
	return active, nil
}

// Cancel voids a tombstone after its ORD ID is republished. Cancelled
// tombstones are never purge eligible.
func (r *Repository) Cancel(ctx context.Context, tenantID, ordID string) error {
	ctx, span := tracing.StartSpan(ctx, "tombstone.Repository.Cancel")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("tombstones")
	ub.Set("cancelled_at = NOW()")
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("ord_id", ordID),
		ub.IsNull("cancelled_at"),
	)

	query, args := ub.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to cancel tombstone")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to cancel tombstone")
	}
	return nil
}

// List returns the tenant's tombstones, newest removal first.
func (r *Repository) List(ctx context.Context, tenantID string, includeCancelled bool) ([]models.TombstoneRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "tombstone.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("tombstones")
	sb.Where(sb.Equal("tenant_id", tenantID))
	if !includeCancelled {
		sb.Where(sb.IsNull("cancelled_at"))
	}
	sb.OrderBy("removal_date").Desc()

	query, args := sb.Build()

	records := []models.TombstoneRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to list tombstones")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tombstones")
	}

	return records, nil
}

// ListPurgeEligible returns live tombstones whose grace window elapsed before
// the given time.
func (r *Repository) ListPurgeEligible(ctx context.Context, now time.Time, limit int) ([]models.TombstoneRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "tombstone.Repository.ListPurgeEligible")
	defer span.End()

	if limit < 1 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("tombstones")
	sb.Where(
		sb.LessThan("purge_after", now),
		sb.IsNull("cancelled_at"),
	)
	sb.OrderBy("purge_after").Asc()
	sb.Limit(limit)

	query, args := sb.Build()

	var records []models.TombstoneRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list purge eligible tombstones")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list purge eligible tombstones")
	}

	return records, nil
}

// Delete removes a tombstone after its entity has been purged.
func (r *Repository) Delete(ctx context.Context, tenantID, ordID string) error {
	ctx, span := tracing.StartSpan(ctx, "tombstone.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("tombstones")
	db.Where(
		db.Equal("tenant_id", tenantID),
		db.Equal("ord_id", ordID),
	)

	query, args := db.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to delete tombstone")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete tombstone")
	}
	return nil
}
