package conflict

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

// Repository records merge conflicts for operator review.
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

// Record persists the conflicts a merge produced. Earlier records for the
// same ORD ID and field are replaced so the table reflects the latest
// disagreement, not its history.
func (r *Repository) Record(ctx context.Context, tenantID string, conflicts []models.MergeConflict) error {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Record")
	defer span.End()

	for _, c := range conflicts {
		query := `
			INSERT INTO merge_conflicts (id, tenant_id, ord_id, field, "values", providers, resolution)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tenant_id, ord_id, field)
			DO UPDATE SET
				"values" = EXCLUDED."values",
				providers = EXCLUDED.providers,
				resolution = EXCLUDED.resolution,
				created_at = NOW()
		`

		_, err := r.db.ExecContext(ctx, query,
			uuid.NewString(),
			tenantID,
			c.OrdID,
			c.Field,
			database.NewJSONB(c.Values),
			database.NewJSONB(c.Providers),
			c.Resolution,
		)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
				"tenant_id": tenantID,
				"ord_id":    c.OrdID,
				"field":     c.Field,
			}).Error("failed to record merge conflict")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record merge conflict")
		}
	}

	return nil
}

// List returns recorded conflicts for a tenant, optionally narrowed to one
// ORD ID.
func (r *Repository) List(ctx context.Context, tenantID, ordID string) ([]models.ConflictRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("merge_conflicts")
	sb.Where(sb.Equal("tenant_id", tenantID))
	if ordID != "" {
		sb.Where(sb.Equal("ord_id", ordID))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()

	records := []models.ConflictRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to list merge conflicts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge conflicts")
	}

	return records, nil
}

// ClearForOrdID drops recorded conflicts once a later merge agrees.
func (r *Repository) ClearForOrdID(ctx context.Context, tenantID, ordID string) error {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.ClearForOrdID")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("merge_conflicts")
	db.Where(
		db.Equal("tenant_id", tenantID),
		db.Equal("ord_id", ordID),
	)

	query, args := db.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"ord_id":    ordID,
		}).Error("failed to clear merge conflicts")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear merge conflicts")
	}
	return nil
}
