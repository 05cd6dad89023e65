package tombstone

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestPlan_SuppressAndReinstate(t *testing.T) {
	p := NewProcessor(noopLogger())
	removal := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	doc := &models.Document{
		APIResources: []models.APIResource{{
			ResourceEntity: models.ResourceEntity{
				BaseEntity: models.BaseEntity{OrdID: "acme.shop:apiResource:Returns:v1"},
			},
		}},
		Tombstones: []models.Tombstone{
			{OrdID: "acme.shop:apiResource:Orders:v1", RemovalDate: removal},
		},
	}

	active := map[string]bool{"acme.shop:apiResource:Returns:v1": true}

	plan := p.Plan([]*models.Document{doc}, active)
	require.Len(t, plan.Suppress, 1)
	assert.Equal(t, "acme.shop:apiResource:Orders:v1", plan.Suppress[0].OrdID)
	// Redescribed entity with a stored tombstone is reinstated.
	assert.Equal(t, []string{"acme.shop:apiResource:Returns:v1"}, plan.Reinstate)
}

func TestPlan_TombstoneWinsWithinOneBatch(t *testing.T) {
	p := NewProcessor(noopLogger())

	doc := &models.Document{
		APIResources: []models.APIResource{{
			ResourceEntity: models.ResourceEntity{
				BaseEntity: models.BaseEntity{OrdID: "acme.shop:apiResource:Orders:v1"},
			},
		}},
		Tombstones: []models.Tombstone{
			{OrdID: "acme.shop:apiResource:Orders:v1", RemovalDate: time.Now()},
		},
	}

	active := map[string]bool{"acme.shop:apiResource:Orders:v1": true}

	plan := p.Plan([]*models.Document{doc}, active)
	assert.Len(t, plan.Suppress, 1)
	assert.Empty(t, plan.Reinstate)
}

func TestPurgeEligible(t *testing.T) {
	removal := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	record := &models.TombstoneRecord{
		RemovalDate: removal,
		PurgeAfter:  PurgeAfter(removal),
	}

	assert.Equal(t, removal.Add(31*24*time.Hour), record.PurgeAfter)
	assert.False(t, PurgeEligible(record, removal.Add(30*24*time.Hour)))
	assert.True(t, PurgeEligible(record, removal.Add(32*24*time.Hour)))

	cancelled := time.Now()
	record.CancelledAt = &cancelled
	assert.False(t, PurgeEligible(record, removal.Add(400*24*time.Hour)))
}
