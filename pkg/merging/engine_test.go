package merging

import (
	"context"
	"encoding/json"
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

func graphEntity(t *testing.T, kind string, lastUpdate time.Time, data map[string]any) *models.GraphEntity {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	providers, err := json.Marshal([]string{"provider-a"})
	require.NoError(t, err)

	return &models.GraphEntity{
		OrdID:      "acme.shop:apiResource:Orders:v1",
		Kind:       kind,
		Data:       raw,
		Providers:  providers,
		LastUpdate: &lastUpdate,
	}
}

func TestMerge_NewEntity(t *testing.T) {
	engine := NewEngine(noopLogger())

	outcome, err := engine.Merge(context.Background(), nil, &Contribution{
		OrdID: "acme.shop:apiResource:Orders:v1",
		Kind:  "apiResource",
		Data:  map[string]any{"title": "Orders"},
	})
	require.NoError(t, err)
	assert.True(t, outcome.IsNew)
	assert.True(t, outcome.Changed)
	assert.Empty(t, outcome.Conflicts)
}

func TestMerge_ScalarLastWriteWins(t *testing.T) {
	engine := NewEngine(noopLogger())
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	existing := graphEntity(t, "apiResource", older, map[string]any{"title": "Old Title"})

	outcome, err := engine.Merge(context.Background(), existing, &Contribution{
		OrdID:      existing.OrdID,
		Kind:       "apiResource",
		ProviderID: "provider-b",
		LastUpdate: newer,
		Data:       map[string]any{"title": "New Title"},
	})
	require.NoError(t, err)
	assert.Equal(t, "New Title", outcome.Data["title"])
	assert.True(t, outcome.Changed)
	require.Len(t, outcome.Conflicts, 1)
	assert.Equal(t, "last_write_wins", outcome.Conflicts[0].Resolution)
	assert.False(t, outcome.Conflicts[0].Fatal)
}

func TestMerge_ScalarOlderWriterLoses(t *testing.T) {
	engine := NewEngine(noopLogger())
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	existing := graphEntity(t, "apiResource", newer, map[string]any{"title": "Current"})

	outcome, err := engine.Merge(context.Background(), existing, &Contribution{
		OrdID:      existing.OrdID,
		Kind:       "apiResource",
		ProviderID: "provider-b",
		LastUpdate: newer.Add(-48 * time.Hour),
		Data:       map[string]any{"title": "Stale"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Current", outcome.Data["title"])
	assert.False(t, outcome.Changed)
}

func TestMerge_KindConflictIsFatal(t *testing.T) {
	engine := NewEngine(noopLogger())
	existing := graphEntity(t, "apiResource", time.Now(), map[string]any{"title": "Orders"})

	outcome, err := engine.Merge(context.Background(), existing, &Contribution{
		OrdID:      existing.OrdID,
		Kind:       "eventResource",
		ProviderID: "provider-b",
		Data:       map[string]any{"title": "Orders"},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Fatal)
	assert.False(t, outcome.Changed)
	// Prior state retained.
	assert.Equal(t, "Orders", outcome.Data["title"])
	require.Len(t, outcome.Conflicts, 1)
	assert.Equal(t, "kind", outcome.Conflicts[0].Field)
}

func TestMerge_SetUnion(t *testing.T) {
	engine := NewEngine(noopLogger())
	existing := graphEntity(t, "apiResource", time.Now(), map[string]any{
		"tags": []any{"commerce", "orders"},
	})

	outcome, err := engine.Merge(context.Background(), existing, &Contribution{
		OrdID:      existing.OrdID,
		Kind:       "apiResource",
		ProviderID: "provider-b",
		Data:       map[string]any{"tags": []any{"orders", "sales"}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"commerce", "orders", "sales"}, outcome.Data["tags"])
	assert.Empty(t, outcome.Conflicts)
}

func TestMerge_LabelUnion(t *testing.T) {
	engine := NewEngine(noopLogger())
	existing := graphEntity(t, "apiResource", time.Now(), map[string]any{
		"labels": map[string]any{"k": []any{"x"}},
	})

	outcome, err := engine.Merge(context.Background(), existing, &Contribution{
		OrdID:      existing.OrdID,
		Kind:       "apiResource",
		ProviderID: "provider-b",
		Data:       map[string]any{"labels": map[string]any{"k": []any{"y", "x"}}},
	})
	require.NoError(t, err)
	labels, ok := outcome.Data["labels"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"x", "y"}, labels["k"])
}

func TestMerge_Idempotent(t *testing.T) {
	engine := NewEngine(noopLogger())
	lastUpdate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	contribution := &Contribution{
		OrdID:      "acme.shop:apiResource:Orders:v1",
		Kind:       "apiResource",
		ProviderID: "provider-b",
		LastUpdate: lastUpdate,
		Data: map[string]any{
			"title":  "Orders",
			"tags":   []any{"a", "b"},
			"labels": map[string]any{"k": []any{"v"}},
		},
	}

	existing := graphEntity(t, "apiResource", lastUpdate, map[string]any{
		"title":  "Orders",
		"tags":   []any{"a", "b"},
		"labels": map[string]any{"k": []any{"v"}},
	})

	first, err := engine.Merge(context.Background(), existing, contribution)
	require.NoError(t, err)
	assert.False(t, first.Changed)
	assert.Empty(t, first.Conflicts)

	// Remerging the merged state yields the same state.
	raw, err := json.Marshal(first.Data)
	require.NoError(t, err)
	existing.Data = raw

	second, err := engine.Merge(context.Background(), existing, contribution)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Data, second.Data)
}

func TestMergeProviders(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, MergeProviders([]string{"a"}, "b"))
	assert.Equal(t, []string{"a", "b"}, MergeProviders([]string{"a", "b"}, "b"))
	assert.Equal(t, []string{"a"}, MergeProviders(nil, "a"))
}
