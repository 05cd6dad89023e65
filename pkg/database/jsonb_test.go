package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB_Value(t *testing.T) {
	col := NewJSONB([]string{"provider-a", "provider-b"})

	value, err := col.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `["provider-a","provider-b"]`, string(value.([]byte)))
}

func TestJSONB_Scan(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		var col JSONB[[]string]
		require.NoError(t, col.Scan([]byte(`["a","b"]`)))
		assert.Equal(t, []string{"a", "b"}, col.GetValue())
	})

	t.Run("string", func(t *testing.T) {
		var col JSONB[map[string]any]
		require.NoError(t, col.Scan(`{"field":"tags"}`))
		assert.Equal(t, map[string]any{"field": "tags"}, col.GetValue())
	})

	t.Run("null resets to zero value", func(t *testing.T) {
		col := NewJSONB([]string{"stale"})
		require.NoError(t, col.Scan(nil))
		assert.Nil(t, col.GetValue())
	})

	t.Run("unsupported source type", func(t *testing.T) {
		var col JSONB[[]string]
		assert.Error(t, col.Scan(42))
	})
}
