package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValueRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyValueRepository(db)
	ctx := context.Background()

	t.Run("missing key reads as empty", func(t *testing.T) {
		value, err := repo.Get(ctx, KeyDeviceID)
		require.NoError(t, err)
		assert.Empty(t, value)
	})

	t.Run("set then overwrite", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, KeyLastSyncedAt, "2024-01-01T00:00:00Z"))
		require.NoError(t, repo.Set(ctx, KeyLastSyncedAt, "2024-02-01T00:00:00Z"))

		value, err := repo.Get(ctx, KeyLastSyncedAt)
		require.NoError(t, err)
		assert.Equal(t, "2024-02-01T00:00:00Z", value)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, KeyDeviceID, "device-1"))
		require.NoError(t, repo.Remove(ctx, KeyDeviceID))

		value, err := repo.Get(ctx, KeyDeviceID)
		require.NoError(t, err)
		assert.Empty(t, value)

		// removing again is fine
		assert.NoError(t, repo.Remove(ctx, KeyDeviceID))
	})
}
