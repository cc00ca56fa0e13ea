package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showsync/internal/models"
)

func TestMemorySyncPointRepository(t *testing.T) {
	repo := NewMemorySyncPointRepository()
	ctx := context.Background()

	points, err := repo.GetSyncPoints(ctx)
	require.NoError(t, err)
	assert.Nil(t, points)

	watchedAt := time.Now()
	require.NoError(t, repo.SetSyncPoints(ctx, &models.SyncPoints{EpisodeWatchedAt: watchedAt}))

	got, err := repo.GetSyncPoints(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.EpisodeWatchedAt.Equal(watchedAt))

	// The stored value is a copy; mutating the result must not leak back.
	got.EpisodeWatchedAt = got.EpisodeWatchedAt.Add(time.Hour)
	again, err := repo.GetSyncPoints(ctx)
	require.NoError(t, err)
	assert.True(t, again.EpisodeWatchedAt.Equal(watchedAt))

	require.NoError(t, repo.ClearSyncPoints(ctx))
	points, err = repo.GetSyncPoints(ctx)
	require.NoError(t, err)
	assert.Nil(t, points)
}
