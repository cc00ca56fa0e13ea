package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowOptimisticWrites(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	show := createTestShow(t, db, 100)

	require.NoError(t, db.SetShowRating(ctx, show.ID, 8))
	require.NoError(t, db.SetShowWatchlist(ctx, show.ID, true))
	require.NoError(t, db.SetShowCollected(ctx, show.ID, true))

	got, err := db.GetShow(ctx, show.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.UserRating)
	assert.NotNil(t, got.RatedAt)
	assert.True(t, got.InWatchlist)
	assert.True(t, got.InCollection)
	assert.True(t, got.NeedsSync)

	require.NoError(t, db.MarkShowSynced(ctx, show.ID))
	got, err = db.GetShow(ctx, show.ID)
	require.NoError(t, err)
	assert.False(t, got.NeedsSync)
}

func TestUpdateShowCounts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	show := createTestShow(t, db, 100)
	e1 := createTestEpisode(t, db, show.ID, 201, 1, 1)
	createTestEpisode(t, db, show.ID, 202, 1, 2)
	require.NoError(t, db.AddEpisodeToHistory(ctx, e1.ID, time.Now()))

	require.NoError(t, db.UpdateShowCounts(ctx, show.ID))

	got, err := db.GetShow(ctx, show.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.WatchedCount)
	assert.Equal(t, 2, got.EpisodeCount)
	assert.True(t, got.HasEpisodeData())
}

func TestShowImagesCache(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	show := createTestShow(t, db, 100)

	require.NoError(t, db.UpdateShowImages(ctx, show.ID, "/p.jpg", "/b.jpg"))
	got, err := db.GetShow(ctx, show.ID)
	require.NoError(t, err)
	assert.Equal(t, "/p.jpg", got.PosterPath)
	assert.Equal(t, "/b.jpg", got.BackdropPath)
	assert.NotNil(t, got.ImagesUpdatedAt)

	require.NoError(t, db.ClearShowImages(ctx, show.ID))
	got, err = db.GetShow(ctx, show.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PosterPath)
	assert.Nil(t, got.ImagesUpdatedAt)
}

func TestGetWatchedShows(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	watched := createTestShow(t, db, 100)
	createTestShow(t, db, 101)
	episode := createTestEpisode(t, db, watched.ID, 201, 1, 1)
	require.NoError(t, db.AddEpisodeToHistory(ctx, episode.ID, time.Now()))
	require.NoError(t, db.UpdateShowCounts(ctx, watched.ID))

	shows, err := db.GetWatchedShows(ctx)
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, watched.ID, shows[0].ID)
}

func TestGetShowByTraktID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	show := createTestShow(t, db, 100)

	got, err := db.GetShowByTraktID(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, show.ID, got.ID)

	got, err = db.GetShowByTraktID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}
