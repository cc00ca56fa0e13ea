package jobqueue

import (
	"context"
	"testing"
	"time"

	"showsync/internal/database"
	"showsync/internal/models"
	"showsync/internal/repository"
	"showsync/internal/trakt"
)

func TestActivityPollerFirstCheckQueuesFullSync(t *testing.T) {
	db := newTestDB(t)
	manager, logger := newTestManager(t, db, RetryPolicy{})
	remote := &fakeRemote{activity: activityFixture(t, time.Now())}
	points := repository.NewMemorySyncPointRepository()
	poller := NewActivityPoller(remote, points, manager, nil, time.Minute, logger)

	ctx := context.Background()
	poller.check(ctx)

	kinds := pendingKinds(t, db)
	for _, kind := range []string{KindSyncWatched, KindSyncRatings, KindSyncWatchlist, KindSyncComments, KindSyncWatching} {
		if !kinds[kind] {
			t.Fatalf("expected %s queued on first check, got %v", kind, kinds)
		}
	}

	stored, err := points.GetSyncPoints(ctx)
	if err != nil {
		t.Fatalf("get sync points: %v", err)
	}
	if stored == nil {
		t.Fatalf("expected checkpoints stored after check")
	}
}

func TestActivityPollerSkipsUnchangedCategories(t *testing.T) {
	db := newTestDB(t)
	manager, logger := newTestManager(t, db, RetryPolicy{})
	watchedAt := time.Now().Add(-time.Hour)
	remote := &fakeRemote{activity: activityFixture(t, watchedAt)}
	points := repository.NewMemorySyncPointRepository()
	poller := NewActivityPoller(remote, points, manager, nil, time.Minute, logger)

	ctx := context.Background()
	if err := points.SetSyncPoints(ctx, &models.SyncPoints{EpisodeWatchedAt: watchedAt}); err != nil {
		t.Fatalf("seed sync points: %v", err)
	}

	poller.check(ctx)

	kinds := pendingKinds(t, db)
	for _, kind := range []string{KindSyncWatched, KindSyncRatings, KindSyncWatchlist, KindSyncComments} {
		if kinds[kind] {
			t.Fatalf("expected no %s when nothing changed, got %v", kind, kinds)
		}
	}
	if !kinds[KindSyncWatching] {
		t.Fatalf("expected watching sync queued every check, got %v", kinds)
	}
}

func TestActivityPollerQueuesWatchedOnNewActivity(t *testing.T) {
	db := newTestDB(t)
	manager, logger := newTestManager(t, db, RetryPolicy{})
	remote := &fakeRemote{activity: activityFixture(t, time.Now())}
	points := repository.NewMemorySyncPointRepository()
	poller := NewActivityPoller(remote, points, manager, nil, time.Minute, logger)

	ctx := context.Background()
	if err := points.SetSyncPoints(ctx, &models.SyncPoints{EpisodeWatchedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("seed sync points: %v", err)
	}

	poller.check(ctx)

	kinds := pendingKinds(t, db)
	if !kinds[KindSyncWatched] {
		t.Fatalf("expected watched sync on newer remote activity, got %v", kinds)
	}
}

func TestActivityPollerQueuesCommentsOnStaleCheckpoint(t *testing.T) {
	db := newTestDB(t)
	manager, logger := newTestManager(t, db, RetryPolicy{})
	watchedAt := time.Now().Add(-time.Hour)
	activities := activityFixture(t, watchedAt)
	activities.Comments.LikedAt = time.Now()
	remote := &fakeRemote{activity: activities}
	points := repository.NewMemorySyncPointRepository()
	poller := NewActivityPoller(remote, points, manager, nil, time.Minute, logger)

	ctx := context.Background()
	seed := &models.SyncPoints{
		EpisodeWatchedAt: watchedAt,
		CommentLikedAt:   time.Now().Add(-time.Hour),
	}
	if err := points.SetSyncPoints(ctx, seed); err != nil {
		t.Fatalf("seed sync points: %v", err)
	}

	poller.check(ctx)

	kinds := pendingKinds(t, db)
	if !kinds[KindSyncComments] {
		t.Fatalf("expected comments sync on newer comment activity, got %v", kinds)
	}
	if kinds[KindSyncWatched] {
		t.Fatalf("expected no watched sync when history is unchanged, got %v", kinds)
	}
}

func TestActivityPollerQueuesRatingsAndWatchlistSections(t *testing.T) {
	db := newTestDB(t)
	manager, logger := newTestManager(t, db, RetryPolicy{})
	watchedAt := time.Now().Add(-time.Hour)
	activities := activityFixture(t, watchedAt)
	activities.Shows.RatedAt = time.Now()
	activities.Movies.WatchlistedAt = time.Now()
	remote := &fakeRemote{activity: activities}
	points := repository.NewMemorySyncPointRepository()
	poller := NewActivityPoller(remote, points, manager, nil, time.Minute, logger)

	ctx := context.Background()
	if err := points.SetSyncPoints(ctx, &models.SyncPoints{EpisodeWatchedAt: watchedAt}); err != nil {
		t.Fatalf("seed sync points: %v", err)
	}

	poller.check(ctx)

	kinds := pendingKinds(t, db)
	if !kinds[KindSyncRatings] {
		t.Fatalf("expected ratings sync on newer rating activity, got %v", kinds)
	}
	if !kinds[KindSyncWatchlist] {
		t.Fatalf("expected watchlist sync on newer watchlist activity, got %v", kinds)
	}
	if kinds[KindSyncWatched] || kinds[KindSyncComments] {
		t.Fatalf("expected only changed sections queued, got %v", kinds)
	}
}

func TestActivityPollerStoresAllCheckpoints(t *testing.T) {
	db := newTestDB(t)
	manager, logger := newTestManager(t, db, RetryPolicy{})
	activities := activityFixture(t, time.Now())
	activities.Comments.LikedAt = time.Now().Add(-time.Minute)
	remote := &fakeRemote{activity: activities}
	points := repository.NewMemorySyncPointRepository()
	poller := NewActivityPoller(remote, points, manager, nil, time.Minute, logger)

	ctx := context.Background()
	poller.check(ctx)

	stored, err := points.GetSyncPoints(ctx)
	if err != nil {
		t.Fatalf("get sync points: %v", err)
	}
	if stored == nil {
		t.Fatalf("expected checkpoints stored after check")
	}
	if !stored.CommentLikedAt.Equal(activities.Comments.LikedAt) {
		t.Fatalf("expected comment checkpoint stored, got %v", stored.CommentLikedAt)
	}
}

func activityFixture(t *testing.T, episodesWatchedAt time.Time) *trakt.LastActivities {
	t.Helper()
	var activities trakt.LastActivities
	activities.All = episodesWatchedAt
	activities.Episodes.WatchedAt = episodesWatchedAt
	return &activities
}

// pendingKinds reads the queue table directly; the poller's jobs all share
// one entity key, so the FIFO accessor would only surface the head.
func pendingKinds(t *testing.T, db *database.DB) map[string]bool {
	t.Helper()
	rows, err := db.QueryContext(context.Background(),
		`SELECT kind FROM job_queue WHERE status = 'pending'`)
	if err != nil {
		t.Fatalf("query pending kinds: %v", err)
	}
	defer rows.Close()

	kinds := make(map[string]bool)
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			t.Fatalf("scan kind: %v", err)
		}
		kinds[kind] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate kinds: %v", err)
	}
	return kinds
}
