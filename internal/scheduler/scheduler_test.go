package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/events"
	"showsync/internal/jobqueue"
	"showsync/internal/models"
)

func TestEpisodeRateWritesLocallyAndQueues(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewEpisodeScheduler(db, queue, nil, testLogger())

	ctx := context.Background()
	show := createShow(t, db, 100)
	episode := createEpisode(t, db, show.ID, 201, 1, 1)

	scheduler.Rate(episode.ID, 8)
	drainTasks(t, &scheduler.base)

	got, err := db.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if got.UserRating != 8 {
		t.Fatalf("expected rating=8, got %d", got.UserRating)
	}
	if !got.NeedsSync {
		t.Fatalf("expected needs_sync after optimistic write")
	}
	queue.expect(t, jobqueue.KindRate)
}

func TestEpisodeRateOutOfRange(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewEpisodeScheduler(db, queue, nil, testLogger())

	show := createShow(t, db, 100)
	episode := createEpisode(t, db, show.ID, 201, 1, 1)

	scheduler.Rate(episode.ID, 11)
	if err := drainTasksErr(&scheduler.base); err == nil {
		t.Fatalf("expected error for out-of-range rating")
	}
	queue.expect(t)
}

func TestEpisodeAddOlderToHistory(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewEpisodeScheduler(db, queue, nil, testLogger())

	ctx := context.Background()
	show := createShow(t, db, 100)
	s1e1 := createEpisode(t, db, show.ID, 201, 1, 1)
	s1e2 := createEpisode(t, db, show.ID, 202, 1, 2)
	s2e1 := createEpisode(t, db, show.ID, 203, 2, 1)
	if err := db.AddEpisodeToHistory(ctx, s1e2.ID, time.Now()); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	scheduler.AddOlderToHistory(s2e1.ID, time.Now())
	drainTasks(t, &scheduler.base)

	for _, id := range []int64{s1e1.ID, s2e1.ID} {
		episode, err := db.GetEpisode(ctx, id)
		if err != nil {
			t.Fatalf("get episode: %v", err)
		}
		if !episode.Watched {
			t.Fatalf("expected episode %d watched", id)
		}
	}
	// One history job per newly watched episode, already-watched s1e2 skipped.
	queue.expect(t, jobqueue.KindHistoryAdd, jobqueue.KindHistoryAdd)
}

func TestEpisodeCheckinQueuesJobAndWatchingSync(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewEpisodeScheduler(db, queue, nil, testLogger())

	ctx := context.Background()
	show := createShow(t, db, 100)
	episode := createEpisode(t, db, show.ID, 201, 1, 1)

	scheduler.Checkin(episode.ID)
	drainTasks(t, &scheduler.base)

	got, err := db.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if !got.CheckedIn {
		t.Fatalf("expected episode checked in")
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected a future checkin window, got %v", got.ExpiresAt)
	}
	queue.expect(t, jobqueue.KindCheckin, jobqueue.KindSyncWatching)
}

func TestEpisodeCheckinConflictQueuesNothing(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	bus := events.NewEventBus()
	var conflict events.CheckinConflictPayload
	conflicts := 0
	bus.Subscribe(events.EventCheckinConflict, func(event *events.Event) error {
		conflicts++
		return json.Unmarshal(event.Payload, &conflict)
	})
	scheduler := NewEpisodeScheduler(db, queue, bus, testLogger())

	ctx := context.Background()
	show := createShow(t, db, 100)
	busy := createEpisode(t, db, show.ID, 201, 2, 3)
	next := createEpisode(t, db, show.ID, 202, 2, 4)
	if err := db.CheckinEpisode(ctx, busy.ID, time.Now(), time.Now().Add(30*time.Minute)); err != nil {
		t.Fatalf("seed checkin: %v", err)
	}

	scheduler.Checkin(next.ID)
	drainTasks(t, &scheduler.base)

	if conflicts != 1 {
		t.Fatalf("expected 1 conflict event, got %d", conflicts)
	}
	if conflict.WatchingTitle != "Test Show 2x3" {
		t.Fatalf("expected conflict naming the watching title, got %q", conflict.WatchingTitle)
	}
	queue.expect(t)

	got, err := db.GetEpisode(ctx, next.ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if got.CheckedIn {
		t.Fatalf("expected no local checkin on conflict")
	}
}

func TestEpisodeCheckinIgnoresExpiredWindow(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewEpisodeScheduler(db, queue, nil, testLogger())

	ctx := context.Background()
	show := createShow(t, db, 100)
	stale := createEpisode(t, db, show.ID, 201, 1, 1)
	next := createEpisode(t, db, show.ID, 202, 1, 2)
	if err := db.CheckinEpisode(ctx, stale.ID, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("seed checkin: %v", err)
	}

	scheduler.Checkin(next.ID)
	drainTasks(t, &scheduler.base)

	got, err := db.GetEpisode(ctx, next.ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if !got.CheckedIn {
		t.Fatalf("expected expired window to not block a new checkin")
	}
}

func TestCancelCheckinWithoutActiveOneIsNoop(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewEpisodeScheduler(db, queue, nil, testLogger())

	scheduler.CancelCheckin()
	drainTasks(t, &scheduler.base)
	queue.expect(t)
}

func TestCommentAddRejectsShortText(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewCommentScheduler(db, queue, nil, testLogger())

	scheduler.Add(models.EntityShow, 1, "too short", false)
	if err := drainTasksErr(&scheduler.base); err == nil {
		t.Fatalf("expected error for short comment")
	}
	queue.expect(t)
}

func TestCommentAddSuppressesDuplicates(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewCommentScheduler(db, queue, nil, testLogger())

	text := "this show keeps getting better every week"
	scheduler.Add(models.EntityShow, 1, text, false)
	scheduler.Add(models.EntityShow, 1, text, false)
	drainTasks(t, &scheduler.base)

	queue.expect(t, jobqueue.KindCommentAdd)
}

func TestCommentDeleteHidesLocally(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewCommentScheduler(db, queue, nil, testLogger())

	ctx := context.Background()
	comment := &models.Comment{ItemType: models.EntityShow, ItemID: 1, Text: "some words to fill the minimum"}
	if err := db.CreateComment(ctx, comment); err != nil {
		t.Fatalf("create comment: %v", err)
	}

	scheduler.Delete(comment.ID)
	drainTasks(t, &scheduler.base)

	got, err := db.GetComment(ctx, comment.ID)
	if err != nil {
		t.Fatalf("get comment: %v", err)
	}
	if !got.Deleted {
		t.Fatalf("expected comment hidden locally before remote delete")
	}
	queue.expect(t, jobqueue.KindCommentDelete)
}

func TestSeasonAddToHistoryFansOut(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewSeasonScheduler(db, queue, nil, testLogger())

	ctx := context.Background()
	show := createShow(t, db, 100)
	createEpisode(t, db, show.ID, 201, 1, 1)
	createEpisode(t, db, show.ID, 202, 1, 2)
	createEpisode(t, db, show.ID, 203, 2, 1)

	scheduler.AddToHistory(show.ID, 1, time.Now())
	drainTasks(t, &scheduler.base)

	queue.expect(t, jobqueue.KindHistoryAdd, jobqueue.KindHistoryAdd)
	updatedShow, err := db.GetShow(ctx, show.ID)
	if err != nil {
		t.Fatalf("get show: %v", err)
	}
	if updatedShow.WatchedCount != 2 {
		t.Fatalf("expected watched_count=2, got %d", updatedShow.WatchedCount)
	}
}

func TestListSchedulerMembership(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewListScheduler(db, queue, nil, testLogger())

	ctx := context.Background()
	scheduler.AddItem(55, models.EntityShow, 1)
	scheduler.RemoveItem(55, models.EntityShow, 1)
	drainTasks(t, &scheduler.base)

	queue.expect(t, jobqueue.KindListAdd, jobqueue.KindListRemove)
	items, err := db.GetListItems(ctx, 55)
	if err != nil {
		t.Fatalf("get list items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list after remove, got %d items", len(items))
	}
}

func TestMovieCheckinUsesRuntime(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewMovieScheduler(db, queue, nil, testLogger())

	ctx := context.Background()
	traktID := int64(300)
	movie := &models.Movie{TraktID: &traktID, Title: "Test Movie", Runtime: 90}
	if err := db.CreateMovie(ctx, movie); err != nil {
		t.Fatalf("create movie: %v", err)
	}

	scheduler.Checkin(movie.ID)
	drainTasks(t, &scheduler.base)

	got, err := db.GetMovie(ctx, movie.ID)
	if err != nil {
		t.Fatalf("get movie: %v", err)
	}
	if !got.CheckedIn {
		t.Fatalf("expected movie checked in")
	}
	window := got.ExpiresAt.Sub(*got.StartedAt)
	if window != 90*time.Minute {
		t.Fatalf("expected 90m checkin window, got %s", window)
	}
	queue.expect(t, jobqueue.KindCheckin, jobqueue.KindSyncWatching)
}

func TestShowSyncQueuesResync(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeJobQueue{}
	scheduler := NewShowScheduler(db, queue, nil, testLogger())

	show := createShow(t, db, 100)
	scheduler.Sync(show.ID)
	scheduler.RefreshImages(show.ID)
	drainTasks(t, &scheduler.base)

	queue.expect(t, jobqueue.KindSyncShow, jobqueue.KindRefreshImages)
}

// Helpers

func testLogger() *zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return &logger
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	db, err := database.NewDB(path, testLogger())
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createShow(t *testing.T, db *database.DB, traktID int64) *models.Show {
	t.Helper()
	show := &models.Show{TraktID: &traktID, Title: "Test Show"}
	if err := db.CreateShow(context.Background(), show); err != nil {
		t.Fatalf("create show: %v", err)
	}
	return show
}

func createEpisode(t *testing.T, db *database.DB, showID, traktID int64, season, number int) *models.Episode {
	t.Helper()
	episode := &models.Episode{ShowID: showID, TraktID: &traktID, Season: season, Number: number}
	if err := db.CreateEpisode(context.Background(), episode); err != nil {
		t.Fatalf("create episode: %v", err)
	}
	return episode
}

// drainTasks runs every submitted task and fails the test on the first error.
func drainTasks(t *testing.T, b *base) {
	t.Helper()
	if err := drainTasksErr(b); err != nil {
		t.Fatalf("task failed: %v", err)
	}
}

func drainTasksErr(b *base) error {
	for {
		select {
		case task := <-b.tasks:
			if err := task.fn(context.Background()); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

type fakeJobQueue struct {
	err  error
	jobs []*models.SyncJob
}

func (f *fakeJobQueue) Queue(ctx context.Context, job *models.SyncJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

// expect asserts the exact sequence of queued job kinds.
func (f *fakeJobQueue) expect(t *testing.T, kinds ...string) {
	t.Helper()
	if len(f.jobs) != len(kinds) {
		t.Fatalf("expected %d queued jobs, got %d", len(kinds), len(f.jobs))
	}
	for i, kind := range kinds {
		if f.jobs[i].Kind != kind {
			t.Fatalf("job %d: expected kind %s, got %s", i, kind, f.jobs[i].Kind)
		}
	}
}
