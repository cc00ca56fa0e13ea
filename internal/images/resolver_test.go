package images

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/models"
	"showsync/internal/tmdb"
)

func TestShowImagesCacheHit(t *testing.T) {
	db := newTestDB(t)
	source := &fakeSource{images: &tmdb.Images{PosterPath: "/new.jpg"}}
	resolver := NewResolver(db, source, time.Hour, testLogger())

	ctx := context.Background()
	show := createShowWithTmdbID(t, db, 500)
	if err := db.UpdateShowImages(ctx, show.ID, "/cached.jpg", "/cached_b.jpg"); err != nil {
		t.Fatalf("seed images: %v", err)
	}

	poster, backdrop, err := resolver.ShowImages(ctx, show.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if poster != "/cached.jpg" || backdrop != "/cached_b.jpg" {
		t.Fatalf("expected cached paths, got %s %s", poster, backdrop)
	}
	if source.showCalls != 0 {
		t.Fatalf("expected no provider call on cache hit, got %d", source.showCalls)
	}
}

func TestShowImagesStaleCacheRefetches(t *testing.T) {
	db := newTestDB(t)
	source := &fakeSource{images: &tmdb.Images{PosterPath: "/new.jpg", BackdropPath: "/new_b.jpg"}}
	resolver := NewResolver(db, source, time.Nanosecond, testLogger())

	ctx := context.Background()
	show := createShowWithTmdbID(t, db, 500)
	if err := db.UpdateShowImages(ctx, show.ID, "/old.jpg", "/old_b.jpg"); err != nil {
		t.Fatalf("seed images: %v", err)
	}
	time.Sleep(time.Millisecond)

	poster, _, err := resolver.ShowImages(ctx, show.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if poster != "/new.jpg" {
		t.Fatalf("expected refetched poster, got %s", poster)
	}
	if source.showCalls != 1 {
		t.Fatalf("expected 1 provider call, got %d", source.showCalls)
	}

	// The write-back must serve the next resolve from cache.
	got, err := db.GetShow(ctx, show.ID)
	if err != nil {
		t.Fatalf("get show: %v", err)
	}
	if got.PosterPath != "/new.jpg" {
		t.Fatalf("expected poster written back, got %s", got.PosterPath)
	}
}

func TestShowImagesWithoutMetadataID(t *testing.T) {
	db := newTestDB(t)
	resolver := NewResolver(db, &fakeSource{}, time.Hour, testLogger())

	ctx := context.Background()
	show := &models.Show{Title: "Unlinked"}
	if err := db.CreateShow(ctx, show); err != nil {
		t.Fatalf("create show: %v", err)
	}

	_, _, err := resolver.ShowImages(ctx, show.ID)
	if !errors.Is(err, ErrNoMetadataID) {
		t.Fatalf("expected ErrNoMetadataID, got %v", err)
	}
}

func TestShowImagesNotFoundClearsCache(t *testing.T) {
	db := newTestDB(t)
	source := &fakeSource{err: tmdb.ErrNotFound}
	resolver := NewResolver(db, source, time.Nanosecond, testLogger())

	ctx := context.Background()
	show := createShowWithTmdbID(t, db, 500)
	if err := db.UpdateShowImages(ctx, show.ID, "/old.jpg", "/old_b.jpg"); err != nil {
		t.Fatalf("seed images: %v", err)
	}
	time.Sleep(time.Millisecond)

	_, _, err := resolver.ShowImages(ctx, show.ID)
	if !errors.Is(err, tmdb.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, _ := db.GetShow(ctx, show.ID)
	if got.PosterPath != "" || got.ImagesUpdatedAt != nil {
		t.Fatalf("expected cache cleared on 404, got %q %v", got.PosterPath, got.ImagesUpdatedAt)
	}
}

func TestReportBrokenRefetchesOnce(t *testing.T) {
	db := newTestDB(t)
	source := &fakeSource{images: &tmdb.Images{PosterPath: "/fixed.jpg"}}
	resolver := NewResolver(db, source, time.Hour, testLogger())

	ctx := context.Background()
	show := createShowWithTmdbID(t, db, 500)
	if err := db.UpdateShowImages(ctx, show.ID, "/broken.jpg", ""); err != nil {
		t.Fatalf("seed images: %v", err)
	}

	poster, _, err := resolver.ReportBroken(ctx, models.EntityShow, show.ID)
	if err != nil {
		t.Fatalf("report broken: %v", err)
	}
	if poster != "/fixed.jpg" {
		t.Fatalf("expected fresh poster, got %s", poster)
	}
	if source.showCalls != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", source.showCalls)
	}
}

func TestReportBrokenSecondFailurePropagates(t *testing.T) {
	db := newTestDB(t)
	source := &fakeSource{err: tmdb.ErrNotFound}
	resolver := NewResolver(db, source, time.Hour, testLogger())

	ctx := context.Background()
	show := createShowWithTmdbID(t, db, 500)

	_, _, err := resolver.ReportBroken(ctx, models.EntityShow, show.ID)
	if !errors.Is(err, tmdb.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if source.showCalls != 1 {
		t.Fatalf("expected a single fetch attempt, got %d", source.showCalls)
	}
}

func TestRefreshTreatsGoneImagesAsFinal(t *testing.T) {
	db := newTestDB(t)
	source := &fakeSource{err: tmdb.ErrNotFound}
	resolver := NewResolver(db, source, time.Hour, testLogger())

	ctx := context.Background()
	show := createShowWithTmdbID(t, db, 500)

	if err := resolver.Refresh(ctx, models.EntityShow, show.ID); err != nil {
		t.Fatalf("expected gone images treated as final, got %v", err)
	}

	unlinked := &models.Show{Title: "Unlinked"}
	if err := db.CreateShow(ctx, unlinked); err != nil {
		t.Fatalf("create show: %v", err)
	}
	if err := resolver.Refresh(ctx, models.EntityShow, unlinked.ID); err != nil {
		t.Fatalf("expected missing metadata id treated as final, got %v", err)
	}
}

func TestMovieImages(t *testing.T) {
	db := newTestDB(t)
	source := &fakeSource{images: &tmdb.Images{PosterPath: "/m.jpg"}}
	resolver := NewResolver(db, source, time.Hour, testLogger())

	ctx := context.Background()
	tmdbID := int64(600)
	traktID := int64(300)
	movie := &models.Movie{TraktID: &traktID, TmdbID: &tmdbID, Title: "Test Movie"}
	if err := db.CreateMovie(ctx, movie); err != nil {
		t.Fatalf("create movie: %v", err)
	}

	poster, _, err := resolver.MovieImages(ctx, movie.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if poster != "/m.jpg" {
		t.Fatalf("expected fetched poster, got %s", poster)
	}
	if source.movieCalls != 1 {
		t.Fatalf("expected 1 provider call, got %d", source.movieCalls)
	}
}

// Helpers

func testLogger() *zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return &logger
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "images.db")
	db, err := database.NewDB(path, testLogger())
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createShowWithTmdbID(t *testing.T, db *database.DB, tmdbID int64) *models.Show {
	t.Helper()
	traktID := tmdbID + 1000
	show := &models.Show{TraktID: &traktID, TmdbID: &tmdbID, Title: "Test Show"}
	if err := db.CreateShow(context.Background(), show); err != nil {
		t.Fatalf("create show: %v", err)
	}
	return show
}

type fakeSource struct {
	err        error
	images     *tmdb.Images
	showCalls  int
	movieCalls int
}

func (f *fakeSource) ShowImages(ctx context.Context, tmdbID int64) (*tmdb.Images, error) {
	f.showCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.images, nil
}

func (f *fakeSource) MovieImages(ctx context.Context, tmdbID int64) (*tmdb.Images, error) {
	f.movieCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.images, nil
}
