package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/events"
	"showsync/internal/jobqueue"
	"showsync/internal/models"
)

// MovieScheduler is the façade for movie mutations.
type MovieScheduler struct {
	base
}

func NewMovieScheduler(db *database.DB, jobs JobQueue, bus *events.EventBus, logger *zerolog.Logger) *MovieScheduler {
	return &MovieScheduler{base: newBase(db, jobs, bus, logger)}
}

// Rate sets the user rating. Rating 0 clears it.
func (s *MovieScheduler) Rate(movieID int64, rating int) {
	s.submit("rate movie", func(ctx context.Context) error {
		if rating < models.RatingMin || rating > models.RatingMax {
			return fmt.Errorf("rating %d out of range", rating)
		}
		if err := s.db.SetMovieRating(ctx, movieID, rating); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindRate, models.EntityMovie, movieID,
			jobqueue.RatePayload{Rating: rating, RatedAt: time.Now()})
		return s.queue(ctx, job, err)
	})
}

// AddToHistory marks the movie watched at the given time.
func (s *MovieScheduler) AddToHistory(movieID int64, watchedAt time.Time) {
	s.submit("add movie to history", func(ctx context.Context) error {
		if err := s.db.AddMovieToHistory(ctx, movieID, watchedAt); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindHistoryAdd, models.EntityMovie, movieID,
			jobqueue.HistoryPayload{WatchedAt: watchedAt})
		return s.queue(ctx, job, err)
	})
}

// RemoveFromHistory clears the watched state.
func (s *MovieScheduler) RemoveFromHistory(movieID int64) {
	s.submit("remove movie from history", func(ctx context.Context) error {
		if err := s.db.RemoveMovieFromHistory(ctx, movieID); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindHistoryRemove, models.EntityMovie, movieID, nil)
		return s.queue(ctx, job, err)
	})
}

// SetIsInWatchlist toggles watchlist membership.
func (s *MovieScheduler) SetIsInWatchlist(movieID int64, inWatchlist bool) {
	s.submit("set movie watchlist", func(ctx context.Context) error {
		if err := s.db.SetMovieWatchlist(ctx, movieID, inWatchlist); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindWatchlistSet, models.EntityMovie, movieID,
			jobqueue.FlagPayload{Value: inWatchlist})
		return s.queue(ctx, job, err)
	})
}

// SetIsInCollection toggles collection membership.
func (s *MovieScheduler) SetIsInCollection(movieID int64, inCollection bool) {
	s.submit("set movie collection", func(ctx context.Context) error {
		if err := s.db.SetMovieCollected(ctx, movieID, inCollection); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindCollectionSet, models.EntityMovie, movieID,
			jobqueue.FlagPayload{Value: inCollection})
		return s.queue(ctx, job, err)
	})
}

// Checkin starts watching the movie now. When another checkin is still
// active nothing is enqueued and a conflict event names the watching title.
func (s *MovieScheduler) Checkin(movieID int64) {
	s.submit("checkin movie", func(ctx context.Context) error {
		conflict, err := activeCheckin(ctx, s.db)
		if err != nil {
			return err
		}
		if conflict != nil {
			_ = s.bus.PublishJSON(events.EventCheckinConflict, conflict)
			return nil
		}

		movie, err := s.db.GetMovie(ctx, movieID)
		if err != nil {
			return fmt.Errorf("failed to get movie: %w", err)
		}

		started := time.Now()
		expires := started.Add(runtimeOrDefault(movie.Runtime, defaultMovieRuntime))
		if err := s.db.CheckinMovie(ctx, movieID, started, expires); err != nil {
			return err
		}

		job, err := jobqueue.NewJob(jobqueue.KindCheckin, models.EntityMovie, movieID,
			jobqueue.CheckinPayload{StartedAt: started, ExpiresAt: expires})
		if err := s.queue(ctx, job, err); err != nil {
			return err
		}
		return s.queueWatchingSync(ctx)
	})
}

// CancelCheckin clears the active movie checkin locally and remotely.
func (s *MovieScheduler) CancelCheckin() {
	s.submit("cancel movie checkin", func(ctx context.Context) error {
		watching, err := s.db.GetWatchingMovie(ctx)
		if err != nil {
			return err
		}
		if watching == nil {
			return nil
		}
		if err := s.db.CancelMovieCheckins(ctx); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindCheckinCancel, models.EntityMovie, watching.ID, nil)
		if err := s.queue(ctx, job, err); err != nil {
			return err
		}
		return s.queueWatchingSync(ctx)
	})
}

// RefreshImages queues a forced refetch of the cached image paths.
func (s *MovieScheduler) RefreshImages(movieID int64) {
	s.submit("refresh movie images", func(ctx context.Context) error {
		job, err := jobqueue.NewJob(jobqueue.KindRefreshImages, models.EntityMovie, movieID, nil)
		return s.queue(ctx, job, err)
	})
}

func (s *MovieScheduler) queueWatchingSync(ctx context.Context) error {
	job, err := jobqueue.NewJob(jobqueue.KindSyncWatching, models.EntityUser, 0, nil)
	return s.queue(ctx, job, err)
}
