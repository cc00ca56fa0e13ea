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

// EpisodeScheduler is the façade for episode mutations. Every method writes
// the optimistic local state and enqueues the matching remote job on the
// private serial executor.
type EpisodeScheduler struct {
	base
}

func NewEpisodeScheduler(db *database.DB, jobs JobQueue, bus *events.EventBus, logger *zerolog.Logger) *EpisodeScheduler {
	return &EpisodeScheduler{base: newBase(db, jobs, bus, logger)}
}

// Rate sets the user rating. Rating 0 clears it.
func (s *EpisodeScheduler) Rate(episodeID int64, rating int) {
	s.submit("rate episode", func(ctx context.Context) error {
		if rating < models.RatingMin || rating > models.RatingMax {
			return fmt.Errorf("rating %d out of range", rating)
		}
		if err := s.db.SetEpisodeRating(ctx, episodeID, rating); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindRate, models.EntityEpisode, episodeID,
			jobqueue.RatePayload{Rating: rating, RatedAt: time.Now()})
		return s.queue(ctx, job, err)
	})
}

// AddToHistory marks the episode watched at the given time.
func (s *EpisodeScheduler) AddToHistory(episodeID int64, watchedAt time.Time) {
	s.submit("add episode to history", func(ctx context.Context) error {
		return s.addToHistory(ctx, episodeID, watchedAt)
	})
}

func (s *EpisodeScheduler) addToHistory(ctx context.Context, episodeID int64, watchedAt time.Time) error {
	episode, err := s.db.GetEpisode(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("failed to get episode: %w", err)
	}
	if err := s.db.AddEpisodeToHistory(ctx, episodeID, watchedAt); err != nil {
		return err
	}
	if err := s.db.UpdateShowCounts(ctx, episode.ShowID); err != nil {
		return err
	}
	job, err := jobqueue.NewJob(jobqueue.KindHistoryAdd, models.EntityEpisode, episodeID,
		jobqueue.HistoryPayload{WatchedAt: watchedAt})
	return s.queue(ctx, job, err)
}

// AddOlderToHistory marks every earlier unwatched episode of the same show
// watched as well, specials excluded.
func (s *EpisodeScheduler) AddOlderToHistory(episodeID int64, watchedAt time.Time) {
	s.submit("add older episodes to history", func(ctx context.Context) error {
		older, err := s.db.GetOlderUnwatched(ctx, episodeID)
		if err != nil {
			return err
		}
		for _, id := range older {
			if err := s.addToHistory(ctx, id, watchedAt); err != nil {
				return err
			}
		}
		return s.addToHistory(ctx, episodeID, watchedAt)
	})
}

// RemoveFromHistory clears the watched state.
func (s *EpisodeScheduler) RemoveFromHistory(episodeID int64) {
	s.submit("remove episode from history", func(ctx context.Context) error {
		episode, err := s.db.GetEpisode(ctx, episodeID)
		if err != nil {
			return fmt.Errorf("failed to get episode: %w", err)
		}
		if err := s.db.RemoveEpisodeFromHistory(ctx, episodeID); err != nil {
			return err
		}
		if err := s.db.UpdateShowCounts(ctx, episode.ShowID); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindHistoryRemove, models.EntityEpisode, episodeID, nil)
		return s.queue(ctx, job, err)
	})
}

// SetIsInCollection toggles collection membership.
func (s *EpisodeScheduler) SetIsInCollection(episodeID int64, inCollection bool) {
	s.submit("set episode collection", func(ctx context.Context) error {
		var collectedAt *time.Time
		if inCollection {
			now := time.Now()
			collectedAt = &now
		}
		if err := s.db.SetEpisodeCollected(ctx, episodeID, inCollection, collectedAt); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindCollectionSet, models.EntityEpisode, episodeID,
			jobqueue.FlagPayload{Value: inCollection, At: collectedAt})
		return s.queue(ctx, job, err)
	})
}

// SetIsInWatchlist toggles watchlist membership.
func (s *EpisodeScheduler) SetIsInWatchlist(episodeID int64, inWatchlist bool) {
	s.submit("set episode watchlist", func(ctx context.Context) error {
		if err := s.db.SetEpisodeWatchlist(ctx, episodeID, inWatchlist); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindWatchlistSet, models.EntityEpisode, episodeID,
			jobqueue.FlagPayload{Value: inWatchlist})
		return s.queue(ctx, job, err)
	})
}

// Checkin starts watching the episode now. When another checkin is still
// active nothing is enqueued and a conflict event names the watching title.
func (s *EpisodeScheduler) Checkin(episodeID int64) {
	s.submit("checkin episode", func(ctx context.Context) error {
		conflict, err := activeCheckin(ctx, s.db)
		if err != nil {
			return err
		}
		if conflict != nil {
			_ = s.bus.PublishJSON(events.EventCheckinConflict, conflict)
			return nil
		}

		episode, err := s.db.GetEpisode(ctx, episodeID)
		if err != nil {
			return fmt.Errorf("failed to get episode: %w", err)
		}
		show, err := s.db.GetShow(ctx, episode.ShowID)
		if err != nil {
			return fmt.Errorf("failed to get show: %w", err)
		}

		started := time.Now()
		expires := started.Add(runtimeOrDefault(show.Runtime, defaultEpisodeRuntime))
		if err := s.db.CheckinEpisode(ctx, episodeID, started, expires); err != nil {
			return err
		}

		job, err := jobqueue.NewJob(jobqueue.KindCheckin, models.EntityEpisode, episodeID,
			jobqueue.CheckinPayload{StartedAt: started, ExpiresAt: expires})
		if err := s.queue(ctx, job, err); err != nil {
			return err
		}
		return s.queueWatchingSync(ctx)
	})
}

// CancelCheckin clears the active episode checkin locally and remotely.
func (s *EpisodeScheduler) CancelCheckin() {
	s.submit("cancel episode checkin", func(ctx context.Context) error {
		watching, err := s.db.GetWatchingEpisode(ctx)
		if err != nil {
			return err
		}
		if watching == nil {
			return nil
		}
		if err := s.db.CancelEpisodeCheckins(ctx); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindCheckinCancel, models.EntityEpisode, watching.ID, nil)
		if err := s.queue(ctx, job, err); err != nil {
			return err
		}
		return s.queueWatchingSync(ctx)
	})
}

func (s *EpisodeScheduler) queueWatchingSync(ctx context.Context) error {
	job, err := jobqueue.NewJob(jobqueue.KindSyncWatching, models.EntityUser, 0, nil)
	return s.queue(ctx, job, err)
}

func runtimeOrDefault(minutes int, fallback time.Duration) time.Duration {
	if minutes <= 0 {
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}

// activeCheckin reports the currently watching title, nil when nothing is
// checked in or the window already expired.
func activeCheckin(ctx context.Context, db *database.DB) (*events.CheckinConflictPayload, error) {
	now := time.Now()

	episode, err := db.GetWatchingEpisode(ctx)
	if err != nil {
		return nil, err
	}
	if episode != nil && episode.ExpiresAt != nil && episode.ExpiresAt.After(now) {
		title := episode.Title
		if show, err := db.GetShow(ctx, episode.ShowID); err == nil {
			title = fmt.Sprintf("%s %dx%d", show.Title, episode.Season, episode.Number)
		}
		return &events.CheckinConflictPayload{WatchingTitle: title, ExpiresAt: *episode.ExpiresAt}, nil
	}

	movie, err := db.GetWatchingMovie(ctx)
	if err != nil {
		return nil, err
	}
	if movie != nil && movie.ExpiresAt != nil && movie.ExpiresAt.After(now) {
		return &events.CheckinConflictPayload{WatchingTitle: movie.Title, ExpiresAt: *movie.ExpiresAt}, nil
	}
	return nil, nil
}
