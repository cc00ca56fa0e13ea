package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/events"
	"showsync/internal/jobqueue"
	"showsync/internal/models"
)

// SeasonScheduler fans season-level operations out over the season's
// episodes. Seasons have no row of their own; the episode table is the
// source of truth.
type SeasonScheduler struct {
	base
}

func NewSeasonScheduler(db *database.DB, jobs JobQueue, bus *events.EventBus, logger *zerolog.Logger) *SeasonScheduler {
	return &SeasonScheduler{base: newBase(db, jobs, bus, logger)}
}

// AddToHistory marks every episode of the season watched.
func (s *SeasonScheduler) AddToHistory(showID int64, season int, watchedAt time.Time) {
	s.submit("add season to history", func(ctx context.Context) error {
		ids, err := s.db.GetSeasonEpisodeIDs(ctx, showID, season)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.db.AddEpisodeToHistory(ctx, id, watchedAt); err != nil {
				return err
			}
			job, err := jobqueue.NewJob(jobqueue.KindHistoryAdd, models.EntityEpisode, id,
				jobqueue.HistoryPayload{WatchedAt: watchedAt})
			if err := s.queue(ctx, job, err); err != nil {
				return err
			}
		}
		return s.db.UpdateShowCounts(ctx, showID)
	})
}

// RemoveFromHistory clears the watched state of every episode of the season.
func (s *SeasonScheduler) RemoveFromHistory(showID int64, season int) {
	s.submit("remove season from history", func(ctx context.Context) error {
		ids, err := s.db.GetSeasonEpisodeIDs(ctx, showID, season)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.db.RemoveEpisodeFromHistory(ctx, id); err != nil {
				return err
			}
			job, err := jobqueue.NewJob(jobqueue.KindHistoryRemove, models.EntityEpisode, id, nil)
			if err := s.queue(ctx, job, err); err != nil {
				return err
			}
		}
		return s.db.UpdateShowCounts(ctx, showID)
	})
}

// SetIsInCollection toggles collection membership for the whole season.
func (s *SeasonScheduler) SetIsInCollection(showID int64, season int, inCollection bool) {
	s.submit("set season collection", func(ctx context.Context) error {
		ids, err := s.db.GetSeasonEpisodeIDs(ctx, showID, season)
		if err != nil {
			return err
		}
		var collectedAt *time.Time
		if inCollection {
			now := time.Now()
			collectedAt = &now
		}
		for _, id := range ids {
			if err := s.db.SetEpisodeCollected(ctx, id, inCollection, collectedAt); err != nil {
				return err
			}
			job, err := jobqueue.NewJob(jobqueue.KindCollectionSet, models.EntityEpisode, id,
				jobqueue.FlagPayload{Value: inCollection, At: collectedAt})
			if err := s.queue(ctx, job, err); err != nil {
				return err
			}
		}
		return nil
	})
}
