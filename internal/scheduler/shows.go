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

// ShowScheduler is the façade for show-level mutations.
type ShowScheduler struct {
	base
}

func NewShowScheduler(db *database.DB, jobs JobQueue, bus *events.EventBus, logger *zerolog.Logger) *ShowScheduler {
	return &ShowScheduler{base: newBase(db, jobs, bus, logger)}
}

// Rate sets the user rating. Rating 0 clears it.
func (s *ShowScheduler) Rate(showID int64, rating int) {
	s.submit("rate show", func(ctx context.Context) error {
		if rating < models.RatingMin || rating > models.RatingMax {
			return fmt.Errorf("rating %d out of range", rating)
		}
		if err := s.db.SetShowRating(ctx, showID, rating); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindRate, models.EntityShow, showID,
			jobqueue.RatePayload{Rating: rating, RatedAt: time.Now()})
		return s.queue(ctx, job, err)
	})
}

// SetIsInWatchlist toggles watchlist membership.
func (s *ShowScheduler) SetIsInWatchlist(showID int64, inWatchlist bool) {
	s.submit("set show watchlist", func(ctx context.Context) error {
		if err := s.db.SetShowWatchlist(ctx, showID, inWatchlist); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindWatchlistSet, models.EntityShow, showID,
			jobqueue.FlagPayload{Value: inWatchlist})
		return s.queue(ctx, job, err)
	})
}

// SetIsInCollection toggles collection membership.
func (s *ShowScheduler) SetIsInCollection(showID int64, inCollection bool) {
	s.submit("set show collection", func(ctx context.Context) error {
		if err := s.db.SetShowCollected(ctx, showID, inCollection); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindCollectionSet, models.EntityShow, showID,
			jobqueue.FlagPayload{Value: inCollection})
		return s.queue(ctx, job, err)
	})
}

// Sync queues a full resync of the show's watched state.
func (s *ShowScheduler) Sync(showID int64) {
	s.submit("sync show", func(ctx context.Context) error {
		job, err := jobqueue.NewJob(jobqueue.KindSyncShow, models.EntityShow, showID, nil)
		return s.queue(ctx, job, err)
	})
}

// RefreshImages queues a forced refetch of the cached image paths.
func (s *ShowScheduler) RefreshImages(showID int64) {
	s.submit("refresh show images", func(ctx context.Context) error {
		job, err := jobqueue.NewJob(jobqueue.KindRefreshImages, models.EntityShow, showID, nil)
		return s.queue(ctx, job, err)
	})
}
