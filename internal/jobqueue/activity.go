package jobqueue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/domain"
	"showsync/internal/events"
	"showsync/internal/models"
	"showsync/internal/trakt"
)

// ActivityPoller periodically compares remote activity timestamps against
// stored checkpoints and enqueues resync jobs only for categories that
// actually changed. Full resyncs on a timer would hammer the remote for
// nothing.
type ActivityPoller struct {
	remote   Remote
	points   domain.SyncPointRepository
	manager  *Manager
	bus      *events.EventBus
	interval time.Duration
	logger   *zerolog.Logger
}

func NewActivityPoller(remote Remote, points domain.SyncPointRepository, manager *Manager, bus *events.EventBus, interval time.Duration, logger *zerolog.Logger) *ActivityPoller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ActivityPoller{
		remote:   remote,
		points:   points,
		manager:  manager,
		bus:      bus,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until ctx is done. The first check happens immediately.
func (p *ActivityPoller) Run(ctx context.Context) {
	p.logger.Info().Dur("interval", p.interval).Msg("activity poller started")
	defer p.logger.Info().Msg("activity poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *ActivityPoller) check(ctx context.Context) {
	activities, err := p.remote.UserActivity(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to fetch remote activity")
		return
	}

	stored, err := p.points.GetSyncPoints(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to load sync points")
		return
	}

	_ = p.bus.PublishJSON(events.EventSyncStarted, nil)

	for _, kind := range staleKinds(activities, stored) {
		p.queueSync(ctx, kind)
	}
	// The watching endpoint has no activity timestamp, so it is always
	// refreshed.
	p.queueSync(ctx, KindSyncWatching)

	if err := p.points.SetSyncPoints(ctx, fromActivities(activities)); err != nil {
		p.logger.Warn().Err(err).Msg("failed to store sync points")
	}
	_ = p.bus.PublishJSON(events.EventSyncFinished, nil)
}

func (p *ActivityPoller) queueSync(ctx context.Context, kind string) {
	job, err := NewJob(kind, models.EntityUser, 0, nil)
	if err != nil {
		p.logger.Error().Err(err).Str("kind", kind).Msg("failed to build sync job")
		return
	}
	if err := p.manager.Queue(ctx, job); err != nil {
		p.logger.Error().Err(err).Str("kind", kind).Msg("failed to queue sync job")
	}
}

// staleKinds maps each activity section with a timestamp newer than its
// stored checkpoint to the sync kind that pulls it down. A nil checkpoint
// means a first run, which resyncs everything.
func staleKinds(a *trakt.LastActivities, stored *models.SyncPoints) []string {
	if stored == nil {
		return []string{KindSyncWatched, KindSyncRatings, KindSyncWatchlist, KindSyncComments}
	}

	var kinds []string
	if a.Episodes.WatchedAt.After(stored.EpisodeWatchedAt) {
		kinds = append(kinds, KindSyncWatched)
	}
	if a.Episodes.RatedAt.After(stored.EpisodeRatedAt) ||
		a.Shows.RatedAt.After(stored.ShowRatedAt) ||
		a.Movies.RatedAt.After(stored.MovieRatedAt) {
		kinds = append(kinds, KindSyncRatings)
	}
	if a.Episodes.WatchlistedAt.After(stored.EpisodeWatchlistedAt) ||
		a.Shows.WatchlistedAt.After(stored.ShowWatchlistedAt) ||
		a.Movies.WatchlistedAt.After(stored.MovieWatchlistedAt) {
		kinds = append(kinds, KindSyncWatchlist)
	}
	if a.Comments.LikedAt.After(stored.CommentLikedAt) {
		kinds = append(kinds, KindSyncComments)
	}
	return kinds
}

func fromActivities(a *trakt.LastActivities) *models.SyncPoints {
	return &models.SyncPoints{
		All:                  a.All,
		EpisodeWatchedAt:     a.Episodes.WatchedAt,
		EpisodeCollectedAt:   a.Episodes.CollectedAt,
		EpisodeRatedAt:       a.Episodes.RatedAt,
		EpisodeWatchlistedAt: a.Episodes.WatchlistedAt,
		ShowRatedAt:          a.Shows.RatedAt,
		ShowCollectedAt:      a.Shows.CollectedAt,
		ShowWatchlistedAt:    a.Shows.WatchlistedAt,
		MovieWatchedAt:       a.Movies.WatchedAt,
		MovieCollectedAt:     a.Movies.CollectedAt,
		MovieRatedAt:         a.Movies.RatedAt,
		MovieWatchlistedAt:   a.Movies.WatchlistedAt,
		CommentLikedAt:       a.Comments.LikedAt,
		CheckedAt:            time.Now(),
	}
}
