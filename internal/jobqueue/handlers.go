package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/events"
	"showsync/internal/models"
	"showsync/internal/trakt"
)

// Remote is the slice of the Trakt client the handlers need. Kept as an
// interface so tests can swap in a fake.
type Remote interface {
	RateShow(ctx context.Context, traktID int64, rating int, ratedAt time.Time) error
	RateEpisode(ctx context.Context, traktID int64, rating int, ratedAt time.Time) error
	RateMovie(ctx context.Context, traktID int64, rating int, ratedAt time.Time) error
	AddEpisodeToHistory(ctx context.Context, traktID int64, watchedAt time.Time) error
	RemoveEpisodeFromHistory(ctx context.Context, traktID int64) error
	AddMovieToHistory(ctx context.Context, traktID int64, watchedAt time.Time) error
	RemoveMovieFromHistory(ctx context.Context, traktID int64) error
	SetShowWatchlist(ctx context.Context, traktID int64, inWatchlist bool) error
	SetEpisodeWatchlist(ctx context.Context, traktID int64, inWatchlist bool) error
	SetMovieWatchlist(ctx context.Context, traktID int64, inWatchlist bool) error
	SetShowCollection(ctx context.Context, traktID int64, inCollection bool) error
	SetEpisodeCollection(ctx context.Context, traktID int64, inCollection bool, collectedAt *time.Time) error
	SetMovieCollection(ctx context.Context, traktID int64, inCollection bool) error
	AddComment(ctx context.Context, itemType string, traktID int64, text string, spoiler bool) (int64, error)
	UpdateComment(ctx context.Context, remoteID int64, text string, spoiler bool) error
	DeleteComment(ctx context.Context, remoteID int64) error
	AddListItem(ctx context.Context, listTraktID int64, itemType string, itemTraktID int64) error
	RemoveListItem(ctx context.Context, listTraktID int64, itemType string, itemTraktID int64) error
	CheckinEpisode(ctx context.Context, traktID int64) error
	CheckinMovie(ctx context.Context, traktID int64) error
	DeleteCheckin(ctx context.Context) error
	WatchedShows(ctx context.Context) ([]trakt.WatchedShow, error)
	CurrentlyWatching(ctx context.Context) (*trakt.Watching, error)
	Ratings(ctx context.Context) ([]trakt.RatedItem, error)
	Watchlist(ctx context.Context) ([]trakt.WatchlistItem, error)
	UserComments(ctx context.Context) ([]trakt.UserComment, error)
	UserActivity(ctx context.Context) (*trakt.LastActivities, error)
}

// ImageRefresher invalidates and refetches cached image paths.
type ImageRefresher interface {
	Refresh(ctx context.Context, entityType string, entityID int64) error
}

// HandlerSet implements every job kind against the local store and the
// remote service.
type HandlerSet struct {
	db     *database.DB
	remote Remote
	images ImageRefresher
	bus    *events.EventBus
	logger *zerolog.Logger
}

// NewHandlerSet builds the handlers. images may be nil when image refresh
// jobs are never queued.
func NewHandlerSet(db *database.DB, remote Remote, images ImageRefresher, bus *events.EventBus, logger *zerolog.Logger) *HandlerSet {
	return &HandlerSet{db: db, remote: remote, images: images, bus: bus, logger: logger}
}

// RegisterAll binds every handler to its kind.
func (h *HandlerSet) RegisterAll(m *Manager) {
	m.Register(KindRate, h.handleRate)
	m.Register(KindHistoryAdd, h.handleHistoryAdd)
	m.Register(KindHistoryRemove, h.handleHistoryRemove)
	m.Register(KindWatchlistSet, h.handleWatchlistSet)
	m.Register(KindCollectionSet, h.handleCollectionSet)
	m.Register(KindCommentAdd, h.handleCommentAdd)
	m.Register(KindCommentUpdate, h.handleCommentUpdate)
	m.Register(KindCommentDelete, h.handleCommentDelete)
	m.Register(KindCheckin, h.handleCheckin)
	m.Register(KindCheckinCancel, h.handleCheckinCancel)
	m.Register(KindListAdd, h.handleListAdd)
	m.Register(KindListRemove, h.handleListRemove)
	m.Register(KindSyncWatched, h.handleSyncWatched)
	m.Register(KindSyncWatching, h.handleSyncWatching)
	m.Register(KindSyncShow, h.handleSyncShow)
	m.Register(KindSyncRatings, h.handleSyncRatings)
	m.Register(KindSyncWatchlist, h.handleSyncWatchlist)
	m.Register(KindSyncComments, h.handleSyncComments)
	m.Register(KindRefreshImages, h.handleRefreshImages)
}

func (h *HandlerSet) showTraktID(ctx context.Context, id int64) (int64, error) {
	return h.db.GetShowTraktID(ctx, id)
}

func (h *HandlerSet) episodeTraktID(ctx context.Context, id int64) (int64, *models.Episode, error) {
	episode, err := h.db.GetEpisode(ctx, id)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get episode: %w", err)
	}
	if episode.TraktID == nil {
		return 0, nil, fmt.Errorf("episode %d has no remote id", id)
	}
	return *episode.TraktID, episode, nil
}

func (h *HandlerSet) handleRate(ctx context.Context, job *models.SyncJob) error {
	payload, err := decodePayload[RatePayload](job.Payload)
	if err != nil {
		return err
	}

	switch job.EntityType {
	case models.EntityShow:
		traktID, err := h.showTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.RateShow(ctx, traktID, payload.Rating, payload.RatedAt); err != nil {
			return err
		}
		return h.db.MarkShowSynced(ctx, job.EntityID)
	case models.EntityEpisode:
		traktID, _, err := h.episodeTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.RateEpisode(ctx, traktID, payload.Rating, payload.RatedAt); err != nil {
			return err
		}
		return h.db.MarkEpisodeSynced(ctx, job.EntityID)
	case models.EntityMovie:
		traktID, err := h.db.GetMovieTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.RateMovie(ctx, traktID, payload.Rating, payload.RatedAt); err != nil {
			return err
		}
		return h.db.MarkMovieSynced(ctx, job.EntityID)
	}
	return fmt.Errorf("rate: unsupported entity type %q", job.EntityType)
}

func (h *HandlerSet) handleHistoryAdd(ctx context.Context, job *models.SyncJob) error {
	payload, err := decodePayload[HistoryPayload](job.Payload)
	if err != nil {
		return err
	}

	switch job.EntityType {
	case models.EntityEpisode:
		traktID, episode, err := h.episodeTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.AddEpisodeToHistory(ctx, traktID, payload.WatchedAt); err != nil {
			return err
		}
		if err := h.db.MarkEpisodeSynced(ctx, job.EntityID); err != nil {
			return err
		}
		return h.db.UpdateShowCounts(ctx, episode.ShowID)
	case models.EntityMovie:
		traktID, err := h.db.GetMovieTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.AddMovieToHistory(ctx, traktID, payload.WatchedAt); err != nil {
			return err
		}
		return h.db.MarkMovieSynced(ctx, job.EntityID)
	}
	return fmt.Errorf("history_add: unsupported entity type %q", job.EntityType)
}

func (h *HandlerSet) handleHistoryRemove(ctx context.Context, job *models.SyncJob) error {
	switch job.EntityType {
	case models.EntityEpisode:
		traktID, episode, err := h.episodeTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.RemoveEpisodeFromHistory(ctx, traktID); err != nil {
			return err
		}
		if err := h.db.MarkEpisodeSynced(ctx, job.EntityID); err != nil {
			return err
		}
		return h.db.UpdateShowCounts(ctx, episode.ShowID)
	case models.EntityMovie:
		traktID, err := h.db.GetMovieTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.RemoveMovieFromHistory(ctx, traktID); err != nil {
			return err
		}
		return h.db.MarkMovieSynced(ctx, job.EntityID)
	}
	return fmt.Errorf("history_remove: unsupported entity type %q", job.EntityType)
}

func (h *HandlerSet) handleWatchlistSet(ctx context.Context, job *models.SyncJob) error {
	payload, err := decodePayload[FlagPayload](job.Payload)
	if err != nil {
		return err
	}

	switch job.EntityType {
	case models.EntityShow:
		traktID, err := h.showTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.SetShowWatchlist(ctx, traktID, payload.Value); err != nil {
			return err
		}
		return h.db.MarkShowSynced(ctx, job.EntityID)
	case models.EntityEpisode:
		traktID, _, err := h.episodeTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.SetEpisodeWatchlist(ctx, traktID, payload.Value); err != nil {
			return err
		}
		return h.db.MarkEpisodeSynced(ctx, job.EntityID)
	case models.EntityMovie:
		traktID, err := h.db.GetMovieTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.SetMovieWatchlist(ctx, traktID, payload.Value); err != nil {
			return err
		}
		return h.db.MarkMovieSynced(ctx, job.EntityID)
	}
	return fmt.Errorf("watchlist_set: unsupported entity type %q", job.EntityType)
}

func (h *HandlerSet) handleCollectionSet(ctx context.Context, job *models.SyncJob) error {
	payload, err := decodePayload[FlagPayload](job.Payload)
	if err != nil {
		return err
	}

	switch job.EntityType {
	case models.EntityShow:
		traktID, err := h.showTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.SetShowCollection(ctx, traktID, payload.Value); err != nil {
			return err
		}
		return h.db.MarkShowSynced(ctx, job.EntityID)
	case models.EntityEpisode:
		traktID, _, err := h.episodeTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.SetEpisodeCollection(ctx, traktID, payload.Value, payload.At); err != nil {
			return err
		}
		return h.db.MarkEpisodeSynced(ctx, job.EntityID)
	case models.EntityMovie:
		traktID, err := h.db.GetMovieTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		if err := h.remote.SetMovieCollection(ctx, traktID, payload.Value); err != nil {
			return err
		}
		return h.db.MarkMovieSynced(ctx, job.EntityID)
	}
	return fmt.Errorf("collection_set: unsupported entity type %q", job.EntityType)
}

func (h *HandlerSet) itemTraktID(ctx context.Context, itemType string, itemID int64) (int64, error) {
	switch itemType {
	case models.EntityShow:
		return h.db.GetShowTraktID(ctx, itemID)
	case models.EntityEpisode:
		traktID, _, err := h.episodeTraktID(ctx, itemID)
		return traktID, err
	case models.EntityMovie:
		return h.db.GetMovieTraktID(ctx, itemID)
	}
	return 0, fmt.Errorf("unsupported item type %q", itemType)
}

func (h *HandlerSet) handleCommentAdd(ctx context.Context, job *models.SyncJob) error {
	comment, err := h.db.GetComment(ctx, job.EntityID)
	if err != nil {
		return fmt.Errorf("failed to get comment: %w", err)
	}
	if comment.RemoteID != nil {
		// Already created on a previous delivery.
		return nil
	}

	traktID, err := h.itemTraktID(ctx, comment.ItemType, comment.ItemID)
	if err != nil {
		return err
	}

	remoteID, err := h.remote.AddComment(ctx, comment.ItemType, traktID, comment.Text, comment.Spoiler)
	if err != nil {
		return err
	}
	return h.db.SetCommentRemoteID(ctx, comment.ID, remoteID)
}

func (h *HandlerSet) handleCommentUpdate(ctx context.Context, job *models.SyncJob) error {
	comment, err := h.db.GetComment(ctx, job.EntityID)
	if err != nil {
		return fmt.Errorf("failed to get comment: %w", err)
	}
	if comment.RemoteID == nil {
		return fmt.Errorf("comment %d has no remote id", comment.ID)
	}
	if err := h.remote.UpdateComment(ctx, *comment.RemoteID, comment.Text, comment.Spoiler); err != nil {
		return err
	}
	return h.db.MarkCommentSynced(ctx, comment.ID)
}

func (h *HandlerSet) handleCommentDelete(ctx context.Context, job *models.SyncJob) error {
	comment, err := h.db.GetComment(ctx, job.EntityID)
	if err != nil {
		return fmt.Errorf("failed to get comment: %w", err)
	}
	if comment.RemoteID != nil {
		err := h.remote.DeleteComment(ctx, *comment.RemoteID)
		if err != nil && !errors.Is(err, trakt.ErrNotFound) {
			return err
		}
	}
	return h.db.DeleteComment(ctx, comment.ID)
}

func (h *HandlerSet) handleCheckin(ctx context.Context, job *models.SyncJob) error {
	switch job.EntityType {
	case models.EntityEpisode:
		traktID, _, err := h.episodeTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		err = h.remote.CheckinEpisode(ctx, traktID)
		if errors.Is(err, trakt.ErrCheckinInProgress) {
			return h.checkinConflict(ctx, err)
		}
		return err
	case models.EntityMovie:
		traktID, err := h.db.GetMovieTraktID(ctx, job.EntityID)
		if err != nil {
			return err
		}
		err = h.remote.CheckinMovie(ctx, traktID)
		if errors.Is(err, trakt.ErrCheckinInProgress) {
			return h.checkinConflict(ctx, err)
		}
		return err
	}
	return fmt.Errorf("checkin: unsupported entity type %q", job.EntityType)
}

// checkinConflict rolls the optimistic checkin back. The remote is already
// watching something else and the local flag would never expire.
func (h *HandlerSet) checkinConflict(ctx context.Context, cause error) error {
	if err := h.db.CancelEpisodeCheckins(ctx); err != nil {
		h.logger.Error().Err(err).Msg("failed to cancel episode checkins")
	}
	if err := h.db.CancelMovieCheckins(ctx); err != nil {
		h.logger.Error().Err(err).Msg("failed to cancel movie checkins")
	}

	payload := events.CheckinConflictPayload{}
	watching, err := h.remote.CurrentlyWatching(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to resolve conflicting checkin")
	} else if watching != nil {
		payload.WatchingTitle = watchingTitle(watching)
		payload.ExpiresAt = watching.ExpiresAt
	}
	_ = h.bus.PublishJSON(events.EventCheckinConflict, payload)
	return cause
}

func watchingTitle(w *trakt.Watching) string {
	switch {
	case w.Episode != nil:
		return fmt.Sprintf("%dx%d %s", w.Episode.Season, w.Episode.Number, w.Episode.Title)
	case w.Movie != nil:
		return w.Movie.Title
	}
	return ""
}

func (h *HandlerSet) handleListAdd(ctx context.Context, job *models.SyncJob) error {
	payload, err := decodePayload[ListPayload](job.Payload)
	if err != nil {
		return err
	}
	traktID, err := h.itemTraktID(ctx, job.EntityType, job.EntityID)
	if err != nil {
		return err
	}
	if err := h.remote.AddListItem(ctx, payload.ListTraktID, job.EntityType, traktID); err != nil {
		return err
	}
	return h.db.MarkListItemSynced(ctx, payload.ListTraktID, job.EntityType, job.EntityID)
}

func (h *HandlerSet) handleListRemove(ctx context.Context, job *models.SyncJob) error {
	payload, err := decodePayload[ListPayload](job.Payload)
	if err != nil {
		return err
	}
	traktID, err := h.itemTraktID(ctx, job.EntityType, job.EntityID)
	if err != nil {
		return err
	}
	err = h.remote.RemoveListItem(ctx, payload.ListTraktID, job.EntityType, traktID)
	if err != nil && !errors.Is(err, trakt.ErrNotFound) {
		return err
	}
	return nil
}

func (h *HandlerSet) handleCheckinCancel(ctx context.Context, job *models.SyncJob) error {
	err := h.remote.DeleteCheckin(ctx)
	if errors.Is(err, trakt.ErrNotFound) {
		// Nothing was checked in remotely.
		return nil
	}
	return err
}

// handleSyncWatched reconciles local watched flags for every known show from
// the remote history.
func (h *HandlerSet) handleSyncWatched(ctx context.Context, job *models.SyncJob) error {
	watched, err := h.remote.WatchedShows(ctx)
	if err != nil {
		return err
	}

	for _, remote := range watched {
		if err := h.reconcileShow(ctx, &remote); err != nil {
			return err
		}
	}
	return nil
}

func (h *HandlerSet) reconcileShow(ctx context.Context, remote *trakt.WatchedShow) error {
	show, err := h.db.GetShowByTraktID(ctx, remote.Show.IDs.Trakt)
	if err != nil {
		return err
	}
	if show == nil {
		return nil
	}

	var watchedIDs []int64
	for _, season := range remote.Seasons {
		for _, episode := range season.Episodes {
			id, err := h.db.GetEpisodeID(ctx, show.ID, season.Number, episode.Number)
			if err != nil {
				return err
			}
			if id != 0 {
				watchedIDs = append(watchedIDs, id)
			}
		}
	}

	if err := h.db.BatchSetEpisodesWatched(ctx, show.ID, watchedIDs); err != nil {
		return err
	}
	if err := h.db.UpdateShowCounts(ctx, show.ID); err != nil {
		return err
	}
	return h.db.MarkShowSynced(ctx, show.ID)
}

// handleSyncShow resyncs a single show from the remote watched report.
func (h *HandlerSet) handleSyncShow(ctx context.Context, job *models.SyncJob) error {
	traktID, err := h.db.GetShowTraktID(ctx, job.EntityID)
	if err != nil {
		return err
	}

	watched, err := h.remote.WatchedShows(ctx)
	if err != nil {
		return err
	}
	for _, remote := range watched {
		if remote.Show.IDs.Trakt == traktID {
			return h.reconcileShow(ctx, &remote)
		}
	}

	// The remote has no history for the show anymore.
	if err := h.db.BatchSetEpisodesWatched(ctx, job.EntityID, nil); err != nil {
		return err
	}
	if err := h.db.UpdateShowCounts(ctx, job.EntityID); err != nil {
		return err
	}
	return h.db.MarkShowSynced(ctx, job.EntityID)
}

// handleSyncRatings pulls remote ratings down. Rows with a pending local
// rating keep it until their own job runs.
func (h *HandlerSet) handleSyncRatings(ctx context.Context, job *models.SyncJob) error {
	rated, err := h.remote.Ratings(ctx)
	if err != nil {
		return err
	}

	for _, item := range rated {
		switch {
		case item.Episode != nil:
			episode, err := h.db.GetEpisodeByTraktID(ctx, item.Episode.IDs.Trakt)
			if err != nil {
				return err
			}
			if episode == nil || episode.NeedsSync || episode.UserRating == item.Rating {
				continue
			}
			if err := h.db.ApplyRemoteEpisodeRating(ctx, episode.ID, item.Rating, item.RatedAt); err != nil {
				return err
			}
		case item.Movie != nil:
			movie, err := h.db.GetMovieByTraktID(ctx, item.Movie.IDs.Trakt)
			if err != nil {
				return err
			}
			if movie == nil || movie.NeedsSync || movie.UserRating == item.Rating {
				continue
			}
			if err := h.db.ApplyRemoteMovieRating(ctx, movie.ID, item.Rating, item.RatedAt); err != nil {
				return err
			}
		case item.Show != nil:
			show, err := h.db.GetShowByTraktID(ctx, item.Show.IDs.Trakt)
			if err != nil {
				return err
			}
			if show == nil || show.NeedsSync || show.UserRating == item.Rating {
				continue
			}
			if err := h.db.ApplyRemoteShowRating(ctx, show.ID, item.Rating, item.RatedAt); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleSyncWatchlist replaces local watchlist membership with remote truth.
// Rows with a pending local toggle keep their flag until their own job runs.
func (h *HandlerSet) handleSyncWatchlist(ctx context.Context, job *models.SyncJob) error {
	items, err := h.remote.Watchlist(ctx)
	if err != nil {
		return err
	}

	var showIDs, episodeIDs, movieIDs []int64
	for _, item := range items {
		switch {
		case item.Episode != nil:
			episode, err := h.db.GetEpisodeByTraktID(ctx, item.Episode.IDs.Trakt)
			if err != nil {
				return err
			}
			if episode != nil {
				episodeIDs = append(episodeIDs, episode.ID)
			}
		case item.Movie != nil:
			movie, err := h.db.GetMovieByTraktID(ctx, item.Movie.IDs.Trakt)
			if err != nil {
				return err
			}
			if movie != nil {
				movieIDs = append(movieIDs, movie.ID)
			}
		case item.Show != nil:
			show, err := h.db.GetShowByTraktID(ctx, item.Show.IDs.Trakt)
			if err != nil {
				return err
			}
			if show != nil {
				showIDs = append(showIDs, show.ID)
			}
		}
	}

	if err := h.db.BatchSetShowsWatchlisted(ctx, showIDs); err != nil {
		return err
	}
	if err := h.db.BatchSetEpisodesWatchlisted(ctx, episodeIDs); err != nil {
		return err
	}
	return h.db.BatchSetMoviesWatchlisted(ctx, movieIDs)
}

// handleSyncComments pulls remote comment edits down. Local comments with a
// pending edit keep their local text until their own job runs.
func (h *HandlerSet) handleSyncComments(ctx context.Context, job *models.SyncJob) error {
	remote, err := h.remote.UserComments(ctx)
	if err != nil {
		return err
	}

	for _, rc := range remote {
		local, err := h.db.GetCommentByRemoteID(ctx, rc.Comment.ID)
		if err != nil {
			return err
		}
		if local == nil || local.NeedsSync {
			continue
		}
		if local.Text == rc.Comment.Comment && local.Spoiler == rc.Comment.Spoiler {
			continue
		}
		if err := h.db.ApplyRemoteComment(ctx, local.ID, rc.Comment.Comment, rc.Comment.Spoiler); err != nil {
			return err
		}
	}
	return nil
}

// handleSyncWatching replaces the local checkin state with whatever the
// remote says is playing.
func (h *HandlerSet) handleSyncWatching(ctx context.Context, job *models.SyncJob) error {
	watching, err := h.remote.CurrentlyWatching(ctx)
	if err != nil {
		return err
	}

	if err := h.db.CancelEpisodeCheckins(ctx); err != nil {
		return err
	}
	if err := h.db.CancelMovieCheckins(ctx); err != nil {
		return err
	}
	if watching == nil {
		return nil
	}

	switch {
	case watching.Episode != nil:
		episode, err := h.db.GetEpisodeByTraktID(ctx, watching.Episode.IDs.Trakt)
		if err != nil {
			return err
		}
		if episode == nil {
			return nil
		}
		return h.db.CheckinEpisode(ctx, episode.ID, watching.StartedAt, watching.ExpiresAt)
	case watching.Movie != nil:
		movie, err := h.db.GetMovieByTraktID(ctx, watching.Movie.IDs.Trakt)
		if err != nil {
			return err
		}
		if movie == nil {
			return nil
		}
		return h.db.CheckinMovie(ctx, movie.ID, watching.StartedAt, watching.ExpiresAt)
	}
	return nil
}

func (h *HandlerSet) handleRefreshImages(ctx context.Context, job *models.SyncJob) error {
	if h.images == nil {
		return errors.New("image refresher not configured")
	}
	return h.images.Refresh(ctx, job.EntityType, job.EntityID)
}
