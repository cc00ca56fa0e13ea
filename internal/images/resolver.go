package images

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/models"
	"showsync/internal/tmdb"
)

// ErrNoMetadataID marks an entity that cannot be resolved because it was
// never linked to the metadata provider.
var ErrNoMetadataID = errors.New("images: entity has no tmdb id")

// MetadataSource is the slice of the TMDB client the resolver needs.
type MetadataSource interface {
	ShowImages(ctx context.Context, tmdbID int64) (*tmdb.Images, error)
	MovieImages(ctx context.Context, tmdbID int64) (*tmdb.Images, error)
}

// Resolver serves poster and backdrop paths cache-aside: fresh cached rows
// are returned without touching the provider, stale or missing ones are
// fetched and written back.
type Resolver struct {
	db     *database.DB
	source MetadataSource
	maxAge time.Duration
	logger *zerolog.Logger
}

// NewResolver builds a resolver. Cached paths older than maxAge are
// refetched on the next resolve.
func NewResolver(db *database.DB, source MetadataSource, maxAge time.Duration, logger *zerolog.Logger) *Resolver {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return &Resolver{db: db, source: source, maxAge: maxAge, logger: logger}
}

func (r *Resolver) fresh(updatedAt *time.Time) bool {
	return updatedAt != nil && time.Since(*updatedAt) < r.maxAge
}

// ShowImages returns the poster and backdrop paths for a show.
func (r *Resolver) ShowImages(ctx context.Context, showID int64) (string, string, error) {
	show, err := r.db.GetShow(ctx, showID)
	if err != nil {
		return "", "", fmt.Errorf("failed to get show: %w", err)
	}
	if r.fresh(show.ImagesUpdatedAt) {
		return show.PosterPath, show.BackdropPath, nil
	}
	return r.fetchShow(ctx, show)
}

// MovieImages returns the poster and backdrop paths for a movie.
func (r *Resolver) MovieImages(ctx context.Context, movieID int64) (string, string, error) {
	movie, err := r.db.GetMovie(ctx, movieID)
	if err != nil {
		return "", "", fmt.Errorf("failed to get movie: %w", err)
	}
	if r.fresh(movie.ImagesUpdatedAt) {
		return movie.PosterPath, movie.BackdropPath, nil
	}
	return r.fetchMovie(ctx, movie)
}

func (r *Resolver) fetchShow(ctx context.Context, show *models.Show) (string, string, error) {
	if show.TmdbID == nil {
		return "", "", ErrNoMetadataID
	}
	imgs, err := r.source.ShowImages(ctx, *show.TmdbID)
	if errors.Is(err, tmdb.ErrNotFound) {
		if clearErr := r.db.ClearShowImages(ctx, show.ID); clearErr != nil {
			r.logger.Error().Err(clearErr).Int64("show_id", show.ID).Msg("failed to clear show images")
		}
		return "", "", err
	}
	if err != nil {
		return "", "", err
	}
	if err := r.db.UpdateShowImages(ctx, show.ID, imgs.PosterPath, imgs.BackdropPath); err != nil {
		return "", "", err
	}
	return imgs.PosterPath, imgs.BackdropPath, nil
}

func (r *Resolver) fetchMovie(ctx context.Context, movie *models.Movie) (string, string, error) {
	if movie.TmdbID == nil {
		return "", "", ErrNoMetadataID
	}
	imgs, err := r.source.MovieImages(ctx, *movie.TmdbID)
	if errors.Is(err, tmdb.ErrNotFound) {
		if clearErr := r.db.ClearMovieImages(ctx, movie.ID); clearErr != nil {
			r.logger.Error().Err(clearErr).Int64("movie_id", movie.ID).Msg("failed to clear movie images")
		}
		return "", "", err
	}
	if err != nil {
		return "", "", err
	}
	if err := r.db.UpdateMovieImages(ctx, movie.ID, imgs.PosterPath, imgs.BackdropPath); err != nil {
		return "", "", err
	}
	return imgs.PosterPath, imgs.BackdropPath, nil
}

// ReportBroken is called when a cached path turned out to 404 on download.
// The cache entry is dropped and the provider consulted exactly once; a
// second failure propagates without another invalidate cycle.
func (r *Resolver) ReportBroken(ctx context.Context, entityType string, entityID int64) (string, string, error) {
	switch entityType {
	case models.EntityShow:
		if err := r.db.ClearShowImages(ctx, entityID); err != nil {
			return "", "", err
		}
		show, err := r.db.GetShow(ctx, entityID)
		if err != nil {
			return "", "", fmt.Errorf("failed to get show: %w", err)
		}
		return r.fetchShow(ctx, show)
	case models.EntityMovie:
		if err := r.db.ClearMovieImages(ctx, entityID); err != nil {
			return "", "", err
		}
		movie, err := r.db.GetMovie(ctx, entityID)
		if err != nil {
			return "", "", fmt.Errorf("failed to get movie: %w", err)
		}
		return r.fetchMovie(ctx, movie)
	}
	return "", "", fmt.Errorf("images: unsupported entity type %q", entityType)
}

// Refresh forces a refetch regardless of cache freshness. Used by refresh
// jobs on stale rows.
func (r *Resolver) Refresh(ctx context.Context, entityType string, entityID int64) error {
	switch entityType {
	case models.EntityShow:
		show, err := r.db.GetShow(ctx, entityID)
		if err != nil {
			return fmt.Errorf("failed to get show: %w", err)
		}
		_, _, err = r.fetchShow(ctx, show)
		if errors.Is(err, tmdb.ErrNotFound) || errors.Is(err, ErrNoMetadataID) {
			// Nothing to fetch; the cleared row is the final state.
			return nil
		}
		return err
	case models.EntityMovie:
		movie, err := r.db.GetMovie(ctx, entityID)
		if err != nil {
			return fmt.Errorf("failed to get movie: %w", err)
		}
		_, _, err = r.fetchMovie(ctx, movie)
		if errors.Is(err, tmdb.ErrNotFound) || errors.Is(err, ErrNoMetadataID) {
			return nil
		}
		return err
	}
	return fmt.Errorf("images: unsupported entity type %q", entityType)
}
