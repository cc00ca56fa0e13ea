package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"showsync/internal/models"
)

const movieColumns = `id, trakt_id, tmdb_id, title, overview, runtime, watched, watched_at,
        in_watchlist, in_collection, user_rating, rated_at, checked_in, started_at, expires_at,
        poster_path, backdrop_path, images_updated_at, needs_sync, last_sync, created_at, updated_at`

func scanMovie(row interface{ Scan(...any) error }) (*models.Movie, error) {
	var m models.Movie
	err := row.Scan(
		&m.ID,
		&m.TraktID,
		&m.TmdbID,
		&m.Title,
		&m.Overview,
		&m.Runtime,
		&m.Watched,
		&m.WatchedAt,
		&m.InWatchlist,
		&m.InCollection,
		&m.UserRating,
		&m.RatedAt,
		&m.CheckedIn,
		&m.StartedAt,
		&m.ExpiresAt,
		&m.PosterPath,
		&m.BackdropPath,
		&m.ImagesUpdatedAt,
		&m.NeedsSync,
		&m.LastSync,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMovie inserts a movie row and fills in its local id.
func (db *DB) CreateMovie(ctx context.Context, movie *models.Movie) error {
	query := `INSERT INTO movies (trakt_id, tmdb_id, title, overview, runtime, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		movie.TraktID, movie.TmdbID, movie.Title, movie.Overview, movie.Runtime, now, now)
	if err != nil {
		return fmt.Errorf("failed to create movie: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	movie.ID = id
	movie.CreatedAt = now
	movie.UpdatedAt = now
	return nil
}

// GetMovie returns a movie by local id.
func (db *DB) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE id = ?`
	return scanMovie(db.QueryRowContext(ctx, query, id))
}

// GetMovieTraktID returns the remote id for a movie, or an error when the
// movie was never synced.
func (db *DB) GetMovieTraktID(ctx context.Context, id int64) (int64, error) {
	var traktID *int64
	err := db.QueryRowContext(ctx, `SELECT trakt_id FROM movies WHERE id = ?`, id).Scan(&traktID)
	if err != nil {
		return 0, fmt.Errorf("failed to get movie trakt id: %w", err)
	}
	if traktID == nil {
		return 0, fmt.Errorf("movie %d has no remote id", id)
	}
	return *traktID, nil
}

// GetMovieByTraktID returns the local movie matching a remote id, or nil.
func (db *DB) GetMovieByTraktID(ctx context.Context, traktID int64) (*models.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE trakt_id = ?`
	movie, err := scanMovie(db.QueryRowContext(ctx, query, traktID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return movie, err
}

// GetWatchingMovie returns the movie with an active checkin, or nil.
func (db *DB) GetWatchingMovie(ctx context.Context) (*models.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE checked_in = 1 LIMIT 1`
	movie, err := scanMovie(db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return movie, err
}

// AddMovieToHistory writes the optimistic watched state.
func (db *DB) AddMovieToHistory(ctx context.Context, id int64, watchedAt time.Time) error {
	query := `UPDATE movies SET watched = 1, watched_at = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, watchedAt, time.Now(), id)
	return err
}

// RemoveMovieFromHistory clears the optimistic watched state.
func (db *DB) RemoveMovieFromHistory(ctx context.Context, id int64) error {
	query := `UPDATE movies SET watched = 0, watched_at = NULL, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// SetMovieRating writes the optimistic rating. Rating 0 clears it.
func (db *DB) SetMovieRating(ctx context.Context, id int64, rating int) error {
	query := `UPDATE movies SET user_rating = ?, rated_at = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, rating, now, now, id)
	return err
}

// SetMovieWatchlist writes the optimistic watchlist flag.
func (db *DB) SetMovieWatchlist(ctx context.Context, id int64, inWatchlist bool) error {
	query := `UPDATE movies SET in_watchlist = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, inWatchlist, time.Now(), id)
	return err
}

// SetMovieCollected writes the optimistic collection flag.
func (db *DB) SetMovieCollected(ctx context.Context, id int64, inCollection bool) error {
	query := `UPDATE movies SET in_collection = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, inCollection, time.Now(), id)
	return err
}

// ApplyRemoteMovieRating writes a remotely observed rating without flagging
// the row for upload. Rows with a pending local edit keep theirs.
func (db *DB) ApplyRemoteMovieRating(ctx context.Context, id int64, rating int, ratedAt time.Time) error {
	query := `UPDATE movies SET user_rating = ?, rated_at = ?, last_sync = ?, updated_at = ?
              WHERE id = ? AND needs_sync = 0`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, rating, ratedAt, now, now, id)
	return err
}

// BatchSetMoviesWatchlisted reconciles watchlist flags from remote membership
// inside one transaction. Rows with a pending local edit keep their flag.
func (db *DB) BatchSetMoviesWatchlisted(ctx context.Context, ids []int64) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE movies SET in_watchlist = 0, updated_at = ? WHERE in_watchlist = 1 AND needs_sync = 0`,
			now); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE movies SET in_watchlist = 1, last_sync = ?, updated_at = ? WHERE id = ? AND needs_sync = 0`,
				now, now, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// CheckinMovie marks the movie as being watched right now.
func (db *DB) CheckinMovie(ctx context.Context, id int64, startedAt, expiresAt time.Time) error {
	query := `UPDATE movies SET checked_in = 1, started_at = ?, expires_at = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, startedAt, expiresAt, time.Now(), id)
	return err
}

// CancelMovieCheckins clears every active movie checkin.
func (db *DB) CancelMovieCheckins(ctx context.Context) error {
	query := `UPDATE movies SET checked_in = 0, started_at = NULL, expires_at = NULL, updated_at = ? WHERE checked_in = 1`
	_, err := db.ExecContext(ctx, query, time.Now())
	return err
}

// MarkMovieSynced clears the needs_sync flag after a successful resync.
func (db *DB) MarkMovieSynced(ctx context.Context, id int64) error {
	query := `UPDATE movies SET needs_sync = 0, last_sync = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, now, now, id)
	return err
}

// UpdateMovieImages stores fresh image paths resolved from the metadata provider.
func (db *DB) UpdateMovieImages(ctx context.Context, id int64, poster, backdrop string) error {
	query := `UPDATE movies SET poster_path = ?, backdrop_path = ?, images_updated_at = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, poster, backdrop, now, now, id)
	return err
}

// ClearMovieImages drops cached image paths so the next resolve refetches them.
func (db *DB) ClearMovieImages(ctx context.Context, id int64) error {
	query := `UPDATE movies SET poster_path = '', backdrop_path = '', images_updated_at = NULL, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// GetWatchedMovies returns watched movies for export, newest first.
func (db *DB) GetWatchedMovies(ctx context.Context) ([]models.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE watched = 1 ORDER BY watched_at DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get watched movies: %w", err)
	}
	defer rows.Close()

	var movies []models.Movie
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, *movie)
	}
	return movies, rows.Err()
}
