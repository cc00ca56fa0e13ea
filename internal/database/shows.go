package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"showsync/internal/models"
)

const showColumns = `id, trakt_id, tmdb_id, title, overview, runtime, user_rating, rated_at,
        in_watchlist, in_collection, watched_count, episode_count, poster_path, backdrop_path,
        images_updated_at, needs_sync, last_sync, created_at, updated_at`

func scanShow(row interface{ Scan(...any) error }) (*models.Show, error) {
	var show models.Show
	err := row.Scan(
		&show.ID,
		&show.TraktID,
		&show.TmdbID,
		&show.Title,
		&show.Overview,
		&show.Runtime,
		&show.UserRating,
		&show.RatedAt,
		&show.InWatchlist,
		&show.InCollection,
		&show.WatchedCount,
		&show.EpisodeCount,
		&show.PosterPath,
		&show.BackdropPath,
		&show.ImagesUpdatedAt,
		&show.NeedsSync,
		&show.LastSync,
		&show.CreatedAt,
		&show.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &show, nil
}

// CreateShow inserts a show row and fills in its local id.
func (db *DB) CreateShow(ctx context.Context, show *models.Show) error {
	query := `INSERT INTO shows (trakt_id, tmdb_id, title, overview, runtime, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		show.TraktID, show.TmdbID, show.Title, show.Overview, show.Runtime, now, now)
	if err != nil {
		return fmt.Errorf("failed to create show: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	show.ID = id
	show.CreatedAt = now
	show.UpdatedAt = now
	return nil
}

// GetShow returns a show by local id.
func (db *DB) GetShow(ctx context.Context, id int64) (*models.Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE id = ?`
	return scanShow(db.QueryRowContext(ctx, query, id))
}

// GetShowByTraktID returns the local show matching a remote id, or nil.
func (db *DB) GetShowByTraktID(ctx context.Context, traktID int64) (*models.Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE trakt_id = ?`
	show, err := scanShow(db.QueryRowContext(ctx, query, traktID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return show, err
}

// GetShowTraktID returns the remote id for a show, or an error when the show
// was never synced.
func (db *DB) GetShowTraktID(ctx context.Context, id int64) (int64, error) {
	var traktID *int64
	err := db.QueryRowContext(ctx, `SELECT trakt_id FROM shows WHERE id = ?`, id).Scan(&traktID)
	if err != nil {
		return 0, fmt.Errorf("failed to get show trakt id: %w", err)
	}
	if traktID == nil {
		return 0, fmt.Errorf("show %d has no remote id", id)
	}
	return *traktID, nil
}

// SetShowWatchlist writes the optimistic watchlist flag.
func (db *DB) SetShowWatchlist(ctx context.Context, id int64, inWatchlist bool) error {
	query := `UPDATE shows SET in_watchlist = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, inWatchlist, time.Now(), id)
	return err
}

// SetShowCollected writes the optimistic collection flag.
func (db *DB) SetShowCollected(ctx context.Context, id int64, inCollection bool) error {
	query := `UPDATE shows SET in_collection = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, inCollection, time.Now(), id)
	return err
}

// SetShowRating writes the optimistic rating. Rating 0 clears it.
func (db *DB) SetShowRating(ctx context.Context, id int64, rating int) error {
	query := `UPDATE shows SET user_rating = ?, rated_at = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, rating, now, now, id)
	return err
}

// UpdateShowImages stores fresh image paths resolved from the metadata provider.
func (db *DB) UpdateShowImages(ctx context.Context, id int64, poster, backdrop string) error {
	query := `UPDATE shows SET poster_path = ?, backdrop_path = ?, images_updated_at = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, poster, backdrop, now, now, id)
	return err
}

// ClearShowImages drops cached image paths so the next resolve refetches them.
func (db *DB) ClearShowImages(ctx context.Context, id int64) error {
	query := `UPDATE shows SET poster_path = '', backdrop_path = '', images_updated_at = NULL, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// ApplyRemoteShowRating writes a remotely observed rating without flagging
// the row for upload. Rows with a pending local edit keep theirs.
func (db *DB) ApplyRemoteShowRating(ctx context.Context, id int64, rating int, ratedAt time.Time) error {
	query := `UPDATE shows SET user_rating = ?, rated_at = ?, last_sync = ?, updated_at = ?
              WHERE id = ? AND needs_sync = 0`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, rating, ratedAt, now, now, id)
	return err
}

// BatchSetShowsWatchlisted reconciles watchlist flags from remote membership
// inside one transaction. Rows with a pending local edit keep their flag.
func (db *DB) BatchSetShowsWatchlisted(ctx context.Context, ids []int64) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE shows SET in_watchlist = 0, updated_at = ? WHERE in_watchlist = 1 AND needs_sync = 0`,
			now); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE shows SET in_watchlist = 1, last_sync = ?, updated_at = ? WHERE id = ? AND needs_sync = 0`,
				now, now, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkShowSynced clears the needs_sync flag after a successful resync.
func (db *DB) MarkShowSynced(ctx context.Context, id int64) error {
	query := `UPDATE shows SET needs_sync = 0, last_sync = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, now, now, id)
	return err
}

// GetWatchedShows returns shows with at least one watched episode, for
// export.
func (db *DB) GetWatchedShows(ctx context.Context) ([]models.Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE watched_count > 0 ORDER BY title`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get watched shows: %w", err)
	}
	defer rows.Close()

	var shows []models.Show
	for rows.Next() {
		show, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		shows = append(shows, *show)
	}
	return shows, rows.Err()
}

// UpdateShowCounts recomputes the watched/episode counters from episode rows.
// The remote aggregation rules are not documented, so counts are always
// derived after a resync rather than adjusted incrementally.
func (db *DB) UpdateShowCounts(ctx context.Context, showID int64) error {
	query := `UPDATE shows SET
                watched_count = (SELECT COUNT(*) FROM episodes WHERE show_id = ? AND watched = 1),
                episode_count = (SELECT COUNT(*) FROM episodes WHERE show_id = ?),
                updated_at = ?
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query, showID, showID, time.Now(), showID)
	if err != nil {
		return fmt.Errorf("failed to update show counts: %w", err)
	}
	return nil
}
