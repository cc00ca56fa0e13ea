package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"showsync/internal/models"
)

const episodeColumns = `id, show_id, trakt_id, season, number, title, watched, watched_at,
        in_collection, collected_at, in_watchlist, user_rating, rated_at, checked_in,
        started_at, expires_at, needs_sync, last_sync, created_at, updated_at`

func scanEpisode(row interface{ Scan(...any) error }) (*models.Episode, error) {
	var e models.Episode
	err := row.Scan(
		&e.ID,
		&e.ShowID,
		&e.TraktID,
		&e.Season,
		&e.Number,
		&e.Title,
		&e.Watched,
		&e.WatchedAt,
		&e.InCollection,
		&e.CollectedAt,
		&e.InWatchlist,
		&e.UserRating,
		&e.RatedAt,
		&e.CheckedIn,
		&e.StartedAt,
		&e.ExpiresAt,
		&e.NeedsSync,
		&e.LastSync,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEpisode inserts an episode row and fills in its local id.
func (db *DB) CreateEpisode(ctx context.Context, episode *models.Episode) error {
	query := `INSERT INTO episodes (show_id, trakt_id, season, number, title, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		episode.ShowID, episode.TraktID, episode.Season, episode.Number, episode.Title, now, now)
	if err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	episode.ID = id
	episode.CreatedAt = now
	episode.UpdatedAt = now
	return nil
}

// GetEpisode returns an episode by local id.
func (db *DB) GetEpisode(ctx context.Context, id int64) (*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE id = ?`
	return scanEpisode(db.QueryRowContext(ctx, query, id))
}

// GetEpisodeByTraktID returns the local episode matching a remote id, or nil.
func (db *DB) GetEpisodeByTraktID(ctx context.Context, traktID int64) (*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE trakt_id = ?`
	episode, err := scanEpisode(db.QueryRowContext(ctx, query, traktID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return episode, err
}

// GetEpisodeID returns the local id of an episode addressed by show, season
// and number, or 0 when the episode is unknown.
func (db *DB) GetEpisodeID(ctx context.Context, showID int64, season, number int) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM episodes WHERE show_id = ? AND season = ? AND number = ?`,
		showID, season, number).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get episode id: %w", err)
	}
	return id, nil
}

// GetWatchingEpisode returns the episode with an active checkin, or nil.
func (db *DB) GetWatchingEpisode(ctx context.Context) (*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE checked_in = 1 LIMIT 1`
	episode, err := scanEpisode(db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return episode, err
}

// AddEpisodeToHistory writes the optimistic watched state.
func (db *DB) AddEpisodeToHistory(ctx context.Context, id int64, watchedAt time.Time) error {
	query := `UPDATE episodes SET watched = 1, watched_at = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, watchedAt, time.Now(), id)
	return err
}

// RemoveEpisodeFromHistory clears the optimistic watched state.
func (db *DB) RemoveEpisodeFromHistory(ctx context.Context, id int64) error {
	query := `UPDATE episodes SET watched = 0, watched_at = NULL, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// SetEpisodeRating writes the optimistic rating. Rating 0 clears it.
func (db *DB) SetEpisodeRating(ctx context.Context, id int64, rating int) error {
	query := `UPDATE episodes SET user_rating = ?, rated_at = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, rating, now, now, id)
	return err
}

// SetEpisodeCollected writes the optimistic collection flag.
func (db *DB) SetEpisodeCollected(ctx context.Context, id int64, inCollection bool, collectedAt *time.Time) error {
	query := `UPDATE episodes SET in_collection = ?, collected_at = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, inCollection, collectedAt, time.Now(), id)
	return err
}

// SetEpisodeWatchlist writes the optimistic watchlist flag.
func (db *DB) SetEpisodeWatchlist(ctx context.Context, id int64, inWatchlist bool) error {
	query := `UPDATE episodes SET in_watchlist = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, inWatchlist, time.Now(), id)
	return err
}

// ApplyRemoteEpisodeRating writes a remotely observed rating without flagging
// the row for upload. Rows with a pending local edit keep theirs.
func (db *DB) ApplyRemoteEpisodeRating(ctx context.Context, id int64, rating int, ratedAt time.Time) error {
	query := `UPDATE episodes SET user_rating = ?, rated_at = ?, last_sync = ?, updated_at = ?
              WHERE id = ? AND needs_sync = 0`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, rating, ratedAt, now, now, id)
	return err
}

// BatchSetEpisodesWatchlisted reconciles watchlist flags from remote
// membership inside one transaction. Rows with a pending local edit keep
// their flag.
func (db *DB) BatchSetEpisodesWatchlisted(ctx context.Context, ids []int64) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET in_watchlist = 0, updated_at = ? WHERE in_watchlist = 1 AND needs_sync = 0`,
			now); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE episodes SET in_watchlist = 1, last_sync = ?, updated_at = ? WHERE id = ? AND needs_sync = 0`,
				now, now, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// CheckinEpisode marks the episode as being watched right now.
func (db *DB) CheckinEpisode(ctx context.Context, id int64, startedAt, expiresAt time.Time) error {
	query := `UPDATE episodes SET checked_in = 1, started_at = ?, expires_at = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, startedAt, expiresAt, time.Now(), id)
	return err
}

// CancelEpisodeCheckins clears every active episode checkin.
func (db *DB) CancelEpisodeCheckins(ctx context.Context) error {
	query := `UPDATE episodes SET checked_in = 0, started_at = NULL, expires_at = NULL, updated_at = ? WHERE checked_in = 1`
	_, err := db.ExecContext(ctx, query, time.Now())
	return err
}

// MarkEpisodeSynced clears the needs_sync flag after a successful resync.
func (db *DB) MarkEpisodeSynced(ctx context.Context, id int64) error {
	query := `UPDATE episodes SET needs_sync = 0, last_sync = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, now, now, id)
	return err
}

// GetOlderUnwatched returns ids of unwatched episodes that aired before the
// given episode within the same show, specials excluded.
func (db *DB) GetOlderUnwatched(ctx context.Context, episodeID int64) ([]int64, error) {
	episode, err := db.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}

	query := `SELECT id FROM episodes
              WHERE show_id = ? AND watched = 0 AND season > 0
                AND ((season = ? AND number < ?) OR season < ?)
              ORDER BY season, number`
	rows, err := db.QueryContext(ctx, query, episode.ShowID, episode.Season, episode.Number, episode.Season)
	if err != nil {
		return nil, fmt.Errorf("failed to get older episodes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSeasonEpisodeIDs returns the ids of every episode in a season.
func (db *DB) GetSeasonEpisodeIDs(ctx context.Context, showID int64, season int) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id FROM episodes WHERE show_id = ? AND season = ? ORDER BY number`, showID, season)
	if err != nil {
		return nil, fmt.Errorf("failed to get season episodes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BatchSetEpisodesWatched reconciles watched flags for a whole show from
// remote truth inside one transaction.
func (db *DB) BatchSetEpisodesWatched(ctx context.Context, showID int64, watchedIDs []int64) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET watched = 0, needs_sync = 0, last_sync = ?, updated_at = ? WHERE show_id = ?`,
			now, now, showID); err != nil {
			return err
		}
		for _, id := range watchedIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE episodes SET watched = 1, updated_at = ? WHERE id = ?`, now, id); err != nil {
				return err
			}
		}
		return nil
	})
}
