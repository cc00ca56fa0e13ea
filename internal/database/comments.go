package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"showsync/internal/models"
)

const commentColumns = `id, remote_id, item_type, item_id, text, spoiler, deleted,
        needs_sync, last_sync, created_at, updated_at`

func scanComment(row interface{ Scan(...any) error }) (*models.Comment, error) {
	var c models.Comment
	err := row.Scan(
		&c.ID,
		&c.RemoteID,
		&c.ItemType,
		&c.ItemID,
		&c.Text,
		&c.Spoiler,
		&c.Deleted,
		&c.NeedsSync,
		&c.LastSync,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateComment inserts a locally authored comment and fills in its local id.
func (db *DB) CreateComment(ctx context.Context, comment *models.Comment) error {
	query := `INSERT INTO comments (remote_id, item_type, item_id, text, spoiler, needs_sync, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, 1, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		comment.RemoteID, comment.ItemType, comment.ItemID, comment.Text, comment.Spoiler, now, now)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	comment.ID = id
	comment.CreatedAt = now
	comment.UpdatedAt = now
	return nil
}

// GetComment returns a comment by local id.
func (db *DB) GetComment(ctx context.Context, id int64) (*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = ?`
	return scanComment(db.QueryRowContext(ctx, query, id))
}

// GetCommentByRemoteID returns the local comment matching a remote id, or nil.
func (db *DB) GetCommentByRemoteID(ctx context.Context, remoteID int64) (*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE remote_id = ?`
	comment, err := scanComment(db.QueryRowContext(ctx, query, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return comment, err
}

// ApplyRemoteComment overwrites text and spoiler from remote truth and
// clears needs_sync.
func (db *DB) ApplyRemoteComment(ctx context.Context, id int64, text string, spoiler bool) error {
	query := `UPDATE comments SET text = ?, spoiler = ?, needs_sync = 0, last_sync = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, text, spoiler, now, now, id)
	return err
}

// SetCommentRemoteID stores the remote-assigned id after the create succeeds.
func (db *DB) SetCommentRemoteID(ctx context.Context, id, remoteID int64) error {
	query := `UPDATE comments SET remote_id = ?, needs_sync = 0, last_sync = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, remoteID, now, now, id)
	return err
}

// MarkCommentSynced clears the needs_sync flag after the remote accepted an
// edit.
func (db *DB) MarkCommentSynced(ctx context.Context, id int64) error {
	query := `UPDATE comments SET needs_sync = 0, last_sync = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, now, now, id)
	return err
}

// UpdateCommentText writes the optimistic new text.
func (db *DB) UpdateCommentText(ctx context.Context, id int64, text string, spoiler bool) error {
	query := `UPDATE comments SET text = ?, spoiler = ?, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, text, spoiler, time.Now(), id)
	return err
}

// MarkCommentDeleted hides the comment locally until the remote delete succeeds.
func (db *DB) MarkCommentDeleted(ctx context.Context, id int64) error {
	query := `UPDATE comments SET deleted = 1, needs_sync = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// DeleteComment removes the row once the remote delete is confirmed.
func (db *DB) DeleteComment(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	return err
}

// HasPendingComment reports whether an identical unsynced comment already
// exists for the item. Comment creation is not idempotent remotely, so
// duplicates are suppressed before enqueue.
func (db *DB) HasPendingComment(ctx context.Context, itemType string, itemID int64, text string) (bool, error) {
	query := `SELECT COUNT(*) FROM comments
              WHERE item_type = ? AND item_id = ? AND text = ? AND remote_id IS NULL AND deleted = 0`
	var count int
	if err := db.QueryRowContext(ctx, query, itemType, itemID, text).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check pending comment: %w", err)
	}
	return count > 0, nil
}
