package database

import (
	"context"
	"fmt"
	"time"

	"showsync/internal/models"
)

// AddListItem records list membership optimistically.
func (db *DB) AddListItem(ctx context.Context, item *models.ListItem) error {
	query := `INSERT INTO list_items (list_trakt_id, item_type, item_id, needs_sync, created_at, updated_at)
              VALUES (?, ?, ?, 1, ?, ?)
              ON CONFLICT(list_trakt_id, item_type, item_id) DO UPDATE SET updated_at = excluded.updated_at`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, item.ListTraktID, item.ItemType, item.ItemID, now, now)
	if err != nil {
		return fmt.Errorf("failed to add list item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	return nil
}

// RemoveListItem drops list membership.
func (db *DB) RemoveListItem(ctx context.Context, listTraktID int64, itemType string, itemID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM list_items WHERE list_trakt_id = ? AND item_type = ? AND item_id = ?`,
		listTraktID, itemType, itemID)
	return err
}

// MarkListItemSynced clears the needs_sync flag after the remote accepted
// the membership.
func (db *DB) MarkListItemSynced(ctx context.Context, listTraktID int64, itemType string, itemID int64) error {
	query := `UPDATE list_items SET needs_sync = 0, last_sync = ?, updated_at = ?
              WHERE list_trakt_id = ? AND item_type = ? AND item_id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, now, now, listTraktID, itemType, itemID)
	return err
}

// GetListItems returns the members of a list.
func (db *DB) GetListItems(ctx context.Context, listTraktID int64) ([]models.ListItem, error) {
	query := `SELECT id, list_trakt_id, item_type, item_id, needs_sync, last_sync, created_at, updated_at
              FROM list_items WHERE list_trakt_id = ? ORDER BY id`
	rows, err := db.QueryContext(ctx, query, listTraktID)
	if err != nil {
		return nil, fmt.Errorf("failed to get list items: %w", err)
	}
	defer rows.Close()

	var items []models.ListItem
	for rows.Next() {
		var item models.ListItem
		if err := rows.Scan(&item.ID, &item.ListTraktID, &item.ItemType, &item.ItemID,
			&item.NeedsSync, &item.LastSync, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
