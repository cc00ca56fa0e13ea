package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"showsync/internal/models"
)

// The sync_points table holds a single JSON row so the checkpoint survives
// process death even when Redis is unavailable.

func (db *DB) GetSyncPoints(ctx context.Context) (*models.SyncPoints, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT data FROM sync_points WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync points: %w", err)
	}

	var points models.SyncPoints
	if err := json.Unmarshal([]byte(data), &points); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync points: %w", err)
	}
	return &points, nil
}

func (db *DB) SetSyncPoints(ctx context.Context, points *models.SyncPoints) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal sync points: %w", err)
	}
	query := `INSERT INTO sync_points (id, data, updated_at) VALUES (1, ?, ?)
              ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query, string(data), time.Now())
	return err
}

func (db *DB) ClearSyncPoints(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sync_points WHERE id = 1`)
	return err
}
