package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialize writers; readers share the same connection pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS shows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            trakt_id INTEGER UNIQUE,
            tmdb_id INTEGER,
            title TEXT NOT NULL,
            overview TEXT NOT NULL DEFAULT '',
            runtime INTEGER NOT NULL DEFAULT 0,
            user_rating INTEGER NOT NULL DEFAULT 0,
            rated_at DATETIME,
            in_watchlist BOOLEAN NOT NULL DEFAULT 0,
            in_collection BOOLEAN NOT NULL DEFAULT 0,
            watched_count INTEGER NOT NULL DEFAULT 0,
            episode_count INTEGER NOT NULL DEFAULT 0,
            poster_path TEXT NOT NULL DEFAULT '',
            backdrop_path TEXT NOT NULL DEFAULT '',
            images_updated_at DATETIME,
            needs_sync BOOLEAN NOT NULL DEFAULT 0,
            last_sync DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS episodes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            show_id INTEGER NOT NULL,
            trakt_id INTEGER UNIQUE,
            season INTEGER NOT NULL,
            number INTEGER NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            watched BOOLEAN NOT NULL DEFAULT 0,
            watched_at DATETIME,
            in_collection BOOLEAN NOT NULL DEFAULT 0,
            collected_at DATETIME,
            in_watchlist BOOLEAN NOT NULL DEFAULT 0,
            user_rating INTEGER NOT NULL DEFAULT 0,
            rated_at DATETIME,
            checked_in BOOLEAN NOT NULL DEFAULT 0,
            started_at DATETIME,
            expires_at DATETIME,
            needs_sync BOOLEAN NOT NULL DEFAULT 0,
            last_sync DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (show_id) REFERENCES shows(id)
        )`,

		`CREATE TABLE IF NOT EXISTS movies (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            trakt_id INTEGER UNIQUE,
            tmdb_id INTEGER,
            title TEXT NOT NULL,
            overview TEXT NOT NULL DEFAULT '',
            runtime INTEGER NOT NULL DEFAULT 0,
            watched BOOLEAN NOT NULL DEFAULT 0,
            watched_at DATETIME,
            in_watchlist BOOLEAN NOT NULL DEFAULT 0,
            in_collection BOOLEAN NOT NULL DEFAULT 0,
            user_rating INTEGER NOT NULL DEFAULT 0,
            rated_at DATETIME,
            checked_in BOOLEAN NOT NULL DEFAULT 0,
            started_at DATETIME,
            expires_at DATETIME,
            poster_path TEXT NOT NULL DEFAULT '',
            backdrop_path TEXT NOT NULL DEFAULT '',
            images_updated_at DATETIME,
            needs_sync BOOLEAN NOT NULL DEFAULT 0,
            last_sync DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS comments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            remote_id INTEGER,
            item_type TEXT NOT NULL,
            item_id INTEGER NOT NULL,
            text TEXT NOT NULL,
            spoiler BOOLEAN NOT NULL DEFAULT 0,
            deleted BOOLEAN NOT NULL DEFAULT 0,
            needs_sync BOOLEAN NOT NULL DEFAULT 1,
            last_sync DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS job_queue (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT UNIQUE NOT NULL,
            kind TEXT NOT NULL,
            entity_type TEXT NOT NULL,
            entity_id INTEGER NOT NULL,
            payload TEXT NOT NULL DEFAULT '{}',
            status TEXT NOT NULL DEFAULT 'pending',
            attempts INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE TABLE IF NOT EXISTS list_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            list_trakt_id INTEGER NOT NULL,
            item_type TEXT NOT NULL,
            item_id INTEGER NOT NULL,
            needs_sync BOOLEAN NOT NULL DEFAULT 1,
            last_sync DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(list_trakt_id, item_type, item_id)
        )`,

		`CREATE TABLE IF NOT EXISTS sync_points (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            data TEXT NOT NULL,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_episodes_show_id ON episodes(show_id)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_watched ON episodes(watched)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_checked_in ON episodes(checked_in)`,
		`CREATE INDEX IF NOT EXISTS idx_movies_checked_in ON movies(checked_in)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_item ON comments(item_type, item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_job_queue_status ON job_queue(status)`,
		`CREATE INDEX IF NOT EXISTS idx_job_queue_entity ON job_queue(entity_type, entity_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// ExecContext runs a statement against the underlying database.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query against the underlying database.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query against the underlying database.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// WithTx runs fn inside a transaction, rolling back on error.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *DB) Close() error {
	return db.db.Close()
}
