package models

import "time"

// Movie is a local mirror row of a remote movie.
type Movie struct {
	ID              int64      `json:"id"`
	TraktID         *int64     `json:"trakt_id"`
	TmdbID          *int64     `json:"tmdb_id"`
	Title           string     `json:"title"`
	Overview        string     `json:"overview"`
	Runtime         int        `json:"runtime"`
	Watched         bool       `json:"watched"`
	WatchedAt       *time.Time `json:"watched_at"`
	InWatchlist     bool       `json:"in_watchlist"`
	InCollection    bool       `json:"in_collection"`
	UserRating      int        `json:"user_rating"`
	RatedAt         *time.Time `json:"rated_at"`
	CheckedIn       bool       `json:"checked_in"`
	StartedAt       *time.Time `json:"started_at"`
	ExpiresAt       *time.Time `json:"expires_at"`
	PosterPath      string     `json:"poster_path"`
	BackdropPath    string     `json:"backdrop_path"`
	ImagesUpdatedAt *time.Time `json:"images_updated_at"`
	NeedsSync       bool       `json:"needs_sync"`
	LastSync        *time.Time `json:"last_sync"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
