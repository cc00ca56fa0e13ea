package models

import "time"

// Show is a local mirror row of a remote show.
type Show struct {
	ID              int64      `json:"id"`
	TraktID         *int64     `json:"trakt_id"`
	TmdbID          *int64     `json:"tmdb_id"`
	Title           string     `json:"title"`
	Overview        string     `json:"overview"`
	Runtime         int        `json:"runtime"`
	UserRating      int        `json:"user_rating"`
	RatedAt         *time.Time `json:"rated_at"`
	InWatchlist     bool       `json:"in_watchlist"`
	InCollection    bool       `json:"in_collection"`
	WatchedCount    int        `json:"watched_count"`
	EpisodeCount    int        `json:"episode_count"`
	PosterPath      string     `json:"poster_path"`
	BackdropPath    string     `json:"backdrop_path"`
	ImagesUpdatedAt *time.Time `json:"images_updated_at"`
	NeedsSync       bool       `json:"needs_sync"`
	LastSync        *time.Time `json:"last_sync"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasEpisodeData reports whether any episodes were ever synced for the show.
func (s *Show) HasEpisodeData() bool {
	return s.EpisodeCount > 0
}
