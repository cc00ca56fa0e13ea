package models

import "time"

// Episode is a local mirror row of a remote episode.
type Episode struct {
	ID           int64      `json:"id"`
	ShowID       int64      `json:"show_id"`
	TraktID      *int64     `json:"trakt_id"`
	Season       int        `json:"season"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Watched      bool       `json:"watched"`
	WatchedAt    *time.Time `json:"watched_at"`
	InCollection bool       `json:"in_collection"`
	CollectedAt  *time.Time `json:"collected_at"`
	InWatchlist  bool       `json:"in_watchlist"`
	UserRating   int        `json:"user_rating"`
	RatedAt      *time.Time `json:"rated_at"`
	CheckedIn    bool       `json:"checked_in"`
	StartedAt    *time.Time `json:"started_at"`
	ExpiresAt    *time.Time `json:"expires_at"`
	NeedsSync    bool       `json:"needs_sync"`
	LastSync     *time.Time `json:"last_sync"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
