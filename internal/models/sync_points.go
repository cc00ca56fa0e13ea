package models

import "time"

// SyncPoints stores the last remote activity timestamps acted upon. A
// category with a newer remote timestamp needs a resync.
type SyncPoints struct {
	All                  time.Time `json:"all"`
	EpisodeWatchedAt     time.Time `json:"episode_watched_at"`
	EpisodeCollectedAt   time.Time `json:"episode_collected_at"`
	EpisodeRatedAt       time.Time `json:"episode_rated_at"`
	EpisodeWatchlistedAt time.Time `json:"episode_watchlisted_at"`
	ShowRatedAt          time.Time `json:"show_rated_at"`
	ShowCollectedAt      time.Time `json:"show_collected_at"`
	ShowWatchlistedAt    time.Time `json:"show_watchlisted_at"`
	MovieWatchedAt       time.Time `json:"movie_watched_at"`
	MovieCollectedAt     time.Time `json:"movie_collected_at"`
	MovieRatedAt         time.Time `json:"movie_rated_at"`
	MovieWatchlistedAt   time.Time `json:"movie_watchlisted_at"`
	CommentLikedAt       time.Time `json:"comment_liked_at"`
	CheckedAt            time.Time `json:"checked_at"`
}
