package models

import "time"

// Comment is a locally authored comment on a show, episode or movie.
// RemoteID is nil until the create job succeeds and writes it back.
type Comment struct {
	ID        int64      `json:"id"`
	RemoteID  *int64     `json:"remote_id"`
	ItemType  string     `json:"item_type"`
	ItemID    int64      `json:"item_id"`
	Text      string     `json:"text"`
	Spoiler   bool       `json:"spoiler"`
	Deleted   bool       `json:"deleted"`
	NeedsSync bool       `json:"needs_sync"`
	LastSync  *time.Time `json:"last_sync"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
