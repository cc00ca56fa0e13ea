package models

import "time"

// ListItem is one membership row of a remote custom list.
type ListItem struct {
	ID          int64      `json:"id"`
	ListTraktID int64      `json:"list_trakt_id"`
	ItemType    string     `json:"item_type"`
	ItemID      int64      `json:"item_id"`
	NeedsSync   bool       `json:"needs_sync"`
	LastSync    *time.Time `json:"last_sync"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
