package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"showsync/internal/models"
)

// Job kinds understood by the manager. Mutation kinds push local changes to
// the remote service; sync kinds pull remote truth back down.
const (
	KindRate          = "rate"
	KindHistoryAdd    = "history_add"
	KindHistoryRemove = "history_remove"
	KindWatchlistSet  = "watchlist_set"
	KindCollectionSet = "collection_set"
	KindCommentAdd    = "comment_add"
	KindCommentUpdate = "comment_update"
	KindCommentDelete = "comment_delete"
	KindCheckin       = "checkin"
	KindCheckinCancel = "checkin_cancel"
	KindListAdd       = "list_add"
	KindListRemove    = "list_remove"
	KindSyncWatched   = "sync_watched_shows"
	KindSyncWatching  = "sync_watching"
	KindSyncShow      = "sync_show"
	KindSyncRatings   = "sync_ratings"
	KindSyncWatchlist = "sync_watchlist"
	KindSyncComments  = "sync_comments"
	KindRefreshImages = "refresh_images"
)

// RatePayload carries a rating mutation. Rating 0 clears.
type RatePayload struct {
	Rating  int       `json:"rating"`
	RatedAt time.Time `json:"rated_at"`
}

// HistoryPayload carries a history-add mutation.
type HistoryPayload struct {
	WatchedAt time.Time `json:"watched_at"`
}

// FlagPayload carries a watchlist or collection toggle.
type FlagPayload struct {
	Value bool       `json:"value"`
	At    *time.Time `json:"at,omitempty"`
}

// ListPayload names the custom list a membership mutation targets. The
// job's entity key is the item itself so list edits serialize per item.
type ListPayload struct {
	ListTraktID int64 `json:"list_trakt_id"`
}

// CheckinPayload carries the local checkin window.
type CheckinPayload struct {
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewJob builds a pending job with a fresh id and the payload encoded as
// JSON. Seq is assigned on persist.
func NewJob(kind, entityType string, entityID int64, payload any) (*models.SyncJob, error) {
	encoded := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		encoded = string(raw)
	}

	return &models.SyncJob{
		ID:         uuid.NewString(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    encoded,
		Status:     models.JobStatusPending,
	}, nil
}

func decodePayload[T any](raw string) (T, error) {
	var payload T
	if raw == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
