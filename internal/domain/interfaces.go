package domain

import (
	"context"

	"showsync/internal/models"
)

// SyncPointRepository stores the activity checkpoints the resync poller
// compares remote timestamps against.
type SyncPointRepository interface {
	GetSyncPoints(ctx context.Context) (*models.SyncPoints, error)
	SetSyncPoints(ctx context.Context, points *models.SyncPoints) error
	ClearSyncPoints(ctx context.Context) error
}

// EventPublisher decouples producers from the in-process event bus.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
