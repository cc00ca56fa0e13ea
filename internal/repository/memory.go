package repository

import (
	"context"
	"sync"

	"showsync/internal/models"
)

type MemorySyncPointRepository struct {
	mu     sync.RWMutex
	points *models.SyncPoints
}

func NewMemorySyncPointRepository() *MemorySyncPointRepository {
	return &MemorySyncPointRepository{}
}

func (r *MemorySyncPointRepository) GetSyncPoints(ctx context.Context) (*models.SyncPoints, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.points == nil {
		return nil, nil
	}
	copied := *r.points
	return &copied, nil
}

func (r *MemorySyncPointRepository) SetSyncPoints(ctx context.Context, points *models.SyncPoints) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *points
	r.points = &copied
	return nil
}

func (r *MemorySyncPointRepository) ClearSyncPoints(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = nil
	return nil
}
