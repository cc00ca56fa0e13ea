package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/domain"
	"showsync/internal/models"
)

const reprobeInterval = time.Minute

// FailoverSyncPointRepository prefers the primary store and falls back to
// the secondary when the primary errors. The primary is probed again after a
// minute. Callers race on the down state, so both fields are atomics.
type FailoverSyncPointRepository struct {
	primary   domain.SyncPointRepository
	fallback  domain.SyncPointRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos of the last failed primary call
}

func NewFailoverSyncPointRepository(primary, fallback domain.SyncPointRepository, logger *zerolog.Logger) *FailoverSyncPointRepository {
	return &FailoverSyncPointRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSyncPointRepository) GetSyncPoints(ctx context.Context) (*models.SyncPoints, error) {
	if !r.isDown.Load() {
		points, err := r.primary.GetSyncPoints(ctx)
		if err == nil {
			return points, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		points, err := r.primary.GetSyncPoints(ctx)
		if err == nil {
			r.isDown.Store(false)
			return points, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetSyncPoints(ctx)
}

func (r *FailoverSyncPointRepository) SetSyncPoints(ctx context.Context, points *models.SyncPoints) error {
	if !r.isDown.Load() {
		err := r.primary.SetSyncPoints(ctx, points)
		if err == nil {
			// Mirror into the fallback so a later failover starts warm.
			_ = r.fallback.SetSyncPoints(ctx, points)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetSyncPoints(ctx, points)
}

func (r *FailoverSyncPointRepository) ClearSyncPoints(ctx context.Context) error {
	if !r.isDown.Load() {
		err := r.primary.ClearSyncPoints(ctx)
		if err == nil {
			_ = r.fallback.ClearSyncPoints(ctx)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearSyncPoints(ctx)
}

func (r *FailoverSyncPointRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary sync point repository failed, falling back to secondary store")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverSyncPointRepository) shouldProbe() bool {
	if !r.isDown.Load() {
		return false
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > reprobeInterval
}
