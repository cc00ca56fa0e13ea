package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"showsync/internal/config"
	"showsync/internal/models"
)

const syncPointsKey = "showsync:sync_points"

type RedisSyncPointRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// NewRedisSyncPointRepository builds a checkpoint store on Redis. ttl 0
// keeps checkpoints forever.
func NewRedisSyncPointRepository(client *redis.Client, ttl time.Duration) *RedisSyncPointRepository {
	return &RedisSyncPointRepository{client: client, ttl: ttl}
}

func (r *RedisSyncPointRepository) GetSyncPoints(ctx context.Context) (*models.SyncPoints, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, syncPointsKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync points from redis: %w", err)
	}

	var points models.SyncPoints
	if err := json.Unmarshal([]byte(val), &points); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync points: %w", err)
	}
	return &points, nil
}

func (r *RedisSyncPointRepository) SetSyncPoints(ctx context.Context, points *models.SyncPoints) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal sync points: %w", err)
	}
	if err := r.client.Set(ctx, syncPointsKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set sync points in redis: %w", err)
	}
	return nil
}

func (r *RedisSyncPointRepository) ClearSyncPoints(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, syncPointsKey).Err(); err != nil {
		return fmt.Errorf("failed to delete sync points from redis: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
