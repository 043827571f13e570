package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-converter/config"
)

const keyPrefix = "docconv:job:"

// RedisRecorder stores records as JSON strings that expire after ttl.
type RedisRecorder struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRecorder connects and pings the server.
func NewRedisRecorder(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*RedisRecorder, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisRecorder{client: client, ttl: ttl}, nil
}

func Key(jobID string) string {
	return keyPrefix + jobID
}

func (r *RedisRecorder) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := r.client.Set(ctx, Key(rec.JobID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (r *RedisRecorder) Get(ctx context.Context, jobID string) (*Record, error) {
	data, err := r.client.Get(ctx, Key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record from redis: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
