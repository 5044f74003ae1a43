package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"catalog-harvester/internal/models"
)

// RedisStatusStore stores harvest status in Redis, one JSON value per session.
type RedisStatusStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStatusStore initializes a Redis-backed StatusStore.
func NewRedisStatusStore(addr, prefix string, ttl time.Duration) *RedisStatusStore {
	return NewRedisStatusStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

// NewRedisStatusStoreWithClient builds a store around an existing client.
func NewRedisStatusStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks the Redis connection.
func (s *RedisStatusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

// SetStatus writes the status record, stamping UpdatedAt.
func (s *RedisStatusStore) SetStatus(ctx context.Context, status models.HarvestStatus) error {
	status.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(status.SessionID), payload, s.ttl).Err()
}

// GetStatus reads the status record. The bool is false when the session is unknown.
func (s *RedisStatusStore) GetStatus(ctx context.Context, sessionID string) (models.HarvestStatus, bool, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.HarvestStatus{}, false, nil
		}
		return models.HarvestStatus{}, false, err
	}

	var status models.HarvestStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return models.HarvestStatus{}, false, err
	}
	return status, true, nil
}

func (s *RedisStatusStore) key(sessionID string) string {
	return s.prefix + sessionID
}
