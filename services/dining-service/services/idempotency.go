package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which orders a client-supplied Idempotency-Key
// produced. A key is reserved before the orders are written; Get reports a
// reserved key without order ids while that submission is still running.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]uuid.UUID, bool, error)
	Put(ctx context.Context, key string, orderIDs []uuid.UUID, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

const reservedMarker = "pending"

type RedisIdempotencyStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: "idem:orders:"}
}

// Reserve claims key with SETNX. It returns false when another submission
// already holds or completed it.
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, reservedMarker, ttl).Result()
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) ([]uuid.UUID, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(data) == reservedMarker {
		return nil, true, nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, orderIDs []uuid.UUID, ttl time.Duration) error {
	data, err := json.Marshal(orderIDs)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
