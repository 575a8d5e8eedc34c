package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/colonycore/colony/internal/errors"
)

// RedisStore implements Store on a Redis client. Every method maps to a
// single Redis command, so the atomicity contract holds without additional
// locking.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis at the given address and verifies the
// connection with a ping.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "connecting to redis at %s", addr)
	}
	return &RedisStore{rdb: rdb}, nil
}

// ZAdd implements Store.
func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZPopMax implements Store.
func (s *RedisStore) ZPopMax(ctx context.Context, key string) (string, float64, bool, error) {
	vals, err := s.rdb.ZPopMax(ctx, key, 1).Result()
	if err != nil {
		return "", 0, false, err
	}
	if len(vals) == 0 {
		return "", 0, false, nil
	}
	member, _ := vals[0].Member.(string)
	return member, vals[0].Score, true, nil
}

// ZRem implements Store.
func (s *RedisStore) ZRem(ctx context.Context, key string, member string) error {
	return s.rdb.ZRem(ctx, key, member).Err()
}

// ZCard implements Store.
func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

// SAdd implements Store.
func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.rdb.SAdd(ctx, key, args...).Err()
}

// SRem implements Store.
func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.rdb.SRem(ctx, key, args...).Err()
}

// SCard implements Store.
func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.SCard(ctx, key).Result()
}

// SMembers implements Store.
func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, key).Result()
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Del implements Store.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
