package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store on a Redis server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to url (redis://...) and pings it.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreFromClient(ctx, redis.NewClient(opts), prefix)
}

func NewRedisStoreFromClient(ctx context.Context, client *redis.Client, prefix string) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Client exposes the connection for components sharing it.
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(key)).Result()
	return n > 0, err
}

func (s *RedisStore) AppendToOrderedSet(ctx context.Context, key string, score float64, member string) error {
	return s.client.ZAdd(ctx, s.key(key), &redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) RangeReverse(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.ZRevRange(ctx, s.key(key), start, stop).Result()
}

func (s *RedisStore) Cardinality(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, s.key(key)).Result()
}

func (s *RedisStore) RemoveMember(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.ZRem(ctx, s.key(key), member).Result()
	return n > 0, err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
