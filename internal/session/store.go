package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get for missing or expired keys.
var ErrNotFound = errors.New("key not found")

// Store is the key-value backend for session state and the post timeline.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value and (re)starts its TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)

	AppendToOrderedSet(ctx context.Context, key string, score float64, member string) error
	// RangeReverse returns members from highest to lowest score, inclusive
	// of start and stop; stop -1 means the end.
	RangeReverse(ctx context.Context, key string, start, stop int64) ([]string, error)
	Cardinality(ctx context.Context, key string) (int64, error)
	RemoveMember(ctx context.Context, key, member string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
