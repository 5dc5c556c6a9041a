package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the Store behaviour shared by every backend. advance
// moves the backend's clock forward.
func storeContract(t *testing.T, s Store, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Set(ctx, "k", []byte("v1"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	advance(2 * time.Minute)
	_, err = s.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotFound), "expired key should be gone")

	require.NoError(t, s.Set(ctx, "k2", []byte("x"), 0))
	ok, err := s.Delete(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, ok)

	for i, m := range []string{"a", "b", "c"} {
		require.NoError(t, s.AppendToOrderedSet(ctx, "timeline", float64(i+1), m))
	}
	members, err := s.RangeReverse(ctx, "timeline", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, members)
	members, err = s.RangeReverse(ctx, "timeline", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, members)

	n, err := s.Cardinality(ctx, "timeline")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	removed, err := s.RemoveMember(ctx, "timeline", "b")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveMember(ctx, "timeline", "b")
	require.NoError(t, err)
	assert.False(t, removed)

	members, err = s.RangeReverse(ctx, "empty", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, members)
	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStoreContract(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	storeContract(t, s, func(d time.Duration) { now = now.Add(d) })
}

func TestRedisStoreContract(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), "postcraft:")
	require.NoError(t, err)
	defer s.Close()

	storeContract(t, s, mr.FastForward)
	assert.True(t, mr.Exists("postcraft:timeline"))
}

func TestNewRedisStoreFailsFast(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "redis://127.0.0.1:1", "")
	assert.Error(t, err)
	_, err = NewRedisStore(context.Background(), "not a url", "")
	assert.Error(t, err)
}

func TestMemoryStoreJanitorReclaimsExpired(t *testing.T) {
	s := NewMemoryStore()
	expired := make(chan string, 4)
	s.SetExpireHook(func(key string) { expired <- key })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Set(ctx, "session:a", []byte("{}"), 10*time.Millisecond))
	require.NoError(t, s.Set(ctx, "session:b", []byte("{}"), time.Hour))
	s.StartJanitor(ctx, 5*time.Millisecond)

	select {
	case key := <-expired:
		assert.Equal(t, "session:a", key)
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not reclaim expired key")
	}
	assert.Equal(t, 1, s.Len())
}
