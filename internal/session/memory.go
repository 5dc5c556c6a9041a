package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type scored struct {
	member string
	score  float64
}

// MemoryStore is a process-local Store. Expired keys are invisible to
// readers immediately and reclaimed by the janitor.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]memEntry
	sets     map[string]map[string]float64
	now      func() time.Time
	onExpire func(key string)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		sets:    make(map[string]map[string]float64),
		now:     time.Now,
	}
}

// SetExpireHook registers a callback run by the janitor for each key it
// reclaims.
func (s *MemoryStore) SetExpireHook(hook func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		return !e.expired(s.now()), nil
	}
	if _, ok := s.sets[key]; ok {
		delete(s.sets, key)
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) AppendToOrderedSet(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]float64)
		s.sets[key] = set
	}
	set[member] = score
	return nil
}

func (s *MemoryStore) RangeReverse(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	set := s.sets[key]
	items := make([]scored, 0, len(set))
	for m, sc := range set {
		items = append(items, scored{member: m, score: sc})
	}
	s.mu.Unlock()

	// Ties break on member descending, matching ZREVRANGE.
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].member > items[j].member
	})
	n := int64(len(items))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []string{}, nil
	}
	out := make([]string, 0, stop-start+1)
	for _, it := range items[start : stop+1] {
		out = append(out, it.member)
	}
	return out, nil
}

func (s *MemoryStore) Cardinality(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.sets[key])), nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return false, nil
	}
	if _, ok := set[member]; !ok {
		return false, nil
	}
	delete(set, member)
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return true, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

// Len returns the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// StartJanitor reclaims expired keys every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reclaim()
			}
		}
	}()
}

func (s *MemoryStore) reclaim() {
	s.mu.Lock()
	now := s.now()
	var gone []string
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			gone = append(gone, k)
		}
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook == nil {
		return
	}
	for _, k := range gone {
		hook(k)
	}
}
