package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-process runs.
// It honors the same atomicity contract via a single mutex.
type MemoryStore struct {
	mu    sync.Mutex
	zsets map[string]map[string]float64
	sets  map[string]map[string]struct{}
	kv    map[string]memoryValue
	now   func() time.Time
}

type memoryValue struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		zsets: make(map[string]map[string]float64),
		sets:  make(map[string]map[string]struct{}),
		kv:    make(map[string]memoryValue),
		now:   time.Now,
	}
}

// ZAdd implements Store.
func (s *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

// ZPopMax implements Store.
func (s *MemoryStore) ZPopMax(_ context.Context, key string) (string, float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z := s.zsets[key]
	if len(z) == 0 {
		return "", 0, false, nil
	}

	members := make([]string, 0, len(z))
	for m := range z {
		members = append(members, m)
	}
	// Highest score wins; ties broken lexicographically for determinism.
	sort.Slice(members, func(i, j int) bool {
		if z[members[i]] != z[members[j]] {
			return z[members[i]] > z[members[j]]
		}
		return members[i] < members[j]
	})

	top := members[0]
	score := z[top]
	delete(z, top)
	return top, score, true, nil
}

// ZRem implements Store.
func (s *MemoryStore) ZRem(_ context.Context, key string, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zsets[key], member)
	return nil
}

// ZCard implements Store.
func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.zsets[key])), nil
}

// SAdd implements Store.
func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

// SRem implements Store.
func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[key]
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

// SCard implements Store.
func (s *MemoryStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.sets[key])), nil
}

// SMembers implements Store.
func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := memoryValue{value: value}
	if ttl > 0 {
		v.expiresAt = s.now().Add(ttl)
	}
	s.kv[key] = v
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.kv[key]
	if !ok {
		return "", false, nil
	}
	if !v.expiresAt.IsZero() && s.now().After(v.expiresAt) {
		delete(s.kv, key)
		return "", false, nil
	}
	return v.value, true, nil
}

// Del implements Store.
func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
