package directory

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store with TTL expiry; the in-tree stand-in for
// the real directory in tests and single-host setups.
type MemStore struct {
	mu sync.Mutex
	m  map[string]memEntry
}

type memEntry struct {
	value    []byte
	deadline time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		m: make(map[string]memEntry),
	}
}

func (s *MemStore) Put(ctx context.Context, key, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[string(key)] = memEntry{
		value:    append([]byte(nil), value...),
		deadline: time.Now().Add(ttl),
	}

	return nil
}

func (s *MemStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[string(key)]
	if !ok {
		return nil, false, nil
	}

	if time.Now().After(e.deadline) {
		delete(s.m, string(key))
		return nil, false, nil
	}

	return append([]byte(nil), e.value...), true, nil
}

func (s *MemStore) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, string(key))

	return nil
}

// Len reports how many live entries the store holds.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for k, e := range s.m {
		if now.After(e.deadline) {
			delete(s.m, k)
			continue
		}
		n++
	}

	return n
}

var _ Store = (*MemStore)(nil)
