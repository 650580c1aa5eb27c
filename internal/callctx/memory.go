package callctx

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store with lazy TTL eviction.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

type memoryEntry struct {
	cc       Context
	expireAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), ttl: ttl, clock: time.Now}
}

func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Put(ctx context.Context, callID string, cc Context) error {
	if callID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[callID] = memoryEntry{cc: cc, expireAt: s.clock().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (Context, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[callID]
	if !ok {
		return Context{}, false, nil
	}
	if !e.expireAt.After(s.clock()) {
		delete(s.entries, callID)
		return Context{}, false, nil
	}
	return e.cc, true, nil
}
