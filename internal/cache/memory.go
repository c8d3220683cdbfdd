package cache

import (
	"context"
	"sync"
)

type memoryKey struct {
	namespace, endpoint, key string
}

// MemoryStore keeps entries and counters in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[memoryKey]Entry
	counters map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[memoryKey]Entry),
		counters: make(map[string]int),
	}
}

func (s *MemoryStore) Get(ctx context.Context, namespace, endpoint, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[memoryKey{namespace, endpoint, key}]
	if !ok {
		return nil, nil
	}
	e.Payload = append([]byte(nil), e.Payload...)
	return &e, nil
}

func (s *MemoryStore) Put(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Payload = append([]byte(nil), entry.Payload...)
	s.entries[memoryKey{entry.Namespace, entry.Endpoint, entry.Key}] = entry
	return nil
}

func (s *MemoryStore) CheckAndIncrement(ctx context.Context, day string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counters[day] >= limit {
		return false, nil
	}
	s.counters[day]++
	return true, nil
}

func (s *MemoryStore) Count(ctx context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[day], nil
}

func (s *MemoryStore) Clear(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.entries {
		if namespace == "" || k.namespace == namespace {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Entries:  map[string]int64{NamespaceAPI: 0, NamespaceLLM: 0},
		Location: "memory",
	}
	for k, e := range s.entries {
		st.Entries[k.namespace]++
		st.SizeBytes += int64(len(e.Payload))
	}
	return st, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
