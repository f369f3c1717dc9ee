package credentials

import (
	"context"
	"sync"
)

// MemoryStore é usado em testes e desenvolvimento local.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]APIKey
}

func NewMemoryStore(keys ...string) *MemoryStore {
	s := &MemoryStore{keys: make(map[string]APIKey, len(keys))}
	for _, k := range keys {
		s.keys[k] = APIKey{Value: k}
	}
	return s
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *MemoryStore) Add(_ context.Context, k APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k.Value]; ok {
		return ErrDuplicate
	}
	s.keys[k.Value] = k
	return nil
}
