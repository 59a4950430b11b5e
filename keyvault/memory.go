package keyvault

import (
	"context"
	"sync"

	"github.com/certvault/custody-backend/interfaces"
)

// MemoryStore is an in-memory KeyStore for tests and single-process setups.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryStore creates an empty in-memory key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

// Get returns the sealed key or ErrKeyMissing.
func (s *MemoryStore) Get(ctx context.Context, identityID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, ok := s.keys[identityID]
	if !ok {
		return "", interfaces.ErrKeyMissing
	}
	return sealed, nil
}

// PutIfAbsent stores the sealed key unless one is already present. The
// first writer wins; losing the race is not an error.
func (s *MemoryStore) PutIfAbsent(ctx context.Context, identityID string, sealed string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[identityID]; ok {
		return nil
	}
	s.keys[identityID] = sealed
	return nil
}
