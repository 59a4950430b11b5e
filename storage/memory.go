package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/certvault/custody-backend/interfaces"
)

// MemoryBackend is an in-memory storage backend used in tests and local
// development. Content ids are hex SHA-256 digests, same as the file and S3
// backends.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[interfaces.ContentID][]byte
	name string
}

// NewMemoryBackend creates an empty in-memory storage backend.
func NewMemoryBackend(name string) *MemoryBackend {
	if name == "" {
		name = "memory"
	}
	return &MemoryBackend{
		data: make(map[interfaces.ContentID][]byte),
		name: name,
	}
}

// Put stores a copy of the data and returns its content id.
func (b *MemoryBackend) Put(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	hash := sha256.Sum256(data)
	id := interfaces.ContentID(fmt.Sprintf("%x", hash))

	cp := make([]byte, len(data))
	copy(cp, data)

	b.mu.Lock()
	b.data[id] = cp
	b.mu.Unlock()

	return id, nil
}

// Get returns a copy of the stored data, or ErrContentNotFound.
func (b *MemoryBackend) Get(ctx context.Context, id interfaces.ContentID) ([]byte, error) {
	b.mu.RLock()
	data, ok := b.data[id]
	b.mu.RUnlock()

	if !ok {
		return nil, interfaces.ErrContentNotFound
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Available always reports true.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *MemoryBackend) Name() string {
	return b.name
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MemoryBackend) LocationURI() string {
	return fmt.Sprintf("memory://%s", b.name)
}

// Len reports the number of stored envelopes.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}
