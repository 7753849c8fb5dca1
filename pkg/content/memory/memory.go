package memory

import (
	"context"
	"sync"

	"github.com/marmos91/fragments/pkg/content"
)

// MemoryContentStore implements ContentStore using in-memory storage.
//
// This implementation stores all content in memory using a map. It's designed for:
//   - Testing and development
//   - Small-scale or ephemeral deployments
//
// Characteristics:
//   - Fast: All operations are memory-speed
//   - Volatile: Data lost on restart
//   - Memory-bound: Limited by available RAM
//   - Thread-safe: Protected by RWMutex
//
// Copying data on read/write prevents data races with caller-owned buffers.
type MemoryContentStore struct {
	// data maps ownerID -> id -> payload
	data map[string]map[string][]byte

	closed bool

	// mu protects concurrent access to data map
	mu sync.RWMutex
}

// NewMemoryContentStore creates a new, empty in-memory content store.
//
// Returns an error only if ctx is already cancelled.
func NewMemoryContentStore(ctx context.Context) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryContentStore{
		data: make(map[string]map[string][]byte),
	}, nil
}

// Write stores a copy of data under (ownerID, id).
func (s *MemoryContentStore) Write(ctx context.Context, ownerID, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return err
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return content.ErrStoreClosed
	}

	owned, ok := s.data[ownerID]
	if !ok {
		owned = make(map[string][]byte)
		s.data[ownerID] = owned
	}
	owned[id] = dataCopy
	return nil
}

// Read returns a copy of the payload stored under (ownerID, id).
func (s *MemoryContentStore) Read(ctx context.Context, ownerID, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, content.ErrStoreClosed
	}

	data, ok := s.data[ownerID][id]
	if !ok {
		return nil, false, nil
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	return dataCopy, true, nil
}

// Delete removes the payload under (ownerID, id). Absent keys are ignored.
func (s *MemoryContentStore) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return content.ErrStoreClosed
	}

	owned, ok := s.data[ownerID]
	if !ok {
		return nil
	}
	delete(owned, id)
	if len(owned) == 0 {
		delete(s.data, ownerID)
	}
	return nil
}

// Close drops all content and marks the store closed.
func (s *MemoryContentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.data = nil
	return nil
}

// Len returns the number of payloads currently stored.
func (s *MemoryContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, owned := range s.data {
		n += len(owned)
	}
	return n
}

// ListAllContent returns the key of every stored payload.
func (s *MemoryContentStore) ListAllContent(ctx context.Context) ([]content.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, content.ErrStoreClosed
	}

	keys := make([]content.Key, 0, len(s.data))
	for ownerID, owned := range s.data {
		for id := range owned {
			keys = append(keys, content.Key{OwnerID: ownerID, ID: id})
		}
	}
	return keys, nil
}
