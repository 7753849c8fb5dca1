package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/fragments/pkg/metadata"
)

// MemoryMetadataStore implements metadata.MetadataStore using in-memory maps.
//
// This implementation is designed for:
//   - Testing and development
//   - Ephemeral deployments where metadata loss on restart is acceptable
//
// Characteristics:
//   - Fast: all operations are map lookups
//   - Volatile: data lost on restart
//   - Thread-safe: protected by an RWMutex
//   - Copy semantics: records are cloned on the way in and out
//
// Implemented Interfaces:
//   - metadata.MetadataStore
//   - metadata.RecordLister
type MemoryMetadataStore struct {
	// records maps ownerID -> id -> record
	records map[string]map[string]*metadata.Record

	// maxRecords caps the number of records across all owners (0 = unlimited)
	maxRecords int

	closed bool

	mu sync.RWMutex
}

// MemoryMetadataStoreConfig configures a MemoryMetadataStore.
type MemoryMetadataStoreConfig struct {
	// MaxRecords is the maximum number of records the store will hold.
	// 0 means unlimited.
	MaxRecords int `mapstructure:"max_records"`
}

// ErrCapacityExceeded is returned by Write when MaxRecords would be exceeded.
var ErrCapacityExceeded = fmt.Errorf("memory metadata store: capacity exceeded")

// NewMemoryMetadataStore creates an empty in-memory metadata store.
func NewMemoryMetadataStore(config MemoryMetadataStoreConfig) *MemoryMetadataStore {
	return &MemoryMetadataStore{
		records:    make(map[string]map[string]*metadata.Record),
		maxRecords: config.MaxRecords,
	}
}

// NewMemoryMetadataStoreWithDefaults creates an unbounded in-memory store.
func NewMemoryMetadataStoreWithDefaults() *MemoryMetadataStore {
	return NewMemoryMetadataStore(MemoryMetadataStoreConfig{})
}

// Write stores a copy of rec under (ownerID, id).
func (s *MemoryMetadataStore) Write(ctx context.Context, ownerID, id string, rec *metadata.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateKey(ownerID, id); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("write %s/%s: %w", ownerID, id, metadata.ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return metadata.ErrStoreClosed
	}

	owned, ok := s.records[ownerID]
	if !ok {
		owned = make(map[string]*metadata.Record)
		s.records[ownerID] = owned
	}

	if _, exists := owned[id]; !exists && s.maxRecords > 0 && s.countLocked() >= s.maxRecords {
		return ErrCapacityExceeded
	}

	owned[id] = rec.Clone()
	return nil
}

// Read returns a copy of the record stored under (ownerID, id).
func (s *MemoryMetadataStore) Read(ctx context.Context, ownerID, id string) (*metadata.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := metadata.ValidateKey(ownerID, id); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, metadata.ErrStoreClosed
	}

	rec, ok := s.records[ownerID][id]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

// List returns the sorted ids owned by ownerID.
func (s *MemoryMetadataStore) List(ctx context.Context, ownerID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwner(ownerID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, metadata.ErrStoreClosed
	}

	owned := s.records[ownerID]
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListRecords returns copies of every record owned by ownerID, sorted by id.
func (s *MemoryMetadataStore) ListRecords(ctx context.Context, ownerID string) ([]*metadata.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwner(ownerID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, metadata.ErrStoreClosed
	}

	owned := s.records[ownerID]
	records := make([]*metadata.Record, 0, len(owned))
	for _, rec := range owned {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Delete removes the record under (ownerID, id). Absent keys are ignored.
func (s *MemoryMetadataStore) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateKey(ownerID, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return metadata.ErrStoreClosed
	}

	owned, ok := s.records[ownerID]
	if !ok {
		return nil
	}
	delete(owned, id)
	if len(owned) == 0 {
		delete(s.records, ownerID)
	}
	return nil
}

// Close marks the store closed and drops all records.
func (s *MemoryMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}

func (s *MemoryMetadataStore) countLocked() int {
	n := 0
	for _, owned := range s.records {
		n += len(owned)
	}
	return n
}
