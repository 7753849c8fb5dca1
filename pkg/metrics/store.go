package metrics

import (
	"context"
	"time"

	"github.com/marmos91/fragments/pkg/content"
	"github.com/marmos91/fragments/pkg/metadata"
)

// StoreMetrics provides observability for metadata and content store calls.
//
// Backends stay metric-free; instrumentation is layered on with
// InstrumentMetadataStore and InstrumentContentStore.
type StoreMetrics interface {
	// RecordStoreOperation records one store call.
	//
	// Parameters:
	//   - store: "metadata" or "content"
	//   - backend: Backend type (e.g., "memory", "badger", "s3")
	//   - operation: "write", "read", "list", "delete"
	//   - duration: Time taken by the call
	//   - err: Error returned by the call, nil if successful
	RecordStoreOperation(store, backend, operation string, duration time.Duration, err error)
}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) RecordStoreOperation(store, backend, operation string, duration time.Duration, err error) {
}

// ============================================================================
// Metadata store instrumentation
// ============================================================================

// InstrumentMetadataStore wraps store so every call is reported to m.
// A nil m returns store unchanged. The RecordLister capability is preserved
// exactly: the wrapper implements it only when store does.
func InstrumentMetadataStore(store metadata.MetadataStore, backend string, m StoreMetrics) metadata.MetadataStore {
	if m == nil {
		return store
	}

	base := &instrumentedMetadataStore{inner: store, backend: backend, metrics: m}
	if lister, ok := store.(metadata.RecordLister); ok {
		return &instrumentedRecordLister{instrumentedMetadataStore: base, lister: lister}
	}
	return base
}

type instrumentedMetadataStore struct {
	inner   metadata.MetadataStore
	backend string
	metrics StoreMetrics
}

func (s *instrumentedMetadataStore) observe(operation string, start time.Time, err error) {
	s.metrics.RecordStoreOperation("metadata", s.backend, operation, time.Since(start), err)
}

func (s *instrumentedMetadataStore) Write(ctx context.Context, ownerID, id string, rec *metadata.Record) error {
	start := time.Now()
	err := s.inner.Write(ctx, ownerID, id, rec)
	s.observe("write", start, err)
	return err
}

func (s *instrumentedMetadataStore) Read(ctx context.Context, ownerID, id string) (*metadata.Record, bool, error) {
	start := time.Now()
	rec, ok, err := s.inner.Read(ctx, ownerID, id)
	s.observe("read", start, err)
	return rec, ok, err
}

func (s *instrumentedMetadataStore) List(ctx context.Context, ownerID string) ([]string, error) {
	start := time.Now()
	ids, err := s.inner.List(ctx, ownerID)
	s.observe("list", start, err)
	return ids, err
}

func (s *instrumentedMetadataStore) Delete(ctx context.Context, ownerID, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, ownerID, id)
	s.observe("delete", start, err)
	return err
}

func (s *instrumentedMetadataStore) Close() error {
	return s.inner.Close()
}

type instrumentedRecordLister struct {
	*instrumentedMetadataStore
	lister metadata.RecordLister
}

func (s *instrumentedRecordLister) ListRecords(ctx context.Context, ownerID string) ([]*metadata.Record, error) {
	start := time.Now()
	recs, err := s.lister.ListRecords(ctx, ownerID)
	s.observe("list_records", start, err)
	return recs, err
}

// ============================================================================
// Content store instrumentation
// ============================================================================

// InstrumentContentStore wraps store so every call is reported to m.
// A nil m returns store unchanged. The GarbageCollectableStore capability is
// preserved the same way RecordLister is for metadata stores.
func InstrumentContentStore(store content.ContentStore, backend string, m StoreMetrics) content.ContentStore {
	if m == nil {
		return store
	}

	base := &instrumentedContentStore{inner: store, backend: backend, metrics: m}
	if gcStore, ok := store.(content.GarbageCollectableStore); ok {
		return &instrumentedGCStore{instrumentedContentStore: base, gc: gcStore}
	}
	return base
}

type instrumentedContentStore struct {
	inner   content.ContentStore
	backend string
	metrics StoreMetrics
}

func (s *instrumentedContentStore) observe(operation string, start time.Time, err error) {
	s.metrics.RecordStoreOperation("content", s.backend, operation, time.Since(start), err)
}

func (s *instrumentedContentStore) Write(ctx context.Context, ownerID, id string, data []byte) error {
	start := time.Now()
	err := s.inner.Write(ctx, ownerID, id, data)
	s.observe("write", start, err)
	return err
}

func (s *instrumentedContentStore) Read(ctx context.Context, ownerID, id string) ([]byte, bool, error) {
	start := time.Now()
	data, ok, err := s.inner.Read(ctx, ownerID, id)
	s.observe("read", start, err)
	return data, ok, err
}

func (s *instrumentedContentStore) Delete(ctx context.Context, ownerID, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, ownerID, id)
	s.observe("delete", start, err)
	return err
}

func (s *instrumentedContentStore) Close() error {
	return s.inner.Close()
}

type instrumentedGCStore struct {
	*instrumentedContentStore
	gc content.GarbageCollectableStore
}

func (s *instrumentedGCStore) ListAllContent(ctx context.Context) ([]content.Key, error) {
	start := time.Now()
	keys, err := s.gc.ListAllContent(ctx)
	s.observe("list_all", start, err)
	return keys, err
}
