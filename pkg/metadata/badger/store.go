package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/metadata"
)

// BadgerMetadataStore implements metadata.MetadataStore using BadgerDB for persistence.
//
// This implementation provides a persistent metadata store backed by BadgerDB,
// a fast embedded key-value store. It is suitable for:
//   - Production environments requiring persistence across restarts
//   - Deployments with many owners and fragments
//
// Key Features:
//   - Persistent storage with crash recovery (WAL-based)
//   - Each Write/Delete is a single ACID transaction
//   - Efficient prefix scans for per-owner listings
//
// Thread Safety:
// BadgerDB transactions are safe for concurrent use. The store-level mutex
// only guards the closed flag so that use-after-close is reported instead of
// panicking inside badger.
//
// Storage Model:
// See keys.go for the key schema. Values are JSON-encoded metadata.Record.
type BadgerMetadataStore struct {
	// mu protects closed. Operations hold a read lock for their duration.
	mu sync.RWMutex

	// db is the BadgerDB database handle
	db *badger.DB

	closed bool
}

// BadgerMetadataStoreConfig contains configuration for creating a BadgerDB metadata store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files.
	// Ignored when InMemory is true.
	DBPath string

	// InMemory runs BadgerDB without touching disk (tests, ephemeral setups).
	InMemory bool

	// BadgerOptions allows customization of BadgerDB behavior.
	// If nil, sensible defaults are used.
	BadgerOptions *badger.Options

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64
}

// NewBadgerMetadataStore opens (or creates) a BadgerDB metadata store.
//
// Context Cancellation:
// The context is checked before the database is opened.
//
// Example:
//
//	store, err := NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{
//	    DBPath: "/var/lib/fragments/metadata",
//	})
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if config.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			if config.DBPath == "" {
				return nil, fmt.Errorf("badger metadata store: db path is required")
			}
			opts = badger.DefaultOptions(config.DBPath)
		}

		// Records are small JSON documents; compression is not worth it.
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None)

		blockCacheMB := config.BlockCacheSizeMB
		if blockCacheMB == 0 {
			blockCacheMB = 64
		}
		indexCacheMB := config.IndexCacheSizeMB
		if indexCacheMB == 0 {
			indexCacheMB = 32
		}

		opts = opts.WithBlockCacheSize(blockCacheMB << 20)
		opts = opts.WithIndexCacheSize(indexCacheMB << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	if config.InMemory {
		logger.Debug("Badger metadata store opened in memory")
	} else {
		logger.Debug("Badger metadata store opened at %s", config.DBPath)
	}

	return &BadgerMetadataStore{db: db}, nil
}

// NewBadgerMetadataStoreWithDefaults opens a store at dbPath with default options.
func NewBadgerMetadataStoreWithDefaults(ctx context.Context, dbPath string) (*BadgerMetadataStore, error) {
	return NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{DBPath: dbPath})
}

// ============================================================================
// MetadataStore Interface Implementation
// ============================================================================

// Write stores rec under (ownerID, id) in a single transaction.
func (s *BadgerMetadataStore) Write(ctx context.Context, ownerID, id string, rec *metadata.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateKey(ownerID, id); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("write %s/%s: %w", ownerID, id, metadata.ErrInvalidRecord)
	}

	value, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return metadata.ErrStoreClosed
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyFragment(ownerID, id), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", id, err)
	}
	return nil
}

// Read returns the record stored under (ownerID, id).
func (s *BadgerMetadataStore) Read(ctx context.Context, ownerID, id string) (*metadata.Record, bool, error) {
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

	var rec *metadata.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyFragment(ownerID, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeRecord(val)
			if err != nil {
				return err
			}
			rec = decoded
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return rec, true, nil
}

// List returns the ids owned by ownerID. Badger iterates keys in byte order,
// so the result is already sorted.
func (s *BadgerMetadataStore) List(ctx context.Context, ownerID string) ([]string, error) {
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

	prefix := keyOwnerPrefix(ownerID)
	ids := make([]string, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false // Keys only

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids = append(ids, idFromKey(it.Item().Key(), prefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records for owner: %w", err)
	}
	return ids, nil
}

// ListRecords returns every record owned by ownerID in id order.
func (s *BadgerMetadataStore) ListRecords(ctx context.Context, ownerID string) ([]*metadata.Record, error) {
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

	records := make([]*metadata.Record, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyOwnerPrefix(ownerID)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records for owner: %w", err)
	}
	return records, nil
}

// Delete removes the record under (ownerID, id). Badger deletes are
// idempotent, so absent keys succeed.
func (s *BadgerMetadataStore) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateKey(ownerID, id); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return metadata.ErrStoreClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyFragment(ownerID, id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database. Calling Close twice is safe.
func (s *BadgerMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
