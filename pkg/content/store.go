package content

import (
	"context"
)

// ============================================================================
// ContentStore Interface
// ============================================================================

// ContentStore persists raw fragment payloads keyed by (ownerID, id).
//
// Separation of Concerns:
// The content store manages only bytes. It does NOT manage:
//   - Fragment metadata (type, size, timestamps) → handled by MetadataStore
//   - Validation of content types → handled by the fragment package
//   - Access control → owners are trusted as given
//
// Content Coordination:
// The MetadataStore and ContentStore share the same (ownerID, id) addressing.
// Writers update content first and metadata second so that a metadata record
// never describes bytes that were not written.
//
// Absence:
// A missing payload is not an error. Read returns (nil, false, nil) and
// Delete of a missing key succeeds.
//
// Consistency:
//   - Last write wins per key (Write replaces the whole payload)
//   - Read reflects the most recent completed Write for that key
//   - Returned slices are owned by the caller
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent writes to the same key race; the last one to complete wins.
type ContentStore interface {
	// Write stores data under (ownerID, id), replacing any previous payload.
	//
	// A nil or empty slice stores an empty payload.
	//
	// Returns:
	//   - ErrInvalidKey if ownerID or id is empty
	//   - context or backend errors
	Write(ctx context.Context, ownerID, id string, data []byte) error

	// Read returns the payload stored under (ownerID, id).
	//
	// Returns:
	//   - (data, true, nil) when found (data is non-nil, possibly empty)
	//   - (nil, false, nil) when absent
	//   - (nil, false, err) on context or backend failure
	Read(ctx context.Context, ownerID, id string) ([]byte, bool, error)

	// Delete removes the payload stored under (ownerID, id).
	//
	// Idempotent: deleting an absent key returns nil.
	Delete(ctx context.Context, ownerID, id string) error

	// Close releases backend resources.
	Close() error
}

// ValidateKey checks the (ownerID, id) addressing pair.
func ValidateKey(ownerID, id string) error {
	if ownerID == "" || id == "" {
		return ErrInvalidKey
	}
	return nil
}

// ============================================================================
// Garbage Collection Support
// ============================================================================

// Key addresses a single payload.
type Key struct {
	OwnerID string
	ID      string
}

// GarbageCollectableStore is implemented by content stores that can
// enumerate every payload they hold.
//
// The garbage collector uses it to find payloads with no metadata record,
// which are left behind when a metadata write fails after its payload write
// succeeded, or when only the metadata half of a delete went through.
type GarbageCollectableStore interface {
	ContentStore

	// ListAllContent returns the key of every stored payload, in no
	// particular order.
	ListAllContent(ctx context.Context) ([]Key, error)
}
