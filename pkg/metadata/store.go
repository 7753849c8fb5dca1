package metadata

import (
	"context"
)

// ============================================================================
// Record
// ============================================================================

// Record is the persisted metadata of a single fragment.
//
// The JSON shape is the wire form used by persistent backends. Timestamps
// are kept as fixed-width UTC strings so that lexical comparison matches
// chronological order.
type Record struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Created string `json:"created"`
	Updated string `json:"updated"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ============================================================================
// MetadataStore Interface
// ============================================================================

// MetadataStore persists fragment metadata keyed by (ownerID, id).
//
// Separation of Concerns:
// The metadata store only knows about records. Raw payload bytes live in a
// content.ContentStore addressed by the same (ownerID, id) pair. Keeping the
// two consistent (size matches payload length) is the caller's job.
//
// Absence:
// A missing record is not an error. Read returns (nil, false, nil) and
// Delete of a missing key succeeds. Callers decide whether absence matters.
//
// Consistency:
//   - Last write wins per key
//   - Read reflects the most recent completed Write for that key
//   - Returned records are copies; mutating them never affects the store
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type MetadataStore interface {
	// Write stores rec under (ownerID, id), replacing any previous record.
	//
	// Returns:
	//   - ErrInvalidKey if ownerID or id is empty
	//   - context or backend errors
	Write(ctx context.Context, ownerID, id string, rec *Record) error

	// Read returns the record stored under (ownerID, id).
	//
	// Returns:
	//   - (*Record, true, nil) when found
	//   - (nil, false, nil) when absent
	//   - (nil, false, err) on context or backend failure
	Read(ctx context.Context, ownerID, id string) (*Record, bool, error)

	// List returns the ids of every record owned by ownerID, sorted ascending.
	//
	// An owner with no records yields an empty, non-nil slice.
	List(ctx context.Context, ownerID string) ([]string, error)

	// Delete removes the record stored under (ownerID, id).
	//
	// Idempotent: deleting an absent key returns nil.
	Delete(ctx context.Context, ownerID, id string) error

	// Close releases backend resources. The store must not be used afterwards.
	Close() error
}

// RecordLister is an optional capability for stores that can return full
// records for an owner in one pass, avoiding a Read per id.
//
// Records are sorted by id ascending, mirroring List.
type RecordLister interface {
	ListRecords(ctx context.Context, ownerID string) ([]*Record, error)
}

// ValidateKey checks the (ownerID, id) addressing pair.
func ValidateKey(ownerID, id string) error {
	if ownerID == "" {
		return ErrInvalidKey
	}
	if id == "" {
		return ErrInvalidKey
	}
	return nil
}

// ValidateOwner checks an owner-only key used for listing.
func ValidateOwner(ownerID string) error {
	if ownerID == "" {
		return ErrInvalidKey
	}
	return nil
}
