package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// These errors provide a consistent way to indicate common failure conditions
// across all content store implementations. Callers check for them with
// errors.Is; implementations wrap them with context:
//
//	if ownerID == "" {
//	    return fmt.Errorf("write %s: %w", id, content.ErrInvalidKey)
//	}
//
// Absence of a payload is reported through Read's boolean result and has no
// sentinel error.

var (
	// ErrInvalidKey indicates an empty owner or id was supplied.
	ErrInvalidKey = errors.New("invalid content key")

	// ErrStoreClosed indicates the store was used after Close.
	ErrStoreClosed = errors.New("content store is closed")

	// ErrIntegrityCheckFailed indicates stored bytes could not be decoded
	// (for example a corrupt compressed payload).
	ErrIntegrityCheckFailed = errors.New("integrity check failed")
)
