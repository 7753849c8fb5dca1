package metadata

import "errors"

// These errors are shared by every MetadataStore implementation so that
// callers can test for them with errors.Is regardless of backend.
//
// Absence of a record is NOT an error and has no sentinel here: Read reports
// it through its boolean result.
var (
	// ErrInvalidKey indicates an empty owner or id was supplied.
	ErrInvalidKey = errors.New("invalid metadata key")

	// ErrInvalidRecord indicates a nil record or a record that could not be
	// decoded from its persisted form.
	ErrInvalidRecord = errors.New("invalid metadata record")

	// ErrStoreClosed indicates the store was used after Close.
	ErrStoreClosed = errors.New("metadata store is closed")
)
