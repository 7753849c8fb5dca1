// Package fragment implements the fragment entity: a typed byte payload owned
// by a principal, whose metadata and bytes live in separate stores addressed
// by (ownerID, id).
//
// Construction validates every invariant before any store is touched:
//
//	repo := fragment.NewRepository(metaStore, contentStore)
//	f, err := repo.New(fragment.Params{OwnerID: owner, Type: "text/plain"})
//	if err != nil {
//	    return err // *ValidationError
//	}
//	if err := f.Save(ctx); err != nil { ... }
//	if err := f.SetData(ctx, body); err != nil { ... }
package fragment

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/marmos91/fragments/pkg/metadata"
)

// Params are the construction inputs of a Fragment. Empty ID, Created and
// Updated are filled in; everything else is required or validated.
type Params struct {
	ID      string
	OwnerID string
	Created string
	Updated string
	Type    string
	Size    int64
}

// Fragment is the in-memory form of one stored resource's metadata.
//
// Values returned by Repository reads are independent: mutating one never
// affects another or the stored record until Save or SetData is called.
type Fragment struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Created string `json:"created"`
	Updated string `json:"updated"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`

	mimeType string
	repo     *Repository
}

// New validates p and returns an unbound Fragment. Persistence methods on it
// return ErrUnbound; use Repository.New for a fragment that can be stored.
func New(p Params) (*Fragment, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, validationErrorf("ownerId", "ownerId is required")
	}

	if p.Type == "" {
		return nil, validationErrorf("type", "type is required")
	}
	base, err := MimeTypeOf(p.Type)
	if err != nil {
		return nil, validationErrorf("type", "invalid type %q: %v", p.Type, err)
	}
	if _, ok := supportedTypes[base]; !ok {
		return nil, validationErrorf("type", "unsupported type: %s", p.Type)
	}

	if p.Size < 0 {
		return nil, validationErrorf("size", "size must be a non-negative integer, got %d", p.Size)
	}

	if err := checkTimestamp("created", p.Created); err != nil {
		return nil, err
	}
	if err := checkTimestamp("updated", p.Updated); err != nil {
		return nil, err
	}

	f := &Fragment{
		ID:       p.ID,
		OwnerID:  p.OwnerID,
		Created:  p.Created,
		Updated:  p.Updated,
		Type:     p.Type,
		Size:     p.Size,
		mimeType: base,
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}

	stamp := currentTimestamp()
	if f.Created == "" {
		f.Created = stamp
	}
	if f.Updated == "" {
		f.Updated = stamp
	}

	return f, nil
}

// checkTimestamp accepts an empty value (filled in later) or TimestampLayout.
func checkTimestamp(field, ts string) error {
	if ts == "" {
		return nil
	}
	if _, err := ParseTimestamp(ts); err != nil {
		return validationErrorf(field, "expected form %s, got %q", TimestampLayout, ts)
	}
	return nil
}

// ============================================================================
// Derived properties
// ============================================================================

// MimeType returns the base type/subtype, without parameters.
func (f *Fragment) MimeType() string {
	return f.mimeType
}

// IsText reports whether the fragment is a text/* type.
func (f *Fragment) IsText() bool {
	return strings.HasPrefix(f.mimeType, "text/")
}

// Formats returns the types this fragment may be converted to, itself first.
func (f *Fragment) Formats() []string {
	return FormatsFor(f.mimeType)
}

// CanConvertTo reports whether target's base type is one of Formats.
// An unparsable target is never convertible.
func (f *Fragment) CanConvertTo(target string) bool {
	base, err := MimeTypeOf(target)
	if err != nil {
		return false
	}
	return slices.Contains(f.Formats(), base)
}

// ============================================================================
// Persistence
// ============================================================================

// Save refreshes Updated and writes the metadata record.
func (f *Fragment) Save(ctx context.Context) error {
	if f.repo == nil {
		return ErrUnbound
	}

	f.Updated = laterTimestamp(f.Updated)

	if err := f.repo.metadata.Write(ctx, f.OwnerID, f.ID, f.record()); err != nil {
		return fmt.Errorf("save fragment %s: %w", f.ID, err)
	}
	return nil
}

// Data returns the stored payload. A missing payload is (nil, false, nil).
func (f *Fragment) Data(ctx context.Context) ([]byte, bool, error) {
	if f.repo == nil {
		return nil, false, ErrUnbound
	}

	data, ok, err := f.repo.content.Read(ctx, f.OwnerID, f.ID)
	if err != nil {
		return nil, false, fmt.Errorf("read fragment %s data: %w", f.ID, err)
	}
	return data, ok, nil
}

// SetData replaces the payload, then saves metadata with the new size.
// The payload is written first so a stored Size never describes bytes
// that were not written. A nil slice is rejected; an empty one is allowed.
func (f *Fragment) SetData(ctx context.Context, data []byte) error {
	if data == nil {
		return validationErrorf("data", "data must be a byte sequence")
	}
	if f.repo == nil {
		return ErrUnbound
	}

	f.Size = int64(len(data))
	f.Updated = laterTimestamp(f.Updated)

	if err := f.repo.content.Write(ctx, f.OwnerID, f.ID, data); err != nil {
		return fmt.Errorf("write fragment %s data: %w", f.ID, err)
	}
	return f.Save(ctx)
}

// record converts f to its stored form.
func (f *Fragment) record() *metadata.Record {
	return &metadata.Record{
		ID:      f.ID,
		OwnerID: f.OwnerID,
		Created: f.Created,
		Updated: f.Updated,
		Type:    f.Type,
		Size:    f.Size,
	}
}
