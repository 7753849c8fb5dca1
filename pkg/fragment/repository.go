package fragment

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/content"
	"github.com/marmos91/fragments/pkg/metadata"
)

// Repository binds fragments to a metadata store and a content store.
//
// The repository holds no state of its own; both stores are owned by the
// caller, which is responsible for closing them.
type Repository struct {
	metadata metadata.MetadataStore
	content  content.ContentStore
}

// NewRepository creates a repository over the given stores.
func NewRepository(metadataStore metadata.MetadataStore, contentStore content.ContentStore) *Repository {
	return &Repository{
		metadata: metadataStore,
		content:  contentStore,
	}
}

// New validates p and returns a Fragment bound to this repository.
// Nothing is written until Save or SetData is called.
func (r *Repository) New(p Params) (*Fragment, error) {
	f, err := New(p)
	if err != nil {
		return nil, err
	}
	f.repo = r
	return f, nil
}

// ByUser returns the ids of every fragment owned by ownerID, sorted.
// An owner with no fragments yields an empty, non-nil slice.
func (r *Repository) ByUser(ctx context.Context, ownerID string) ([]string, error) {
	ids, err := r.metadata.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list fragments for owner: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ByUserExpanded returns every fragment owned by ownerID as full entities,
// in id order. An owner with no fragments yields an empty, non-nil slice.
//
// Stores implementing metadata.RecordLister are read in one pass; otherwise
// each listed id is read individually and ids deleted in between are skipped.
func (r *Repository) ByUserExpanded(ctx context.Context, ownerID string) ([]*Fragment, error) {
	var records []*metadata.Record

	if lister, ok := r.metadata.(metadata.RecordLister); ok {
		recs, err := lister.ListRecords(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("list fragments for owner: %w", err)
		}
		records = recs
	} else {
		ids, err := r.ByUser(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		records = make([]*metadata.Record, 0, len(ids))
		for _, id := range ids {
			rec, ok, err := r.metadata.Read(ctx, ownerID, id)
			if err != nil {
				return nil, fmt.Errorf("read fragment %s: %w", id, err)
			}
			if !ok {
				continue
			}
			records = append(records, rec)
		}
	}

	fragments := make([]*Fragment, 0, len(records))
	for _, rec := range records {
		f, err := r.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}
	return fragments, nil
}

// ByID returns the fragment stored under (ownerID, id), or a *NotFoundError
// when no metadata exists for it.
func (r *Repository) ByID(ctx context.Context, ownerID, id string) (*Fragment, error) {
	rec, ok, err := r.metadata.Read(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("read fragment %s: %w", id, err)
	}
	if !ok {
		return nil, &NotFoundError{OwnerID: ownerID, ID: id}
	}
	return r.fromRecord(rec)
}

// Delete removes the metadata and payload stored under (ownerID, id).
//
// No existence check is made; callers that need one use ByID first. Both
// removals are always attempted, and a failure of either is returned so a
// partial deletion is never silent.
func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	var errs []error

	if err := r.metadata.Delete(ctx, ownerID, id); err != nil {
		errs = append(errs, fmt.Errorf("delete fragment %s metadata: %w", id, err))
	}
	if err := r.content.Delete(ctx, ownerID, id); err != nil {
		errs = append(errs, fmt.Errorf("delete fragment %s data: %w", id, err))
	}

	if len(errs) == 1 {
		logger.Warn("Partial delete of fragment %s: %v", id, errs[0])
	}

	return errors.Join(errs...)
}

// fromRecord rebuilds a bound Fragment from a stored record. Stored records
// go through the same validation as new ones.
func (r *Repository) fromRecord(rec *metadata.Record) (*Fragment, error) {
	f, err := r.New(Params{
		ID:      rec.ID,
		OwnerID: rec.OwnerID,
		Created: rec.Created,
		Updated: rec.Updated,
		Type:    rec.Type,
		Size:    rec.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("stored fragment %s: %w", rec.ID, err)
	}
	return f, nil
}
