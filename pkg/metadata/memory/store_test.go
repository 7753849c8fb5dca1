package memory

import (
	"context"
	"testing"

	"github.com/marmos91/fragments/pkg/metadata"
	metadatatesting "github.com/marmos91/fragments/pkg/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryMetadataStore runs the complete MetadataStore suite against
// the in-memory implementation.
func TestMemoryMetadataStore(t *testing.T) {
	suite := &metadatatesting.StoreTestSuite{
		NewStore: func(t *testing.T) metadata.MetadataStore {
			return NewMemoryMetadataStoreWithDefaults()
		},
	}

	suite.Run(t)
}

func TestMemoryMetadataStore_Capacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMetadataStore(MemoryMetadataStoreConfig{MaxRecords: 1})

	rec := &metadata.Record{ID: "a", OwnerID: "o", Type: "text/plain"}
	require.NoError(t, store.Write(ctx, "o", "a", rec))

	// Overwriting an existing key does not count against capacity.
	require.NoError(t, store.Write(ctx, "o", "a", rec))

	err := store.Write(ctx, "o", "b", rec)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestMemoryMetadataStore_UseAfterClose(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMetadataStoreWithDefaults()
	require.NoError(t, store.Close())

	_, _, err := store.Read(ctx, "o", "a")
	assert.ErrorIs(t, err, metadata.ErrStoreClosed)

	err = store.Write(ctx, "o", "a", &metadata.Record{})
	assert.ErrorIs(t, err, metadata.ErrStoreClosed)
}
