package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/marmos91/fragments/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for MetadataStore implementations.
// It tests the interface contract, not implementation details, so every
// backend (memory, badger, ...) runs the same assertions.
//
// Usage:
//
//	func TestMyMetadataStore(t *testing.T) {
//	    suite := &metadatatesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) metadata.MetadataStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. The suite closes it.
	NewStore func(t *testing.T) metadata.MetadataStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("ListOperations", suite.RunListTests)
	t.Run("DeleteOperations", suite.RunDeleteTests)
	t.Run("Validation", suite.RunValidationTests)
}

// newStore creates a store and registers its cleanup.
func (suite *StoreTestSuite) newStore(t *testing.T) metadata.MetadataStore {
	t.Helper()

	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testContext() context.Context {
	return context.Background()
}

func newRecord(ownerID, id string, size int64) *metadata.Record {
	return &metadata.Record{
		ID:      id,
		OwnerID: ownerID,
		Created: "2024-01-02T03:04:05.000Z",
		Updated: "2024-01-02T03:04:05.000Z",
		Type:    "text/plain; charset=utf-8",
		Size:    size,
	}
}

func mustWrite(t *testing.T, store metadata.MetadataStore, rec *metadata.Record) {
	t.Helper()
	require.NoError(t, store.Write(testContext(), rec.OwnerID, rec.ID, rec),
		fmt.Sprintf("write %s/%s", rec.OwnerID, rec.ID))
}
