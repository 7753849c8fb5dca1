package testing

import (
	"context"
	"testing"

	"github.com/marmos91/fragments/pkg/content"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a comprehensive test suite for ContentStore implementations.
// It tests the interface contract, not implementation details, making it reusable
// across different implementations (memory, filesystem, S3, etc.).
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &contenttesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) content.ContentStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh ContentStore instance
	// for each test. This ensures test isolation. The suite closes the store.
	NewStore func(t *testing.T) content.ContentStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("DeleteOperations", suite.RunDeleteTests)
	t.Run("Validation", suite.RunValidationTests)
	t.Run("Listing", suite.RunListingTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

func (suite *StoreTestSuite) newStore(t *testing.T) content.ContentStore {
	t.Helper()

	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustWrite(t *testing.T, store content.ContentStore, ownerID, id string, data []byte) {
	t.Helper()
	require.NoError(t, store.Write(testContext(), ownerID, id, data))
}

func mustRead(t *testing.T, store content.ContentStore, ownerID, id string) []byte {
	t.Helper()

	data, ok, err := store.Read(testContext(), ownerID, id)
	require.NoError(t, err)
	require.True(t, ok, "expected payload %s/%s to exist", ownerID, id)
	return data
}
