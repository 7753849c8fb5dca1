package testing

import (
	"testing"

	"github.com/marmos91/fragments/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListingTests covers ListAllContent for stores that implement
// content.GarbageCollectableStore. Other stores skip the group.
func (suite *StoreTestSuite) RunListingTests(t *testing.T) {
	t.Run("ListAll_Empty", suite.testListAllEmpty)
	t.Run("ListAll_ReturnsEveryKey", suite.testListAllReturnsEveryKey)
	t.Run("ListAll_AfterDelete", suite.testListAllAfterDelete)
}

func (suite *StoreTestSuite) newListingStore(t *testing.T) content.GarbageCollectableStore {
	t.Helper()

	store := suite.newStore(t)
	gcStore, ok := store.(content.GarbageCollectableStore)
	if !ok {
		t.Skip("store does not implement GarbageCollectableStore")
	}
	return gcStore
}

func (suite *StoreTestSuite) testListAllEmpty(t *testing.T) {
	store := suite.newListingStore(t)

	keys, err := store.ListAllContent(testContext())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func (suite *StoreTestSuite) testListAllReturnsEveryKey(t *testing.T) {
	store := suite.newListingStore(t)

	want := []content.Key{
		{OwnerID: "alice", ID: "one"},
		{OwnerID: "alice", ID: "two"},
		{OwnerID: "bob", ID: "one"},
		{OwnerID: "a/b", ID: "c d"},
	}
	for _, k := range want {
		mustWrite(t, store, k.OwnerID, k.ID, []byte(k.OwnerID+k.ID))
	}
	// Overwrites must not produce duplicate keys.
	mustWrite(t, store, "alice", "one", []byte("again"))

	keys, err := store.ListAllContent(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, want, keys)
}

func (suite *StoreTestSuite) testListAllAfterDelete(t *testing.T) {
	store := suite.newListingStore(t)

	mustWrite(t, store, "alice", "keep", []byte("k"))
	mustWrite(t, store, "alice", "drop", []byte("d"))
	require.NoError(t, store.Delete(testContext(), "alice", "drop"))

	keys, err := store.ListAllContent(testContext())
	require.NoError(t, err)
	assert.Equal(t, []content.Key{{OwnerID: "alice", ID: "keep"}}, keys)
}
