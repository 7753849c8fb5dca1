package testing

import (
	"context"
	"testing"

	"github.com/marmos91/fragments/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests covers Write/Read semantics.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("WriteRead_RoundTrip", suite.testWriteReadRoundTrip)
	t.Run("Read_Absent", suite.testReadAbsent)
	t.Run("Write_LastWriteWins", suite.testLastWriteWins)
	t.Run("Read_ReturnsCopy", suite.testReadReturnsCopy)
	t.Run("Write_CopiesInput", suite.testWriteCopiesInput)
}

// RunListTests covers List and the optional RecordLister capability.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("List_EmptyOwner", suite.testListEmpty)
	t.Run("List_Sorted", suite.testListSorted)
	t.Run("List_OwnerIsolation", suite.testListOwnerIsolation)
	t.Run("ListRecords", suite.testListRecords)
}

// RunDeleteTests covers Delete semantics.
func (suite *StoreTestSuite) RunDeleteTests(t *testing.T) {
	t.Run("Delete_Success", suite.testDeleteSuccess)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
	t.Run("Delete_LeavesOthers", suite.testDeleteLeavesOthers)
}

// RunValidationTests covers key validation and context handling.
func (suite *StoreTestSuite) RunValidationTests(t *testing.T) {
	t.Run("InvalidKey", suite.testInvalidKey)
	t.Run("NilRecord", suite.testNilRecord)
	t.Run("CancelledContext", suite.testCancelledContext)
}

// ============================================================================
// Basic Tests
// ============================================================================

func (suite *StoreTestSuite) testWriteReadRoundTrip(t *testing.T) {
	store := suite.newStore(t)
	rec := newRecord("owner-1", "frag-1", 42)

	mustWrite(t, store, rec)

	got, ok, err := store.Read(testContext(), "owner-1", "frag-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func (suite *StoreTestSuite) testReadAbsent(t *testing.T) {
	store := suite.newStore(t)

	got, ok, err := store.Read(testContext(), "owner-1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func (suite *StoreTestSuite) testLastWriteWins(t *testing.T) {
	store := suite.newStore(t)

	mustWrite(t, store, newRecord("owner-1", "frag-1", 1))
	mustWrite(t, store, newRecord("owner-1", "frag-1", 2))

	got, ok, err := store.Read(testContext(), "owner-1", "frag-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Size)
}

func (suite *StoreTestSuite) testReadReturnsCopy(t *testing.T) {
	store := suite.newStore(t)
	mustWrite(t, store, newRecord("owner-1", "frag-1", 1))

	first, _, err := store.Read(testContext(), "owner-1", "frag-1")
	require.NoError(t, err)
	first.Size = 999

	second, _, err := store.Read(testContext(), "owner-1", "frag-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Size)
}

func (suite *StoreTestSuite) testWriteCopiesInput(t *testing.T) {
	store := suite.newStore(t)
	rec := newRecord("owner-1", "frag-1", 1)
	mustWrite(t, store, rec)

	rec.Size = 999

	got, _, err := store.Read(testContext(), "owner-1", "frag-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Size)
}

// ============================================================================
// List Tests
// ============================================================================

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.newStore(t)

	ids, err := store.List(testContext(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, ids)
	assert.Empty(t, ids)
}

func (suite *StoreTestSuite) testListSorted(t *testing.T) {
	store := suite.newStore(t)
	for _, id := range []string{"c", "a", "b"} {
		mustWrite(t, store, newRecord("owner-1", id, 0))
	}

	ids, err := store.List(testContext(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func (suite *StoreTestSuite) testListOwnerIsolation(t *testing.T) {
	store := suite.newStore(t)

	// "a" must not see records of "a:b", whose key could share a naive prefix.
	mustWrite(t, store, newRecord("a", "one", 0))
	mustWrite(t, store, newRecord("a:b", "two", 0))
	mustWrite(t, store, newRecord("ab", "three", 0))

	ids, err := store.List(testContext(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, ids)

	ids, err = store.List(testContext(), "a:b")
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, ids)
}

func (suite *StoreTestSuite) testListRecords(t *testing.T) {
	store := suite.newStore(t)
	lister, ok := store.(metadata.RecordLister)
	if !ok {
		t.Skip("Store does not implement RecordLister")
	}

	empty, err := lister.ListRecords(testContext(), "owner-1")
	require.NoError(t, err)
	require.NotNil(t, empty)
	assert.Empty(t, empty)

	mustWrite(t, store, newRecord("owner-1", "b", 2))
	mustWrite(t, store, newRecord("owner-1", "a", 1))
	mustWrite(t, store, newRecord("owner-2", "c", 3))

	records, err := lister.ListRecords(testContext(), "owner-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, int64(1), records[0].Size)
	assert.Equal(t, "b", records[1].ID)
}

// ============================================================================
// Delete Tests
// ============================================================================

func (suite *StoreTestSuite) testDeleteSuccess(t *testing.T) {
	store := suite.newStore(t)
	mustWrite(t, store, newRecord("owner-1", "frag-1", 1))

	require.NoError(t, store.Delete(testContext(), "owner-1", "frag-1"))

	_, ok, err := store.Read(testContext(), "owner-1", "frag-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := store.List(testContext(), "owner-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.newStore(t)

	assert.NoError(t, store.Delete(testContext(), "owner-1", "never-existed"))
	assert.NoError(t, store.Delete(testContext(), "owner-1", "never-existed"))
}

func (suite *StoreTestSuite) testDeleteLeavesOthers(t *testing.T) {
	store := suite.newStore(t)
	mustWrite(t, store, newRecord("owner-1", "keep", 1))
	mustWrite(t, store, newRecord("owner-1", "drop", 1))
	mustWrite(t, store, newRecord("owner-2", "drop", 1))

	require.NoError(t, store.Delete(testContext(), "owner-1", "drop"))

	ids, err := store.List(testContext(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)

	_, ok, err := store.Read(testContext(), "owner-2", "drop")
	require.NoError(t, err)
	assert.True(t, ok)
}

// ============================================================================
// Validation Tests
// ============================================================================

func (suite *StoreTestSuite) testInvalidKey(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	assert.ErrorIs(t, store.Write(ctx, "", "id", newRecord("", "id", 0)), metadata.ErrInvalidKey)
	assert.ErrorIs(t, store.Write(ctx, "owner", "", newRecord("owner", "", 0)), metadata.ErrInvalidKey)

	_, _, err := store.Read(ctx, "", "id")
	assert.ErrorIs(t, err, metadata.ErrInvalidKey)

	_, err = store.List(ctx, "")
	assert.ErrorIs(t, err, metadata.ErrInvalidKey)

	assert.ErrorIs(t, store.Delete(ctx, "owner", ""), metadata.ErrInvalidKey)
}

func (suite *StoreTestSuite) testNilRecord(t *testing.T) {
	store := suite.newStore(t)

	err := store.Write(testContext(), "owner-1", "frag-1", nil)
	assert.ErrorIs(t, err, metadata.ErrInvalidRecord)
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Write(ctx, "owner-1", "frag-1", newRecord("owner-1", "frag-1", 0)), context.Canceled)

	_, _, err := store.Read(ctx, "owner-1", "frag-1")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.List(ctx, "owner-1")
	assert.ErrorIs(t, err, context.Canceled)
}
