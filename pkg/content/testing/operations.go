package testing

import (
	"bytes"
	"context"
	"testing"

	"github.com/marmos91/fragments/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests covers Write/Read semantics.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("WriteRead_RoundTrip", suite.testWriteReadRoundTrip)
	t.Run("Read_Absent", suite.testReadAbsent)
	t.Run("Write_EmptyPayload", suite.testWriteEmpty)
	t.Run("Write_Overwrite", suite.testOverwrite)
	t.Run("Write_LargePayload", suite.testLargePayload)
	t.Run("Write_CopiesInput", suite.testWriteCopiesInput)
	t.Run("OwnerIsolation", suite.testOwnerIsolation)
	t.Run("UnusualKeys", suite.testUnusualKeys)
	t.Run("LongKeys", suite.testLongKeys)
}

// RunDeleteTests covers Delete semantics.
func (suite *StoreTestSuite) RunDeleteTests(t *testing.T) {
	t.Run("Delete_Success", suite.testDeleteSuccess)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
	t.Run("Delete_LeavesOthers", suite.testDeleteLeavesOthers)
	t.Run("Delete_ThenRewrite", suite.testDeleteThenRewrite)
}

// RunValidationTests covers key validation and context handling.
func (suite *StoreTestSuite) RunValidationTests(t *testing.T) {
	t.Run("InvalidKey", suite.testInvalidKey)
	t.Run("CancelledContext", suite.testCancelledContext)
}

// ============================================================================
// Basic Tests
// ============================================================================

func (suite *StoreTestSuite) testWriteReadRoundTrip(t *testing.T) {
	store := suite.newStore(t)
	data := []byte("# Title\n\nSome **markdown** body.\n")

	mustWrite(t, store, "owner-1", "frag-1", data)

	assert.Equal(t, data, mustRead(t, store, "owner-1", "frag-1"))
}

func (suite *StoreTestSuite) testReadAbsent(t *testing.T) {
	store := suite.newStore(t)

	data, ok, err := store.Read(testContext(), "owner-1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func (suite *StoreTestSuite) testWriteEmpty(t *testing.T) {
	store := suite.newStore(t)

	mustWrite(t, store, "owner-1", "empty", []byte{})

	data := mustRead(t, store, "owner-1", "empty")
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	store := suite.newStore(t)

	mustWrite(t, store, "owner-1", "frag-1", []byte("first version, somewhat longer"))
	mustWrite(t, store, "owner-1", "frag-1", []byte("second"))

	assert.Equal(t, []byte("second"), mustRead(t, store, "owner-1", "frag-1"))
}

func (suite *StoreTestSuite) testLargePayload(t *testing.T) {
	store := suite.newStore(t)

	// Repetitive so compressing backends take the compressed path.
	data := bytes.Repeat([]byte("fragment payload "), 64*1024)
	mustWrite(t, store, "owner-1", "large", data)

	assert.Equal(t, data, mustRead(t, store, "owner-1", "large"))
}

func (suite *StoreTestSuite) testWriteCopiesInput(t *testing.T) {
	store := suite.newStore(t)
	data := []byte("original")

	mustWrite(t, store, "owner-1", "frag-1", data)
	copy(data, "mutated!")

	assert.Equal(t, []byte("original"), mustRead(t, store, "owner-1", "frag-1"))
}

func (suite *StoreTestSuite) testOwnerIsolation(t *testing.T) {
	store := suite.newStore(t)

	mustWrite(t, store, "alice", "shared-id", []byte("alice"))
	mustWrite(t, store, "bob", "shared-id", []byte("bob"))

	assert.Equal(t, []byte("alice"), mustRead(t, store, "alice", "shared-id"))
	assert.Equal(t, []byte("bob"), mustRead(t, store, "bob", "shared-id"))
}

func (suite *StoreTestSuite) testUnusualKeys(t *testing.T) {
	store := suite.newStore(t)

	keys := [][2]string{
		{"user@example.com", "with spaces"},
		{"../escape", "../../etc/passwd"},
		{"owner/with/slashes", "id/with/slashes"},
		{"ユーザー", "断片"},
	}

	for _, k := range keys {
		mustWrite(t, store, k[0], k[1], []byte(k[0]+"|"+k[1]))
	}
	for _, k := range keys {
		assert.Equal(t, []byte(k[0]+"|"+k[1]), mustRead(t, store, k[0], k[1]))
	}
}

// ============================================================================
// Delete Tests
// ============================================================================

func (suite *StoreTestSuite) testDeleteSuccess(t *testing.T) {
	store := suite.newStore(t)
	mustWrite(t, store, "owner-1", "frag-1", []byte("data"))

	require.NoError(t, store.Delete(testContext(), "owner-1", "frag-1"))

	_, ok, err := store.Read(testContext(), "owner-1", "frag-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.newStore(t)

	require.NoError(t, store.Delete(testContext(), "owner-1", "never-written"))

	mustWrite(t, store, "owner-1", "frag-1", []byte("data"))
	require.NoError(t, store.Delete(testContext(), "owner-1", "frag-1"))
	require.NoError(t, store.Delete(testContext(), "owner-1", "frag-1"))
}

func (suite *StoreTestSuite) testDeleteLeavesOthers(t *testing.T) {
	store := suite.newStore(t)
	mustWrite(t, store, "owner-1", "frag-1", []byte("one"))
	mustWrite(t, store, "owner-1", "frag-2", []byte("two"))
	mustWrite(t, store, "owner-2", "frag-1", []byte("other owner"))

	require.NoError(t, store.Delete(testContext(), "owner-1", "frag-1"))

	assert.Equal(t, []byte("two"), mustRead(t, store, "owner-1", "frag-2"))
	assert.Equal(t, []byte("other owner"), mustRead(t, store, "owner-2", "frag-1"))
}

func (suite *StoreTestSuite) testDeleteThenRewrite(t *testing.T) {
	store := suite.newStore(t)
	mustWrite(t, store, "owner-1", "frag-1", []byte("before"))
	require.NoError(t, store.Delete(testContext(), "owner-1", "frag-1"))

	mustWrite(t, store, "owner-1", "frag-1", []byte("after"))

	assert.Equal(t, []byte("after"), mustRead(t, store, "owner-1", "frag-1"))
}

// ============================================================================
// Validation Tests
// ============================================================================

func (suite *StoreTestSuite) testInvalidKey(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	assert.ErrorIs(t, store.Write(ctx, "", "frag-1", []byte("x")), content.ErrInvalidKey)
	assert.ErrorIs(t, store.Write(ctx, "owner-1", "", []byte("x")), content.ErrInvalidKey)

	_, _, err := store.Read(ctx, "", "frag-1")
	assert.ErrorIs(t, err, content.ErrInvalidKey)

	assert.ErrorIs(t, store.Delete(ctx, "owner-1", ""), content.ErrInvalidKey)
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.newStore(t)
	mustWrite(t, store, "owner-1", "frag-1", []byte("data"))

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	assert.ErrorIs(t, store.Write(ctx, "owner-1", "frag-2", []byte("x")), context.Canceled)

	_, _, err := store.Read(ctx, "owner-1", "frag-1")
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, store.Delete(ctx, "owner-1", "frag-1"), context.Canceled)

	// Nothing changed.
	assert.Equal(t, []byte("data"), mustRead(t, store, "owner-1", "frag-1"))
	_, ok, err := store.Read(testContext(), "owner-1", "frag-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
