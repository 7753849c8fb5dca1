package testing

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/fragments/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// concurrentRounds is the number of write/delete cycles each goroutine runs.
const concurrentRounds = 200

// RunConcurrencyTests covers operations on distinct keys of one owner running
// at the same time.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	t.Run("WriteDelete_SiblingKeys", suite.testConcurrentSiblingWriteDelete)
	t.Run("Write_SameKey", suite.testConcurrentSameKeyWrites)
}

// testConcurrentSiblingWriteDelete cycles Write+Delete on two ids of the same
// owner in parallel. Neither cycle may fail because of the other.
func (suite *StoreTestSuite) testConcurrentSiblingWriteDelete(t *testing.T) {
	store := suite.newStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 2*concurrentRounds)

	cycle := func(id string) {
		defer wg.Done()
		for i := 0; i < concurrentRounds; i++ {
			if err := store.Write(testContext(), "alice", id, []byte(id)); err != nil {
				errs <- fmt.Errorf("write %s round %d: %w", id, i, err)
				return
			}
			if err := store.Delete(testContext(), "alice", id); err != nil {
				errs <- fmt.Errorf("delete %s round %d: %w", id, i, err)
				return
			}
		}
	}

	wg.Add(2)
	go cycle("a")
	go cycle("b")
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	// The owner is still writable after the churn.
	mustWrite(t, store, "alice", "c", []byte("after"))
	assert.Equal(t, []byte("after"), mustRead(t, store, "alice", "c"))
}

// testConcurrentSameKeyWrites races writers on one key; the result must be
// exactly one of the written payloads (last write wins, no torn reads).
func (suite *StoreTestSuite) testConcurrentSameKeyWrites(t *testing.T) {
	store := suite.newStore(t)

	payloads := make([][]byte, 8)
	for i := range payloads {
		payloads[i] = []byte(strings.Repeat(string(rune('a'+i)), 1024))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(payloads))
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			if err := store.Write(testContext(), "alice", "shared", p); err != nil {
				errs <- err
			}
		}(p)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got := mustRead(t, store, "alice", "shared")
	assert.Contains(t, payloads, got)
}

// testLongKeys stores under a 255-byte owner and a 255-byte id, the length of
// a maximal file name on common filesystems.
func (suite *StoreTestSuite) testLongKeys(t *testing.T) {
	store := suite.newStore(t)

	owner := strings.Repeat("o", 255)
	id := strings.Repeat("i", 255)

	mustWrite(t, store, owner, id, []byte("long keys"))
	assert.Equal(t, []byte("long keys"), mustRead(t, store, owner, id))

	if gcStore, ok := store.(content.GarbageCollectableStore); ok {
		keys, err := gcStore.ListAllContent(testContext())
		require.NoError(t, err)
		assert.Contains(t, keys, content.Key{OwnerID: owner, ID: id})
	}

	require.NoError(t, store.Delete(testContext(), owner, id))
	_, ok, err := store.Read(testContext(), owner, id)
	require.NoError(t, err)
	assert.False(t, ok)
}
