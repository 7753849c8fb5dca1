package fs

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/fragments/pkg/content"
	contenttesting "github.com/marmos91/fragments/pkg/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.ContentStore {
			store, err := NewFSContentStore(context.Background(), t.TempDir())
			require.NoError(t, err)
			return store
		},
	}

	suite.Run(t)
}

func TestFSContentStore_Compressed(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.ContentStore {
			store, err := NewFSContentStoreWithConfig(context.Background(), FSContentStoreConfig{
				Path:     t.TempDir(),
				Compress: true,
			})
			require.NoError(t, err)
			return store
		},
	}

	suite.Run(t)
}

func TestFSContentStore_RequiresPath(t *testing.T) {
	_, err := NewFSContentStoreWithConfig(context.Background(), FSContentStoreConfig{})
	assert.Error(t, err)
}

func TestFSContentStore_Layout(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	store, err := NewFSContentStore(ctx, base)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Write(ctx, "../owner", "../../id", []byte("data")))

	path := store.payloadPath("../owner", "../../id")
	rel, err := filepath.Rel(base, path)
	require.NoError(t, err)

	assert.NotContains(t, rel, "..")
	assert.Len(t, filepath.Base(filepath.Dir(filepath.Dir(path))), 2, "shard directory")
	assert.Len(t, filepath.Base(path), 64, "digest file name")

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)

	h, body, err := decodeHeader(onDisk)
	require.NoError(t, err)
	assert.Equal(t, header{OwnerID: "../owner", ID: "../../id"}, h)
	assert.Equal(t, []byte("data"), body)
}

// TestFSContentStore_LongKeys verifies key length does not leak into path
// component length.
func TestFSContentStore_LongKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	owner := strings.Repeat("o", 4096)
	id := strings.Repeat("i", 4096)

	require.NoError(t, store.Write(ctx, owner, id, []byte("long")))

	got, ok, err := store.Read(ctx, owner, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("long"), got)

	keys, err := store.ListAllContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []content.Key{{OwnerID: owner, ID: id}}, keys)
}

func TestFSContentStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Write(ctx, "owner-1", "frag-1", []byte("payload")))
	}

	entries, err := os.ReadDir(store.ownerDir("owner-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), tempPrefix)
}

func readHeaderOf(t *testing.T, store *FSContentStore, ownerID, id string) (header, int64) {
	t.Helper()

	path := store.payloadPath(ownerID, id)
	h, err := readHeaderFile(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	return h, info.Size()
}

func TestFSContentStore_CompressesRepetitiveData(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStoreWithConfig(ctx, FSContentStoreConfig{Path: t.TempDir(), Compress: true})
	require.NoError(t, err)
	defer store.Close()

	data := bytes.Repeat([]byte("abcdefgh"), 4096)
	require.NoError(t, store.Write(ctx, "owner-1", "frag-1", data))

	h, size := readHeaderOf(t, store, "owner-1", "frag-1")
	assert.True(t, h.Compressed)
	assert.Less(t, size, int64(len(data)))
}

func TestFSContentStore_IncompressibleStoredRaw(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStoreWithConfig(ctx, FSContentStoreConfig{Path: t.TempDir(), Compress: true})
	require.NoError(t, err)
	defer store.Close()

	data := make([]byte, 4096)
	_, err = rand.Read(data)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "owner-1", "frag-1", data))

	h, size := readHeaderOf(t, store, "owner-1", "frag-1")
	assert.False(t, h.Compressed)
	assert.Equal(t, int64(len(h.encode())+len(data)), size)
}

// TestFSContentStore_ToggleCompression verifies payloads written with
// compression are still readable and replaceable once it is turned off.
func TestFSContentStore_ToggleCompression(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	data := bytes.Repeat([]byte("hello "), 2048)

	compressed, err := NewFSContentStoreWithConfig(ctx, FSContentStoreConfig{Path: base, Compress: true})
	require.NoError(t, err)
	require.NoError(t, compressed.Write(ctx, "owner-1", "frag-1", data))
	require.NoError(t, compressed.Close())

	plain, err := NewFSContentStore(ctx, base)
	require.NoError(t, err)
	defer plain.Close()

	got, ok, err := plain.Read(ctx, "owner-1", "frag-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)

	require.NoError(t, plain.Write(ctx, "owner-1", "frag-1", []byte("replaced")))

	got, ok, err = plain.Read(ctx, "owner-1", "frag-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("replaced"), got)
}

func writeRawPayload(t *testing.T, store *FSContentStore, ownerID, id string, raw []byte) {
	t.Helper()

	require.NoError(t, os.MkdirAll(store.ownerDir(ownerID), 0755))
	require.NoError(t, os.WriteFile(store.payloadPath(ownerID, id), raw, 0644))
}

func TestFSContentStore_CorruptCompressedPayload(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	h := header{OwnerID: "owner-1", ID: "frag-1", Compressed: true}
	writeRawPayload(t, store, "owner-1", "frag-1", append(h.encode(), "not a zstd frame"...))

	_, _, err = store.Read(ctx, "owner-1", "frag-1")
	assert.ErrorIs(t, err, content.ErrIntegrityCheckFailed)
}

func TestFSContentStore_CorruptHeader(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	writeRawPayload(t, store, "owner-1", "frag-1", []byte("no header here"))

	_, _, err = store.Read(ctx, "owner-1", "frag-1")
	assert.ErrorIs(t, err, content.ErrIntegrityCheckFailed)

	keys, err := store.ListAllContent(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys, "unreadable payloads are not listed")
}

func TestFSContentStore_HeaderKeyMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	h := header{OwnerID: "owner-1", ID: "someone-else"}
	writeRawPayload(t, store, "owner-1", "frag-1", append(h.encode(), "x"...))

	_, _, err = store.Read(ctx, "owner-1", "frag-1")
	assert.ErrorIs(t, err, content.ErrIntegrityCheckFailed)
}

func TestFSContentStore_DeleteKeepsOwnerDir(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Write(ctx, "owner-1", "frag-1", []byte("one")))
	require.NoError(t, store.Delete(ctx, "owner-1", "frag-1"))

	_, err = os.Stat(store.ownerDir("owner-1"))
	require.NoError(t, err)

	_, ok, err := store.Read(ctx, "owner-1", "frag-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSContentStore_WriteRecreatesRemovedOwnerDir(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	dir := store.ownerDir("owner-1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.Remove(dir))

	require.NoError(t, writeAtomic(dir, store.payloadPath("owner-1", "frag-1"),
		header{OwnerID: "owner-1", ID: "frag-1"}.encode(), []byte("back")))

	got, ok, err := store.Read(ctx, "owner-1", "frag-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("back"), got)
}

func TestDecodeHeader_RejectsOversizedField(t *testing.T) {
	raw := append([]byte{}, headerMagic...)
	raw = append(raw, 0)
	raw = binary.AppendUvarint(raw, maxKeyLen+1)

	_, _, err := decodeHeader(raw)
	assert.ErrorIs(t, err, errBadHeader)
}
