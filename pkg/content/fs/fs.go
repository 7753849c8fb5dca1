package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/content"
	"github.com/zeebo/blake3"
)

const (
	// tempPattern is used for in-flight writes; never visible to readers.
	tempPattern = ".tmp-*"

	// tempPrefix is the literal prefix of tempPattern.
	tempPrefix = ".tmp-"
)

// FSContentStore implements ContentStore on the local filesystem.
//
// Layout:
//
//	<base>/<shard>/<hex(blake3(ownerID))>/<hex(blake3(id))>
//
// Directory and file names are fixed-length digests, so owners and ids of any
// length and content map to valid names that never escape the base directory.
// The shard is the first two hex characters of the owner digest, spreading
// owners across 256 directories. The raw owner and id live in a header at the
// start of each payload file (see header.go), which is how ListAllContent
// recovers keys.
//
// Atomicity:
// Payloads are written to a temporary file in the destination directory and
// renamed into place, so readers see either the old or the new payload.
// Directories are never removed, so a Delete cannot pull the owner directory
// out from under a concurrent Write.
//
// Compression:
// When enabled, payload bodies are zstd-compressed and flagged in the header.
// Bodies that do not shrink are stored raw. Read handles both, so compression
// can be toggled on an existing store.
type FSContentStore struct {
	basePath string

	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// FSContentStoreConfig configures an FSContentStore.
type FSContentStoreConfig struct {
	// Path is the base directory. Created if missing.
	Path string

	// Compress enables zstd compression of new payloads.
	Compress bool
}

// NewFSContentStore creates a filesystem store rooted at basePath without compression.
func NewFSContentStore(ctx context.Context, basePath string) (*FSContentStore, error) {
	return NewFSContentStoreWithConfig(ctx, FSContentStoreConfig{Path: basePath})
}

// NewFSContentStoreWithConfig creates a filesystem store from config.
func NewFSContentStoreWithConfig(ctx context.Context, cfg FSContentStoreConfig) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	// The decoder is always needed: compressed payloads may exist from an
	// earlier run even when compression is now disabled.
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize zstd decoder: %w", err)
	}

	store := &FSContentStore{
		basePath: filepath.Clean(cfg.Path),
		compress: cfg.Compress,
		decoder:  decoder,
	}

	if cfg.Compress {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			decoder.Close()
			return nil, fmt.Errorf("failed to initialize zstd encoder: %w", err)
		}
		store.encoder = encoder
	}

	logger.Debug("Filesystem content store at %s (compress=%v)", store.basePath, cfg.Compress)

	return store, nil
}

// digest returns the hex BLAKE3 digest used as a path component.
func digest(value string) string {
	sum := blake3.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// ownerDir returns the directory holding every payload of ownerID.
func (s *FSContentStore) ownerDir(ownerID string) string {
	name := digest(ownerID)
	return filepath.Join(s.basePath, name[:2], name)
}

// payloadPath returns the path of the payload file for (ownerID, id).
func (s *FSContentStore) payloadPath(ownerID, id string) string {
	return filepath.Join(s.ownerDir(ownerID), digest(id))
}

// Write stores data under (ownerID, id) via temp file + rename.
func (s *FSContentStore) Write(ctx context.Context, ownerID, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return err
	}

	h := header{OwnerID: ownerID, ID: id}
	body := data

	if s.compress {
		compressed := s.encoder.EncodeAll(data, nil)
		if len(compressed) < len(data) {
			body = compressed
			h.Compressed = true
		}
	}

	dir := s.ownerDir(ownerID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create owner directory: %w", err)
	}

	return writeAtomic(dir, s.payloadPath(ownerID, id), h.encode(), body)
}

// Read returns the payload stored under (ownerID, id).
func (s *FSContentStore) Read(ctx context.Context, ownerID, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return nil, false, err
	}

	raw, err := os.ReadFile(s.payloadPath(ownerID, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read content: %w", err)
	}

	h, body, err := decodeHeader(raw)
	if err != nil {
		return nil, false, fmt.Errorf("payload %s: %v: %w", id, err, content.ErrIntegrityCheckFailed)
	}
	if h.OwnerID != ownerID || h.ID != id {
		return nil, false, fmt.Errorf("payload %s: header names %s/%s: %w", id, h.OwnerID, h.ID, content.ErrIntegrityCheckFailed)
	}

	if h.Compressed {
		body, err = s.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, false, fmt.Errorf("payload %s: %v: %w", id, err, content.ErrIntegrityCheckFailed)
		}
	}
	if body == nil {
		body = []byte{}
	}
	return body, true, nil
}

// Delete removes the payload. Empty owner directories are left in place.
func (s *FSContentStore) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return err
	}

	if err := os.Remove(s.payloadPath(ownerID, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// Close releases the zstd encoder and decoder.
func (s *FSContentStore) Close() error {
	if s.encoder != nil {
		if err := s.encoder.Close(); err != nil {
			return err
		}
	}
	s.decoder.Close()
	return nil
}

// ListAllContent walks the shard tree and returns every payload key.
//
// In-flight temp files are skipped, as are files whose header does not
// decode (logged at Warn).
func (s *FSContentStore) ListAllContent(ctx context.Context) ([]content.Key, error) {
	shards, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}

	var keys []content.Key

	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.basePath, shard.Name())

		owners, err := os.ReadDir(shardPath)
		if err != nil {
			return nil, fmt.Errorf("failed to list shard %s: %w", shard.Name(), err)
		}

		for _, owner := range owners {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !owner.IsDir() {
				continue
			}
			ownerPath := filepath.Join(shardPath, owner.Name())

			entries, err := os.ReadDir(ownerPath)
			if err != nil {
				return nil, fmt.Errorf("failed to list owner directory: %w", err)
			}

			for _, entry := range entries {
				if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
					continue
				}

				path := filepath.Join(ownerPath, entry.Name())
				h, err := readHeaderFile(path)
				if errors.Is(err, os.ErrNotExist) {
					continue // deleted since ReadDir
				}
				if err != nil {
					logger.Warn("Skipping unreadable payload %s: %v", path, err)
					continue
				}

				keys = append(keys, content.Key{OwnerID: h.OwnerID, ID: h.ID})
			}
		}
	}

	return keys, nil
}

// writeAtomic writes head followed by body to a temp file in dir and renames
// it to target. If dir vanished (removed by an outside cleanup), it is
// recreated once.
func writeAtomic(dir, target string, head, body []byte) error {
	tmp, err := os.CreateTemp(dir, tempPattern)
	if errors.Is(err, os.ErrNotExist) {
		if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
			return fmt.Errorf("failed to create owner directory: %w", mkErr)
		}
		tmp, err = os.CreateTemp(dir, tempPattern)
	}
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(msg string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%s: %w", msg, err)
	}

	if _, err := tmp.Write(head); err != nil {
		return fail("failed to write content", err)
	}
	if _, err := tmp.Write(body); err != nil {
		return fail("failed to write content", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("failed to sync content", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit content: %w", err)
	}
	return nil
}
