package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/content"
)

// S3ContentStore implements ContentStore using Amazon S3 or S3-compatible storage.
//
// Key Design:
//   - One object per fragment payload
//   - Format: "<prefix><escaped owner>/<escaped id>"
//   - Owner and id are path-escaped, so a "/" inside either never creates
//     an ambiguous key
//
// Example:
//
//	Owner:      "alice@example.com"
//	ID:         "4f1c..."
//	Key Prefix: "fragments/"
//	S3 Key:     "fragments/alice@example.com/4f1c..."
//
// Absence:
// NoSuchKey (or a bare 404) from GetObject is reported as (nil, false, nil).
// DeleteObject on a missing key already succeeds in S3.
//
// Thread Safety:
// This implementation is safe for concurrent use by multiple goroutines.
// Concurrent writes to the same key are last-write-wins.
type S3ContentStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string // Optional prefix for all keys
}

// S3ContentStoreConfig contains configuration for S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "fragments/" results in keys like "fragments/owner/id"
	KeyPrefix string
}

// NewS3ContentStore creates a new S3-based content store.
//
// This verifies bucket access. The bucket must already exist - this function
// does not create it.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	logger.Debug("S3 content store on bucket %s (prefix=%q)", cfg.Bucket, cfg.KeyPrefix)

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// objectKey returns the full S3 object key for (ownerID, id).
func objectKey(prefix, ownerID, id string) string {
	return prefix + url.PathEscape(ownerID) + "/" + url.PathEscape(id)
}

// parseObjectKey reverses objectKey. Keys outside the prefix or not of the
// form "<owner>/<id>" are rejected.
func parseObjectKey(prefix, key string) (content.Key, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return content.Key{}, false
	}

	escapedOwner, escapedID, ok := strings.Cut(rest, "/")
	if !ok || escapedOwner == "" || escapedID == "" || strings.Contains(escapedID, "/") {
		return content.Key{}, false
	}

	ownerID, err := url.PathUnescape(escapedOwner)
	if err != nil {
		return content.Key{}, false
	}
	id, err := url.PathUnescape(escapedID)
	if err != nil {
		return content.Key{}, false
	}

	return content.Key{OwnerID: ownerID, ID: id}, true
}

// ============================================================================
// ContentStore Interface Implementation
// ============================================================================

// Write uploads data as a single object, replacing any previous payload.
func (s *S3ContentStore) Write(ctx context.Context, ownerID, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return err
	}

	key := objectKey(s.keyPrefix, ownerID, id)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return nil
}

// Read downloads the object stored under (ownerID, id).
func (s *S3ContentStore) Read(ctx context.Context, ownerID, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return nil, false, err
	}

	key := objectKey(s.keyPrefix, ownerID, id)

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if data == nil {
		data = []byte{}
	}

	return data, true, nil
}

// Delete removes the object stored under (ownerID, id).
func (s *S3ContentStore) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(ownerID, id); err != nil {
		return err
	}

	key := objectKey(s.keyPrefix, ownerID, id)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return nil
}

// ListAllContent pages through every object under the key prefix.
//
// Objects whose keys were not written by this store are skipped.
func (s *S3ContentStore) ListAllContent(ctx context.Context) ([]content.Key, error) {
	var keys []content.Key

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key, ok := parseObjectKey(s.keyPrefix, aws.ToString(obj.Key))
			if !ok {
				logger.Debug("Skipping foreign object %s", aws.ToString(obj.Key))
				continue
			}
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close is a no-op; the S3 client owns no resources that need releasing.
func (s *S3ContentStore) Close() error {
	return nil
}

// isNotFound reports whether err means the object does not exist.
//
// S3-compatible services disagree on how they report this: AWS returns a
// typed NoSuchKey, others only an API error code. The HTTP status alone is
// not enough, since a missing bucket is also a 404 and must surface as an
// error.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}

	return false
}
