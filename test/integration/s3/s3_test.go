//go:build integration

package s3_test

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/fragments/pkg/config"
	s3store "github.com/marmos91/fragments/pkg/content/s3"
	"github.com/marmos91/fragments/pkg/fragment"
	"github.com/marmos91/fragments/pkg/gc"
	"github.com/marmos91/fragments/pkg/metadata/memory"
	"github.com/marmos91/fragments/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestS3 creates an S3 client and test bucket for integration tests.
//
// It connects to Localstack (or other S3-compatible endpoint) and creates a
// test bucket that is emptied and removed when the test finishes.
func setupTestS3(t *testing.T, bucketName string) *s3.Client {
	t.Helper()
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	client, err := config.NewS3Client(ctx, config.S3Options{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxRetries:      3,
	})
	require.NoError(t, err)

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err, "create test bucket")

	t.Cleanup(func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucketName),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}

		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	})

	return client
}

func newStore(t *testing.T, client *s3.Client, bucket, prefix string) *s3store.S3ContentStore {
	t.Helper()

	store, err := s3store.NewS3ContentStore(context.Background(), s3store.S3ContentStoreConfig{
		Client:    client,
		Bucket:    bucket,
		KeyPrefix: prefix,
	})
	require.NoError(t, err)
	return store
}

// TestS3_FragmentLifecycle drives the service end to end with payloads in S3
// and verifies the collector only removes bytes with no metadata.
//
// Prerequisites:
//   - Localstack running on localhost:4566 (or LOCALSTACK_ENDPOINT)
//   - Run with: go test -tags=integration ./test/integration/s3/...
func TestS3_FragmentLifecycle(t *testing.T) {
	ctx := context.Background()

	bucketName := "fragments-lifecycle-test"
	client := setupTestS3(t, bucketName)

	contentStore := newStore(t, client, bucketName, "fragments/")
	metadataStore := memory.NewMemoryMetadataStoreWithDefaults()

	svc := service.New(fragment.NewRepository(metadataStore, contentStore), service.Options{})

	f, err := svc.Create(ctx, "alice@example.com", "text/markdown", []byte("# Title"))
	require.NoError(t, err)

	p, err := svc.ReadByExtension(ctx, "alice@example.com", f.ID+".md")
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(p.Data))

	// A payload nobody references, as left behind by an interrupted create.
	require.NoError(t, contentStore.Write(ctx, "alice@example.com", "orphan", []byte("stale")))

	collector, err := gc.NewCollector(metadataStore, contentStore, gc.Config{})
	require.NoError(t, err)

	stats, err := collector.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.DeletedCount)

	_, ok, err := contentStore.Read(ctx, "alice@example.com", "orphan")
	require.NoError(t, err)
	assert.False(t, ok, "orphan should be gone")

	p, err = svc.Read(ctx, "alice@example.com", f.ID, "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(p.Data))

	require.NoError(t, svc.Delete(ctx, "alice@example.com", f.ID))
	_, err = svc.Info(ctx, "alice@example.com", f.ID)
	assert.ErrorIs(t, err, fragment.ErrNotFound)
}
