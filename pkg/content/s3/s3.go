// Package s3 implements S3-based durable content storage.
//
// Committed blobs are stored as objects keyed by ContentID under an optional
// key prefix. Upload sessions always stage locally; at commit the assembled
// file is ingested here with a multipart upload (large files) or a single
// PutObject (small files). Download chunks use byte-range GetObject requests,
// so reads never download the whole object.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/farid-asgarli/ws-cloud/pkg/content"
)

// S3ContentStore implements content.Store using Amazon S3 or S3-compatible
// storage (custom endpoint supported for MinIO, Cubbit DS3, LocalStack).
//
// Thread Safety: safe for concurrent use. Concurrent ingest of the same
// content-addressed id is last-write-wins with identical bytes.
type S3ContentStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	partSize  int64
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name (must already exist)
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	KeyPrefix string

	// PartSize is the multipart upload part size (default 10MB; S3 requires
	// 5MB..5GB)
	PartSize int64
}

// NewS3ContentStore creates an S3-based content store and verifies bucket
// access with a HeadBucket call.
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

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = 10 * 1024 * 1024
	}
	if partSize < 5*1024*1024 {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}

	store := &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		partSize:  partSize,
	}

	if _, err := store.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
	}

	return store, nil
}

// getObjectKey maps a content id to its S3 object key.
func (s *S3ContentStore) getObjectKey(id content.ID) string {
	return s.keyPrefix + string(id)
}

// ReadAt reads exactly len(p) bytes at offset using an S3 byte-range request.
func (s *S3ContentStore) ReadAt(ctx context.Context, id content.ID, p []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(p) == 0 {
		return nil
	}

	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+int64(len(p))-1)

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return fmt.Errorf("failed to get object range from S3: %w", err)
	}
	defer func() { _ = result.Body.Close() }()

	if _, err := io.ReadFull(result.Body, p); err != nil {
		return fmt.Errorf("failed to read object range: %w", err)
	}

	return nil
}

// Size returns the object size via HeadObject.
func (s *S3ContentStore) Size(ctx context.Context, id content.ID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}

	return aws.ToInt64(result.ContentLength), nil
}

// Exists reports whether the object is present.
func (s *S3ContentStore) Exists(ctx context.Context, id content.ID) (bool, error) {
	_, err := s.Size(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, content.ErrContentNotFound) {
		return false, nil
	}
	return false, err
}

// IngestFile uploads a fully assembled local file and removes it on success.
//
// Files at or below the part size use a single PutObject; larger files use a
// multipart upload with sequential parts read straight from the file.
func (s *S3ContentStore) IngestFile(ctx context.Context, localPath string, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		// Content-addressed: identical bytes are already durable.
		return os.Remove(localPath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open staged file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat staged file: %w", err)
	}

	if info.Size() <= s.partSize {
		if err := s.putWhole(ctx, id, f); err != nil {
			return err
		}
	} else {
		if err := s.putMultipart(ctx, id, f, info.Size()); err != nil {
			return err
		}
	}

	_ = f.Close()
	return os.Remove(localPath)
}

// putWhole uploads small content with a single PutObject call.
func (s *S3ContentStore) putWhole(ctx context.Context, id content.ID, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read staged file: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object to S3: %w", err)
	}

	return nil
}

// putMultipart uploads large content in parts, aborting the upload on any
// failure so S3 does not accumulate dangling part storage.
func (s *S3ContentStore) putMultipart(ctx context.Context, id content.ID, f *os.File, size int64) error {
	key := s.getObjectKey(id)

	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	abort := func() {
		_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
	}

	var completed []types.CompletedPart
	buf := make([]byte, s.partSize)
	partNumber := int32(1)

	for offset := int64(0); offset < size; offset += s.partSize {
		if err := ctx.Err(); err != nil {
			abort()
			return err
		}

		n, err := f.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			abort()
			return fmt.Errorf("failed to read staged part %d: %w", partNumber, err)
		}

		result, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(key),
			UploadId:   uploadID,
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(buf[:n]),
		})
		if err != nil {
			abort()
			return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
		}

		completed = append(completed, types.CompletedPart{
			ETag:       result.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		abort()
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	return nil
}

// Delete removes the object. Deleting absent content is not an error (S3
// DeleteObject is idempotent).
func (s *S3ContentStore) Delete(ctx context.Context, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	return nil
}

// DeleteBatch removes up to 1000 blobs with a single DeleteObjects call
// (the S3 per-request limit; the orphan collector batches accordingly).
func (s *S3ContentStore) DeleteBatch(ctx context.Context, ids []content.ID) (map[content.ID]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return map[content.ID]error{}, nil
	}
	if len(ids) > 1000 {
		return nil, fmt.Errorf("delete batch exceeds S3 limit: %d > 1000", len(ids))
	}

	objects := make([]types.ObjectIdentifier, 0, len(ids))
	for _, id := range ids {
		objects = append(objects, types.ObjectIdentifier{
			Key: aws.String(s.getObjectKey(id)),
		})
	}

	result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete objects from S3: %w", err)
	}

	failures := make(map[content.ID]error)
	for _, e := range result.Errors {
		key := aws.ToString(e.Key)
		id := content.ID(key[len(s.keyPrefix):])
		failures[id] = fmt.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message))
	}
	return failures, nil
}

// ListAll enumerates every ContentID in the bucket (under the key prefix)
// for the orphan collector, following pagination.
func (s *S3ContentStore) ListAll(ctx context.Context) ([]content.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []content.ID
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
			key := aws.ToString(obj.Key)
			ids = append(ids, content.ID(key[len(s.keyPrefix):]))
		}
	}

	return ids, nil
}

// Close implements content.Store. The S3 client holds no local resources.
func (s *S3ContentStore) Close() error {
	return nil
}
