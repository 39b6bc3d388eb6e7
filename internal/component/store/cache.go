package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func bytesReader(data []byte) *bytes.Reader { return bytes.NewReader(data) }

// CacheBackend persists and retrieves cache entries keyed by the exact
// filename the dual-cache algorithm computes
// (`<sha256-hex>.wasm`, for either the content or the locator hash). It
// is the pluggable storage behind the artifact cache root, independent
// of which locator scheme an artifact was fetched from.
type CacheBackend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// FileCacheBackend is the default CacheBackend: a local directory,
// written atomically via a temp file plus rename so concurrent writers
// racing to cache identical bytes never observe a torn file.
type FileCacheBackend struct {
	root string
	mu   sync.Mutex
}

func NewFileCacheBackend(root string) (*FileCacheBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root %s: %w", root, err)
	}
	return &FileCacheBackend{root: root}, nil
}

func (c *FileCacheBackend) Put(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.root, key)
	if _, err := os.Stat(path); err == nil {
		return nil // idempotent: same key implies same bytes
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit cache entry %s: %w", key, err)
	}
	return nil
}

func (c *FileCacheBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(c.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// S3CacheBackend keeps the artifact cache in an S3 bucket so it can be
// shared across hosts instead of living on local disk.
type S3CacheBackend struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3CacheBackend(client *s3.Client, bucket, prefix string) *S3CacheBackend {
	return &S3CacheBackend{client: client, bucket: bucket, prefix: prefix}
}

func (c *S3CacheBackend) Put(ctx context.Context, key string, data []byte) error {
	objectKey := c.prefix + key
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(objectKey)})
	if err == nil {
		return nil // idempotent
	}
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey),
		Body:   bytesReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", objectKey, err)
	}
	return nil
}

func (c *S3CacheBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	objectKey := c.prefix + key
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(objectKey)})
	if err != nil {
		return nil, false, nil //nolint:nilerr // treated as cache miss; backend-specific not-found types vary
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("s3 read %s: %w", objectKey, err)
	}
	return data, true, nil
}

// GCSCacheBackend keeps the artifact cache in a Google Cloud Storage
// bucket, the GCS analog of S3CacheBackend.
type GCSCacheBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSCacheBackend(client *storage.Client, bucket, prefix string) *GCSCacheBackend {
	return &GCSCacheBackend{client: client, bucket: bucket, prefix: prefix}
}

func (c *GCSCacheBackend) Put(ctx context.Context, key string, data []byte) error {
	objectKey := c.prefix + key
	obj := c.client.Bucket(c.bucket).Object(objectKey)
	if _, err := obj.Attrs(ctx); err == nil {
		return nil // idempotent
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/wasm"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", objectKey, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", objectKey, err)
	}
	return nil
}

func (c *GCSCacheBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	objectKey := c.prefix + key
	r, err := c.client.Bucket(c.bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		return nil, false, nil //nolint:nilerr // treated as cache miss
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("gcs read %s: %w", objectKey, err)
	}
	return data, true, nil
}
