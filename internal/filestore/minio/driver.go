// Package minio provides a MinIO implementation of filestore.Store.
// It talks to any S3-compatible endpoint, AWS included.
package minio

import (
	"context"
	"io"

	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
}

// New builds a client for cfg. It does not contact the server; a reader
// credential is often scoped to a single object, so reachability is
// checked by the first read or an explicit Ping.
func New(cfg *filestore.Config) (*Driver, error) {
	if !cfg.Enabled() {
		return nil, errs.New(errs.ErrKindInvalidInput, "object store endpoint is not configured")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}
	return &Driver{client: client}, nil
}

// --- filestore.Store implementation ---

// Ping verifies the server is reachable and the credentials are accepted
// by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
// The caller MUST call Object.Close() after reading.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	// GetObject is lazy; Stat issues the request and surfaces 404s.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to get object")
	}

	return &object{
		ReadCloser: obj,
		info:       toObjectInfo(key, stat),
	}, nil
}

// StatObject returns metadata for the object at key inside bucket.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}
	return toObjectInfo(key, stat), nil
}

func toObjectInfo(key string, stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	return &filestore.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}
}

// --- internal types ---

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
