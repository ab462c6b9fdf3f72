// Package filestore reads objects from S3-compatible bucket storage.
//
// sqlgate uses it to fetch a connection registry that is published to a
// bucket instead of shipped next to the binary. Callers depend only on
// this package; the MinIO SDK lives behind filestore/minio.
//
// Usage:
//
//	store, err := minio.New(cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	loc, err := filestore.ParseLocation("s3://ops-config/sqlgate/databases.yaml")
//	data, err := filestore.ReadAll(ctx, store, loc, filestore.DefaultMaxSize)
package filestore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/koustreak/sqlgate/internal/errs"
)

// Scheme prefixes every remote location.
const Scheme = "s3://"

// DefaultMaxSize bounds how much ReadAll will load. A registry is a few
// kilobytes; anything near this size is a wrong key.
const DefaultMaxSize int64 = 1 << 20

// Store is the interface all object storage providers implement.
// It is read-only.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	Key          string
	Size         int64 // -1 if unknown
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Object is a streaming handle to an object's content.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// --- locations ---

// Location addresses one object.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return Scheme + l.Bucket + "/" + l.Key
}

// IsRemote reports whether loc names an object rather than a local path.
func IsRemote(loc string) bool {
	return strings.HasPrefix(loc, Scheme)
}

// ParseLocation splits "s3://bucket/path/to/key".
func ParseLocation(loc string) (Location, error) {
	if !IsRemote(loc) {
		return Location{}, errs.Newf(errs.ErrKindInvalidInput, "location %q does not start with %s", loc, Scheme)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(loc, Scheme), "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, errs.Newf(errs.ErrKindInvalidInput, "location %q must be %sbucket/key", loc, Scheme)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// ReadAll fetches the whole object at loc, refusing objects larger than
// maxSize bytes.
func ReadAll(ctx context.Context, s Store, loc Location, maxSize int64) ([]byte, error) {
	info, err := s.StatObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}
	if info.Size > maxSize {
		return nil, tooLarge(loc, maxSize)
	}

	obj, err := s.GetObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	// The object may have changed between stat and get.
	data, err := io.ReadAll(io.LimitReader(obj, maxSize+1))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, fmt.Sprintf("failed to read %s", loc), err)
	}
	if int64(len(data)) > maxSize {
		return nil, tooLarge(loc, maxSize)
	}
	return data, nil
}

func tooLarge(loc Location, maxSize int64) error {
	return errs.Newf(errs.ErrKindInvalidInput, "object %s is larger than %d bytes", loc, maxSize)
}
