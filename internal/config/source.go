package config

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
)

// ReadSource returns the raw registry document at location: a local path,
// or s3://bucket/key read through store. store may be nil for local paths.
func ReadSource(ctx context.Context, location string, store filestore.Store) ([]byte, error) {
	if location == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "no registry source given")
	}

	if filestore.IsRemote(location) {
		loc, err := filestore.ParseLocation(location)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s needs an object store endpoint", location)
		}
		return filestore.ReadAll(ctx, store, loc, filestore.DefaultMaxSize)
	}

	data, err := os.ReadFile(location)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, errs.Wrap(errs.ErrKindNotFound, "registry source "+location+" does not exist", err)
	case err != nil:
		return nil, errs.Wrap(errs.ErrKindConfigParse, "cannot read registry source "+location, err)
	}
	return data, nil
}

// LoadFile reads and parses a local registry file.
func LoadFile(path string, opts ...Option) (*Registry, error) {
	return LoadSource(context.Background(), path, nil, opts...)
}

// LoadSource reads and parses the registry at location.
func LoadSource(ctx context.Context, location string, store filestore.Store, opts ...Option) (*Registry, error) {
	data, err := ReadSource(ctx, location, store)
	if err != nil {
		return nil, err
	}
	return Load(data, opts...)
}
