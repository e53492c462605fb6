package blob

import (
	"context"
	"path"
)

// Scoped prefixes every object name with prefix, giving each field index its
// own directory (body/, title/, anchor/) in a shared store.
func Scoped(store Store, prefix string) Store {
	if prefix == "" {
		return store
	}
	return &scopedStore{inner: store, prefix: prefix}
}

type scopedStore struct {
	inner  Store
	prefix string
}

func (s *scopedStore) Upload(ctx context.Context, name, localPath string) error {
	return s.inner.Upload(ctx, path.Join(s.prefix, name), localPath)
}

func (s *scopedStore) Download(ctx context.Context, name string) ([]byte, error) {
	return s.inner.Download(ctx, path.Join(s.prefix, name))
}
