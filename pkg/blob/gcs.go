package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// GCSStore keeps objects in a Google Cloud Storage bucket. Credentials come
// from the environment (Application Default Credentials).
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSStore connects to bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, apperrors.Storage("creating gcs client", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket)}, nil
}

func (s *GCSStore) Upload(ctx context.Context, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return apperrors.Filesystem("opening "+localPath, err)
	}
	defer f.Close()

	w := s.bucket.Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return apperrors.Storage("uploading "+name, err)
	}
	// The object only becomes visible once Close succeeds.
	if err := w.Close(); err != nil {
		return apperrors.Storage("uploading "+name, err)
	}
	return nil
}

func (s *GCSStore) Download(ctx context.Context, name string) ([]byte, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, apperrors.Storage("downloading "+name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Storage(fmt.Sprintf("reading %s", name), err)
	}
	return data, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
