// Package blob abstracts the remote object store that holds posting blocks,
// bucket location maps, field index metadata and the PageRank/title lookups.
// Objects are immutable once uploaded.
package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// Store uploads local files and downloads whole objects by name. Names use
// forward slashes regardless of backend.
type Store interface {
	Upload(ctx context.Context, name, localPath string) error
	Download(ctx context.Context, name string) ([]byte, error)
}

// IsNotFound reports whether err is a download of an object that does not
// exist.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

func notFound(name string) error {
	return apperrors.Storage(fmt.Sprintf("downloading %s", name), apperrors.ErrNotFound)
}

// Open builds the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalStore(cfg.LocalDir)
	case "gcs":
		return NewGCSStore(ctx, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// Closer is implemented by stores holding network clients.
type Closer interface {
	Close() error
}
