package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// LocalStore keeps objects as files under a root directory. It backs
// single-machine deployments and tests.
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Filesystem("creating blob root", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("%w: blob name %q escapes store root", apperrors.ErrInvalidInput, name)
	}
	return filepath.Join(s.root, clean), nil
}

// Upload copies localPath to the object name through a temp file and rename,
// so readers never observe a partial object.
func (s *LocalStore) Upload(ctx context.Context, name, localPath string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("uploading "+name, err)
	}
	dst, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperrors.Storage("uploading "+name, err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return apperrors.Filesystem("opening "+localPath, err)
	}
	defer src.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return apperrors.Storage("uploading "+name, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return apperrors.Storage("uploading "+name, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return apperrors.Storage("uploading "+name, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return apperrors.Storage("uploading "+name, err)
	}
	return nil
}

// Download reads the whole object.
func (s *LocalStore) Download(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Storage("downloading "+name, err)
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, apperrors.Storage("downloading "+name, err)
	}
	return data, nil
}
