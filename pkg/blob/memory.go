package blob

import (
	"context"
	"os"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// MemoryStore is an in-process Store that counts calls. It is used by tests
// and by dry-run builds.
type MemoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploads   int
	downloads int
	// FailUpload, when set, is consulted before each upload.
	FailUpload func(name string) error
	// FailDownload, when set, is consulted before each download.
	FailDownload func(name string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Upload(ctx context.Context, name, localPath string) error {
	m.mu.Lock()
	hook := m.FailUpload
	m.uploads++
	m.mu.Unlock()
	if hook != nil {
		if err := hook(name); err != nil {
			return apperrors.Storage("uploading "+name, err)
		}
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return apperrors.Filesystem("reading "+localPath, err)
	}
	m.Put(name, data)
	return nil
}

func (m *MemoryStore) Download(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	hook := m.FailDownload
	m.downloads++
	data, ok := m.objects[name]
	m.mu.Unlock()
	if hook != nil {
		if err := hook(name); err != nil {
			return nil, apperrors.Storage("downloading "+name, err)
		}
	}
	if !ok {
		return nil, notFound(name)
	}
	return append([]byte(nil), data...), nil
}

// Put stores data under name without counting an upload.
func (m *MemoryStore) Put(name string, data []byte) {
	m.mu.Lock()
	m.objects[name] = append([]byte(nil), data...)
	m.mu.Unlock()
}

// Names lists stored objects in lexical order.
func (m *MemoryStore) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.objects))
	for n := range m.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Uploads returns the number of Upload calls.
func (m *MemoryStore) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// Downloads returns the number of Download calls.
func (m *MemoryStore) Downloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloads
}
