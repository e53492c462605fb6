// Package block stores a bucket's concatenated posting lists in fixed-capacity
// block files. A posting list that does not fit in the current block
// continues at offset 0 of the next one, so a list is addressed by an ordered
// slice of Locations. Blocks are sealed once full and then never modified.
package block

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// DefaultCapacity holds 333,333 six-byte posting records.
const DefaultCapacity = 1999998

// Location is where one segment of a posting list starts.
type Location struct {
	Block  string
	Offset uint32
}

// Name returns the file name of block seq of bucket name.
func Name(name string, seq int) string {
	return fmt.Sprintf("%s_%03d.bin", name, seq)
}

// Observer is notified of block lifecycle events. Used for build metrics.
type Observer interface {
	BlockSealed(name string, size int)
	BlockUploaded(name string, err error)
}

// Writer is a single-threaded session that appends posting lists to the
// blocks of one bucket, uploading each block as soon as it is full.
type Writer struct {
	dir      string
	name     string
	capacity int
	store    blob.Store
	observer Observer
	logger   *slog.Logger

	seq      int
	file     *os.File
	tmpPath  string
	used     int
	sealed   []string
	uploaded map[string]bool
}

// NewWriter opens block 0 of bucket name under dir.
func NewWriter(dir, name string, capacity int, store blob.Store) (*Writer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: block capacity must be positive, got %d", apperrors.ErrInvalidInput, capacity)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Filesystem("creating block directory", err)
	}
	w := &Writer{
		dir:      dir,
		name:     name,
		capacity: capacity,
		store:    store,
		logger:   slog.Default().With("component", "block-writer", "bucket", name),
		uploaded: make(map[string]bool),
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Observe registers o for block events.
func (w *Writer) Observe(o Observer) {
	w.observer = o
}

func (w *Writer) current() string {
	return Name(w.name, w.seq)
}

func (w *Writer) open() error {
	w.tmpPath = filepath.Join(w.dir, w.current()+".tmp")
	f, err := os.Create(w.tmpPath)
	if err != nil {
		return apperrors.Filesystem("creating block "+w.current(), err)
	}
	w.file = f
	w.used = 0
	return nil
}

// Write appends payload and returns the locations of its segments in order.
// When the open block is full it is sealed and uploaded before the next one
// opens; an upload failure aborts the write.
func (w *Writer) Write(ctx context.Context, payload []byte) ([]Location, error) {
	if w.file == nil {
		return nil, fmt.Errorf("%w: write to closed block writer %s", apperrors.ErrInternal, w.name)
	}
	var locs []Location
	for len(payload) > 0 {
		remaining := w.capacity - w.used
		if remaining == 0 {
			if err := w.seal(); err != nil {
				return nil, err
			}
			if err := w.upload(ctx, w.sealed[len(w.sealed)-1]); err != nil {
				return nil, err
			}
			w.seq++
			if err := w.open(); err != nil {
				return nil, err
			}
			remaining = w.capacity
		}
		n := min(remaining, len(payload))
		if _, err := w.file.Write(payload[:n]); err != nil {
			return nil, apperrors.Filesystem("writing block "+w.current(), err)
		}
		locs = append(locs, Location{Block: w.current(), Offset: uint32(w.used)})
		w.used += n
		payload = payload[n:]
	}
	return locs, nil
}

// seal fsyncs, closes and renames the open block to its final name.
func (w *Writer) seal() error {
	name := w.current()
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return apperrors.Filesystem("syncing block "+name, err)
	}
	if err := w.file.Close(); err != nil {
		return apperrors.Filesystem("closing block "+name, err)
	}
	w.file = nil
	if err := os.Rename(w.tmpPath, filepath.Join(w.dir, name)); err != nil {
		return apperrors.Filesystem("renaming block "+name, err)
	}
	w.sealed = append(w.sealed, name)
	if w.observer != nil {
		w.observer.BlockSealed(name, w.used)
	}
	w.logger.Debug("block sealed", "block", name, "bytes", w.used)
	return nil
}

func (w *Writer) upload(ctx context.Context, name string) error {
	err := w.store.Upload(ctx, name, filepath.Join(w.dir, name))
	if w.observer != nil {
		w.observer.BlockUploaded(name, err)
	}
	if err != nil {
		return fmt.Errorf("bucket %s: %w", w.name, err)
	}
	w.uploaded[name] = true
	return nil
}

// Close seals the open block without uploading it. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	return w.seal()
}

// Upload seals the open block if needed and uploads the last block. Together
// with the uploads done while writing, every block of the bucket is then in
// the store.
func (w *Writer) Upload(ctx context.Context) error {
	if err := w.Close(); err != nil {
		return err
	}
	if len(w.sealed) == 0 {
		return fmt.Errorf("%w: bucket %s has no sealed block to upload", apperrors.ErrInternal, w.name)
	}
	last := w.sealed[len(w.sealed)-1]
	if w.uploaded[last] {
		return nil
	}
	return w.upload(ctx, last)
}

// Blocks lists the sealed block names in write order.
func (w *Writer) Blocks() []string {
	return append([]string(nil), w.sealed...)
}

// Abort closes and removes the open temp block. Used when a bucket attempt
// fails and will be retried with a fresh writer.
func (w *Writer) Abort() {
	if w.file != nil {
		w.file.Close()
		os.Remove(w.tmpPath)
		w.file = nil
	}
}
