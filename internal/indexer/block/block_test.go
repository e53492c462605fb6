package block

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// two postings per block
const testCapacity = 2 * index.RecordSize

func postings(ids ...uint32) index.PostingList {
	list := make(index.PostingList, len(ids))
	for i, id := range ids {
		list[i] = index.Posting{DocID: id, TF: id * 10}
	}
	return list
}

type countingObserver struct {
	sealed   []string
	uploaded []string
}

func (o *countingObserver) BlockSealed(name string, _ int) { o.sealed = append(o.sealed, name) }
func (o *countingObserver) BlockUploaded(name string, err error) {
	if err == nil {
		o.uploaded = append(o.uploaded, name)
	}
}

func TestSpanningWriteThreeBlocks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := blob.NewMemoryStore()
	obs := &countingObserver{}

	w, err := NewWriter(dir, "17", testCapacity, store)
	require.NoError(t, err)
	w.Observe(obs)

	list := postings(1, 2, 3, 4, 5)
	locs, err := w.Write(ctx, index.Encode(list))
	require.NoError(t, err)
	assert.Equal(t, []Location{
		{Block: "17_000.bin", Offset: 0},
		{Block: "17_001.bin", Offset: 0},
		{Block: "17_002.bin", Offset: 0},
	}, locs)

	// full blocks are uploaded while writing, the tail only on Upload
	assert.Equal(t, []string{"17_000.bin", "17_001.bin"}, store.Names())
	require.NoError(t, w.Upload(ctx))
	assert.Equal(t, []string{"17_000.bin", "17_001.bin", "17_002.bin"}, store.Names())
	assert.Equal(t, obs.sealed, obs.uploaded)
	assert.Equal(t, w.Blocks(), obs.sealed)

	for _, name := range w.Blocks() {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.NoFileExists(t, filepath.Join(dir, name+".tmp"))
	}

	r := NewReader(store, testCapacity)
	data, err := r.Read(ctx, locs, len(list)*index.RecordSize)
	require.NoError(t, err)
	got, err := index.DecodeAll(data)
	require.NoError(t, err)
	assert.Equal(t, list, got)
	assert.Equal(t, 3, r.Fetches())
}

func TestWriteContinuesMidBlock(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	w, err := NewWriter(t.TempDir(), "3", testCapacity, store)
	require.NoError(t, err)

	first, err := w.Write(ctx, index.Encode(postings(1)))
	require.NoError(t, err)
	assert.Equal(t, []Location{{"3_000.bin", 0}}, first)

	second, err := w.Write(ctx, index.Encode(postings(2, 3, 4)))
	require.NoError(t, err)
	assert.Equal(t, []Location{{"3_000.bin", 6}, {"3_001.bin", 0}}, second)

	// block 1 is exactly full; the next write rolls over before writing
	third, err := w.Write(ctx, index.Encode(postings(5)))
	require.NoError(t, err)
	assert.Equal(t, []Location{{"3_002.bin", 0}}, third)
	require.NoError(t, w.Upload(ctx))

	r := NewReader(store, testCapacity)
	data, err := r.Read(ctx, second, 3*index.RecordSize)
	require.NoError(t, err)
	got, err := index.DecodeAll(data)
	require.NoError(t, err)
	assert.Equal(t, postings(2, 3, 4), got)
}

func TestReaderCachesBlocksPerSession(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	w, err := NewWriter(t.TempDir(), "0", 10*index.RecordSize, store)
	require.NoError(t, err)
	a, err := w.Write(ctx, index.Encode(postings(1, 2)))
	require.NoError(t, err)
	b, err := w.Write(ctx, index.Encode(postings(3)))
	require.NoError(t, err)
	require.NoError(t, w.Upload(ctx))

	r := NewReader(store, 10*index.RecordSize)
	_, err = r.Read(ctx, a, 2*index.RecordSize)
	require.NoError(t, err)
	_, err = r.Read(ctx, b, index.RecordSize)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Fetches())
	assert.Equal(t, 1, store.Downloads())

	// a new session starts cold
	_, err = NewReader(store, 10*index.RecordSize).Read(ctx, b, index.RecordSize)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Downloads())
}

func TestUploadFailureAbortsWrite(t *testing.T) {
	store := blob.NewMemoryStore()
	store.FailUpload = func(string) error { return errors.New("quota exceeded") }
	w, err := NewWriter(t.TempDir(), "9", testCapacity, store)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), index.Encode(postings(1, 2, 3)))
	assert.ErrorIs(t, err, apperrors.ErrStorage)
}

func TestReaderDetectsMissingAndShortBlocks(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	r := NewReader(store, testCapacity)

	_, err := r.Read(ctx, []Location{{"5_000.bin", 0}}, 6)
	assert.ErrorIs(t, err, apperrors.ErrStorage)

	store.Put("5_000.bin", make([]byte, 4))
	_, err = NewReader(store, testCapacity).Read(ctx, []Location{{"5_000.bin", 0}}, 6)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
}

func TestWriterCloseThenUploadOnce(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	dir := t.TempDir()
	w, err := NewWriter(dir, "1", testCapacity, store)
	require.NoError(t, err)
	_, err = w.Write(ctx, index.Encode(postings(7)))
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.NoError(t, w.Upload(ctx))
	require.NoError(t, w.Upload(ctx))
	assert.Equal(t, 1, store.Uploads())

	_, err = w.Write(ctx, []byte{1})
	assert.ErrorIs(t, err, apperrors.ErrInternal)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type fakeDir map[string][]Location

func (d fakeDir) DocFreq(term string) (uint32, bool) {
	locs, ok := d[term]
	if !ok {
		return 0, false
	}
	return uint32(len(locs)), true
}

func (d fakeDir) Locations(term string) []Location { return d[term] }

func TestReadPostingListVocabularyMiss(t *testing.T) {
	store := blob.NewMemoryStore()
	list, err := NewReader(store, testCapacity).ReadPostingList(context.Background(), fakeDir{}, "zebra")
	require.NoError(t, err)
	assert.Nil(t, list)
	assert.Zero(t, store.Downloads())
}
