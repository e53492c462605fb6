package block

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// Reader is a read session over one field's blocks. Each block is downloaded
// at most once per session and kept for the session's lifetime. A Reader is
// not safe for concurrent use; open one per query and field.
type Reader struct {
	store    blob.Store
	capacity int
	cache    map[string][]byte
	fetches  int
}

// NewReader starts a session with an empty block cache. capacity must match
// the capacity the blocks were written with.
func NewReader(store blob.Store, capacity int) *Reader {
	return &Reader{
		store:    store,
		capacity: capacity,
		cache:    make(map[string][]byte),
	}
}

func (r *Reader) block(ctx context.Context, name string) ([]byte, error) {
	if data, ok := r.cache[name]; ok {
		return data, nil
	}
	data, err := r.store.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	r.fetches++
	r.cache[name] = data
	return data, nil
}

// Read reassembles n bytes starting at locs[0], continuing at each following
// location until n bytes are collected.
func (r *Reader) Read(ctx context.Context, locs []Location, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for _, loc := range locs {
		need := n - len(out)
		if need == 0 {
			break
		}
		data, err := r.block(ctx, loc.Block)
		if err != nil {
			return nil, err
		}
		off := int(loc.Offset)
		take := min(need, r.capacity-off)
		if take < 0 || off+take > len(data) {
			return nil, apperrors.Storage("reading "+loc.Block,
				fmt.Errorf("block holds %d bytes, need [%d,%d)", len(data), off, off+take))
		}
		out = append(out, data[off:off+take]...)
	}
	if len(out) != n {
		return nil, apperrors.Storage("reading postings",
			fmt.Errorf("locations cover %d of %d bytes", len(out), n))
	}
	return out, nil
}

// Fetches reports how many blocks this session downloaded.
func (r *Reader) Fetches() int {
	return r.fetches
}

// Directory resolves a term to its posting list extent.
type Directory interface {
	DocFreq(term string) (uint32, bool)
	Locations(term string) []Location
}

// ReadPostingList reads and decodes the posting list of term. A term outside
// the vocabulary yields a nil list and no error.
func (r *Reader) ReadPostingList(ctx context.Context, dir Directory, term string) (index.PostingList, error) {
	df, ok := dir.DocFreq(term)
	if !ok {
		return nil, nil
	}
	locs := dir.Locations(term)
	if len(locs) == 0 {
		return nil, apperrors.Decodef("term %q has df %d but no locations", term, df)
	}
	data, err := r.Read(ctx, locs, int(df)*index.RecordSize)
	if err != nil {
		return nil, fmt.Errorf("term %q: %w", term, err)
	}
	return index.Decode(data, int(df))
}
