// Package meta holds the per-field index metadata: document lengths,
// per-term statistics and where each posting list lives. It is built once
// after all buckets are written and is read-only afterwards.
package meta

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/block"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// IndexMetadata describes one field index.
type IndexMetadata struct {
	Field string
	// Run is the build run whose blocks Locs refer to. Empty for indexes
	// whose blocks sit directly under the field.
	Run        string
	BlockSize  int
	DocLengths map[uint32]uint32
	DF         map[string]uint32
	TermTotal  map[string]uint64
	Locs       map[string][]block.Location
}

// New returns empty metadata for field.
func New(field string, blockSize int) *IndexMetadata {
	return &IndexMetadata{
		Field:      field,
		BlockSize:  blockSize,
		DocLengths: make(map[uint32]uint32),
		DF:         make(map[string]uint32),
		TermTotal:  make(map[string]uint64),
		Locs:       make(map[string][]block.Location),
	}
}

// ObjectName is the blob name of a field's metadata within the field scope.
func ObjectName(field string) string {
	return field + "_index.idx"
}

// BlockScope is the store prefix holding the blocks and location maps of
// one build run of field.
func BlockScope(field, run string) string {
	return path.Join(field, run)
}

// CheckRun rejects run ids that cannot be used as a single path element.
func CheckRun(run string) error {
	if run == "" || run == "." || run == ".." || strings.ContainsAny(run, `/\`) {
		return fmt.Errorf("%w: run id %q is not a valid object prefix", apperrors.ErrInvalidInput, run)
	}
	return nil
}

// BlockScope is the store prefix that Locs are relative to.
func (m *IndexMetadata) BlockScope() string {
	return BlockScope(m.Field, m.Run)
}

// LocationsObjectName is the blob name of a bucket's location map.
func LocationsObjectName(bucket int) string {
	return fmt.Sprintf("%d_posting_locs.bin", bucket)
}

// NumDocs is the collection size N used in idf.
func (m *IndexMetadata) NumDocs() int {
	return len(m.DocLengths)
}

func (m *IndexMetadata) DocLength(id uint32) (uint32, bool) {
	n, ok := m.DocLengths[id]
	return n, ok
}

func (m *IndexMetadata) DocFreq(term string) (uint32, bool) {
	df, ok := m.DF[term]
	return df, ok
}

func (m *IndexMetadata) TotalFreq(term string) (uint64, bool) {
	total, ok := m.TermTotal[term]
	return total, ok
}

func (m *IndexMetadata) Locations(term string) []block.Location {
	return m.Locs[term]
}

// InVocabulary reports whether term has both a document frequency and a
// total frequency.
func (m *IndexMetadata) InVocabulary(term string) bool {
	if _, ok := m.DF[term]; !ok {
		return false
	}
	_, ok := m.TermTotal[term]
	return ok
}

// Terms returns the vocabulary in lexical order.
func (m *IndexMetadata) Terms() []string {
	terms := make([]string, 0, len(m.DF))
	for t := range m.DF {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Merge folds per-bucket location maps into m. Buckets partition the
// vocabulary, so a term seen twice is a build bug.
func (m *IndexMetadata) Merge(bucketLocs ...map[string][]block.Location) error {
	for _, locs := range bucketLocs {
		for term, l := range locs {
			if _, dup := m.Locs[term]; dup {
				return fmt.Errorf("%w: term %q located in more than one bucket", apperrors.ErrInternal, term)
			}
			m.Locs[term] = l
		}
	}
	return nil
}

// Validate checks that every vocabulary term has statistics and locations.
func (m *IndexMetadata) Validate() error {
	if m.BlockSize <= 0 {
		return apperrors.Decodef("index %s: block size %d", m.Field, m.BlockSize)
	}
	for term, df := range m.DF {
		if df == 0 {
			return apperrors.Decodef("index %s: term %q has df 0", m.Field, term)
		}
		if _, ok := m.TermTotal[term]; !ok {
			return apperrors.Decodef("index %s: term %q has no total frequency", m.Field, term)
		}
		if len(m.Locs[term]) == 0 {
			return apperrors.Decodef("index %s: term %q has no locations", m.Field, term)
		}
	}
	return nil
}
