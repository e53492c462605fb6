// Package benchmark contains Go benchmarks for the posting codec, bucket
// partitioning, the index build and the query pipeline.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
)

var vocabulary = []string{
	"rome", "empire", "python", "language", "river", "mountain", "football",
	"election", "album", "species", "galaxy", "novel", "railway", "castle",
	"volcano", "opera", "bridge", "island", "treaty", "painter",
}

func postingList(n int) index.PostingList {
	pl := make(index.PostingList, n)
	for i := range pl {
		pl[i] = index.Posting{DocID: uint32(i * 7), TF: uint32(i%10 + 1)}
	}
	return pl
}

// BenchmarkEncode measures posting serialisation for growing lists.
func BenchmarkEncode(b *testing.B) {
	for _, n := range []int{100, 10000, 1000000} {
		pl := postingList(n)
		b.Run(fmt.Sprintf("postings_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(n * index.RecordSize))
			for i := 0; i < b.N; i++ {
				out := index.Encode(pl)
				_ = out
			}
		})
	}
}

// BenchmarkDecode measures posting deserialisation for growing lists.
func BenchmarkDecode(b *testing.B) {
	for _, n := range []int{100, 10000, 1000000} {
		raw := index.Encode(postingList(n))
		b.Run(fmt.Sprintf("postings_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(raw)))
			for i := 0; i < b.N; i++ {
				pl, err := index.Decode(raw, n)
				if err != nil {
					b.Fatal(err)
				}
				_ = pl
			}
		})
	}
}

// BenchmarkSortAndMerge measures normalising an unsorted list with repeated
// document ids.
func BenchmarkSortAndMerge(b *testing.B) {
	src := make(index.PostingList, 50000)
	for i := range src {
		src[i] = index.Posting{DocID: uint32((i * 7919) % 20000), TF: 1}
	}
	work := make(index.PostingList, len(src))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(work, src)
		merged := index.SortAndMerge(work)
		_ = merged
	}
}

// BenchmarkBucket measures term to bucket hashing.
func BenchmarkBucket(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bucket := shard.Bucket(vocabulary[i%len(vocabulary)])
		_ = bucket
	}
}

func generateCorpus(n int) corpus.Static {
	docs := make(corpus.Static, n)
	for i := range docs {
		v := func(k int) string { return vocabulary[(i+k)%len(vocabulary)] }
		docs[i] = corpus.Document{
			ID:     uint32(i + 1),
			Title:  fmt.Sprintf("%s %s", v(0), v(1)),
			Body:   fmt.Sprintf("the %s of the %s near a %s and %s %s", v(0), v(2), v(3), v(5), v(0)),
			Anchor: fmt.Sprintf("%s %s", v(1), v(4)),
		}
	}
	return docs
}

// BenchmarkBuildAll measures a full three-field build into an in-memory
// store for growing corpora.
func BenchmarkBuildAll(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		docs := generateCorpus(n)
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				builder := indexer.NewBuilder(config.IndexConfig{
					WorkDir:       b.TempDir(),
					Fields:        []string{"body", "title", "anchor"},
					BlockSize:     1999998,
					Parallelism:   8,
					BucketRetries: 1,
				}, blob.NewMemoryStore(), indexer.Deps{})
				if _, err := builder.BuildAll(context.Background(), docs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
