// Package shard assigns vocabulary terms to one of NumBuckets buckets. Every
// posting list of a bucket lives in that bucket's block files, so buckets are
// written independently and in parallel during a build.
package shard

import (
	"golang.org/x/crypto/blake2b"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
)

// NumBuckets is fixed: changing it reassigns every term and invalidates all
// published indexes.
const NumBuckets = 124

const digestSize = 5

// Bucket returns the bucket of term: the BLAKE2b-40 digest of its UTF-8
// bytes, read big-endian, modulo NumBuckets.
func Bucket(term string) int {
	h, err := blake2b.New(digestSize, nil)
	if err != nil {
		// only reachable with an invalid digest size
		panic(err)
	}
	h.Write([]byte(term))
	var sum [digestSize]byte
	h.Sum(sum[:0])
	var v uint64
	for _, b := range sum {
		v = v<<8 | uint64(b)
	}
	return int(v % NumBuckets)
}

// Partition groups entries by bucket, keeping input order within a bucket.
func Partition(entries []index.TermEntry) map[int][]index.TermEntry {
	out := make(map[int][]index.TermEntry)
	for _, e := range entries {
		b := Bucket(e.Term)
		out[b] = append(out[b], e)
	}
	return out
}
