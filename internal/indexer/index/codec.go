package index

import (
	"encoding/binary"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

const (
	// RecordSize is the width of one encoded posting: a 4-byte document id
	// followed by a 2-byte term frequency, both big-endian.
	RecordSize = 6
	// MaxTF is the largest frequency the record can hold. Larger values are
	// stored modulo 65536.
	MaxTF = 0xFFFF
)

// EncodePosting writes p into dst, which must hold RecordSize bytes.
func EncodePosting(dst []byte, p Posting) {
	binary.BigEndian.PutUint32(dst[0:4], p.DocID)
	binary.BigEndian.PutUint16(dst[4:6], uint16(p.TF&MaxTF))
}

// Encode serialises list as len(list)*RecordSize bytes in list order.
func Encode(list PostingList) []byte {
	out := make([]byte, len(list)*RecordSize)
	for i, p := range list {
		EncodePosting(out[i*RecordSize:], p)
	}
	return out
}

// Decode parses exactly count records from b.
func Decode(b []byte, count int) (PostingList, error) {
	if count < 0 || len(b)%RecordSize != 0 || len(b) != count*RecordSize {
		return nil, apperrors.Decodef("posting bytes: have %d, want %d records of %d bytes", len(b), count, RecordSize)
	}
	list := make(PostingList, count)
	for i := range list {
		rec := b[i*RecordSize:]
		list[i] = Posting{
			DocID: binary.BigEndian.Uint32(rec[0:4]),
			TF:    uint32(binary.BigEndian.Uint16(rec[4:6])),
		}
	}
	return list, nil
}

// DecodeAll parses b, inferring the record count from its length.
func DecodeAll(b []byte) (PostingList, error) {
	return Decode(b, len(b)/RecordSize)
}

// Truncated counts postings whose TF does not fit the record.
func Truncated(list PostingList) int {
	n := 0
	for _, p := range list {
		if p.TF > MaxTF {
			n++
		}
	}
	return n
}
