// Package index defines the posting model shared by the build and the query
// path, and the fixed-width binary codec posting lists are stored with.
package index

import "sort"

// Posting records that a document contains a term TF times.
type Posting struct {
	DocID uint32
	TF    uint32
}

// PostingList is ordered by DocID ascending with no repeated DocID once
// normalised by SortAndMerge.
type PostingList []Posting

// TermEntry is one vocabulary term with its posting list and the statistics
// derived from it.
type TermEntry struct {
	Term     string
	Postings PostingList
	DF       uint32
	Total    uint64
}

// SortAndMerge sorts postings by DocID and folds repeated DocIDs into one
// posting whose TF is the sum. It reorders list in place.
func SortAndMerge(list PostingList) PostingList {
	if len(list) < 2 {
		return list
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].DocID < list[j].DocID
	})
	out := list[:1]
	for _, p := range list[1:] {
		last := &out[len(out)-1]
		if p.DocID == last.DocID {
			last.TF += p.TF
			continue
		}
		out = append(out, p)
	}
	return out
}

// NewTermEntry computes df and the total frequency of a normalised list.
// Total sums the term frequencies as counted, before the codec keeps the
// low 16 bits of each. A list holding a TF above 65535 therefore has a
// Total larger than the sum of the TFs decoded from its records.
func NewTermEntry(term string, list PostingList) TermEntry {
	var total uint64
	for _, p := range list {
		total += uint64(p.TF)
	}
	return TermEntry{
		Term:     term,
		Postings: list,
		DF:       uint32(len(list)),
		Total:    total,
	}
}
