// Package merger combines the per-field rankings of a query into one list.
package merger

import (
	"container/heap"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/ranker"
)

// Weights are the fusion weights of the four signals.
type Weights struct {
	Body     float64
	Title    float64
	Anchor   float64
	PageRank float64
}

// DefaultWeights favour body and title text equally, then PageRank.
var DefaultWeights = Weights{Body: 0.35, Title: 0.35, Anchor: 0.05, PageRank: 0.25}

// Signals are the per-field rankings of one query.
type Signals struct {
	Body   []ranker.ScoredDoc
	Title  []ranker.ScoredDoc
	Anchor []ranker.ScoredDoc
}

// PageRank looks up the PageRank of a document.
type PageRank func(docID uint32) (float64, bool)

// Fuse scores every document that appears in at least one signal as the
// weighted sum of its max-normalised field scores and PageRank, and returns
// the best limit documents. A document absent from a signal gets 0 for it.
// PageRank is normalised by its maximum over the candidates.
func Fuse(sig Signals, pr PageRank, w Weights, limit int) []ranker.ScoredDoc {
	candidates := roaring.New()
	body := index(sig.Body, candidates)
	title := index(sig.Title, candidates)
	anchor := index(sig.Anchor, candidates)
	if candidates.IsEmpty() {
		return []ranker.ScoredDoc{}
	}

	ranks := make(map[uint32]float64)
	maxPR := 0.0
	if pr != nil {
		it := candidates.Iterator()
		for it.HasNext() {
			id := it.Next()
			if v, ok := pr(id); ok {
				ranks[id] = v
				maxPR = max(maxPR, v)
			}
		}
	}
	if maxPR <= 0 {
		maxPR = 1
	}
	maxBody, maxTitle, maxAnchor := maxScore(sig.Body), maxScore(sig.Title), maxScore(sig.Anchor)

	fused := make([]ranker.ScoredDoc, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		score := w.Body*body[id]/maxBody +
			w.Title*title[id]/maxTitle +
			w.Anchor*anchor[id]/maxAnchor +
			w.PageRank*ranks[id]/maxPR
		fused = append(fused, ranker.ScoredDoc{DocID: id, Score: score})
	}
	return Merge([][]ranker.ScoredDoc{fused}, limit)
}

func index(docs []ranker.ScoredDoc, into *roaring.Bitmap) map[uint32]float64 {
	out := make(map[uint32]float64, len(docs))
	for _, d := range docs {
		out[d.DocID] = d.Score
		into.Add(d.DocID)
	}
	return out
}

// maxScore is the normaliser of one signal; an empty signal or a
// non-positive maximum normalises by 1.
func maxScore(docs []ranker.ScoredDoc) float64 {
	m := 0.0
	for _, d := range docs {
		m = max(m, d.Score)
	}
	if m <= 0 {
		return 1
	}
	return m
}

// Merge keeps the limit best documents of all lists, best first, breaking
// ties by ascending document id.
func Merge(lists [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		limit = 100
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for _, results := range lists {
		for _, doc := range results {
			heap.Push(h, doc)
			if h.Len() > limit {
				heap.Pop(h)
			}
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap on (score, -docID): the root is the entry
// dropped first.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
