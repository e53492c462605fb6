package indexer

import (
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/tokenizer"
)

// fieldDoc is a document reduced to the terms of one field.
type fieldDoc struct {
	ID    uint32
	Terms []string
}

func analyze(field string, analyzer tokenizer.Analyzer) func(corpus.Document) (fieldDoc, error) {
	return func(d corpus.Document) (fieldDoc, error) {
		text, err := d.Field(field)
		if err != nil {
			return fieldDoc{}, err
		}
		return fieldDoc{ID: d.ID, Terms: analyzer(text)}, nil
	}
}

func docLengths(d fieldDoc) (pipeline.Pair[uint32, uint32], error) {
	return pipeline.KV(d.ID, uint32(len(d.Terms))), nil
}

// wordCounts emits one posting per distinct term of the document.
func wordCounts(d fieldDoc) ([]pipeline.Pair[string, index.Posting], error) {
	counts := make(map[string]uint32, len(d.Terms))
	order := make([]string, 0, len(d.Terms))
	for _, t := range d.Terms {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	out := make([]pipeline.Pair[string, index.Posting], len(order))
	for i, t := range order {
		out[i] = pipeline.KV(t, index.Posting{DocID: d.ID, TF: counts[t]})
	}
	return out, nil
}

// termEntry sorts a term's postings, merges repeated documents and derives
// df and the total frequency from the merged list.
func termEntry(g pipeline.Pair[string, []index.Posting]) (index.TermEntry, error) {
	return index.NewTermEntry(g.Key, index.SortAndMerge(g.Value)), nil
}

func partition(e index.TermEntry) (pipeline.Pair[int, index.TermEntry], error) {
	return pipeline.KV(shard.Bucket(e.Term), e), nil
}
