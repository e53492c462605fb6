// Package ranker scores documents for one field: TF-IDF cosine similarity
// for the body and match counting for title and anchor.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
)

// idfEpsilon keeps the query-side idf finite.
const idfEpsilon = 1e-7

type ScoredDoc struct {
	DocID uint32
	Score float64
}

// Stats is the part of a field index the TF-IDF scorer reads.
type Stats interface {
	NumDocs() int
	DocFreq(term string) (uint32, bool)
	DocLength(id uint32) (uint32, bool)
	InVocabulary(term string) bool
}

// Fetcher returns the posting list of term. A term that cannot be read
// yields nil; the caller decides how to report it.
type Fetcher func(term string) index.PostingList

// Candidate is one (document, term) cell of the document matrix.
type Candidate struct {
	DocID uint32
	Term  string
}

// Matrix holds one row per candidate document and one column per query
// position.
type Matrix struct {
	Docs []uint32
	Rows map[uint32][]float64
}

func distinct(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// QueryVector weighs each in-vocabulary token by (count/len(tokens)) times
// log10(N/(df+eps)). A repeated token's weight is placed at its first
// position only; its later positions stay zero.
func QueryVector(tokens []string, stats Stats) []float64 {
	vec := make([]float64, len(tokens))
	if len(tokens) == 0 {
		return vec
	}
	counts := make(map[string]int, len(tokens))
	first := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if counts[t] == 0 {
			first[t] = i
		}
		counts[t]++
	}
	n := float64(stats.NumDocs())
	for _, t := range distinct(tokens) {
		if !stats.InVocabulary(t) {
			continue
		}
		df, _ := stats.DocFreq(t)
		tf := float64(counts[t]) / float64(len(tokens))
		idf := math.Log10(n / (float64(df) + idfEpsilon))
		vec[first[t]] = tf * idf
	}
	return vec
}

// CandidateScores reads the postings of every distinct in-vocabulary token
// and keeps the (doc, term) pairs whose normalised TF-IDF,
// (tf/len(doc))*log10(N/df), exceeds threshold. Postings of documents with
// no recorded length are ignored.
func CandidateScores(tokens []string, stats Stats, fetch Fetcher, threshold float64) map[Candidate]float64 {
	out := make(map[Candidate]float64)
	n := float64(stats.NumDocs())
	for _, t := range distinct(tokens) {
		if !stats.InVocabulary(t) {
			continue
		}
		df, _ := stats.DocFreq(t)
		idf := math.Log10(n / float64(df))
		for _, p := range fetch(t) {
			dl, ok := stats.DocLength(p.DocID)
			if !ok || dl == 0 {
				continue
			}
			score := float64(p.TF) / float64(dl) * idf
			if score > threshold {
				out[Candidate{DocID: p.DocID, Term: t}] += score
			}
		}
	}
	return out
}

// DocumentMatrix lays candidate scores out by query position. A term that
// occurs at several positions fills each of them.
func DocumentMatrix(tokens []string, candidates map[Candidate]float64) *Matrix {
	positions := make(map[string][]int, len(tokens))
	for i, t := range tokens {
		positions[t] = append(positions[t], i)
	}
	m := &Matrix{Rows: make(map[uint32][]float64)}
	for c, score := range candidates {
		row, ok := m.Rows[c.DocID]
		if !ok {
			row = make([]float64, len(tokens))
			m.Rows[c.DocID] = row
			m.Docs = append(m.Docs, c.DocID)
		}
		for _, i := range positions[c.Term] {
			row[i] = score
		}
	}
	sort.Slice(m.Docs, func(i, j int) bool { return m.Docs[i] < m.Docs[j] })
	return m
}

// CosineSimilarity scores every matrix row against q. A zero-norm row or
// query scores 0.
func CosineSimilarity(m *Matrix, q []float64) map[uint32]float64 {
	qNorm := norm(q)
	out := make(map[uint32]float64, len(m.Docs))
	for _, doc := range m.Docs {
		row := m.Rows[doc]
		dNorm := norm(row)
		if qNorm == 0 || dNorm == 0 {
			out[doc] = 0
			continue
		}
		var dot float64
		for i := range row {
			dot += row[i] * q[i]
		}
		out[doc] = dot / (qNorm * dNorm)
	}
	return out
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// BodyScores runs the full body pipeline: query vector, candidates, matrix
// and cosine, returning the best n documents.
func BodyScores(tokens []string, stats Stats, fetch Fetcher, threshold float64, n int) []ScoredDoc {
	if len(tokens) == 0 {
		return nil
	}
	q := QueryVector(tokens, stats)
	candidates := CandidateScores(tokens, stats, fetch, threshold)
	return TopN(CosineSimilarity(DocumentMatrix(tokens, candidates), q), n)
}

// CountScores gives every document 1/len(tokens) for each distinct token
// whose posting list contains it.
func CountScores(tokens []string, fetch Fetcher, n int) []ScoredDoc {
	if len(tokens) == 0 {
		return nil
	}
	step := 1 / float64(len(tokens))
	scores := make(map[uint32]float64)
	for _, t := range distinct(tokens) {
		for _, p := range fetch(t) {
			scores[p.DocID] += step
		}
	}
	return TopN(scores, n)
}

// TopN orders scores best first, breaking ties by ascending document id,
// and keeps at most n entries.
func TopN(scores map[uint32]float64, n int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for id, s := range scores {
		result = append(result, ScoredDoc{DocID: id, Score: s})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}
