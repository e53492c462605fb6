// Package parser turns a raw query into the token lists each field scorer
// consumes.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/tokenizer"
)

// Plan holds the per-field token lists of one query.
type Plan struct {
	RawQuery string
	// BodyTokens are every word of the query in order, stopwords included.
	BodyTokens []string
	// Tokens are BodyTokens without stopwords. The anchor field is scored
	// with them.
	Tokens []string
	// Stems are the Porter stems of Tokens, scored against the title field.
	Stems []string
}

// Empty reports whether no field has anything to score.
func (p *Plan) Empty() bool {
	return len(p.BodyTokens) == 0
}

func Parse(query string) *Plan {
	plan := &Plan{RawQuery: query}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	plan.BodyTokens = tokenizer.Words(query)
	plan.Tokens = tokenizer.RemoveStopwords(plan.BodyTokens)
	plan.Stems = tokenizer.StemAll(plan.Tokens)
	return plan
}

// Key is a normalised form of the plan: two queries with the same key
// produce the same ranking.
func (p *Plan) Key() string {
	return strings.Join(p.BodyTokens, " ")
}
