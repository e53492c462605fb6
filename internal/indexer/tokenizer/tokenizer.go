// Package tokenizer turns field text into terms. Text is NFC-normalised and
// lower-cased, then words are matched with a pattern that accepts a leading
// '#' or '@', single inner apostrophes or hyphens, and 3 to 25 word characters. Title
// terms are additionally Porter-stemmed.
package tokenizer

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/reiver/go-porterstemmer"
	"golang.org/x/text/unicode/norm"
)

var wordPattern = regexp.MustCompile(`[#@\p{L}\p{N}_](?:['\-]?[\p{L}\p{N}_]){2,24}`)

// Words returns every word of text in order, stopwords included.
func Words(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))
	return wordPattern.FindAllString(text, -1)
}

// RemoveStopwords filters words in place order, returning a new slice.
func RemoveStopwords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !IsStopword(w) {
			out = append(out, w)
		}
	}
	return out
}

// Stem returns the Porter stem of word. Inputs the stemmer cannot handle are
// returned unchanged.
func Stem(word string) (stem string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("stemmer panic, keeping token", "component", "tokenizer", "token", word, "panic", r)
			stem = word
		}
	}()
	return porterstemmer.StemString(word)
}

// StemAll stems every word.
func StemAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = Stem(w)
	}
	return out
}

// Analyzer maps field text to the terms indexed for it.
type Analyzer func(text string) []string

// Terms is the body and anchor analyzer: words without stopwords.
func Terms(text string) []string {
	return RemoveStopwords(Words(text))
}

// StemmedTerms is the title analyzer: words without stopwords, stemmed.
func StemmedTerms(text string) []string {
	return StemAll(Terms(text))
}

// ForField returns the analyzer used to index field.
func ForField(field string) (Analyzer, error) {
	switch field {
	case "body", "anchor":
		return Terms, nil
	case "title":
		return StemmedTerms, nil
	default:
		return nil, fmt.Errorf("no analyzer for field %q", field)
	}
}
