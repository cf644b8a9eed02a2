package lexical

import (
	"strings"
	"unicode"
)

// defaultStopwords is the minimal English stopword set applied when
// stopword filtering is enabled.
var defaultStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {},
	"did": {}, "will": {}, "would": {}, "should": {}, "could": {}, "may": {},
	"might": {}, "must": {}, "can": {},
}

// Tokenizer splits text into BM25 terms: lowercase word tokens consisting of
// letters, digits and underscore, with optional stopword filtering.
//
// The chunk-side and query-side tokenization must be identical for scores to
// be meaningful, so the tokenizer used at build time is recorded in the
// persisted index and restored on load.
type Tokenizer struct {
	useStopwords bool
	stopwords    map[string]struct{}
}

// NewTokenizer creates a tokenizer with stopword filtering on or off.
func NewTokenizer(useStopwords bool) *Tokenizer {
	return &Tokenizer{
		useStopwords: useStopwords,
		stopwords:    defaultStopwords,
	}
}

// UseStopwords reports whether stopword filtering is enabled.
func (t *Tokenizer) UseStopwords() bool { return t.useStopwords }

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Tokenize splits text into terms.
func (t *Tokenizer) Tokenize(text string) []string {
	lower := strings.ToLower(text)

	var tokens []string
	start := -1
	for i, r := range lower {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = t.appendToken(tokens, lower[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = t.appendToken(tokens, lower[start:])
	}
	return tokens
}

func (t *Tokenizer) appendToken(tokens []string, tok string) []string {
	if t.useStopwords {
		if _, ok := t.stopwords[tok]; ok {
			return tokens
		}
	}
	return append(tokens, tok)
}
