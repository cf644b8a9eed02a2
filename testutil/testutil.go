package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/veritas/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// vocabulary for synthetic documents. Small on purpose: overlapping terms
// across documents give BM25 something to rank.
var vocabulary = []string{
	"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "kernel",
	"buffer", "socket", "thread", "mutex", "channel", "context", "handler",
	"request", "response", "timeout", "retry", "backoff", "checksum",
	"offset", "segment", "record", "payload", "header", "footer", "schema",
	"index", "query", "token", "score", "corpus", "document", "snapshot",
}

// Words returns n words drawn from the synthetic vocabulary.
func (r *RNG) Words(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = vocabulary[r.Intn(len(vocabulary))]
	}
	return words
}

// Document generates one synthetic document of roughly wordCount words.
// The text is already normalized (single spaces, no leading or trailing
// whitespace), so it can be fed straight to a builder.
func (r *RNG) Document(name string, wordCount int) model.Document {
	return model.Document{
		SourcePath:     name,
		Title:          strings.TrimSuffix(name, ".md"),
		NormalizedText: strings.Join(r.Words(wordCount), " "),
		ExtractedAt:    time.Unix(0, 0).UTC(),
	}
}

// Corpus generates count synthetic documents of roughly wordCount words
// each. Paths are stable ("doc-0000.md", "doc-0001.md", ...).
func Corpus(r *RNG, count, wordCount int) []model.Document {
	docs := make([]model.Document, count)
	for i := range docs {
		docs[i] = r.Document(fmt.Sprintf("doc-%04d.md", i), wordCount)
	}
	return docs
}
