package lexical

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/veritas/model"
)

// Default BM25 parameters, used when the build configuration does not
// override them.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

var (
	// ErrEmptyIndex is returned when searching an index with no chunks.
	ErrEmptyIndex = errors.New("lexical index is empty")

	// ErrNoQueryTerms is returned when a query tokenizes to nothing.
	ErrNoQueryTerms = errors.New("query has no terms")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// LocalID is the dense, index-internal identifier of a chunk, assigned in
// append order at build time.
type LocalID uint32

type posting struct {
	local LocalID
	tf    uint32
}

// Index is the in-memory BM25 index. It is populated once during a build
// (or loaded from lexical.idx) and is immutable afterwards, so Search may
// run on any number of goroutines without locking.
type Index struct {
	k1 float64
	b  float64

	tokenizer *Tokenizer

	inverted    map[string][]posting
	chunkIDs    []model.ChunkID // LocalID -> chunk ID
	lengths     []uint32        // LocalID -> token count
	totalLength uint64
}

// NewIndex creates an empty index with the given BM25 parameters. k1 and b
// are fixed for the lifetime of the artifact and persisted alongside the
// postings; queries must score with the build-time values.
func NewIndex(k1, b float64, tokenizer *Tokenizer) *Index {
	if tokenizer == nil {
		tokenizer = NewTokenizer(false)
	}
	return &Index{
		k1:        k1,
		b:         b,
		tokenizer: tokenizer,
		inverted:  make(map[string][]posting),
	}
}

// K1 returns the build-time term-frequency saturation parameter.
func (idx *Index) K1() float64 { return idx.k1 }

// B returns the build-time length-normalization parameter.
func (idx *Index) B() float64 { return idx.b }

// Tokenizer returns the tokenizer the index was built with.
func (idx *Index) Tokenizer() *Tokenizer { return idx.tokenizer }

// Len returns the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.chunkIDs) }

// AvgLength returns the corpus-wide average chunk length in tokens.
func (idx *Index) AvgLength() float64 {
	if len(idx.lengths) == 0 {
		return 0
	}
	return float64(idx.totalLength) / float64(len(idx.lengths))
}

// ChunkID resolves a local ID back to its chunk ID.
func (idx *Index) ChunkID(local LocalID) (model.ChunkID, bool) {
	if int(local) >= len(idx.chunkIDs) {
		return "", false
	}
	return idx.chunkIDs[local], true
}

// Add tokenizes text and appends its postings, returning the assigned local
// ID. Build-time only; Add must not race with Search.
func (idx *Index) Add(id model.ChunkID, text string) (LocalID, error) {
	if len(idx.chunkIDs) >= math.MaxUint32 {
		return 0, fmt.Errorf("index full: %d chunks", len(idx.chunkIDs))
	}
	local := LocalID(len(idx.chunkIDs))

	tokens := idx.tokenizer.Tokenize(text)

	tf := make(map[string]uint32, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	for tok, count := range tf {
		idx.inverted[tok] = append(idx.inverted[tok], posting{local: local, tf: count})
	}

	idx.chunkIDs = append(idx.chunkIDs, id)
	idx.lengths = append(idx.lengths, uint32(len(tokens)))
	idx.totalLength += uint64(len(tokens))

	return local, nil
}

// DocFreq returns the document frequency of a term.
func (idx *Index) DocFreq(term string) int {
	return len(idx.inverted[term])
}

// idf computes the BM25 inverse document frequency for a term with document
// frequency df: ln((N - df + 0.5) / (df + 0.5) + 1).
func (idx *Index) idf(df int) float64 {
	n := float64(len(idx.chunkIDs))
	d := float64(df)
	return math.Log((n-d+0.5)/(d+0.5) + 1)
}
