package lexical

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/veritas/model"
)

// termIterator walks one term's posting list during a DAAT scan.
type termIterator struct {
	postings []posting
	pos      int
	idf      float64
}

const exhausted = LocalID(math.MaxUint32)

// doc returns the current local ID, or exhausted when done.
func (it *termIterator) doc() LocalID {
	if it.pos >= len(it.postings) {
		return exhausted
	}
	return it.postings[it.pos].local
}

func (it *termIterator) tf() uint32 {
	return it.postings[it.pos].tf
}

func (it *termIterator) next() { it.pos++ }

// Search scores the union of the query terms' posting lists document-at-a-
// time and returns at most k results ordered by descending score, ties by
// ascending chunk ID.
//
// active, when non-nil, restricts candidates to the given local IDs;
// tombstoned chunks are excluded this way. Duplicate query terms contribute
// once (posting lists already carry per-chunk term frequencies).
func (idx *Index) Search(query string, k int, active *roaring.Bitmap) ([]model.ScoredChunk, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(idx.chunkIDs) == 0 {
		return nil, ErrEmptyIndex
	}

	terms := idx.tokenizer.Tokenize(query)
	if len(terms) == 0 {
		return nil, ErrNoQueryTerms
	}

	seen := make(map[string]struct{}, len(terms))
	iterators := make([]termIterator, 0, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		postings, ok := idx.inverted[term]
		if !ok || len(postings) == 0 {
			continue
		}
		iterators = append(iterators, termIterator{
			postings: postings,
			idf:      idx.idf(len(postings)),
		})
	}
	if len(iterators) == 0 {
		return nil, nil
	}

	avgLen := idx.AvgLength()

	// Precompute the per-query BM25 constants.
	k1Plus1 := idx.k1 + 1
	k1OneMinusB := idx.k1 * (1 - idx.b)
	k1BOverAvg := 0.0
	if avgLen > 0 {
		k1BOverAvg = idx.k1 * idx.b / avgLen
	}

	h := make(candidateHeap, 0, k)

	for {
		minDoc := exhausted
		for i := range iterators {
			if doc := iterators[i].doc(); doc < minDoc {
				minDoc = doc
			}
		}
		if minDoc == exhausted {
			break
		}

		include := active == nil || active.Contains(uint32(minDoc))

		var score float64
		docLen := float64(idx.lengths[minDoc])
		for i := range iterators {
			it := &iterators[i]
			if it.doc() != minDoc {
				continue
			}
			if include {
				tf := float64(it.tf())
				score += it.idf * tf * k1Plus1 / (tf + k1OneMinusB + k1BOverAvg*docLen)
			}
			it.next()
		}

		if !include || score <= 0 {
			continue
		}

		cand := candidate{id: idx.chunkIDs[minDoc], score: score}
		if len(h) < k {
			h.push(cand)
		} else if ranksBelow(h[0], cand) {
			h.replaceRoot(cand)
		}
	}

	results := make([]model.ScoredChunk, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		c := h.pop()
		results[i] = model.ScoredChunk{ChunkID: c.id, Score: c.score}
	}
	return results, nil
}
