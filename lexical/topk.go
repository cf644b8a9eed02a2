package lexical

import "github.com/hupe1980/veritas/model"

type candidate struct {
	id    model.ChunkID
	score float64
}

// ranksBelow reports whether a orders strictly below b in the result
// contract: higher score first, equal scores by ascending chunk ID.
func ranksBelow(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.id > b.id
}

// candidateHeap is a bounded min-heap whose root is the current weakest
// candidate, so a full heap evicts in O(log k) per insertion.
type candidateHeap []candidate

func (h *candidateHeap) push(c candidate) {
	*h = append(*h, c)
	h.up(len(*h) - 1)
}

func (h *candidateHeap) pop() candidate {
	old := *h
	n := len(old) - 1
	root := old[0]
	old[0] = old[n]
	*h = old[:n]
	if n > 0 {
		h.down(0)
	}
	return root
}

// replaceRoot swaps in a new candidate for the current weakest.
func (h *candidateHeap) replaceRoot(c candidate) {
	(*h)[0] = c
	h.down(0)
}

func (h *candidateHeap) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !ranksBelow((*h)[i], (*h)[parent]) {
			break
		}
		(*h)[i], (*h)[parent] = (*h)[parent], (*h)[i]
		i = parent
	}
}

func (h *candidateHeap) down(i int) {
	n := len(*h)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		smallest := left
		if right := left + 1; right < n && ranksBelow((*h)[right], (*h)[left]) {
			smallest = right
		}
		if !ranksBelow((*h)[smallest], (*h)[i]) {
			return
		}
		(*h)[i], (*h)[smallest] = (*h)[smallest], (*h)[i]
		i = smallest
	}
}
