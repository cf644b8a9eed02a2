// Package chunker splits normalized document text into fixed-size,
// overlapping spans. Chunk boundaries always fall on word boundaries, so a
// span sliced out of the normalized text never cuts a word in half.
package chunker

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/hupe1980/veritas/model"
)

// Chunker produces fixed-size word windows with overlap. The zero value is
// not usable; construct with New.
type Chunker struct {
	size    int // target words per chunk
	overlap int // words shared between adjacent chunks
}

// New creates a chunker targeting size words per chunk with overlap words
// shared between neighbors. overlap must be smaller than size or the window
// could not advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Spans splits text into half-open byte spans. Spans are returned in
// document order; for the same text and parameters the result is identical
// across runs and platforms.
func (c *Chunker) Spans(text string) []model.Span {
	if len(text) == 0 {
		return nil
	}

	var spans []model.Span
	pos := 0
	for pos < len(text) {
		end := forwardWords(text, pos, c.size)
		if end <= pos {
			break
		}
		spans = append(spans, model.Span{Start: pos, End: end})
		if end >= len(text) {
			break
		}
		pos = backwardWords(text, end, c.overlap)
	}
	return spans
}

// forwardWords returns the byte position after count words starting at pos.
// If fewer words remain, it returns len(text).
func forwardWords(text string, pos, count int) int {
	seen := 0
	for pos < len(text) && seen < count {
		for pos < len(text) {
			r, n := utf8.DecodeRuneInString(text[pos:])
			if !unicode.IsSpace(r) {
				break
			}
			pos += n
		}
		for pos < len(text) {
			r, n := utf8.DecodeRuneInString(text[pos:])
			if unicode.IsSpace(r) {
				break
			}
			pos += n
		}
		seen++
	}
	return pos
}

// backwardWords returns the byte position count words before end.
func backwardWords(text string, end, count int) int {
	pos := end
	seen := 0
	for pos > 0 && seen < count {
		for pos > 0 {
			r, n := utf8.DecodeLastRuneInString(text[:pos])
			if !unicode.IsSpace(r) {
				break
			}
			pos -= n
		}
		for pos > 0 {
			r, n := utf8.DecodeLastRuneInString(text[:pos])
			if unicode.IsSpace(r) {
				break
			}
			pos -= n
		}
		seen++
	}
	return pos
}

// PageRange maps a span back to the 1-based page numbers it overlaps.
// Returns (0, 0) when the document carries no page table.
func PageRange(pages []model.Page, span model.Span) (start, end int) {
	for _, p := range pages {
		overlaps := p.OffsetEnd > span.Start && p.OffsetStart < span.End
		if overlaps {
			if start == 0 {
				start = p.Number
			}
			end = p.Number
		}
	}
	return start, end
}
