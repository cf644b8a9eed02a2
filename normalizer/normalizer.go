// Package normalizer canonicalizes raw document text before chunking and
// indexing. Normalization runs exactly once at build time; every byte offset
// stored in the artifact refers to the normalized text.
package normalizer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies Unicode NFKC, collapses runs of spaces and tabs to a
// single space, converts all line endings to \n and trims surrounding
// whitespace. Newlines are preserved so page boundaries stay stable in the
// normalized text.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch r {
		case ' ', '\t':
			pendingSpace = true
		case '\n':
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteByte('\n')
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}
