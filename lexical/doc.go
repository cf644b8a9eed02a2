// Package lexical implements the BM25 inverted index of a retrieval
// artifact.
//
// Chunks are addressed by dense local IDs assigned in append order; the
// index maps each token to a posting list of (local ID, term frequency)
// pairs and keeps per-chunk token lengths for length normalization. Search
// is document-at-a-time over the union of the query terms' posting lists
// with a bounded top-k heap, so total work is proportional to the sum of the
// matched posting-list lengths.
//
// Equal scores are ordered by ascending chunk ID. This is part of the
// retrieval contract: results are reproducible across runs and processes.
//
// The on-disk form (lexical.idx) is an explicit, versioned binary layout
// with a magic number and a trailing CRC32C. Tokens are serialized in sorted
// order so identical corpora produce byte-identical index files.
package lexical
