package model

import (
	"fmt"
	"time"
)

// DocUID is the stable document identifier (sha256 of the normalized
// relative path, truncated to 16 hex characters). It survives content edits.
type DocUID string

// DocID is the versioned document identifier. It changes whenever the
// document's normalized text changes.
type DocID string

// ChunkID is the deterministic identifier of a single chunk span.
type ChunkID string

// Page describes one page of a paginated source document and the byte span
// it occupies in the normalized text.
type Page struct {
	Number      int `json:"number"`
	OffsetStart int `json:"offset_start"`
	OffsetEnd   int `json:"offset_end"`
}

// Document is the build-time input for one corpus document. The ingestion
// collaborator supplies SourcePath, Title, NormalizedText and (for paginated
// sources) Pages; the build pipeline derives the identifiers.
type Document struct {
	SourcePath     string
	Title          string
	NormalizedText string
	Pages          []Page
	ExtractedAt    time.Time
}

// Span is a half-open byte interval [Start, End) into a document's
// normalized text.
type Span struct {
	Start int
	End   int
}

// String returns a string representation of the Span.
func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// SourceRef locates a chunk inside its source document for citations.
type SourceRef struct {
	SourcePath  string `json:"source_path"`
	OffsetStart int    `json:"offset_start"`
	OffsetEnd   int    `json:"offset_end"`
	PageStart   int    `json:"page_start,omitempty"` // 0 = no page range
	PageEnd     int    `json:"page_end,omitempty"`
}

// Chunk is the unit of indexing and retrieval: one contiguous span of a
// document's normalized text.
type Chunk struct {
	ChunkID     ChunkID
	DocUID      DocUID
	DocID       DocID
	Text        string
	OffsetStart int
	OffsetEnd   int
	ChunkIndex  int // position within the document, informational
	PageStart   int // 0 = unknown/no pages
	PageEnd     int
	SourceRef   SourceRef
}

// ScoredChunk pairs a chunk ID with its BM25 score. Slices of ScoredChunk
// returned by retrieval are ordered by descending score, ties broken by
// ascending ChunkID.
type ScoredChunk struct {
	ChunkID ChunkID
	Score   float64
}

// Result is a fully materialized retrieval hit.
type Result struct {
	ScoredChunk
	Chunk        *Chunk
	MatchedTerms []string
	Snippet      string
}

// FetchResult is the per-ID outcome of a batch fetch. Exactly one of Chunk
// and Err is set; a failed ID does not affect its siblings.
type FetchResult struct {
	ChunkID ChunkID
	Chunk   *Chunk
	Err     error
}

// Citation is one source attribution inside an assembled context block.
type Citation struct {
	SourcePath  string
	OffsetStart int
	OffsetEnd   int
	PageStart   int
	PageEnd     int
}

// DocumentMeta is the persisted per-document record in docs.meta.
type DocumentMeta struct {
	DocUID             DocUID    `json:"doc_uid"`
	DocID              DocID     `json:"doc_id"`
	SourcePath         string    `json:"source_path"`
	Title              string    `json:"title,omitempty"`
	ExtractedAt        time.Time `json:"extracted_at"`
	NormalizedTextHash string    `json:"normalized_text_sha256"`
	ChunkCount         int       `json:"chunk_count"`
}
