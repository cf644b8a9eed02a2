// Package model defines core types used throughout Veritas.
//
// # Identity Types
//
//   - DocUID: Stable document identity, unchanged across content edits
//   - DocID: Versioned document identity, changes with content
//   - ChunkID: Deterministic identity of one chunk span
//
// All three are 16-character lowercase hex strings produced by the core
// package. They are pure functions of their inputs: rebuilding an identical
// corpus yields identical IDs.
//
// # Offset Convention
//
// All offsets are byte offsets into a document's UTF-8 normalized text, with
// inclusive start and exclusive end, so that for every chunk
//
//	normalizedText[OffsetStart:OffsetEnd] == chunk.Text
//
// holds byte-for-byte.
package model
