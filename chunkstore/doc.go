// Package chunkstore implements the binary chunk payload store of a
// retrieval artifact.
//
// A store is a pair of files:
//
//   - chunks.bin: append-only sequence of individually compressed payload
//     blocks, each carrying its chunk ID, sizes and a CRC32C of the
//     uncompressed bytes.
//   - chunks.idx: one fixed-shape little-endian record per chunk with the
//     owning document IDs, the block's store offset and length, the character
//     span, page range and active flag.
//
// The Writer is build-time only and strictly append-only; tombstoning a
// chunk appends a new inactive record ("last record wins" on load) without
// touching chunks.bin. The Store loads chunks.idx fully into memory and
// serves concurrent positioned reads from chunks.bin.
package chunkstore
