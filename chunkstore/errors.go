package chunkstore

import "errors"

var (
	// ErrUnknownChunk is returned by Fetch for an ID absent from the index.
	ErrUnknownChunk = errors.New("unknown chunk id")

	// ErrTombstoned is returned by Fetch for an inactive index record.
	ErrTombstoned = errors.New("chunk is tombstoned")

	// ErrDecompression is returned when a payload block fails to decompress.
	ErrDecompression = errors.New("decompression failure")

	// ErrChecksumMismatch is returned when a payload block's CRC does not
	// match the indexed checksum.
	ErrChecksumMismatch = errors.New("chunk checksum mismatch")

	// ErrCorrupt indicates a structurally invalid store file.
	ErrCorrupt = errors.New("chunk store corrupt")

	// ErrClosed is returned for operations on a closed store or writer.
	ErrClosed = errors.New("chunk store is closed")
)
