// Package hash provides the block-checksum primitives used by the artifact
// file formats.
//
// CRC32-Castagnoli detects accidental corruption and is hardware-accelerated
// on amd64/arm64. It is NOT cryptographically secure; tamper detection is the
// job of the SHA-256 file checksums in the manifest.
package hash

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// crc32cTable is pre-computed for the Castagnoli polynomial. Computing it
// once avoids repeated MakeTable calls.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a new CRC32-Castagnoli hash.Hash32.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

// Writer wraps an io.Writer and maintains a running CRC32C of everything
// written through it.
type Writer struct {
	w    io.Writer
	hash hash.Hash32
}

// NewWriter creates a new checksumming writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, hash: NewCRC32C()}
}

// Write implements io.Writer.
func (cw *Writer) Write(p []byte) (int, error) {
	// hash.Hash.Write never returns an error
	cw.hash.Write(p)
	return cw.w.Write(p)
}

// Sum returns the current checksum value.
func (cw *Writer) Sum() uint32 { return cw.hash.Sum32() }

// Reader wraps an io.Reader and maintains a running CRC32C of everything
// read through it.
type Reader struct {
	r    io.Reader
	hash hash.Hash32
}

// NewReader creates a new checksumming reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, hash: NewCRC32C()}
}

// Read implements io.Reader.
func (cr *Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}

// Sum returns the current checksum value.
func (cr *Reader) Sum() uint32 { return cr.hash.Sum32() }

// Verify compares the running checksum against expected.
func (cr *Reader) Verify(expected uint32) error {
	if actual := cr.Sum(); actual != expected {
		return &MismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

// MismatchError is returned when checksum verification fails.
type MismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}
