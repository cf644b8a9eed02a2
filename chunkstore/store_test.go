package chunkstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/veritas/internal/fs"
	"github.com/hupe1980/veritas/model"
)

func testChunk(i int, text string) model.Chunk {
	return model.Chunk{
		ChunkID:     model.ChunkID(fmt.Sprintf("%016x", i)),
		DocUID:      model.DocUID(fmt.Sprintf("%016x", 1000+i)),
		DocID:       model.DocID(fmt.Sprintf("%016x", 2000+i)),
		Text:        text,
		OffsetStart: i * 100,
		OffsetEnd:   i*100 + len(text),
		ChunkIndex:  i,
		PageStart:   0,
		PageEnd:     0,
	}
}

func buildStore(t *testing.T, compression Compression, chunks ...model.Chunk) string {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(fs.Default, dir, compression, 3)
	require.NoError(t, err)
	for _, c := range chunks {
		_, err := w.Append(c)
		require.NoError(t, err)
	}
	require.NoError(t, w.Finish())
	return dir
}

func TestStore_RoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			chunks := []model.Chunk{
				testChunk(0, "alpha beta gamma delta epsilon"),
				testChunk(1, strings.Repeat("the quick brown fox ", 100)),
				testChunk(2, "short"),
			}
			dir := buildStore(t, compression, chunks...)

			s, err := Open(fs.Default, dir, compression)
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, 3, s.Len())
			assert.Equal(t, 3, s.ActiveLen())

			for _, c := range chunks {
				text, rec, err := s.Fetch(c.ChunkID)
				require.NoError(t, err)
				assert.Equal(t, c.Text, text)
				assert.Equal(t, c.DocUID, rec.DocUID)
				assert.Equal(t, c.DocID, rec.DocID)
				assert.Equal(t, c.OffsetStart, rec.OffsetStart)
				assert.Equal(t, c.OffsetEnd, rec.OffsetEnd)
				assert.Equal(t, c.ChunkIndex, rec.ChunkIndex)
				assert.True(t, rec.Active)
			}
		})
	}
}

func TestStore_IncompressiblePayload(t *testing.T) {
	// High-entropy text gains nothing from compression; the block falls
	// back to raw storage and must still round-trip.
	var b strings.Builder
	seed := uint64(0x9e3779b97f4a7c15)
	for i := 0; i < 4096; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		b.WriteByte(byte('!' + seed%90))
	}
	chunk := testChunk(0, b.String())

	dir := buildStore(t, CompressionZstd, chunk)
	s, err := Open(fs.Default, dir, CompressionZstd)
	require.NoError(t, err)
	defer s.Close()

	text, _, err := s.Fetch(chunk.ChunkID)
	require.NoError(t, err)
	assert.Equal(t, chunk.Text, text)
}

func TestWriter_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(fs.Default, dir, CompressionNone, 0)
	require.NoError(t, err)
	defer w.Discard()

	_, err = w.Append(testChunk(0, "first"))
	require.NoError(t, err)
	_, err = w.Append(testChunk(0, "second"))
	assert.ErrorContains(t, err, "duplicate chunk id")
}

func TestWriter_InvalidID(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(fs.Default, dir, CompressionNone, 0)
	require.NoError(t, err)
	defer w.Discard()

	c := testChunk(0, "text")
	c.ChunkID = "short"
	_, err = w.Append(c)
	assert.ErrorContains(t, err, "invalid chunk id")
}

func TestWriter_ClosedAfterFinish(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(fs.Default, dir, CompressionNone, 0)
	require.NoError(t, err)
	_, err = w.Append(testChunk(0, "text"))
	require.NoError(t, err)
	require.NoError(t, w.Finish())

	_, err = w.Append(testChunk(1, "more"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Finish(), ErrClosed)
}

func TestStore_Tombstone(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(fs.Default, dir, CompressionZstd, 3)
	require.NoError(t, err)

	keep := testChunk(0, "kept chunk")
	dead := testChunk(1, "tombstoned chunk")
	_, err = w.Append(keep)
	require.NoError(t, err)
	_, err = w.Append(dead)
	require.NoError(t, err)
	require.NoError(t, w.Tombstone(dead.ChunkID))
	require.NoError(t, w.Finish())

	s, err := Open(fs.Default, dir, CompressionZstd)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.ActiveLen())

	text, _, err := s.Fetch(keep.ChunkID)
	require.NoError(t, err)
	assert.Equal(t, keep.Text, text)

	_, _, err = s.Fetch(dead.ChunkID)
	assert.ErrorIs(t, err, ErrTombstoned)
}

func TestWriter_TombstoneUnknown(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(fs.Default, dir, CompressionNone, 0)
	require.NoError(t, err)
	defer w.Discard()

	err = w.Tombstone(model.ChunkID(fmt.Sprintf("%016x", 42)))
	assert.ErrorIs(t, err, ErrUnknownChunk)
}

func TestStore_UnknownChunk(t *testing.T) {
	dir := buildStore(t, CompressionNone, testChunk(0, "text"))
	s, err := Open(fs.Default, dir, CompressionNone)
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Fetch(model.ChunkID(fmt.Sprintf("%016x", 99)))
	assert.ErrorIs(t, err, ErrUnknownChunk)
}

func TestStore_CorruptPayload(t *testing.T) {
	chunk := testChunk(0, strings.Repeat("alpha beta gamma ", 50))
	dir := buildStore(t, CompressionNone, chunk)

	// Flip a byte inside the payload region of the only block.
	path := filepath.Join(dir, DataFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[dataHeaderSize+blockPrefixSize+10] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s, err := Open(fs.Default, dir, CompressionNone)
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Fetch(chunk.ChunkID)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	assert.Error(t, s.Verify(context.Background()))
}

func TestStore_TruncatedData(t *testing.T) {
	chunk := testChunk(0, strings.Repeat("alpha beta gamma ", 50))
	dir := buildStore(t, CompressionNone, chunk)

	path := filepath.Join(dir, DataFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	s, err := Open(fs.Default, dir, CompressionNone)
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Fetch(chunk.ChunkID)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_Verify(t *testing.T) {
	chunks := make([]model.Chunk, 20)
	for i := range chunks {
		chunks[i] = testChunk(i, fmt.Sprintf("chunk %d content with some words", i))
	}
	dir := buildStore(t, CompressionZstd, chunks...)

	s, err := Open(fs.Default, dir, CompressionZstd)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Verify(context.Background()))
}

func TestStore_FetchAfterClose(t *testing.T) {
	chunk := testChunk(0, "text")
	dir := buildStore(t, CompressionNone, chunk)

	s, err := Open(fs.Default, dir, CompressionNone)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.Fetch(chunk.ChunkID)
	assert.ErrorIs(t, err, ErrClosed)
}
