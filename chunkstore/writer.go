package chunkstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/veritas/internal/fs"
	"github.com/hupe1980/veritas/internal/hash"
	"github.com/hupe1980/veritas/model"
)

// Writer builds a chunk store during an artifact build. It is append-only,
// single-goroutine, and never used at query time.
type Writer struct {
	fs       fs.FileSystem
	dataFile fs.File
	idxFile  fs.File
	dataBuf  *bufio.Writer
	idxBuf   *bufio.Writer
	codec    *blockCodec

	offset  uint64 // next append offset in chunks.bin
	count   uint64 // index records written (incl. tombstone records)
	byID    map[model.ChunkID]*Record
	order   []model.ChunkID
	done    bool
	aborted bool
}

// NewWriter creates the store files in dir and writes their headers.
func NewWriter(fsys fs.FileSystem, dir string, compression Compression, level int) (*Writer, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	codec, err := newBlockCodec(compression, level, true)
	if err != nil {
		return nil, err
	}

	dataFile, err := fsys.OpenFile(filepath.Join(dir, DataFileName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		codec.close()
		return nil, err
	}
	idxFile, err := fsys.OpenFile(filepath.Join(dir, IndexFileName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		codec.close()
		dataFile.Close()
		return nil, err
	}

	w := &Writer{
		fs:       fsys,
		dataFile: dataFile,
		idxFile:  idxFile,
		dataBuf:  bufio.NewWriterSize(dataFile, 256*1024),
		idxBuf:   bufio.NewWriterSize(idxFile, 64*1024),
		codec:    codec,
		byID:     make(map[model.ChunkID]*Record),
	}

	var dataHeader [dataHeaderSize]byte
	binary.LittleEndian.PutUint32(dataHeader[0:], DataMagic)
	binary.LittleEndian.PutUint32(dataHeader[4:], FormatVersion)
	if _, err := w.dataBuf.Write(dataHeader[:]); err != nil {
		w.discard()
		return nil, err
	}
	w.offset = dataHeaderSize

	// record count is patched in by Finish
	if err := writeIndexHeader(w.idxBuf, 0); err != nil {
		w.discard()
		return nil, err
	}

	return w, nil
}

func writeIndexHeader(w io.Writer, count uint64) error {
	var header [indexHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:], IndexMagic)
	binary.LittleEndian.PutUint32(header[4:], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:], count)
	_, err := w.Write(header[:])
	return err
}

// Append compresses and appends one chunk payload plus its index record.
// Store offsets are strictly increasing by construction.
func (w *Writer) Append(chunk model.Chunk) (Record, error) {
	if w.done {
		return Record{}, ErrClosed
	}
	if len(chunk.ChunkID) != idLen {
		return Record{}, fmt.Errorf("invalid chunk id %q", chunk.ChunkID)
	}
	if _, ok := w.byID[chunk.ChunkID]; ok {
		return Record{}, fmt.Errorf("duplicate chunk id %s", chunk.ChunkID)
	}

	payload := []byte(chunk.Text)
	checksum := hash.CRC32C(payload)

	encoded, compressed, err := w.codec.compress(payload)
	if err != nil {
		return Record{}, err
	}

	var prefix [blockPrefixSize]byte
	copy(prefix[:idLen], chunk.ChunkID)
	binary.LittleEndian.PutUint32(prefix[idLen:], uint32(len(payload)))
	if compressed {
		binary.LittleEndian.PutUint32(prefix[idLen+4:], uint32(len(encoded)))
	}
	var trailer [blockTrailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], checksum)

	if _, err := w.dataBuf.Write(prefix[:]); err != nil {
		return Record{}, err
	}
	if _, err := w.dataBuf.Write(encoded); err != nil {
		return Record{}, err
	}
	if _, err := w.dataBuf.Write(trailer[:]); err != nil {
		return Record{}, err
	}

	blockLen := uint32(blockPrefixSize + len(encoded) + blockTrailerSize)
	rec := Record{
		ChunkID:     chunk.ChunkID,
		DocUID:      chunk.DocUID,
		DocID:       chunk.DocID,
		StoreOffset: w.offset,
		Length:      blockLen,
		Checksum:    checksum,
		OffsetStart: chunk.OffsetStart,
		OffsetEnd:   chunk.OffsetEnd,
		ChunkIndex:  chunk.ChunkIndex,
		PageStart:   chunk.PageStart,
		PageEnd:     chunk.PageEnd,
		Active:      true,
	}
	if err := w.writeRecord(&rec); err != nil {
		return Record{}, err
	}

	w.offset += uint64(blockLen)
	stored := rec
	w.byID[chunk.ChunkID] = &stored
	w.order = append(w.order, chunk.ChunkID)
	return rec, nil
}

// Tombstone marks a previously appended chunk inactive by appending a copy
// of its record with the active flag cleared. The payload block is retained;
// space is only reclaimed by a full rebuild.
func (w *Writer) Tombstone(id model.ChunkID) error {
	if w.done {
		return ErrClosed
	}
	rec, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChunk, id)
	}
	if !rec.Active {
		return nil
	}
	dead := *rec
	dead.Active = false
	if err := w.writeRecord(&dead); err != nil {
		return err
	}
	rec.Active = false
	return nil
}

func (w *Writer) writeRecord(rec *Record) error {
	wire := rec.wire()
	if err := binary.Write(w.idxBuf, binary.LittleEndian, &wire); err != nil {
		return err
	}
	w.count++
	return nil
}

// Records returns the current index records in append order. Used by the
// build pipeline for its final invariant sweep.
func (w *Writer) Records() []Record {
	out := make([]Record, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, *w.byID[id])
	}
	return out
}

// DataSize returns the chunks.bin size after all appends so far.
func (w *Writer) DataSize() uint64 { return w.offset }

// Finish flushes and syncs both files, patches the final record count into
// the index header and closes the writer.
func (w *Writer) Finish() error {
	if w.done {
		return ErrClosed
	}
	w.done = true
	defer w.codec.close()

	if err := w.dataBuf.Flush(); err != nil {
		w.closeFiles()
		return err
	}
	if err := w.idxBuf.Flush(); err != nil {
		w.closeFiles()
		return err
	}
	if _, err := w.idxFile.Seek(0, io.SeekStart); err != nil {
		w.closeFiles()
		return err
	}
	if err := writeIndexHeader(w.idxFile, w.count); err != nil {
		w.closeFiles()
		return err
	}
	if err := w.dataFile.Sync(); err != nil {
		w.closeFiles()
		return err
	}
	if err := w.idxFile.Sync(); err != nil {
		w.closeFiles()
		return err
	}
	return w.closeFiles()
}

// Discard abandons the writer without finalizing the files. The caller is
// expected to remove the staging directory.
func (w *Writer) Discard() {
	if w.done {
		return
	}
	w.done = true
	w.aborted = true
	w.codec.close()
	w.closeFiles()
}

func (w *Writer) discard() {
	w.codec.close()
	w.closeFiles()
}

func (w *Writer) closeFiles() error {
	var firstErr error
	if err := w.dataFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.idxFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
