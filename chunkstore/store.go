package chunkstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/veritas/internal/fs"
	"github.com/hupe1980/veritas/internal/hash"
	"github.com/hupe1980/veritas/model"
)

// Store is an opened, read-only chunk store. The full index is resident in
// memory; payloads are read on demand with positioned reads, so Fetch is safe
// for concurrent use.
type Store struct {
	dataFile fs.File
	codec    *blockCodec

	byID     map[model.ChunkID]*Record
	order    []model.ChunkID // first-seen order of chunk IDs
	dataSize uint64
	closed   bool
}

// Open loads chunks.idx into memory and opens chunks.bin for random access.
func Open(fsys fs.FileSystem, dir string, compression Compression) (*Store, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	codec, err := newBlockCodec(compression, 0, false)
	if err != nil {
		return nil, err
	}

	dataFile, err := fsys.OpenFile(filepath.Join(dir, DataFileName), os.O_RDONLY, 0)
	if err != nil {
		codec.close()
		return nil, err
	}

	s := &Store{
		dataFile: dataFile,
		codec:    codec,
		byID:     make(map[model.ChunkID]*Record),
	}

	info, err := dataFile.Stat()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.dataSize = uint64(info.Size())
	if s.dataSize < dataHeaderSize {
		s.Close()
		return nil, fmt.Errorf("%w: %s shorter than header", ErrCorrupt, DataFileName)
	}

	var dataHeader [dataHeaderSize]byte
	if _, err := dataFile.ReadAt(dataHeader[:], 0); err != nil {
		s.Close()
		return nil, err
	}
	if magic := binary.LittleEndian.Uint32(dataHeader[0:]); magic != DataMagic {
		s.Close()
		return nil, fmt.Errorf("%w: bad magic 0x%08x in %s", ErrCorrupt, magic, DataFileName)
	}
	if version := binary.LittleEndian.Uint32(dataHeader[4:]); version != FormatVersion {
		s.Close()
		return nil, fmt.Errorf("%w: unsupported %s version %d", ErrCorrupt, DataFileName, version)
	}

	if err := s.loadIndex(fsys, filepath.Join(dir, IndexFileName)); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) loadIndex(fsys fs.FileSystem, path string) error {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 256*1024)

	var header [indexHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("%w: %s header: %v", ErrCorrupt, IndexFileName, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:]); magic != IndexMagic {
		return fmt.Errorf("%w: bad magic 0x%08x in %s", ErrCorrupt, magic, IndexFileName)
	}
	if version := binary.LittleEndian.Uint32(header[4:]); version != FormatVersion {
		return fmt.Errorf("%w: unsupported %s version %d", ErrCorrupt, IndexFileName, version)
	}
	count := binary.LittleEndian.Uint64(header[8:])

	for i := uint64(0); i < count; i++ {
		var wire record
		if err := binary.Read(r, binary.LittleEndian, &wire); err != nil {
			return fmt.Errorf("%w: %s record %d: %v", ErrCorrupt, IndexFileName, i, err)
		}
		rec := wire.decode()
		// Last record wins: a tombstone appended for an existing chunk
		// overwrites its live record.
		if _, seen := s.byID[rec.ChunkID]; !seen {
			s.order = append(s.order, rec.ChunkID)
		}
		stored := rec
		s.byID[rec.ChunkID] = &stored
	}

	return nil
}

// Len returns the number of distinct chunk IDs in the index, including
// tombstoned ones.
func (s *Store) Len() int { return len(s.order) }

// ActiveLen returns the number of active (fetchable) chunks.
func (s *Store) ActiveLen() int {
	n := 0
	for _, id := range s.order {
		if s.byID[id].Active {
			n++
		}
	}
	return n
}

// DataSize returns the chunks.bin file size in bytes.
func (s *Store) DataSize() uint64 { return s.dataSize }

// Record returns the index record for id.
func (s *Store) Record(id model.ChunkID) (Record, bool) {
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ForEach calls fn for every index record in first-seen order.
func (s *Store) ForEach(fn func(Record)) {
	for _, id := range s.order {
		fn(*s.byID[id])
	}
}

// Fetch reads, decompresses and checksum-verifies one chunk payload.
func (s *Store) Fetch(id model.ChunkID) (string, Record, error) {
	if s.closed {
		return "", Record{}, ErrClosed
	}
	rec, ok := s.byID[id]
	if !ok {
		return "", Record{}, fmt.Errorf("%w: %s", ErrUnknownChunk, id)
	}
	if !rec.Active {
		return "", Record{}, fmt.Errorf("%w: %s", ErrTombstoned, id)
	}
	payload, err := s.readBlock(rec)
	if err != nil {
		return "", Record{}, err
	}
	return string(payload), *rec, nil
}

func (s *Store) readBlock(rec *Record) ([]byte, error) {
	if rec.StoreOffset+uint64(rec.Length) > s.dataSize {
		return nil, fmt.Errorf("%w: chunk %s block [%d,+%d) exceeds %s size %d",
			ErrCorrupt, rec.ChunkID, rec.StoreOffset, rec.Length, DataFileName, s.dataSize)
	}
	if rec.Length < blockPrefixSize+blockTrailerSize {
		return nil, fmt.Errorf("%w: chunk %s block too small", ErrCorrupt, rec.ChunkID)
	}

	block := make([]byte, rec.Length)
	if _, err := s.dataFile.ReadAt(block, int64(rec.StoreOffset)); err != nil {
		return nil, err
	}

	if string(block[:idLen]) != string(rec.ChunkID) {
		return nil, fmt.Errorf("%w: block at %d does not belong to chunk %s",
			ErrCorrupt, rec.StoreOffset, rec.ChunkID)
	}
	uncompressedLen := binary.LittleEndian.Uint32(block[idLen:])
	compressedLen := binary.LittleEndian.Uint32(block[idLen+4:])

	payloadLen := compressedLen
	compressed := true
	if compressedLen == 0 {
		payloadLen = uncompressedLen
		compressed = false
	}
	if blockPrefixSize+payloadLen+blockTrailerSize != rec.Length {
		return nil, fmt.Errorf("%w: chunk %s block length %d does not match payload %d",
			ErrCorrupt, rec.ChunkID, rec.Length, payloadLen)
	}
	payload := block[blockPrefixSize : blockPrefixSize+payloadLen]

	decoded, err := s.codec.decompress(payload, int(uncompressedLen), compressed)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", rec.ChunkID, err)
	}

	storedCRC := binary.LittleEndian.Uint32(block[blockPrefixSize+payloadLen:])
	if actual := hash.CRC32C(decoded); actual != storedCRC || storedCRC != rec.Checksum {
		return nil, fmt.Errorf("%w: chunk %s: computed 0x%08x, block 0x%08x, index 0x%08x",
			ErrChecksumMismatch, rec.ChunkID, actual, storedCRC, rec.Checksum)
	}

	return decoded, nil
}

// Verify re-walks every active record, checking its offset/length bound and
// re-reading, decompressing and checksum-verifying its block. Used by strict
// validation. Records are verified in parallel.
func (s *Store) Verify(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, id := range s.order {
		rec := s.byID[id]
		if !rec.Active {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := s.readBlock(rec)
			return err
		})
	}

	return g.Wait()
}

// Close releases the data file handle. The store must not be used afterwards.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.codec.close()
	if s.dataFile != nil {
		return s.dataFile.Close()
	}
	return nil
}

// IsFetchError reports whether err is one of the per-chunk fetch failures
// (unknown, tombstoned, decompression, checksum) as opposed to a store-level
// failure.
func IsFetchError(err error) bool {
	return errors.Is(err, ErrUnknownChunk) ||
		errors.Is(err, ErrTombstoned) ||
		errors.Is(err, ErrDecompression) ||
		errors.Is(err, ErrChecksumMismatch)
}
