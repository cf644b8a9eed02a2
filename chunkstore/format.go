package chunkstore

import (
	"github.com/hupe1980/veritas/model"
)

const (
	// DataFileName is the payload block file inside an artifact directory.
	DataFileName = "chunks.bin"
	// IndexFileName is the record index file inside an artifact directory.
	IndexFileName = "chunks.idx"

	// DataMagic identifies chunks.bin (ASCII "VRTB").
	DataMagic = 0x56525442
	// IndexMagic identifies chunks.idx (ASCII "VRTI").
	IndexMagic = 0x56525449
	// FormatVersion is the current on-disk format version of both files.
	FormatVersion = 1

	dataHeaderSize  = 8  // magic u32, version u32
	indexHeaderSize = 16 // magic u32, version u32, record count u64

	// Block layout in chunks.bin:
	//   chunk id [16]byte
	//   uncompressed length u32
	//   compressed length   u32 (0 = payload stored uncompressed)
	//   payload             (compressed length bytes, or uncompressed length if 0)
	//   checksum            u32 (CRC32C of the uncompressed payload)
	blockPrefixSize  = idLen + 4 + 4
	blockTrailerSize = 4

	idLen = 16 // all IDs are 16 hex characters

	recordSize = 96
)

// flags bits of an index record.
const (
	flagActive = 1 << 0
)

// record is the fixed-shape wire form of one chunks.idx entry. Page values
// use 0 for "no page range" (page numbers are 1-based).
type record struct {
	ChunkID     [idLen]byte
	DocUID      [idLen]byte
	DocID       [idLen]byte
	StoreOffset uint64
	Length      uint32
	Checksum    uint32
	OffsetStart uint64
	OffsetEnd   uint64
	ChunkIndex  uint32
	PageStart   int32
	PageEnd     int32
	Flags       uint8
	_           [3]byte
}

// Record is the in-memory form of one index entry.
type Record struct {
	ChunkID     model.ChunkID
	DocUID      model.DocUID
	DocID       model.DocID
	StoreOffset uint64
	Length      uint32
	Checksum    uint32
	OffsetStart int
	OffsetEnd   int
	ChunkIndex  int
	PageStart   int // 0 = no page range
	PageEnd     int
	Active      bool
}

func (r *Record) wire() record {
	w := record{
		StoreOffset: r.StoreOffset,
		Length:      r.Length,
		Checksum:    r.Checksum,
		OffsetStart: uint64(r.OffsetStart),
		OffsetEnd:   uint64(r.OffsetEnd),
		ChunkIndex:  uint32(r.ChunkIndex),
		PageStart:   int32(r.PageStart),
		PageEnd:     int32(r.PageEnd),
	}
	copy(w.ChunkID[:], r.ChunkID)
	copy(w.DocUID[:], r.DocUID)
	copy(w.DocID[:], r.DocID)
	if r.Active {
		w.Flags |= flagActive
	}
	return w
}

func (w *record) decode() Record {
	return Record{
		ChunkID:     model.ChunkID(w.ChunkID[:]),
		DocUID:      model.DocUID(w.DocUID[:]),
		DocID:       model.DocID(w.DocID[:]),
		StoreOffset: w.StoreOffset,
		Length:      w.Length,
		Checksum:    w.Checksum,
		OffsetStart: int(w.OffsetStart),
		OffsetEnd:   int(w.OffsetEnd),
		ChunkIndex:  int(w.ChunkIndex),
		PageStart:   int(w.PageStart),
		PageEnd:     int(w.PageEnd),
		Active:      w.Flags&flagActive != 0,
	}
}
