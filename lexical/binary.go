package lexical

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/hupe1980/veritas/internal/hash"
	"github.com/hupe1980/veritas/model"
)

const (
	// IndexFileName is the lexical index file inside an artifact directory.
	IndexFileName = "lexical.idx"

	// Magic identifies lexical.idx (ASCII "VLEX").
	Magic = 0x564C4558
	// Version is the current on-disk format version.
	Version = 1

	idLen       = 16
	maxTokenLen = 1<<16 - 1

	flagStopwords = 1 << 0
)

var (
	// ErrInvalidMagic is returned when lexical.idx has a wrong magic number.
	ErrInvalidMagic = errors.New("invalid lexical index magic")
	// ErrInvalidVersion is returned for an unsupported format version.
	ErrInvalidVersion = errors.New("unsupported lexical index version")
	// ErrCorruptIndex is returned for a structurally invalid index file.
	ErrCorruptIndex = errors.New("lexical index corrupt")
)

// fileHeader is the fixed 44-byte header of lexical.idx.
type fileHeader struct {
	Magic       uint32
	Version     uint32
	Flags       uint8
	_           [3]byte
	ChunkCount  uint32
	TokenCount  uint32
	TotalLength uint64
	K1          float64
	B           float64
}

// Save serializes the index. The layout is explicit and versioned: header,
// chunk-ID table, chunk lengths, sorted token postings, trailing CRC32C over
// everything before it. Sorting makes identical corpora produce identical
// bytes, which the manifest checksums rely on.
func (idx *Index) Save(w io.Writer) error {
	cw := hash.NewWriter(w)
	bw := bufio.NewWriterSize(cw, 256*1024)

	header := fileHeader{
		Magic:       Magic,
		Version:     Version,
		ChunkCount:  uint32(len(idx.chunkIDs)),
		TokenCount:  uint32(len(idx.inverted)),
		TotalLength: idx.totalLength,
		K1:          idx.k1,
		B:           idx.b,
	}
	if idx.tokenizer.UseStopwords() {
		header.Flags |= flagStopwords
	}
	if err := binary.Write(bw, binary.LittleEndian, &header); err != nil {
		return err
	}

	for _, id := range idx.chunkIDs {
		if len(id) != idLen {
			return fmt.Errorf("invalid chunk id %q", id)
		}
		if _, err := bw.WriteString(string(id)); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, idx.lengths); err != nil {
		return err
	}

	tokens := make([]string, 0, len(idx.inverted))
	for tok := range idx.inverted {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	var scratch [8]byte
	for _, tok := range tokens {
		if len(tok) > maxTokenLen {
			return fmt.Errorf("token longer than %d bytes", maxTokenLen)
		}
		postings := idx.inverted[tok]

		binary.LittleEndian.PutUint16(scratch[:2], uint16(len(tok)))
		if _, err := bw.Write(scratch[:2]); err != nil {
			return err
		}
		if _, err := bw.WriteString(tok); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(postings)))
		if _, err := bw.Write(scratch[:4]); err != nil {
			return err
		}
		for _, p := range postings {
			binary.LittleEndian.PutUint32(scratch[0:], uint32(p.local))
			binary.LittleEndian.PutUint32(scratch[4:], p.tf)
			if _, err := bw.Write(scratch[:8]); err != nil {
				return err
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}

	// Trailing checksum, written past the checksummed region.
	binary.LittleEndian.PutUint32(scratch[:4], cw.Sum())
	_, err := w.Write(scratch[:4])
	return err
}

// Load deserializes an index written by Save, verifying magic, version and
// the trailing checksum.
func Load(r io.Reader) (*Index, error) {
	cr := hash.NewReader(bufio.NewReaderSize(r, 256*1024))

	var header fileHeader
	if err := binary.Read(cr, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptIndex, err)
	}
	if header.Magic != Magic {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, header.Version)
	}

	idx := NewIndex(header.K1, header.B, NewTokenizer(header.Flags&flagStopwords != 0))
	idx.totalLength = header.TotalLength

	idx.chunkIDs = make([]model.ChunkID, header.ChunkCount)
	var idBuf [idLen]byte
	for i := range idx.chunkIDs {
		if _, err := io.ReadFull(cr, idBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: chunk table: %v", ErrCorruptIndex, err)
		}
		idx.chunkIDs[i] = model.ChunkID(idBuf[:])
	}

	idx.lengths = make([]uint32, header.ChunkCount)
	if err := binary.Read(cr, binary.LittleEndian, idx.lengths); err != nil {
		return nil, fmt.Errorf("%w: length table: %v", ErrCorruptIndex, err)
	}

	var scratch [8]byte
	for t := uint32(0); t < header.TokenCount; t++ {
		if _, err := io.ReadFull(cr, scratch[:2]); err != nil {
			return nil, fmt.Errorf("%w: token %d: %v", ErrCorruptIndex, t, err)
		}
		tokBuf := make([]byte, binary.LittleEndian.Uint16(scratch[:2]))
		if _, err := io.ReadFull(cr, tokBuf); err != nil {
			return nil, fmt.Errorf("%w: token %d: %v", ErrCorruptIndex, t, err)
		}
		if _, err := io.ReadFull(cr, scratch[:4]); err != nil {
			return nil, fmt.Errorf("%w: token %d postings: %v", ErrCorruptIndex, t, err)
		}
		count := binary.LittleEndian.Uint32(scratch[:4])

		postings := make([]posting, count)
		for i := range postings {
			if _, err := io.ReadFull(cr, scratch[:8]); err != nil {
				return nil, fmt.Errorf("%w: token %d posting %d: %v", ErrCorruptIndex, t, i, err)
			}
			local := binary.LittleEndian.Uint32(scratch[0:])
			if local >= header.ChunkCount {
				return nil, fmt.Errorf("%w: posting references chunk %d of %d", ErrCorruptIndex, local, header.ChunkCount)
			}
			postings[i] = posting{
				local: LocalID(local),
				tf:    binary.LittleEndian.Uint32(scratch[4:]),
			}
		}
		idx.inverted[string(tokBuf)] = postings
	}

	sum := cr.Sum()
	if _, err := io.ReadFull(cr, scratch[:4]); err != nil {
		return nil, fmt.Errorf("%w: trailer: %v", ErrCorruptIndex, err)
	}
	if stored := binary.LittleEndian.Uint32(scratch[:4]); stored != sum {
		return nil, &hash.MismatchError{Expected: stored, Actual: sum}
	}

	return idx, nil
}
