package chunkstore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the payload block compression algorithm. It is fixed
// per store at build time and recorded in the manifest.
type Compression uint8

const (
	// CompressionNone stores payloads uncompressed.
	CompressionNone Compression = iota
	// CompressionZstd uses ZSTD block compression (default, better ratio).
	CompressionZstd
	// CompressionLZ4 uses LZ4 block compression (faster, weaker ratio).
	CompressionLZ4
)

// ParseCompression resolves a manifest compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// String returns the stable manifest name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// blockCodec compresses and decompresses payload blocks. A zstd encoder is
// only allocated on the write path; the decoder is safe for concurrent
// DecodeAll calls, so one instance serves all readers.
type blockCodec struct {
	compression Compression
	zenc        *zstd.Encoder
	zdec        *zstd.Decoder
}

func newBlockCodec(c Compression, level int, forWrite bool) (*blockCodec, error) {
	bc := &blockCodec{compression: c}
	if c == CompressionZstd {
		if forWrite {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
			if err != nil {
				return nil, err
			}
			bc.zenc = enc
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			if bc.zenc != nil {
				bc.zenc.Close()
			}
			return nil, err
		}
		bc.zdec = dec
	}
	return bc, nil
}

// compress returns the encoded payload and whether it is stored compressed.
// Incompressible payloads fall back to raw storage, signalled on disk by a
// zero compressed length.
func (bc *blockCodec) compress(data []byte) ([]byte, bool, error) {
	switch bc.compression {
	case CompressionNone:
		return data, false, nil
	case CompressionZstd:
		compressed := bc.zenc.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, false, nil
		}
		return compressed, true, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(data, buf)
		if err != nil {
			return nil, false, err
		}
		if n == 0 || n >= len(data) {
			// incompressible
			return data, false, nil
		}
		return buf[:n], true, nil
	default:
		return nil, false, fmt.Errorf("unknown compression %d", bc.compression)
	}
}

// decompress decodes a payload of known uncompressed size. compressed is
// false for raw-stored blocks.
func (bc *blockCodec) decompress(data []byte, uncompressedLen int, compressed bool) ([]byte, error) {
	if !compressed {
		if len(data) != uncompressedLen {
			return nil, fmt.Errorf("%w: raw payload size %d, want %d", ErrDecompression, len(data), uncompressedLen)
		}
		return data, nil
	}
	switch bc.compression {
	case CompressionZstd:
		decoded, err := bc.zdec.DecodeAll(data, make([]byte, 0, uncompressedLen))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
		}
		if len(decoded) != uncompressedLen {
			return nil, fmt.Errorf("%w: decompressed size %d, want %d", ErrDecompression, len(decoded), uncompressedLen)
		}
		return decoded, nil
	case CompressionLZ4:
		decoded := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(data, decoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
		}
		if n != uncompressedLen {
			return nil, fmt.Errorf("%w: decompressed size %d, want %d", ErrDecompression, n, uncompressedLen)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: compressed payload under compression %q", ErrDecompression, bc.compression)
	}
}

func (bc *blockCodec) close() {
	if bc.zenc != nil {
		bc.zenc.Close()
		bc.zenc = nil
	}
	if bc.zdec != nil {
		bc.zdec.Close()
		bc.zdec = nil
	}
}
