// Package manifest defines the artifact manifest: schema version, build
// configuration, per-file SHA-256 checksums and aggregate counts, plus the
// validators that gate artifact opening.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/veritas/codec"
	"github.com/hupe1980/veritas/internal/fs"
	"github.com/hupe1980/veritas/lexical"
)

const (
	// FileName is the manifest file inside an artifact directory.
	FileName = "manifest.json"

	// CurrentSchemaVersion is the schema written by this library.
	CurrentSchemaVersion = "1.0"

	// IndexTypeBM25 is the only index type in schema 1.0.
	IndexTypeBM25 = "bm25"
)

// legacySchemaVersions are older schemas that legacy-mode validation accepts,
// filling defaults for fields the old schema lacked.
var legacySchemaVersions = map[string]struct{}{
	"0.9": {},
}

// RequiredFiles are the files every readable artifact must contain besides
// the manifest itself.
var RequiredFiles = []string{
	"chunks.bin",
	"chunks.idx",
	"lexical.idx",
	"docs.meta",
}

// BuildConfig is the explicit build configuration persisted in the manifest.
// The recognized option set is closed: loading a manifest whose config block
// carries unknown keys fails rather than silently accepting them.
type BuildConfig struct {
	ChunkSize        int     `json:"chunk_size"`
	ChunkOverlap     int     `json:"chunk_overlap"`
	BM25K1           float64 `json:"bm25_k1"`
	BM25B            float64 `json:"bm25_b"`
	Compression      string  `json:"compression"`
	CompressionLevel int     `json:"compression_level"`
	SchemaVersion    string  `json:"schema_version,omitempty"`
}

var recognizedConfigKeys = map[string]struct{}{
	"chunk_size":        {},
	"chunk_overlap":     {},
	"bm25_k1":           {},
	"bm25_b":            {},
	"compression":       {},
	"compression_level": {},
	"schema_version":    {},
}

// DefaultConfig returns the default build configuration.
func DefaultConfig() BuildConfig {
	return BuildConfig{
		ChunkSize:        512,
		ChunkOverlap:     50,
		BM25K1:           lexical.DefaultK1,
		BM25B:            lexical.DefaultB,
		Compression:      "zstd",
		CompressionLevel: 3,
		SchemaVersion:    CurrentSchemaVersion,
	}
}

// Normalize fills zero-valued fields with defaults.
func (c *BuildConfig) Normalize() {
	def := DefaultConfig()
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.BM25K1 == 0 {
		c.BM25K1 = def.BM25K1
	}
	if c.BM25B == 0 {
		c.BM25B = def.BM25B
	}
	if c.Compression == "" {
		c.Compression = def.Compression
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = def.CompressionLevel
	}
	if c.SchemaVersion == "" {
		c.SchemaVersion = def.SchemaVersion
	}
}

// Validate rejects out-of-range configuration values.
func (c *BuildConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap)
	}
	if c.BM25K1 < 0 {
		return fmt.Errorf("bm25_k1 must be non-negative, got %g", c.BM25K1)
	}
	if c.BM25B < 0 || c.BM25B > 1 {
		return fmt.Errorf("bm25_b must be in [0,1], got %g", c.BM25B)
	}
	switch c.Compression {
	case "none", "zstd", "lz4":
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be in [0,22], got %d", c.CompressionLevel)
	}
	return nil
}

// Manifest is the flat integrity record of one artifact.
type Manifest struct {
	SchemaVersion string            `json:"schema_version"`
	CreatedAt     time.Time         `json:"created_at"`
	IndexType     string            `json:"index_type"`
	Config        BuildConfig       `json:"config"`
	TotalDocs     int               `json:"total_docs"`
	TotalChunks   int               `json:"total_chunks"`
	Files         map[string]string `json:"files"` // file name -> sha256 hex
}

// Save atomically writes the manifest into dir (temp file + rename + dir
// sync).
func (m *Manifest) Save(fsys fs.FileSystem, dir string, c codec.Codec) error {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	data, err := c.Marshal(m)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, FileName)
	tmpPath := path + ".tmp"
	f, err := fsys.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		fsys.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fsys.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		fsys.Remove(tmpPath)
		return err
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		fsys.Remove(tmpPath)
		return err
	}
	return fs.SyncDir(fsys, dir)
}

// Load reads and decodes the manifest from dir, rejecting unrecognized
// config keys.
func Load(fsys fs.FileSystem, dir string, c codec.Codec) (*Manifest, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	f, err := fsys.OpenFile(filepath.Join(dir, FileName), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", FileName, err)
	}

	// The config option set is closed; surface unknown keys instead of
	// silently dropping them.
	var probe struct {
		Config map[string]any `json:"config"`
	}
	if err := c.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode %s: %w", FileName, err)
	}
	for key := range probe.Config {
		if _, ok := recognizedConfigKeys[key]; !ok {
			return nil, fmt.Errorf("unrecognized config option %q", key)
		}
	}

	return &m, nil
}

// ComputeFileChecksum streams a file through SHA-256 and returns the hex
// digest.
func ComputeFileChecksum(fsys fs.FileSystem, path string) (string, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
