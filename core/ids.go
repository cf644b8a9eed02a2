// Package core implements the deterministic identifier scheme.
//
// ID policy:
//
//   - doc UID:  sha256(normalized rel path)[:16]        — stable across edits
//   - doc ID:   sha256(docUID + textHash)[:16]          — versioned by content
//   - chunk ID: sha256(docUID + start + end + sha256(text))[:16]
//
// All functions are pure: the same inputs yield the same output across
// processes and platforms. Truncation to 64 bits keeps collision risk
// negligible at expected corpus scales.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/hupe1980/veritas/model"
)

// IDLen is the length of every generated identifier in hex characters.
const IDLen = 16

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:IDLen]
}

// TextHash returns the full sha256 hex digest of text. It feeds DocID and is
// persisted in docs.meta as normalized_text_sha256.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NormalizePath canonicalizes a corpus-relative path before hashing:
// forward slashes only, "." and ".." resolved.
func NormalizePath(relPath string) string {
	normalized := strings.ReplaceAll(relPath, "\\", "/")
	var parts []string
	for _, part := range strings.Split(normalized, "/") {
		switch part {
		case ".":
			continue
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "/")
}

// DocUID derives the stable document UID from a corpus-relative path.
func DocUID(relPath string) model.DocUID {
	return model.DocUID(shortHash(NormalizePath(relPath)))
}

// DocID derives the versioned document ID. textHash must be the full sha256
// hex digest of the document's normalized text (see TextHash).
func DocID(uid model.DocUID, textHash string) model.DocID {
	return model.DocID(shortHash(string(uid) + textHash))
}

// ChunkID derives the deterministic chunk ID. It hashes the stable doc UID
// (not the versioned DocID) so chunk IDs survive edits elsewhere in the
// document, as long as the span and text are unchanged.
func ChunkID(uid model.DocUID, offsetStart, offsetEnd int, chunkText string) model.ChunkID {
	combined := string(uid) +
		strconv.Itoa(offsetStart) +
		strconv.Itoa(offsetEnd) +
		TextHash(chunkText)
	return model.ChunkID(shortHash(combined))
}
