package veritas

import (
	"errors"
	"fmt"
	iofs "io/fs"

	"github.com/hupe1980/veritas/chunkstore"
	"github.com/hupe1980/veritas/internal/hash"
	"github.com/hupe1980/veritas/lexical"
	"github.com/hupe1980/veritas/manifest"
)

var (
	// ErrNotFound is returned when a chunk ID is unknown or tombstoned.
	ErrNotFound = errors.New("not found")

	// ErrArtifactNotFound is returned by Open when the artifact directory or
	// one of its required files does not exist. Distinct from ErrNotFound,
	// which is scoped to a single chunk.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrClosed is returned by operations on a closed artifact.
	ErrClosed = errors.New("artifact is closed")

	// ErrCorrupt is returned when an artifact file fails structural
	// validation (bad magic, truncated data, out-of-range offsets).
	ErrCorrupt = errors.New("artifact is corrupt")

	// ErrChecksumMismatch is returned when stored data does not match its
	// recorded checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSchemaIncompatible is returned in strict validation for artifacts
	// written with a schema version this library does not support.
	ErrSchemaIncompatible = errors.New("incompatible schema version")

	// ErrEmptyIndex is returned when querying an artifact with no chunks.
	ErrEmptyIndex = errors.New("index is empty")

	// ErrNoQueryTerms is returned when a query tokenizes to nothing.
	ErrNoQueryTerms = errors.New("query has no terms")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// BuildError wraps a failure inside the build pipeline with the stage it
// occurred in. The staging directory has already been discarded when a
// BuildError is returned; the destination is untouched.
//
// The original underlying error can be accessed via errors.Unwrap.
type BuildError struct {
	Stage string
	cause error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed during %s: %v", e.Stage, e.cause)
}

func (e *BuildError) Unwrap() error { return e.cause }

func buildError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &BuildError{Stage: stage, cause: err}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification. Chunk-level first, then artifact-level: a
	// missing directory or required file is an absent artifact, not a
	// corrupt one.
	if errors.Is(err, chunkstore.ErrUnknownChunk) || errors.Is(err, chunkstore.ErrTombstoned) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, manifest.ErrMissingFile) {
		return fmt.Errorf("%w: %w", ErrArtifactNotFound, err)
	}

	// Integrity failures.
	var mism *hash.MismatchError
	if errors.As(err, &mism) || errors.Is(err, chunkstore.ErrChecksumMismatch) || errors.Is(err, manifest.ErrChecksumMismatch) {
		return fmt.Errorf("%w: %w", ErrChecksumMismatch, err)
	}
	if errors.Is(err, chunkstore.ErrCorrupt) || errors.Is(err, chunkstore.ErrDecompression) ||
		errors.Is(err, lexical.ErrCorruptIndex) || errors.Is(err, lexical.ErrInvalidMagic) ||
		errors.Is(err, lexical.ErrInvalidVersion) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if errors.Is(err, manifest.ErrSchemaIncompatible) {
		return fmt.Errorf("%w: %w", ErrSchemaIncompatible, err)
	}

	// Query argument normalization.
	if errors.Is(err, lexical.ErrEmptyIndex) {
		return fmt.Errorf("%w: %w", ErrEmptyIndex, err)
	}
	if errors.Is(err, lexical.ErrNoQueryTerms) {
		return fmt.Errorf("%w: %w", ErrNoQueryTerms, err)
	}
	if errors.Is(err, lexical.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, chunkstore.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
