package manifest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/veritas/internal/fs"
)

// Mode selects how much of the artifact is verified on open.
type Mode int

const (
	// ModeNormal checks file presence and warns on schema-version
	// mismatches.
	ModeNormal Mode = iota
	// ModeStrict additionally recomputes every file's SHA-256 against the
	// manifest; any mismatch is fatal. Schema mismatches are fatal too.
	ModeStrict
	// ModeLegacy accepts older known schema versions, filling config
	// defaults; presence checks still apply.
	ModeLegacy
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeStrict:
		return "strict"
	case ModeLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

var (
	// ErrSchemaIncompatible is returned in strict mode for a schema version
	// this library does not write.
	ErrSchemaIncompatible = errors.New("incompatible schema version")

	// ErrMissingFile is returned when a required artifact file is absent.
	ErrMissingFile = errors.New("missing artifact file")

	// ErrChecksumMismatch is returned in strict mode when a file's SHA-256
	// does not match the manifest.
	ErrChecksumMismatch = errors.New("file checksum mismatch")
)

// Validate runs the selected validation mode against the artifact directory.
// Non-fatal findings are returned as warnings; a non-nil error is fatal to
// the open.
func (m *Manifest) Validate(ctx context.Context, fsys fs.FileSystem, dir string, mode Mode) (warnings []string, err error) {
	if fsys == nil {
		fsys = fs.Default
	}

	// Missing files are fatal in every mode.
	for _, name := range RequiredFiles {
		if _, statErr := fsys.Stat(filepath.Join(dir, name)); statErr != nil {
			return warnings, fmt.Errorf("%w: %s", ErrMissingFile, name)
		}
	}

	switch mode {
	case ModeStrict:
		if m.SchemaVersion != CurrentSchemaVersion {
			return warnings, fmt.Errorf("%w: %q (want %q)", ErrSchemaIncompatible, m.SchemaVersion, CurrentSchemaVersion)
		}
		if err := m.verifyChecksums(ctx, fsys, dir); err != nil {
			return warnings, err
		}
	case ModeLegacy:
		if m.SchemaVersion != CurrentSchemaVersion {
			if _, known := legacySchemaVersions[m.SchemaVersion]; known {
				m.Config.Normalize()
			} else {
				warnings = append(warnings, fmt.Sprintf("unknown schema version %q (want %q)", m.SchemaVersion, CurrentSchemaVersion))
			}
		}
	default: // ModeNormal
		if m.SchemaVersion != CurrentSchemaVersion {
			warnings = append(warnings, fmt.Sprintf("schema version %q differs from %q", m.SchemaVersion, CurrentSchemaVersion))
		}
	}

	return warnings, nil
}

// verifyChecksums recomputes every manifest file checksum in parallel.
func (m *Manifest) verifyChecksums(ctx context.Context, fsys fs.FileSystem, dir string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for name, want := range m.Files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			got, err := ComputeFileChecksum(fsys, filepath.Join(dir, name))
			if err != nil {
				return fmt.Errorf("%w: %s", ErrMissingFile, name)
			}
			if got != want {
				return fmt.Errorf("%w: %s: manifest %s, file %s", ErrChecksumMismatch, name, want, got)
			}
			return nil
		})
	}

	return g.Wait()
}
