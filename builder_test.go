package veritas

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/veritas/internal/fs"
	"github.com/hupe1980/veritas/manifest"
	"github.com/hupe1980/veritas/model"
)

func TestNewBuilder_InvalidConfig(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "artifact")

	tests := []struct {
		name   string
		mutate func(*manifest.BuildConfig)
	}{
		{"negative chunk size", func(c *manifest.BuildConfig) { c.ChunkSize = -1 }},
		{"overlap >= size", func(c *manifest.BuildConfig) { c.ChunkSize = 10; c.ChunkOverlap = 10 }},
		{"bad compression", func(c *manifest.BuildConfig) { c.Compression = "brotli" }},
		{"b out of range", func(c *manifest.BuildConfig) { c.BM25B = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := manifest.DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewBuilder(dest, cfg)
			require.Error(t, err)

			var be *BuildError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, "config", be.Stage)
		})
	}
}

func TestNewBuilder_ZeroConfigGetsDefaults(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "artifact")
	buildArtifact(t, dest, testDocs(), manifest.BuildConfig{})

	a, err := Open(dest)
	require.NoError(t, err)
	defer a.Close()

	// Overlap zero is a valid explicit choice and stays as given; every
	// other zero field is filled with its default.
	def := manifest.DefaultConfig()
	def.ChunkOverlap = 0
	assert.Equal(t, def, a.Manifest().Config)
}

func TestBuilder_DuplicateDocument(t *testing.T) {
	b, err := NewBuilder(filepath.Join(t.TempDir(), "artifact"), smallConfig())
	require.NoError(t, err)
	defer b.Abort()

	doc := testDocs()[0]
	_, err = b.AddDocument(doc)
	require.NoError(t, err)
	_, err = b.AddDocument(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate document")
}

func TestBuilder_SpanOutOfRange(t *testing.T) {
	b, err := NewBuilder(filepath.Join(t.TempDir(), "artifact"), smallConfig())
	require.NoError(t, err)
	defer b.Abort()

	doc := testDocs()[0]
	_, err = b.AddDocumentSpans(doc, []model.Span{{Start: 0, End: len(doc.NormalizedText) + 1}})
	require.Error(t, err)
	_, err = b.AddDocumentSpans(doc, []model.Span{{Start: 5, End: 5}})
	require.Error(t, err)
}

func TestBuilder_AfterCommit(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "artifact")
	b, err := NewBuilder(dest, smallConfig())
	require.NoError(t, err)
	_, err = b.AddDocument(testDocs()[0])
	require.NoError(t, err)
	require.NoError(t, b.Commit(context.Background()))

	_, err = b.AddDocument(testDocs()[1])
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Commit(context.Background()), ErrClosed)
}

func TestBuilder_Abort(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "artifact")

	b, err := NewBuilder(dest, smallConfig())
	require.NoError(t, err)
	_, err = b.AddDocument(testDocs()[0])
	require.NoError(t, err)
	b.Abort()

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
	assertNoStagingLeftovers(t, parent)
}

func TestCommit_ReplacesExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "artifact")
	buildArtifact(t, dest, testDocs()[:1], smallConfig())

	// Rebuild with the second document only; the open must see the new
	// corpus, not a merge.
	buildArtifact(t, dest, testDocs()[1:], smallConfig())

	a, err := Open(dest)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 1, a.Stats().TotalDocs)
	results, err := a.Retrieve(context.Background(), "beta", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "docs/beta.md", results[0].Chunk.SourceRef.SourcePath)

	_, err = os.Stat(dest + ".replaced")
	assert.True(t, os.IsNotExist(err), "aside directory must be cleaned up")
}

func TestCommit_PublishRenameFailure(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "dest-artifact")

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("dest-artifact", fs.Fault{FailAfterBytes: -1, FailOnRename: true})

	b, err := NewBuilder(dest, smallConfig(), WithFileSystem(faulty))
	require.NoError(t, err)
	_, err = b.AddDocument(testDocs()[0])
	require.NoError(t, err)

	err = b.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrInjected)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "swap", be.Stage)

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "destination must not exist after a failed publish")
	assertNoStagingLeftovers(t, parent)
}

func TestCommit_IndexSyncFailure(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "artifact")

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("lexical.idx", fs.Fault{FailAfterBytes: -1, FailOnSync: true})

	b, err := NewBuilder(dest, smallConfig(), WithFileSystem(faulty))
	require.NoError(t, err)
	_, err = b.AddDocument(testDocs()[0])
	require.NoError(t, err)

	err = b.Commit(context.Background())
	require.Error(t, err)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "index", be.Stage)

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
	assertNoStagingLeftovers(t, parent)
}

func TestCommit_FailedReplaceKeepsPreviousArtifact(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "artifact")
	buildArtifact(t, dest, testDocs()[:1], smallConfig())

	// Fail moving the old artifact aside: the swap aborts before the
	// destination is touched.
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule(".replaced", fs.Fault{FailAfterBytes: -1, FailOnRename: true})

	b, err := NewBuilder(dest, smallConfig(), WithFileSystem(faulty))
	require.NoError(t, err)
	_, err = b.AddDocument(testDocs()[1])
	require.NoError(t, err)

	err = b.Commit(context.Background())
	require.Error(t, err)
	assertNoStagingLeftovers(t, parent)

	// The previous artifact survives intact.
	a, err := Open(dest)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 1, a.Stats().TotalDocs)
	results, err := a.Retrieve(context.Background(), "retrieval", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "docs/alpha.md", results[0].Chunk.SourceRef.SourcePath)
}

// dirSyncFailFS fails opening one exact directory path, so fs.SyncDir on it
// errors while every file under it behaves normally.
type dirSyncFailFS struct {
	fs.FileSystem
	dir string
	err error
}

func (d dirSyncFailFS) OpenFile(name string, flag int, perm os.FileMode) (fs.File, error) {
	if name == d.dir {
		return nil, d.err
	}
	return d.FileSystem.OpenFile(name, flag, perm)
}

func TestCommit_ParentSyncFailureRollsBack(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "artifact")
	buildArtifact(t, dest, testDocs()[:1], smallConfig())

	errSync := errors.New("sync failed")
	fsys := dirSyncFailFS{FileSystem: fs.Default, dir: parent, err: errSync}

	b, err := NewBuilder(dest, smallConfig(), WithFileSystem(fsys))
	require.NoError(t, err)
	_, err = b.AddDocument(testDocs()[1])
	require.NoError(t, err)

	err = b.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errSync)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "swap", be.Stage)

	// The publish was undone: the previous artifact is back in place and
	// the aside copy did not leak.
	_, err = os.Stat(dest + ".replaced")
	assert.True(t, os.IsNotExist(err), "aside directory leaked")
	assertNoStagingLeftovers(t, parent)

	a, err := Open(dest)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 1, a.Stats().TotalDocs)
	results, err := a.Retrieve(context.Background(), "retrieval", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "docs/alpha.md", results[0].Chunk.SourceRef.SourcePath)
}

func TestCommit_CancelledContext(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "artifact")

	b, err := NewBuilder(dest, smallConfig())
	require.NoError(t, err)
	_, err = b.AddDocument(testDocs()[0])
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = b.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
	assertNoStagingLeftovers(t, parent)
}

func assertNoStagingLeftovers(t *testing.T, parent string) {
	t.Helper()
	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".veritas-build-", "staging directory leaked")
	}
}
