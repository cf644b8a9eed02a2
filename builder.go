package veritas

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/veritas/chunker"
	"github.com/hupe1980/veritas/chunkstore"
	"github.com/hupe1980/veritas/codec"
	"github.com/hupe1980/veritas/core"
	"github.com/hupe1980/veritas/internal/fs"
	"github.com/hupe1980/veritas/lexical"
	"github.com/hupe1980/veritas/manifest"
	"github.com/hupe1980/veritas/model"
)

const docsMetaFileName = "docs.meta"

// Builder assembles a new artifact in a staging directory and publishes it
// with a single directory rename on Commit. Until Commit returns nil the
// destination is never touched; a failed or aborted build leaves either the
// previous artifact or nothing.
//
// Builder is single-goroutine: calls must not race.
type Builder struct {
	fs      fs.FileSystem
	codec   codec.Codec
	logger  *Logger
	metrics MetricsCollector

	dest    string
	staging string
	cfg     manifest.BuildConfig

	writer  *chunkstore.Writer
	index   *lexical.Index
	chunker *chunker.Chunker
	docs    []model.DocumentMeta
	seen    map[model.DocUID]struct{}

	started time.Time
	done    bool
}

// NewBuilder creates a build staging directory next to dest and prepares the
// store and index writers. cfg zero values are filled with defaults before
// validation.
func NewBuilder(dest string, cfg manifest.BuildConfig, optFns ...Option) (*Builder, error) {
	opts := applyOptions(optFns)

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, buildError("config", err)
	}

	compression, err := chunkstore.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, buildError("config", err)
	}
	ck, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, buildError("config", err)
	}

	parent := filepath.Dir(dest)
	if err := opts.fs.MkdirAll(parent, 0o755); err != nil {
		return nil, buildError("staging", err)
	}
	staging, err := opts.fs.MkdirTemp(parent, ".veritas-build-*")
	if err != nil {
		return nil, buildError("staging", err)
	}

	writer, err := chunkstore.NewWriter(opts.fs, staging, compression, cfg.CompressionLevel)
	if err != nil {
		_ = opts.fs.RemoveAll(staging)
		return nil, buildError("staging", err)
	}

	return &Builder{
		fs:      opts.fs,
		codec:   opts.codec,
		logger:  opts.logger,
		metrics: opts.metricsCollector,
		dest:    dest,
		staging: staging,
		cfg:     cfg,
		writer:  writer,
		index:   lexical.NewIndex(cfg.BM25K1, cfg.BM25B, lexical.NewTokenizer(false)),
		chunker: ck,
		seen:    make(map[model.DocUID]struct{}),
		started: time.Now(),
	}, nil
}

// AddDocument chunks the document with the configured chunk size and overlap
// and indexes the result. The document's normalized text must already be
// normalized (see the normalizer package); offsets are derived against it
// verbatim.
func (b *Builder) AddDocument(doc model.Document) (model.DocumentMeta, error) {
	if b.done {
		return model.DocumentMeta{}, ErrClosed
	}
	spans := b.chunker.Spans(doc.NormalizedText)
	return b.AddDocumentSpans(doc, spans)
}

// AddDocumentSpans indexes a document using caller-provided chunk spans.
// Spans must be half-open byte intervals into the normalized text, in
// document order.
func (b *Builder) AddDocumentSpans(doc model.Document, spans []model.Span) (model.DocumentMeta, error) {
	if b.done {
		return model.DocumentMeta{}, ErrClosed
	}
	if doc.SourcePath == "" {
		return model.DocumentMeta{}, buildError("add", fmt.Errorf("document has no source path"))
	}

	uid := core.DocUID(doc.SourcePath)
	if _, dup := b.seen[uid]; dup {
		return model.DocumentMeta{}, buildError("add", fmt.Errorf("duplicate document %s", doc.SourcePath))
	}

	textHash := core.TextHash(doc.NormalizedText)
	docID := core.DocID(uid, textHash)

	for i, span := range spans {
		if span.Start < 0 || span.End > len(doc.NormalizedText) || span.Start >= span.End {
			return model.DocumentMeta{}, buildError("add",
				fmt.Errorf("span %s out of range for %s (%d bytes)", span, doc.SourcePath, len(doc.NormalizedText)))
		}

		chunkText := doc.NormalizedText[span.Start:span.End]
		pageStart, pageEnd := chunker.PageRange(doc.Pages, span)
		chunk := model.Chunk{
			ChunkID:     core.ChunkID(uid, span.Start, span.End, chunkText),
			DocUID:      uid,
			DocID:       docID,
			Text:        chunkText,
			OffsetStart: span.Start,
			OffsetEnd:   span.End,
			ChunkIndex:  i,
			PageStart:   pageStart,
			PageEnd:     pageEnd,
			SourceRef: model.SourceRef{
				SourcePath:  doc.SourcePath,
				OffsetStart: span.Start,
				OffsetEnd:   span.End,
				PageStart:   pageStart,
				PageEnd:     pageEnd,
			},
		}

		if _, err := b.writer.Append(chunk); err != nil {
			return model.DocumentMeta{}, buildError("store", err)
		}
		if _, err := b.index.Add(chunk.ChunkID, chunkText); err != nil {
			return model.DocumentMeta{}, buildError("index", err)
		}
	}

	meta := model.DocumentMeta{
		DocUID:             uid,
		DocID:              docID,
		SourcePath:         doc.SourcePath,
		Title:              doc.Title,
		ExtractedAt:        doc.ExtractedAt,
		NormalizedTextHash: textHash,
		ChunkCount:         len(spans),
	}
	b.seen[uid] = struct{}{}
	b.docs = append(b.docs, meta)
	return meta, nil
}

// Tombstone marks an already-added chunk inactive in the artifact being
// built. The payload stays on disk; the chunk is excluded from retrieval
// and fetch.
func (b *Builder) Tombstone(id model.ChunkID) error {
	if b.done {
		return ErrClosed
	}
	if err := b.writer.Tombstone(id); err != nil {
		return buildError("tombstone", translateError(err))
	}
	return nil
}

// Commit finalizes the staging directory and atomically replaces dest with
// it. On any failure the staging directory is removed and dest is left
// exactly as it was.
func (b *Builder) Commit(ctx context.Context) error {
	if b.done {
		return ErrClosed
	}
	b.done = true

	chunks := b.activeChunks()
	err := b.commit(ctx, chunks)
	elapsed := time.Since(b.started)
	b.metrics.RecordCommit(chunks, elapsed, err)
	b.logger.LogCommit(ctx, b.dest, len(b.docs), chunks, elapsed, err)
	if err != nil {
		b.discard()
	}
	return err
}

func (b *Builder) commit(ctx context.Context, activeChunks int) error {
	if err := ctx.Err(); err != nil {
		return buildError("commit", err)
	}

	// Final invariant sweep before anything becomes visible.
	dataSize := b.writer.DataSize()
	for _, rec := range b.writer.Records() {
		if rec.StoreOffset+uint64(rec.Length) > dataSize {
			return buildError("verify", fmt.Errorf("record %s exceeds data size", rec.ChunkID))
		}
		if rec.OffsetStart >= rec.OffsetEnd {
			return buildError("verify", fmt.Errorf("record %s has empty span", rec.ChunkID))
		}
	}

	if err := b.writer.Finish(); err != nil {
		return buildError("store", err)
	}
	if err := b.saveLexical(); err != nil {
		return buildError("index", err)
	}
	if err := b.saveDocsMeta(); err != nil {
		return buildError("meta", err)
	}
	if err := b.saveManifest(activeChunks); err != nil {
		return buildError("manifest", err)
	}
	if err := b.swap(); err != nil {
		return buildError("swap", err)
	}
	return nil
}

func (b *Builder) saveLexical() error {
	f, err := b.fs.OpenFile(filepath.Join(b.staging, lexical.IndexFileName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if err := b.index.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (b *Builder) saveDocsMeta() error {
	data, err := b.codec.Marshal(b.docs)
	if err != nil {
		return err
	}
	f, err := b.fs.OpenFile(filepath.Join(b.staging, docsMetaFileName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (b *Builder) saveManifest(activeChunks int) error {
	files := make(map[string]string, len(manifest.RequiredFiles))
	for _, name := range manifest.RequiredFiles {
		sum, err := manifest.ComputeFileChecksum(b.fs, filepath.Join(b.staging, name))
		if err != nil {
			return err
		}
		files[name] = sum
	}

	m := &manifest.Manifest{
		SchemaVersion: manifest.CurrentSchemaVersion,
		CreatedAt:     time.Now().UTC(),
		IndexType:     manifest.IndexTypeBM25,
		Config:        b.cfg,
		TotalDocs:     len(b.docs),
		TotalChunks:   activeChunks,
		Files:         files,
	}
	return m.Save(b.fs, b.staging, b.codec)
}

// swap publishes the staging directory. An existing artifact is moved aside
// first so that a failed rename can be rolled back, then removed once the
// new directory is in place.
func (b *Builder) swap() error {
	aside := b.dest + ".replaced"
	replaced := false
	if _, err := b.fs.Stat(b.dest); err == nil {
		_ = b.fs.RemoveAll(aside)
		if err := b.fs.Rename(b.dest, aside); err != nil {
			return err
		}
		replaced = true
	}

	if err := b.fs.Rename(b.staging, b.dest); err != nil {
		if replaced {
			_ = b.fs.Rename(aside, b.dest)
		}
		return err
	}
	if err := fs.SyncDir(b.fs, filepath.Dir(b.dest)); err != nil {
		// Undo the publish: a failed commit must leave dest exactly as it
		// was, and the aside copy must not leak.
		if rerr := b.fs.Rename(b.dest, b.staging); rerr == nil && replaced {
			_ = b.fs.Rename(aside, b.dest)
		}
		return err
	}
	if replaced {
		_ = b.fs.RemoveAll(aside)
	}
	return nil
}

func (b *Builder) activeChunks() int {
	n := 0
	for _, rec := range b.writer.Records() {
		if rec.Active {
			n++
		}
	}
	return n
}

// Abort discards the staging directory. Safe to call after a failed Commit;
// calling it after a successful Commit is a no-op.
func (b *Builder) Abort() {
	if b.done {
		return
	}
	b.done = true
	b.discard()
}

func (b *Builder) discard() {
	b.writer.Discard()
	_ = b.fs.RemoveAll(b.staging)
}
