package veritas

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/veritas/chunkstore"
	"github.com/hupe1980/veritas/codec"
	"github.com/hupe1980/veritas/internal/fs"
	"github.com/hupe1980/veritas/lexical"
	"github.com/hupe1980/veritas/manifest"
	"github.com/hupe1980/veritas/model"
)

const snippetLength = 200

// Artifact is a read-only handle on an opened artifact directory. All
// methods are safe for concurrent use; the underlying files are never
// modified after Open.
type Artifact struct {
	mu     sync.RWMutex
	closed bool

	dir      string
	manifest *manifest.Manifest
	warnings []string

	store  *chunkstore.Store
	index  *lexical.Index
	active *roaring.Bitmap
	docs   map[model.DocUID]model.DocumentMeta

	fetchConcurrency int
	metrics          MetricsCollector
	logger           *Logger
}

// Open opens the artifact at dir and validates it according to the
// configured validation mode (normal by default).
//
// Normal mode checks file presence and downgrades schema mismatches to
// warnings (see Warnings). Strict mode additionally recomputes every file
// checksum and deep-verifies the chunk store; expect latency proportional to
// artifact size. Legacy mode accepts older known schemas, filling config
// defaults.
func Open(dir string, optFns ...Option) (*Artifact, error) {
	ctx := context.Background()
	opts := applyOptions(optFns)
	start := time.Now()

	a, err := open(ctx, dir, opts)
	err = translateError(err)
	opts.metricsCollector.RecordOpen(time.Since(start), err)
	warnings := 0
	if a != nil {
		warnings = len(a.warnings)
		for _, w := range a.warnings {
			opts.logger.WarnContext(ctx, "artifact validation warning", "artifact", dir, "warning", w)
		}
	}
	opts.logger.LogOpen(ctx, dir, opts.validation.String(), warnings, err)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func open(ctx context.Context, dir string, opts options) (*Artifact, error) {
	m, err := manifest.Load(opts.fs, dir, opts.codec)
	if err != nil {
		return nil, err
	}

	warnings, err := m.Validate(ctx, opts.fs, dir, opts.validation)
	if err != nil {
		return nil, err
	}

	compression, err := chunkstore.ParseCompression(m.Config.Compression)
	if err != nil {
		return nil, err
	}

	store, err := chunkstore.Open(opts.fs, dir, compression)
	if err != nil {
		return nil, err
	}

	index, err := loadLexical(opts.fs, dir)
	if err != nil {
		store.Close()
		return nil, err
	}

	// k1/b travel with the index; the manifest copy is informational. A
	// disagreement means one of the files was swapped out.
	if index.K1() != m.Config.BM25K1 || index.B() != m.Config.BM25B {
		msg := fmt.Sprintf("bm25 parameters disagree: index k1=%g b=%g, manifest k1=%g b=%g",
			index.K1(), index.B(), m.Config.BM25K1, m.Config.BM25B)
		if opts.validation == manifest.ModeStrict {
			store.Close()
			return nil, fmt.Errorf("%w: %s", manifest.ErrChecksumMismatch, msg)
		}
		warnings = append(warnings, msg)
	}

	docs, err := loadDocsMeta(opts.fs, dir, opts.codec)
	if err != nil {
		store.Close()
		return nil, err
	}

	if opts.validation == manifest.ModeStrict {
		if err := store.Verify(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	active := roaring.New()
	for local := lexical.LocalID(0); int(local) < index.Len(); local++ {
		id, _ := index.ChunkID(local)
		if rec, ok := store.Record(id); ok && rec.Active {
			active.Add(uint32(local))
		}
	}

	return &Artifact{
		dir:              dir,
		manifest:         m,
		warnings:         warnings,
		store:            store,
		index:            index,
		active:           active,
		docs:             docs,
		fetchConcurrency: opts.fetchConcurrency,
		metrics:          opts.metricsCollector,
		logger:           opts.logger,
	}, nil
}

func loadLexical(fsys fs.FileSystem, dir string) (*lexical.Index, error) {
	f, err := fsys.OpenFile(filepath.Join(dir, lexical.IndexFileName), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return lexical.Load(f)
}

func loadDocsMeta(fsys fs.FileSystem, dir string, c codec.Codec) (map[model.DocUID]model.DocumentMeta, error) {
	f, err := fsys.OpenFile(filepath.Join(dir, docsMetaFileName), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	data := make([]byte, info.Size())
	if _, err := f.ReadAt(data, 0); err != nil {
		return nil, err
	}

	var metas []model.DocumentMeta
	if err := c.Unmarshal(data, &metas); err != nil {
		return nil, fmt.Errorf("docs.meta: %w", err)
	}
	docs := make(map[model.DocUID]model.DocumentMeta, len(metas))
	for _, dm := range metas {
		docs[dm.DocUID] = dm
	}
	return docs, nil
}

// Warnings returns the non-fatal findings collected while opening.
func (a *Artifact) Warnings() []string {
	return a.warnings
}

// Manifest returns the artifact's manifest.
func (a *Artifact) Manifest() *manifest.Manifest {
	return a.manifest
}

// RetrieveIDs runs a BM25 query and returns the top-k chunk IDs and scores
// without touching the payload file. Results are ordered by descending
// score, ties broken by ascending chunk ID.
func (a *Artifact) RetrieveIDs(ctx context.Context, query string, k int) ([]model.ScoredChunk, error) {
	start := time.Now()
	scored, err := a.retrieveIDs(ctx, query, k)
	a.metrics.RecordRetrieve(k, time.Since(start), err)
	a.logger.LogRetrieve(ctx, k, len(scored), err)
	return scored, err
}

func (a *Artifact) retrieveIDs(ctx context.Context, query string, k int) ([]model.ScoredChunk, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scored, err := a.index.Search(query, k, a.active)
	return scored, translateError(err)
}

// Retrieve runs a BM25 query and materializes the top-k results with chunk
// payloads, matched terms and a snippet around the first match.
func (a *Artifact) Retrieve(ctx context.Context, query string, k int) ([]model.Result, error) {
	start := time.Now()
	results, err := a.retrieve(ctx, query, k)
	a.metrics.RecordRetrieve(k, time.Since(start), err)
	a.logger.LogRetrieve(ctx, k, len(results), err)
	return results, err
}

func (a *Artifact) retrieve(ctx context.Context, query string, k int) ([]model.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scored, err := a.index.Search(query, k, a.active)
	if err != nil {
		return nil, translateError(err)
	}

	queryTerms := make(map[string]struct{})
	for _, tok := range a.index.Tokenizer().Tokenize(query) {
		queryTerms[tok] = struct{}{}
	}

	// A chunk that cannot be read must not block the rest of the result
	// set; drop it and keep going.
	results := make([]model.Result, 0, len(scored))
	for _, sc := range scored {
		chunk, err := a.materialize(sc.ChunkID)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping unreadable chunk",
				"chunk_id", string(sc.ChunkID), "error", err)
			continue
		}

		matched := matchedTerms(queryTerms, a.index.Tokenizer().Tokenize(chunk.Text))
		results = append(results, model.Result{
			ScoredChunk:  sc,
			Chunk:        chunk,
			MatchedTerms: matched,
			Snippet:      snippet(chunk.Text, matched, snippetLength),
		})
	}
	return results, nil
}

// FetchChunks reads the given chunks concurrently, preserving input order.
// Per-ID failures are reported in the corresponding FetchResult and do not
// affect sibling IDs; the returned error is reserved for context
// cancellation.
func (a *Artifact) FetchChunks(ctx context.Context, ids []model.ChunkID) ([]model.FetchResult, error) {
	start := time.Now()

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	results := make([]model.FetchResult, len(ids))
	sem := make(chan struct{}, a.fetchConcurrency)
	var wg sync.WaitGroup
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			chunk, err := a.materialize(id)
			results[i] = model.FetchResult{ChunkID: id, Chunk: chunk, Err: err}
		}()
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	a.metrics.RecordFetch(len(ids), failed, time.Since(start))
	a.logger.LogFetch(ctx, len(ids), failed)
	return results, nil
}

// Context retrieves the top-k chunks for query and assembles them into a
// single prompt-ready block, one cited paragraph per distinct document.
func (a *Artifact) Context(ctx context.Context, query string, k int) (string, []model.Citation, error) {
	results, err := a.Retrieve(ctx, query, k)
	if err != nil {
		return "", nil, err
	}

	var parts []string
	var citations []model.Citation
	seen := make(map[model.DocID]struct{})

	for _, r := range results {
		if _, dup := seen[r.Chunk.DocID]; dup {
			continue
		}
		seen[r.Chunk.DocID] = struct{}{}

		ref := r.Chunk.SourceRef
		cite := "[Doc: " + ref.SourcePath
		if ref.PageStart > 0 {
			cite += fmt.Sprintf(", Page: %d", ref.PageStart)
		}
		cite += "]"

		parts = append(parts, cite+" "+r.Chunk.Text)
		citations = append(citations, model.Citation{
			SourcePath:  ref.SourcePath,
			OffsetStart: ref.OffsetStart,
			OffsetEnd:   ref.OffsetEnd,
			PageStart:   ref.PageStart,
			PageEnd:     ref.PageEnd,
		})
	}

	return strings.Join(parts, "\n\n"), citations, nil
}

// materialize reads one chunk payload and rebuilds the full Chunk from its
// index record and document metadata. Caller holds the read lock.
func (a *Artifact) materialize(id model.ChunkID) (*model.Chunk, error) {
	text, rec, err := a.store.Fetch(id)
	if err != nil {
		return nil, translateError(err)
	}

	sourcePath := ""
	if dm, ok := a.docs[rec.DocUID]; ok {
		sourcePath = dm.SourcePath
	}

	return &model.Chunk{
		ChunkID:     rec.ChunkID,
		DocUID:      rec.DocUID,
		DocID:       rec.DocID,
		Text:        text,
		OffsetStart: rec.OffsetStart,
		OffsetEnd:   rec.OffsetEnd,
		ChunkIndex:  rec.ChunkIndex,
		PageStart:   rec.PageStart,
		PageEnd:     rec.PageEnd,
		SourceRef: model.SourceRef{
			SourcePath:  sourcePath,
			OffsetStart: rec.OffsetStart,
			OffsetEnd:   rec.OffsetEnd,
			PageStart:   rec.PageStart,
			PageEnd:     rec.PageEnd,
		},
	}, nil
}

// Stats summarizes the opened artifact.
type Stats struct {
	TotalDocs      int
	TotalChunks    int
	ActiveChunks   int
	Tombstoned     int
	DataSize       uint64
	AvgChunkTokens float64
	SchemaVersion  string
	Compression    string
}

// Stats returns artifact statistics. Cheap; all values come from in-memory
// state.
func (a *Artifact) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return Stats{}
	}
	return Stats{
		TotalDocs:      len(a.docs),
		TotalChunks:    a.store.Len(),
		ActiveChunks:   a.store.ActiveLen(),
		Tombstoned:     a.store.Len() - a.store.ActiveLen(),
		DataSize:       a.store.DataSize(),
		AvgChunkTokens: a.index.AvgLength(),
		SchemaVersion:  a.manifest.SchemaVersion,
		Compression:    a.manifest.Config.Compression,
	}
}

// Close releases the artifact's file handles. Close is idempotent; other
// operations return ErrClosed afterwards.
func (a *Artifact) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.store.Close()
}

func matchedTerms(queryTerms map[string]struct{}, chunkTokens []string) []string {
	hit := make(map[string]struct{})
	for _, tok := range chunkTokens {
		if _, ok := queryTerms[tok]; ok {
			hit[tok] = struct{}{}
		}
	}
	terms := make([]string, 0, len(hit))
	for t := range hit {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// snippet returns ~maxLen bytes around the first occurrence of any matched
// term, with ellipses marking truncation. Window edges are moved to rune
// boundaries so the snippet is always valid UTF-8.
func snippet(text string, matched []string, maxLen int) string {
	if len(text) == 0 {
		return ""
	}
	if len(matched) == 0 {
		return truncate(text, maxLen)
	}

	lower := strings.ToLower(text)
	first := len(text)
	for _, term := range matched {
		if pos := strings.Index(lower, strings.ToLower(term)); pos >= 0 && pos < first {
			first = pos
		}
	}
	if first == len(text) {
		return truncate(text, maxLen)
	}

	start := first - maxLen/2
	if start < 0 {
		start = 0
	}
	end := first + maxLen/2
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	s := text[start:end]
	if start > 0 {
		s = "..." + s
	}
	if end < len(text) {
		s = s + "..."
	}
	return s
}

// truncate shortens text to at most maxLen bytes on a rune boundary.
func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	end := maxLen
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	return text[:end]
}
