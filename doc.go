// Package veritas provides an embedded, read-only retrieval artifact for Go.
//
// An artifact is a self-contained directory holding a compressed chunk
// store, a BM25 lexical index, per-document metadata and a manifest with
// per-file checksums. Artifacts are built once and queried many times; the
// query path never mutates any file, so a single artifact can be shared by
// any number of processes.
//
// # Building
//
//	cfg := manifest.DefaultConfig()
//	b, err := veritas.NewBuilder("./artifact", cfg)
//	if err != nil {
//	    panic(err)
//	}
//	for _, doc := range docs {
//	    doc.NormalizedText = normalizer.Normalize(raw)
//	    if _, err := b.AddDocument(doc); err != nil {
//	        b.Abort()
//	        panic(err)
//	    }
//	}
//	if err := b.Commit(ctx); err != nil {
//	    panic(err)
//	}
//
// The build stages everything in a hidden sibling directory and publishes it
// with a single rename. A crash or failure at any point leaves the previous
// artifact (or nothing) at the destination, never a half-written one.
//
// # Querying
//
//	a, err := veritas.Open("./artifact")
//	if err != nil {
//	    panic(err)
//	}
//	defer a.Close()
//
//	ids, _ := a.RetrieveIDs(ctx, "error handling", 10)   // IDs + scores only
//	results, _ := a.Retrieve(ctx, "error handling", 10)  // full chunks + snippets
//	block, cites, _ := a.Context(ctx, "error handling", 5)
//
// Scores are classic BM25; equal scores are ordered by chunk ID, so the
// same query against the same artifact returns the same ranking on every
// platform.
//
// # Validation
//
// Open supports three validation modes via WithValidation: normal (presence
// checks, schema mismatches become warnings), strict (full checksum sweep
// and deep store verification) and legacy (accepts older schema versions,
// filling defaults).
package veritas
