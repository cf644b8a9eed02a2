// Package testutil provides testing utilities for veritas.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random number generator and a
// deterministic synthetic corpus generator.
//
// # Seeded Randomness
//
//	rng := testutil.NewRNG(seed)
//	n := rng.Intn(100)
//
// # Synthetic Corpus
//
//	docs := testutil.Corpus(rng, 20, 400) // 20 docs, ~400 words each
//
// The same seed always yields the same corpus, so tests asserting on
// artifact checksums or rankings stay reproducible.
package testutil
