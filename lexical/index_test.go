package lexical

import (
	"fmt"
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/veritas/model"
)

func cid(i int) model.ChunkID {
	return model.ChunkID(fmt.Sprintf("%016x", i))
}

func buildIndex(t *testing.T, texts ...string) *Index {
	t.Helper()
	idx := NewIndex(DefaultK1, DefaultB, NewTokenizer(false))
	for i, text := range texts {
		_, err := idx.Add(cid(i), text)
		require.NoError(t, err)
	}
	return idx
}

func TestSearch_Basic(t *testing.T) {
	idx := buildIndex(t,
		"the quick brown fox",
		"jumped over the lazy dog",
		"quick brown dogs",
		"fox and dog",
	)

	results, err := idx.Search("fox", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	found := make(map[model.ChunkID]bool)
	for _, r := range results {
		found[r.ChunkID] = true
		assert.Greater(t, r.Score, 0.0)
	}
	assert.True(t, found[cid(0)])
	assert.True(t, found[cid(3)])
}

func TestSearch_TermFrequencyRanks(t *testing.T) {
	idx := buildIndex(t,
		"alpha alpha beta",
		"alpha beta gamma",
	)

	results, err := idx.Search("alpha", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Equal lengths, so the doc with the higher term frequency wins.
	assert.Equal(t, cid(0), results[0].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_ScoreFormula(t *testing.T) {
	idx := buildIndex(t,
		"alpha beta",
		"gamma delta",
	)

	results, err := idx.Search("alpha", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// N=2, df=1, tf=1, docLen=2, avgLen=2.
	idf := math.Log((2-1+0.5)/(1+0.5) + 1)
	want := idf * 1 * (DefaultK1 + 1) / (1 + DefaultK1*(1-DefaultB+DefaultB*2/2))
	assert.InDelta(t, want, results[0].Score, 1e-12)
}

func TestSearch_TieBreakAscendingID(t *testing.T) {
	// Identical texts produce identical scores; order must fall back to
	// ascending chunk ID regardless of insertion order.
	idx := NewIndex(DefaultK1, DefaultB, NewTokenizer(false))
	_, err := idx.Add(cid(7), "alpha beta")
	require.NoError(t, err)
	_, err = idx.Add(cid(3), "alpha beta")
	require.NoError(t, err)
	_, err = idx.Add(cid(5), "alpha beta")
	require.NoError(t, err)

	results, err := idx.Search("alpha", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, cid(3), results[0].ChunkID)
	assert.Equal(t, cid(5), results[1].ChunkID)
	assert.Equal(t, cid(7), results[2].ChunkID)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, results[1].Score, results[2].Score)
}

func TestSearch_TopKBounded(t *testing.T) {
	idx := NewIndex(DefaultK1, DefaultB, NewTokenizer(false))
	for i := 0; i < 50; i++ {
		_, err := idx.Add(cid(i), fmt.Sprintf("alpha term%d", i))
		require.NoError(t, err)
	}

	results, err := idx.Search("alpha", 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 5)

	for i := 1; i < len(results); i++ {
		if results[i-1].Score == results[i].Score {
			assert.Less(t, string(results[i-1].ChunkID), string(results[i].ChunkID))
		} else {
			assert.Greater(t, results[i-1].Score, results[i].Score)
		}
	}
}

func TestSearch_ActiveFilter(t *testing.T) {
	idx := buildIndex(t,
		"alpha one",
		"alpha two",
		"alpha three",
	)

	active := roaring.New()
	active.Add(0)
	active.Add(2)

	results, err := idx.Search("alpha", 10, active)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, cid(1), r.ChunkID)
	}
}

func TestSearch_Errors(t *testing.T) {
	empty := NewIndex(DefaultK1, DefaultB, NewTokenizer(false))
	_, err := empty.Search("alpha", 10, nil)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	idx := buildIndex(t, "alpha beta")

	_, err = idx.Search("alpha", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = idx.Search("!!!", 10, nil)
	assert.ErrorIs(t, err, ErrNoQueryTerms)

	// Unknown terms are not an error, just no hits.
	results, err := idx.Search("zzz", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_DuplicateQueryTerms(t *testing.T) {
	idx := buildIndex(t,
		"alpha beta",
		"beta gamma",
	)

	once, err := idx.Search("alpha", 10, nil)
	require.NoError(t, err)
	twice, err := idx.Search("alpha alpha alpha", 10, nil)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestIndex_AvgLength(t *testing.T) {
	idx := buildIndex(t,
		"one two three four",
		"one two",
	)
	assert.Equal(t, 3.0, idx.AvgLength())
	assert.Equal(t, 2, idx.Len())
}
