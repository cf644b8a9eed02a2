package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/veritas/model"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err)

	_, err = New(10, 10)
	assert.Error(t, err)

	_, err = New(10, -1)
	assert.Error(t, err)

	c, err := New(10, 2)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestSpans_Empty(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)
	assert.Nil(t, c.Spans(""))
}

func TestSpans_SingleChunk(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)

	text := "alpha beta gamma"
	spans := c.Spans(text)
	require.Len(t, spans, 1)
	assert.Equal(t, model.Span{Start: 0, End: len(text)}, spans[0])
}

func TestSpans_WordBoundaries(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	words := []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}
	text := strings.Join(words, " ")

	spans := c.Spans(text)
	require.NotEmpty(t, spans)

	for _, s := range spans {
		chunk := text[s.Start:s.End]
		// No span starts or ends mid-word.
		if s.Start > 0 {
			assert.Equal(t, byte(' '), text[s.Start-1], "span %s starts mid-word", s)
		}
		if s.End < len(text) {
			assert.Equal(t, byte(' '), text[s.End], "span %s ends mid-word", s)
		}
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}

	// First span starts at 0, last span ends at len(text).
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len(text), spans[len(spans)-1].End)
}

func TestSpans_Overlap(t *testing.T) {
	c, err := New(4, 2)
	require.NoError(t, err)

	words := make([]string, 20)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	spans := c.Spans(text)
	require.Greater(t, len(spans), 1)

	for i := 1; i < len(spans); i++ {
		// Each chunk starts before its predecessor ends.
		assert.Less(t, spans[i].Start, spans[i-1].End)
		// But still makes forward progress.
		assert.Greater(t, spans[i].Start, spans[i-1].Start)
	}
}

func TestSpans_Deterministic(t *testing.T) {
	c, err := New(8, 3)
	require.NoError(t, err)

	text := strings.Repeat("lorem ipsum dolor sit amet ", 50)
	assert.Equal(t, c.Spans(text), c.Spans(text))
}

func TestPageRange(t *testing.T) {
	pages := []model.Page{
		{Number: 1, OffsetStart: 0, OffsetEnd: 100},
		{Number: 2, OffsetStart: 100, OffsetEnd: 200},
		{Number: 3, OffsetStart: 200, OffsetEnd: 300},
	}

	tests := []struct {
		span      model.Span
		wantStart int
		wantEnd   int
	}{
		{model.Span{Start: 10, End: 50}, 1, 1},
		{model.Span{Start: 90, End: 110}, 1, 2},
		{model.Span{Start: 50, End: 250}, 1, 3},
		{model.Span{Start: 100, End: 200}, 2, 2},
		{model.Span{Start: 300, End: 400}, 0, 0},
	}

	for _, tt := range tests {
		start, end := PageRange(pages, tt.span)
		assert.Equal(t, tt.wantStart, start, "span %s", tt.span)
		assert.Equal(t, tt.wantEnd, end, "span %s", tt.span)
	}
}

func TestPageRange_NoPages(t *testing.T) {
	start, end := PageRange(nil, model.Span{Start: 0, End: 10})
	assert.Zero(t, start)
	assert.Zero(t, end)
}
