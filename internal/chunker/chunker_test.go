package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentenceText builds n sentences of ~63 characters each
func sentenceText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %03d pads the document with useful filler text. ", i)
	}
	return strings.TrimSpace(b.String())
}

func TestSplit_EmptyInput(t *testing.T) {
	c := New(800, 200, 100)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := New(800, 200, 10)

	text := "This is a short sentence. It fits in one chunk."
	chunks := c.Split(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplit_InputBelowMinSizeDropped(t *testing.T) {
	c := New(800, 200, 100)

	chunks := c.Split("Tiny text.")
	assert.Empty(t, chunks)
}

func TestSplit_NormalizesWhitespace(t *testing.T) {
	c := New(800, 200, 5)

	chunks := c.Split("Hello   world.\n\nNext  sentence   here.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world. Next sentence here.", chunks[0])
}

func TestSplit_DoesNotSplitOnAbbreviations(t *testing.T) {
	c := New(800, 200, 5)

	// "Dr." is followed by a lower-case letter and "3.14" by a digit,
	// so neither is a sentence boundary.
	text := "Dr. smith measured 3.14 units. Then he went home."
	chunks := c.Split(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplit_LongDocument(t *testing.T) {
	c := New(800, 200, 100)

	text := sentenceText(80) // ~5000 characters
	require.Greater(t, len(text), 4900)

	chunks := c.Split(text)

	assert.GreaterOrEqual(t, len(chunks), 5)
	for i, chunk := range chunks {
		assert.GreaterOrEqual(t, len(chunk), 100, "chunk %d too short", i)
		assert.LessOrEqual(t, len(chunk), 1000, "chunk %d too long", i)
	}

	// Consecutive chunks share the overlap region: the head of each
	// chunk is a tail of the previous one.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i][:100]
		assert.Contains(t, chunks[i-1], head, "chunks %d and %d do not overlap", i-1, i)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := New(800, 200, 100)
	text := sentenceText(50)

	first := c.Split(text)
	second := c.Split(text)

	assert.Equal(t, first, second)
}

func TestSplit_FixedSizeFallback(t *testing.T) {
	c := New(800, 200, 100)

	// No sentence terminators at all.
	text := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", 100))
	require.Greater(t, len(text), 800)

	chunks := c.Split(text)

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.GreaterOrEqual(t, len(chunk), 100, "chunk %d too short", i)
		assert.LessOrEqual(t, len(chunk), 800, "chunk %d too long", i)
		// Word-boundary cuts: no chunk starts or ends mid-word.
		assert.False(t, strings.HasPrefix(chunk, " "))
		assert.False(t, strings.HasSuffix(chunk, " "))
	}
}

func TestSplit_FixedSizeFallbackAlwaysAdvances(t *testing.T) {
	// Overlap >= chunk size must not stall the loop.
	c := New(100, 100, 10)

	text := strings.TrimSpace(strings.Repeat("abcdefghi ", 100))
	chunks := c.Split(text)

	assert.NotEmpty(t, chunks)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 0, EstimateTokens("   "))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}
