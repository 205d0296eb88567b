package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/braind/internal/chunker"
)

// wordCodec treats each whitespace-separated word as one token. It gives
// tests full control over token counts without a BPE vocabulary.
type wordCodec struct {
	words []string
}

func (c *wordCodec) Encode(text string) []int {
	fields := strings.Fields(text)
	tokens := make([]int, len(fields))
	c.words = c.words[:0]
	for i, f := range fields {
		tokens[i] = i
		c.words = append(c.words, f)
	}
	return tokens
}

func (c *wordCodec) Decode(tokens []int) string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = c.words[tok]
	}
	return strings.Join(out, " ")
}

// makeText produces n distinct single-word tokens: "w0 w1 ... w{n-1}".
func makeText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func newChunker(t *testing.T, maxTokens, overlap int) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(&wordCodec{}, maxTokens, overlap)
	require.NoError(t, err)
	return c
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		overlap   int
	}{
		{name: "zero max", maxTokens: 0, overlap: 0},
		{name: "negative max", maxTokens: -5, overlap: 0},
		{name: "negative overlap", maxTokens: 10, overlap: -1},
		{name: "overlap equals max", maxTokens: 10, overlap: 10},
		{name: "overlap exceeds max", maxTokens: 10, overlap: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chunker.New(&wordCodec{}, tt.maxTokens, tt.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
		})
	}

	t.Run("nil codec", func(t *testing.T) {
		_, err := chunker.New(nil, 10, 3)
		assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
	})
}

func TestSplit_Empty(t *testing.T) {
	c := newChunker(t, 10, 3)

	assert.Empty(t, c.Split("doc", ""))
	assert.Empty(t, c.Split("doc", "   \n\t "))
}

func TestSplit_SingleChunk(t *testing.T) {
	c := newChunker(t, 10, 3)

	chunks := c.Split("doc", makeText(7))
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 7, chunks[0].Tokens)
	assert.Equal(t, "doc", chunks[0].DocumentID)
	assert.Equal(t, makeText(7), chunks[0].Text)
}

func TestSplit_ExactWindowRanges(t *testing.T) {
	// 25 tokens, max 10, overlap 3: windows [0,10) [7,17) [14,24) [21,25).
	c := newChunker(t, 10, 3)

	chunks := c.Split("doc", makeText(25))
	require.Len(t, chunks, 4)

	wantRanges := [][2]int{{0, 10}, {7, 17}, {14, 24}, {21, 25}}
	for i, want := range wantRanges {
		got := chunks[i]
		assert.Equal(t, i, got.Index)
		assert.Equal(t, want[1]-want[0], got.Tokens, "chunk %d token count", i)

		first := fmt.Sprintf("w%d", want[0])
		last := fmt.Sprintf("w%d", want[1]-1)
		words := strings.Fields(got.Text)
		assert.Equal(t, first, words[0], "chunk %d first token", i)
		assert.Equal(t, last, words[len(words)-1], "chunk %d last token", i)
	}
}

func TestSplit_Properties(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		overlap   int
		length    int
	}{
		{name: "no overlap", maxTokens: 8, overlap: 0, length: 30},
		{name: "small overlap", maxTokens: 10, overlap: 3, length: 100},
		{name: "large overlap", maxTokens: 20, overlap: 19, length: 45},
		{name: "boundary exact multiple", maxTokens: 10, overlap: 5, length: 50},
		{name: "one over the window", maxTokens: 10, overlap: 3, length: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChunker(t, tt.maxTokens, tt.overlap)
			chunks := c.Split("doc", makeText(tt.length))
			require.NotEmpty(t, chunks)

			stride := tt.maxTokens - tt.overlap
			for i, ch := range chunks {
				assert.LessOrEqual(t, ch.Tokens, tt.maxTokens, "chunk %d exceeds max", i)
				assert.Equal(t, i, ch.Index)

				words := strings.Fields(ch.Text)
				require.Equal(t, ch.Tokens, len(words))

				// Each chunk starts exactly one stride after the previous,
				// so consecutive chunks share exactly Overlap tokens and the
				// non-overlap spans tile the sequence with no gaps.
				assert.Equal(t, fmt.Sprintf("w%d", i*stride), words[0], "chunk %d start", i)

				if i < len(chunks)-1 {
					assert.Equal(t, tt.maxTokens, ch.Tokens, "non-final chunk %d must be full", i)
					next := strings.Fields(chunks[i+1].Text)
					if tt.overlap > 0 {
						assert.Equal(t, words[len(words)-tt.overlap:], next[:tt.overlap],
							"chunks %d/%d overlap mismatch", i, i+1)
					}
				}
			}

			// Full coverage: last chunk ends at the final token.
			last := chunks[len(chunks)-1]
			lastWords := strings.Fields(last.Text)
			assert.Equal(t, fmt.Sprintf("w%d", tt.length-1), lastWords[len(lastWords)-1])
		})
	}
}

func TestChunk_Key(t *testing.T) {
	ch := chunker.Chunk{DocumentID: "page-1", Index: 3}
	assert.Equal(t, "page-1#3", ch.Key())
}

func TestNewTiktokenCodec_UnknownEncoding(t *testing.T) {
	_, err := chunker.NewTiktokenCodec("not_a_real_encoding")
	assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
}
