// Package chunker splits document text into overlapping token-bounded chunks.
//
// Chunks are the unit of embedding and retrieval: a window of at most
// MaxTokens tokens slides across the document with a stride of
// MaxTokens-Overlap, so consecutive chunks share exactly Overlap tokens.
// The final chunk may be shorter. Chunk boundaries depend on the full token
// sequence, which is why a content change replaces a document's entire chunk
// set rather than patching individual chunks.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ErrInvalidConfig indicates degenerate chunking parameters.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// DefaultEncoding is the BPE encoding used unless configured otherwise.
const DefaultEncoding = "cl100k_base"

// Codec tokenizes and detokenizes text. The production codec is tiktoken
// BPE; tests substitute deterministic fakes.
type Codec interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// tiktokenCodec adapts a tiktoken encoding to the Codec interface.
type tiktokenCodec struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCodec) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

func (c *tiktokenCodec) Decode(tokens []int) string {
	return c.enc.Decode(tokens)
}

// NewTiktokenCodec returns a Codec backed by the named tiktoken encoding.
func NewTiktokenCodec(encoding string) (Codec, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q: %v", ErrInvalidConfig, encoding, err)
	}
	return &tiktokenCodec{enc: enc}, nil
}

// Chunk is a bounded, overlapping slice of a document's text.
type Chunk struct {
	// DocumentID is the owning document's external identifier.
	DocumentID string

	// Index is the chunk's position within the document, starting at 0.
	Index int

	// Text is the detokenized chunk content.
	Text string

	// Tokens is the number of tokens in the chunk window.
	Tokens int
}

// Key returns the chunk's store identity, `{document_id}#{index}`.
func (c Chunk) Key() string {
	return fmt.Sprintf("%s#%d", c.DocumentID, c.Index)
}

// Chunker splits text into overlapping token windows.
type Chunker struct {
	codec     Codec
	maxTokens int
	overlap   int
}

// New creates a Chunker.
//
// Returns ErrInvalidConfig when maxTokens is not positive, overlap is
// negative, or overlap >= maxTokens (the window would never advance).
func New(codec Codec, maxTokens, overlap int) (*Chunker, error) {
	if codec == nil {
		return nil, fmt.Errorf("%w: codec is required", ErrInvalidConfig)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, maxTokens)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= maxTokens {
		return nil, fmt.Errorf("%w: overlap %d must be less than max tokens %d", ErrInvalidConfig, overlap, maxTokens)
	}

	return &Chunker{
		codec:     codec,
		maxTokens: maxTokens,
		overlap:   overlap,
	}, nil
}

// MaxTokens returns the configured window size.
func (c *Chunker) MaxTokens() int { return c.maxTokens }

// Overlap returns the configured overlap between consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks the given text.
//
// Empty or whitespace-only text yields zero chunks; that is a valid outcome,
// not an error. Text no longer than MaxTokens yields a single chunk with no
// overlap applied.
func (c *Chunker) Split(documentID, text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := c.codec.Encode(text)
	if len(tokens) == 0 {
		return nil
	}

	if len(tokens) <= c.maxTokens {
		return []Chunk{{
			DocumentID: documentID,
			Index:      0,
			Text:       strings.TrimSpace(text),
			Tokens:     len(tokens),
		}}
	}

	stride := c.maxTokens - c.overlap
	chunks := make([]Chunk, 0, (len(tokens)+stride-1)/stride)

	for start := 0; start < len(tokens); start += stride {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			DocumentID: documentID,
			Index:      len(chunks),
			Text:       strings.TrimSpace(c.codec.Decode(window)),
			Tokens:     len(window),
		})
		if end == len(tokens) {
			break
		}
	}

	return chunks
}
