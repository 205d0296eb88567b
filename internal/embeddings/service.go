// Package embeddings wraps langchaingo embedding generation.
//
// Any OpenAI-compatible endpoint works: the OpenAI API itself or a local
// TEI (Text Embeddings Inference) server. The adapter is stateless; for a
// fixed model version the same text always maps to the same vector.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/substratelabs/braind/internal/metrics"
)

var (
	// ErrEmptyInput indicates empty input text. Empty strings are rejected
	// rather than silently embedded as zero vectors.
	ErrEmptyInput = errors.New("empty input text")

	// ErrEmbedding indicates an upstream embedding model failure.
	ErrEmbedding = errors.New("embedding failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKey is optional for local TEI servers.
	APIKey string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// client is the slice of langchaingo's embedder the service depends on.
type client interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service generates embeddings through a langchaingo embedder.
type Service struct {
	client client
	config Config
}

// NewService creates an embedding service for the given configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo requires a token; TEI ignores it.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithEmbeddingModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{client: embedder, config: config}, nil
}

// newServiceWithClient is used by tests to inject a fake client.
func newServiceWithClient(c client, config Config) *Service {
	return &Service{client: c, config: config}
}

// Embed generates embeddings for a batch of texts.
//
// The result is order-preserving and has the same length as the input. The
// batch fails as a whole; retry policy belongs to the caller. Returns
// ErrEmptyInput when texts is empty or any text is blank.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts given", ErrEmptyInput)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text at index %d is blank", ErrEmptyInput, i)
		}
	}

	vectors, err := s.client.EmbedDocuments(ctx, texts)
	metrics.RecordEmbeddingBatch(err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query string.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query is blank", ErrEmptyInput)
	}

	vector, err := s.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return vector, nil
}

// EmbedDocuments implements the vector store's Embedder interface.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return s.Embed(ctx, texts)
}

// Model returns the configured model name.
func (s *Service) Model() string {
	return s.config.Model
}
