// Package answerer turns retrieved context chunks into grounded answers.
package answerer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/substratelabs/braind/internal/config"
	"github.com/substratelabs/braind/internal/metrics"
	"github.com/substratelabs/braind/internal/vectorstore"
)

// ErrGeneration indicates the language model call failed.
var ErrGeneration = errors.New("answer generation failed")

// DeclineMessage is returned verbatim when nothing relevant is stored and
// the decline policy is active.
const DeclineMessage = "I could not find anything relevant to your question in the knowledge base."

// caveatPrefix marks answers produced without knowledge base context.
const caveatPrefix = "Note: I could not find anything relevant in the knowledge base, so the following is general knowledge and not grounded in your documents.\n\n"

// Model is the language model surface the answerer calls. Satisfied by
// langchaingo's openai client; tests substitute fakes.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Config holds answer generation parameters.
type Config struct {
	BaseURL         string
	Model           string
	APIKey          string
	NoContextPolicy config.NoContextPolicy
}

func (c Config) validate() error {
	if c.Model == "" {
		return errors.New("answerer: model is required")
	}
	switch c.NoContextPolicy {
	case config.PolicyCaveat, config.PolicyDecline:
		return nil
	default:
		return fmt.Errorf("answerer: unknown no-context policy %q", c.NoContextPolicy)
	}
}

// Service generates answers grounded in retrieved chunks.
type Service struct {
	model  Model
	config Config
	logger *zap.Logger
}

// NewService creates an answerer backed by an OpenAI-compatible endpoint.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	} else {
		// Local endpoints do not check the token but the client requires one.
		opts = append(opts, openai.WithToken("placeholder"))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating generation client: %w", err)
	}
	return newServiceWithModel(model, cfg, logger)
}

func newServiceWithModel(model Model, cfg Config, logger *zap.Logger) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{model: model, config: cfg, logger: logger.Named("answerer")}, nil
}

// Answer generates an answer to the question from the given context chunks.
// With no chunks the configured no-context policy applies: decline returns
// DeclineMessage without a model call, caveat answers from general
// knowledge behind an explicit disclaimer.
func (s *Service) Answer(ctx context.Context, question string, sources []vectorstore.ScoredRecord) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("%w: question is empty", ErrGeneration)
	}

	if len(sources) == 0 {
		if s.config.NoContextPolicy == config.PolicyDecline {
			return DeclineMessage, nil
		}
		answer, err := s.generate(ctx, uncontextedPrompt(question))
		if err != nil {
			return "", err
		}
		return caveatPrefix + answer, nil
	}

	answer, err := s.generate(ctx, groundedPrompt(question, sources))
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := s.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(0.2),
	)
	metrics.RecordGeneration(time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: model returned no choices", ErrGeneration)
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", fmt.Errorf("%w: model returned an empty answer", ErrGeneration)
	}
	return answer, nil
}

// groundedPrompt lays out the context chunks as numbered sources so the
// model can attribute claims.
func groundedPrompt(question string, sources []vectorstore.ScoredRecord) string {
	var b strings.Builder
	b.WriteString("You are a knowledge base assistant. Answer the question using only the sources below. ")
	b.WriteString("If the sources do not contain the answer, say so. ")
	b.WriteString("When the sources disagree, say which source says what.\n\n")
	for i, chunk := range sources {
		title := chunk.Title
		if title == "" {
			title = chunk.DocumentID
		}
		fmt.Fprintf(&b, "Source [%d] (%s):\n%s\n\n", i+1, title, chunk.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func uncontextedPrompt(question string) string {
	return "Answer the following question concisely from general knowledge.\n\nQuestion: " + question
}
