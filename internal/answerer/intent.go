package answerer

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	// IntentQuery is a question to answer from the knowledge base.
	IntentQuery Intent = "QUERY"

	// IntentSync is a request to refresh the knowledge base.
	IntentSync Intent = "SYNC"

	// IntentUnknown is anything the classifier could not place.
	IntentUnknown Intent = "UNKNOWN"
)

const intentPrompt = `Classify the user message into exactly one category.

Categories:
- QUERY: a question or information request to answer from a knowledge base
- SYNC: a request to refresh, update or re-import the knowledge base
- UNKNOWN: greetings, small talk, or anything else

Reply with the category name only.

Message: %s`

// ClassifyIntent classifies an inbound message. Classification failures
// return IntentUnknown together with the error so callers can fall back.
func (s *Service) ClassifyIntent(ctx context.Context, message string) (Intent, error) {
	if strings.TrimSpace(message) == "" {
		return IntentUnknown, nil
	}

	resp, err := s.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, fmt.Sprintf(intentPrompt, message))},
		llms.WithTemperature(0),
		llms.WithMaxTokens(8),
	)
	if err != nil {
		return IntentUnknown, fmt.Errorf("%w: classifying intent: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return IntentUnknown, fmt.Errorf("%w: classifier returned no choices", ErrGeneration)
	}

	return parseIntent(resp.Choices[0].Content), nil
}

func parseIntent(raw string) Intent {
	switch upper := strings.ToUpper(strings.TrimSpace(raw)); {
	case strings.Contains(upper, string(IntentSync)):
		return IntentSync
	case strings.Contains(upper, string(IntentQuery)):
		return IntentQuery
	default:
		return IntentUnknown
	}
}
