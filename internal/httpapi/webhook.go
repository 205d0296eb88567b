package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/substratelabs/braind/internal/answerer"
	"github.com/substratelabs/braind/internal/metrics"
	"github.com/substratelabs/braind/internal/syncer"
)

// Sender delivers replies back to the messaging channel.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// Webhook reply texts.
const (
	replySyncStarted  = "Sync command received. Starting synchronization..."
	replySyncRunning  = "A synchronization is already running."
	replySyncDone     = "Synchronization finished."
	replySyncFailed   = "Synchronization failed. Check the server logs."
	replyNoAnswer     = "I couldn't find relevant information to answer your question."
	replyAnswerFailed = "Something went wrong while answering your question. Please try again later."
	replyUnrecognized = "I'm sorry, I couldn't identify the intention of your message."
)

// WebhookEvent is the WAHA webhook payload envelope.
type WebhookEvent struct {
	Event   string         `json:"event"`
	Payload WebhookMessage `json:"payload"`
}

// WebhookMessage is the message part of a WAHA webhook event.
type WebhookMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// webhookAck is returned for every webhook delivery. WAHA retries
// non-200 responses, so processing failures still acknowledge.
type webhookAck struct {
	Status string `json:"status"`
}

// senderLimiters holds one token bucket per sender so a single chatty
// contact cannot monopolize the pipeline.
type senderLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newSenderLimiters(limit rate.Limit, burst int) *senderLimiters {
	return &senderLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *senderLimiters) allow(sender string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[sender]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[sender] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// handleWebhook processes inbound WhatsApp messages. It always
// acknowledges with 200; per-message problems are logged and counted.
func (s *Server) handleWebhook(c echo.Context) error {
	ack := func() error {
		return c.JSON(http.StatusOK, webhookAck{Status: "ok"})
	}

	var event WebhookEvent
	if err := c.Bind(&event); err != nil {
		s.logger.Warn("invalid webhook payload", zap.Error(err))
		metrics.RecordWebhookMessage("error")
		return ack()
	}

	if event.Event != "message" || event.Payload.From == "" || event.Payload.Body == "" {
		metrics.RecordWebhookMessage("ignored")
		return ack()
	}

	// The sender arrives as "31612345678@c.us"; the allow-list holds
	// bare numbers.
	chatID := event.Payload.From
	sender := strings.SplitN(chatID, "@", 2)[0]
	if _, ok := s.allowed[sender]; !ok {
		s.logger.Warn("message from unauthorized sender", zap.String("from", chatID))
		metrics.RecordWebhookMessage("rejected")
		return ack()
	}
	if !s.limiters.allow(sender) {
		s.logger.Warn("sender rate limited", zap.String("from", chatID))
		metrics.RecordWebhookMessage("rejected")
		return ack()
	}

	s.processMessage(c.Request().Context(), chatID, event.Payload.Body)
	return ack()
}

func (s *Server) processMessage(ctx context.Context, chatID, body string) {
	intent, err := s.deps.Answerer.ClassifyIntent(ctx, body)
	if err != nil {
		// Classification is best effort; an unreachable classifier
		// should not silence questions.
		s.logger.Warn("intent classification failed, assuming query", zap.Error(err))
		intent = answerer.IntentQuery
	}

	switch intent {
	case answerer.IntentSync:
		s.reply(ctx, chatID, replySyncStarted)
		s.startBackgroundSync(chatID)
		metrics.RecordWebhookMessage("handled")
	case answerer.IntentQuery:
		s.answerQuestion(ctx, chatID, body)
	default:
		s.reply(ctx, chatID, replyUnrecognized)
		metrics.RecordWebhookMessage("handled")
	}
}

func (s *Server) answerQuestion(ctx context.Context, chatID, question string) {
	// Pipeline failures get their own reply text; "no relevant
	// information" is reserved for a genuinely empty context.
	sources, err := s.deps.Retriever.Retrieve(ctx, question)
	if err != nil {
		s.logger.Error("webhook retrieval failed", zap.Error(err))
		s.reply(ctx, chatID, replyAnswerFailed)
		metrics.RecordWebhookMessage("error")
		return
	}

	answer, err := s.deps.Answerer.Answer(ctx, question, sources)
	if err != nil {
		s.logger.Error("webhook answer generation failed", zap.Error(err))
		s.reply(ctx, chatID, replyAnswerFailed)
		metrics.RecordWebhookMessage("error")
		return
	}

	s.reply(ctx, chatID, answer)
	metrics.RecordWebhookMessage("handled")
}

// startBackgroundSync runs a sync pass detached from the webhook request,
// reporting the outcome back to the chat.
func (s *Server) startBackgroundSync(chatID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.SyncTimeout)
		defer cancel()

		_, err := s.deps.Syncer.Sync(ctx)
		switch {
		case err == nil:
			s.reply(ctx, chatID, replySyncDone)
		case errors.Is(err, syncer.ErrSyncRunning):
			s.reply(ctx, chatID, replySyncRunning)
		default:
			s.logger.Error("background sync failed", zap.Error(err))
			s.reply(ctx, chatID, replySyncFailed)
		}
	}()
}

func (s *Server) reply(ctx context.Context, chatID, text string) {
	if s.deps.Sender == nil {
		return
	}
	if err := s.deps.Sender.SendText(ctx, chatID, text); err != nil {
		s.logger.Error("sending reply failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}
