// Package messenger sends outbound replies through a WAHA (WhatsApp HTTP
// API) server.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrSend indicates the WAHA server rejected or never received a message.
var ErrSend = errors.New("sending message failed")

// Sender delivers a text reply to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// Config holds WAHA client configuration.
type Config struct {
	// APIURL is the WAHA server base URL, including the /api prefix.
	APIURL string

	// APIKey authenticates against the WAHA server.
	APIKey string

	// Session is the WAHA session name messages are sent through.
	Session string

	// Timeout bounds each send request. Zero means 30 seconds.
	Timeout time.Duration
}

// WAHA is a Sender backed by a WAHA server.
type WAHA struct {
	client  *http.Client
	config  Config
	logger  *zap.Logger
	sendURL string
}

// NewWAHA creates a WAHA messenger.
func NewWAHA(cfg Config, logger *zap.Logger) (*WAHA, error) {
	if cfg.APIURL == "" || cfg.APIKey == "" || cfg.Session == "" {
		return nil, errors.New("messenger: api url, api key and session are required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WAHA{
		client:  &http.Client{Timeout: cfg.Timeout},
		config:  cfg,
		logger:  logger.Named("messenger"),
		sendURL: strings.TrimSuffix(cfg.APIURL, "/") + "/sendText",
	}, nil
}

type sendTextRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
}

// SendText sends a text message to the given chat id.
func (w *WAHA) SendText(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("%w: chat id is required", ErrSend)
	}

	body, err := json.Marshal(sendTextRequest{
		ChatID:  chatID,
		Text:    text,
		Session: w.config.Session,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", ErrSend, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrSend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", w.config.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: server returned %d: %s", ErrSend, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	w.logger.Debug("reply sent", zap.String("chat_id", chatID))
	return nil
}

var _ Sender = (*WAHA)(nil)
