// Package httpapi provides the HTTP surface of braind: the JSON API, the
// WhatsApp webhook and the Prometheus metrics endpoint.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/substratelabs/braind/internal/answerer"
	"github.com/substratelabs/braind/internal/syncer"
	"github.com/substratelabs/braind/internal/vectorstore"
)

// Retriever selects context chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]vectorstore.ScoredRecord, error)
}

// Answerer generates answers and classifies message intent.
type Answerer interface {
	Answer(ctx context.Context, question string, sources []vectorstore.ScoredRecord) (string, error)
	ClassifyIntent(ctx context.Context, message string) (answerer.Intent, error)
}

// Syncer runs knowledge base sync passes.
type Syncer interface {
	Sync(ctx context.Context) (*syncer.Report, error)
}

// Stats exposes store and manifest counts for the stats endpoint.
type Stats interface {
	Count(ctx context.Context) (int, error)
}

// DocumentLister lists tracked documents. Satisfied by the sync manifest.
type DocumentLister interface {
	List() (map[string]syncer.Entry, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// APIKey guards the API and webhook routes. Empty disables
	// authentication, which is only sensible on a local setup.
	APIKey string

	// CORSOrigins restricts cross-origin requests. Empty allows all.
	CORSOrigins []string

	// AllowedSenders are the phone numbers (international format, no
	// plus sign) the webhook accepts messages from.
	AllowedSenders []string

	// SyncTimeout bounds webhook-triggered background syncs. Zero means
	// 10 minutes.
	SyncTimeout time.Duration
}

// Server wires the pipeline behind echo.
type Server struct {
	echo     *echo.Echo
	logger   *zap.Logger
	config   Config
	deps     Deps
	allowed  map[string]struct{}
	limiters *senderLimiters
}

// Deps are the pipeline pieces the handlers call.
type Deps struct {
	Retriever Retriever
	Answerer  Answerer
	Syncer    Syncer
	Stats     Stats
	Documents DocumentLister
	Sender    Sender
}

// NewServer creates the HTTP server.
func NewServer(cfg Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		return nil, errors.New("httpapi: logger is required")
	}
	if deps.Retriever == nil || deps.Answerer == nil || deps.Syncer == nil || deps.Stats == nil {
		return nil, errors.New("httpapi: retriever, answerer, syncer and stats are required")
	}
	if cfg.SyncTimeout == 0 {
		cfg.SyncTimeout = 10 * time.Minute
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(corsConfig(cfg.CORSOrigins)))
	e.Use(requestLogger(logger))

	allowed := make(map[string]struct{}, len(cfg.AllowedSenders))
	for _, sender := range cfg.AllowedSenders {
		allowed[sender] = struct{}{}
	}

	s := &Server{
		echo:     e,
		logger:   logger.Named("httpapi"),
		config:   cfg,
		deps:     deps,
		allowed:  allowed,
		limiters: newSenderLimiters(rate.Every(3*time.Second), 3),
	}
	if cfg.APIKey == "" {
		s.logger.Warn("no api key configured, api and webhook routes are unauthenticated")
	}
	s.registerRoutes()
	return s, nil
}

func corsConfig(origins []string) middleware.CORSConfig {
	cfg := middleware.DefaultCORSConfig
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// requireAPIKey rejects requests whose X-API-Key header does not match the
// configured key. With no key configured it passes everything through.
func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.APIKey == "" {
			return next(c)
		}
		provided := c.Request().Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.config.APIKey)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
		}
		return next(c)
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.requireAPIKey,
		middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(10)))
	v1.GET("/stats", s.handleStats)
	v1.POST("/sync", s.handleSync)
	v1.POST("/ask", s.handleAsk)

	s.echo.POST("/webhook", s.handleWebhook, s.requireAPIKey)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
