// Braind answers WhatsApp questions from a Notion-backed knowledge base.
//
// It keeps a vector store in sync with one or more Notion databases and
// serves a JSON API plus a WAHA webhook for retrieval-augmented answers.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for the full surface.
//
// Usage:
//
//	# Start with defaults
//	braind
//
//	# Configure via file and environment
//	braind -config braind.yaml
//	SERVER_PORT=9090 NOTION_TOKEN=secret_x braind
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/substratelabs/braind/internal/answerer"
	"github.com/substratelabs/braind/internal/chunker"
	"github.com/substratelabs/braind/internal/config"
	"github.com/substratelabs/braind/internal/embeddings"
	"github.com/substratelabs/braind/internal/httpapi"
	"github.com/substratelabs/braind/internal/logging"
	"github.com/substratelabs/braind/internal/messenger"
	"github.com/substratelabs/braind/internal/retriever"
	"github.com/substratelabs/braind/internal/source"
	"github.com/substratelabs/braind/internal/syncer"
	"github.com/substratelabs/braind/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("braind %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("braind: %v", err)
	}
}

// run wires the pipeline and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("starting braind",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store_provider", cfg.Store.Provider),
	)

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey.Value(),
	})
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}

	store, err := vectorstore.New(ctx, cfg.Store, embedder, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	codec, err := chunker.NewTiktokenCodec(cfg.Chunking.Encoding)
	if err != nil {
		return fmt.Errorf("initializing tokenizer: %w", err)
	}
	splitter, err := chunker.New(codec, cfg.Chunking.MaxChunkTokens, cfg.Chunking.ChunkOverlapTokens)
	if err != nil {
		return fmt.Errorf("initializing chunker: %w", err)
	}

	notion, err := source.NewNotion(cfg.Notion.Token.Value(), logger)
	if err != nil {
		return fmt.Errorf("initializing notion source: %w", err)
	}

	manifest, err := syncer.OpenManifest(cfg.Sync.StatePath)
	if err != nil {
		return fmt.Errorf("opening sync state: %w", err)
	}
	defer manifest.Close()

	engine, err := syncer.New(notion, splitter, store, manifest, syncer.Config{
		CollectionIDs: cfg.Notion.IDs(),
		PageLimit:     cfg.Sync.PageLimit,
		Concurrency:   cfg.Sync.Concurrency,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing sync engine: %w", err)
	}

	ranker, err := retriever.New(store, retriever.Config{
		TopK:     cfg.Retrieval.MaxContextChunks,
		MinScore: cfg.Retrieval.MinSimilarityScore,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing retriever: %w", err)
	}

	generator, err := answerer.NewService(answerer.Config{
		BaseURL:         cfg.Generation.BaseURL,
		Model:           cfg.Generation.Model,
		APIKey:          cfg.Generation.APIKey.Value(),
		NoContextPolicy: cfg.Generation.NoContextPolicy,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing answerer: %w", err)
	}

	var sender httpapi.Sender
	if cfg.Whatsapp.APIURL != "" {
		waha, err := messenger.NewWAHA(messenger.Config{
			APIURL:  cfg.Whatsapp.APIURL,
			APIKey:  cfg.Whatsapp.APIKey.Value(),
			Session: cfg.Whatsapp.Session,
		}, logger)
		if err != nil {
			return fmt.Errorf("initializing messenger: %w", err)
		}
		sender = waha
	} else {
		logger.Warn("no WAHA api url configured, webhook replies are disabled")
	}

	server, err := httpapi.NewServer(httpapi.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		APIKey:         cfg.Server.APIKey.Value(),
		CORSOrigins:    cfg.Server.Origins(),
		AllowedSenders: cfg.Whatsapp.Senders(),
	}, httpapi.Deps{
		Retriever: ranker,
		Answerer:  generator,
		Syncer:    engine,
		Stats:     store,
		Documents: manifest,
		Sender:    sender,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	if interval := cfg.Sync.Interval.Duration(); interval > 0 {
		go runPeriodicSync(ctx, engine, interval, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// runPeriodicSync re-runs the sync engine at the configured interval until
// the context is cancelled.
func runPeriodicSync(ctx context.Context, engine *syncer.Engine, interval time.Duration, logger *zap.Logger) {
	logger.Info("periodic sync enabled", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := engine.Sync(ctx)
			if errors.Is(err, syncer.ErrSyncRunning) {
				continue
			}
			if err != nil {
				logger.Error("periodic sync failed", zap.Error(err))
			}
		}
	}
}
