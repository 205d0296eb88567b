// Package config provides configuration loading for braind.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables. The resulting Config is validated once at startup
// and passed by reference into each component; nothing reads ambient state
// after that point.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NoContextPolicy controls what the answerer does when retrieval returns
// zero qualifying chunks.
type NoContextPolicy string

const (
	// PolicyCaveat answers from the model's general knowledge with an
	// explicit caveat that no knowledge-base context was found.
	PolicyCaveat NoContextPolicy = "caveat"

	// PolicyDecline declines to answer when no context qualifies.
	PolicyDecline NoContextPolicy = "decline"
)

// Config holds the complete braind configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Notion     NotionConfig     `koanf:"notion"`
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Generation GenerationConfig `koanf:"generation"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Sync       SyncConfig       `koanf:"sync"`
	Whatsapp   WhatsappConfig   `koanf:"whatsapp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	APIKey          Secret   `koanf:"api_key"`
	CORSOrigins     string   `koanf:"cors_origins"` // comma-separated
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// NotionConfig holds document source configuration.
type NotionConfig struct {
	Token       Secret `koanf:"token"`
	DatabaseIDs string `koanf:"database_ids"` // comma-separated
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	Provider   string       `koanf:"provider"` // chromem or qdrant
	Collection string       `koanf:"collection"`
	VectorSize int          `koanf:"vector_size"`
	Chromem    ChromemStore `koanf:"chromem"`
	Qdrant     QdrantStore  `koanf:"qdrant"`
}

// ChromemStore holds chromem-go embedded store configuration.
type ChromemStore struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantStore holds Qdrant gRPC client configuration.
type QdrantStore struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey Secret `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// EmbeddingsConfig holds embedding model configuration.
//
// Any OpenAI-compatible endpoint works, including a local TEI server.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// GenerationConfig holds answer generation model configuration.
type GenerationConfig struct {
	BaseURL         string          `koanf:"base_url"`
	Model           string          `koanf:"model"`
	APIKey          Secret          `koanf:"api_key"`
	NoContextPolicy NoContextPolicy `koanf:"no_context_policy"`
}

// ChunkingConfig holds tokenizer/chunker parameters.
type ChunkingConfig struct {
	MaxChunkTokens     int    `koanf:"max_chunk_tokens"`
	ChunkOverlapTokens int    `koanf:"chunk_overlap_tokens"`
	Encoding           string `koanf:"encoding"`
}

// RetrievalConfig holds retriever parameters.
type RetrievalConfig struct {
	MaxContextChunks int `koanf:"max_context_chunks"`

	// MinSimilarityScore of zero selects the 0.7 default. Set a
	// negative value to keep every result regardless of score.
	MinSimilarityScore float64 `koanf:"min_similarity_score"`
}

// SyncConfig holds sync engine configuration.
type SyncConfig struct {
	StatePath   string   `koanf:"state_path"`
	Concurrency int      `koanf:"concurrency"`
	PageLimit   int      `koanf:"page_limit"`
	Interval    Duration `koanf:"interval"` // 0 disables periodic sync
}

// WhatsappConfig holds WAHA messaging channel configuration.
type WhatsappConfig struct {
	APIURL         string `koanf:"api_url"`
	APIKey         Secret `koanf:"api_key"`
	Session        string `koanf:"session"`
	AllowedSenders string `koanf:"allowed_senders"` // comma-separated
}

// applyDefaults sets defaults for unset fields.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Store.Provider == "" {
		c.Store.Provider = "chromem"
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "knowledge_base"
	}
	if c.Store.VectorSize == 0 {
		c.Store.VectorSize = 384
	}
	if c.Store.Chromem.Path == "" {
		c.Store.Chromem.Path = "~/.config/braind/vectorstore"
	}
	if c.Store.Qdrant.Host == "" {
		c.Store.Qdrant.Host = "localhost"
	}
	if c.Store.Qdrant.Port == 0 {
		c.Store.Qdrant.Port = 6334
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "http://localhost:8080/v1"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = "https://api.openai.com/v1"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.NoContextPolicy == "" {
		c.Generation.NoContextPolicy = PolicyCaveat
	}
	if c.Chunking.MaxChunkTokens == 0 {
		c.Chunking.MaxChunkTokens = 500
	}
	if c.Chunking.ChunkOverlapTokens == 0 {
		c.Chunking.ChunkOverlapTokens = 50
	}
	if c.Chunking.Encoding == "" {
		c.Chunking.Encoding = "cl100k_base"
	}
	if c.Retrieval.MaxContextChunks == 0 {
		c.Retrieval.MaxContextChunks = 5
	}
	if c.Retrieval.MinSimilarityScore == 0 {
		c.Retrieval.MinSimilarityScore = 0.7
	}
	if c.Sync.StatePath == "" {
		c.Sync.StatePath = "~/.config/braind/sync.db"
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 4
	}
	if c.Sync.PageLimit == 0 {
		c.Sync.PageLimit = 100
	}
}

// Validate validates the configuration. Called once at startup; a non-nil
// error is fatal before any traffic is served.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q (must be json or console)", c.Logging.Format)
	}
	switch c.Store.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid store provider: %q (must be chromem or qdrant)", c.Store.Provider)
	}
	if c.Store.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.Store.VectorSize)
	}
	if c.Chunking.MaxChunkTokens <= 0 {
		return fmt.Errorf("max chunk tokens must be positive, got %d", c.Chunking.MaxChunkTokens)
	}
	if c.Chunking.ChunkOverlapTokens < 0 {
		return fmt.Errorf("chunk overlap tokens cannot be negative, got %d", c.Chunking.ChunkOverlapTokens)
	}
	if c.Chunking.ChunkOverlapTokens >= c.Chunking.MaxChunkTokens {
		return fmt.Errorf("chunk overlap tokens (%d) must be less than max chunk tokens (%d)",
			c.Chunking.ChunkOverlapTokens, c.Chunking.MaxChunkTokens)
	}
	if c.Retrieval.MaxContextChunks <= 0 {
		return fmt.Errorf("max context chunks must be positive, got %d", c.Retrieval.MaxContextChunks)
	}
	if c.Retrieval.MinSimilarityScore < -1 || c.Retrieval.MinSimilarityScore > 1 {
		return fmt.Errorf("min similarity score must be in [-1,1], got %f", c.Retrieval.MinSimilarityScore)
	}
	switch c.Generation.NoContextPolicy {
	case PolicyCaveat, PolicyDecline:
	default:
		return fmt.Errorf("invalid no_context_policy: %q (must be caveat or decline)", c.Generation.NoContextPolicy)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	return nil
}

// IDs returns the configured Notion database IDs.
func (c *NotionConfig) IDs() []string {
	return splitList(c.DatabaseIDs)
}

// Senders returns the allow-listed sender IDs.
func (c *WhatsappConfig) Senders() []string {
	return splitList(c.AllowedSenders)
}

// Origins returns the allowed CORS origins. Empty means allow all.
func (c *ServerConfig) Origins() []string {
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
