package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "chromem", cfg.Store.Provider)
	assert.Equal(t, "knowledge_base", cfg.Store.Collection)
	assert.Equal(t, 500, cfg.Chunking.MaxChunkTokens)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlapTokens)
	assert.Equal(t, "cl100k_base", cfg.Chunking.Encoding)
	assert.Equal(t, 5, cfg.Retrieval.MaxContextChunks)
	assert.InDelta(t, 0.7, cfg.Retrieval.MinSimilarityScore, 1e-9)
	assert.Equal(t, PolicyCaveat, cfg.Generation.NoContextPolicy)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9191
chunking:
  max_chunk_tokens: 256
  chunk_overlap_tokens: 32
notion:
  token: secret-token
  database_ids: db-one, db-two
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 256, cfg.Chunking.MaxChunkTokens)
	assert.Equal(t, 32, cfg.Chunking.ChunkOverlapTokens)
	assert.Equal(t, []string{"db-one", "db-two"}, cfg.Notion.IDs())
	assert.Equal(t, "secret-token", cfg.Notion.Token.Value())
}

func TestLoad_NegativeMinScoreDisablesFloor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  min_similarity_score: -1\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// A negative floor keeps everything; only zero falls back to the
	// 0.7 default.
	assert.InDelta(t, -1.0, cfg.Retrieval.MinSimilarityScore, 1e-9)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600))

	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("RETRIEVAL_MIN_SIMILARITY_SCORE", "0.55")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.InDelta(t, 0.55, cfg.Retrieval.MinSimilarityScore, 1e-9)
}

func TestLoad_IgnoresUnrelatedEnv(t *testing.T) {
	t.Setenv("SERVERSIDE_THING", "x")

	_, err := Load("")
	require.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "invalid server port",
		},
		{
			name:    "overlap equals max",
			mutate:  func(c *Config) { c.Chunking.ChunkOverlapTokens = c.Chunking.MaxChunkTokens },
			wantErr: "must be less than max chunk tokens",
		},
		{
			name:    "overlap greater than max",
			mutate:  func(c *Config) { c.Chunking.MaxChunkTokens = 10; c.Chunking.ChunkOverlapTokens = 20 },
			wantErr: "must be less than max chunk tokens",
		},
		{
			name:    "score out of range",
			mutate:  func(c *Config) { c.Retrieval.MinSimilarityScore = 1.5 },
			wantErr: "min similarity score",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Store.Provider = "pinecone" },
			wantErr: "invalid store provider",
		},
		{
			name:    "unknown policy",
			mutate:  func(c *Config) { c.Generation.NoContextPolicy = "shrug" },
			wantErr: "no_context_policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("super-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b ,"))
}
