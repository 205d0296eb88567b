package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// knownSections are the top-level config sections that environment variables
// may address. Variables outside these sections are ignored so unrelated
// process environment (PATH, HOME, ...) never leaks into the config tree.
var knownSections = map[string]bool{
	"server":     true,
	"logging":    true,
	"notion":     true,
	"store":      true,
	"embeddings": true,
	"generation": true,
	"chunking":   true,
	"retrieval":  true,
	"sync":       true,
	"whatsapp":   true,
}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, CHUNKING_MAX_CHUNK_TOKENS, ...)
//  2. YAML config file (path argument; skipped when empty or missing)
//  3. Hardcoded defaults
//
// Environment variables map to config keys by splitting on the first
// underscore: NOTION_DATABASE_IDS -> notion.database_ids,
// RETRIEVAL_MIN_SIMILARITY_SCORE -> retrieval.min_similarity_score.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("opening config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file exceeds %d bytes", maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) != 2 || !knownSections[parts[0]] {
			return "" // not a config variable, skip
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}
