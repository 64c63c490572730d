// Package prioritizerconfig loads the environment-style configuration
// named in spec.md §6: the knobs the engine's composition root needs
// that are not already covered by internal/config's LLM/retrieval
// settings. Grounded on internal/config/retrieval.go's
// viper-with-defaults shape (env-first, struct-backed, no package-level
// mutable state beyond viper's own process-wide instance).
package prioritizerconfig

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NodeEnv is the closed enum §6 names for deployment mode.
type NodeEnv string

const (
	NodeDevelopment NodeEnv = "development"
	NodeTest        NodeEnv = "test"
	NodeProduction  NodeEnv = "production"
)

// EncryptionKeySize is the required length, in bytes, of the decoded
// encryption_key (§6: "32-byte symmetric encryption key material").
const EncryptionKeySize = 32

// Config holds every environment-style setting spec.md §6 recognizes.
type Config struct {
	LLMAPIKey             string  `mapstructure:"llm_api_key"`
	EmbeddingModelID       string  `mapstructure:"embedding_model_id"`
	EncryptionKeyHex       string  `mapstructure:"encryption_key"`
	NodeEnv                NodeEnv `mapstructure:"node_env"`
	StoreURL               string  `mapstructure:"store_url"`
	StoreServiceKey        string  `mapstructure:"store_service_key"`
	StoreAnonKey           string  `mapstructure:"store_anon_key"`
	DefaultUserID          string  `mapstructure:"default_user_id"`
	UseUnifiedPrioritization bool  `mapstructure:"use_unified_prioritization"`
}

// TestMode reports whether zeroed retry/debounce delays are permitted.
// Per §9's design note, this must be an explicit flag the caller reads
// off NodeEnv == test, never inferred from any other environment name.
func (c Config) TestMode() bool {
	return c.NodeEnv == NodeTest
}

// EncryptionKey decodes EncryptionKeyHex into 32 raw bytes for the
// Secret/Key Service's AES-GCM envelope (internal/prioritize/secretbox).
func (c Config) EncryptionKey() ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(c.EncryptionKeyHex))
	if err != nil {
		return nil, fmt.Errorf("decode encryption_key: %w", err)
	}
	if len(raw) != EncryptionKeySize {
		return nil, fmt.Errorf("encryption_key must decode to %d bytes, got %d", EncryptionKeySize, len(raw))
	}
	return raw, nil
}

// Load reads the prioritizer's environment-style configuration via
// viper, applying the defaults below and letting PRIORITIZER_-prefixed
// environment variables (or a bound config file) override them, the
// same AutomaticEnv + SetDefault pattern internal/config/retrieval.go
// uses for the hybrid-search knobs.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix("PRIORITIZER")
	v.AutomaticEnv()

	v.SetDefault("embedding_model_id", "text-embedding-3-small")
	v.SetDefault("node_env", string(NodeDevelopment))
	v.SetDefault("default_user_id", "local")
	v.SetDefault("use_unified_prioritization", true)

	cfg := Config{
		LLMAPIKey:                v.GetString("llm_api_key"),
		EmbeddingModelID:         v.GetString("embedding_model_id"),
		EncryptionKeyHex:         v.GetString("encryption_key"),
		NodeEnv:                  NodeEnv(v.GetString("node_env")),
		StoreURL:                 v.GetString("store_url"),
		StoreServiceKey:          v.GetString("store_service_key"),
		StoreAnonKey:             v.GetString("store_anon_key"),
		DefaultUserID:            v.GetString("default_user_id"),
		UseUnifiedPrioritization: v.GetBool("use_unified_prioritization"),
	}

	switch cfg.NodeEnv {
	case NodeDevelopment, NodeTest, NodeProduction:
	default:
		return Config{}, fmt.Errorf("node_env must be one of development|test|production, got %q", cfg.NodeEnv)
	}

	return cfg, nil
}
