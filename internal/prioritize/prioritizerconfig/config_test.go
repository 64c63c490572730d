package prioritizerconfig

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, NodeDevelopment, cfg.NodeEnv)
	assert.False(t, cfg.TestMode())
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModelID)
	assert.Equal(t, "local", cfg.DefaultUserID)
	assert.True(t, cfg.UseUnifiedPrioritization)
}

func TestLoad_EnvOverrides(t *testing.T) {
	v := viper.New()
	v.Set("node_env", "test")
	v.Set("llm_api_key", "sk-test")
	v.Set("use_unified_prioritization", false)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, NodeTest, cfg.NodeEnv)
	assert.True(t, cfg.TestMode())
	assert.Equal(t, "sk-test", cfg.LLMAPIKey)
	assert.False(t, cfg.UseUnifiedPrioritization)
}

func TestLoad_RejectsUnknownNodeEnv(t *testing.T) {
	v := viper.New()
	v.Set("node_env", "staging")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node_env")
}

func TestEncryptionKey_RequiresThirtyTwoBytes(t *testing.T) {
	cfg := Config{EncryptionKeyHex: strings.Repeat("ab", 32)}
	key, err := cfg.EncryptionKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	short := Config{EncryptionKeyHex: strings.Repeat("ab", 8)}
	_, err = short.EncryptionKey()
	assert.Error(t, err)
}

func TestEncryptionKey_RejectsNonHex(t *testing.T) {
	cfg := Config{EncryptionKeyHex: "not-hex!!"}
	_, err := cfg.EncryptionKey()
	assert.Error(t, err)
}
