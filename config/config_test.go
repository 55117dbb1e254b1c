package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
provider: anthropic
store:
  backend: redis
  redis:
    addr: redis.internal:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "anthropic", cfg.Provider)
	require.Equal(t, int64(4096), cfg.MaxTokens)
	require.Equal(t, 5*time.Second, cfg.Engine.DependencyInterval)
	require.Equal(t, 300*time.Second, cfg.Engine.DependencyTimeout)
	require.Equal(t, "redis", cfg.Store.Backend)
	require.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	require.Equal(t, "researchmesh", cfg.Store.Redis.Prefix)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvFallbackForKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	path := writeConfig(t, `
anthropic_key: sk-ant-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "sk-env", cfg.OpenAIKey, "missing key must fall back to environment")
	require.Equal(t, "sk-ant-file", cfg.AnthropicKey, "file value must win over environment")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Provider = "bedrock"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Backend = "dynamo"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.DependencyTimeout = time.Second
	cfg.Engine.DependencyInterval = 5 * time.Second
	require.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Provider = "anthropic"
	cfg.Preferences = map[string]any{"max_sources": 3}

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "anthropic", loaded.Provider)
	require.Equal(t, 3, loaded.Preferences["max_sources"])
}
