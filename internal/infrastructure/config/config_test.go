package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvHTTPPort, EnvMCPPort, EnvAPIBaseURL, EnvAPIKey, EnvModel, EnvSystemPrompt,
		EnvStream, EnvWebSearch, EnvDBPath, EnvConfigFile, EnvMDNS,
	} {
		t.Setenv(k, "")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := NewConfig()
	assert.Equal(t, ":19970", cfg.Server.HTTPPort)
	assert.Equal(t, ":19971", cfg.Server.MCPPort)
	assert.True(t, cfg.Chat.Stream)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvHTTPPort, ":29970")
	t.Setenv(EnvModel, "openai/gpt-4o")
	t.Setenv(EnvStream, "false")
	t.Setenv(EnvWebSearch, "true")
	t.Setenv(EnvMDNS, "not-a-bool")

	cfg := NewConfig()
	assert.Equal(t, ":29970", cfg.Server.HTTPPort)
	assert.Equal(t, ":19971", cfg.Server.MCPPort, "未设置的端口应使用默认值")
	assert.Equal(t, "openai/gpt-4o", cfg.Chat.Model)
	assert.False(t, cfg.Chat.Stream)
	assert.True(t, cfg.Chat.WebSearch)
	assert.False(t, cfg.Discovery.Enabled, "非法布尔值保留默认值")
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
llm:
  base_url: https://openrouter.ai/api/v1
  timeout: 30s
chat:
  model: from-file
  system_prompt: Be brief.
  temperature: 0.2
  max_tokens: 512
`)
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvModel, "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "from-env", cfg.Chat.Model)
	assert.Equal(t, "Be brief.", cfg.Chat.SystemPrompt)
	require.NotNil(t, cfg.Chat.Temperature)
	assert.InDelta(t, 0.2, *cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, 512, cfg.Chat.MaxTokens)
	assert.True(t, cfg.Chat.Stream, "文件未设置的字段保留默认值")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	ResetDataDir()
	t.Setenv(EnvDataDir, t.TempDir())
	t.Cleanup(ResetDataDir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	assert.Equal(t, filepath.Join(GetDataDir(), "streamchat.db"), cfg.DBPath())
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "chat: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("fails validation", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "chat:\n  model: \"\"\nllm:\n  base_url: not-a-url\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat.model")
		assert.Contains(t, err.Error(), "llm.base_url")
	})
}

func TestReload_EnvWins(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "chat:\n  model: from-file\n  web_search: true\n")
	t.Setenv(EnvModel, "from-env")

	cfg, err := Reload(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Chat.Model)
	assert.True(t, cfg.Chat.WebSearch)
	assert.Equal(t, path, cfg.File)
}
