package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wwwzy/MongoAgent/internal/agent"
	"github.com/wwwzy/MongoAgent/internal/retention"
)

// clearEnv 屏蔽开发机上可能存在的同名环境变量。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MONGODB_URI", "MONGODB_DATABASE", "ARK_API_KEY", "ARK_MODEL_ID", "ARK_BASE_URL",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "OPENAI_MODEL", "REDIS_URL",
	} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MONGODB_DATABASE", "shop")
	t.Setenv("ARK_API_KEY", "dummy-key")
	t.Setenv("ARK_MODEL_ID", "dummy-model")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	requiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "shop", cfg.Mongo.Database)
	assert.Equal(t, "ark", cfg.LLM.Provider)
	assert.Equal(t, "https://ark.cn-beijing.volces.com/api/v3", cfg.LLM.Ark.BaseURL)
	assert.Equal(t, "mongoagent.db", cfg.Storage.Path)
	assert.Equal(t, agent.DefaultConfig().HistoryWindow, cfg.Agent.HistoryWindow)
	assert.Equal(t, 30*time.Second, cfg.Agent.LLMTimeout)
	assert.Equal(t, 0.5, cfg.Agent.MinLanguageConfidence)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Hour, cfg.Retention.Interval)
	assert.True(t, cfg.Retention.Enabled)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
log_level: "debug"
mongo:
  uri: "mongodb://db:27017"
  database: "inventory"
  op_timeout: "5s"
llm:
  provider: "openai"
  openai:
    api_key: "file-key"
    model: "gpt-4o"
agent:
  history_window: 4
  collections: ["products", "orders"]
storage:
  path: "test.db"
  busy_timeout: "10s"
retention:
  enabled: false
  interval: "1m"
`)
	require.NoError(t, os.WriteFile(configFile, content, 0o644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "inventory", cfg.Mongo.Database)
	assert.Equal(t, 5*time.Second, cfg.Mongo.OpTimeout)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.OpenAI.Model)
	assert.Equal(t, 4, cfg.Agent.HistoryWindow)
	assert.Equal(t, []string{"products", "orders"}, cfg.Agent.Collections)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, time.Minute, cfg.Retention.Interval)

	// 未覆盖的字段保持默认值
	assert.Equal(t, retention.DefaultConfig().BatchRows, cfg.Retention.BatchRows)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	requiredEnv(t)
	t.Setenv("MONGOAGENT_LOG_LEVEL", "warn")
	t.Setenv("MONGOAGENT_STORAGE_PATH", "env.db")
	t.Setenv("MONGOAGENT_RETENTION_INTERVAL", "5m")
	t.Setenv("MONGOAGENT_AGENT_LLM_TIMEOUT", "7s")
	t.Setenv("MONGODB_URI", "mongodb://env:27017")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 5*time.Minute, cfg.Retention.Interval)
	assert.Equal(t, 7*time.Second, cfg.Agent.LLMTimeout)
	assert.Equal(t, "mongodb://env:27017", cfg.Mongo.URI)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	clearEnv(t)
	requiredEnv(t)
	t.Setenv("MONGOAGENT_MONGO_DATABASE", "prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Mongo.Database)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "mongoagent.db", cfg.Storage.Path)
	assert.Equal(t, 5*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, retention.DefaultConfig().Interval, cfg.Retention.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing database", func(c *Config) { c.Mongo.Database = "" }, "Database"},
		{"missing ark key", func(c *Config) { c.LLM.Ark.APIKey = "" }, "llm.ark.api_key is required"},
		{"missing ark model", func(c *Config) { c.LLM.Ark.ModelID = "" }, "llm.ark.model_id is required"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama" }, "Provider"},
		{"gemini without key", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.gemini.api_key is required"},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai" }, "llm.openai.api_key is required"},
		{"bad confidence", func(c *Config) { c.Agent.MinLanguageConfidence = 2 }, "MinLanguageConfidence"},
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "Environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Mongo.Database = "shop"
			cfg.LLM.Ark.APIKey = "k"
			cfg.LLM.Ark.ModelID = "m"
			require.NoError(t, cfg.Validate())

			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Ark.APIKey = "secret"
	cfg.Mongo.URI = "mongodb://admin:hunter2@db:27017/?authSource=admin"
	cfg.Redis.URL = "redis://:pw@cache:6379/0"

	red := cfg.Redacted()
	assert.Equal(t, "******", red.LLM.Ark.APIKey)
	assert.Empty(t, red.LLM.Gemini.APIKey)
	assert.Equal(t, "mongodb://admin:******@db:27017/?authSource=admin", red.Mongo.URI)
	assert.Equal(t, "redis://:******@cache:6379/0", red.Redis.URL)
	assert.Equal(t, "secret", cfg.LLM.Ark.APIKey, "original is untouched")

	out, err := yaml.Marshal(red)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), "llm_timeout: 30s")
}
