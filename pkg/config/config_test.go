package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TELEGRAM_TOKEN", "")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "4h", c.Scanner.TrendTimeframe)
	assert.Equal(t, 100, c.Universe.TopK)
	assert.Equal(t, 20*time.Minute, c.Scheduler.UniverseInterval)
	assert.Equal(t, time.Minute, c.Scheduler.ScanInterval)
	assert.Equal(t, 4*time.Hour, c.Confirmation.Timeout)
	assert.Equal(t, 2, c.Confirmation.RejectVotes)
	assert.Equal(t, "memory", c.Store.Backend)
	assert.Equal(t, "BTCUSDT", c.Correlation.ReferenceSymbol)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TELEGRAM_TOKEN", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
environment: production
server:
  port: 9090
scanner:
  min_score: 80
  max_workers: 4
scheduler:
  scan_interval: 2m
store:
  backend: clickhouse
clickhouse:
  host: ch.internal
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 80.0, c.Scanner.MinScore)
	assert.Equal(t, 4, c.Scanner.MaxWorkers)
	assert.Equal(t, 2*time.Minute, c.Scheduler.ScanInterval)
	assert.Equal(t, "clickhouse", c.Store.Backend)
	assert.Equal(t, "ch.internal", c.ClickHouse.Host)
	// untouched keys keep their defaults
	assert.Equal(t, 100, c.Scanner.Bars)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanner:\n  trend_timeframe: 3h\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	env := map[string]string{
		"BINANCE_API_KEY":  "key",
		"TELEGRAM_TOKEN":   "tok",
		"TELEGRAM_CHAT_ID": "-1001",
		"KAFKA_BROKERS":    "k1:9092,k2:9092",
		"REDIS_ADDR":       "redis:6379",
		"STORE_BACKEND":    "clickhouse",
		"PORT":             "9090",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "key", c.Binance.APIKey)
	assert.True(t, c.Telegram.Enabled)
	assert.Equal(t, int64(-1001), c.Telegram.ChatID)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, "layered", c.Cache.Type)
	assert.Equal(t, "redis:6379", c.Cache.Redis.Addr)
	assert.Equal(t, "clickhouse", c.Store.Backend)
	assert.Equal(t, 9090, c.Server.Port)
	assert.NoError(t, c.Validate())

	c.applyEnv(func(k string) string {
		if k == "PORT" {
			return "not-a-port"
		}
		return ""
	})
	assert.Equal(t, 9090, c.Server.Port)
}

func TestValidateCrossField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"telegram without chat", func(c *Config) { c.Telegram.Enabled, c.Telegram.Token = true, "t" }},
		{"locks without redis", func(c *Config) { c.Scheduler.DistributedLocks = true }},
		{"zero interval", func(c *Config) { c.Scheduler.ScanInterval = 0 }},
		{"bad store", func(c *Config) { c.Store.Backend = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load("")
			require.NoError(t, err)
			c.Kafka.Enabled, c.Telegram.Enabled, c.Cache.Type = false, false, "memory"
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
