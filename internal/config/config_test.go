package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Run.Concurrency)
	assert.Equal(t, 20*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, 30*time.Second, cfg.NavTimeout())
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.ArtifactMaxAge())
	assert.Equal(t, 2*time.Second, cfg.Backoff())
	assert.Zero(t, cfg.Deadline())
	assert.Equal(t, 60, cfg.Review.Threshold)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, 6*1024, cfg.LLM.MaxPageBytes)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.ServerTimeout())

	strategies, err := cfg.StrategyList()
	require.NoError(t, err)
	assert.Equal(t, camp.AllStrategies(), strategies)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
run:
  concurrency: 6
  strategies: ["static-fetch", "rendered"]
  deadline_minutes: 45
http:
  timeout_seconds: 10
  backoff_ms: 500
headless:
  enabled: false
cache:
  ttl_hours: 12
review:
  threshold: 70
storage:
  provider: memory
pubsub:
  project_id: camps-prod
  topic_name: camp-diffs
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Run.Concurrency)
	assert.Equal(t, 45*time.Minute, cfg.Deadline())
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff())
	assert.False(t, cfg.Headless.Enabled)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 70, cfg.Review.Threshold)
	assert.Equal(t, "memory", cfg.Storage.Provider)
	assert.Equal(t, "camp-diffs", cfg.PubSub.TopicName)
	assert.True(t, cfg.Logging.Development)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30, cfg.Headless.NavTimeoutSec)

	strategies, err := cfg.StrategyList()
	require.NoError(t, err)
	assert.Equal(t, []camp.Strategy{camp.StrategyStatic, camp.StrategyRendered}, strategies)
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("CAMPHARVEST_RUN_CONCURRENCY", "9")
	t.Setenv("CAMPHARVEST_LLM_API_KEY", "sk-test")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Run.Concurrency)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadFromViper(t *testing.T) {
	t.Parallel()

	v := viper.New()
	SetDefaults(v)
	v.Set("run.concurrency", 1)
	v.Set("storage.provider", "gcs")
	v.Set("storage.gcs_bucket", "camp-artifacts")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Run.Concurrency)
	assert.Equal(t, "camp-artifacts", cfg.Storage.GCSBucket)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := Load(v)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"concurrency", func(c *Config) { c.Run.Concurrency = 0 }, "run.concurrency"},
		{"deadline", func(c *Config) { c.Run.DeadlineMinutes = -1 }, "run.deadline_minutes"},
		{"strategy", func(c *Config) { c.Run.Strategies = []string{"ocr"} }, "run.strategies"},
		{"timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"headless", func(c *Config) { c.Headless.MaxParallel = 0 }, "headless.max_parallel"},
		{"ratelimit", func(c *Config) { c.RateLimit.MaxDelayMs = 10 }, "ratelimit.max_delay_ms"},
		{"ttl", func(c *Config) { c.Cache.TTLHours = 0 }, "cache.ttl_hours"},
		{"threshold", func(c *Config) { c.Review.Threshold = 101 }, "review.threshold"},
		{"provider", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"bucket", func(c *Config) { c.Storage.Provider = "gcs" }, "storage.gcs_bucket"},
		{"topic", func(c *Config) {
			c.PubSub.ProjectID = "p"
			c.PubSub.TopicName = ""
		}, "pubsub.topic_name"},
		{"server timeout", func(c *Config) { c.Server.TimeoutSeconds = -1 }, "server.timeout_seconds"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseStrategies(t *testing.T) {
	t.Parallel()

	got, err := ParseStrategies([]string{"llm, static-fetch", "LLM"})
	require.NoError(t, err)
	assert.Equal(t, []camp.Strategy{camp.StrategyLLM, camp.StrategyStatic}, got)

	got, err = ParseStrategies([]string{"screenshot", "all"})
	require.NoError(t, err)
	assert.Len(t, got, len(camp.AllStrategies()))
	assert.Equal(t, camp.StrategyScreenshot, got[0])

	got, err = ParseStrategies(nil)
	require.NoError(t, err)
	assert.Equal(t, camp.AllStrategies(), got)

	_, err = ParseStrategies([]string{"carrier-pigeon"})
	require.Error(t, err)
}
