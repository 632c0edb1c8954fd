// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// EnvPrefix is prepended to every environment override, e.g.
// CAMPHARVEST_RUN_CONCURRENCY=5.
const EnvPrefix = "CAMPHARVEST"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Run       RunConfig       `mapstructure:"run"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Paths     PathsConfig     `mapstructure:"paths"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Review    ReviewConfig    `mapstructure:"review"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Server    ServerConfig    `mapstructure:"server"`
}

// RunConfig governs the orchestrator. A zero SeasonYear means the current
// year.
type RunConfig struct {
	Concurrency     int      `mapstructure:"concurrency"`
	Strategies      []string `mapstructure:"strategies"`
	DeadlineMinutes int      `mapstructure:"deadline_minutes"`
	MaxPages        int      `mapstructure:"max_pages"`
	MaxLinks        int      `mapstructure:"max_links"`
	BlockedHosts    []string `mapstructure:"blocked_hosts"`
	SeasonYear      int      `mapstructure:"season_year"`
	RequiredFields  []string `mapstructure:"required_fields"`
}

// HTTPConfig configures static fetching and strategy retries.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	StaticRetries  int    `mapstructure:"static_retries"`
	Retries        int    `mapstructure:"retries"`
	BackoffMs      int    `mapstructure:"backoff_ms"`
	MaxSitemapURLs int    `mapstructure:"max_sitemap_urls"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxParallel    int    `mapstructure:"max_parallel"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	SettleMs       int    `mapstructure:"settle_ms"`
	Scrolls        int    `mapstructure:"scrolls"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
}

// RateLimitConfig sets the per-host backoff bounds.
type RateLimitConfig struct {
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// CacheConfig controls the content cache.
type CacheConfig struct {
	TTLHours int  `mapstructure:"ttl_hours"`
	Disabled bool `mapstructure:"disabled"`
}

// PathsConfig names the files the harvester reads and writes. Everything
// except Baseline is relative to the blob store root.
type PathsConfig struct {
	DataDir            string `mapstructure:"data_dir"`
	Baseline           string `mapstructure:"baseline"`
	Snapshot           string `mapstructure:"snapshot"`
	ChangeLog          string `mapstructure:"change_log"`
	PipelineLog        string `mapstructure:"pipeline_log"`
	ReportDir          string `mapstructure:"report_dir"`
	ReviewQueue        string `mapstructure:"review_queue"`
	ExtractionLog      string `mapstructure:"extraction_log"`
	ContentCache       string `mapstructure:"content_cache"`
	ScreenshotDir      string `mapstructure:"screenshot_dir"`
	ArtifactMaxAgeDays int    `mapstructure:"artifact_max_age_days"`
}

// LLMConfig configures the semantic extractor. An empty APIKey disables the
// llm strategy.
type LLMConfig struct {
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	MaxTokens         int    `mapstructure:"max_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	MaxPageBytes      int    `mapstructure:"max_page_bytes"`
}

// ReviewConfig sets the review queue threshold.
type ReviewConfig struct {
	Threshold int `mapstructure:"threshold"`
}

// StorageConfig selects where run artifacts live.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for change-set publication.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls the optional Postgres run log.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	RunsTable    string `mapstructure:"runs_table"`
	ResultsTable string `mapstructure:"results_table"`
	MaxConns     int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls Prometheus collection and the optional push.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	PushURL string `mapstructure:"push_url"`
	Job     string `mapstructure:"job"`
}

// ServerConfig configures the status API started by `campharvest serve`.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load builds a Config from an already populated Viper instance.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile builds a Config from disk/environment on a fresh Viper instance.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return Load(v)
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("run.concurrency", 3)
	v.SetDefault("run.strategies", []string{"all"})
	v.SetDefault("run.deadline_minutes", 0)
	v.SetDefault("run.max_pages", 5)
	v.SetDefault("run.max_links", 5)
	v.SetDefault("run.blocked_hosts", []string{})
	v.SetDefault("run.season_year", 0)
	v.SetDefault("run.required_fields", []string{})
	v.SetDefault("http.user_agent", "CampHarvester/1.0 (+https://github.com/JakeFAU/camp-harvester)")
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("http.static_retries", 3)
	v.SetDefault("http.retries", 2)
	v.SetDefault("http.backoff_ms", 2000)
	v.SetDefault("http.max_sitemap_urls", 10)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.user_agent", "")
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.settle_ms", 1500)
	v.SetDefault("headless.scrolls", 3)
	v.SetDefault("headless.viewport_width", 1280)
	v.SetDefault("headless.viewport_height", 900)
	v.SetDefault("ratelimit.base_delay_ms", 2000)
	v.SetDefault("ratelimit.max_delay_ms", 30000)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.disabled", false)
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.baseline", "data/camps.csv")
	v.SetDefault("paths.snapshot", "camps.json")
	v.SetDefault("paths.change_log", "change-log.json")
	v.SetDefault("paths.pipeline_log", "pipeline-log.json")
	v.SetDefault("paths.report_dir", "reports")
	v.SetDefault("paths.review_queue", "review-queue.json")
	v.SetDefault("paths.extraction_log", "extraction-log.json")
	v.SetDefault("paths.content_cache", "content-cache.json")
	v.SetDefault("paths.screenshot_dir", "screenshots")
	v.SetDefault("paths.artifact_max_age_days", 7)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.max_page_bytes", 6*1024)
	v.SetDefault("review.threshold", 60)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("pubsub.topic_name", "camp-changes")
	v.SetDefault("db.runs_table", "harvest_runs")
	v.SetDefault("db.results_table", "harvest_results")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.job", "campharvest")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.timeout_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be > 0")
	}
	if c.Run.DeadlineMinutes < 0 {
		return fmt.Errorf("run.deadline_minutes must be >= 0")
	}
	if _, err := c.StrategyList(); err != nil {
		return err
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.StaticRetries < 0 || c.HTTP.Retries < 0 {
		return fmt.Errorf("http retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.RateLimit.BaseDelayMs < 0 || c.RateLimit.MaxDelayMs < c.RateLimit.BaseDelayMs {
		return fmt.Errorf("ratelimit.max_delay_ms must be >= ratelimit.base_delay_ms >= 0")
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be > 0")
	}
	if c.Review.Threshold < 0 || c.Review.Threshold > 100 {
		return fmt.Errorf("review.threshold must be within 0..100")
	}
	if strings.TrimSpace(c.Paths.Snapshot) == "" {
		return fmt.Errorf("paths.snapshot is required")
	}
	switch c.Storage.Provider {
	case "local":
		if strings.TrimSpace(c.Paths.DataDir) == "" {
			return fmt.Errorf("paths.data_dir is required for local storage")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for gcs storage")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.provider must be one of local, gcs, memory (got %q)", c.Storage.Provider)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Server.TimeoutSeconds < 0 {
		return fmt.Errorf("server.timeout_seconds must be >= 0")
	}
	return nil
}

// StrategyList resolves the configured strategy names. "all" expands to
// every strategy in execution order.
func (c Config) StrategyList() ([]camp.Strategy, error) {
	return ParseStrategies(c.Run.Strategies)
}

// ParseStrategies resolves strategy names, expanding "all" and dropping
// duplicates. An empty list means all strategies.
func ParseStrategies(names []string) ([]camp.Strategy, error) {
	out := make([]camp.Strategy, 0, len(camp.AllStrategies()))
	seen := make(map[camp.Strategy]bool)
	add := func(s camp.Strategy) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.EqualFold(part, "all") {
				for _, s := range camp.AllStrategies() {
					add(s)
				}
				continue
			}
			s, err := camp.ParseStrategy(strings.ToLower(part))
			if err != nil {
				return nil, fmt.Errorf("run.strategies: %w", err)
			}
			add(s)
		}
	}
	if len(out) == 0 {
		return camp.AllStrategies(), nil
	}
	return out, nil
}

// HTTPTimeout converts the static fetch timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// Backoff is the strategy runner's base retry delay.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.HTTP.BackoffMs) * time.Millisecond
}

// CacheTTL is the content cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// Deadline is the run-level dispatch deadline; zero disables it.
func (c Config) Deadline() time.Duration {
	return time.Duration(c.Run.DeadlineMinutes) * time.Minute
}

// ArtifactMaxAge is how long screenshots are kept.
func (c Config) ArtifactMaxAge() time.Duration {
	return time.Duration(c.Paths.ArtifactMaxAgeDays) * 24 * time.Hour
}

// ServerTimeout bounds each status API request.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
