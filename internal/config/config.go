package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/serenityjs/plugin-registry/internal/pkg/validate"
)

type Config struct {
	Port               int      `mapstructure:"port"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RequestTimeoutSec  int      `mapstructure:"request_timeout_sec"`  // HTTP read/write
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"` // Graceful shutdown wait

	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	Path   string `mapstructure:"path"`   // sqlite file
	URL    string `mapstructure:"url"`    // postgres DSN
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	JSON       bool   `mapstructure:"json"`
	File       string `mapstructure:"file"` // empty = stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type GitHubConfig struct {
	APIURL          string  `mapstructure:"api_url"`
	RawURL          string  `mapstructure:"raw_url"`
	Token           string  `mapstructure:"token"`
	Topic           string  `mapstructure:"topic"`
	TimeoutSec      int     `mapstructure:"timeout_sec"`
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"` // 0 = no limit
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
	MaxSearchPages  int     `mapstructure:"max_search_pages"`
}

type DiscoveryConfig struct {
	IntervalSec           int    `mapstructure:"interval_sec"`
	CacheClearIntervalSec int    `mapstructure:"cache_clear_interval_sec"`
	EnrichConcurrency     int    `mapstructure:"enrich_concurrency"`
	DefaultLogoURL        string `mapstructure:"default_logo_url"`
}

type ApprovalConfig struct {
	Channel string `mapstructure:"channel"` // log | discord | webhook
	// Token guards POST /approvals/{id}; the endpoint is disabled when empty.
	Token string `mapstructure:"token"`
}

type DiscordConfig struct {
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Format string `mapstructure:"format"` // json | slack
}

type TracingConfig struct {
	Endpoint     string  `mapstructure:"endpoint"`
	Protocol     string  `mapstructure:"protocol"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// DSN is the data source for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

// Interval returns the discovery refresh period.
func (c DiscoveryConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// CacheClearInterval returns the serving cache clear period.
func (c DiscoveryConfig) CacheClearInterval() time.Duration {
	return time.Duration(c.CacheClearIntervalSec) * time.Second
}

// Load reads configuration from path (or the default search paths when path is empty),
// then environment variables prefixed PLUGIN_REGISTRY_.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/plugin-registry/")
		v.AddConfigPath("$HOME/.plugin-registry")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("PLUGIN_REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 4000)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("request_timeout_sec", 15)
	v.SetDefault("shutdown_timeout_sec", 10)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./plugins.db")
	v.SetDefault("database.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.raw_url", "https://raw.githubusercontent.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.topic", "serenityjs-plugin")
	v.SetDefault("github.timeout_sec", 10)
	v.SetDefault("github.rate_limit_per_sec", 1.0)
	v.SetDefault("github.rate_limit_burst", 10)
	v.SetDefault("github.max_search_pages", 10) // search API caps results at 1000

	v.SetDefault("discovery.interval_sec", 5*60)
	v.SetDefault("discovery.cache_clear_interval_sec", 60*60)
	v.SetDefault("discovery.enrich_concurrency", 4)
	v.SetDefault("discovery.default_logo_url", "https://avatars.githubusercontent.com/u/92610726?s=88&v=4")

	v.SetDefault("approval.channel", "log")
	v.SetDefault("approval.token", "")
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.channel_id", "")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.format", "json")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.protocol", "http")
	v.SetDefault("tracing.sampling_rate", 1.0)
}

// applyEnvOverrides honours the conventional token variables used by the platform tooling.
func applyEnvOverrides(cfg *Config) {
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	var errs []string
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range", c.Port))
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, "database.url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}
	if !validate.Topic(c.GitHub.Topic) {
		errs = append(errs, fmt.Sprintf("github.topic %q is not a valid topic", c.GitHub.Topic))
	}
	if c.Discovery.IntervalSec <= 0 {
		errs = append(errs, "discovery.interval_sec must be positive")
	}
	if c.Discovery.CacheClearIntervalSec <= 0 {
		errs = append(errs, "discovery.cache_clear_interval_sec must be positive")
	}
	switch c.Approval.Channel {
	case "log":
	case "discord":
		if c.Discord.Token == "" || c.Discord.ChannelID == "" {
			errs = append(errs, "discord.token and discord.channel_id are required for the discord approval channel")
		}
	case "webhook":
		if c.Webhook.URL == "" {
			errs = append(errs, "webhook.url is required for the webhook approval channel")
		}
		if c.Webhook.Format != "json" && c.Webhook.Format != "slack" {
			errs = append(errs, fmt.Sprintf("unknown webhook.format %q", c.Webhook.Format))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown approval.channel %q", c.Approval.Channel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
