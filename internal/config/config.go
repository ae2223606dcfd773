// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ending-signal/crawler/internal/crawl"
	"github.com/ending-signal/crawler/internal/fetcher"
	"github.com/ending-signal/crawler/internal/notify"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Source   SourceConfig   `mapstructure:"source"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Retry    RetryConfig    `mapstructure:"retry"`
	DB       DBConfig       `mapstructure:"db"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig identifies the upstream catalog.
type SourceConfig struct {
	Name      string `mapstructure:"name"`
	Endpoint  string `mapstructure:"endpoint"`
	UserAgent string `mapstructure:"user_agent"`
	Referer   string `mapstructure:"referer"`
}

// CrawlConfig bounds the listing walks.
type CrawlConfig struct {
	PageSize            int `mapstructure:"page_size"`
	PauseMs             int `mapstructure:"pause_ms"`
	MaxWeekdayPages     int `mapstructure:"max_weekday_pages"`
	CompletionMaxPages  int `mapstructure:"completion_max_pages"`
	CompletionThreshold int `mapstructure:"completion_threshold"`
}

// HTTPConfig configures the upstream HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RetryConfig governs transient-failure retries per page.
type RetryConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffBaseSec int `mapstructure:"backoff_base_seconds"`
	BackoffMaxSec  int `mapstructure:"backoff_max_seconds"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// SMTPConfig holds the mail transport credentials. Empty username or
// password disables notifications.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// ArchiveConfig selects the snapshot archive backend.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"` // noop | gcs
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// ScheduleConfig paces the background runs in serve mode.
type ScheduleConfig struct {
	IntervalHours int `mapstructure:"interval_hours"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.name", "kakaopage")
	v.SetDefault("source.endpoint", "https://page.kakao.com/graphql")
	v.SetDefault("source.user_agent", "ending-signal-bot/0.1")
	v.SetDefault("source.referer", "https://page.kakao.com/")
	v.SetDefault("crawl.page_size", 100)
	v.SetDefault("crawl.pause_ms", 100)
	v.SetDefault("crawl.max_weekday_pages", 500)
	v.SetDefault("crawl.completion_max_pages", 249)
	v.SetDefault("crawl.completion_threshold", 2000)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_base_seconds", 2)
	v.SetDefault("retry.backoff_max_seconds", 10)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("schedule.interval_hours", 24)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.Name == "" {
		return fmt.Errorf("source.name must be set")
	}
	if c.Source.Endpoint == "" {
		return fmt.Errorf("source.endpoint must be set")
	}
	if c.Crawl.PageSize <= 0 {
		return fmt.Errorf("crawl.page_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Schedule.IntervalHours <= 0 {
		return fmt.Errorf("schedule.interval_hours must be > 0")
	}
	switch c.Archive.Provider {
	case "noop", "gcs":
	default:
		return fmt.Errorf("archive.provider must be noop or gcs, got %q", c.Archive.Provider)
	}
	if c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive.provider is gcs")
	}
	return nil
}

// FetcherConfig maps the source and HTTP sections onto the fetcher.
func (c Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		Endpoint:  c.Source.Endpoint,
		UserAgent: c.Source.UserAgent,
		Referer:   c.Source.Referer,
		Timeout:   time.Duration(c.HTTP.TimeoutSeconds) * time.Second,
	}
}

// RetryPolicy maps the retry section onto the fetcher policy.
func (c Config) RetryPolicy() *fetcher.RetryPolicy {
	return fetcher.NewRetryPolicy(
		c.Retry.MaxAttempts,
		time.Duration(c.Retry.BackoffBaseSec)*time.Second,
		time.Duration(c.Retry.BackoffMaxSec)*time.Second,
	)
}

// CrawlConfig maps the crawl section onto the crawl bounds.
func (c Config) CrawlConfig() crawl.Config {
	return crawl.Config{
		PageSize:            c.Crawl.PageSize,
		Pause:               time.Duration(c.Crawl.PauseMs) * time.Millisecond,
		MaxWeekdayPages:     c.Crawl.MaxWeekdayPages,
		CompletionMaxPages:  c.Crawl.CompletionMaxPages,
		CompletionThreshold: c.Crawl.CompletionThreshold,
	}
}

// MailConfig maps the smtp section onto the mail transport.
func (c Config) MailConfig() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
	}
}

// ScheduleInterval returns the serve-mode run interval.
func (c Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalHours) * time.Hour
}
