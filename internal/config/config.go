// Package config defines the monitor's configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/notify"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/source"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBWATCH_* environment variables.
type Config struct {
	Monitor  MonitorConfig  `toml:"monitor"`
	Sources  []SourceConfig `toml:"sources"`
	CSV      CSVConfig      `toml:"csv"`
	Server   ServerConfig   `toml:"server"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// MonitorConfig holds the cycle parameters.
type MonitorConfig struct {
	Symbols        []string `toml:"symbols"`
	MinSpreadPct   float64  `toml:"min_spread_pct"`
	CycleInterval  duration `toml:"cycle_interval"`
	FetchTimeout   duration `toml:"fetch_timeout"`
	ReportTimeout  duration `toml:"report_timeout"`
	MaxConcurrency int      `toml:"max_concurrency"` // 0 = one goroutine per fetch
}

// SourceConfig describes one price source. Kind defaults to Name.
type SourceConfig struct {
	Name        string            `toml:"name"`
	Kind        string            `toml:"kind"`
	Enabled     *bool             `toml:"enabled"` // nil means enabled
	BaseURL     string            `toml:"base_url"`
	APIKey      string            `toml:"api_key"`
	MinInterval duration          `toml:"min_interval"`
	Symbols     map[string]string `toml:"symbols"` // canonical symbol -> provider ticker
}

// IsEnabled reports whether the source takes part in cycles.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// CSVConfig holds the append-only history files.
type CSVConfig struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	PricesPath string `toml:"prices_path"` // empty disables the raw price file
}

// ServerConfig holds the dashboard API parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Addr              string   `toml:"addr"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	RateLimitInterval duration `toml:"rate_limit_interval"` // 0 disables
	RateLimitMaxWait  duration `toml:"rate_limit_max_wait"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	StorePrices   bool   `toml:"store_prices"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage export of opportunity history.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// KafkaConfig controls the opportunity event stream.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinSpreadPct      float64  `toml:"min_spread_pct"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config that monitors the four original symbols on the
// three public providers and writes CSV history.
func Defaults() Config {
	return Config{
		Monitor: MonitorConfig{
			Symbols:       []string{"BTC-USD", "ETH-USD", "SOL-USD", "AVAX-USD"},
			MinSpreadPct:  0.5,
			CycleInterval: duration{30 * time.Second},
			FetchTimeout:  duration{10 * time.Second},
			ReportTimeout: duration{15 * time.Second},
		},
		Sources: []SourceConfig{
			{Name: source.KindBinance},
			{Name: source.KindCoinbase},
			{Name: source.KindCoinGecko},
		},
		CSV: CSVConfig{
			Enabled: true,
			Path:    "data/opportunities.csv",
		},
		Server: ServerConfig{
			Enabled:          true,
			Addr:             ":8080",
			RateLimitMaxWait: duration{time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "arbwatch:",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbwatch",
			User:          "arbwatch",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "arbwatch/",
			UseSSL: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
		},
		Kafka: KafkaConfig{
			Topic: "arbwatch.opportunities",
		},
		Notify: NotifyConfig{
			Events:       []string{notify.EventOpportunity, notify.EventOutage},
			MinSpreadPct: 1.0,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEvents = map[string]bool{
	notify.EventOpportunity: true,
	notify.EventOutage:      true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Monitor
	if len(c.Monitor.Symbols) == 0 {
		errs = append(errs, "monitor: symbols must not be empty")
	}
	for _, s := range c.Monitor.Symbols {
		if domain.ParseSymbol(s) == "" {
			errs = append(errs, fmt.Sprintf("monitor: invalid symbol %q", s))
		}
	}
	if c.Monitor.MinSpreadPct < 0 {
		errs = append(errs, "monitor: min_spread_pct must be >= 0")
	}
	if c.Monitor.CycleInterval.Duration <= 0 {
		errs = append(errs, "monitor: cycle_interval must be > 0")
	}
	if c.Monitor.FetchTimeout.Duration <= 0 {
		errs = append(errs, "monitor: fetch_timeout must be > 0")
	}
	if c.Monitor.ReportTimeout.Duration < 0 {
		errs = append(errs, "monitor: report_timeout must be >= 0")
	}
	if c.Monitor.MaxConcurrency < 0 {
		errs = append(errs, "monitor: max_concurrency must be >= 0")
	}

	// Sources
	kinds := make(map[string]bool)
	for _, k := range source.Kinds() {
		kinds[k] = true
	}
	names := make(map[string]bool)
	enabled := 0
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sources[%d]: name must not be empty", i))
			continue
		}
		if names[s.Name] {
			errs = append(errs, fmt.Sprintf("sources: duplicate name %q", s.Name))
		}
		names[s.Name] = true
		if !kinds[strings.ToLower(s.kind())] {
			errs = append(errs, fmt.Sprintf("sources.%s: unknown kind %q (valid: %s)", s.Name, s.kind(), strings.Join(source.Kinds(), ", ")))
		}
		if s.MinInterval.Duration < 0 {
			errs = append(errs, fmt.Sprintf("sources.%s: min_interval must be >= 0", s.Name))
		}
		if s.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, "sources: at least one source must be enabled")
	}

	// CSV
	if c.CSV.Enabled && c.CSV.Path == "" {
		errs = append(errs, "csv: path must not be empty when enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Addr == "" {
			errs = append(errs, "server: addr must not be empty")
		}
		if c.Server.RateLimitInterval.Duration < 0 {
			errs = append(errs, "server: rate_limit_interval must be >= 0")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres.enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "archive: s3.bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "archive: s3.region must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.MinSpreadPct < 0 {
		errs = append(errs, "notify: min_spread_pct must be >= 0")
	}
	for _, e := range c.Notify.Events {
		if !validEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (s SourceConfig) kind() string {
	if s.Kind != "" {
		return s.Kind
	}
	return s.Name
}
