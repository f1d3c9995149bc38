package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARBWATCH_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBWATCH_* environment variable overrides, and
// returns the final Config. A missing file is not an error; a malformed one
// is. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Monitor ──
	setStringSlice(&cfg.Monitor.Symbols, "ARBWATCH_MONITOR_SYMBOLS")
	setFloat64(&cfg.Monitor.MinSpreadPct, "ARBWATCH_MONITOR_MIN_SPREAD_PCT")
	setDuration(&cfg.Monitor.CycleInterval, "ARBWATCH_MONITOR_CYCLE_INTERVAL")
	setDuration(&cfg.Monitor.FetchTimeout, "ARBWATCH_MONITOR_FETCH_TIMEOUT")
	setDuration(&cfg.Monitor.ReportTimeout, "ARBWATCH_MONITOR_REPORT_TIMEOUT")
	setInt(&cfg.Monitor.MaxConcurrency, "ARBWATCH_MONITOR_MAX_CONCURRENCY")

	// ── Sources, keyed by upper-cased name ──
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		prefix := "ARBWATCH_SOURCE_" + envName(s.Name) + "_"
		setStr(&s.APIKey, prefix+"API_KEY")
		setStr(&s.BaseURL, prefix+"BASE_URL")
		setDuration(&s.MinInterval, prefix+"MIN_INTERVAL")
		if v := os.Getenv(prefix + "ENABLED"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				s.Enabled = &b
			}
		}
	}

	// ── CSV ──
	setBool(&cfg.CSV.Enabled, "ARBWATCH_CSV_ENABLED")
	setStr(&cfg.CSV.Path, "ARBWATCH_CSV_PATH")
	setStr(&cfg.CSV.PricesPath, "ARBWATCH_CSV_PRICES_PATH")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBWATCH_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "ARBWATCH_SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBWATCH_SERVER_API_KEY")
	setDuration(&cfg.Server.RateLimitInterval, "ARBWATCH_SERVER_RATE_LIMIT_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBWATCH_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ARBWATCH_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ARBWATCH_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBWATCH_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBWATCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBWATCH_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBWATCH_POSTGRES_RUN_MIGRATIONS")
	setBool(&cfg.Postgres.StorePrices, "ARBWATCH_POSTGRES_STORE_PRICES")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBWATCH_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ARBWATCH_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ARBWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBWATCH_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARBWATCH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ARBWATCH_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "ARBWATCH_ARCHIVE_INTERVAL")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "ARBWATCH_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "ARBWATCH_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "ARBWATCH_KAFKA_TOPIC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBWATCH_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinSpreadPct, "ARBWATCH_NOTIFY_MIN_SPREAD_PCT")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ARBWATCH_LOG_LEVEL")
}

// envName turns a source name into its environment form: "coin-gecko" ->
// "COIN_GECKO".
func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
