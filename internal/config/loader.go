package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ticketbridge.yaml"

// BrokerOverrideEnv is the environment variable that, when set, overrides
// every other broker endpoint source.
const BrokerOverrideEnv = "TICKETBRIDGE_BROKER_URL"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// BrokerURL resolves the queue broker endpoint. Precedence: the explicit
// override env var, then the configured URL, then a default derived from the
// configured host.
func (c *Config) BrokerURL() string {
	if v := os.Getenv(BrokerOverrideEnv); v != "" {
		return v
	}
	if c.NATS.URL != "" {
		return c.NATS.URL
	}
	return "nats://" + c.NATS.Host + ":4222"
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TICKETBRIDGE_PORT")
	setString(&cfg.Server.CORSOrigin, "TICKETBRIDGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TICKETBRIDGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TICKETBRIDGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TICKETBRIDGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TICKETBRIDGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TICKETBRIDGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Host, "TICKETBRIDGE_NATS_HOST")
	setString(&cfg.NATS.Queue, "TICKETBRIDGE_QUEUE")
	setString(&cfg.Logging.Level, "TICKETBRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TICKETBRIDGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TICKETBRIDGE_LOG_ASYNC")
	setString(&cfg.Forge.BaseURL, "TICKETBRIDGE_FORGE_URL")
	setString(&cfg.Forge.Token, "TICKETBRIDGE_FORGE_TOKEN")
	setInt(&cfg.Breaker.MaxFailures, "TICKETBRIDGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TICKETBRIDGE_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.StatusMaxBytes, "TICKETBRIDGE_STATUS_CACHE_BYTES")
	setDuration(&cfg.Cache.StatusTTL, "TICKETBRIDGE_STATUS_CACHE_TTL")
	setDuration(&cfg.Sync.SettleDelay, "TICKETBRIDGE_SETTLE_DELAY")
	setDuration(&cfg.Sync.ReconcileInterval, "TICKETBRIDGE_RECONCILE_INTERVAL")
	setInt(&cfg.Sync.ReconcileWorkers, "TICKETBRIDGE_RECONCILE_WORKERS")
	setString(&cfg.Sync.PublicURL, "TICKETBRIDGE_PUBLIC_URL")
	setString(&cfg.Sync.WebhookKey, "TICKETBRIDGE_WEBHOOK_KEY")
	setString(&cfg.Sync.Agent, "TICKETBRIDGE_AGENT")
	setBool(&cfg.Otel.Enabled, "TICKETBRIDGE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "TICKETBRIDGE_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" && cfg.NATS.Host == "" {
		return errors.New("one of nats.url or nats.host is required")
	}
	if cfg.Forge.BaseURL == "" {
		return errors.New("forge.base_url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Sync.SettleDelay < 0 {
		return errors.New("sync.settle_delay must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
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

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
