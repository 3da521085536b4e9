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
const DefaultConfigFile = "percept.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
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
	setString(&cfg.Server.Port, "PERCEPT_PORT")
	setString(&cfg.Server.CORSOrigin, "PERCEPT_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PERCEPT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PERCEPT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PERCEPT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PERCEPT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PERCEPT_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.WorkerBucket, "PERCEPT_NATS_WORKER_BUCKET")
	setString(&cfg.NATS.ObjectBucket, "PERCEPT_NATS_OBJECT_BUCKET")
	setDuration(&cfg.NATS.WorkerTTL, "PERCEPT_NATS_WORKER_TTL")
	setString(&cfg.Judge.URL, "PERCEPT_JUDGE_URL")
	setString(&cfg.Judge.APIKey, "PERCEPT_JUDGE_API_KEY")
	setString(&cfg.Judge.Model, "PERCEPT_JUDGE_MODEL")
	setDuration(&cfg.Judge.Timeout, "PERCEPT_JUDGE_TIMEOUT")
	setString(&cfg.Logging.Level, "PERCEPT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PERCEPT_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "PERCEPT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PERCEPT_BREAKER_TIMEOUT")
	setString(&cfg.Registry.Mode, "PERCEPT_REGISTRY_MODE")
	setString(&cfg.Registry.Transport, "PERCEPT_REGISTRY_TRANSPORT")
	setInt(&cfg.Orchestrator.MaxReplans, "PERCEPT_MAX_REPLANS")
	setFloat64(&cfg.Orchestrator.MinConfidence, "PERCEPT_MIN_CONFIDENCE")
	setFloat64(&cfg.Orchestrator.RoutingThreshold, "PERCEPT_ROUTING_THRESHOLD")
	setFloat64(&cfg.Orchestrator.EnsembleMargin, "PERCEPT_ENSEMBLE_MARGIN")
	setDuration(&cfg.Orchestrator.WorkerTimeout, "PERCEPT_WORKER_TIMEOUT")
	setDuration(&cfg.Orchestrator.JudgeTimeout, "PERCEPT_JUDGE_CALL_TIMEOUT")
	setDuration(&cfg.Orchestrator.RegistryTimeout, "PERCEPT_REGISTRY_TIMEOUT")
	setInt64(&cfg.Cache.L1MaxSizeMB, "PERCEPT_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.SnapshotTTL, "PERCEPT_CACHE_SNAPSHOT_TTL")
	setBool(&cfg.Telemetry.Enabled, "PERCEPT_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "PERCEPT_OTEL_ENDPOINT")
	setBool(&cfg.Auth.Enabled, "PERCEPT_AUTH_ENABLED")
	setInt(&cfg.Auth.BcryptCost, "PERCEPT_AUTH_BCRYPT_COST")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Registry.Mode != "static" && cfg.Registry.Mode != "dynamic" {
		return fmt.Errorf("registry.mode must be static or dynamic, got %q", cfg.Registry.Mode)
	}
	if cfg.Registry.Transport != "nats" && cfg.Registry.Transport != "http" {
		return fmt.Errorf("registry.transport must be nats or http, got %q", cfg.Registry.Transport)
	}
	if cfg.Registry.Mode == "static" && len(cfg.Registry.Workers) == 0 {
		return errors.New("registry.workers must not be empty in static mode")
	}
	if cfg.Orchestrator.MaxReplans < 1 {
		return errors.New("orchestrator.max_replans must be >= 1")
	}
	if cfg.Orchestrator.MinConfidence < 0 || cfg.Orchestrator.MinConfidence > 1 {
		return errors.New("orchestrator.min_confidence must be in [0,1]")
	}
	if cfg.Orchestrator.RoutingThreshold < 0 || cfg.Orchestrator.RoutingThreshold > 1 {
		return errors.New("orchestrator.routing_threshold must be in [0,1]")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
