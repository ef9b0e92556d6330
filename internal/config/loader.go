package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "opsforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("OPSFORGE_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
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
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
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
	setString(&cfg.Server.Port, "OPSFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "OPSFORGE_CORS_ORIGIN")
	setString(&cfg.Server.Env, "APP_ENV")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "OPSFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "OPSFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "OPSFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "OPSFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "OPSFORGE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.DefaultModel, "LLM_MODEL")
	setDuration(&cfg.LiteLLM.Timeout, "OPSFORGE_LLM_TIMEOUT")
	setString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setInt64(&cfg.Anthropic.MaxTokens, "OPSFORGE_ANTHROPIC_MAX_TOKENS")

	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.GitHub.BaseURL, "GITHUB_API_URL")
	setString(&cfg.GitHub.WebhookSecret, "GITHUB_WEBHOOK_SECRET")

	setString(&cfg.Kubernetes.KubeconfigPath, "KUBECONFIG_PATH")
	setDuration(&cfg.Kubernetes.CallTimeout, "OPSFORGE_K8S_CALL_TIMEOUT")
	setInt32(&cfg.Kubernetes.ContainerPort, "OPSFORGE_K8S_CONTAINER_PORT")
	setString(&cfg.Kubernetes.DefaultNamespace, "OPSFORGE_K8S_NAMESPACE")

	setString(&cfg.Logging.Level, "OPSFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "OPSFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "OPSFORGE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "OPSFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "OPSFORGE_BREAKER_TIMEOUT")

	setUint(&cfg.Retry.MaxRetries, "OPSFORGE_RETRY_MAX")
	setDuration(&cfg.Retry.InitialInterval, "OPSFORGE_RETRY_INITIAL")
	setDuration(&cfg.Retry.MaxInterval, "OPSFORGE_RETRY_MAX_INTERVAL")

	setFloat64(&cfg.Rate.RequestsPerSecond, "OPSFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "OPSFORGE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "OPSFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "OPSFORGE_RATE_MAX_IDLE_TIME")

	// Pipeline
	setInt(&cfg.Pipeline.FetchConcurrency, "OPSFORGE_FETCH_CONCURRENCY")
	setDuration(&cfg.Pipeline.ConfirmationTTL, "OPSFORGE_CONFIRMATION_TTL")
	setDuration(&cfg.Pipeline.SweepInterval, "OPSFORGE_SWEEP_INTERVAL")
	setFloat64(&cfg.Pipeline.ConfidenceThreshold, "OPSFORGE_CONFIDENCE_THRESHOLD")
	setDuration(&cfg.Pipeline.TaskTimeout, "OPSFORGE_TASK_TIMEOUT")
	setString(&cfg.Pipeline.NotifyChannel, "OPSFORGE_NOTIFY_CHANNEL")
	setString(&cfg.Pipeline.HealthURLPattern, "OPSFORGE_HEALTH_URL_PATTERN")
	setInt(&cfg.Pipeline.ProbeSamples, "OPSFORGE_PROBE_SAMPLES")

	// Lease
	setString(&cfg.Lease.Backend, "OPSFORGE_LEASE_BACKEND")
	setString(&cfg.Lease.Mode, "OPSFORGE_LEASE_MODE")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "OPSFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "OPSFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.StatusTTL, "OPSFORGE_CACHE_STATUS_TTL")

	// Notify
	setString(&cfg.Notify.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	setString(&cfg.Notify.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")
	setString(&cfg.Notify.SMTPHost, "SMTP_HOST")
	setInt(&cfg.Notify.SMTPPort, "SMTP_PORT")
	setString(&cfg.Notify.SMTPFrom, "SMTP_FROM")
	setString(&cfg.Notify.SMTPPassword, "SMTP_PASSWORD")
	setString(&cfg.Notify.EmailTo, "NOTIFY_EMAIL_TO")
	setStringSlice(&cfg.Notify.EnabledEvents, "OPSFORGE_NOTIFY_EVENTS")

	// Auth
	setBool(&cfg.Auth.Enabled, "OPSFORGE_AUTH_ENABLED")
	setString(&cfg.Auth.TokenHash, "OPSFORGE_AUTH_TOKEN_HASH")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "OPSFORGE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "OPSFORGE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "OPSFORGE_IDEMPOTENCY_TTL")
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
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Pipeline.FetchConcurrency < 1 {
		return errors.New("pipeline.fetch_concurrency must be >= 1")
	}
	if cfg.Pipeline.ConfirmationTTL <= 0 {
		return errors.New("pipeline.confirmation_ttl must be positive")
	}
	if cfg.Pipeline.ConfidenceThreshold < 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		return errors.New("pipeline.confidence_threshold must be within [0,1]")
	}
	switch cfg.Lease.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("lease.backend %q must be memory or postgres", cfg.Lease.Backend)
	}
	switch cfg.Lease.Mode {
	case "block", "reject":
	default:
		return fmt.Errorf("lease.mode %q must be block or reject", cfg.Lease.Mode)
	}
	if cfg.Auth.Enabled && cfg.Auth.TokenHash == "" && cfg.Auth.JWTSecret == "" {
		return errors.New("auth.enabled requires auth.token_hash or auth.jwt_secret")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint(dst *uint, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint(n)
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
