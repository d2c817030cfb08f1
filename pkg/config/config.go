// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Generation, Postgres, Kafka, Redis, Auth, etc.).
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Failure policies for per-row render errors.
const (
	PolicyFailFast   = "fail_fast"
	PolicyBestEffort = "best_effort"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
}

// GenerationConfig controls the row-to-document pipeline. It is read once at
// startup and shared read-only by every request.
type GenerationConfig struct {
	BaseURL          string   `yaml:"baseURL"`
	IdentifierColumn string   `yaml:"identifierColumn"`
	RequiredColumns  []string `yaml:"requiredColumns"`
	FailurePolicy    string   `yaml:"failurePolicy"`
	Workers          int      `yaml:"workers"`
	ArchiveName      string   `yaml:"archiveName"`
	QRPixels         int      `yaml:"qrPixels"`
}

// PostgresConfig holds PostgreSQL connection parameters for the API key store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	BatchEvents string `yaml:"batchEvents"`
}

// RedisConfig holds Redis connection parameters for the shared rate limiter.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// AuthConfig controls API key authentication and upload rate limiting.
type AuthConfig struct {
	Enabled            bool `yaml:"enabled"`
	RateLimitPerMinute int  `yaml:"rateLimitPerMinute"`

	// TrustedProxies lists addresses or CIDR ranges whose X-Forwarded-For
	// header is believed. Empty means the peer address is always the client.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// TrustedPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix.
func (a AuthConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(a.TrustedProxies))
	for _, p := range a.TrustedProxies {
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("auth.trustedProxies: %w", err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("auth.trustedProxies: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values, or an error if the result does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config that runs standalone: no database, broker, or
// Redis is required.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  90 * time.Second,
			MaxUploadBytes:  16 << 20,
		},
		Generation: GenerationConfig{
			BaseURL:          "http://rastreio.exemplo.com.br/documento/",
			IdentifierColumn: "ID_UNICO",
			RequiredColumns:  []string{"ID_UNICO"},
			FailurePolicy:    PolicyFailFast,
			Workers:          1,
			ArchiveName:      "documentos_rastreaveis.zip",
			QRPixels:         256,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "trackeddocs",
			User:            "trackeddocs",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				BatchEvents: "document-batches",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Auth: AuthConfig{
			RateLimitPerMinute: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	var errs []error
	g := c.Generation
	if strings.TrimSpace(g.BaseURL) == "" {
		errs = append(errs, errors.New("generation.baseURL must not be empty"))
	}
	if strings.TrimSpace(g.IdentifierColumn) == "" {
		errs = append(errs, errors.New("generation.identifierColumn must not be empty"))
	} else if !slices.Contains(g.RequiredColumns, g.IdentifierColumn) {
		errs = append(errs, fmt.Errorf("generation.requiredColumns must include identifier column %q", g.IdentifierColumn))
	}
	if g.FailurePolicy != PolicyFailFast && g.FailurePolicy != PolicyBestEffort {
		errs = append(errs, fmt.Errorf("generation.failurePolicy %q must be %q or %q", g.FailurePolicy, PolicyFailFast, PolicyBestEffort))
	}
	if g.Workers < 1 {
		errs = append(errs, fmt.Errorf("generation.workers must be at least 1, got %d", g.Workers))
	}
	if g.QRPixels < 64 {
		errs = append(errs, fmt.Errorf("generation.qrPixels must be at least 64, got %d", g.QRPixels))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.maxUploadBytes must be positive"))
	}
	if _, err := c.Auth.TrustedPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides reads TD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TD_SERVER_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxUploadBytes = n
		}
	}
	// BASE_URL_RASTREAMENTO is the name older deployments set.
	if v := os.Getenv("BASE_URL_RASTREAMENTO"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("TD_GENERATION_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("TD_GENERATION_IDENTIFIER_COLUMN"); v != "" {
		cfg.Generation.IdentifierColumn = v
	}
	if v := os.Getenv("TD_GENERATION_REQUIRED_COLUMNS"); v != "" {
		cfg.Generation.RequiredColumns = splitList(v)
	}
	if v := os.Getenv("TD_GENERATION_FAILURE_POLICY"); v != "" {
		cfg.Generation.FailurePolicy = v
	}
	if v := os.Getenv("TD_GENERATION_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.Workers = n
		}
	}
	if v := os.Getenv("TD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TD_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("TD_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("TD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("TD_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("TD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TD_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = parseBool(v, cfg.Auth.Enabled)
	}
	if v := os.Getenv("TD_AUTH_TRUSTED_PROXIES"); v != "" {
		cfg.Auth.TrustedProxies = splitList(v)
	}
	if v := os.Getenv("TD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
