// Package config provides configuration management for the review generation service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the review generation service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// OpenAlex contains bibliographic search API settings.
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	// PDF contains document download and cache settings.
	PDF PDFConfig `mapstructure:"pdf"`
	// LLM contains text-generation API client settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Pipeline contains orchestrator tuning knobs.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Kafka contains lifecycle event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 50).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 10).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for review generation workflows.
	TaskQueue string `mapstructure:"task_queue"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// OpenAlexConfig holds bibliographic search API settings.
type OpenAlexConfig struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email is the contact email for the OpenAlex polite pool.
	Email string `mapstructure:"email"`
	// Timeout is the timeout for search requests.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxRetries is the retry budget for transient search failures.
	MaxRetries int `mapstructure:"max_retries"`
}

// PDFConfig holds document download and cache settings.
type PDFConfig struct {
	// CacheDir is the directory for content-addressed PDF storage.
	CacheDir string `mapstructure:"cache_dir"`
	// Timeout is the per-download HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxSizeBytes is the maximum accepted download size (default: 50MB).
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	// MaxRetries is the retry budget for transient download failures.
	MaxRetries int `mapstructure:"max_retries"`
}

// LLMConfig holds text-generation API client settings.
type LLMConfig struct {
	// Provider is the generation provider ("openai" or "anthropic").
	Provider string `mapstructure:"provider"`
	// Timeout is the timeout for generation calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the retry budget for transient provider failures.
	MaxRetries int `mapstructure:"max_retries"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI ProviderConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic ProviderConfig `mapstructure:"anthropic"`
}

// ProviderConfig holds per-provider generation API settings.
type ProviderConfig struct {
	// APIKey is the provider API key (environment variable only).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL (empty means provider default).
	BaseURL string `mapstructure:"base_url"`
	// SummaryModel is the model used for per-document summaries.
	SummaryModel string `mapstructure:"summary_model"`
	// SynthesisModel is the model used for section and final synthesis calls.
	SynthesisModel string `mapstructure:"synthesis_model"`
}

// PipelineConfig holds orchestrator tuning knobs.
type PipelineConfig struct {
	// MaxPapers caps how many search candidates one job retains (default: 30).
	MaxPapers int `mapstructure:"max_papers"`
	// DownloadWorkers bounds the download/extract fan-out (default: 5).
	DownloadWorkers int `mapstructure:"download_workers"`
	// BatchSize is the synthesis batch size (default: 5).
	BatchSize int `mapstructure:"batch_size"`
	// MinReviewWords is the word threshold below which the final review gets
	// a partial-result notice (default: 3000).
	MinReviewWords int `mapstructure:"min_review_words"`
	// MaxActiveJobsPerUser is the per-user concurrent job quota (default: 3).
	MaxActiveJobsPerUser int `mapstructure:"max_active_jobs_per_user"`
}

// KafkaConfig holds lifecycle event publisher settings.
type KafkaConfig struct {
	// Enabled controls whether lifecycle events are published.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the topic for job lifecycle events.
	Topic string `mapstructure:"topic"`
	// WriteTimeout is the maximum time to wait for a publish.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("REVIEWGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/review-generation-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets are loaded exclusively from environment variables; the fields
	// use mapstructure:"-" so they can never leak in from a config file.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv("REVIEWGEN_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("REVIEWGEN_LLM_ANTHROPIC_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "reviewgen")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "review_generation_service")
	// Default to "require" for production security. Use
	// REVIEWGEN_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "review-generation")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// OpenAlex defaults
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("openalex.email", "")
	v.SetDefault("openalex.timeout", "30s")
	v.SetDefault("openalex.rate_limit", 10.0)
	v.SetDefault("openalex.max_retries", 3)

	// PDF defaults
	v.SetDefault("pdf.cache_dir", "data/pdfs")
	v.SetDefault("pdf.timeout", "30s")
	v.SetDefault("pdf.max_size_bytes", int64(50*1024*1024))
	v.SetDefault("pdf.max_retries", 3)

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.openai.summary_model", "gpt-4o-mini")
	v.SetDefault("llm.openai.synthesis_model", "gpt-4o")
	v.SetDefault("llm.anthropic.base_url", "")
	v.SetDefault("llm.anthropic.summary_model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.anthropic.synthesis_model", "claude-sonnet-4-5")

	// Pipeline defaults
	v.SetDefault("pipeline.max_papers", 30)
	v.SetDefault("pipeline.download_workers", 5)
	v.SetDefault("pipeline.batch_size", 5)
	v.SetDefault("pipeline.min_review_words", 3000)
	v.SetDefault("pipeline.max_active_jobs_per_user", 3)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "review-generation.jobs")
	v.SetDefault("kafka.write_timeout", "10s")
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort == c.Server.HTTPPort {
		return fmt.Errorf("server.metrics_port must differ from server.http_port")
	}

	switch c.Database.SSLMode {
	case SSLModeDisable, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
	default:
		return fmt.Errorf("database.ssl_mode must be one of disable, require, verify-ca, verify-full; got %q", c.Database.SSLMode)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns (%d) must be >= database.min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	if c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal.host_port is required")
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("temporal.task_queue is required")
	}

	if c.OpenAlex.BaseURL == "" {
		return fmt.Errorf("openalex.base_url is required")
	}
	if c.OpenAlex.RateLimit <= 0 {
		return fmt.Errorf("openalex.rate_limit must be positive, got %f", c.OpenAlex.RateLimit)
	}

	if c.PDF.MaxSizeBytes <= 0 {
		return fmt.Errorf("pdf.max_size_bytes must be positive, got %d", c.PDF.MaxSizeBytes)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}

	if c.Pipeline.MaxPapers <= 0 {
		return fmt.Errorf("pipeline.max_papers must be positive, got %d", c.Pipeline.MaxPapers)
	}
	if c.Pipeline.DownloadWorkers <= 0 {
		return fmt.Errorf("pipeline.download_workers must be positive, got %d", c.Pipeline.DownloadWorkers)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MaxActiveJobsPerUser <= 0 {
		return fmt.Errorf("pipeline.max_active_jobs_per_user must be positive, got %d", c.Pipeline.MaxActiveJobsPerUser)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	return nil
}
