// Package config provides configuration management for vodarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort              = 8080
	defaultServerTimeout           = 30 * time.Second
	defaultShutdownTimeout         = 10 * time.Second
	defaultMaxOpenConns            = 25
	defaultMaxIdleConns            = 10
	defaultConnMaxIdleTime         = 30 * time.Minute
	defaultTranscoderTimeout       = 30 * time.Second
	defaultTranscoderRetries       = 2
	defaultCircuitBreakerThreshold = 5
	defaultCircuitBreakerTimeout   = 30 * time.Second
	defaultTranscoderRPS           = 10.0
	defaultTranscoderBurst         = 20
	defaultPollInterval            = 2 * time.Second
	defaultPollTimeout             = 600 * time.Second
	defaultDedupeTTL               = 24 * time.Hour
	defaultWorkers                 = 4
	defaultQueueSize               = 256
	defaultReconcileGrace          = 15 * time.Minute
	defaultReconcileBatch          = 50
	defaultSMTPPort                = 587
)

// Secret is a credential string. Values of this type are redacted from logs.
type Secret string

// String hides the value from fmt verbs.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Reveal returns the raw credential.
func (s Secret) Reveal() string {
	return string(s)
}

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Transcoder TranscoderConfig `mapstructure:"transcoder"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Dedupe     DedupeConfig     `mapstructure:"dedupe"`
	Encoding   EncodingConfig   `mapstructure:"encoding"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// PublicURL is the externally reachable base URL, used in notification links.
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string        `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string        `mapstructure:"format"` // json, text
	AddSource  bool          `mapstructure:"add_source"`
	TimeFormat string        `mapstructure:"time_format"`
	File       LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables rotated file output alongside stdout.
type LogFileConfig struct {
	Path       string `mapstructure:"path"` // empty disables file output
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TranscoderConfig describes the media services account that runs transcode jobs.
type TranscoderConfig struct {
	// BaseURL is the management endpoint, e.g. https://management.azure.com.
	BaseURL        string `mapstructure:"base_url"`
	SubscriptionID string `mapstructure:"subscription_id"`
	ResourceGroup  string `mapstructure:"resource_group"`
	AccountName    string `mapstructure:"account_name"`
	APIVersion     string `mapstructure:"api_version"`

	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret Secret `mapstructure:"client_secret"`
	// TokenURL overrides the token endpoint derived from TenantID.
	TokenURL string `mapstructure:"token_url"`
	Scope    string `mapstructure:"scope"`

	TransformName     string `mapstructure:"transform_name"`
	PresetName        string `mapstructure:"preset_name"`
	StreamingEndpoint string `mapstructure:"streaming_endpoint"`
	LocatorPolicy     string `mapstructure:"locator_policy"`

	Timeout                 time.Duration `mapstructure:"timeout"`
	RetryAttempts           int           `mapstructure:"retry_attempts"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	RequestsPerSecond       float64       `mapstructure:"requests_per_second"`
	Burst                   int           `mapstructure:"burst"`
}

// AccountPath returns the ARM resource path of the media services account.
func (c *TranscoderConfig) AccountPath() string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Media/mediaServices/%s",
		c.SubscriptionID, c.ResourceGroup, c.AccountName)
}

// StorageConfig selects where transcoder output containers live.
type StorageConfig struct {
	Driver string             `mapstructure:"driver"` // azure, gcs, none
	Azure  AzureStorageConfig `mapstructure:"azure"`
	GCS    GCSStorageConfig   `mapstructure:"gcs"`
}

// AzureStorageConfig configures blob container deletion on an Azure storage account.
type AzureStorageConfig struct {
	AccountName string `mapstructure:"account_name"`
	// EndpointURL overrides https://<account>.blob.core.windows.net.
	EndpointURL string `mapstructure:"endpoint_url"`
	Scope       string `mapstructure:"scope"`
	APIVersion  string `mapstructure:"api_version"`
}

// GCSStorageConfig maps asset containers to object prefixes in one bucket.
type GCSStorageConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
}

// NotifyConfig selects how owners are told about review outcomes.
type NotifyConfig struct {
	Driver string       `mapstructure:"driver"` // log, pubsub, smtp
	PubSub PubSubConfig `mapstructure:"pubsub"`
	SMTP   SMTPConfig   `mapstructure:"smtp"`
}

// PubSubConfig holds the notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
	// EmulatorEndpoint points the client at a local emulator.
	EmulatorEndpoint string `mapstructure:"emulator_endpoint"`
}

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password Secret `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// WebhookConfig controls transcoder event ingestion.
type WebhookConfig struct {
	// Mode is sync (ack after persisting) or async (ack on receipt).
	Mode string `mapstructure:"mode"`
	// ValidationTimeout bounds the handshake callback.
	ValidationTimeout time.Duration `mapstructure:"validation_timeout"`
}

// DedupeConfig configures the webhook event ledger.
type DedupeConfig struct {
	Driver string        `mapstructure:"driver"` // memory, redis, none
	TTL    time.Duration `mapstructure:"ttl"`
	Redis  RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addrs     []string `mapstructure:"addrs"`
	Username  string   `mapstructure:"username"`
	Password  Secret   `mapstructure:"password"`
	DB        int      `mapstructure:"db"`
	KeyPrefix string   `mapstructure:"key_prefix"`
}

// EncodingConfig controls how job completion is observed.
type EncodingConfig struct {
	// CompletionMode is webhook (push only) or poll (dispatch a poller per job).
	CompletionMode string        `mapstructure:"completion_mode"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
}

// SchedulerConfig holds background worker and reconciliation settings.
type SchedulerConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	ReconcileEnabled bool          `mapstructure:"reconcile_enabled"`
	ReconcileCron    string        `mapstructure:"reconcile_cron"`
	ReconcileGrace   time.Duration `mapstructure:"reconcile_grace"`
	ReconcileBatch   int           `mapstructure:"reconcile_batch"`
}

// MetricsConfig selects the OpenTelemetry metric exporter.
type MetricsConfig struct {
	// Exporter is none or stdout.
	Exporter string        `mapstructure:"exporter"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VODARR_ and use underscores for nesting.
// Example: VODARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vodarr")
		v.AddConfigPath("$HOME/.vodarr")
	}

	v.SetEnvPrefix("VODARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.public_url", "http://localhost:8080")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vodarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 28)
	v.SetDefault("logging.file.compress", true)

	// Transcoder defaults
	v.SetDefault("transcoder.base_url", "https://management.azure.com")
	v.SetDefault("transcoder.api_version", "2022-08-01")
	v.SetDefault("transcoder.scope", "https://management.azure.com/.default")
	v.SetDefault("transcoder.transform_name", "ContentAwareEncoding")
	v.SetDefault("transcoder.preset_name", "ContentAwareEncoding")
	v.SetDefault("transcoder.streaming_endpoint", "default")
	v.SetDefault("transcoder.locator_policy", "Predefined_ClearStreamingOnly")
	v.SetDefault("transcoder.timeout", defaultTranscoderTimeout)
	v.SetDefault("transcoder.retry_attempts", defaultTranscoderRetries)
	v.SetDefault("transcoder.circuit_breaker_threshold", defaultCircuitBreakerThreshold)
	v.SetDefault("transcoder.circuit_breaker_timeout", defaultCircuitBreakerTimeout)
	v.SetDefault("transcoder.requests_per_second", defaultTranscoderRPS)
	v.SetDefault("transcoder.burst", defaultTranscoderBurst)

	// Storage defaults
	v.SetDefault("storage.driver", "azure")
	v.SetDefault("storage.azure.scope", "https://storage.azure.com/.default")
	v.SetDefault("storage.azure.api_version", "2021-08-06")

	// Notify defaults
	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.smtp.port", defaultSMTPPort)

	// Webhook defaults
	v.SetDefault("webhook.mode", "sync")
	v.SetDefault("webhook.validation_timeout", 10*time.Second)

	// Dedupe defaults
	v.SetDefault("dedupe.driver", "memory")
	v.SetDefault("dedupe.ttl", defaultDedupeTTL)
	v.SetDefault("dedupe.redis.addrs", []string{"localhost:6379"})
	v.SetDefault("dedupe.redis.key_prefix", "vodarr:webhook:")

	// Encoding defaults
	v.SetDefault("encoding.completion_mode", "webhook")
	v.SetDefault("encoding.poll_interval", defaultPollInterval)
	v.SetDefault("encoding.poll_timeout", defaultPollTimeout)

	// Scheduler defaults
	v.SetDefault("scheduler.workers", defaultWorkers)
	v.SetDefault("scheduler.queue_size", defaultQueueSize)
	v.SetDefault("scheduler.reconcile_enabled", true)
	v.SetDefault("scheduler.reconcile_cron", "@every 5m")
	v.SetDefault("scheduler.reconcile_grace", defaultReconcileGrace)
	v.SetDefault("scheduler.reconcile_batch", defaultReconcileBatch)

	// Metrics defaults
	v.SetDefault("metrics.exporter", "none")
	v.SetDefault("metrics.interval", time.Minute)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Transcoder.BaseURL == "" {
		return fmt.Errorf("transcoder.base_url is required")
	}
	if c.Transcoder.TransformName == "" {
		return fmt.Errorf("transcoder.transform_name is required")
	}
	if c.Transcoder.RequestsPerSecond <= 0 {
		return fmt.Errorf("transcoder.requests_per_second must be positive")
	}

	switch c.Storage.Driver {
	case "none", "azure":
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: azure, gcs, none")
	}

	switch c.Notify.Driver {
	case "log":
	case "pubsub":
		if c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicID == "" {
			return fmt.Errorf("notify.pubsub.project_id and notify.pubsub.topic_id are required for the pubsub driver")
		}
	case "smtp":
		if c.Notify.SMTP.Host == "" || c.Notify.SMTP.From == "" {
			return fmt.Errorf("notify.smtp.host and notify.smtp.from are required for the smtp driver")
		}
	default:
		return fmt.Errorf("notify.driver must be one of: log, pubsub, smtp")
	}

	if c.Webhook.Mode != "sync" && c.Webhook.Mode != "async" {
		return fmt.Errorf("webhook.mode must be one of: sync, async")
	}

	switch c.Dedupe.Driver {
	case "none", "memory":
	case "redis":
		if len(c.Dedupe.Redis.Addrs) == 0 {
			return fmt.Errorf("dedupe.redis.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("dedupe.driver must be one of: memory, redis, none")
	}

	if c.Encoding.CompletionMode != "webhook" && c.Encoding.CompletionMode != "poll" {
		return fmt.Errorf("encoding.completion_mode must be one of: webhook, poll")
	}
	if c.Encoding.PollInterval <= 0 || c.Encoding.PollTimeout < c.Encoding.PollInterval {
		return fmt.Errorf("encoding.poll_timeout must be at least encoding.poll_interval, and both positive")
	}

	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	if c.Scheduler.QueueSize < 1 {
		return fmt.Errorf("scheduler.queue_size must be at least 1")
	}

	if c.Metrics.Exporter != "none" && c.Metrics.Exporter != "stdout" {
		return fmt.Errorf("metrics.exporter must be one of: none, stdout")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
