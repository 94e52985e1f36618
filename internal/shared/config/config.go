package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Encryption EncryptionConfig
	Provider   ProviderConfig
	Webhook    WebhookConfig
	Dispatcher DispatcherConfig
	Scheduler  SchedulerConfig
	TLS        TLSConfig
	Firebase   FirebaseConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type EncryptionConfig struct {
	Key string
}

type ProviderConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CertPath string
	KeyPath  string
}

type WebhookConfig struct {
	Secret string
}

type DispatcherConfig struct {
	IncrementalWindow time.Duration
	InitialWindow     time.Duration
	WorkerCount       int
	JobDelay          time.Duration
	QueueSize         int
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled  bool
	CertPath string
	KeyPath  string
}

type FirebaseConfig struct {
	CredentialsFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	providerTimeout, err := time.ParseDuration(getEnv("PROVIDER_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
	}

	// Parse dispatcher configuration
	incrementalWindow, err := time.ParseDuration(getEnv("DISPATCHER_INCREMENTAL_WINDOW", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCHER_INCREMENTAL_WINDOW: %w", err)
	}
	initialWindow, err := time.ParseDuration(getEnv("DISPATCHER_INITIAL_WINDOW", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCHER_INITIAL_WINDOW: %w", err)
	}
	dispatcherWorkers, err := strconv.Atoi(getEnv("DISPATCHER_WORKERS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCHER_WORKERS: %w", err)
	}
	dispatcherJobDelay, err := time.ParseDuration(getEnv("DISPATCHER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCHER_JOB_DELAY: %w", err)
	}
	dispatcherQueueSize, err := strconv.Atoi(getEnv("DISPATCHER_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCHER_QUEUE_SIZE: %w", err)
	}

	// Parse scheduler configuration
	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := strings.Split(getEnv("SCHEDULER_TIMES", "05:00,10:00,14:00,20:00"), ",")
	schedulerRunOnStartup := getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false)

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "moneta"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "moneta"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Provider: ProviderConfig{
			BaseURL:  getEnv("PROVIDER_BASE_URL", ""),
			APIKey:   getEnv("PROVIDER_API_KEY", ""),
			Timeout:  providerTimeout,
			CertPath: getEnv("PROVIDER_CLIENT_CERT_PATH", ""),
			KeyPath:  getEnv("PROVIDER_CLIENT_KEY_PATH", ""),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Dispatcher: DispatcherConfig{
			IncrementalWindow: incrementalWindow,
			InitialWindow:     initialWindow,
			WorkerCount:       dispatcherWorkers,
			JobDelay:          dispatcherJobDelay,
			QueueSize:         dispatcherQueueSize,
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			RunOnStartup:  schedulerRunOnStartup,
		},
		TLS: TLSConfig{
			Enabled:  getBoolEnv("TLS_ENABLED", false),
			CertPath: getEnv("TLS_CERT_PATH", ""),
			KeyPath:  getEnv("TLS_KEY_PATH", ""),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "moneta-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	// Validate required fields
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if cfg.Webhook.Secret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY is required")
	}

	// mTLS client credentials come in pairs
	if (cfg.Provider.CertPath == "") != (cfg.Provider.KeyPath == "") {
		return nil, fmt.Errorf("PROVIDER_CLIENT_CERT_PATH and PROVIDER_CLIENT_KEY_PATH must be set together")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
