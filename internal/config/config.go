package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Redis        RedisConfig        `yaml:"redis"`
	Logging      LoggingConfig      `yaml:"logging"`
	App          AppConfig          `yaml:"app"`
	Worker       WorkerConfig       `yaml:"worker"`
	Payment      PaymentConfig      `yaml:"payment"`
	Pricing      PricingConfig      `yaml:"pricing"`
	PromptPay    PromptPayConfig    `yaml:"promptpay"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Verification VerificationConfig `yaml:"verification"`
	Audit        AuditConfig        `yaml:"audit"`
	Tracing      TracingConfig      `yaml:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// RedisConfig holds the optional Redis used for the verification throttle
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	EventTimeout    time.Duration `yaml:"event_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PaymentConfig holds payment lifecycle settings
type PaymentConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatchSize int           `yaml:"sweep_batch_size"`
}

// PricingItem is a package or boost as written in the configuration
type PricingItem struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Fee  int64  `yaml:"fee"`
}

// PricingConfig holds the catalog and tax mode. An empty catalog uses the built-in one.
type PricingConfig struct {
	TaxMode  string        `yaml:"tax_mode"`
	VATRate  float64       `yaml:"vat_rate"`
	Packages []PricingItem `yaml:"packages"`
	Boosts   []PricingItem `yaml:"boosts"`
}

// PromptPayConfig holds the merchant proxy encoded into QR payloads
type PromptPayConfig struct {
	MerchantID string `yaml:"merchant_id"`
}

// WebhookConfig holds the shared secret for gateway notifications
type WebhookConfig struct {
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
}

// VerificationConfig selects the payment verification backend
type VerificationConfig struct {
	Backend         string        `yaml:"backend"`
	Timeout         time.Duration `yaml:"timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ThrottleMaxKeys int           `yaml:"throttle_max_keys"`
	Mock            struct {
		AutoApproveAfter time.Duration `yaml:"auto_approve_after"`
		Outcome          string        `yaml:"outcome"`
	} `yaml:"mock"`
	Gateway struct {
		BaseURL           string        `yaml:"base_url"`
		APIKey            string        `yaml:"api_key"`
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"gateway"`
	Midtrans struct {
		ServerKey    string `yaml:"server_key"`
		IsProduction bool   `yaml:"is_production"`
	} `yaml:"midtrans"`
	Stripe struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"stripe"`
}

// AuditConfig holds audit event publishing settings
type AuditConfig struct {
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// TracingConfig holds OpenTelemetry exporter settings
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and fills defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Payment.TTL <= 0 {
		c.Payment.TTL = 24 * time.Hour
	}
	if c.Payment.SweepInterval <= 0 {
		c.Payment.SweepInterval = 5 * time.Minute
	}
	if c.Payment.SweepBatchSize <= 0 {
		c.Payment.SweepBatchSize = 100
	}
	if c.Pricing.TaxMode == "" {
		c.Pricing.TaxMode = "inclusive"
	}
	if c.Webhook.SignatureHeader == "" {
		c.Webhook.SignatureHeader = "X-Signature"
	}
	if c.Verification.Backend == "" {
		c.Verification.Backend = "mock"
	}
	if c.Verification.Timeout <= 0 {
		c.Verification.Timeout = 5 * time.Second
	}
	if c.Audit.PublishTimeout <= 0 {
		c.Audit.PublishTimeout = 2 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Tracing.Enabled && c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1
	}
}

func (c *Config) validateConnections() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	return nil
}

// ValidateAPIConfig checks the settings the API service cannot start without
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateConnections(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("webhook secret is required")
	}

	if c.PromptPay.MerchantID == "" {
		return fmt.Errorf("promptpay merchant_id is required")
	}

	switch c.Pricing.TaxMode {
	case "inclusive":
	case "exclusive":
		if c.Pricing.VATRate <= 0 || c.Pricing.VATRate >= 100 {
			return fmt.Errorf("pricing vat_rate must be between 0 and 100 in exclusive mode")
		}
	default:
		return fmt.Errorf("unknown pricing tax_mode %q", c.Pricing.TaxMode)
	}

	if c.Verification.PollInterval < 0 {
		return fmt.Errorf("verification poll_interval must not be negative")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service cannot start without
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateConnections(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.EventTimeout <= 0 {
		return fmt.Errorf("worker event_timeout must be greater than 0")
	}

	return nil
}
