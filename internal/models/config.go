package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Webhook  WebhookConfig  `json:"webhook" mapstructure:"webhook"`
	Business BusinessConfig `json:"business" mapstructure:"business"`
	Store    StoreConfig    `json:"store" mapstructure:"store"`
	Retry    RetryConfig    `json:"retry" mapstructure:"retry"`
	Notifier NotifierConfig `json:"notifier" mapstructure:"notifier"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`
	LogLevel string         `json:"log_level" mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int      `json:"port" mapstructure:"port"`
	ReadTimeoutSec  int      `json:"read_timeout_sec" mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int      `json:"write_timeout_sec" mapstructure:"write_timeout_sec"`
	IdleTimeoutSec  int      `json:"idle_timeout_sec" mapstructure:"idle_timeout_sec"`
	AllowedOrigins  []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// WebhookConfig holds settings for the inbound webhook endpoint
type WebhookConfig struct {
	Secret       string `json:"secret" mapstructure:"secret"`
	VerifyToken  string `json:"verify_token" mapstructure:"verify_token"`
	MaxBodyBytes int64  `json:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// BusinessConfig describes the business account whose traffic is mirrored.
// PhoneNumber is only consulted when a payload's metadata declares none.
type BusinessConfig struct {
	PhoneNumber string `json:"phone_number" mapstructure:"phone_number"`
}

// StoreConfig selects and configures the message store backend
type StoreConfig struct {
	Driver          string `json:"driver" mapstructure:"driver"`
	Path            string `json:"path" mapstructure:"path"`
	DSN             string `json:"dsn" mapstructure:"dsn"`
	MongoURI        string `json:"mongo_uri" mapstructure:"mongo_uri"`
	MongoDatabase   string `json:"mongo_database" mapstructure:"mongo_database"`
	MongoCollection string `json:"mongo_collection" mapstructure:"mongo_collection"`
	TimeoutMs       int    `json:"timeout_ms" mapstructure:"timeout_ms"`
	EncryptPayloads bool   `json:"encrypt_payloads" mapstructure:"encrypt_payloads"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts" mapstructure:"max_attempts"`
}

// NotifierConfig holds settings for real-time fan-out sinks
type NotifierConfig struct {
	ClientBufferSize int    `json:"client_buffer_size" mapstructure:"client_buffer_size"`
	AMQPURL          string `json:"amqp_url" mapstructure:"amqp_url"`
	AMQPExchange     string `json:"amqp_exchange" mapstructure:"amqp_exchange"`
	PublishTimeoutMs int    `json:"publish_timeout_ms" mapstructure:"publish_timeout_ms"`
	QueueSize        int    `json:"queue_size" mapstructure:"queue_size"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName    string  `json:"service_name" mapstructure:"service_name"`
	ServiceVersion string  `json:"service_version" mapstructure:"service_version"`
	Environment    string  `json:"environment" mapstructure:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" mapstructure:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" mapstructure:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
