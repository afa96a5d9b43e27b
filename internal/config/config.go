package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"wamirror/internal/constants"
	"wamirror/internal/models"
	"wamirror/internal/security"
	"wamirror/internal/store"
)

// EnvPrefix namespaces environment overrides: store.driver is WAMIRROR_STORE_DRIVER.
const EnvPrefix = "WAMIRROR"

var (
	ErrMissingStorePath    = models.ConfigError{Message: "missing sqlite store path"}
	ErrMissingStoreDSN     = models.ConfigError{Message: "missing postgres store dsn"}
	ErrMissingMongoURI     = models.ConfigError{Message: "missing mongo store uri"}
	ErrUnknownStore        = models.ConfigError{Message: "unknown store driver"}
	ErrMissingAMQPExchange = models.ConfigError{Message: "amqp_exchange is required when amqp_url is set"}
)

// legacyEnv maps keys to the unprefixed variables older deployments used.
var legacyEnv = map[string]string{
	"store.mongo_uri": "MONGO_URI",
	"server.port":     "PORT",
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfig reads the optional config file at path, applies environment
// overrides and defaults, and validates the result. An empty path loads
// defaults and environment only.
func LoadConfig(path string) (*models.Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config models.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", constants.DefaultServerPort)
	v.SetDefault("server.read_timeout_sec", constants.DefaultServerReadTimeoutSec)
	v.SetDefault("server.write_timeout_sec", constants.DefaultServerWriteTimeoutSec)
	v.SetDefault("server.idle_timeout_sec", constants.DefaultServerIdleTimeoutSec)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.verify_token", "")
	v.SetDefault("webhook.max_body_bytes", constants.DefaultWebhookMaxBodyBytes)

	v.SetDefault("business.phone_number", "")

	v.SetDefault("store.driver", constants.DefaultStoreDriver)
	v.SetDefault("store.path", constants.DefaultSQLitePath)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("store.mongo_database", constants.DefaultMongoDatabase)
	v.SetDefault("store.mongo_collection", constants.DefaultMongoCollection)
	v.SetDefault("store.timeout_ms", constants.DefaultStoreTimeoutMs)
	v.SetDefault("store.encrypt_payloads", false)

	v.SetDefault("retry.initial_backoff_ms", constants.DefaultRetryBackoffMs)
	v.SetDefault("retry.max_backoff_ms", constants.DefaultMaxBackoffMs)
	v.SetDefault("retry.max_attempts", constants.DefaultMaxAttempts)

	v.SetDefault("notifier.client_buffer_size", constants.DefaultClientBufferSize)
	v.SetDefault("notifier.amqp_url", "")
	v.SetDefault("notifier.amqp_exchange", constants.DefaultAMQPExchange)
	v.SetDefault("notifier.publish_timeout_ms", constants.DefaultPublishTimeoutMs)
	v.SetDefault("notifier.queue_size", constants.DefaultNotifierQueueSize)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "wamirror")
	v.SetDefault("tracing.service_version", "dev")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.use_stdout", false)
}

func validate(c *models.Config) error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port %d", c.Server.Port)}
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		c.Webhook.MaxBodyBytes = constants.DefaultWebhookMaxBodyBytes
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return ErrMissingStorePath
		}
	case "postgres":
		if c.Store.DSN == "" {
			return ErrMissingStoreDSN
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return ErrMissingMongoURI
		}
	case "memory":
	default:
		return models.ConfigError{Message: fmt.Sprintf("%s: %q", ErrUnknownStore.Message, c.Store.Driver)}
	}
	if c.Store.TimeoutMs <= 0 {
		c.Store.TimeoutMs = constants.DefaultStoreTimeoutMs
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		c.Retry.MaxBackoffMs = c.Retry.InitialBackoffMs
	}

	if c.Notifier.ClientBufferSize <= 0 {
		c.Notifier.ClientBufferSize = constants.DefaultClientBufferSize
	}
	if c.Notifier.QueueSize <= 0 {
		c.Notifier.QueueSize = constants.DefaultNotifierQueueSize
	}
	if c.Notifier.AMQPURL != "" && c.Notifier.AMQPExchange == "" {
		return ErrMissingAMQPExchange
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample_rate must be between 0 and 1"}
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv(EnvPrefix+"_ENV") == "production"

	if isProduction {
		// Unsigned webhooks would let anyone write into the message history.
		if c.Webhook.Secret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set WAMIRROR_WEBHOOK_SECRET)"}
		}
		if len(c.Webhook.Secret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Webhook.Secret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set WAMIRROR_WEBHOOK_SECRET to verify webhook signatures.\n")
	}

	if c.Store.EncryptPayloads && os.Getenv(store.EncryptionSecretEnv) == "" {
		return models.ConfigError{Message: "encrypt_payloads requires " + store.EncryptionSecretEnv}
	}
	return nil
}
