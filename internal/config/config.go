/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet service. These
// values are loaded from environment variables. Three separate Postgres
// connection strings are carried (write/read/fraud) per spec.md §5's
// read/write pool split — in a single-database deployment they can all point
// at the same instance.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DBWriteURL string `mapstructure:"DB_WRITE_URL"`
	DBReadURL  string `mapstructure:"DB_READ_URL"`
	DBFraudURL string `mapstructure:"DB_FRAUD_URL"`

	RedisURL              string `mapstructure:"REDIS_URL"`
	IdempotencyTTLSeconds int    `mapstructure:"IDEMPOTENCY_TTL_SECONDS"`
	IdempotencyKeyPrefix  string `mapstructure:"IDEMPOTENCY_KEY_PREFIX"`

	RabbitMQURL         string `mapstructure:"RABBITMQ_URL"`
	ProjectionQueueName string `mapstructure:"PROJECTION_QUEUE_NAME"`
	FraudQueueName      string `mapstructure:"FRAUD_QUEUE_NAME"`

	SagaRecoveryStuckSeconds int `mapstructure:"SAGA_RECOVERY_STUCK_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("IDEMPOTENCY_TTL_SECONDS", 86400)
	viper.SetDefault("IDEMPOTENCY_KEY_PREFIX", "wallet:idempotency")
	viper.SetDefault("PROJECTION_QUEUE_NAME", "wallet_service.projection")
	viper.SetDefault("FRAUD_QUEUE_NAME", "wallet_service.fraud")
	viper.SetDefault("SAGA_RECOVERY_STUCK_SECONDS", 300)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DB_WRITE_URL")
	_ = viper.BindEnv("DB_READ_URL")
	_ = viper.BindEnv("DB_FRAUD_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("IDEMPOTENCY_TTL_SECONDS")
	_ = viper.BindEnv("IDEMPOTENCY_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PROJECTION_QUEUE_NAME")
	_ = viper.BindEnv("FRAUD_QUEUE_NAME")
	_ = viper.BindEnv("SAGA_RECOVERY_STUCK_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	config.DBWriteURL = strings.TrimSpace(config.DBWriteURL)
	config.DBReadURL = strings.TrimSpace(config.DBReadURL)
	config.DBFraudURL = strings.TrimSpace(config.DBFraudURL)

	// A read or fraud pool left unconfigured falls back to the write pool —
	// a single-database deployment needs only DB_WRITE_URL set.
	if config.DBReadURL == "" {
		config.DBReadURL = config.DBWriteURL
	}
	if config.DBFraudURL == "" {
		config.DBFraudURL = config.DBWriteURL
	}

	if config.DBWriteURL == "" {
		err = fmt.Errorf("DB_WRITE_URL must be configured")
		return
	}

	if config.IdempotencyTTLSeconds <= 0 {
		config.IdempotencyTTLSeconds = 86400
	}
	if strings.TrimSpace(config.IdempotencyKeyPrefix) == "" {
		config.IdempotencyKeyPrefix = "wallet:idempotency"
	}
	if config.SagaRecoveryStuckSeconds <= 0 {
		config.SagaRecoveryStuckSeconds = 300
	}

	return
}
