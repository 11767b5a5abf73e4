package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	AWS      AWSConfig
	Database DatabaseConfig
	Queue    QueueConfig
	Chain    ChainConfig
	Payments PaymentsConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// AWSConfig holds AWS-specific configuration
type AWSConfig struct {
	Region string
}

// DatabaseConfig holds DynamoDB configuration
type DatabaseConfig struct {
	PaymentsTable  string
	MerchantsTable string
	Endpoint       string // For local testing
}

// QueueConfig holds SQS configuration
type QueueConfig struct {
	SettlementQueueURL string
	WebhookQueueURL    string
	Endpoint           string // For local testing
}

// ChainConfig holds Stacks network configuration
type ChainConfig struct {
	Network          string // "mainnet" or "testnet"
	ContractAddress  string
	ContractName     string
	NodeURL          string
	ChainhookToken   string // Bearer token expected on chainhook deliveries
	RequiredConfirms int
}

// PaymentsConfig holds payment lifecycle timing and fee parameters
type PaymentsConfig struct {
	ExpirySeconds          int64 // pending payments expire after this many seconds
	SettlementDelaySeconds int64 // wait between confirmation and settlement
	SweepIntervalSeconds   int64 // standalone server polls for due settlements at this cadence
}

// ServerConfig holds standalone HTTP server configuration
type ServerConfig struct {
	Port string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		AWS: AWSConfig{
			Region: getEnv("AWS_REGION", "us-east-1"),
		},
		Database: DatabaseConfig{
			PaymentsTable:  getEnv("PAYMENTS_TABLE", "payments"),
			MerchantsTable: getEnv("MERCHANTS_TABLE", "merchants"),
			Endpoint:       getEnv("DYNAMODB_ENDPOINT", ""), // Empty for AWS, set for local
		},
		Queue: QueueConfig{
			SettlementQueueURL: getEnv("SETTLEMENT_QUEUE_URL", ""),
			WebhookQueueURL:    getEnv("WEBHOOK_QUEUE_URL", ""),
			Endpoint:           getEnv("SQS_ENDPOINT", ""), // Empty for AWS, set for local
		},
		Chain: ChainConfig{
			Network:          getEnv("STACKS_NETWORK", "testnet"),
			ContractAddress:  getEnv("CONTRACT_ADDRESS", ""),
			ContractName:     getEnv("CONTRACT_NAME", "stackspay-gateway"),
			NodeURL:          getEnv("STACKS_NODE_URL", "https://api.testnet.hiro.so"),
			ChainhookToken:   getEnv("CHAINHOOK_TOKEN", ""),
			RequiredConfirms: int(getEnvInt64("REQUIRED_CONFIRMATIONS", 1)),
		},
		Payments: PaymentsConfig{
			ExpirySeconds:          getEnvInt64("PAYMENT_EXPIRY_SECONDS", 3600),
			SettlementDelaySeconds: getEnvInt64("SETTLEMENT_DELAY_SECONDS", 3600),
			SweepIntervalSeconds:   getEnvInt64("SWEEP_INTERVAL_SECONDS", 30),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}

	// Validate required fields
	if cfg.Database.PaymentsTable == "" {
		return nil, fmt.Errorf("PAYMENTS_TABLE is required")
	}

	if cfg.Database.MerchantsTable == "" {
		return nil, fmt.Errorf("MERCHANTS_TABLE is required")
	}

	if cfg.Payments.ExpirySeconds <= 0 {
		return nil, fmt.Errorf("PAYMENT_EXPIRY_SECONDS must be positive")
	}

	if cfg.Payments.SettlementDelaySeconds < 0 {
		return nil, fmt.Errorf("SETTLEMENT_DELAY_SECONDS must not be negative")
	}

	if cfg.Payments.SweepIntervalSeconds <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt64 gets an integer environment variable with a default fallback
func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
