package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type AWSConfig struct {
	Region    string `env:"REGION" envDefault:"us-east-1"`
	AccountID string `env:"ACCOUNT_ID"`
	// Endpoint overrides the AWS endpoint for local development (localstack).
	Endpoint string `env:"ENDPOINT"`
}

func (c AWSConfig) Validate() error {
	if c.Region == "" {
		return errors.New("aws region is required")
	}
	return nil
}

type DynamoDBConfig struct {
	SessionsTableName string `env:"SESSIONS_TABLE" envDefault:"scan_sessions"`
}

type S3Config struct {
	ScansBucketName string `env:"SCANS_BUCKET" envDefault:"scan-uploads"`
}

type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
}

type ServiceConfig struct {
	SessionHTTPAddr  string        `env:"SESSIONS_HTTP_ADDR" envDefault:":8080"`
	CleanupQueueName string        `env:"CLEANUP_QUEUE_NAME" envDefault:"session-cleanup"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepLeaseTTL    time.Duration `env:"SWEEP_LEASE_TTL" envDefault:"50s"`
}

type Config struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	Tracing     bool   `env:"TRACING_ENABLED" envDefault:"false"`
	TracingAddr string `env:"TRACING_ADDR"`

	AWSConfig      AWSConfig      `envPrefix:"AWS_"`
	DynamoDBConfig DynamoDBConfig `envPrefix:"DYNAMODB_"`
	S3Config       S3Config       `envPrefix:"S3_"`
	RedisConfig    RedisConfig    `envPrefix:"REDIS_"`
	ServiceConfig  ServiceConfig
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
