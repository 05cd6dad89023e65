// Package config aggregates every component's environment configuration.
package config

import (
	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/fern/pkg/crawler"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

type Config struct {
	AppName            string `env:"APP_NAME" default:"fern-api"`
	Version            string `env:"APP_VERSION" default:"dev"`
	Port               int    `env:"PORT" default:"3004"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" default:"5"`

	HTTPServerWriteTimeoutSeconds int `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" default:"30"`
	HTTPServerReadTimeoutSeconds  int `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" default:"10"`
	HTTPServerIdleTimeoutSeconds  int `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" default:"60"`

	Database  database.Config
	Migration database.MigrationConfig
	Redis     redis.Config
	Kafka     kafka.ProducerConfig
	Fetcher   httpclient.Config
	Crawler   crawler.Config

	CrawlerEnabled bool `env:"CRAWLER_ENABLED" default:"true"`
	KafkaEnabled   bool `env:"KAFKA_ENABLED" default:"true"`

	OTLPEnabled bool `env:"OTLP_ENABLED" default:"false"`
	OTLP        exporters.OTLPConfig
}

// Load reads .env (when present) and binds the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
