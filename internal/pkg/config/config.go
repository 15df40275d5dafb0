package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	StorageBackendPostgres = "postgres"
	StorageBackendRedis    = "redis"

	// collectionSuffix is appended to the configured prefix to name the
	// table or stream that holds storage records.
	collectionSuffix = "_telemetry"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	StorageUser      string `env:"STORAGE_USER"`
	StoragePassword  string `env:"STORAGE_PASSWORD"`
	StorageHost      string `env:"STORAGE_HOST" envDefault:"localhost"`
	StoragePort      int    `env:"STORAGE_PORT" envDefault:"5432"`
	StorageDatabase  string `env:"STORAGE_DATABASE"`
	StorageSSLMode   string `env:"STORAGE_SSLMODE" envDefault:"disable"`
	CollectionPrefix string `env:"STORAGE_COLLECTION_PREFIX,required,notEmpty"`

	RedisAddr         string `env:"REDIS_ADDR" envDefault:"redis://localhost:6379/0"`
	RedisStreamMaxLen int64  `env:"REDIS_STREAM_MAXLEN" envDefault:"0"`

	// Names match the deployment variables the sink has always read.
	SendAnonymousData string        `env:"sendAnonymousDataToALL"`
	AnonymousDataURL  string        `env:"UrlForAnonymousDataToALL"`
	ForwardTimeout    time.Duration `env:"FORWARD_TIMEOUT" envDefault:"10s"`

	IngestServerAddr string `env:"INGEST_SERVER_ADDR" envDefault:":8080"`
	AdminServerAddr  string `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`
	MaxEnvelopeSize  int64  `env:"MAX_ENVELOPE_SIZE_BYTES" envDefault:"5242880"` // 5MB

	// LifecycleEvents records START/END events of the sink process itself.
	LifecycleEvents bool `env:"EMIT_LIFECYCLE_EVENTS" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageBackendPostgres:
		if c.StorageDatabase == "" {
			return fmt.Errorf("STORAGE_DATABASE is required for the %s backend", c.StorageBackend)
		}
	case StorageBackendRedis:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

// CollectionName is the table or stream that receives storage records.
func (c *Config) CollectionName() string {
	return c.CollectionPrefix + collectionSuffix
}

// ForwardingEnabled reports whether anonymized batches are forwarded.
func (c *Config) ForwardingEnabled() bool {
	return c.SendAnonymousData == "yes" && c.AnonymousDataURL != ""
}

// PostgresDSN builds the connection URL from the storage settings.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.StorageHost, strconv.Itoa(c.StoragePort)),
		Path:   "/" + c.StorageDatabase,
	}
	if c.StorageUser != "" {
		u.User = url.UserPassword(c.StorageUser, c.StoragePassword)
	}
	q := url.Values{}
	q.Set("sslmode", c.StorageSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
