package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Stream   StreamConfig
	Trigger  TriggerConfig
	Cache    CacheConfig
	Outbound OutboundConfig
	Server   ServerConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"universalis-alerts"`
	Environment string `envconfig:"APP_ENV" default:"development"`
}

// DatabaseConfig holds alert store settings.
type DatabaseConfig struct {
	URL           string        `envconfig:"UNIVERSALIS_ALERTS_DB" required:"true"`
	Type          string        `envconfig:"ALERTS_DB_TYPE" default:"mysql"` // mysql, postgres, sqlite or mongodb
	MaxOpenConns  int           `envconfig:"ALERTS_DB_MAX_OPEN_CONNS" default:"10"`
	LookupTimeout time.Duration `envconfig:"LOOKUP_TIMEOUT" default:"10s"`
	// MongoDB settings
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"universalis"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"users_alerts_next"`
}

// StreamConfig holds websocket feed settings.
type StreamConfig struct {
	URL                 string        `envconfig:"UNIVERSALIS_ALERTS_WS" required:"true"`
	Channel             string        `envconfig:"UNIVERSALIS_ALERTS_CHANNEL" required:"true"`
	HandshakeTimeout    time.Duration `envconfig:"STREAM_HANDSHAKE_TIMEOUT" default:"10s"`
	PingInterval        time.Duration `envconfig:"STREAM_PING_INTERVAL" default:"30s"`
	ReconnectMaxElapsed time.Duration `envconfig:"STREAM_RECONNECT_MAX_ELAPSED" default:"5m"`
}

// TriggerConfig holds the accepted trigger schema versions.
type TriggerConfig struct {
	MinVersion int32 `envconfig:"TRIGGER_VERSION_MIN" default:"0"`
	MaxVersion int32 `envconfig:"TRIGGER_VERSION_MAX" default:"0"`
}

// CacheConfig holds name cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"24h"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// OutboundConfig holds settings for XIVAPI and Discord.
type OutboundConfig struct {
	XIVAPIBaseURL      string        `envconfig:"XIVAPI_BASE_URL" default:"https://xivapi.com"`
	XIVAPIRateLimit    float64       `envconfig:"XIVAPI_RATE_LIMIT" default:"10"`
	XIVAPITimeout      time.Duration `envconfig:"XIVAPI_TIMEOUT" default:"10s"`
	DiscordTimeout     time.Duration `envconfig:"DISCORD_TIMEOUT" default:"10s"`
	UniversalisBaseURL string        `envconfig:"UNIVERSALIS_BASE_URL" default:"https://universalis.app"`
}

// ServerConfig holds status HTTP server settings.
type ServerConfig struct {
	Enabled         bool          `envconfig:"SERVER_ENABLED" default:"true"`
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	APIKeys         []string      `envconfig:"STATUS_API_KEYS" default:""`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Validate checks settings envconfig cannot express.
func (c *Config) Validate() error {
	if c.Trigger.MinVersion > c.Trigger.MaxVersion {
		return fmt.Errorf("TRIGGER_VERSION_MIN (%d) is greater than TRIGGER_VERSION_MAX (%d)",
			c.Trigger.MinVersion, c.Trigger.MaxVersion)
	}

	switch c.Database.Type {
	case "mysql", "postgres", "postgresql", "sqlite", "mongodb", "mongo":
	default:
		return fmt.Errorf("unsupported ALERTS_DB_TYPE %q", c.Database.Type)
	}

	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported CACHE_TYPE %q", c.Cache.Type)
	}

	keys := c.Server.APIKeys[:0]
	for _, k := range c.Server.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.Server.APIKeys = keys
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
