package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Broker    BrokerConfig
	Telemetry TelemetryConfig
	App       AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// CacheConfig holds the Redis caching layer configuration
type CacheConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	TTL      time.Duration
}

// BrokerConfig holds the optional RabbitMQ connection for the click event
// stream. An empty URL disables publishing.
type BrokerConfig struct {
	URL string
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	ServiceName  string
	Environment  string // "development", "staging", "production"
	OTLPEndpoint string // empty means no trace export
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	BaseURL           string // Fallback base for short links when the request carries no Host
	AllocatorStrategy string // "sequence", "random" or "snowflake"
	ShortIDLength     int    // Random-strategy identifier length
	ShortIDRetries    int    // Allocation/create retry bound
	MachineID         int64  // Snowflake machine id (0-1023)
	RateLimit         string // ulule/limiter format, e.g. "10-M"; empty disables
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "linklet"),
			Password: getEnv("DB_PASSWORD", "linklet_secret"),
			DBName:   getEnv("DB_NAME", "linklet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Cache: CacheConfig{
			Host:     getEnv("RDB_HOST", "localhost"),
			Port:     getEnv("RDB_PORT", "6379"),
			User:     getEnv("RDB_USER", ""),
			Password: getEnv("RDB_PASSWORD", ""),
			TTL:      getEnvDuration("CACHE_TTL", time.Hour),
		},
		Broker: BrokerConfig{
			URL: getEnv("AMQP_URL", ""),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("SERVICE_NAME", "linklet"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
		},
		App: AppConfig{
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllocatorStrategy: getEnv("ALLOCATOR_STRATEGY", "sequence"),
			ShortIDLength:     getEnvInt("SHORT_ID_LENGTH", 9),
			ShortIDRetries:    getEnvInt("SHORT_ID_MAX_RETRIES", 5),
			MachineID:         int64(getEnvInt("SNOWFLAKE_MACHINE_ID", 0)),
			RateLimit:         getEnv("RATE_LIMIT", ""),
		},
	}, nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// ConnectionString returns the Redis connection string
func (c *CacheConfig) ConnectionString() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/0", c.User, c.Password, c.Host, c.Port)
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
