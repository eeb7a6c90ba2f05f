package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete jobflow service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Storage   StorageConfig   `yaml:"storage" env:"STORAGE"`
	Manager   ManagerConfig   `yaml:"manager" env:"MANAGER"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// CacheConfig configures the in-memory job store.
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	MaxAge        time.Duration `yaml:"max_age" env:"MAX_AGE"`
	DefaultTTL    time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// StorageConfig selects and configures the durable repository backend.
type StorageConfig struct {
	// Backend is one of: none, gorm, redis.
	Backend  string         `yaml:"backend" env:"BACKEND"`
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
	Redis    RedisConfig    `yaml:"redis" env:"REDIS"`
}

// DatabaseConfig configures the SQL repository.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig configures the redis repository.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// ManagerConfig configures the job manager's flush behavior.
type ManagerConfig struct {
	FlushTimeout time.Duration `yaml:"flush_timeout" env:"FLUSH_TIMEOUT"`
}

// AuthConfig configures bearer-token identity on the HTTP surface.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the configuration used when nothing is provided.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9091,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  200,
		},
		Cache: CacheConfig{
			MaxEntries:    1000,
			MaxAge:        24 * time.Hour,
			DefaultTTL:    time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: "none",
			Database: DatabaseConfig{
				Driver:          "sqlite",
				Name:            "jobflow.db",
				SSLMode:         "disable",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				MinIdleConns: 2,
				KeyPrefix:    "jobflow:",
			},
		},
		Manager: ManagerConfig{
			FlushTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "jobflow",
			SampleRate:   1.0,
		},
	}
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, "cache max_entries must be positive")
	}
	switch c.Storage.Backend {
	case "none", "gorm", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth enabled without jwt_secret")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
