package jobstore

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RepositoryConfig selects and configures the durable backend.
type RepositoryConfig struct {
	// Backend is the durable layer type. BackendNone disables persistence
	// entirely; the manager then serves from the memory store alone.
	Backend Backend `yaml:"backend" json:"backend"`

	// Driver is the SQL dialect for the gorm backend: postgres, mysql,
	// or sqlite.
	Driver string `yaml:"driver" json:"driver"`

	// DSN is the SQL connection string (or file path for sqlite).
	DSN string `yaml:"dsn" json:"dsn"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// DefaultRepositoryConfig returns a persistence-disabled configuration.
func DefaultRepositoryConfig() RepositoryConfig {
	return RepositoryConfig{
		Backend: BackendNone,
		Driver:  "sqlite",
		DSN:     "./data/jobflow.db",
		Redis:   DefaultRedisConfig(),
	}
}

// NewRepository builds a Repository for the configured backend. A nil
// Repository with a nil error means persistence is disabled.
func NewRepository(config RepositoryConfig, logger *zap.Logger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch config.Backend {
	case BackendNone, "":
		logger.Info("durable persistence disabled")
		return nil, nil

	case BackendGorm:
		dialector, err := openDialector(config.Driver, config.DSN)
		if err != nil {
			return nil, err
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open %s database: %w", config.Driver, err)
		}
		return NewGormJobRepository(db, logger)

	case BackendRedis:
		return NewRedisJobRepository(config.Redis, logger)

	default:
		return nil, fmt.Errorf("unknown repository backend: %s", config.Backend)
	}
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite", "":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown sql driver: %s", driver)
	}
}
