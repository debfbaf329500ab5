package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/baselayer/pkg/config"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

const (
	connectAttempts = 5
	connectSpacing  = 5 * time.Second
)

// DBConfig carries the database connection and pool settings
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// PoolSize is the number of idle connections kept open
	PoolSize int
	// MaxOverflow is how many connections beyond PoolSize may be opened
	MaxOverflow int
	// PoolRecycle bounds a connection's lifetime
	PoolRecycle time.Duration
}

// DBConfigFromConfig reads database settings from the configuration tree
func DBConfigFromConfig(cfg *config.Config) DBConfig {
	return DBConfig{
		Host:        cfg.String("database.host", "localhost"),
		Port:        cfg.Int("database.port", 5432),
		User:        cfg.String("database.user", "postgres"),
		Password:    cfg.String("database.password", ""),
		Database:    cfg.String("database.database", "baselayer"),
		PoolSize:    cfg.Int("database.pool_size", 5),
		MaxOverflow: cfg.Int("database.max_overflow", 10),
		PoolRecycle: cfg.Duration("database.pool_recycle", 3600*time.Second),
	}
}

// DSN renders the lib/pq connection string
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// OpenDB opens the database and verifies connectivity, retrying a fixed
// number of times so processes survive the database starting up after them.
func OpenDB(ctx context.Context, cfg DBConfig, logger *observability.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.PoolSize + cfg.MaxOverflow)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(cfg.PoolRecycle)

	var pingErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, connectSpacing)
		pingErr = db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			return db, nil
		}
		logger.WithError(pingErr).Warnf("database not reachable (attempt %d/%d)", attempt, connectAttempts)
		if attempt < connectAttempts {
			select {
			case <-time.After(connectSpacing):
			case <-ctx.Done():
				db.Close()
				return nil, ctx.Err()
			}
		}
	}
	db.Close()
	return nil, fmt.Errorf("failed to ping postgres after %d attempts: %w", connectAttempts, pingErr)
}
