package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// PoolConfig defines database connection pool configuration.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open connects to the database and records the driver for placeholder
// conversion. The connection is verified with a ping.
func Open(ctx context.Context, driverName, dsn string, pool PoolConfig) (*sql.DB, error) {
	if driverName == "" {
		driverName = GetDBDriver()
	}
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}
	if driverName == "postgresql" {
		driverName = "postgres"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}

	SetDriver(driverName)
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS plugins (
		plugin_name VARCHAR(255) NOT NULL,
		plugin_sys_name VARCHAR(255) NOT NULL,
		CONSTRAINT plugins_sys_name_unique UNIQUE (plugin_sys_name)
	)`,
	`CREATE TABLE IF NOT EXISTS product_plugin (
		prod_id BIGINT NOT NULL,
		plugin_sys_name VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plugin_config (
		plugin_sys_name VARCHAR(255) NOT NULL,
		config_key VARCHAR(255) NOT NULL,
		config_value TEXT NOT NULL,
		CONSTRAINT plugin_config_key_unique UNIQUE (plugin_sys_name, config_key)
	)`,
}

// Migrate creates the extension tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
