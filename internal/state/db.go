// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
//
// Amount and price columns are DECIMAL(58, 18): the engine's fixed-point
// values carry 18 fractional digits and must round-trip exactly.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS engine_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			min_deposit_usd DECIMAL(58, 18) NOT NULL,
			payout_mode VARCHAR(32) NOT NULL,
			max_price_age_seconds BIGINT NOT NULL,
			max_deviation_bps BIGINT NOT NULL,
			staleness_check_disabled BOOLEAN NOT NULL DEFAULT FALSE,
			target_tier VARCHAR(32) NOT NULL,
			drift_tolerance_bps BIGINT NOT NULL,
			max_slippage_bps BIGINT NOT NULL,
			swap_timeout_seconds BIGINT NOT NULL,
			max_rebalance_attempts INTEGER NOT NULL,
			rebalance_interval_minutes INTEGER NOT NULL,
			CONSTRAINT uq_engine_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_engine_parameters_config_active ON engine_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS price_audit (
			audit_id SERIAL PRIMARY KEY,
			asset VARCHAR(64) NOT NULL,
			source VARCHAR(32) NOT NULL,
			submitted_price DECIMAL(58, 18) NOT NULL,
			previous_price DECIMAL(58, 18) NOT NULL,
			deviation_bps DECIMAL(58, 18) NOT NULL,
			accepted BOOLEAN NOT NULL,
			emergency_bypass BOOLEAN NOT NULL DEFAULT FALSE,
			rejection_reason TEXT,
			audit_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_price_audit_asset_timestamp ON price_audit(asset, audit_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_price_audit_accepted ON price_audit(accepted);

		CREATE TABLE IF NOT EXISTS pool_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			operation VARCHAR(32) NOT NULL,
			total_asset_a DECIMAL(58, 18) NOT NULL,
			total_asset_b DECIMAL(58, 18) NOT NULL,
			total_shares DECIMAL(58, 18) NOT NULL,
			pool_value_usd DECIMAL(58, 18) NOT NULL,
			tier VARCHAR(32) NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_pool_snapshots_timestamp ON pool_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_pool_snapshots_operation ON pool_snapshots(operation);

		CREATE TABLE IF NOT EXISTS rebalance_receipts (
			receipt_id SERIAL PRIMARY KEY,
			attempt_id VARCHAR(64) NOT NULL,
			attempt INTEGER NOT NULL,
			direction VARCHAR(16) NOT NULL,
			target_tier VARCHAR(32) NOT NULL,
			amount_in DECIMAL(58, 18) NOT NULL,
			min_amount_out DECIMAL(58, 18) NOT NULL,
			actual_amount_out DECIMAL(58, 18) NOT NULL,
			state VARCHAR(16) NOT NULL,
			message TEXT,
			receipt_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_rebalance_receipts_timestamp ON rebalance_receipts(receipt_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_rebalance_receipts_attempt_id ON rebalance_receipts(attempt_id);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
