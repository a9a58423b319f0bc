package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver, also provides the LISTEN/NOTIFY listener
)

// Supported SQL drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// DetectDriver picks the SQL driver from the connection string
func DetectDriver(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres") {
		return DriverPostgres
	}
	return DriverMySQL
}

// New creates a new database connection (supports both MySQL and PostgreSQL)
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	driver := DetectDriver(databaseURL)
	dsn := databaseURL
	if driver == DriverMySQL {
		normalized, err := normalizeMySQLDSN(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
		}
		dsn = normalized
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// normalizeMySQLDSN strips an optional mysql:// scheme and forces UTC time parsing,
// which the reply ordering relies on. ClientFoundRows makes RowsAffected count
// matched rows, so an UPDATE to the current value is not reported as missing.
func normalizeMySQLDSN(databaseURL string) (string, error) {
	cfg, err := mysql.ParseDSN(strings.TrimPrefix(databaseURL, "mysql://"))
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// ExecuteReadOnlyPing executes a ping within a read-only transaction
func ExecuteReadOnlyPing(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // we never commit read-only transactions

	var result int
	if err := tx.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to execute read-only ping query: %w", err)
	}

	return nil
}
