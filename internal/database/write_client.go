package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

const defaultQueryTimeout = 30 * time.Second

// WriteClient executes dialect-neutral queries against the feedback database.
// Queries are written with ? placeholders and rebound for the active driver.
type WriteClient struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewWriteClient connects to the database and wraps the connection
func NewWriteClient(databaseURL string) (*WriteClient, error) {
	db, err := New(databaseURL)
	if err != nil {
		return nil, err
	}
	return NewWriteClientFromDB(db), nil
}

// NewWriteClientFromDB wraps an existing connection
func NewWriteClientFromDB(db *sqlx.DB) *WriteClient {
	return &WriteClient{db: db, timeout: defaultQueryTimeout}
}

// GetDB returns the underlying database connection
func (wc *WriteClient) GetDB() *sqlx.DB {
	return wc.db
}

// Dialect returns the driver name the client was opened with
func (wc *WriteClient) Dialect() string {
	return wc.db.DriverName()
}

// ExecuteWriteQuery executes a write query and returns the result
func (wc *WriteClient) ExecuteWriteQuery(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()

	return wc.db.ExecContext(ctx, wc.db.Rebind(query), args...)
}

// ExecuteWriteQueryWithResult executes a query and scans all rows into dest
func (wc *WriteClient) ExecuteWriteQueryWithResult(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()

	return wc.db.SelectContext(ctx, dest, wc.db.Rebind(query), args...)
}

// ExecuteWriteQuerySingle executes a query and scans a single row into dest
func (wc *WriteClient) ExecuteWriteQuerySingle(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()

	return wc.db.GetContext(ctx, dest, wc.db.Rebind(query), args...)
}

// Close closes the database connection
func (wc *WriteClient) Close() error {
	return wc.db.Close()
}
