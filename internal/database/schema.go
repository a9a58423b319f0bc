package database

import (
	"context"
	"fmt"
)

// ReplyInsertedChannel is the Postgres NOTIFY channel fed by the replies insert trigger
const ReplyInsertedChannel = "reply_inserted"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id VARCHAR(36) PRIMARY KEY,
		name TEXT NOT NULL,
		api_key VARCHAR(64) UNIQUE NOT NULL,
		owner_id VARCHAR(64) NOT NULL,
		owner_email VARCHAR(320) NOT NULL DEFAULT '',
		subscription_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_owner_id ON projects(owner_id)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id VARCHAR(36) PRIMARY KEY,
		project_id VARCHAR(36) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		body TEXT NOT NULL,
		sender_identity VARCHAR(320) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		metadata TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_project_created ON feedback(project_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS replies (
		id VARCHAR(36) PRIMARY KEY,
		thread_id VARCHAR(36) NOT NULL REFERENCES feedback(id) ON DELETE CASCADE,
		body TEXT NOT NULL,
		author_role VARCHAR(20) NOT NULL CHECK (author_role IN ('operator', 'external-sender')),
		author_label VARCHAR(320) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_replies_thread_created ON replies(thread_id, created_at, id)`,
	// The payload carries keys only; pg_notify payloads are capped at 8000 bytes.
	`CREATE OR REPLACE FUNCTION notify_reply_inserted() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + ReplyInsertedChannel + `', json_build_object('id', NEW.id, 'thread_id', NEW.thread_id)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS replies_notify_insert ON replies`,
	`CREATE TRIGGER replies_notify_insert AFTER INSERT ON replies
		FOR EACH ROW EXECUTE FUNCTION notify_reply_inserted()`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id VARCHAR(36) PRIMARY KEY,
		name TEXT NOT NULL,
		api_key VARCHAR(64) UNIQUE NOT NULL,
		owner_id VARCHAR(64) NOT NULL,
		owner_email VARCHAR(320) NOT NULL DEFAULT '',
		subscription_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_projects_owner_id (owner_id)
	)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id VARCHAR(36) PRIMARY KEY,
		project_id VARCHAR(36) NOT NULL,
		body TEXT NOT NULL,
		sender_identity VARCHAR(320) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		metadata TEXT,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_feedback_project_created (project_id, created_at),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS replies (
		id VARCHAR(36) PRIMARY KEY,
		thread_id VARCHAR(36) NOT NULL,
		body TEXT NOT NULL,
		author_role VARCHAR(20) NOT NULL CHECK (author_role IN ('operator', 'external-sender')),
		author_label VARCHAR(320) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_replies_thread_created (thread_id, created_at, id),
		FOREIGN KEY (thread_id) REFERENCES feedback(id) ON DELETE CASCADE
	)`,
}

// CreateTables creates the feedback tables for the client's dialect
func CreateTables(ctx context.Context, wc *WriteClient) error {
	queries := mysqlSchema
	if wc.Dialect() == DriverPostgres {
		queries = postgresSchema
	}

	for i, query := range queries {
		if _, err := wc.GetDB().ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}

	return nil
}
