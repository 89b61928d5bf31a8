package db

import (
	"context"
	"fmt"
)

// schemaStatements is portable between SQLite and PostgreSQL. IDs are UUID
// strings and timestamps are stored in UTC.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snippets (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		code            TEXT NOT NULL,
		language        TEXT NOT NULL,
		author_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		is_public       BOOLEAN NOT NULL DEFAULT TRUE,
		time_complexity TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_author ON snippets (author_id)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_created ON snippets (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_language ON snippets (language)`,
	`CREATE TABLE IF NOT EXISTS snippet_tags (
		snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
		tag        TEXT NOT NULL,
		position   INTEGER NOT NULL,
		PRIMARY KEY (snippet_id, tag)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snippet_tags_tag ON snippet_tags (tag)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          TEXT PRIMARY KEY,
		user_id     TEXT,
		action      TEXT NOT NULL,
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id   TEXT NOT NULL DEFAULT '',
		ip_address  TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		request_id  TEXT NOT NULL DEFAULT '',
		details     TEXT,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs (user_id, created_at)`,
}

// Migrate creates any missing tables and indexes
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	c.logger.Debug("Database schema applied")
	return nil
}
