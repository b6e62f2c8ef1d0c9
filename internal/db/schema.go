package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    email         TEXT NOT NULL COLLATE NOCASE,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'registrar', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS artworks (
    id          INTEGER PRIMARY KEY,
    title       TEXT NOT NULL,
    artist      TEXT NOT NULL,
    year        INTEGER,
    medium      TEXT,
    dimensions  TEXT,
    description TEXT,
    image_url   TEXT,
    scan_code   TEXT UNIQUE,
    verified    INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ownership_records (
    id           INTEGER PRIMARY KEY,
    artwork_id   INTEGER NOT NULL REFERENCES artworks(id),
    owner_id     INTEGER NOT NULL REFERENCES users(id),
    owner_name   TEXT NOT NULL,
    owner_type   TEXT NOT NULL,
    acquired_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    details      TEXT,
    is_current   INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ownership_artwork
    ON ownership_records(artwork_id);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ownership_current
    ON ownership_records(artwork_id) WHERE is_current = 1;

CREATE INDEX IF NOT EXISTS idx_ownership_current_owner
    ON ownership_records(owner_id) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS transfer_requests (
    id             INTEGER PRIMARY KEY,
    artwork_id     INTEGER NOT NULL REFERENCES artworks(id),
    from_owner_id  INTEGER NOT NULL REFERENCES users(id),
    to_owner_id    INTEGER REFERENCES users(id),
    to_owner_email TEXT COLLATE NOCASE,
    transfer_code  TEXT NOT NULL UNIQUE,
    status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'cancelled')),
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    confirmed_at   DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_transfers_pending
    ON transfer_requests(artwork_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS scan_log (
    id         INTEGER PRIMARY KEY,
    artwork_id INTEGER NOT NULL REFERENCES artworks(id),
    scanned_by INTEGER REFERENCES users(id),
    address    TEXT,
    agent      TEXT,
    scanned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scan_log_artwork
    ON scan_log(artwork_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: Index for listing transfers by status, newest first.
	`CREATE INDEX IF NOT EXISTS idx_transfers_status
	     ON transfer_requests(status, created_at)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
