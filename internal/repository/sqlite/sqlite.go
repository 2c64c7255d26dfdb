// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — no C compiler needed, works everywhere
// Go works.
//
// Tag references are stored relationally (content_tags join table) rather
// than as a serialized array on the content row. The "does this content
// reference tag X" containment query becomes an indexed COUNT, and the
// tag-count reconciler recomputes from it in one statement.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces. One DB value serves all entities; the server owns its
// lifecycle and closes it on shutdown.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: SQLite allows a single writer anyway, per-connection
	// PRAGMAs below must hold for every query, and ":memory:" databases
	// exist per connection.
	conn.SetMaxOpenConns(1)

	// Force an immediate connection so a bad path fails here, not on the
	// first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in progress — important
	// for a web server where every request hits the DB.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. We rely on them for
	// content_tags cascades.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates all tables. CREATE TABLE IF NOT EXISTS keeps it
// idempotent — safe to run on every startup.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			github_id     INTEGER NOT NULL DEFAULT 0,
			login         TEXT NOT NULL,
			email         TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id
			ON users(github_id) WHERE github_id != 0;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
			ON users(email) WHERE email != '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_stats (
			user_id       TEXT PRIMARY KEY REFERENCES users(id),
			total_content INTEGER NOT NULL DEFAULT 0,
			total_tags    INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_stats table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS content (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL REFERENCES users(id),
			title          TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			link           TEXT NOT NULL DEFAULT '',
			content_type   TEXT NOT NULL,
			personal_notes TEXT NOT NULL DEFAULT '',
			thumbnail_url  TEXT NOT NULL DEFAULT '',
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_content_user_id ON content(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating content table: %w", err)
	}

	// Tag ids are slugs, unique per user — hence the composite key.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tags (
			id            TEXT NOT NULL,
			user_id       TEXT NOT NULL REFERENCES users(id),
			tag_name      TEXT NOT NULL,
			color_code    TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			content_count INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating tags table: %w", err)
	}

	// The join table behind the array-containment query. Deleting a
	// content row cascades its references; tag deletion is handled
	// explicitly so the repository controls reconciliation ordering.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS content_tags (
			user_id    TEXT NOT NULL,
			content_id TEXT NOT NULL REFERENCES content(id) ON DELETE CASCADE,
			tag_id     TEXT NOT NULL,
			PRIMARY KEY (content_id, tag_id)
		);
		CREATE INDEX IF NOT EXISTS idx_content_tags_user_tag
			ON content_tags(user_id, tag_id);
	`)
	if err != nil {
		return fmt.Errorf("creating content_tags table: %w", err)
	}

	// No two ACTIVE connections may share a device fingerprint, but a
	// disconnected one may be superseded — hence the partial index.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS extension_connections (
			id                   TEXT PRIMARY KEY,
			user_id              TEXT NOT NULL REFERENCES users(id),
			device_fingerprint   TEXT NOT NULL,
			browser_type         TEXT NOT NULL,
			device_name          TEXT NOT NULL DEFAULT '',
			user_agent           TEXT NOT NULL DEFAULT '',
			ip_address           TEXT NOT NULL DEFAULT '',
			api_key_hash         TEXT NOT NULL,
			api_key_preview      TEXT NOT NULL,
			status               TEXT NOT NULL DEFAULT 'connected',
			connected_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_activity        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_heartbeat       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			total_content_saved  INTEGER NOT NULL DEFAULT 0,
			total_api_calls_made INTEGER NOT NULL DEFAULT 0,
			is_active            INTEGER NOT NULL DEFAULT 1,
			disconnected_reason  TEXT NOT NULL DEFAULT '',
			created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_connections_active_fingerprint
			ON extension_connections(user_id, device_fingerprint) WHERE is_active = 1;
		CREATE INDEX IF NOT EXISTS idx_connections_active
			ON extension_connections(is_active);
	`)
	if err != nil {
		return fmt.Errorf("creating extension_connections table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_extension_details (
			user_id                        TEXT PRIMARY KEY REFERENCES users(id),
			total_active_connections       INTEGER NOT NULL DEFAULT 0,
			total_historical_connections   INTEGER NOT NULL DEFAULT 0,
			last_activity                  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			total_content_saved            INTEGER NOT NULL DEFAULT 0,
			total_api_calls_all_connections INTEGER NOT NULL DEFAULT 0,
			notify_on_connect              INTEGER NOT NULL DEFAULT 1,
			connection_timeout_minutes     INTEGER NOT NULL DEFAULT 30,
			require_reauth                 INTEGER NOT NULL DEFAULT 0,
			created_at                     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at                     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_extension_details table: %w", err)
	}

	return nil
}
