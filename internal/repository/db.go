package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicatePhone is returned when a phone number is already taken
	ErrDuplicatePhone = errors.New("phone number already registered")
)

const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL UNIQUE,
		product TEXT NOT NULL DEFAULT '',
		tracking_code TEXT,
		carrier_status TEXT,
		last_location TEXT NOT NULL DEFAULT '',
		last_update TEXT NOT NULL DEFAULT '',
		last_notified_status TEXT,
		unread_count INTEGER NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
		last_message TEXT NOT NULL DEFAULT '',
		last_message_at DATETIME,
		profile_picture_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS message_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		category TEXT NOT NULL,
		direction TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders (id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_history_order ON message_history(order_id, created_at);
`

// Open opens the order database and makes sure the schema exists
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; serializing here avoids SQLITE_BUSY
	// under concurrent inbound messages.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
