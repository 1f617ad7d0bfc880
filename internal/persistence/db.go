package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register sqlite driver
)

func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < 1 {
		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS messages (
				local_id INTEGER PRIMARY KEY AUTOINCREMENT,
				topic TEXT NOT NULL,
				seq INTEGER NOT NULL DEFAULT 0,
				sender TEXT NOT NULL DEFAULT '',
				content_json TEXT NOT NULL,
				status INTEGER NOT NULL,
				at INTEGER NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_topic_seq
				ON messages(topic, seq) WHERE seq > 0;
			CREATE INDEX IF NOT EXISTS idx_messages_topic_at
				ON messages(topic, at);

			CREATE TABLE IF NOT EXISTS receipts (
				topic TEXT NOT NULL,
				user_id TEXT NOT NULL,
				read_seq INTEGER NOT NULL DEFAULT 0,
				recv_seq INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (topic, user_id)
			);
			PRAGMA user_version = 1;
		`); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}

	return nil
}
