package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Serialize writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		userID = NewUserID()
	}
	if err := checkUserID(userID); err != nil {
		return nil, err
	}

	rec := NewRecord(userID)
	rec.UpdatedAt = time.Now()
	data, err := encodeRecord(rec)
	if err != nil {
		return nil, storageErr("get", err)
	}

	// Create the default row only if absent, then read whatever is stored.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, string(data), rec.UpdatedAt.Unix(),
	); err != nil {
		return nil, storageErr("get", err)
	}

	var stored string
	err = s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE user_id = ?`, userID).Scan(&stored)
	if err != nil {
		return nil, storageErr("get", err)
	}

	out, err := decodeRecord([]byte(stored))
	return out, storageErr("get", err)
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, rec *Record) error {
	if err := checkUserID(rec.UserID); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()

	data, err := encodeRecord(rec)
	if err != nil {
		return storageErr("set", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		rec.UserID, string(data), rec.UpdatedAt.Unix(),
	)
	return storageErr("set", err)
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context, userID string) (*Record, error) {
	fresh := NewRecord("")
	fresh.UpdatedAt = time.Now()
	data, err := encodeRecord(fresh)
	if err != nil {
		return nil, storageErr("reset", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("reset", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return nil, storageErr("reset", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (user_id, data, updated_at) VALUES (?, ?, ?)`,
		fresh.UserID, string(data), fresh.UpdatedAt.Unix(),
	); err != nil {
		return nil, storageErr("reset", err)
	}
	if err := tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return nil, storageErr("reset", err)
	}
	return fresh, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
