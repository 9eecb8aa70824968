package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/credkeeper/credkeeper/internal/dbx"
	"github.com/credkeeper/credkeeper/internal/storage/migrations"
)

// SQLiteStore is the durable Store backed by a local sqlite database.
// It survives process restarts; this is the "remember me" scope.
type SQLiteStore struct {
	db dbx.DBTX
}

// NewSQLiteStore wraps an already-opened database handle. The kv table is
// expected to exist (see OpenSQLite).
func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenSQLite opens (creating if needed) the database at dsn, runs the
// embedded migrations, and returns the handle together with a ready store.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, *SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store db: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate store db: %w", err)
	}

	return db, NewSQLiteStore(db), nil
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kv[%s]: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set kv[%s]: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete kv[%s]: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan kv row: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kv rows: %w", err)
	}

	return keys, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv`)
	if err != nil {
		return fmt.Errorf("failed to clear kv: %w", err)
	}
	return nil
}
